package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"wedge/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		pass bool
	}{
		{name: "writable dir", path: dir, pass: true},
		{name: "missing", path: filepath.Join(dir, "nope")},
		{name: "not a dir", path: file},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckDirectoryAccess("test", tt.path)
			if result.Passed != tt.pass {
				t.Fatalf("passed = %v, detail = %s", result.Passed, result.Detail)
			}
			if result.Detail == "" {
				t.Fatal("expected non-empty detail")
			}
		})
	}
}

func TestCheckInputAccess(t *testing.T) {
	dir := t.TempDir()
	if result := CheckInputAccess(dir); result.Passed {
		t.Fatal("empty input dir should fail")
	}

	for _, name := range []string{"event0", "event3", "mouse0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	result := CheckInputAccess(dir)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != "2 of 2 event nodes readable" {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestCheckBinary(t *testing.T) {
	present := testsupport.WriteExecutable(t, "zbarcam", "exit 0")

	if result := CheckBinary("Decoder", present); !result.Passed || result.Detail != present {
		t.Fatalf("present binary: %+v", result)
	}
	if result := CheckBinary("Decoder", "clearly-not-present-binary"); result.Passed {
		t.Fatal("missing binary should fail")
	}
	if result := CheckBinary("Decoder", " "); result.Passed || result.Detail != "command not configured" {
		t.Fatalf("blank command: %+v", result)
	}
}

func TestCheckDeviceAccess(t *testing.T) {
	device := filepath.Join(t.TempDir(), "video0")
	if result := CheckDeviceAccess("Camera", device); result.Passed {
		t.Fatal("missing device should fail")
	}
	if err := os.WriteFile(device, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDeviceAccess("Camera", device); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckAuditEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scan-logs" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.WriteHeader(http.StatusMethodNotAllowed)
		case "Bearer broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name  string
		token string
		pass  bool
	}{
		{name: "reachable", token: "good", pass: true},
		{name: "bad token", token: "bad"},
		{name: "server error", token: "broken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckAuditEndpoint(context.Background(), srv.URL+"/", tt.token)
			if result.Passed != tt.pass {
				t.Fatalf("passed = %v, detail = %s", result.Passed, result.Detail)
			}
		})
	}

	if result := CheckAuditEndpoint(context.Background(), "http://127.0.0.1:1", ""); result.Passed {
		t.Fatal("closed port should be unreachable")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCamera("exit 0"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	local := RunLocal(cfg)
	names := make(map[string]bool, len(local))
	for _, r := range local {
		names[r.Name] = true
	}
	for _, want := range []string{"State directory", "Log directory", "Camera decoder", "Camera device"} {
		if !names[want] {
			t.Fatalf("missing check %q in %+v", want, local)
		}
	}
	if names["Input devices"] {
		t.Fatal("input check should be skipped without device patterns")
	}
	if failed := Failed(local); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	cfg.Audit.Endpoint = "http://127.0.0.1:1"
	all := RunAll(context.Background(), cfg)
	if len(all) != len(local)+1 || all[len(all)-1].Name != "Audit endpoint" {
		t.Fatalf("RunAll = %+v", all)
	}
	if RunLocal(nil) != nil {
		t.Fatal("nil config should produce no results")
	}
}
