package audit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wedge/internal/audit"
	"wedge/internal/scan"
)

func sampleEntry() scan.AuditEntry {
	return scan.AuditEntry{
		Code:      "SKU-1001",
		Mode:      scan.ModeInventory,
		Source:    scan.SourceKeyboard,
		Timestamp: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
		ActorID:   "u-42",
	}
}

func TestHTTPSinkPostsScanLog(t *testing.T) {
	var (
		gotPath   string
		gotAuth   string
		gotType   string
		gotMethod string
		payload   audit.Payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink, err := audit.NewHTTPSink(srv.URL+"/api/", "secret", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSink: %v", err)
	}
	if sink.URL() != srv.URL+"/api/scan-logs" {
		t.Fatalf("URL = %q", sink.URL())
	}
	if err := sink.Deliver(context.Background(), sampleEntry()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/api/scan-logs" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Fatalf("Content-Type = %q", gotType)
	}
	want := audit.Payload{
		Barcode:  "SKU-1001",
		ScanType: "inventory",
		UserID:   "u-42",
		Notes:    "Inventory scan via keyboard",
	}
	if payload != want {
		t.Fatalf("payload = %+v, want %+v", payload, want)
	}
}

func TestHTTPSinkWithoutTokenOmitsAuthorization(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	sink, err := audit.NewHTTPSink(srv.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSink: %v", err)
	}
	if err := sink.Deliver(context.Background(), sampleEntry()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("Authorization = %q, want empty", gotAuth)
	}
}

func TestHTTPSinkReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "user not found", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	sink, err := audit.NewHTTPSink(srv.URL, "", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSink: %v", err)
	}
	err = sink.Deliver(context.Background(), sampleEntry())
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "user not found") {
		t.Fatalf("error = %v", err)
	}
}

func TestNewHTTPSinkRequiresEndpoint(t *testing.T) {
	if _, err := audit.NewHTTPSink("  ", "", 0); err == nil {
		t.Fatal("expected error for blank endpoint")
	}
}

func TestNotesDefaultsToKeyboard(t *testing.T) {
	entry := scan.AuditEntry{Code: "X", Mode: scan.ModePicking}
	if got := audit.Notes(entry); got != "Picking scan via keyboard" {
		t.Fatalf("Notes = %q", got)
	}
	entry.Source = scan.SourceCamera
	if got := audit.Notes(entry); got != "Picking scan via camera" {
		t.Fatalf("Notes = %q", got)
	}
}
