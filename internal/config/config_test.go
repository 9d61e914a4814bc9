package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"wedge/internal/config"
	"wedge/internal/scan"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("WEDGE_API_TOKEN", "")
	t.Setenv("WEDGE_AUDIT_TOKEN", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "wedge", "config.toml"); resolved != want {
		t.Fatalf("resolved = %q, want %q", resolved, want)
	}

	wantState := filepath.Join(tempHome, ".local", "share", "wedge")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.SocketPath() != filepath.Join(wantState, "wedge.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7489" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.DefaultMode() != scan.ModeLookup {
		t.Fatalf("default mode = %s", cfg.DefaultMode())
	}
	if cfg.ScanParams() != scan.DefaultParams() {
		t.Fatalf("default params = %+v, want %+v", cfg.ScanParams(), scan.DefaultParams())
	}
	if cfg.Camera.Enabled {
		t.Fatal("expected camera disabled by default")
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("WEDGE_AUDIT_TOKEN", "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "wedge.toml")
	content := `
[paths]
state_dir = "` + filepath.Join(dir, "state") + `"

[scanner]
default_mode = "Picking"
require_open_surface = false
min_length = 8
inter_key_threshold_ms = 35
quiet_period_ms = 500
idle_timeout_ms = 150

[devices]
match = [" Honeywell ", "0c2e:0b61", "honeywell", ""]
grab = false

[audit]
endpoint = "https://erp.example.com/api/"
user_id = " clerk-9 "

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.DefaultMode() != scan.ModePicking {
		t.Fatalf("default mode = %s", cfg.DefaultMode())
	}
	params := cfg.ScanParams()
	if params.RequireOpenSurface || params.MinLength != 8 || params.InterKeyThreshold != 35*time.Millisecond ||
		params.QuietPeriod != 500*time.Millisecond || params.IdleTimeout != 150*time.Millisecond {
		t.Fatalf("unexpected params %+v", params)
	}
	if !cfg.SurfaceParams().RequireOpenSurface {
		t.Fatal("surface params must require an open surface")
	}
	if got := strings.Join(cfg.Devices.Match, ","); got != "honeywell,0c2e:0b61" {
		t.Fatalf("device patterns = %q", got)
	}
	if cfg.Devices.Grab {
		t.Fatal("expected grab disabled")
	}
	if cfg.Audit.Endpoint != "https://erp.example.com/api" {
		t.Fatalf("endpoint = %q", cfg.Audit.Endpoint)
	}
	if cfg.Audit.UserID != "clerk-9" {
		t.Fatalf("user id = %q", cfg.Audit.UserID)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "wedge.toml")
	if err := os.WriteFile(configPath, []byte("[scanner]\nmin_lenght = 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestEnvVarFallbacks(t *testing.T) {
	t.Setenv("WEDGE_API_TOKEN", "env-api")
	t.Setenv("WEDGE_AUDIT_TOKEN", "env-audit")
	configPath := filepath.Join(t.TempDir(), "wedge.toml")
	content := "[audit]\ntoken = \"file-audit\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "env-api" {
		t.Errorf("expected API token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Audit.Token != "file-audit" {
		t.Errorf("file value should win over env, got %q", cfg.Audit.Token)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Scanner.MinLength != scan.DefaultMinLength {
		t.Fatalf("sample min_length = %d", cfg.Scanner.MinLength)
	}

	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if loaded.Scanner.DefaultMode != "lookup" {
		t.Fatalf("sample default mode = %q", loaded.Scanner.DefaultMode)
	}
}

func TestDecoderCommand(t *testing.T) {
	cfg := config.Default()
	got := strings.Join(cfg.DecoderCommand(), " ")
	if got != "zbarcam --raw --nodisplay /dev/video0" {
		t.Fatalf("decoder command = %q", got)
	}
	cfg.Camera.DecoderArgs = []string{"-q"}
	if got := strings.Join(cfg.DecoderCommand(), " "); got != "zbarcam -q /dev/video0" {
		t.Fatalf("decoder command = %q", got)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"min length", func(c *config.Config) { c.Scanner.MinLength = 0 }, "scanner.min_length must be positive"},
		{"threshold", func(c *config.Config) { c.Scanner.InterKeyThresholdMS = -1 }, "scanner.inter_key_threshold_ms"},
		{"quiet shorter than threshold", func(c *config.Config) { c.Scanner.QuietPeriodMS = 10 }, "scanner.quiet_period_ms"},
		{"idle timeout", func(c *config.Config) { c.Scanner.IdleTimeoutMS = 0 }, "scanner.idle_timeout_ms"},
		{"mode", func(c *config.Config) { c.Scanner.DefaultMode = "shipping" }, "scanner.default_mode"},
		{"bind", func(c *config.Config) { c.Paths.APIBind = "localhost" }, "paths.api_bind"},
		{"endpoint", func(c *config.Config) { c.Audit.Endpoint = "ftp://erp" }, "audit.endpoint"},
		{"queue", func(c *config.Config) { c.Audit.QueueSize = -4 }, "audit.queue_size"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	cfg := config.Default()
	data, err := config.Encode(&cfg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), "inter_key_threshold_ms = 20") {
		t.Fatalf("encoded config missing scanner section:\n%s", data)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
}
