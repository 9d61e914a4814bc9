package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wedge/internal/api"
	"wedge/internal/audit"
	"wedge/internal/config"
	"wedge/internal/scan"
	"wedge/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path = %q", status.LockFilePath)
	}
	if d.APIAddress() == "" {
		t.Fatal("expected api server to be listening")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.APIAddress() != "" {
		t.Fatal("api listener should be closed")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newTestDaemon(t, cfg)
	second := newTestDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second Start error = %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start after release: %v", err)
	}
}

func TestDaemonAPIDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.APIAddress() != "" {
		t.Fatal("api should be disabled")
	}
}

func TestDaemonHandlerAndSinks(t *testing.T) {
	type dispatched struct {
		code string
		mode scan.Mode
	}
	calls := make(chan dispatched, 4)
	sink := &recordingSink{entries: make(chan scan.AuditEntry, 4)}
	cfg := testsupport.NewConfig(t)
	cfg.Audit.Journal = false
	d := newTestDaemon(t, cfg,
		WithHandler(func(code string, mode scan.Mode) { calls <- dispatched{code, mode} }),
		WithSinks(sink),
	)

	ev, err := d.Submit("SKU-9", "picking")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ev.Mode != scan.ModePicking || ev.Source != scan.SourceManual {
		t.Fatalf("event = %+v", ev)
	}
	if got := <-calls; got.code != "SKU-9" || got.mode != scan.ModePicking {
		t.Fatalf("handler got %+v", got)
	}
	select {
	case entry := <-sink.entries:
		if entry.Code != "SKU-9" || entry.ActorID != "tester" {
			t.Fatalf("audit entry = %+v", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry not delivered")
	}

	if _, err := d.Submit("SKU-10", "shipping"); err == nil {
		t.Fatal("unknown mode should be rejected")
	}
	if len(d.History()) != 1 {
		t.Fatal("rejected submission must not reach history")
	}
	if _, err := d.AuditLog(context.Background(), 10); !errors.Is(err, ErrJournalDisabled) {
		t.Fatalf("AuditLog error = %v", err)
	}
}

type recordingSink struct {
	entries chan scan.AuditEntry
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, entry scan.AuditEntry) error {
	s.entries <- entry
	return nil
}

var _ audit.Sink = (*recordingSink)(nil)

func TestDaemonReload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	level := new(slog.LevelVar)
	d, server := newTestAPI(t, cfg, WithLevelVar(level))

	conn := dialSession(t, server.URL, nil)
	readUntil(t, conn, api.MessageSnapshot)
	waitFor(t, "session registration", func() bool { return len(d.liveSessions()) == 1 })

	next := *cfg
	next.Scanner.MinLength = 6
	next.Scanner.QuietPeriodMS = 500
	next.Scanner.RequireOpenSurface = false
	next.Scanner.DefaultMode = "receiving"
	next.Logging.Level = "debug"
	if err := d.Reload(&next); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	params := d.Classifier().Params()
	if params.MinLength != 6 || params.QuietPeriod != 500*time.Millisecond || params.RequireOpenSurface {
		t.Fatalf("global params = %+v", params)
	}
	if d.Mode() != scan.ModeReceiving {
		t.Fatalf("mode = %v", d.Mode())
	}
	if level.Level() != slog.LevelDebug {
		t.Fatalf("level = %v", level.Level())
	}
	for _, s := range d.liveSessions() {
		sp := s.classifier.Params()
		if sp.MinLength != 6 || !sp.RequireOpenSurface {
			t.Fatalf("session params = %+v", sp)
		}
		if s.classifier.Mode() != scan.ModeReceiving {
			t.Fatalf("session mode = %v", s.classifier.Mode())
		}
	}

	// An unchanged default mode leaves a runtime mode selection alone.
	if _, err := d.SetMode("lookup"); err != nil {
		t.Fatal(err)
	}
	next.Scanner.MinLength = 7
	if err := d.Reload(&next); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	if d.Mode() != scan.ModeLookup {
		t.Fatalf("mode = %v, want lookup", d.Mode())
	}

	bad := next
	bad.Scanner.MinLength = 0
	if err := d.Reload(&bad); err == nil {
		t.Fatal("invalid thresholds should be rejected")
	}
	if d.Classifier().Params().MinLength != 7 {
		t.Fatal("rejected reload must keep the previous params")
	}
}

func writeConfigFile(t *testing.T, path string, cfg *config.Config, minLength int) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[scanner]
min_length = %d

[devices]
match = []
hotplug = false
`, cfg.Paths.StateDir, cfg.Paths.LogDir, minLength)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestDaemonWatchesConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.WatchConfig = true
	path := filepath.Join(testsupport.BaseDir(cfg), "wedge.toml")
	writeConfigFile(t, path, cfg, cfg.Scanner.MinLength)

	d := newTestDaemon(t, cfg, WithConfigPath(path))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := d.Status(context.Background()).ConfigPath; got != path {
		t.Fatalf("config path = %q", got)
	}

	writeConfigFile(t, path, cfg, 0)
	time.Sleep(3 * reloadDebounce)
	if d.Classifier().Params().MinLength != cfg.Scanner.MinLength {
		t.Fatal("invalid config must not be applied")
	}

	writeConfigFile(t, path, cfg, 9)
	waitFor(t, "config reload", func() bool { return d.Classifier().Params().MinLength == 9 })
}
