package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wedge/internal/logging"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if content := readLog(t, logPath); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerOrdersScanFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-fields.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "scan-classifier").Info("scan classified",
		logging.Int("length", 8),
		logging.String(logging.FieldMode, "picking"),
		logging.String(logging.FieldEventType, "scan_classified"),
	)

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO scan-classifier: scan classified") {
		t.Fatalf("missing component prefix: %q", content)
	}
	eventIdx := strings.Index(content, "event_type=scan_classified")
	modeIdx := strings.Index(content, "mode=picking")
	lengthIdx := strings.Index(content, "length=8")
	if eventIdx < 0 || modeIdx < 0 || lengthIdx < 0 {
		t.Fatalf("missing fields: %q", content)
	}
	if !(eventIdx < modeIdx && modeIdx < lengthIdx) {
		t.Fatalf("unexpected field order: %q", content)
	}
	if strings.Contains(content, "component=") {
		t.Fatalf("component should be rendered as prefix only: %q", content)
	}
}

func TestJSONLoggerShape(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("audit delivery failed", logging.String(logging.FieldEventType, "audit_failed"))

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if record["level"] != "warn" {
		t.Fatalf("level = %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record[logging.FieldEventType] != "audit_failed" {
		t.Fatalf("event_type = %v", record[logging.FieldEventType])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"invalid": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := logging.ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelVarAdjustsAtRuntime(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	levelVar := new(slog.LevelVar)
	logger, err := logging.New(logging.Options{Level: "info", OutputPaths: []string{logPath}, LevelVar: levelVar})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	levelVar.Set(slog.LevelDebug)
	logger.Debug("visible")

	content := readLog(t, logPath)
	if strings.Contains(content, "hidden") || !strings.Contains(content, "visible") {
		t.Fatalf("unexpected output %q", content)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := logging.WithSessionID(context.Background(), "sess-1")
	ctx = logging.WithDevice(ctx, "/dev/input/event7")
	ctx = logging.WithRequestID(ctx, "req-xyz")
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		logging.FieldSessionID:     "sess-1",
		logging.FieldDevice:        "/dev/input/event7",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %s", key, record[key], value)
		}
	}
}

func TestWarnStatesImpactAndHint(t *testing.T) {
	tests := []struct {
		name       string
		problem    logging.Problem
		wantImpact string
		wantHint   string
	}{
		{
			name:       "explicit",
			problem:    logging.Problem{Event: "device_lost", Impact: "scanner offline", Hint: "replug the scanner"},
			wantImpact: "scanner offline",
			wantHint:   "replug the scanner",
		},
		{
			name:       "defaults",
			problem:    logging.Problem{Event: "device_lost"},
			wantImpact: "scanning continues with reduced functionality",
			wantHint:   "check the daemon log for details",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			logging.Warn(logger, "device vanished", tt.problem, logging.String(logging.FieldDevice, "/dev/input/event3"))

			var record map[string]any
			if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if record["level"] != "WARN" || record[logging.FieldEventType] != "device_lost" {
				t.Fatalf("record = %v", record)
			}
			if record[logging.FieldImpact] != tt.wantImpact || record[logging.FieldErrorHint] != tt.wantHint {
				t.Fatalf("impact = %v, hint = %v", record[logging.FieldImpact], record[logging.FieldErrorHint])
			}
			if record[logging.FieldDevice] != "/dev/input/event3" {
				t.Fatalf("device = %v", record[logging.FieldDevice])
			}
		})
	}
	logging.Warn(nil, "ignored", logging.Problem{Event: "noop"})
}

func TestConsoleLoggerGroupsAndQuoting(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-groups.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	base := logging.NewComponentLogger(logger, "daemon").With(logging.String(logging.FieldDevice, "/dev/input/event3"))
	audit := logging.NewComponentLogger(base, "audit")
	audit.WithGroup("sink").Info("delivery failed",
		logging.String("name", "http"),
		logging.String("reason", "status 502 bad gateway"),
		logging.String("empty", ""),
	)

	content := readLog(t, logPath)
	for _, want := range []string{
		"INFO audit: delivery failed",
		"device=/dev/input/event3",
		"sink.name=http",
		`sink.reason="status 502 bad gateway"`,
		`sink.empty=""`,
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("missing %q in %q", want, content)
		}
	}
	if strings.Index(content, "device=") > strings.Index(content, "sink.name=") {
		t.Fatalf("leading field not first: %q", content)
	}
}
