package testsupport

import (
	"path/filepath"
	"testing"

	"wedge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Host integrations (hot-plug, config watching, camera) start disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Devices.Match = nil
	cfgVal.Devices.Hotplug = false
	cfgVal.API.WatchConfig = false
	cfgVal.Audit.UserID = "tester"

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAuditEndpoint points audit delivery at url.
func WithAuditEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Audit.Endpoint = url
	}
}

// WithAPIToken requires bearer authentication on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithStubCamera enables the camera with a stub decoder script and a fake
// device node.
func WithStubCamera(script string) ConfigOption {
	return func(b *configBuilder) {
		device := filepath.Join(b.baseDir, "video0")
		WriteFile(b.t, device, 0)
		b.cfg.Camera.Enabled = true
		b.cfg.Camera.Device = device
		b.cfg.Camera.DecoderBinary = WriteExecutable(b.t, "zbarcam", script)
	}
}

// WithScanner adjusts the scanner section.
func WithScanner(fn func(*config.Scanner)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Scanner)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
