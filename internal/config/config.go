package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"wedge/internal/scan"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Scanner contains the keystroke classification thresholds.
type Scanner struct {
	DefaultMode         string `toml:"default_mode"`
	RequireOpenSurface  bool   `toml:"require_open_surface"`
	MinLength           int    `toml:"min_length"`
	InterKeyThresholdMS int    `toml:"inter_key_threshold_ms"`
	QuietPeriodMS       int    `toml:"quiet_period_ms"`
	IdleTimeoutMS       int    `toml:"idle_timeout_ms"`
}

// Devices selects which evdev input devices feed the global classifier.
type Devices struct {
	// Match holds case-insensitive name substrings or vendor:product ids.
	Match   []string `toml:"match"`
	Grab    bool     `toml:"grab"`
	Hotplug bool     `toml:"hotplug"`
}

// Camera configures the host-side decoder process.
type Camera struct {
	Enabled       bool     `toml:"enabled"`
	Device        string   `toml:"device"`
	DecoderBinary string   `toml:"decoder_binary"`
	DecoderArgs   []string `toml:"decoder_args"`
}

// Audit configures the scan log collaborator.
type Audit struct {
	Endpoint        string `toml:"endpoint"`
	Token           string `toml:"token"`
	UserID          string `toml:"user_id"`
	RequestTimeout  int    `toml:"request_timeout"`
	ShutdownTimeout int    `toml:"shutdown_timeout"`
	QueueSize       int    `toml:"queue_size"`
	Journal         bool   `toml:"journal"`
}

// API contains browser-facing server settings.
type API struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	WatchConfig    bool     `toml:"watch_config"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for wedge.
//
// Configuration sections by subsystem:
//   - Paths: state directory, logs and API bind address
//   - Scanner: classification thresholds and default mode
//   - Devices: evdev scanner selection, grabbing and hot-plug
//   - Camera: host decoder process
//   - Audit: scan log endpoint, journal and delivery queue
//   - API: browser origins and config hot-reload
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Scanner Scanner `toml:"scanner"`
	Devices Devices `toml:"devices"`
	Camera  Camera  `toml:"camera"`
	Audit   Audit   `toml:"audit"`
	API     API     `toml:"api"`
	Logging Logging `toml:"logging"`
}

const defaultConfigPath = "~/.config/wedge/config.toml"

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("wedge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ScanParams converts the scanner section into classifier parameters.
func (c *Config) ScanParams() scan.Params {
	return scan.Params{
		RequireOpenSurface: c.Scanner.RequireOpenSurface,
		MinLength:          c.Scanner.MinLength,
		InterKeyThreshold:  time.Duration(c.Scanner.InterKeyThresholdMS) * time.Millisecond,
		QuietPeriod:        time.Duration(c.Scanner.QuietPeriodMS) * time.Millisecond,
		IdleTimeout:        time.Duration(c.Scanner.IdleTimeoutMS) * time.Millisecond,
	}
}

// SurfaceParams returns the parameters used by browser sessions, which always
// host an explicit scanning surface.
func (c *Config) SurfaceParams() scan.Params {
	params := c.ScanParams()
	params.RequireOpenSurface = true
	return params
}

// DefaultMode returns the configured initial scan mode. Validate guarantees it parses.
func (c *Config) DefaultMode() scan.Mode {
	mode, err := scan.ParseMode(c.Scanner.DefaultMode)
	if err != nil {
		return scan.ModeLookup
	}
	return mode
}

// AuditTimeout returns the per-request audit timeout.
func (c *Config) AuditTimeout() time.Duration {
	return time.Duration(c.Audit.RequestTimeout) * time.Second
}

// AuditShutdownTimeout bounds how long pending audit entries are drained on exit.
func (c *Config) AuditShutdownTimeout() time.Duration {
	return time.Duration(c.Audit.ShutdownTimeout) * time.Second
}

// SocketPath is the IPC socket inside the state directory.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "wedge.sock")
}

// LockPath is the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "wedge.lock")
}

// JournalPath is the SQLite audit journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "audit.db")
}

// LogPath is the daemon log file.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "wedged.log")
}

// DecoderCommand returns the camera decoder argv.
func (c *Config) DecoderCommand() []string {
	args := c.Camera.DecoderArgs
	if len(args) == 0 {
		args = []string{"--raw", "--nodisplay"}
	}
	cmd := make([]string, 0, len(args)+2)
	cmd = append(cmd, c.Camera.DecoderBinary)
	cmd = append(cmd, args...)
	return append(cmd, c.Camera.Device)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration.
func Sample() string {
	return sampleConfig
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
