package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"wedge/internal/scan"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateScanner() error {
	if _, err := scan.ParseMode(c.Scanner.DefaultMode); err != nil {
		return fmt.Errorf("scanner.default_mode: %w", err)
	}
	if c.Scanner.MinLength <= 0 {
		return errors.New("scanner.min_length must be positive")
	}
	if c.Scanner.InterKeyThresholdMS <= 0 {
		return errors.New("scanner.inter_key_threshold_ms must be positive")
	}
	if c.Scanner.QuietPeriodMS <= 0 {
		return errors.New("scanner.quiet_period_ms must be positive")
	}
	if c.Scanner.QuietPeriodMS < c.Scanner.InterKeyThresholdMS {
		return errors.New("scanner.quiet_period_ms must not be shorter than scanner.inter_key_threshold_ms")
	}
	if c.Scanner.IdleTimeoutMS <= 0 {
		return errors.New("scanner.idle_timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateCamera() error {
	if !c.Camera.Enabled {
		return nil
	}
	if c.Camera.Device == "" {
		return errors.New("camera.device must be set when camera.enabled is true")
	}
	if c.Camera.DecoderBinary == "" {
		return errors.New("camera.decoder_binary must be set when camera.enabled is true")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.Endpoint != "" {
		parsed, err := url.Parse(c.Audit.Endpoint)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("audit.endpoint must be an http(s) URL, got %q", c.Audit.Endpoint)
		}
	}
	if c.Audit.RequestTimeout <= 0 {
		return errors.New("audit.request_timeout must be positive")
	}
	if c.Audit.ShutdownTimeout <= 0 {
		return errors.New("audit.shutdown_timeout must be positive")
	}
	if c.Audit.QueueSize <= 0 {
		return errors.New("audit.queue_size must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
