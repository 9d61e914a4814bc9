package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScanner()
	c.normalizeDevices()
	if err := c.normalizeCamera(); err != nil {
		return err
	}
	c.normalizeAudit()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("WEDGE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeScanner() {
	c.Scanner.DefaultMode = strings.ToLower(strings.TrimSpace(c.Scanner.DefaultMode))
	if c.Scanner.DefaultMode == "" {
		c.Scanner.DefaultMode = defaultScanMode
	}
}

func (c *Config) normalizeDevices() {
	patterns := make([]string, 0, len(c.Devices.Match))
	seen := make(map[string]struct{}, len(c.Devices.Match))
	for _, pattern := range c.Devices.Match {
		trimmed := strings.ToLower(strings.TrimSpace(pattern))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		patterns = append(patterns, trimmed)
	}
	c.Devices.Match = patterns
}

func (c *Config) normalizeCamera() error {
	c.Camera.Device = strings.TrimSpace(c.Camera.Device)
	if c.Camera.Device == "" {
		c.Camera.Device = defaultCameraDevice
	}
	c.Camera.DecoderBinary = strings.TrimSpace(c.Camera.DecoderBinary)
	if c.Camera.DecoderBinary == "" {
		c.Camera.DecoderBinary = defaultDecoderBinary
	}
	if strings.HasPrefix(c.Camera.DecoderBinary, "~") {
		expanded, err := expandPath(c.Camera.DecoderBinary)
		if err != nil {
			return fmt.Errorf("camera.decoder_binary: %w", err)
		}
		c.Camera.DecoderBinary = expanded
	}
	return nil
}

func (c *Config) normalizeAudit() {
	c.Audit.Endpoint = strings.TrimRight(strings.TrimSpace(c.Audit.Endpoint), "/")
	c.Audit.Token = strings.TrimSpace(c.Audit.Token)
	if c.Audit.Token == "" {
		if value, ok := os.LookupEnv("WEDGE_AUDIT_TOKEN"); ok {
			c.Audit.Token = strings.TrimSpace(value)
		}
	}
	c.Audit.UserID = strings.TrimSpace(c.Audit.UserID)
	if c.Audit.UserID == "" {
		c.Audit.UserID = defaultAuditUserID
	}
	if c.Audit.RequestTimeout == 0 {
		c.Audit.RequestTimeout = defaultAuditRequestTimeout
	}
	if c.Audit.ShutdownTimeout == 0 {
		c.Audit.ShutdownTimeout = defaultAuditShutdownTimeout
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = defaultAuditQueueSize
	}
}

func (c *Config) normalizeAPI() {
	origins := c.API.AllowedOrigins[:0]
	for _, origin := range c.API.AllowedOrigins {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.API.AllowedOrigins = origins
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
