package config

import "wedge/internal/scan"

const (
	defaultStateDir             = "~/.local/share/wedge"
	defaultLogDir               = "~/.local/share/wedge/logs"
	defaultAPIBind              = "127.0.0.1:7489"
	defaultScanMode             = "lookup"
	defaultMinLength            = scan.DefaultMinLength
	defaultInterKeyThresholdMS  = 20
	defaultQuietPeriodMS        = 300
	defaultIdleTimeoutMS        = 100
	defaultCameraDevice         = "/dev/video0"
	defaultDecoderBinary        = "zbarcam"
	defaultAuditRequestTimeout  = 5
	defaultAuditQueueSize       = 256
	defaultAuditUserID          = "wedge"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultDeviceMatchPattern   = "barcode"
	defaultHotplugEnabled       = true
	defaultRequireOpenSurface   = true
	defaultAuditJournalEnabled  = true
	defaultCameraEnabled        = false
	defaultDeviceGrabEnabled    = true
	defaultConfigWatchEnabled   = true
	defaultWebsocketOrigin      = "http://localhost:3000"
	defaultAuditShutdownTimeout = 3
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Scanner: Scanner{
			DefaultMode:         defaultScanMode,
			RequireOpenSurface:  defaultRequireOpenSurface,
			MinLength:           defaultMinLength,
			InterKeyThresholdMS: defaultInterKeyThresholdMS,
			QuietPeriodMS:       defaultQuietPeriodMS,
			IdleTimeoutMS:       defaultIdleTimeoutMS,
		},
		Devices: Devices{
			Match:   []string{defaultDeviceMatchPattern},
			Grab:    defaultDeviceGrabEnabled,
			Hotplug: defaultHotplugEnabled,
		},
		Camera: Camera{
			Enabled:       defaultCameraEnabled,
			Device:        defaultCameraDevice,
			DecoderBinary: defaultDecoderBinary,
		},
		Audit: Audit{
			UserID:          defaultAuditUserID,
			RequestTimeout:  defaultAuditRequestTimeout,
			ShutdownTimeout: defaultAuditShutdownTimeout,
			QueueSize:       defaultAuditQueueSize,
			Journal:         defaultAuditJournalEnabled,
		},
		API: API{
			AllowedOrigins: []string{defaultWebsocketOrigin},
			WatchConfig:    defaultConfigWatchEnabled,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
