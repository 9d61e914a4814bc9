// Package logging assembles the slog loggers used by the wedge daemon and CLI.
//
// It owns the console and JSON handlers, level parsing, and the standard
// field keys (component, event_type, scan_id, mode, device, session_id) so
// every component emits log lines with the same shape. A no-op logger is
// provided for tests and for wiring code that runs before configuration is
// loaded.
package logging
