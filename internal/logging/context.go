package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (scan_classified, audit_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldScanID identifies a scan event.
	FieldScanID = "scan_id"
	// FieldMode is the scan mode label.
	FieldMode = "mode"
	// FieldScanSource is the input path that produced a scan.
	FieldScanSource = "scan_source"
	// FieldDevice is an input or video device path.
	FieldDevice = "device"
	// FieldSessionID identifies a browser scanning session.
	FieldSessionID = "session_id"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey int

const (
	sessionIDKey contextKey = iota
	deviceKey
	requestIDKey
)

// WithSessionID stores a browser session identifier on ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// WithDevice stores an input device path on ctx.
func WithDevice(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, deviceKey, path)
}

// WithRequestID stores a request correlation identifier on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := ctx.Value(sessionIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if device, ok := ctx.Value(deviceKey).(string); ok && device != "" {
		fields = append(fields, slog.String(FieldDevice, device))
	}
	if rid, ok := ctx.Value(requestIDKey).(string); ok && rid != "" {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
