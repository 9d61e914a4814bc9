package logging

import (
	"context"
	"log/slog"
	"time"
)

type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Error records err under the "error" key. A nil error is written as "<nil>"
// so the key is never silently dropped.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attributes into the variadic form accepted by slog.Logger.
func Args(attrs ...Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(discardHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger yields a
// tagged no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// Problem is what every WARN line must tell the operator.
type Problem struct {
	Event  string
	Impact string
	Hint   string
}

const (
	defaultImpact = "scanning continues with reduced functionality"
	defaultHint   = "check the daemon log for details"
)

// Warn logs msg at WARN level with the event type, impact and hint of p.
// Empty impact or hint fall back to generic text.
func Warn(logger *slog.Logger, msg string, p Problem, attrs ...Attr) {
	if logger == nil {
		return
	}
	impact, hint := p.Impact, p.Hint
	if impact == "" {
		impact = defaultImpact
	}
	if hint == "" {
		hint = defaultHint
	}
	all := make([]Attr, 0, len(attrs)+3)
	all = append(all, String(FieldEventType, p.Event))
	all = append(all, attrs...)
	all = append(all, String(FieldImpact, impact), String(FieldErrorHint, hint))
	logger.Warn(msg, Args(all...)...)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
