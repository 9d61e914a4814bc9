package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// consoleTimeLayout keeps milliseconds; keystroke timing is unreadable at
// second resolution.
const consoleTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// leadingKeys are printed first, in this order, when present.
var leadingKeys = []string{
	FieldEventType,
	FieldScanID,
	FieldMode,
	FieldScanSource,
	FieldDevice,
	FieldSessionID,
}

var levelColors = map[string]text.Colors{
	"DEBUG": {text.FgHiBlack},
	"INFO":  {text.FgCyan},
	"WARN":  {text.FgYellow},
	"ERROR": {text.FgRed, text.Bold},
}

// consoleOutput is shared by every handler derived from one logger.
type consoleOutput struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

type field struct {
	key   string
	value string
}

// consoleHandler renders "timestamp LEVEL component: message key=value...".
// Attributes bound through WithAttrs are formatted once and reused.
type consoleHandler struct {
	out       *consoleOutput
	level     slog.Leveler
	addSource bool
	component string
	prefix    string
	bound     []field
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{
		out:       &consoleOutput{w: w, color: isTerminal(w)},
		level:     lvl,
		addSource: addSource,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := slices.Clone(h.bound)
	component := h.component
	record.Attrs(func(attr slog.Attr) bool {
		component = h.collect(&fields, h.prefix, attr, component)
		return true
	})
	slices.SortStableFunc(fields, func(a, b field) int {
		return leadRank(a.key) - leadRank(b.key)
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	label := levelLabel(record.Level)
	if h.out.color {
		label = levelColors[label].Sprint(label)
	}

	var b strings.Builder
	b.WriteString(ts.Format(consoleTimeLayout))
	b.WriteString(" " + label + " ")
	if component != "" {
		b.WriteString(component + ": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range fields {
		b.WriteString(" " + f.key + "=" + f.value)
	}
	b.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := io.WriteString(h.out.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.bound = slices.Clone(h.bound)
	for _, attr := range attrs {
		next.component = h.collect(&next.bound, h.prefix, attr, next.component)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// collect appends the formatted attribute to fields, flattening groups into
// dotted keys. A top-level component attribute is returned instead; the
// innermost one wins.
func (h *consoleHandler) collect(fields *[]field, prefix string, attr slog.Attr, component string) string {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return component
	}
	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += attr.Key + "."
		}
		for _, inner := range attr.Value.Group() {
			component = h.collect(fields, prefix, inner, component)
		}
		return component
	}
	if prefix == "" && attr.Key == FieldComponent {
		return plainValue(attr.Value)
	}
	if attr.Key == "" {
		return component
	}
	*fields = append(*fields, field{key: prefix + attr.Key, value: quoteIfNeeded(plainValue(attr.Value))})
	return component
}

func leadRank(key string) int {
	if i := slices.Index(leadingKeys, key); i >= 0 {
		return i
	}
	return len(leadingKeys)
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(consoleTimeLayout)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
