package scan

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wedge/internal/logging"
)

// State is the keystroke state machine position.
type State int

const (
	// StateIdle means no characters are buffered.
	StateIdle State = iota
	// StateAccumulating means characters are buffered and a scan may be in
	// progress.
	StateAccumulating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(c *Classifier) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithAuditor sets the audit collaborator.
func WithAuditor(auditor Auditor) Option {
	return func(c *Classifier) {
		if auditor != nil {
			c.auditor = auditor
		}
	}
}

// WithActor sets the actor identifier attached to audit entries.
func WithActor(actorID string) Option {
	return func(c *Classifier) {
		c.actorID = strings.TrimSpace(actorID)
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logging.NewComponentLogger(logger, "scan-classifier")
	}
}

// WithHistory shares an existing history instead of allocating one.
func WithHistory(history *History) Option {
	return func(c *Classifier) {
		if history != nil {
			c.history = history
		}
	}
}

// WithIDFunc replaces the event identifier generator.
func WithIDFunc(fn func() string) Option {
	return func(c *Classifier) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithListener registers fn to receive every completed event after the
// handler has run.
func WithListener(fn func(Event)) Option {
	return func(c *Classifier) {
		if fn != nil {
			c.listeners = append(c.listeners, fn)
		}
	}
}

// Classifier turns key events into scans. All methods are safe for concurrent
// use; events are serialized so the classifier behaves as a single-threaded
// state machine.
type Classifier struct {
	clock   Clock
	handler Handler
	auditor Auditor
	actorID string
	logger  *slog.Logger
	history *History
	newID   func() string

	listeners []func(Event)

	mu          sync.Mutex
	params      Params
	mode        Mode
	buffer      []byte
	observed    string
	lastKey     time.Time
	rapid       bool
	timer       Timer
	timerGen    uint64
	surfaceOpen bool
	surfaceHook func()
	sources     map[uint64]func()
	nextSource  uint64
	closed      bool
}

// NewClassifier builds a classifier that reports scans to handler.
func NewClassifier(params Params, mode Mode, handler Handler, opts ...Option) (*Classifier, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("initial mode: %w: %d", ErrUnknownMode, int(mode))
	}
	if handler == nil {
		handler = func(string, Mode) {}
	}
	c := &Classifier{
		clock:   SystemClock(),
		handler: handler,
		auditor: noopAuditor{},
		logger:  logging.NewComponentLogger(nil, "scan-classifier"),
		newID:   uuid.NewString,
		params:  params,
		mode:    mode,
		sources: make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.history == nil {
		c.history = NewHistory(HistoryCapacity)
	}
	return c, nil
}

// OnKeyDown feeds one keystroke through the state machine.
func (c *Classifier) OnKeyDown(ev KeyEvent) {
	if ev.InTextInput {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	now := ev.Time
	if now.IsZero() {
		now = c.clock.Now()
	}

	var (
		emitted Event
		hook    func()
		ok      bool
	)
	switch {
	case IsTerminator(ev.Key):
		emitted, hook, ok = c.terminateLocked(now)
	case IsCodeChar(ev.Key):
		c.appendLocked(ev.Key[0], now)
	default:
		// Unrelated keys neither feed nor interrupt a scan in progress.
	}
	c.mu.Unlock()

	if ok {
		c.deliver(emitted, hook)
	}
}

// SubmitManual records a typed code without timing analysis.
func (c *Classifier) SubmitManual(text string) (Event, error) {
	return c.submit(text, SourceManual)
}

// SubmitDecoded records a camera-decoded code. It behaves exactly like
// SubmitManual apart from the event source.
func (c *Classifier) SubmitDecoded(text string) (Event, error) {
	return c.submit(text, SourceCamera)
}

func (c *Classifier) submit(text string, source Source) (Event, error) {
	code := strings.TrimSpace(text)
	if code == "" {
		return Event{}, ErrEmptyInput
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Event{}, ErrClosed
	}
	ev, hook := c.emitLocked(code, source, c.clock.Now())
	c.mu.Unlock()

	c.deliver(ev, hook)
	return ev, nil
}

// SetMode replaces the label applied to subsequent scans. A scan in progress
// keeps accumulating and is labelled with the mode current at completion.
func (c *Classifier) SetMode(mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != mode {
		c.logger.Debug("scan mode changed",
			logging.String(logging.FieldEventType, "scan_mode_changed"),
			logging.String("previous_mode", c.mode.String()),
			logging.String(logging.FieldMode, mode.String()),
		)
	}
	c.mode = mode
	return nil
}

// SetParams applies new thresholds. Any buffered keystrokes are discarded
// because they were timed against the old values.
func (c *Classifier) SetParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = params
	c.resetBufferLocked()
	return nil
}

// OpenSurface switches to lenient classification until the surface closes.
func (c *Classifier) OpenSurface() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.surfaceOpen {
		return
	}
	c.surfaceOpen = true
	c.resetBufferLocked()
	c.observed = ""
}

// CloseSurface closes the scanning surface and releases anything bound to it.
func (c *Classifier) CloseSurface() {
	c.mu.Lock()
	if !c.surfaceOpen {
		c.mu.Unlock()
		return
	}
	c.surfaceOpen = false
	c.resetBufferLocked()
	c.observed = ""
	hook := c.surfaceHook
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Attach subscribes the classifier to src and returns the function that
// detaches it. Close detaches every remaining source.
func (c *Classifier) Attach(src KeySource) (detach func(), err error) {
	if src == nil {
		return nil, errors.New("key source is required")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	id := c.nextSource
	c.nextSource++
	c.mu.Unlock()

	unsubscribe := src.Subscribe(c.OnKeyDown)
	var once sync.Once
	detach = func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.sources, id)
			c.mu.Unlock()
			if unsubscribe != nil {
				unsubscribe()
			}
		})
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		detach()
		return nil, ErrClosed
	}
	c.sources[id] = detach
	c.mu.Unlock()
	return detach, nil
}

// Close detaches all sources, cancels the pending timer and closes the
// surface. It is idempotent.
func (c *Classifier) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.resetBufferLocked()
	c.observed = ""
	detachers := make([]func(), 0, len(c.sources))
	for _, detach := range c.sources {
		detachers = append(detachers, detach)
	}
	var hook func()
	if c.surfaceOpen {
		c.surfaceOpen = false
		hook = c.surfaceHook
	}
	c.mu.Unlock()

	for _, detach := range detachers {
		detach()
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (c *Classifier) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Classifier) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

func (c *Classifier) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buffer) > 0 {
		return StateAccumulating
	}
	return StateIdle
}

// Pending returns the characters buffered since the last reset.
func (c *Classifier) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buffer)
}

// Observed returns the code collected by inactivity flushes while a surface is
// open.
func (c *Classifier) Observed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observed
}

func (c *Classifier) SurfaceOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surfaceOpen
}

// History returns recent scans, most recent first.
func (c *Classifier) History() []Event {
	return c.history.Entries()
}

func (c *Classifier) setSurfaceHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surfaceHook = fn
}

func (c *Classifier) strictLocked() bool {
	return c.params.RequireOpenSurface && !c.surfaceOpen
}

func (c *Classifier) appendLocked(ch byte, now time.Time) {
	if c.strictLocked() {
		if len(c.buffer) > 0 {
			gap := now.Sub(c.lastKey)
			switch {
			case gap > c.params.QuietPeriod:
				c.resetBufferLocked()
			case gap >= c.params.InterKeyThreshold:
				c.rapid = false
			}
		}
		if len(c.buffer) == 0 {
			c.rapid = true
		}
		c.buffer = append(c.buffer, ch)
		c.lastKey = now
		return
	}

	// A burst starting within QuietPeriod of the last key continues a slow
	// entry; anything later replaces the observed code instead of extending it.
	if len(c.buffer) == 0 && c.observed != "" && now.Sub(c.lastKey) > c.params.QuietPeriod {
		c.observed = ""
	}
	c.buffer = append(c.buffer, ch)
	c.lastKey = now
	c.restartTimerLocked()
}

func (c *Classifier) terminateLocked(now time.Time) (Event, func(), bool) {
	if c.strictLocked() {
		code := string(c.buffer)
		stale := len(c.buffer) > 0 && now.Sub(c.lastKey) > c.params.QuietPeriod
		accepted := !stale && c.rapid && len(c.buffer) >= c.params.MinLength
		c.resetBufferLocked()
		if !accepted {
			if code != "" {
				c.logger.Debug("keystroke burst rejected",
					logging.String(logging.FieldEventType, "scan_rejected"),
					logging.Int("length", len(code)),
					logging.Bool("rapid", !stale && c.rapid),
					logging.Bool("stale", stale),
				)
			}
			return Event{}, nil, false
		}
		ev, hook := c.emitLocked(code, SourceKeyboard, now)
		return ev, hook, true
	}

	code := c.observed + string(c.buffer)
	if code == "" {
		// A trailing Enter with nothing collected is swallowed so it cannot
		// submit an unrelated form.
		return Event{}, nil, false
	}
	ev, hook := c.emitLocked(code, SourceKeyboard, now)
	return ev, hook, true
}

// emitLocked creates the event, records it in history and resets all input
// state. The returned hook, when non-nil, must run after the lock is released.
func (c *Classifier) emitLocked(code string, source Source, now time.Time) (Event, func()) {
	ev := Event{
		ID:        c.newID(),
		Code:      code,
		Mode:      c.mode,
		Source:    source,
		Timestamp: now,
	}
	c.history.Add(ev)
	c.resetBufferLocked()
	c.observed = ""

	var hook func()
	if c.surfaceOpen {
		c.surfaceOpen = false
		hook = c.surfaceHook
	}
	return ev, hook
}

func (c *Classifier) deliver(ev Event, hook func()) {
	c.logger.Info("scan classified",
		logging.String(logging.FieldEventType, "scan_classified"),
		logging.String(logging.FieldScanID, ev.ID),
		logging.String(logging.FieldMode, ev.Mode.String()),
		logging.String(logging.FieldScanSource, string(ev.Source)),
		logging.Int("length", len(ev.Code)),
	)
	c.handler(ev.Code, ev.Mode)
	for _, fn := range c.listeners {
		fn(ev)
	}
	c.auditor.Record(AuditEntry{
		Code:      ev.Code,
		Mode:      ev.Mode,
		Source:    ev.Source,
		Timestamp: ev.Timestamp,
		ActorID:   c.actorID,
	})
	if hook != nil {
		hook()
	}
}

func (c *Classifier) restartTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.params.IdleTimeout, func() {
		c.onIdle(gen)
	})
}

func (c *Classifier) onIdle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.timerGen {
		return
	}
	c.timer = nil
	c.observed += string(c.buffer)
	c.buffer = c.buffer[:0]
}

func (c *Classifier) resetBufferLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
	c.buffer = c.buffer[:0]
	c.rapid = false
	c.lastKey = time.Time{}
}
