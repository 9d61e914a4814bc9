package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"wedge/internal/logging"
	"wedge/internal/scan"
)

const (
	defaultQueueSize      = 256
	defaultDeliverTimeout = 5 * time.Second
)

// RecorderOptions tunes the delivery queue.
type RecorderOptions struct {
	// QueueSize bounds pending entries; further entries are dropped.
	QueueSize int
	// Timeout bounds each sink delivery.
	Timeout time.Duration
	// UserID is used when an entry carries no actor.
	UserID string
}

// Stats counts delivery outcomes since the recorder started.
type Stats struct {
	Queued    uint64 `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Recorder is a fire-and-forget scan.Auditor.
type Recorder struct {
	sinks   []Sink
	timeout time.Duration
	userID  string
	logger  *slog.Logger

	mu     sync.RWMutex
	queue  chan scan.AuditEntry
	closed bool
	done   chan struct{}

	queued    atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewRecorder starts the delivery worker. With no sinks every entry is
// accepted and discarded.
func NewRecorder(opts RecorderOptions, logger *slog.Logger, sinks ...Sink) *Recorder {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDeliverTimeout
	}
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	r := &Recorder{
		sinks:   filtered,
		timeout: timeout,
		userID:  opts.UserID,
		logger:  logging.NewComponentLogger(logger, "audit"),
		queue:   make(chan scan.AuditEntry, size),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues entry without blocking.
func (r *Recorder) Record(entry scan.AuditEntry) {
	if entry.ActorID == "" {
		entry.ActorID = r.userID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- entry:
		r.queued.Add(1)
	default:
		r.dropped.Add(1)
		r.logger.Debug("audit queue full; entry dropped",
			logging.String(logging.FieldEventType, "audit_dropped"),
			logging.Int("queue_size", cap(r.queue)),
		)
	}
}

// Sinks returns the configured sink names.
func (r *Recorder) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, sink := range r.sinks {
		names = append(names, sink.Name())
	}
	return names
}

func (r *Recorder) Stats() Stats {
	return Stats{
		Queued:    r.queued.Load(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// Close stops accepting entries and drains the queue until ctx expires.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.queue {
		r.deliver(entry)
	}
}

func (r *Recorder) deliver(entry scan.AuditEntry) {
	for _, sink := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := sink.Deliver(ctx, entry)
		cancel()
		if err == nil {
			r.delivered.Add(1)
			continue
		}
		r.failed.Add(1)
		auditErr := &scan.AuditLogError{Code: entry.Code, Sink: sink.Name(), Err: err}
		r.logger.Debug("audit delivery failed",
			logging.String(logging.FieldEventType, "audit_failed"),
			logging.String(logging.FieldMode, entry.Mode.String()),
			logging.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			logging.Error(auditErr),
		)
	}
}
