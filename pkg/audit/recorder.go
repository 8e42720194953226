package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultWriteTimeout bounds a single Append call.
const DefaultWriteTimeout = 2 * time.Second

// Recorder writes verification records on a best-effort basis.
//
// Record never returns an error and never blocks on a full buffer: the
// verification result has already been decided when it is called, and a broken
// audit sink must not change it.
type Recorder struct {
	store        Store
	logger       *slog.Logger
	writeTimeout time.Duration
	dropped      prometheus.Counter
	failed       prometheus.Counter
	now          func() time.Time

	records chan Record
	wg      sync.WaitGroup
	async   bool

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// RecorderOption configures the Recorder.
type RecorderOption func(*Recorder)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Records are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) RecorderOption {
	return func(r *Recorder) {
		if size > 0 {
			r.records = make(chan Record, size)
			r.async = true
		}
	}
}

// WithLogger sets the logger for dropped and failed records.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithDropCounter counts records dropped on a full buffer.
func WithDropCounter(c prometheus.Counter) RecorderOption {
	return func(r *Recorder) {
		r.dropped = c
	}
}

// WithFailureCounter counts records the store refused.
func WithFailureCounter(c prometheus.Counter) RecorderOption {
	return func(r *Recorder) {
		r.failed = c
	}
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:        store,
		logger:       slog.New(slog.DiscardHandler),
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.async {
		r.wg.Add(1)
		go r.process()
	}
	return r
}

// Record stores rec, filling in its ID and timestamp when missing.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now().UTC()
	}

	if !r.async {
		r.write(context.WithoutCancel(ctx), rec)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(rec, "recorder closed")
		return
	}
	// Non-blocking send; the verification hot path never waits on the audit sink.
	select {
	case r.records <- rec:
	default:
		r.drop(rec, "audit buffer full")
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		if !r.async {
			return
		}
		r.mu.Lock()
		r.closed = true
		close(r.records)
		r.mu.Unlock()
		r.wg.Wait()
	})
}

func (r *Recorder) process() {
	defer r.wg.Done()
	for rec := range r.records {
		r.write(context.Background(), rec)
	}
}

func (r *Recorder) write(ctx context.Context, rec Record) {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if err := r.store.Append(ctx, rec); err != nil {
		if r.failed != nil {
			r.failed.Inc()
		}
		r.logger.Warn("failed to persist verification record",
			"error", err,
			"badge_token", rec.BadgeToken,
			"outcome", rec.Outcome,
		)
	}
}

func (r *Recorder) drop(rec Record, reason string) {
	if r.dropped != nil {
		r.dropped.Inc()
	}
	r.logger.Warn("verification record dropped",
		"reason", reason,
		"badge_token", rec.BadgeToken,
		"outcome", rec.Outcome,
	)
}
