package auditevent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/ehr/assessment/internal/platform/apperr"
	"github.com/ehr/assessment/internal/platform/telemetry"
)

// Mode selects audit durability.
type Mode string

const (
	// ModeAsync queues entries and never blocks the caller. A full queue
	// drops the entry.
	ModeAsync Mode = "async"
	// ModeSync writes before Record returns and reports failure.
	ModeSync Mode = "sync"
)

type WriterConfig struct {
	Mode           Mode
	QueueSize      int
	Workers        int
	MaxRetries     uint64
	RetryBase      time.Duration
	AttemptTimeout time.Duration
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Mode:           ModeAsync,
		QueueSize:      1024,
		Workers:        2,
		MaxRetries:     3,
		RetryBase:      50 * time.Millisecond,
		AttemptTimeout: 5 * time.Second,
	}
}

// Writer appends entries to the audit trail.
type Writer struct {
	repo    Repository
	cfg     WriterConfig
	logger  zerolog.Logger
	metrics telemetry.Recorder
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan *Entry
	wg     sync.WaitGroup
}

// NewWriter starts the async workers when cfg.Mode is ModeAsync.
func NewWriter(repo Repository, cfg WriterConfig, logger zerolog.Logger, metrics telemetry.Recorder) *Writer {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAsync
	}
	w := &Writer{
		repo:    repo,
		cfg:     cfg,
		logger:  logger.With().Str("component", "audit_writer").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
	if cfg.Mode == ModeAsync {
		if cfg.QueueSize <= 0 {
			cfg.QueueSize = 1024
		}
		if cfg.Workers <= 0 {
			cfg.Workers = 1
		}
		w.queue = make(chan *Entry, cfg.QueueSize)
		for i := 0; i < cfg.Workers; i++ {
			w.wg.Add(1)
			go w.work()
		}
	}
	return w
}

func (w *Writer) Mode() Mode {
	return w.cfg.Mode
}

// Record builds an entry from rec and persists it according to the mode. In
// async mode the returned error is always nil.
func (w *Writer) Record(ctx context.Context, rec Record) (*Entry, error) {
	details, err := redact(rec.Details, rec.Redact)
	if err != nil {
		return nil, apperr.Internal("encode audit details", err)
	}
	e := &Entry{
		ID:             uuid.New(),
		Action:         rec.Action,
		ModuleID:       rec.ModuleID,
		ModelID:        rec.ModelID,
		Outcome:        rec.Outcome,
		Details:        details,
		NetworkAddress: rec.NetworkAddress,
		UserAgent:      rec.UserAgent,
		RequestID:      rec.RequestID,
		RecordedAt:     w.now().UTC(),
	}
	if rec.ActorID != "" {
		actor := rec.ActorID
		e.ActorID = &actor
	}

	if w.cfg.Mode == ModeSync {
		if err := w.persist(ctx, e); err != nil {
			return e, apperr.AuditUnavailable(err)
		}
		return e, nil
	}
	w.enqueue(e)
	return e, nil
}

func (w *Writer) enqueue(e *Entry) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.drop(e, "writer closed")
		return
	}
	select {
	case w.queue <- e:
		w.metrics.SetGauge(telemetry.AuditQueueDepth, int64(len(w.queue)))
	default:
		w.drop(e, "queue full")
	}
}

func (w *Writer) drop(e *Entry, reason string) {
	w.metrics.Inc(telemetry.AuditEntriesDroppedTotal)
	w.logger.Warn().
		Str("audit_id", e.ID.String()).
		Str("action", e.Action).
		Str("request_id", e.RequestID).
		Str("reason", reason).
		Msg("audit entry dropped")
}

func (w *Writer) work() {
	defer w.wg.Done()
	for e := range w.queue {
		w.metrics.SetGauge(telemetry.AuditQueueDepth, int64(len(w.queue)))
		_ = w.persist(context.Background(), e)
	}
}

// persist writes e with bounded Fibonacci retries. Each attempt has its own
// timeout and none is tied to the caller's cancellation.
func (w *Writer) persist(ctx context.Context, e *Entry) error {
	ctx = context.WithoutCancel(ctx)
	backoff := retry.WithMaxRetries(w.cfg.MaxRetries, retry.NewFibonacci(w.retryBase()))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, w.attemptTimeout())
		defer cancel()
		if err := w.repo.SaveAuditEntry(actx, e); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		w.metrics.Inc(telemetry.AuditWriteFailuresTotal)
		w.logger.Error().Err(err).
			Str("audit_id", e.ID.String()).
			Str("action", e.Action).
			Str("request_id", e.RequestID).
			Int("attempts", attempts).
			Msg("audit write failed")
		return fmt.Errorf("save audit entry: %w", err)
	}
	w.metrics.Inc(telemetry.AuditEntriesWrittenTotal)
	return nil
}

func (w *Writer) retryBase() time.Duration {
	if w.cfg.RetryBase <= 0 {
		return 50 * time.Millisecond
	}
	return w.cfg.RetryBase
}

func (w *Writer) attemptTimeout() time.Duration {
	if w.cfg.AttemptTimeout <= 0 {
		return 5 * time.Second
	}
	return w.cfg.AttemptTimeout
}

// Close stops accepting entries and drains the queue, or gives up when ctx
// ends.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		if w.queue != nil {
			close(w.queue)
		}
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
