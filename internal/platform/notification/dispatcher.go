package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher delivers notifications on a background worker. Enqueue never
// blocks; a full queue drops the message with a warning.
type Dispatcher struct {
	manager     *Manager
	logger      zerolog.Logger
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan *Notification
	wg     sync.WaitGroup
}

func NewDispatcher(manager *Manager, queueSize int, logger zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		manager:     manager,
		logger:      logger.With().Str("component", "notification_dispatcher").Logger(),
		sendTimeout: 30 * time.Second,
		queue:       make(chan *Notification, queueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		if err := d.manager.Send(ctx, n); err != nil {
			d.logger.Error().Err(err).
				Str("notification_id", n.ID).
				Str("channel", string(n.Type)).
				Int("attempts", n.Attempts).
				Msg("notification delivery failed")
		}
		cancel()
	}
}

// Enqueue schedules n for delivery and reports whether it was accepted.
func (d *Dispatcher) Enqueue(n *Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		d.logger.Warn().Str("channel", string(n.Type)).Str("template_id", n.TemplateID).Msg("notification queue full, dropping")
		return false
	}
}

// Close stops accepting work and waits for queued notifications to be sent
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
