package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"telemetry-svr/internal/observability"
)

const (
	defaultPollTimeout = time.Second
	errorBackoff       = 100 * time.Millisecond
	maxRetryDelay      = 5 * time.Second
)

type Options struct {
	// PollTimeout bounds each dequeue wait so the worker notices Stop.
	PollTimeout time.Duration
	// MaxAttempts per message. 1 (the default) means a failed send is
	// logged and dropped; higher values retry with exponential backoff.
	MaxAttempts int
	// RetryDelay is the first backoff delay when MaxAttempts > 1.
	RetryDelay time.Duration
}

// Service couples a Queue with a Dispatcher and runs the single worker that
// drains one into the other.
type Service struct {
	queue      Queue
	dispatcher *Dispatcher
	opts       Options
	lg         *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(q Queue, d *Dispatcher, opts Options, lg *slog.Logger) *Service {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = errorBackoff
	}
	if lg == nil {
		lg = slog.Default()
	}
	return &Service{queue: q, dispatcher: d, opts: opts, lg: lg.With("component", "notify")}
}

// Enqueue hands m to the queue and returns without waiting for delivery.
func (s *Service) Enqueue(ctx context.Context, m Message) error {
	if err := s.queue.Enqueue(ctx, m); err != nil {
		return err
	}
	observability.NotificationsEnqueued.WithLabelValues(channelLabel(m.Channel)).Inc()
	return nil
}

// Start launches the worker. Calling Start while a worker is running is a
// no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningLocked() {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		s.loop(ctx)
	}()
	s.lg.Info("notification worker started")
}

// Running reports whether the worker is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Service) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Stop cancels the worker and waits for it to return.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Service) loop(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			var dqErr *dequeueError
			if errors.As(err, &dqErr) {
				sleepCtx(ctx, errorBackoff)
			}
		}
	}
}

type dequeueError struct{ err error }

func (e *dequeueError) Error() string { return "dequeue: " + e.err.Error() }
func (e *dequeueError) Unwrap() error { return e.err }

// RunOnce waits up to PollTimeout for one message and dispatches it. It
// reports whether a message was taken from the queue.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	m, ok, err := s.queue.Dequeue(ctx, s.opts.PollTimeout)
	if err != nil {
		s.lg.Error("notification dequeue failed", "err", err)
		return false, &dequeueError{err: err}
	}
	if !ok {
		return false, nil
	}
	return true, s.deliver(ctx, m)
}

func (s *Service) deliver(ctx context.Context, m Message) error {
	label := channelLabel(m.Channel)
	delay := s.opts.RetryDelay

	var err error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		var res Result
		res, err = s.dispatcher.Dispatch(ctx, m)
		if err == nil {
			observability.NotificationDeliveries.WithLabelValues(label, "sent").Inc()
			s.lg.Debug("notification sent", "channel", m.Channel, "recipient", m.Recipient, "result", res)
			return nil
		}
		if errors.Is(err, ErrUnsupportedChannel) {
			observability.NotificationDeliveries.WithLabelValues(label, "unsupported").Inc()
			s.lg.Error("notification dropped", "channel", m.Channel, "recipient", m.Recipient, "err", err)
			return err
		}
		observability.NotificationDeliveries.WithLabelValues(label, "failed").Inc()
		if attempt == s.opts.MaxAttempts || !sleepCtx(ctx, delay) {
			break
		}
		s.lg.Warn("notification send failed, retrying", "channel", m.Channel, "attempt", attempt, "err", err)
		delay = min(delay*2, maxRetryDelay)
	}
	s.lg.Error("could not dispatch notification", "channel", m.Channel, "recipient", m.Recipient, "err", err)
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func channelLabel(c Channel) string {
	if c.Valid() {
		return string(c)
	}
	return "unsupported"
}
