// Package live fans newly ingested positions out to observers.
//
// Two delivery styles share one Publish entry point. Push subscribers are
// registered handles that are sent every position; a failed send removes the
// subscriber. Pull consumers range over Stream, which reads from one shared
// queue, or over Watch, which gives each consumer its own queue.
package live

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"telemetry-svr/internal/codec"
	"telemetry-svr/internal/observability"
)

// Subscriber is a push capable observer. Implementations must be comparable
// (pointer types) since the broadcaster keys its set by handle.
type Subscriber interface {
	// Accept completes the transport handshake before the first Send.
	Accept(ctx context.Context) error
	Send(ctx context.Context, p codec.Position) error
}

type Config struct {
	// SendTimeout bounds each push delivery.
	SendTimeout time.Duration
	// StreamBuffer is the capacity of the shared stream queue and of each
	// watcher queue. When full, the oldest position is evicted.
	StreamBuffer int
}

func DefaultConfig() Config {
	return Config{SendTimeout: 5 * time.Second, StreamBuffer: 256}
}

type Broadcaster struct {
	cfg Config
	lg  *slog.Logger

	mu   sync.Mutex
	subs map[Subscriber]struct{}

	stream    chan codec.Position
	streamers atomic.Int32

	watchMu  sync.Mutex
	watchers map[chan codec.Position]struct{}
}

func New(cfg Config, lg *slog.Logger) *Broadcaster {
	def := DefaultConfig()
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = def.StreamBuffer
	}
	if lg == nil {
		lg = slog.Default()
	}
	return &Broadcaster{
		cfg:      cfg,
		lg:       lg.With("component", "live"),
		subs:     make(map[Subscriber]struct{}),
		stream:   make(chan codec.Position, cfg.StreamBuffer),
		watchers: make(map[chan codec.Position]struct{}),
	}
}

// Register accepts sub and adds it to the active set. A subscriber whose
// Accept fails is not added.
func (b *Broadcaster) Register(ctx context.Context, sub Subscriber) error {
	if err := sub.Accept(ctx); err != nil {
		return fmt.Errorf("accept subscriber: %w", err)
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	observability.Subscribers.Set(float64(n))
	b.lg.Debug("subscriber registered", "subscribers", n)
	return nil
}

// Unregister removes sub. Removing an unknown subscriber is a no-op.
func (b *Broadcaster) Unregister(sub Subscriber) {
	b.remove(sub)
}

func (b *Broadcaster) remove(sub Subscriber) bool {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	n := len(b.subs)
	b.mu.Unlock()

	observability.Subscribers.Set(float64(n))
	return ok
}

// Len reports the number of registered push subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) snapshot() []Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Subscriber, 0, len(b.subs))
	for s := range b.subs {
		out = append(out, s)
	}
	return out
}

// Publish delivers p to every registered subscriber, then removes the ones
// whose send failed (closing those that implement io.Closer), then queues p
// for Stream and Watch consumers.
func (b *Broadcaster) Publish(ctx context.Context, p codec.Position) {
	var failed []Subscriber
	for _, s := range b.snapshot() {
		sendCtx, cancel := context.WithTimeout(ctx, b.cfg.SendTimeout)
		err := s.Send(sendCtx, p)
		cancel()
		if err != nil {
			observability.Deliveries.WithLabelValues("failed").Inc()
			b.lg.Debug("subscriber send failed", "device", p.DeviceID, "err", err)
			failed = append(failed, s)
			continue
		}
		observability.Deliveries.WithLabelValues("ok").Inc()
	}

	for _, s := range failed {
		if b.remove(s) {
			observability.SubscribersPruned.Inc()
		}
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
	if len(failed) > 0 {
		b.lg.Info("pruned subscribers", "count", len(failed))
	}

	if b.streamers.Load() > 0 {
		offer(b.stream, p)
	}

	b.watchMu.Lock()
	for w := range b.watchers {
		offer(w, p)
	}
	b.watchMu.Unlock()
}

// offer enqueues p without blocking, evicting the oldest entry when full.
func offer(q chan codec.Position, p codec.Position) {
	for {
		select {
		case q <- p:
			return
		default:
		}
		select {
		case <-q:
			observability.StreamDropped.Inc()
		default:
		}
	}
}

// Stream yields positions from the shared queue until ctx is done.
//
// Every Stream consumer reads from the same queue, so two concurrent
// consumers each receive a share of the positions rather than all of them.
// Use Watch when every consumer must see every position. The queue is only
// filled while at least one Stream is open; a Stream counts as open from the
// call until ctx is done or the consumer stops ranging.
func (b *Broadcaster) Stream(ctx context.Context) iter.Seq[codec.Position] {
	b.streamers.Add(1)
	var once sync.Once
	release := func() { once.Do(func() { b.streamers.Add(-1) }) }
	stop := context.AfterFunc(ctx, release)

	return func(yield func(codec.Position) bool) {
		defer func() {
			stop()
			release()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-b.stream:
				if !yield(p) {
					return
				}
			}
		}
	}
}

// Streams reports the number of open Stream consumers.
func (b *Broadcaster) Streams() int {
	return int(b.streamers.Load())
}

// Watch registers a private queue immediately and yields every position
// published afterwards until ctx is done or the consumer stops ranging.
func (b *Broadcaster) Watch(ctx context.Context) iter.Seq[codec.Position] {
	q := make(chan codec.Position, b.cfg.StreamBuffer)
	b.watchMu.Lock()
	b.watchers[q] = struct{}{}
	b.watchMu.Unlock()

	stop := context.AfterFunc(ctx, func() { b.unwatch(q) })

	return func(yield func(codec.Position) bool) {
		defer func() {
			stop()
			b.unwatch(q)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-q:
				if !yield(p) {
					return
				}
			}
		}
	}
}

func (b *Broadcaster) unwatch(q chan codec.Position) {
	b.watchMu.Lock()
	delete(b.watchers, q)
	b.watchMu.Unlock()
}

// Watchers reports the number of active Watch queues.
func (b *Broadcaster) Watchers() int {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	return len(b.watchers)
}
