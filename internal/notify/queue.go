package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultQueueKey = "notifications:pending"

// Queue is a FIFO of notifications. Dequeue waits up to timeout and reports
// ok=false when nothing arrived; an empty queue is never an error.
type Queue interface {
	Enqueue(ctx context.Context, m Message) error
	Dequeue(ctx context.Context, timeout time.Duration) (m Message, ok bool, err error)
}

// NewQueue returns a redis backed queue when rdb is set and an in-process
// queue otherwise.
func NewQueue(rdb *redis.Client, key string) Queue {
	if rdb == nil {
		return NewMemoryQueue()
	}
	return NewRedisQueue(rdb, key)
}

// RedisQueue pushes to the tail of a redis list and pops from its head.
type RedisQueue struct {
	rdb redis.UniversalClient
	key string
}

func NewRedisQueue(rdb redis.UniversalClient, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, m Message) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("redis RPUSH %s: %w", q.key, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Message, bool, error) {
	var raw string
	if timeout <= 0 {
		// BLPOP with a zero timeout would block forever.
		v, err := q.rdb.LPop(ctx, q.key).Result()
		if errors.Is(err, redis.Nil) {
			return Message{}, false, nil
		}
		if err != nil {
			return Message{}, false, fmt.Errorf("redis LPOP %s: %w", q.key, err)
		}
		raw = v
	} else {
		vals, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			return Message{}, false, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, false, nil
			}
			return Message{}, false, fmt.Errorf("redis BLPOP %s: %w", q.key, err)
		}
		if len(vals) < 2 {
			return Message{}, false, nil
		}
		raw = vals[1]
	}

	m, err := UnmarshalMessage([]byte(raw))
	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

// MemoryQueue is an unbounded in-process FIFO. It stores encoded payloads
// the same way RedisQueue does.
type MemoryQueue struct {
	mu     sync.Mutex
	items  [][]byte
	signal chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{signal: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, m Message) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.wake()
	}
	return b, true
}

// Len reports the number of queued messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Message, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if b, ok := q.pop(); ok {
			m, err := UnmarshalMessage(b)
			if err != nil {
				return Message{}, false, err
			}
			return m, true, nil
		}
		select {
		case <-q.signal:
		case <-timer.C:
			if b, ok := q.pop(); ok {
				m, err := UnmarshalMessage(b)
				return m, err == nil, err
			}
			return Message{}, false, nil
		case <-ctx.Done():
			return Message{}, false, nil
		}
	}
}
