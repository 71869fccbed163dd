package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"telemetry-svr/internal/codec"
)

const defaultHistory = 1000

// Connect opens a redis client and checks it with PING.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Redis stores the latest position of each device under dev:<id>:last and
// a bounded history list under dev:<id>:positions (newest first).
type Redis struct {
	rdb     redis.UniversalClient
	history int64
}

func NewRedis(rdb redis.UniversalClient, history int) *Redis {
	if history <= 0 {
		history = defaultHistory
	}
	return &Redis{rdb: rdb, history: int64(history)}
}

func lastKey(id string) string    { return "dev:" + id + ":last" }
func historyKey(id string) string { return "dev:" + id + ":positions" }
func seqKey(id string) string     { return "dev:" + id + ":seq" }

func (r *Redis) Save(ctx context.Context, p codec.Position) (StoredPosition, error) {
	if err := validate(p); err != nil {
		return StoredPosition{}, err
	}
	id, err := r.rdb.Incr(ctx, seqKey(p.DeviceID)).Result()
	if err != nil {
		return StoredPosition{}, fmt.Errorf("redis INCR %s: %w", seqKey(p.DeviceID), err)
	}

	sp := StoredPosition{Position: p, ID: id, ReceivedAt: time.Now().UTC()}
	b, err := json.Marshal(sp)
	if err != nil {
		return StoredPosition{}, err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, lastKey(p.DeviceID), b, 0)
	pipe.LPush(ctx, historyKey(p.DeviceID), b)
	pipe.LTrim(ctx, historyKey(p.DeviceID), 0, r.history-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return StoredPosition{}, fmt.Errorf("redis save %s: %w", p.DeviceID, err)
	}
	return sp, nil
}

func (r *Redis) Latest(ctx context.Context, deviceID string) (StoredPosition, bool, error) {
	b, err := r.rdb.Get(ctx, lastKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StoredPosition{}, false, nil
	}
	if err != nil {
		return StoredPosition{}, false, fmt.Errorf("redis GET %s: %w", lastKey(deviceID), err)
	}
	var sp StoredPosition
	if err := json.Unmarshal(b, &sp); err != nil {
		return StoredPosition{}, false, fmt.Errorf("decode %s: %w", lastKey(deviceID), err)
	}
	return sp, true, nil
}

// History returns up to n recent positions, newest first.
func (r *Redis) History(ctx context.Context, deviceID string, n int) ([]StoredPosition, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := r.rdb.LRange(ctx, historyKey(deviceID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE %s: %w", historyKey(deviceID), err)
	}
	out := make([]StoredPosition, 0, len(vals))
	for _, v := range vals {
		var sp StoredPosition
		if err := json.Unmarshal([]byte(v), &sp); err != nil {
			continue
		}
		out = append(out, sp)
	}
	return out, nil
}
