package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-svr/internal/codec"
)

func newRedisStore(t *testing.T, history int) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, history), mr
}

func position(id string, lat float64) codec.Position {
	return codec.Position{
		DeviceID:  id,
		Latitude:  lat,
		Longitude: -3.5,
		Speed:     codec.Float(42),
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Latest(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := s.Save(ctx, position("dev-1", 10))
	require.NoError(t, err)
	second, err := s.Save(ctx, position("dev-1", 11))
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	latest, ok, err := s.Latest(ctx, "dev-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 11.0, latest.Latitude)
	require.NotNil(t, latest.Speed)
	assert.Equal(t, 42.0, *latest.Speed)
	assert.True(t, latest.Timestamp.Equal(position("dev-1", 0).Timestamp))

	_, err = s.Save(ctx, codec.Position{Latitude: 1})
	assert.ErrorIs(t, err, ErrInvalidPosition)
	_, err = s.Save(ctx, codec.Position{DeviceID: "dev-2"})
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory(0)
	exerciseStore(t, m)
	assert.Equal(t, 2, m.Count("dev-1"))
	assert.Zero(t, m.Count("dev-2"))
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t, 0)
	exerciseStore(t, s)
}

func TestRedisHistoryIsBounded(t *testing.T) {
	s, mr := newRedisStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Save(ctx, position("dev-9", float64(i)))
		require.NoError(t, err)
	}

	got, err := s.History(ctx, "dev-9", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 4.0, got[0].Latitude)
	assert.Equal(t, 2.0, got[2].Latitude)

	seq, err := mr.Get(seqKey("dev-9"))
	require.NoError(t, err)
	assert.Equal(t, "5", seq)
}

func TestMemoryHistoryIsBounded(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()

	var last StoredPosition
	for i := 0; i < 5; i++ {
		sp, err := m.Save(ctx, position("dev-9", float64(i)))
		require.NoError(t, err)
		last = sp
	}
	assert.Equal(t, 3, m.Count("dev-9"))
	assert.EqualValues(t, 5, last.ID)

	got, err := m.History(ctx, "dev-9", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 4.0, got[0].Latitude)
	assert.Equal(t, 2.0, got[2].Latitude)

	latest, ok, err := m.Latest(ctx, "dev-9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4.0, latest.Latitude)
}

func TestRedisSaveFailsWhenServerDown(t *testing.T) {
	s, mr := newRedisStore(t, 0)
	mr.Close()

	_, err := s.Save(context.Background(), position("dev-1", 1))
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	rdb, err := Connect(context.Background(), addr, 0)
	require.NoError(t, err)
	require.NoError(t, rdb.Close())

	mr.Close()
	_, err = Connect(context.Background(), addr, 0)
	assert.Error(t, err)
}
