package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-svr/internal/codec"
	"telemetry-svr/internal/store"
)

type published struct {
	mu  sync.Mutex
	got []codec.Position
}

func (p *published) Publish(_ context.Context, pos codec.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, pos)
}

type failingSaver struct{}

func (failingSaver) Save(context.Context, codec.Position) (store.StoredPosition, error) {
	return store.StoredPosition{}, errors.New("database is down")
}

func TestHandleLineStoresAndPublishes(t *testing.T) {
	mem := store.NewMemory(0)
	pub := &published{}
	p := NewProcessor(mem, pub, nil)

	raw, err := codec.Encode("teltonika", codec.Position{
		DeviceID: "dev-1", Latitude: 19.4326, Longitude: -99.1332,
		Speed: codec.Float(45.5), Event: codec.String("tcp"),
	})
	require.NoError(t, err)
	require.NoError(t, p.HandleLine(context.Background(), "teltonika|"+string(raw)))

	latest, ok, err := mem.Latest(context.Background(), "dev-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, codec.String("tcp"), latest.Event)
	assert.Equal(t, codec.Float(45.5), latest.Speed)

	require.Len(t, pub.got, 1)
	assert.Equal(t, "dev-1", pub.got[0].DeviceID)
}

func TestHandleLineGenericFallback(t *testing.T) {
	mem := store.NewMemory(0)
	pub := &published{}
	p := NewProcessor(mem, pub, nil)

	require.NoError(t, p.HandleLine(context.Background(), "dev-1,40.0,-3.0,50.0"))
	assert.Equal(t, 1, mem.Count("dev-1"))
	require.Len(t, pub.got, 1)
}

func TestHandleLineDecodeErrorPublishesNothing(t *testing.T) {
	mem := store.NewMemory(0)
	pub := &published{}
	p := NewProcessor(mem, pub, nil)

	err := p.HandleLine(context.Background(), "gt06|7878")
	assert.ErrorIs(t, err, codec.ErrUnknownProtocol)

	err = p.HandleLine(context.Background(), "garbage")
	assert.ErrorIs(t, err, codec.ErrMalformed)

	assert.Empty(t, pub.got)
	assert.Zero(t, mem.Count("garbage"))
}

func TestHandleLineSaveErrorPublishesNothing(t *testing.T) {
	pub := &published{}
	p := NewProcessor(failingSaver{}, pub, nil)

	err := p.HandleLine(context.Background(), "dev-1,1,2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save position dev-1")
	assert.Empty(t, pub.got)
}
