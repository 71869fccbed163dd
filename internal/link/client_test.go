package link

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-svr/internal/codec"
)

func TestDisabledForwarder(t *testing.T) {
	f := NewForwarder("", nil)
	require.NoError(t, f.Accept(context.Background()))
	assert.Equal(t, StateDisabled, f.State())
	assert.NoError(t, f.Send(context.Background(), codec.Position{DeviceID: "x"}))
}

func TestForwarderWritesNDJSON(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewForwarder(ln.Addr().String(), nil)
	require.NoError(t, f.Accept(ctx))

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)

	p := codec.Position{DeviceID: "dev-7", Latitude: 1.5, Longitude: 2.5, Timestamp: time.Now().UTC()}
	require.NoError(t, f.Send(ctx, p))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var got codec.Position
	require.NoError(t, json.Unmarshal(line, &got))
	assert.Equal(t, "dev-7", got.DeviceID)
	assert.Equal(t, 2.5, got.Longitude)
}

func TestForwarderDropsWhileDisconnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := NewForwarder(addr, nil)
	require.NoError(t, f.Accept(ctx))
	assert.NoError(t, f.Send(ctx, codec.Position{DeviceID: "dev"}))
	assert.Equal(t, StateDisconnected, f.State())
	assert.Equal(t, "disconnected", f.State().String())
}
