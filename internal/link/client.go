package link

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"telemetry-svr/internal/codec"
)

// Forwarder keeps a TCP link to an upstream socket proxy and writes each
// published position to it as one NDJSON line. It is registered with the
// live broadcaster as a push subscriber.
//
// The forwarder owns its reconnection: while the link is down positions are
// dropped and logged, and Send still reports success so the broadcaster
// keeps it registered.
type Forwarder struct {
	addr        string
	lg          *slog.Logger
	redialDelay time.Duration

	mu    sync.Mutex
	conn  net.Conn
	state State

	startOnce sync.Once
}

func NewForwarder(addr string, lg *slog.Logger) *Forwarder {
	if lg == nil {
		lg = slog.Default()
	}
	f := &Forwarder{
		addr:        addr,
		lg:          lg.With("component", "link"),
		redialDelay: 2 * time.Second,
		state:       StateDisconnected,
	}
	if addr == "" {
		f.state = StateDisabled
	}
	return f
}

// Accept starts the connect loop; it returns immediately and the loop runs
// until ctx is cancelled.
func (f *Forwarder) Accept(ctx context.Context) error {
	if f.addr == "" {
		f.lg.Info("link: disabled (no proxy address configured)")
		return nil
	}
	f.startOnce.Do(func() { go f.connectLoop(ctx) })
	return nil
}

// State reports the current link state.
func (f *Forwarder) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Forwarder) connectLoop(ctx context.Context) {
	var d net.Dialer
	for {
		c, err := d.DialContext(ctx, "tcp", f.addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.lg.Error("link: dial failed", "addr", f.addr, "err", err)
			if !sleep(ctx, f.redialDelay) {
				return
			}
			continue
		}

		f.setConn(c)
		f.lg.Info("link: connected", "remote", c.RemoteAddr().String())

		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		f.readLoop(c)
		stop()

		f.clearConn(c)
		if ctx.Err() != nil {
			return
		}
		f.lg.Warn("link: connection closed, reconnecting")
		if !sleep(ctx, f.redialDelay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (f *Forwarder) setConn(c net.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = c
	f.state = StateConnected
}

func (f *Forwarder) clearConn(c net.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == c {
		_ = f.conn.Close()
		f.conn = nil
		f.state = StateDisconnected
	}
}

// readLoop blocks until the proxy closes the link. Incoming lines are only
// logged.
func (f *Forwarder) readLoop(c net.Conn) {
	r := bufio.NewScanner(c)
	for r.Scan() {
		f.lg.Debug("link: incoming line", "line", r.Text())
	}
	if err := r.Err(); err != nil && err != io.EOF {
		f.lg.Warn("link: read error", "err", err)
	}
}

// Send writes p as one NDJSON line.
func (f *Forwarder) Send(ctx context.Context, p codec.Position) error {
	if f.addr == "" {
		return nil
	}
	if err := f.sendNDJSON(ctx, p); err != nil {
		f.lg.Warn("link: send tracking failed", "device", p.DeviceID, "err", err)
	}
	return nil
}

func (f *Forwarder) sendNDJSON(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("link: not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = f.conn.SetWriteDeadline(deadline)
	}
	if _, err := f.conn.Write(append(b, '\n')); err != nil {
		// Closing makes readLoop return so the connect loop redials.
		_ = f.conn.Close()
		return err
	}
	return nil
}
