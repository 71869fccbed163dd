package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"telemetry-svr/internal/codec"
)

var errNotAccepted = errors.New("websocket not accepted")

// wsSubscriber pushes positions to one websocket client. Accept performs
// the HTTP upgrade. A failed write closes the socket so the client sees the
// disconnect instead of a silent stream.
type wsSubscriber struct {
	w        http.ResponseWriter
	r        *http.Request
	upgrader *websocket.Upgrader
	lg       *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscriber) Accept(context.Context) error {
	conn, err := s.upgrader.Upgrade(s.w, s.r, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (s *wsSubscriber) Send(ctx context.Context, p codec.Position) error {
	// Unencodable positions are skipped; the client stays registered.
	data, err := json.Marshal(p)
	if err != nil {
		s.lg.Warn("websocket: position not encodable, skipped", "device", p.DeviceID, "err", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errNotAccepted
	}
	if err := ctx.Err(); err != nil {
		_ = s.conn.Close()
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultConfig().SendTimeout)
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = s.conn.Close()
		return err
	}
	return nil
}

// Close drops the socket. The handler's read loop then returns.
func (s *wsSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// WebSocketHandler upgrades each request and registers it as a push
// subscriber for as long as the client keeps the socket open.
func WebSocketHandler(b *Broadcaster) http.Handler {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := &wsSubscriber{w: w, r: r, upgrader: upgrader, lg: b.lg}
		if err := b.Register(r.Context(), sub); err != nil {
			b.lg.Debug("websocket register failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		defer sub.Close()
		defer b.Unregister(sub)

		// Drain control frames; any read error means the client is gone.
		for {
			if _, _, err := sub.conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// StreamHandler writes positions as server-sent events, one JSON object per
// event, using a Watch queue per request.
func StreamHandler(b *Broadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for p := range b.Watch(r.Context()) {
			data, err := json.Marshal(p)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	})
}
