package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"telemetry-svr/internal/observability"
	"telemetry-svr/internal/utilities"
)

const (
	defaultMaxLineBytes = 64 * 1024
	rawLogPrefix        = "ALLTRACKINGS"
)

// LineHandler processes one newline delimited frame. Errors are logged by the
// server and never close the connection.
type LineHandler interface {
	HandleLine(ctx context.Context, line string) error
}

type Option func(*Server)

func WithLogger(lg *slog.Logger) Option {
	return func(s *Server) { s.lg = lg }
}

// WithMaxLineBytes caps a frame; longer lines are discarded up to the next
// newline.
func WithMaxLineBytes(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// WithIdleTimeout closes connections that stay silent for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idle = d }
}

func WithRawLog(l *utilities.RawLog) Option {
	return func(s *Server) { s.raw = l }
}

// Server accepts device connections and feeds each line to a LineHandler.
type Server struct {
	addr    string
	handler LineHandler
	lg      *slog.Logger
	maxLine int
	idle    time.Duration
	raw     *utilities.RawLog

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(addr string, h LineHandler, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		handler: h,
		lg:      slog.Default(),
		maxLine: defaultMaxLineBytes,
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lg = s.lg.With("component", "tcp")
	return s
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("error starting TCP server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Addr returns the listening address once Serve has been called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop on ln until ctx is cancelled, then closes every
// open connection and waits for their loops to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeConns()
	})
	defer stop()
	defer s.wg.Wait()

	s.lg.Info("TCP server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.lg.Error("accept error", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		observability.TCPConnections.Inc()

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.untrack(c)
			s.handleConnection(ctx, c)
		}(conn)
	}
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	observability.TCPActive.Inc()
	defer observability.TCPActive.Dec()

	lg := s.lg.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	lg.Info("device connected")

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
	}

	r := bufio.NewReaderSize(conn, s.maxLine)
	for {
		if s.idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idle))
		}

		line, tooLong, err := readLine(r)
		if tooLong {
			observability.FramesDropped.WithLabelValues("too_long").Inc()
			lg.Warn("frame exceeds max line length, dropped", "max_bytes", s.maxLine)
		} else if len(line) > 0 {
			s.handleLine(ctx, lg, line)
		}

		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				lg.Info("connection closed by device")
			case ctx.Err() != nil:
			case errors.As(err, &netErr) && netErr.Timeout():
				lg.Info("idle connection closed", "idle", s.idle)
			default:
				lg.Error("read error", "err", err)
			}
			return
		}
	}
}

// readLine returns the next line without its terminator. A line that does
// not fit in the reader's buffer is consumed up to the newline and reported
// with tooLong set.
func readLine(r *bufio.Reader) (line string, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			tooLong = true
			continue
		}
		if tooLong {
			return "", true, err
		}
		return string(chunk), false, err
	}
}

func (s *Server) handleLine(ctx context.Context, lg *slog.Logger, raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	if err := s.raw.Write(rawLogPrefix, line); err != nil {
		lg.Warn("raw log write failed", "err", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			observability.FramesDropped.WithLabelValues("panic").Inc()
			lg.Error("panic handling frame", "panic", rec, "frame", line)
		}
	}()

	if err := s.handler.HandleLine(ctx, line); err != nil {
		observability.FramesDropped.WithLabelValues("error").Inc()
		lg.Warn("frame dropped", "err", err, "frame", line)
	}
}
