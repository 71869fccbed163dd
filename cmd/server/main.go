package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"telemetry-svr/internal/config"
	"telemetry-svr/internal/link"
	"telemetry-svr/internal/live"
	"telemetry-svr/internal/notify"
	"telemetry-svr/internal/observability"
	"telemetry-svr/internal/pipeline"
	"telemetry-svr/internal/server"
	"telemetry-svr/internal/store"
	"telemetry-svr/internal/utilities"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	cfg := config.Load()

	flags := pflag.NewFlagSet("telemetry-svr", pflag.ContinueOnError)
	flags.StringVar(&cfg.TCPAddr, "tcp-addr", cfg.TCPAddr, "device listener address")
	flags.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "websocket, SSE and notification API address")
	flags.StringVar(&cfg.MetricsPort, "metrics-port", cfg.MetricsPort, "port for /metrics and /healthz")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address; empty keeps everything in memory")
	flags.StringVar(&cfg.ProxyAddr, "proxy-addr", cfg.ProxyAddr, "upstream NDJSON proxy address")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting telemetry-svr", "tcp", cfg.TCPAddr, "http", cfg.HTTPAddr, "metrics_port", cfg.MetricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		positions store.Store
		queue     notify.Queue
		rdb       *redis.Client
	)
	if cfg.RedisAddr != "" {
		var err error
		rdb, err = store.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer rdb.Close()
		positions = store.NewRedis(rdb, 0)
		logger.Info("using redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	} else {
		positions = store.NewMemory(0)
		logger.Warn("REDIS_ADDR not set, positions and notifications are kept in memory")
	}
	queue = notify.NewQueue(rdb, cfg.NotifyQueueKey)

	broadcaster := live.New(live.Config{SendTimeout: cfg.SendTimeout, StreamBuffer: cfg.StreamBuffer}, logger)
	if cfg.ProxyAddr != "" {
		if err := broadcaster.Register(ctx, link.NewForwarder(cfg.ProxyAddr, logger)); err != nil {
			return fmt.Errorf("register proxy link: %w", err)
		}
	}

	rawLog, err := utilities.NewRawLog(cfg.RawLogDir)
	if err != nil {
		return fmt.Errorf("raw log: %w", err)
	}

	processor := pipeline.NewProcessor(positions, broadcaster, logger)
	tcp := server.New(cfg.TCPAddr, processor,
		server.WithLogger(logger),
		server.WithMaxLineBytes(cfg.MaxLineBytes),
		server.WithIdleTimeout(cfg.IdleTimeout),
		server.WithRawLog(rawLog),
	)

	notifier := notify.NewService(queue,
		notify.NewDispatcher(
			&notify.EmailProvider{Sender: cfg.EmailSender, Logger: logger},
			&notify.SMSProvider{From: cfg.SMSFrom, Logger: logger},
			&notify.PushProvider{FCMKey: cfg.FCMKey, APNSKey: cfg.APNSKey, Logger: logger},
		),
		notify.Options{PollTimeout: cfg.NotifyPollTimeout, MaxAttempts: cfg.NotifyMaxAttempts},
		logger,
	)

	mux := http.NewServeMux()
	mux.Handle("/ws", live.WebSocketHandler(broadcaster))
	mux.Handle("/stream", live.StreamHandler(broadcaster))
	mux.Handle("/notifications", notify.Handler(notifier))
	api := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tcp.ListenAndServe(ctx) })
	g.Go(func() error { return observability.Serve(ctx, api) })
	g.Go(func() error { return observability.StartMetricsServer(ctx, cfg.MetricsPort) })
	g.Go(func() error {
		notifier.Start(ctx)
		<-ctx.Done()
		notifier.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info("telemetry-svr stopped", "err", err)
	return err
}
