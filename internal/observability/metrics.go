package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TCPConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_tcp_connections_total",
		Help: "Total TCP device connections accepted",
	})
	TCPActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_tcp_connections_active",
		Help: "Device connections currently open",
	})
	FramesRecv = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_frames_received_total",
		Help: "Total newline delimited frames read from devices",
	})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_frames_dropped_total",
		Help: "Frames dropped before publication, by reason",
	}, []string{"reason"})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_decode_errors_total",
		Help: "Frames that failed to decode, by protocol",
	}, []string{"protocol"})
	SaveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_store_save_errors_total",
		Help: "Errors writing positions to the store",
	})
	PositionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_positions_ingested_total",
		Help: "Positions decoded, stored and published, by protocol",
	}, []string{"protocol"})
	DecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_decode_latency_seconds",
		Help:    "Decode latency per frame",
		Buckets: prometheus.DefBuckets,
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_live_subscribers",
		Help: "Registered push subscribers",
	})
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_live_deliveries_total",
		Help: "Push deliveries to subscribers, by status",
	}, []string{"status"})
	SubscribersPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_live_subscribers_pruned_total",
		Help: "Subscribers removed after a failed send",
	})
	StreamDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_live_stream_dropped_total",
		Help: "Positions evicted from a full stream queue",
	})

	NotificationsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_notifications_enqueued_total",
		Help: "Notifications enqueued, by channel",
	}, []string{"channel"})
	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_notification_deliveries_total",
		Help: "Notification delivery attempts, by channel and status",
	}, []string{"channel", "status"})
)

func ObserveDecodeLatency(start time.Time) {
	DecodeLatency.Observe(time.Since(start).Seconds())
}

// StartMetricsServer serves /metrics and /healthz until ctx is cancelled.
func StartMetricsServer(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return Serve(ctx, &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
}

// Serve runs srv until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
