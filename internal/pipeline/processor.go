package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"telemetry-svr/internal/codec"
	"telemetry-svr/internal/observability"
	"telemetry-svr/internal/store"
)

// Saver is the write half of the persistence contract.
type Saver interface {
	Save(ctx context.Context, p codec.Position) (store.StoredPosition, error)
}

// Publisher receives every position that has been stored.
type Publisher interface {
	Publish(ctx context.Context, p codec.Position)
}

// Processor turns one device line into a stored and published position.
type Processor struct {
	store Saver
	pub   Publisher
	lg    *slog.Logger
}

func NewProcessor(s Saver, pub Publisher, lg *slog.Logger) *Processor {
	if lg == nil {
		lg = slog.Default()
	}
	return &Processor{store: s, pub: pub, lg: lg.With("component", "pipeline")}
}

// HandleLine decodes line, saves the position and publishes it. Nothing is
// published when decoding or saving fails.
func (p *Processor) HandleLine(ctx context.Context, line string) error {
	observability.FramesRecv.Inc()

	tag, payload := codec.SplitFrame(line)
	protocol := strings.ToLower(tag)
	if protocol == "" {
		protocol = codec.Generic
	}

	start := time.Now()
	pos, err := codec.Decode(tag, []byte(payload))
	observability.ObserveDecodeLatency(start)
	if err != nil {
		observability.DecodeErrors.WithLabelValues(protocolLabel(protocol)).Inc()
		return err
	}

	stored, err := p.store.Save(ctx, pos)
	if err != nil {
		observability.SaveErrors.Inc()
		return fmt.Errorf("save position %s: %w", pos.DeviceID, err)
	}

	p.pub.Publish(ctx, pos)
	observability.PositionsIngested.WithLabelValues(protocol).Inc()

	p.lg.Debug("position ingested",
		"device", pos.DeviceID,
		"protocol", protocol,
		"id", stored.ID,
		"lat", pos.Latitude,
		"lon", pos.Longitude,
	)
	return nil
}

// protocolLabel keeps unknown device-supplied tags out of metric labels.
func protocolLabel(name string) string {
	if _, err := codec.Lookup(name); err != nil {
		return "unknown"
	}
	return name
}
