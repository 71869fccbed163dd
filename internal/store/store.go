package store

import (
	"context"
	"errors"
	"time"

	"telemetry-svr/internal/codec"
)

var ErrInvalidPosition = errors.New("invalid position")

// StoredPosition is a Position as recorded by a Store.
type StoredPosition struct {
	codec.Position
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// Store is the persistence contract used by the ingestion pipeline.
type Store interface {
	Save(ctx context.Context, p codec.Position) (StoredPosition, error)
	Latest(ctx context.Context, deviceID string) (StoredPosition, bool, error)
}

func validate(p codec.Position) error {
	if p.DeviceID == "" {
		return errors.Join(ErrInvalidPosition, errors.New("empty device id"))
	}
	if p.Timestamp.IsZero() {
		return errors.Join(ErrInvalidPosition, errors.New("missing timestamp"))
	}
	return nil
}
