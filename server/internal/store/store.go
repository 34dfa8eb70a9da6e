package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// ErrNotFound is returned by ExtendEnd for an unknown measurement id.
var ErrNotFound = errors.New("store: measurement not found")

// Store is the measurement storage used by the receiver and the API.
// Implementations are safe for concurrent use and return copies: callers may
// modify what they get back.
type Store interface {
	// Latest returns the most recent measurement of a metric, or nil when
	// there is none.
	Latest(ctx context.Context, metricUUID string) (*types.Measurement, error)
	// Insert appends a measurement to its metric's history.
	Insert(ctx context.Context, m *types.Measurement) error
	// ExtendEnd moves the end of a stored measurement.
	ExtendEnd(ctx context.Context, id string, end time.Time) error
	// History returns up to limit measurements of a metric, newest first.
	// limit <= 0 returns all of them.
	History(ctx context.Context, metricUUID string, limit int) ([]*types.Measurement, error)
	// LatestPerMetric returns the latest measurement of every metric, keyed
	// by metric UUID.
	LatestPerMetric(ctx context.Context) (map[string]*types.Measurement, error)
	// Count returns the number of stored measurements across all metrics.
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open returns the backend named by backend. path is only used by sqlite.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
