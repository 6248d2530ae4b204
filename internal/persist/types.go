package persist

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/candlefeed/internal/model"
)

var (
	ErrStoreWrite = errors.New("store write failed")
	ErrStoreIndex = errors.New("store index check failed")
)

// Store is the durable time-series store.
type Store interface {
	// EnsureIndex creates the descending unique index on dt if it is missing.
	// It must be idempotent.
	EnsureIndex(ctx context.Context, dest model.Destination) error

	// Insert writes one document. A duplicate dt must be rejected with an error.
	Insert(ctx context.Context, dest model.Destination, doc model.Document) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the store connection.
	Close(ctx context.Context) error
}

// Queue is the consumer side of the persistence hand-off.
type Queue interface {
	Receive(ctx context.Context) (model.QueuedCandle, error)
}

// Config contains configuration for the persistence worker.
type Config struct {
	// SourcePrefix prefixes the per-source database name.
	SourcePrefix string

	// ErrorBackoff is the pause after a failed store operation.
	ErrorBackoff time.Duration

	// ReferenceTimezone is the zone the hour-of-day field is computed in.
	ReferenceTimezone *time.Location

	// WriteTimeout bounds a single index check or insert; 0 = none.
	WriteTimeout time.Duration
}

// DefaultConfig returns defaults matching the historical store layout.
func DefaultConfig() Config {
	ref, err := time.LoadLocation("America/New_York")
	if err != nil {
		ref = time.UTC
	}
	return Config{
		SourcePrefix:      "tr_ticks_mt5",
		ErrorBackoff:      2 * time.Second,
		ReferenceTimezone: ref,
		WriteTimeout:      10 * time.Second,
	}
}

// WorkerMetrics holds counters for the worker.
type WorkerMetrics struct {
	Inserts     int64
	Errors      int64
	Dropped     int64
	IndexChecks int64
}

// Drop reasons reported in logs and metrics.
const (
	DropUnknownSource = "unknown_source"
	DropBadTime       = "bad_time"
	DropIndex         = "index_error"
	DropWrite         = "write_error"
)
