package ingest

import (
	"errors"
	"time"

	"github.com/rickgao/candlefeed/internal/model"
	"github.com/rickgao/candlefeed/internal/wire"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Command tags.
const (
	TagPing   byte = 'p'
	TagCandle byte = 't'
)

// candleFieldCount is source, instrument, timeframe plus the seven numeric fields.
const candleFieldCount = 3 + model.CandleFieldCount

// Queue accepts candles for persistence. Push must not block.
type Queue interface {
	Push(item model.QueuedCandle) error
}

// Config holds session settings.
type Config struct {
	IdleTimeout   time.Duration // Close the session after this long without a frame
	WriteTimeout  time.Duration // Deadline for replies
	MaxFrameBytes int           // Bound on bytes buffered without a delimiter
}

// DefaultConfig returns the terminal protocol defaults.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
		MaxFrameBytes: wire.DefaultMaxFrameBytes,
	}
}

// Close reasons reported in logs and metrics.
const (
	ReasonIdleTimeout    = "idle_timeout"
	ReasonPeerClosed     = "peer_closed"
	ReasonUnknownCommand = "unknown_command"
	ReasonMalformed      = "malformed"
	ReasonShutdown       = "shutdown"
	ReasonReadError      = "read_error"
)

// closeReason classifies the error that ended a session.
func closeReason(err error) string {
	switch {
	case errors.Is(err, wire.ErrIdleTimeout):
		return ReasonIdleTimeout
	case errors.Is(err, wire.ErrPeerClosed):
		return ReasonPeerClosed
	case errors.Is(err, ErrUnknownCommand):
		return ReasonUnknownCommand
	case errors.Is(err, ErrMalformedPayload),
		errors.Is(err, wire.ErrMalformedFrame),
		errors.Is(err, wire.ErrFrameTooLarge):
		return ReasonMalformed
	default:
		return ReasonReadError
	}
}
