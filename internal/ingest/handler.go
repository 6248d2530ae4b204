package ingest

import (
	"context"
	"log/slog"
	"net"

	"github.com/rickgao/candlefeed/internal/broker"
	"github.com/rickgao/candlefeed/internal/metrics"
)

// Handler starts a Session for each accepted connection.
type Handler struct {
	cfg       Config
	brokerCfg broker.Config
	dial      broker.Dialer
	queue     Queue
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewHandler creates a handler. Every session gets its own Publisher built from dial.
func NewHandler(
	cfg Config,
	brokerCfg broker.Config,
	dial broker.Dialer,
	q Queue,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		brokerCfg: brokerCfg,
		dial:      dial,
		queue:     q,
		metrics:   m,
		logger:    logger,
	}
}

// Handle runs a session to completion. It never panics the caller and never
// reports errors upward: a session's end is only logged.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	pub := broker.NewPublisher(h.brokerCfg, h.dial, h.logger.With(
		"component", "broker",
		"remote_addr", conn.RemoteAddr().String(),
	))
	s := NewSession(h.cfg, conn, pub, h.queue, h.metrics, h.logger)
	_ = s.Run(ctx)
}
