package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/candlefeed/internal/broker"
	"github.com/rickgao/candlefeed/internal/metrics"
	"github.com/rickgao/candlefeed/internal/model"
	"github.com/rickgao/candlefeed/internal/queue"
	"github.com/rickgao/candlefeed/internal/wire"
)

type commandFunc func(ctx context.Context, fields []string) error

// Session handles one accepted connection. It is owned by a single goroutine.
type Session struct {
	id        uuid.UUID
	cfg       Config
	conn      net.Conn
	reader    *wire.Reader
	publisher *broker.Publisher
	queue     Queue
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	commands map[byte]commandFunc
}

// NewSession wires a session around conn. The session owns publisher and closes it.
func NewSession(
	cfg Config,
	conn net.Conn,
	publisher *broker.Publisher,
	q Queue,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	s := &Session{
		id:        id,
		cfg:       cfg,
		conn:      conn,
		reader:    wire.NewReader(conn, cfg.IdleTimeout, wire.WithMaxFrameBytes(cfg.MaxFrameBytes)),
		publisher: publisher,
		queue:     q,
		metrics:   m,
		logger: logger.With(
			"session_id", id.String(),
			"remote_addr", conn.RemoteAddr().String(),
		),
		now: time.Now,
	}
	s.commands = map[byte]commandFunc{
		TagPing:   s.handlePing,
		TagCandle: s.handleCandle,
	}
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Run processes frames in arrival order until the connection times out,
// closes, violates the protocol, or ctx is done. The connection and publisher
// are closed before Run returns. The returned error is the reason the session ended.
func (s *Session) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()
	defer close(done)
	defer s.close()

	s.metrics.SessionOpened()
	s.logger.Info("session started")

	if err := s.publisher.Connect(ctx); err != nil {
		// Not fatal: the first publish reconnects.
		s.logger.Warn("broker connect failed", "error", err)
	}

	for {
		rec, err := s.reader.Next()
		if err == nil {
			err = s.dispatch(ctx, rec)
		}
		if err != nil {
			reason := closeReason(err)
			if ctx.Err() != nil {
				reason = ReasonShutdown
			}
			s.metrics.SessionClosed(reason)
			s.logSessionEnd(reason, err)
			return err
		}
	}
}

func (s *Session) logSessionEnd(reason string, err error) {
	switch reason {
	case ReasonIdleTimeout, ReasonPeerClosed, ReasonShutdown:
		s.logger.Info("client has gone away, closing session", "reason", reason)
	default:
		s.logger.Warn("closing session", "reason", reason, "error", err)
	}
}

// dispatch routes a record to its command handler.
func (s *Session) dispatch(ctx context.Context, rec wire.Record) error {
	handler, ok := s.commands[rec.Tag]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, rec.Tag)
	}
	s.metrics.Frame(string(rec.Tag))
	return handler(ctx, rec.Fields)
}

func (s *Session) handlePing(_ context.Context, _ []string) error {
	if err := wire.WriteFrame(s.conn, string(TagPing), s.cfg.WriteTimeout); err != nil {
		// A failed reply is not a protocol violation; the idle timeout
		// catches a dead peer.
		s.logger.Warn("ping reply failed", "error", err)
	}
	return nil
}

func (s *Session) handleCandle(ctx context.Context, fields []string) error {
	receivedAt := s.now()
	s.logger.Info("candle received",
		"received_at", receivedAt,
		"fields", fields,
	)

	c, err := ParseCandle(fields)
	if err != nil {
		return err
	}

	if err := s.queue.Push(model.QueuedCandle{Candle: c, ReceivedAt: receivedAt}); err != nil {
		reason := "queue_closed"
		if errors.Is(err, queue.ErrQueueFull) {
			reason = "queue_full"
		}
		s.metrics.Dropped(reason)
		s.logger.Error("persistence hand-off failed, candle not stored",
			"routing_key", c.RoutingKey(),
			"open_time", c.OpenTime,
			"error", err,
		)
	}

	res := s.publisher.Publish(ctx, c)
	s.metrics.Publish(res.String())
	return nil
}

func (s *Session) close() {
	if err := s.publisher.Close(); err != nil {
		s.logger.Debug("broker close failed", "error", err)
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("connection close failed", "error", err)
	}
}
