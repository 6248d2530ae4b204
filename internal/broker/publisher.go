package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/candlefeed/internal/model"
)

// Publisher owns one broker connection for one ingestion session.
// It is not safe for concurrent use.
type Publisher struct {
	dial   Dialer
	cfg    Config
	logger *slog.Logger

	transport Transport // nil while Disconnected
	closed    bool
	body      []byte
	stats     Stats
}

// NewPublisher creates a disconnected publisher.
func NewPublisher(cfg Config, dial Dialer, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		dial:   dial,
		cfg:    cfg,
		logger: logger,
		body:   make([]byte, 0, model.EncodedCandleSize),
	}
}

// Connect moves the publisher to Connected, tearing down any stale transport first.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.closed {
		return ErrPublisherClose
	}
	p.teardown()

	t, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	p.transport = t
	return nil
}

// Connected reports whether a transport is held.
func (p *Publisher) Connected() bool {
	return p.transport != nil
}

// Publish sends the candle, reconnecting and retrying at most once.
// Failures are logged and absorbed.
func (p *Publisher) Publish(ctx context.Context, c model.Candle) Result {
	key := c.RoutingKey()
	p.body = c.Encode(p.body[:0])

	err := p.send(ctx, key)
	if err == nil {
		p.stats.Delivered++
		return ResultDelivered
	}

	p.logger.Warn("broker publish failed, reconnecting",
		"routing_key", key,
		"error", err,
	)

	p.stats.Reconnects++
	if err := p.Connect(ctx); err != nil {
		p.logger.Error("broker reconnect failed, dropping candle",
			"routing_key", key,
			"error", err,
		)
		p.stats.Dropped++
		return ResultDropped
	}

	p.logger.Info("broker resend", "routing_key", key)
	if err := p.send(ctx, key); err != nil {
		p.logger.Error("broker resend failed, dropping candle",
			"routing_key", key,
			"error", err,
		)
		p.teardown()
		p.stats.Dropped++
		return ResultDropped
	}

	p.stats.Delivered++
	return ResultDeliveredAfterReconnect
}

// Stats returns publish counters.
func (p *Publisher) Stats() Stats {
	return p.stats
}

// Close releases the transport. Further publishes are dropped.
func (p *Publisher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.transport == nil {
		return nil
	}
	err := p.transport.Close()
	p.transport = nil
	return err
}

func (p *Publisher) send(ctx context.Context, key string) error {
	if p.transport == nil {
		return ErrNotConnected
	}
	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
	}
	return p.transport.Publish(ctx, key, p.body)
}

func (p *Publisher) teardown() {
	if p.transport == nil {
		return
	}
	p.logger.Debug("closing stale broker connection")
	if err := p.transport.Close(); err != nil {
		p.logger.Debug("broker close failed", "error", err)
	}
	p.transport = nil
}
