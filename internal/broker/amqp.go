package broker

import (
	"context"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpDialTimeout = 10 * time.Second

// amqpTransport publishes to a direct exchange over one connection and channel.
type amqpTransport struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPDialer returns a Dialer that connects to url and declares exchange
// as a non-durable direct exchange.
func NewAMQPDialer(url, exchange string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		var stopWatch func() bool
		conn, err := amqp.DialConfig(url, amqp.Config{
			Dial: func(network, addr string) (net.Conn, error) {
				dialCtx, cancel := context.WithTimeout(ctx, amqpDialTimeout)
				defer cancel()
				nc, err := (&net.Dialer{}).DialContext(dialCtx, network, addr)
				if err != nil {
					return nil, err
				}
				// Bounds the AMQP handshake; the library clears it once open.
				if err := nc.SetDeadline(time.Now().Add(amqpDialTimeout)); err != nil {
					nc.Close()
					return nil, err
				}
				stopWatch = context.AfterFunc(ctx, func() { _ = nc.Close() })
				return nc, nil
			},
		})
		if stopWatch != nil {
			stopWatch()
		}
		if err == nil && ctx.Err() != nil {
			conn.Close()
			err = ctx.Err()
		}
		if err != nil {
			return nil, fmt.Errorf("amqp dial: %w", err)
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("amqp channel: %w", err)
		}

		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, false, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("amqp declare exchange %q: %w", exchange, err)
		}

		return &amqpTransport{conn: conn, ch: ch, exchange: exchange}, nil
	}
}

func (t *amqpTransport) Publish(ctx context.Context, routingKey string, body []byte) error {
	if t.ch.IsClosed() || t.conn.IsClosed() {
		return ErrChannelClosed
	}
	return t.ch.PublishWithContext(ctx, t.exchange, routingKey, false, false, amqp.Publishing{
		Body: body,
	})
}

func (t *amqpTransport) Close() error {
	var firstErr error
	if !t.ch.IsClosed() {
		firstErr = t.ch.Close()
	}
	if !t.conn.IsClosed() {
		if err := t.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
