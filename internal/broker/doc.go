// Package broker publishes candles to the live pub/sub channel.
//
// Each ingestion session owns one Publisher. A Publisher holds at most one
// Transport and moves between Disconnected and Connected:
//   - Publish while Connected that fails drops the transport, dials once and retries once
//   - Publish while Disconnected takes the same reconnect-and-retry path
//   - A second failure drops the candle; nothing is returned to the caller
//
// Transports: AMQP direct exchange (RabbitMQ) and Redis pub/sub.
package broker
