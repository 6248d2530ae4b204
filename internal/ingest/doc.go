// Package ingest implements the per-connection ingestion session.
//
// A Session reads frames with a wire.Reader and dispatches them by tag:
//   - 'p' replies "p\r\n"
//   - 't' parses a candle, hands it to the persistence queue, then publishes it to the broker
//
// Any other tag, or a candle frame that cannot be parsed, ends the session.
// Sessions share nothing but the persistence queue.
package ingest
