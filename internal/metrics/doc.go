// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session counts (active, accepted, rejected by blocklist)
//   - Frames by command tag and protocol errors by kind
//   - Broker publish outcomes
//   - Persistence queue depth, store writes and dropped items
//   - Terminal-to-ingest receive delay
//
// All methods are safe on a nil *Metrics so components can run without instrumentation.
package metrics
