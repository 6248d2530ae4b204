// Package queue implements the hand-off between ingestion sessions and the
// persistence worker.
//
// Buffer is a growable ring buffer: producers never block, the single consumer
// blocks until an item arrives, the buffer is closed, or its context is done.
// Capacity doubles at 70% fill, so the buffer is unbounded unless MaxLen is set.
package queue
