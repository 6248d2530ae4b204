// Package persist implements the persistence worker.
//
// A single Worker drains the candle queue in FIFO order. For each candle it
// resolves the source's timezone, computes the stored timestamp and the
// hour-of-day field, makes sure the destination has its unique index on dt
// (once per destination per worker lifetime), and inserts exactly one document.
//
// Failures are contained to the item: it is logged and dropped, and after a
// store failure the worker backs off briefly before the next item.
package persist
