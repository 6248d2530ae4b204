// Package store holds the durable candle store backends.
//
// Each backend implements persist.Store:
//   - mongostore: one database per source, one collection per instrument/timeframe
//   - pgstore: one schema per source, one table per instrument/timeframe (TimescaleDB compatible)
//
// Both enforce a unique descending index on dt so a candle open time is never stored twice.
package store
