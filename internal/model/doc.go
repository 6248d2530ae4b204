// Package model defines the data types shared across the candle ingestion pipeline.
//
// Conventions:
//   - Candle numeric fields are float64, exactly as decoded from the wire
//   - Open and send times are epoch milliseconds carried as float64
//   - A Destination names a store namespace: database (per source) then collection (per instrument/timeframe)
package model
