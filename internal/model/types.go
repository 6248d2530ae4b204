package model

import (
	"encoding/binary"
	"math"
	"time"
)

// -----------------------------------------------------------------------------
// Candle Types
// -----------------------------------------------------------------------------

// CandleFieldCount is the number of numeric fields carried by a candle.
const CandleFieldCount = 7

// EncodedCandleSize is the length of the broker payload produced by Candle.Encode.
const EncodedCandleSize = CandleFieldCount * 8

// Candle is one candle update as received from a trading terminal.
type Candle struct {
	Source     string // Originating terminal/broker feed (e.g., "Alpari")
	Instrument string // Instrument identifier (e.g., "EURUSD")
	Timeframe  string // Bucket size as sent by the terminal (e.g., "1")

	OpenTime float64 // Candle open time (ms since epoch, terminal clock)
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Spread   float64
	SendTime float64 // Time the terminal sent the update (ms since epoch, terminal clock)
}

// Values returns the seven numeric fields in wire order.
func (c Candle) Values() [CandleFieldCount]float64 {
	return [CandleFieldCount]float64{c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Spread, c.SendTime}
}

// RoutingKey returns the broker routing key "{source} {instrument} {timeframe}".
func (c Candle) RoutingKey() string {
	return c.Source + " " + c.Instrument + " " + c.Timeframe
}

// Encode appends the fixed-layout broker body to dst: seven little-endian
// IEEE-754 doubles in the order open-time, open, high, low, close, spread, send-time.
func (c Candle) Encode(dst []byte) []byte {
	var buf [EncodedCandleSize]byte
	for i, v := range c.Values() {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return append(dst, buf[:]...)
}

// DecodeCandleValues parses a body produced by Encode.
// Returns false if the body has the wrong length.
func DecodeCandleValues(body []byte) ([CandleFieldCount]float64, bool) {
	var out [CandleFieldCount]float64
	if len(body) != EncodedCandleSize {
		return out, false
	}
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
	}
	return out, true
}

// QueuedCandle is the unit handed from ingestion sessions to the persistence worker.
type QueuedCandle struct {
	Candle     Candle
	ReceivedAt time.Time // Local timestamp when the frame was dispatched
}

// -----------------------------------------------------------------------------
// Store Types
// -----------------------------------------------------------------------------

// Destination identifies where a candle is stored.
type Destination struct {
	Database   string // "{prefix}_{source}"
	Collection string // "{instrument}_T{timeframe}"
}

// DestinationFor builds the destination for a candle under the given database prefix.
func DestinationFor(prefix string, c Candle) Destination {
	return Destination{
		Database:   prefix + "_" + c.Source,
		Collection: c.Instrument + "_T" + c.Timeframe,
	}
}

// String returns "database/collection".
func (d Destination) String() string {
	return d.Database + "/" + d.Collection
}

// Document is the persisted form of a candle.
type Document struct {
	// Candle is [open, high, low, close, 0, hour_of_day, spread].
	// The zero slot is a volume placeholder kept for downstream readers.
	Candle []float64
	DT     time.Time // Timezone-aware candle open time; unique per destination
}

// NewDocument builds the stored vector for a candle.
func NewDocument(c Candle, dt time.Time, hourOfDay float64) Document {
	return Document{
		Candle: []float64{c.Open, c.High, c.Low, c.Close, 0, hourOfDay, c.Spread},
		DT:     dt,
	}
}
