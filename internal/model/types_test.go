package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCandle() Candle {
	return Candle{
		Source:     "Alpari",
		Instrument: "EURUSD",
		Timeframe:  "1",
		OpenTime:   1700000000000,
		Open:       1.0712,
		High:       1.0719,
		Low:        1.0708,
		Close:      1.0715,
		Spread:     12,
		SendTime:   1700000059000,
	}
}

func TestCandle_RoutingKey(t *testing.T) {
	assert.Equal(t, "Alpari EURUSD 1", testCandle().RoutingKey())
}

func TestCandle_Encode(t *testing.T) {
	body := testCandle().Encode(nil)
	require.Len(t, body, EncodedCandleSize)

	values, ok := DecodeCandleValues(body)
	require.True(t, ok)
	want := [CandleFieldCount]float64{1700000000000, 1.0712, 1.0719, 1.0708, 1.0715, 12, 1700000059000}
	assert.Equal(t, want, values)

	// open-time 1.7e12 as little-endian float64: lowest byte first
	assert.Equal(t, byte(0x42), body[7], "little-endian exponent byte")
}

func TestCandle_EncodeAppends(t *testing.T) {
	body := testCandle().Encode([]byte{0xAA})
	assert.Len(t, body, 1+EncodedCandleSize)
	assert.Equal(t, byte(0xAA), body[0], "prefix preserved")
}

func TestDecodeCandleValues_WrongLength(t *testing.T) {
	_, ok := DecodeCandleValues(make([]byte, 10))
	assert.False(t, ok)
}

func TestDestinationFor(t *testing.T) {
	d := DestinationFor("tr_ticks_mt5", testCandle())
	assert.Equal(t, "tr_ticks_mt5_Alpari", d.Database)
	assert.Equal(t, "EURUSD_T1", d.Collection)
	assert.Equal(t, "tr_ticks_mt5_Alpari/EURUSD_T1", d.String())
}

func TestNewDocument(t *testing.T) {
	dt := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	doc := NewDocument(testCandle(), dt, 17.25)

	assert.Equal(t, []float64{1.0712, 1.0719, 1.0708, 1.0715, 0, 17.25, 12}, doc.Candle)
	assert.True(t, doc.DT.Equal(dt), "DT = %v, want %v", doc.DT, dt)
}
