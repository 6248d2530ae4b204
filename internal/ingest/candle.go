package ingest

import (
	"fmt"
	"strconv"

	"github.com/rickgao/candlefeed/internal/model"
)

// ParseCandle builds a candle from the fields of a 't' frame:
// source, instrument, timeframe, open_time_ms, open, high, low, close, spread, send_time_ms.
// Extra trailing fields are ignored.
func ParseCandle(fields []string) (model.Candle, error) {
	if len(fields) < candleFieldCount {
		return model.Candle{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformedPayload, len(fields), candleFieldCount)
	}

	var values [model.CandleFieldCount]float64
	for i := range values {
		raw := fields[3+i]
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("%w: field %d %q: not a number", ErrMalformedPayload, 3+i, raw)
		}
		values[i] = v
	}

	return model.Candle{
		Source:     fields[0],
		Instrument: fields[1],
		Timeframe:  fields[2],
		OpenTime:   values[0],
		Open:       values[1],
		High:       values[2],
		Low:        values[3],
		Close:      values[4],
		Spread:     values[5],
		SendTime:   values[6],
	}, nil
}
