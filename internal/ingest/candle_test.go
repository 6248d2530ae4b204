package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandle(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
	}{
		{"valid", "Alpari,EURUSD,1,1700000000000,1.1,1.2,1.0,1.15,3,1700000001000", false},
		{"scientific notation", "Rithmic,ES,5,1.7e12,4500.25,4501,4499.5,4500.75,0.25,1.700000001e12", false},
		{"extra fields ignored", "ICM,GBPUSD,1,1,2,3,4,5,6,7,extra", false},
		{"truncated", "Alpari,EURUSD,1,1700000000000,1.1,1.2", true},
		{"non-numeric", "Alpari,EURUSD,1,1700000000000,abc,1.2,1.0,1.15,3,1700000001000", true},
		{"empty numeric", "Alpari,EURUSD,1,1700000000000,,1.2,1.0,1.15,3,1700000001000", true},
		{"no fields", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fields []string
			if tt.frame != "" {
				fields = strings.Split(tt.frame, ",")
			}
			_, err := ParseCandle(fields)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPayload)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseCandle_Values(t *testing.T) {
	fields := strings.Split("Alpari,EURUSD,15,1700000000000,1.1,1.2,1.0,1.15,3,1700000001000", ",")
	c, err := ParseCandle(fields)
	require.NoError(t, err)

	assert.Equal(t, "Alpari", c.Source)
	assert.Equal(t, "EURUSD", c.Instrument)
	assert.Equal(t, "15", c.Timeframe)
	assert.Equal(t, [7]float64{1700000000000, 1.1, 1.2, 1.0, 1.15, 3, 1700000001000}, c.Values())
}
