package timeline

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want float64
	}{
		{"seconds", 1700000000.25, 1700000000.25},
		{"milliseconds", float64(1700000000250), 1700000000.25},
		{"int milliseconds", int64(1700000000000), 1700000000},
		{"small int", 42, 42},
		{"boundary is seconds", 1e12, 1e12},
		{"numeric string", " 12.5 ", 12.5},
		{"json number", json.Number("1700000000000"), 1700000000},
		{"negative", -3.0, -3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTimestamp(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestNormalizeTimestampIsIdempotent(t *testing.T) {
	for _, v := range []float64{0, 1.5, 1700000000.123, 1712345678901} {
		once, err := NormalizeTimestamp(v)
		require.NoError(t, err)
		twice, err := NormalizeTimestamp(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeTimestampRejectsInvalid(t *testing.T) {
	for _, v := range []interface{}{nil, "abc", math.NaN(), math.Inf(1), math.Inf(-1), []int{1}, true} {
		_, err := NormalizeTimestamp(v)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, "value %v", v)
	}
}

func TestRecordFromRaw(t *testing.T) {
	rec, err := recordFromRaw(map[string]interface{}{
		"timestamp":   "1700000000500",
		"source":      "192.168.1.1",
		"destination": "8.8.8.8",
		"protocol":    "DNS",
		"size":        74.0,
		"info":        "Standard query A example.com",
		"sport":       53000,
		"dport":       "53",
		"ttl":         64,
	})
	require.NoError(t, err)

	assert.InDelta(t, 1700000000.5, rec.Timestamp, 1e-9)
	assert.Equal(t, "192.168.1.1", rec.Source)
	assert.Equal(t, "8.8.8.8", rec.Destination)
	assert.Equal(t, "DNS", rec.Protocol)
	assert.Equal(t, 74, rec.Size)
	assert.Equal(t, "Standard query A example.com", rec.Summary)
	require.NotNil(t, rec.SrcPort)
	require.NotNil(t, rec.DstPort)
	assert.Equal(t, 53000, *rec.SrcPort)
	assert.Equal(t, 53, *rec.DstPort)
	assert.Equal(t, 64, rec.Fields["ttl"])
}

func TestRecordFromRawDefaultsProtocol(t *testing.T) {
	rec, err := recordFromRaw(map[string]interface{}{"ts": 1.0})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", rec.Protocol)
	assert.Nil(t, rec.SrcPort)
	assert.Nil(t, rec.Fields)
}

func TestRecordFromRawMissingTimestamp(t *testing.T) {
	_, err := recordFromRaw(map[string]interface{}{"src": "a"})
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}
