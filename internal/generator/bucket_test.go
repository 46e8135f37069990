package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleIndex(t *testing.T) {
	tests := []struct {
		name  string
		t     int64
		tf    int
		index int64
	}{
		{"epoch", 0, 1, 0},
		{"last ms of first bucket", 59999, 1, 0},
		{"second bucket", 60000, 1, 1},
		{"five minute bucket", 10*60000 + 1, 5, 2},
		{"real time", 1_700_000_123_456, 1, 28_333_335},
		{"before epoch floors", -1, 1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.index, CandleIndex(tt.t, tt.tf))
		})
	}
}

func TestCandleStartTime(t *testing.T) {
	assert.Equal(t, int64(0), CandleStartTime(0, 1))
	assert.Equal(t, int64(300000), CandleStartTime(1, 5))
	assert.Equal(t, int64(1_699_999_740_000), CandleStartTime(28_333_329, 1))
}

func TestBucketRoundTrip(t *testing.T) {
	timeframes := []int{1, 3, 5, 15, 60, 240, 1440}
	times := []int64{0, 1, 59_999, 60_000, 86_399_999, 1_700_000_123_456, 1_893_456_000_000}

	for _, tf := range timeframes {
		for _, ts := range times {
			idx := CandleIndex(ts, tf)
			start := CandleStartTime(idx, tf)
			require.LessOrEqual(t, start, ts)
			require.Less(t, ts, CandleStartTime(idx+1, tf))
			require.Zero(t, start%TimeframeMs(tf))
		}
	}
}
