package service

import (
	"testing"

	"github.com/navid-fn/tanix/internal/chart"
	"github.com/navid-fn/tanix/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChartServiceSnapshot(t *testing.T) {
	cs := NewChartService(chart.NewStream(chart.StreamConfig{}, logger.Discard()))

	snap, err := cs.Snapshot("OTC-AAPL", "1m", "abc")
	require.NoError(t, err)
	assert.Len(t, snap.Candles, chart.DefaultPoints)

	snap, err = cs.Snapshot("OTC-AAPL", "1m", "3")
	require.NoError(t, err)
	assert.Len(t, snap.Candles, chart.MinPoints)

	_, err = cs.Snapshot("OTC-DOGE", "1m", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChartServiceApplyTrade(t *testing.T) {
	cs := NewChartService(chart.NewStream(chart.StreamConfig{}, logger.Discard()))

	require.NoError(t, cs.ApplyTrade("OTC-AAPL", 10))
	assert.ErrorIs(t, cs.ApplyTrade("OTC-DOGE", 10), ErrNotFound)
}
