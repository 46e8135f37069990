package service

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/navid-fn/tanix/internal/chart"
)

// ChartService exposes the chart stream to the handlers.
type ChartService struct {
	stream *chart.Stream
}

func NewChartService(stream *chart.Stream) *ChartService {
	return &ChartService{stream: stream}
}

// Snapshot parses points leniently; anything non-numeric selects the default.
func (cs *ChartService) Snapshot(assetID, timeframe, points string) (chart.Snapshot, error) {
	n, err := strconv.Atoi(points)
	if err != nil {
		n = chart.DefaultPoints
	}

	snap, err := cs.stream.Snapshot(assetID, timeframe, n)
	if errors.Is(err, chart.ErrAssetNotFound) {
		return chart.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}
	return snap, err
}

// ApplyTrade nudges the asset's chart by the trade's net amount.
func (cs *ChartService) ApplyTrade(assetID string, net float64) error {
	if !cs.stream.ApplyTradeMovement(assetID, net) {
		return fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}
	return nil
}
