// Package model defines the value types shared by the candle engine, its store
// and the API layer.
package model

import (
	"fmt"
	"math"
)

// Candle is one OHLCV bucket. StartTimeMs is UTC epoch milliseconds aligned to
// the series timeframe.
type Candle struct {
	StartTimeMs int64   `json:"start_time_ms"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      int64   `json:"volume"`
	IsPartial   bool    `json:"isPartial,omitempty"`
}

// BodyHigh returns max(open, close).
func (c Candle) BodyHigh() float64 {
	return math.Max(c.Open, c.Close)
}

// BodyLow returns min(open, close).
func (c Candle) BodyLow() float64 {
	return math.Min(c.Open, c.Close)
}

// HoldsInvariant reports whether low <= min(open,close) <= max(open,close) <= high.
func (c Candle) HoldsInvariant() bool {
	return c.Low <= c.BodyLow() && c.BodyHigh() <= c.High
}

// SeriesKey partitions generation and storage. Different versions of the same
// symbol and timeframe never interfere with each other.
type SeriesKey struct {
	Symbol           string `json:"symbol"`
	TimeframeMinutes int    `json:"timeframeMinutes"`
	Version          string `json:"version"`
}

// String renders the key as symbol|timeframe|version.
func (k SeriesKey) String() string {
	return fmt.Sprintf("%s|%d|%s", k.Symbol, k.TimeframeMinutes, k.Version)
}

// SeedBase returns the generation seed base for the key with an empty date range.
func (k SeriesKey) SeedBase() string {
	return k.String() + "|"
}

// TimeframeMs returns the bucket width in milliseconds.
func (k SeriesKey) TimeframeMs() int64 {
	return int64(k.TimeframeMinutes) * 60_000
}

// TrackedSymbol is the scheduler's per-series state. LastSavedIndex only grows
// and PrevClose is the close of the most recently finalized candle.
type TrackedSymbol struct {
	Key            SeriesKey `json:"key"`
	InitialPrice   float64   `json:"initialPrice"`
	Volatility     float64   `json:"volatility"`
	PriceDecimals  int       `json:"priceDecimals"`
	LastSavedIndex int64     `json:"lastSavedIndex"`
	PrevClose      float64   `json:"prevClose"`
}
