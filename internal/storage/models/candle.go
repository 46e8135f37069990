// Package models defines the gorm row types of the candle store.
package models

import "github.com/navid-fn/tanix/internal/model"

// Candle is a completed, immutable candle row. The composite primary key is
// the uniqueness guard that makes inserts first-writer-wins.
type Candle struct {
	// Symbol is the asset id (e.g., "OTC-AAPL").
	Symbol string `gorm:"primaryKey;size:64"`

	// TimeframeMinutes is the bucket width.
	TimeframeMinutes int `gorm:"primaryKey;autoIncrement:false"`

	// Version partitions regenerated histories.
	Version string `gorm:"primaryKey;size:32"`

	// StartTimeMs is the UTC epoch millisecond at which the bucket opens.
	StartTimeMs int64 `gorm:"primaryKey;autoIncrement:false"`

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64

	// CreatedAt is when the row was first written, in epoch milliseconds.
	CreatedAt int64 `gorm:"autoCreateTime:milli"`
}

// TableName pins the table created by the migrations.
func (Candle) TableName() string {
	return "candles"
}

// PartialCandle is the forming candle of a series. It is overwritten in place
// until the bucket closes and is then deleted.
type PartialCandle struct {
	Symbol           string `gorm:"primaryKey;size:64"`
	TimeframeMinutes int    `gorm:"primaryKey;autoIncrement:false"`
	Version          string `gorm:"primaryKey;size:32"`
	StartTimeMs      int64  `gorm:"primaryKey;autoIncrement:false"`

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64

	UpdatedAt int64 `gorm:"autoUpdateTime:milli"`
}

// TableName pins the table created by the migrations.
func (PartialCandle) TableName() string {
	return "partial_candles"
}

// NewCandle converts a domain candle into a row for key.
func NewCandle(key model.SeriesKey, c model.Candle) Candle {
	return Candle{
		Symbol:           key.Symbol,
		TimeframeMinutes: key.TimeframeMinutes,
		Version:          key.Version,
		StartTimeMs:      c.StartTimeMs,
		Open:             c.Open,
		High:             c.High,
		Low:              c.Low,
		Close:            c.Close,
		Volume:           c.Volume,
	}
}

// ToDomain drops the key columns.
func (r Candle) ToDomain() model.Candle {
	return model.Candle{
		StartTimeMs: r.StartTimeMs,
		Open:        r.Open,
		High:        r.High,
		Low:         r.Low,
		Close:       r.Close,
		Volume:      r.Volume,
	}
}

// NewPartialCandle converts a forming candle into a row for key.
func NewPartialCandle(key model.SeriesKey, c model.Candle) PartialCandle {
	return PartialCandle{
		Symbol:           key.Symbol,
		TimeframeMinutes: key.TimeframeMinutes,
		Version:          key.Version,
		StartTimeMs:      c.StartTimeMs,
		Open:             c.Open,
		High:             c.High,
		Low:              c.Low,
		Close:            c.Close,
		Volume:           c.Volume,
	}
}

// ToDomain returns the row as a partial candle.
func (r PartialCandle) ToDomain() model.Candle {
	return model.Candle{
		StartTimeMs: r.StartTimeMs,
		Open:        r.Open,
		High:        r.High,
		Low:         r.Low,
		Close:       r.Close,
		Volume:      r.Volume,
		IsPartial:   true,
	}
}
