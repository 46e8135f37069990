// Package storage persists completed and partial candles.
//
// Completed candles are insert-only: once a row exists for a series key and
// start time it is never updated. Partial candles are upserted in place.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/navid-fn/tanix/internal/model"
)

var (
	// ErrStorage wraps every failure of the underlying database.
	ErrStorage = errors.New("candle storage failure")

	// ErrInvalidCandle is returned for a candle that cannot belong to its key.
	ErrInvalidCandle = errors.New("invalid candle")
)

// CandleStore defines the persistence operations of the candle engine.
// Implementations must be safe for concurrent use.
type CandleStore interface {
	// SaveCandle inserts a completed candle. It reports false, leaving the
	// stored row untouched, when one already exists for the same start time.
	SaveCandle(ctx context.Context, key model.SeriesKey, c model.Candle) (bool, error)

	// GetCandles returns up to count of the most recent completed candles in
	// ascending start time. A non-nil endTimeMs restricts rows to start <= it.
	GetCandles(ctx context.Context, key model.SeriesKey, count int, endTimeMs *int64) ([]model.Candle, error)

	// GetLatestCandle returns the most recent completed candle, or nil.
	GetLatestCandle(ctx context.Context, key model.SeriesKey) (*model.Candle, error)

	// SavePartialCandle replaces the partial row with the same start time.
	SavePartialCandle(ctx context.Context, key model.SeriesKey, c model.Candle) (bool, error)

	// GetPartialCandle returns the partial with the greatest start time, or nil.
	GetPartialCandle(ctx context.Context, key model.SeriesKey) (*model.Candle, error)

	// DeletePartialCandle removes the partial at startTimeMs.
	DeletePartialCandle(ctx context.Context, key model.SeriesKey, startTimeMs int64) (bool, error)

	// DeleteCandles removes every completed and partial row of key and
	// returns the number of completed rows removed.
	DeleteCandles(ctx context.Context, key model.SeriesKey) (int64, error)

	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// Close releases database connection resources.
	Close() error
}

// ValidateCandle checks that c can be stored under key.
func ValidateCandle(key model.SeriesKey, c model.Candle) error {
	switch {
	case key.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidCandle)
	case key.Version == "":
		return fmt.Errorf("%w: empty version", ErrInvalidCandle)
	case key.TimeframeMinutes <= 0:
		return fmt.Errorf("%w: timeframe %d", ErrInvalidCandle, key.TimeframeMinutes)
	case c.StartTimeMs%key.TimeframeMs() != 0:
		return fmt.Errorf("%w: start %d not aligned to %dm", ErrInvalidCandle, c.StartTimeMs, key.TimeframeMinutes)
	case !c.HoldsInvariant():
		return fmt.Errorf("%w: o=%v h=%v l=%v c=%v", ErrInvalidCandle, c.Open, c.High, c.Low, c.Close)
	case c.Volume < 0:
		return fmt.Errorf("%w: volume %d", ErrInvalidCandle, c.Volume)
	}
	return nil
}

func storageErr(op string, key model.SeriesKey, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStorage, op, key, err)
}
