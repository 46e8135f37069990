// Package generator turns seeds into deterministic OHLCV candles.
//
// Every function here is pure: the same inputs always produce bit-identical
// candles, which is what lets completed candles be regenerated on any process
// and still match what was persisted.
package generator

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/internal/rng"
)

const (
	// DefaultVolatility is the per-minute standard deviation of the close move.
	DefaultVolatility = 0.02

	// DefaultPriceDecimals is used by the OTC charts.
	DefaultPriceDecimals = 5

	intradaySpread = 0.3
	baseVolume     = 100.0
	volumeJitter   = 0.5
)

// ErrDeterminismViolation marks a candle that broke the OHLC ordering invariant.
var ErrDeterminismViolation = errors.New("candle violates low <= body <= high")

// SeriesParams describes a run of candles seeded from one seed base.
type SeriesParams struct {
	Symbol            string
	TimeframeMinutes  int
	Version           string
	StartTimeMs       int64
	Count             int
	InitialPrice      float64
	Volatility        float64
	PriceDecimals     int
	DateRangeStartISO string
}

// SeedBase builds "{symbol}|{timeframe}|{version}|{dateRangeStartISO}".
func SeedBase(symbol string, timeframeMinutes int, version, dateRangeStartISO string) string {
	return fmt.Sprintf("%s|%d|%s|%s", symbol, timeframeMinutes, version, dateRangeStartISO)
}

func closeSeed(seedBase string, index int64) string {
	return seedBase + "|candle|" + strconv.FormatInt(index, 10)
}

// intradayFactors draws the high and low spread factors, high first.
func intradayFactors(seedBase string, index int64, volatility, f float64) (float64, float64) {
	g := rng.New(closeSeed(seedBase, index) + "|intraday")
	hf := math.Abs(g.Gaussian()) * volatility * intradaySpread * f
	lf := math.Abs(g.Gaussian()) * volatility * intradaySpread * f
	return hf, lf
}

// GenerateCandle produces the completed candle at index given the previous close.
func GenerateCandle(seedBase string, index int64, prevClose, volatility float64, timeframeMinutes, priceDecimals int, startTimeMs int64) model.Candle {
	z := rng.New(closeSeed(seedBase, index)).Gaussian()
	pctMove := z * volatility * math.Sqrt(float64(timeframeMinutes))

	// Explicit float64 conversions keep the compiler from fusing a product
	// into the following add, which would change low bits on FMA hardware.
	open := prevClose
	closePrice := prevClose * (1 + float64(pctMove))

	hf, lf := intradayFactors(seedBase, index, volatility, 1)
	high := math.Max(open, closePrice) * (1 + float64(hf))
	low := math.Min(open, closePrice) * (1 - float64(lf))

	u := rng.New(closeSeed(seedBase, index) + "|volume").Float64()
	volume := int64(math.Floor(baseVolume * (1 + float64(u*volumeJitter))))

	return seal(model.Candle{
		StartTimeMs: startTimeMs,
		Open:        RoundPrice(open, priceDecimals),
		High:        RoundPrice(high, priceDecimals),
		Low:         RoundPrice(low, priceDecimals),
		Close:       RoundPrice(closePrice, priceDecimals),
		Volume:      volume,
	})
}

// GenerateSeries chains Count candles from InitialPrice. Candle i uses index i
// and starts at StartTimeMs + i*timeframe.
func GenerateSeries(p SeriesParams) []model.Candle {
	if p.Count <= 0 {
		return []model.Candle{}
	}

	seedBase := SeedBase(p.Symbol, p.TimeframeMinutes, p.Version, p.DateRangeStartISO)
	width := TimeframeMs(p.TimeframeMinutes)
	candles := make([]model.Candle, 0, p.Count)
	prevClose := p.InitialPrice

	for i := 0; i < p.Count; i++ {
		c := GenerateCandle(seedBase, int64(i), prevClose, p.Volatility, p.TimeframeMinutes, p.PriceDecimals, p.StartTimeMs+int64(i)*width)
		candles = append(candles, c)
		prevClose = c.Close
	}
	return candles
}

// ElapsedFraction returns how far serverTimeMs is into the bucket, clamped to [0,1].
func ElapsedFraction(candleStartMs, serverTimeMs, timeframeMs int64) float64 {
	if timeframeMs <= 0 {
		return 1
	}
	f := float64(serverTimeMs-candleStartMs) / float64(timeframeMs)
	return math.Min(1, math.Max(0, f))
}

// GeneratePartialCandle interpolates the forming candle at index toward the
// completed candle it becomes. At f=1 its close equals the completed close.
func GeneratePartialCandle(seedBase string, index int64, prevClose float64, candleStartMs, serverTimeMs, timeframeMs int64, volatility float64, timeframeMinutes, priceDecimals int) model.Candle {
	target := GenerateCandle(seedBase, index, prevClose, volatility, timeframeMinutes, priceDecimals, candleStartMs)
	f := ElapsedFraction(candleStartMs, serverTimeMs, timeframeMs)

	open := prevClose
	closePrice := open + float64((target.Close-open)*f)

	hf, lf := intradayFactors(seedBase, index, volatility, f)
	high := math.Max(open, closePrice) * (1 + float64(hf))
	low := math.Min(open, closePrice) * (1 - float64(lf))

	c := seal(model.Candle{
		StartTimeMs: candleStartMs,
		Open:        RoundPrice(open, priceDecimals),
		High:        RoundPrice(high, priceDecimals),
		Low:         RoundPrice(low, priceDecimals),
		Close:       RoundPrice(closePrice, priceDecimals),
		Volume:      int64(math.Floor(float64(target.Volume) * f)),
	})
	c.IsPartial = true
	return c
}

// RoundPrice rounds x to decimals places, half-to-even on the exact binary
// value. strconv performs correctly rounded formatting, so this matches any
// implementation that rounds the true value rather than x*10^d.
func RoundPrice(x float64, decimals int) float64 {
	if decimals < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', decimals, 64), 64)
	if err != nil {
		return x
	}
	return v
}

// Validate returns ErrDeterminismViolation when c breaks the OHLC ordering.
func Validate(c model.Candle) error {
	if !c.HoldsInvariant() {
		return fmt.Errorf("%w: o=%v h=%v l=%v c=%v", ErrDeterminismViolation, c.Open, c.High, c.Low, c.Close)
	}
	return nil
}

// seal widens high/low to cover the body if rounding pushed them inside it.
func seal(c model.Candle) model.Candle {
	if Validate(c) != nil {
		c.High = math.Max(c.High, c.BodyHigh())
		c.Low = math.Min(c.Low, c.BodyLow())
	}
	return c
}
