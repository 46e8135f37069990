package main

import (
	"fmt"

	"github.com/navid-fn/tanix/internal/generator"
	"github.com/navid-fn/tanix/internal/model"
)

type mismatch struct {
	Index  int64
	Reason string
}

type verifyReport struct {
	Checked    int
	Mismatches []mismatch
}

// verify regenerates every stored candle from its own open, which is the close
// it was chained from, and checks that consecutive buckets chain.
func verify(key model.SeriesKey, stored []model.Candle, volatility float64, decimals int) verifyReport {
	report := verifyReport{Checked: len(stored)}
	seedBase := key.SeedBase()

	for i, c := range stored {
		idx := generator.CandleIndex(c.StartTimeMs, key.TimeframeMinutes)
		if generator.CandleStartTime(idx, key.TimeframeMinutes) != c.StartTimeMs {
			report.Mismatches = append(report.Mismatches, mismatch{idx, "start time is not bucket aligned"})
			continue
		}

		want := generator.GenerateCandle(seedBase, idx, c.Open, volatility, key.TimeframeMinutes, decimals, c.StartTimeMs)
		if want != c {
			report.Mismatches = append(report.Mismatches, mismatch{idx, fmt.Sprintf("stored %s, generated %s", ohlcv(c), ohlcv(want))})
			continue
		}

		if i > 0 {
			prev := stored[i-1]
			if generator.CandleIndex(prev.StartTimeMs, key.TimeframeMinutes) == idx-1 && prev.Close != c.Open {
				report.Mismatches = append(report.Mismatches, mismatch{idx, fmt.Sprintf("open %v does not continue previous close %v", c.Open, prev.Close)})
			}
		}
	}
	return report
}

func ohlcv(c model.Candle) string {
	return fmt.Sprintf("o=%v h=%v l=%v c=%v v=%d", c.Open, c.High, c.Low, c.Close, c.Volume)
}
