// Package chart serves the OTC chart: a bounded per-asset candle history
// seeded deterministically on first use and nudged by trades.
package chart

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/navid-fn/tanix/internal/assets"
	"github.com/navid-fn/tanix/internal/generator"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/sirupsen/logrus"
)

const (
	// MaxHistory bounds every asset's candle history.
	MaxHistory = 500

	DefaultPoints = 120
	MinPoints     = 20

	payloadDecimals  = 5
	historyTimeframe = 1
	tradeStepSeconds = 60
	minPrice         = 0.01
)

// ErrAssetNotFound is returned for an id or name missing from the catalogue.
var ErrAssetNotFound = errors.New("asset not found")

// Candle is a chart point; Time is epoch seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

func (c Candle) payload() Candle {
	return Candle{
		Time:  c.Time,
		Open:  generator.RoundPrice(c.Open, payloadDecimals),
		High:  generator.RoundPrice(c.High, payloadDecimals),
		Low:   generator.RoundPrice(c.Low, payloadDecimals),
		Close: generator.RoundPrice(c.Close, payloadDecimals),
	}
}

// Snapshot is the chart payload returned to clients.
type Snapshot struct {
	Asset           model.Asset `json:"asset"`
	Candles         []Candle    `json:"candles"`
	IntervalSeconds int         `json:"interval_seconds"`
	GeneratedAt     string      `json:"generated_at"`
}

// StreamConfig configures a Stream. Zero values select the defaults.
type StreamConfig struct {
	Version    string
	Volatility float64
	Now        func() time.Time
}

// Stream owns the chart histories. It is safe for concurrent use.
type Stream struct {
	version    string
	volatility float64
	now        func() time.Time
	logger     logrus.FieldLogger

	mu      sync.Mutex
	history map[string][]Candle
}

// NewStream creates an empty stream.
func NewStream(cfg StreamConfig, logger logrus.FieldLogger) *Stream {
	if cfg.Version == "" {
		cfg.Version = "v1"
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = generator.DefaultVolatility
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Stream{
		version:    cfg.Version,
		volatility: cfg.Volatility,
		now:        cfg.Now,
		logger:     logger,
		history:    make(map[string][]Candle),
	}
}

// ensure returns the history of a, seeding 500 one-minute candles ending at
// the current bucket on first reference. Callers hold s.mu.
func (s *Stream) ensure(a model.Asset) []Candle {
	if h, ok := s.history[a.ID]; ok {
		return h
	}

	nowIndex := generator.CandleIndex(s.now().UnixMilli(), historyTimeframe)
	series := generator.GenerateSeries(generator.SeriesParams{
		Symbol:           a.ID,
		TimeframeMinutes: historyTimeframe,
		Version:          s.version,
		StartTimeMs:      generator.CandleStartTime(nowIndex-MaxHistory, historyTimeframe),
		Count:            MaxHistory,
		InitialPrice:     assets.InitialPrice(a),
		Volatility:       s.volatility,
		PriceDecimals:    payloadDecimals,
	})

	h := make([]Candle, len(series))
	for i, c := range series {
		h[i] = Candle{Time: c.StartTimeMs / 1000, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
	}
	s.history[a.ID] = h
	s.logger.WithField("asset", a.ID).Debug("chart history seeded")
	return h
}

func (s *Stream) append(id string, c Candle) {
	h := append(s.history[id], c)
	if len(h) > MaxHistory {
		h = h[len(h)-MaxHistory:]
	}
	s.history[id] = h
}

// Snapshot returns the last points candles of the asset's history. A
// non-positive points selects DefaultPoints; anything below MinPoints is raised.
func (s *Stream) Snapshot(assetID, timeframe string, points int) (Snapshot, error) {
	a, ok := assets.Find(assetID)
	if !ok {
		return Snapshot{}, ErrAssetNotFound
	}
	if points <= 0 {
		points = DefaultPoints
	}
	points = max(points, MinPoints)

	s.mu.Lock()
	h := s.ensure(a)
	from := max(len(h)-points, 0)
	candles := make([]Candle, 0, len(h)-from)
	for _, c := range h[from:] {
		candles = append(candles, c.payload())
	}
	s.mu.Unlock()

	return Snapshot{
		Asset:           a,
		Candles:         candles,
		IntervalSeconds: ParseTimeframe(timeframe),
		GeneratedAt:     s.now().UTC().Format(time.RFC3339),
	}, nil
}

// ApplyTradeMovement appends a candle 60s after the last one, moved up for a
// positive net and down for a negative one. The move is max(0.05%, 0.05) of
// the price scaled by |net|/10 clamped to [0.1, 5]. Unknown assets are ignored.
func (s *Stream) ApplyTradeMovement(assetID string, net float64) bool {
	a, ok := assets.Find(assetID)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.ensure(a)
	last := h[len(h)-1]
	current := last.Close

	scale := 1.0
	if !math.IsNaN(net) && !math.IsInf(net, 0) {
		scale = min(max(math.Abs(net)/10, 0.1), 5.0)
	}
	delta := max(0.0005*current, 0.05) * scale
	if net < 0 {
		delta = -delta
	}
	next := max(minPrice, current+delta)

	s.append(a.ID, Candle{
		Time:  last.Time + tradeStepSeconds,
		Open:  current,
		High:  max(current, next),
		Low:   min(current, next),
		Close: next,
	})
	return true
}

// AdvanceTime appends the next deterministic candle after the asset's last
// one, chained from its close.
func (s *Stream) AdvanceTime(assetID string, intervalSeconds int) error {
	a, ok := assets.Find(assetID)
	if !ok {
		return ErrAssetNotFound
	}
	tf := max(intervalSeconds/60, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.ensure(a)
	last := h[len(h)-1]

	index := generator.CandleIndex(last.Time*1000, tf) + 1
	start := generator.CandleStartTime(index, tf)
	seedBase := generator.SeedBase(a.ID, tf, s.version, "")
	c := generator.GenerateCandle(seedBase, index, last.Close, s.volatility, tf, payloadDecimals, start)

	s.append(a.ID, Candle{Time: start / 1000, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close})
	return nil
}

// AdvanceAll advances every asset that has a history.
func (s *Stream) AdvanceAll(intervalSeconds int) {
	for _, id := range s.Assets() {
		if err := s.AdvanceTime(id, intervalSeconds); err != nil {
			s.logger.WithError(err).WithField("asset", id).Warn("failed to advance chart")
		}
	}
}

// Assets lists the ids with a seeded history.
func (s *Stream) Assets() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.history))
	for id := range s.history {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Run calls AdvanceAll every interval until ctx is done.
func (s *Stream) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.AdvanceAll(int(every / time.Second))
		}
	}
}
