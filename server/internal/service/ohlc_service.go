package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/navid-fn/tanix/internal/assets"
	"github.com/navid-fn/tanix/internal/autosave"
	"github.com/navid-fn/tanix/internal/generator"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeframe = 1
	DefaultCount     = 500
	MaxCount         = 5000
)

var (
	// ErrNotFound is returned for a symbol missing from the catalogue.
	ErrNotFound = errors.New("asset not found")

	// ErrInvalidParameter marks a request that cannot be answered at all.
	// Malformed numeric parameters are not errors; they fall back to defaults.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Tracker is the part of the autosave scheduler the query path needs.
type Tracker interface {
	TrackSymbol(ctx context.Context, p autosave.TrackParams) bool
}

// CandleDefaults are the generation parameters of every served series.
type CandleDefaults struct {
	Version       string
	Volatility    float64
	PriceDecimals int
}

// OHLCRequest is a normalized OHLC query.
type OHLCRequest struct {
	Symbol           string
	TimeframeMinutes int
	Count            int
	IncludePartial   bool
}

// ParseOHLCRequest builds a request from raw query values. Non-numeric or
// non-positive timeframe and count fall back to their defaults, count is
// capped at MaxCount, and includePartial is true unless it reads "false".
func ParseOHLCRequest(symbol, timeframe, count, includePartial string) OHLCRequest {
	req := OHLCRequest{
		Symbol:           strings.TrimSpace(symbol),
		TimeframeMinutes: DefaultTimeframe,
		Count:            DefaultCount,
		IncludePartial:   true,
	}
	if tf, err := strconv.Atoi(strings.TrimSpace(timeframe)); err == nil {
		req.TimeframeMinutes = tf
	}
	if n, err := strconv.Atoi(strings.TrimSpace(count)); err == nil {
		req.Count = n
	}
	if includePartial != "" {
		req.IncludePartial = strings.EqualFold(strings.TrimSpace(includePartial), "true")
	}
	return req.normalize()
}

func (r OHLCRequest) normalize() OHLCRequest {
	if r.TimeframeMinutes <= 0 {
		r.TimeframeMinutes = DefaultTimeframe
	}
	if r.Count <= 0 {
		r.Count = DefaultCount
	}
	r.Count = min(r.Count, MaxCount)
	return r
}

// OHLCResponse is the answer to an OHLC query. FromDatabase is true when the
// completed candles were read from the store rather than synthesized.
type OHLCResponse struct {
	Symbol           string         `json:"symbol"`
	TimeframeMinutes int            `json:"timeframeMinutes"`
	Version          string         `json:"version"`
	ServerTimeMs     int64          `json:"serverTimeMs"`
	Candles          []model.Candle `json:"candles"`
	Partial          *model.Candle  `json:"partial"`
	FromDatabase     bool           `json:"fromDatabase"`
}

// OHLCService answers OHLC queries from the store, synthesizing history for
// series that have none yet.
type OHLCService struct {
	store    storage.CandleStore
	tracker  Tracker
	defaults CandleDefaults
	now      func() time.Time
	logger   logrus.FieldLogger
}

func NewOHLCService(store storage.CandleStore, tracker Tracker, defaults CandleDefaults, logger logrus.FieldLogger) *OHLCService {
	if defaults.Version == "" {
		defaults.Version = "v1"
	}
	if defaults.Volatility <= 0 {
		defaults.Volatility = generator.DefaultVolatility
	}
	if defaults.PriceDecimals <= 0 {
		defaults.PriceDecimals = generator.DefaultPriceDecimals
	}
	return &OHLCService{
		store:    store,
		tracker:  tracker,
		defaults: defaults,
		now:      time.Now,
		logger:   logger,
	}
}

// Query returns the most recent completed candles of the series and, when
// asked, the forming candle of the current bucket. Storage read failures
// degrade to synthesized output instead of failing the request.
func (s *OHLCService) Query(ctx context.Context, req OHLCRequest) (OHLCResponse, error) {
	if req.Symbol == "" {
		return OHLCResponse{}, fmt.Errorf("%w: asset is required", ErrInvalidParameter)
	}
	asset, ok := assets.Find(req.Symbol)
	if !ok {
		return OHLCResponse{}, fmt.Errorf("%w: %s", ErrNotFound, req.Symbol)
	}
	req = req.normalize()

	key := model.SeriesKey{Symbol: asset.ID, TimeframeMinutes: req.TimeframeMinutes, Version: s.defaults.Version}
	initialPrice := assets.InitialPrice(asset)
	serverTimeMs := s.now().UnixMilli()
	log := s.logger.WithField("series", key.String())

	s.tracker.TrackSymbol(ctx, autosave.TrackParams{
		Key:           key,
		InitialPrice:  initialPrice,
		Volatility:    s.defaults.Volatility,
		PriceDecimals: s.defaults.PriceDecimals,
	})

	saved, err := s.store.GetCandles(ctx, key, req.Count, nil)
	if err != nil {
		log.WithError(err).Warn("reading candles failed, synthesizing")
		saved = nil
	}

	resp := OHLCResponse{
		Symbol:           asset.ID,
		TimeframeMinutes: req.TimeframeMinutes,
		Version:          s.defaults.Version,
		ServerTimeMs:     serverTimeMs,
	}

	prevClose := initialPrice
	if len(saved) > 0 {
		resp.Candles = saved
		resp.FromDatabase = true
		prevClose = saved[len(saved)-1].Close
	} else {
		resp.Candles = generator.GenerateSeries(generator.SeriesParams{
			Symbol:           key.Symbol,
			TimeframeMinutes: key.TimeframeMinutes,
			Version:          key.Version,
			StartTimeMs:      serverTimeMs - int64(req.Count)*key.TimeframeMs(),
			Count:            req.Count,
			InitialPrice:     initialPrice,
			Volatility:       s.defaults.Volatility,
			PriceDecimals:    s.defaults.PriceDecimals,
		})
		if n := len(resp.Candles); n > 0 {
			prevClose = resp.Candles[n-1].Close
		}
	}

	if req.IncludePartial && len(resp.Candles) > 0 {
		resp.Partial = s.partial(ctx, log, key, serverTimeMs, prevClose, resp.Candles[len(resp.Candles)-1].StartTimeMs)
	}
	return resp, nil
}

// partial returns the forming candle when its bucket starts after lastStart.
// A persisted partial is reused only if it belongs to the current bucket.
func (s *OHLCService) partial(ctx context.Context, log logrus.FieldLogger, key model.SeriesKey, serverTimeMs int64, prevClose float64, lastStart int64) *model.Candle {
	index := generator.CandleIndex(serverTimeMs, key.TimeframeMinutes)
	start := generator.CandleStartTime(index, key.TimeframeMinutes)
	if start <= lastStart {
		return nil
	}

	stored, err := s.store.GetPartialCandle(ctx, key)
	if err != nil {
		log.WithError(err).Warn("reading partial failed, generating")
	} else if stored != nil && stored.StartTimeMs == start {
		return stored
	}

	p := generator.GeneratePartialCandle(key.SeedBase(), index, prevClose, start, serverTimeMs, key.TimeframeMs(),
		s.defaults.Volatility, key.TimeframeMinutes, s.defaults.PriceDecimals)
	return &p
}
