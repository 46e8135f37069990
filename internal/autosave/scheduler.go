// Package autosave keeps the candle store in step with wall-clock time.
//
// On every tick each tracked series finalizes the candles whose buckets have
// closed since the previous tick and rewrites its forming partial candle. The
// in-memory state is the authority and advances even when a write fails.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/navid-fn/tanix/internal/events"
	"github.com/navid-fn/tanix/internal/generator"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultInterval is 10Hz.
	DefaultInterval = 100 * time.Millisecond

	partialLogInterval = 5 * time.Second

	// staleTicks is how many missed intervals make the loop unhealthy.
	staleTicks = 20
)

// ErrStalled is reported by Healthy when a running loop has stopped ticking.
var ErrStalled = errors.New("autosave loop stalled")

// Config configures a Scheduler. Zero values select the defaults.
type Config struct {
	Interval time.Duration
	Now      func() time.Time
}

// TrackParams describes a series to start tracking.
type TrackParams struct {
	Key           model.SeriesKey
	InitialPrice  float64
	Volatility    float64
	PriceDecimals int
}

// Scheduler finalizes and refreshes candles for every tracked series.
type Scheduler struct {
	store     storage.CandleStore
	publisher events.Publisher
	logger    logrus.FieldLogger
	interval  time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	tracked map[model.SeriesKey]*model.TrackedSymbol
	logRate map[model.SeriesKey]*rate.Sometimes

	// tickMu serializes ticks so finalization of an index happens once per process.
	tickMu   sync.Mutex
	lastTick atomic.Int64

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a stopped scheduler. A nil publisher disables events.
func New(store storage.CandleStore, publisher events.Publisher, logger logrus.FieldLogger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if publisher == nil {
		publisher = events.Noop{}
	}

	return &Scheduler{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  cfg.Interval,
		now:       cfg.Now,
		tracked:   make(map[model.SeriesKey]*model.TrackedSymbol),
		logRate:   make(map[model.SeriesKey]*rate.Sometimes),
	}
}

// TrackSymbol starts tracking p.Key from the current bucket. The first call
// for a key wins; later calls return false and change nothing. The series
// resumes from the latest persisted close when one exists.
func (s *Scheduler) TrackSymbol(ctx context.Context, p TrackParams) bool {
	if _, ok := s.Tracked(p.Key); ok {
		return false
	}

	prevClose := p.InitialPrice
	latest, err := s.store.GetLatestCandle(ctx, p.Key)
	if err != nil {
		s.logger.WithError(err).WithField("series", p.Key.String()).Warn("could not read latest candle, starting from initial price")
	} else if latest != nil {
		prevClose = latest.Close
	}

	ts := &model.TrackedSymbol{
		Key:            p.Key,
		InitialPrice:   p.InitialPrice,
		Volatility:     p.Volatility,
		PriceDecimals:  p.PriceDecimals,
		LastSavedIndex: generator.CandleIndex(s.now().UnixMilli(), p.Key.TimeframeMinutes),
		PrevClose:      prevClose,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracked[p.Key]; ok {
		return false
	}
	s.tracked[p.Key] = ts
	s.logRate[p.Key] = &rate.Sometimes{Interval: partialLogInterval}

	s.logger.WithFields(logrus.Fields{
		"series":     p.Key.String(),
		"index":      ts.LastSavedIndex,
		"prev_close": prevClose,
	}).Info("tracking series")
	return true
}

// Tracked returns a copy of the state of key.
func (s *Scheduler) Tracked(key model.SeriesKey) (model.TrackedSymbol, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tracked[key]
	if !ok {
		return model.TrackedSymbol{}, false
	}
	return *ts, true
}

// Snapshot returns every tracked series ordered by key.
func (s *Scheduler) Snapshot() []model.TrackedSymbol {
	s.mu.RLock()
	out := make([]model.TrackedSymbol, 0, len(s.tracked))
	for _, ts := range s.tracked {
		out = append(out, *ts)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Tick runs one pass over every tracked series. A failure on one series is
// logged and the pass continues with the next.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	nowMs := s.now().UnixMilli()
	for _, ts := range s.Snapshot() {
		next := s.tickSeries(ctx, ts, nowMs)

		s.mu.Lock()
		if cur, ok := s.tracked[next.Key]; ok {
			cur.LastSavedIndex = next.LastSavedIndex
			cur.PrevClose = next.PrevClose
		}
		s.mu.Unlock()
	}
	s.lastTick.Store(nowMs)
}

func (s *Scheduler) tickSeries(ctx context.Context, ts model.TrackedSymbol, nowMs int64) model.TrackedSymbol {
	key := ts.Key
	log := s.logger.WithField("series", key.String())
	seedBase := key.SeedBase()
	current := generator.CandleIndex(nowMs, key.TimeframeMinutes)

	for idx := ts.LastSavedIndex; idx < current; idx++ {
		start := generator.CandleStartTime(idx, key.TimeframeMinutes)
		c := generator.GenerateCandle(seedBase, idx, ts.PrevClose, ts.Volatility, key.TimeframeMinutes, ts.PriceDecimals, start)

		inserted, err := s.store.SaveCandle(ctx, key, c)
		switch {
		case err != nil:
			log.WithError(err).WithField("index", idx).Error("failed to save completed candle")
		case inserted:
			log.WithFields(logrus.Fields{
				"index": idx,
				"ohlc":  formatOHLC(c, ts.PriceDecimals),
			}).Info("completed candle saved")
			s.publish(ctx, log, ts, idx, c, nowMs)
		}

		if _, err := s.store.DeletePartialCandle(ctx, key, start); err != nil {
			log.WithError(err).WithField("index", idx).Warn("failed to delete superseded partial")
		}
		ts.PrevClose = c.Close
	}
	if current > ts.LastSavedIndex {
		ts.LastSavedIndex = current
	}

	start := generator.CandleStartTime(current, key.TimeframeMinutes)
	partial := generator.GeneratePartialCandle(seedBase, current, ts.PrevClose, start, nowMs, key.TimeframeMs(),
		ts.Volatility, key.TimeframeMinutes, ts.PriceDecimals)
	if _, err := s.store.SavePartialCandle(ctx, key, partial); err != nil {
		log.WithError(err).Error("failed to save partial candle")
		return ts
	}

	s.mu.RLock()
	limiter := s.logRate[key]
	s.mu.RUnlock()
	if limiter != nil {
		limiter.Do(func() {
			log.WithField("close", partial.Close).Info("partial candle saved")
		})
	}
	return ts
}

// publish runs under tickMu, so the publisher must not wait on the broker.
// Kafka publishers are wrapped in events.AsyncPublisher for that.
func (s *Scheduler) publish(ctx context.Context, log logrus.FieldLogger, ts model.TrackedSymbol, idx int64, c model.Candle, nowMs int64) {
	err := s.publisher.Publish(ctx, events.CandleEvent{
		Symbol:           ts.Key.Symbol,
		TimeframeMinutes: ts.Key.TimeframeMinutes,
		Version:          ts.Key.Version,
		Index:            idx,
		Candle:           c,
		FinalizedAtMs:    nowMs,
	})
	if err != nil {
		log.WithError(err).WithField("index", idx).Warn("failed to publish candle event")
	}
}

// Start launches the tick loop. Calling Start on a running scheduler does
// nothing. The loop ends when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.alive() {
		return
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.lastTick.Store(s.now().UnixMilli())

	// Ticks outlive cancellation of ctx so Stop can drain the in-flight one.
	tickCtx := context.WithoutCancel(ctx)
	go s.loop(ctx, tickCtx, s.stop, s.done)

	s.logger.WithField("interval", s.interval).Info("autosave started")
}

func (s *Scheduler) loop(ctx, tickCtx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			s.logger.Info("autosave stopped by context")
			return
		case <-ticker.C:
			s.Tick(tickCtx)
		}
	}
}

// Stop signals the loop and waits for the in-flight tick to finish. The tick
// is not aborted.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}

	close(s.stop)
	<-s.done
	s.running = false
	s.logger.Info("autosave stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.alive()
}

// alive reports whether a started loop has not exited yet. Callers hold runMu.
func (s *Scheduler) alive() bool {
	if !s.running {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Healthy returns ErrStalled when a running loop has not ticked for a while.
func (s *Scheduler) Healthy(context.Context) error {
	if !s.Running() {
		return nil
	}
	last := time.UnixMilli(s.lastTick.Load())
	if lag := s.now().Sub(last); lag > staleTicks*s.interval {
		return fmt.Errorf("%w: last tick %s ago", ErrStalled, lag.Truncate(time.Millisecond))
	}
	return nil
}

func formatOHLC(c model.Candle, decimals int) string {
	return fmt.Sprintf("%.*f/%.*f/%.*f/%.*f", decimals, c.Open, decimals, c.High, decimals, c.Low, decimals, c.Close)
}
