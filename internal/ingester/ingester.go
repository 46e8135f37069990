// Package ingester consumes finalized candle events from Kafka and replicates
// them into a second candle store. It handles batching, retry logic, and
// graceful shutdown.
package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/navid-fn/tanix/internal/events"
	"github.com/navid-fn/tanix/internal/generator"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/internal/storage"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Config holds ingester configuration parameters.
type Config struct {
	// BatchSize is the maximum number of events to accumulate before flushing.
	BatchSize int

	// BatchTimeout is the maximum time to wait before flushing, even if the batch isn't full.
	BatchTimeout time.Duration

	// RetryDelay is the pause between attempts when the store rejects a write.
	RetryDelay time.Duration
}

const drainTimeout = 10 * time.Second

// messageReader is the subset of *kafka.Reader the ingester needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type pending struct {
	key    model.SeriesKey
	candle model.Candle
}

// Ingester copies candle events into a store in batches. Offsets are committed
// only after every candle of the batch is stored, and the store is insert-only,
// so redelivered events are harmless.
type Ingester struct {
	reader messageReader
	store  storage.CandleStore
	logger logrus.FieldLogger
	cfg    Config

	saved, duplicates, skipped atomic.Int64
}

// NewIngester creates a new Ingester. Zero config values select 100 events,
// one second and two seconds.
func NewIngester(reader messageReader, store storage.CandleStore, logger logrus.FieldLogger, cfg Config) *Ingester {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Ingester{reader: reader, store: store, logger: logger, cfg: cfg}
}

// Start runs the ingestion loop until ctx is cancelled, then flushes what it
// has buffered.
func (ig *Ingester) Start(ctx context.Context) error {
	ig.logger.WithField("batch_size", ig.cfg.BatchSize).Info("Starting candle ingester")

	batch := make([]pending, 0, ig.cfg.BatchSize)
	msgs := make([]kafka.Message, 0, ig.cfg.BatchSize)

	ticker := time.NewTicker(ig.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func(ctx context.Context) error {
		if len(msgs) == 0 {
			return nil
		}
		for _, p := range batch {
			if err := ig.save(ctx, p); err != nil {
				return err
			}
		}
		if err := ig.reader.CommitMessages(ctx, msgs...); err != nil {
			ig.logger.WithError(err).Warn("Failed to commit offsets")
		}

		batch = batch[:0]
		msgs = msgs[:0]
		ticker.Reset(ig.cfg.BatchTimeout)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			// Flush remaining events; the parent context is already gone.
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			return flush(drainCtx)

		case <-ticker.C:
			if err := flush(ctx); err != nil {
				return err
			}

		default:
			fetchCtx, cancel := context.WithTimeout(ctx, ig.cfg.BatchTimeout)
			m, err := ig.reader.FetchMessage(fetchCtx)
			cancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					continue
				}
				ig.logger.WithError(err).Error("Kafka fetch error")
				sleep(ctx, ig.cfg.RetryDelay)
				continue
			}

			msgs = append(msgs, m)
			p, err := parseMessage(m)
			if err != nil {
				// Commit poison messages with the batch so they are not redelivered forever.
				ig.skipped.Add(1)
				ig.logger.WithError(err).WithField("offset", m.Offset).Warn("Dropping malformed candle event")
			} else {
				batch = append(batch, p)
			}

			if len(msgs) >= ig.cfg.BatchSize {
				if err := flush(ctx); err != nil {
					return err
				}
			}
		}
	}
}

// save keeps retrying storage failures until the store accepts the candle or
// ctx ends. Invalid candles are dropped since no retry can fix them.
func (ig *Ingester) save(ctx context.Context, p pending) error {
	log := ig.logger.WithField("series", p.key.String())
	for {
		inserted, err := ig.store.SaveCandle(ctx, p.key, p.candle)
		switch {
		case err == nil && inserted:
			ig.saved.Add(1)
			return nil
		case err == nil:
			ig.duplicates.Add(1)
			log.WithField("start_time_ms", p.candle.StartTimeMs).Debug("Candle already replicated")
			return nil
		case errors.Is(err, storage.ErrInvalidCandle):
			ig.skipped.Add(1)
			log.WithError(err).Warn("Dropping invalid candle")
			return nil
		}

		log.WithError(err).Errorf("DB insert failed (retrying in %s)", ig.cfg.RetryDelay)
		if !sleep(ctx, ig.cfg.RetryDelay) {
			return ctx.Err()
		}
	}
}

// Stats returns how many candles were stored, were already present and were dropped.
func (ig *Ingester) Stats() (saved, duplicates, skipped int64) {
	return ig.saved.Load(), ig.duplicates.Load(), ig.skipped.Load()
}

// parseMessage decodes a candle event and checks that its index matches the
// bucket of its start time.
func parseMessage(m kafka.Message) (pending, error) {
	var ev events.CandleEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return pending{}, fmt.Errorf("decode candle event: %w", err)
	}
	key := model.SeriesKey{Symbol: ev.Symbol, TimeframeMinutes: ev.TimeframeMinutes, Version: ev.Version}
	if key.Symbol == "" || key.Version == "" || key.TimeframeMinutes <= 0 {
		return pending{}, fmt.Errorf("incomplete series key %q", key.String())
	}
	if got := generator.CandleIndex(ev.Candle.StartTimeMs, key.TimeframeMinutes); got != ev.Index {
		return pending{}, fmt.Errorf("index %d does not match start time %d (bucket %d)", ev.Index, ev.Candle.StartTimeMs, got)
	}
	ev.Candle.IsPartial = false
	return pending{key: key, candle: ev.Candle}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
