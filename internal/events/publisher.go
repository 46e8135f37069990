// Package events publishes finalized candles to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/navid-fn/tanix/internal/faulttolerance"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// CandleEvent is the message value written for each finalized candle.
type CandleEvent struct {
	Symbol           string       `json:"symbol"`
	TimeframeMinutes int          `json:"timeframeMinutes"`
	Version          string       `json:"version"`
	Index            int64        `json:"index"`
	Candle           model.Candle `json:"candle"`
	FinalizedAtMs    int64        `json:"finalizedAtMs"`
}

// Publisher receives finalized candles. Publish must not block the caller for
// long; a failed publish never affects what was persisted.
type Publisher interface {
	Publish(ctx context.Context, ev CandleEvent) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, CandleEvent) error { return nil }
func (Noop) Close() error                               { return nil }

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON candle events keyed by series, so every candle of
// a series lands on the same partition in index order.
type KafkaPublisher struct {
	writer  messageWriter
	breaker *faulttolerance.CircuitBreaker
	logger  logrus.FieldLogger
}

// NewKafkaWriter builds the writer used for candle events.
func NewKafkaWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Zstd,
	}
}

// NewKafkaPublisher wraps w with a circuit breaker so a dead broker costs one
// failed write per cool-down instead of one per candle.
func NewKafkaPublisher(w messageWriter, logger logrus.FieldLogger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		breaker: faulttolerance.NewCircuitBreaker(faulttolerance.CircuitBreakerConfig{
			MaxFailures: 3,
			Timeout:     30 * time.Second,
			Name:        "kafka-candles",
		}, logger),
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev CandleEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal candle event: %w", err)
	}

	key := model.SeriesKey{Symbol: ev.Symbol, TimeframeMinutes: ev.TimeframeMinutes, Version: ev.Version}
	msg := kafka.Message{
		Key:   []byte(key.String()),
		Value: value,
		Time:  time.UnixMilli(ev.FinalizedAtMs),
	}

	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, msg)
	})
}

// Healthy reports an error while the breaker is open.
func (p *KafkaPublisher) Healthy(context.Context) error {
	if p.breaker.State() == faulttolerance.StateOpen {
		return faulttolerance.ErrCircuitBreakerOpen
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.WithError(err).Error("error closing kafka writer")
		return err
	}
	return nil
}
