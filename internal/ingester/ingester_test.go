package ingester

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/navid-fn/tanix/internal/events"
	"github.com/navid-fn/tanix/internal/generator"
	"github.com/navid-fn/tanix/internal/logger"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/internal/storage"
	"github.com/navid-fn/tanix/internal/storage/storagetest"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

// failingStore rejects the first failures saves with a storage error.
type failingStore struct {
	storage.CandleStore
	mu       sync.Mutex
	failures int
}

func (s *failingStore) SaveCandle(ctx context.Context, key model.SeriesKey, c model.Candle) (bool, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return false, storage.ErrStorage
	}
	s.mu.Unlock()
	return s.CandleStore.SaveCandle(ctx, key, c)
}

var testKey = model.SeriesKey{Symbol: "OTC-AAPL", TimeframeMinutes: 1, Version: "v1"}

func candleMessage(t *testing.T, offset, index int64) kafka.Message {
	t.Helper()
	c := generator.GenerateCandle(testKey.SeedBase(), index, 189.42, 0.02, 1, 5, generator.CandleStartTime(index, 1))
	value, err := json.Marshal(events.CandleEvent{
		Symbol:           testKey.Symbol,
		TimeframeMinutes: testKey.TimeframeMinutes,
		Version:          testKey.Version,
		Index:            index,
		Candle:           c,
	})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(testKey.String()), Value: value}
}

func runIngester(t *testing.T, ig *Ingester, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ig.Start(ctx) }()

	require.Eventually(t, until, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ingester did not stop")
	}
}

func TestIngesterReplicatesAndCommits(t *testing.T) {
	store := storagetest.NewStore(t)
	reader := newFakeReader(
		candleMessage(t, 1, 100),
		candleMessage(t, 2, 101),
		candleMessage(t, 3, 100), // redelivery
	)
	ig := NewIngester(reader, store, logger.Discard(), Config{BatchSize: 3, BatchTimeout: 20 * time.Millisecond})

	runIngester(t, ig, func() bool { return len(reader.Committed()) == 3 })

	got, err := store.GetCandles(context.Background(), testKey, 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, generator.CandleStartTime(100, 1), got[0].StartTimeMs)
	assert.Equal(t, []int64{1, 2, 3}, reader.Committed())

	saved, duplicates, skipped := ig.Stats()
	assert.Equal(t, int64(2), saved)
	assert.Equal(t, int64(1), duplicates)
	assert.Zero(t, skipped)
}

func TestIngesterFlushesOnTimeout(t *testing.T) {
	store := storagetest.NewStore(t)
	reader := newFakeReader(candleMessage(t, 7, 5))
	ig := NewIngester(reader, store, logger.Discard(), Config{BatchSize: 100, BatchTimeout: 10 * time.Millisecond})

	runIngester(t, ig, func() bool { return len(reader.Committed()) == 1 })

	latest, err := store.GetLatestCandle(context.Background(), testKey)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, generator.CandleStartTime(5, 1), latest.StartTimeMs)
}

func TestIngesterRetriesStorageErrors(t *testing.T) {
	store := &failingStore{CandleStore: storagetest.NewStore(t), failures: 2}
	reader := newFakeReader(candleMessage(t, 1, 42))
	ig := NewIngester(reader, store, logger.Discard(), Config{
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RetryDelay:   time.Millisecond,
	})

	runIngester(t, ig, func() bool { return len(reader.Committed()) == 1 })

	saved, _, _ := ig.Stats()
	assert.Equal(t, int64(1), saved)
}

func TestIngesterDropsMalformedEvents(t *testing.T) {
	store := storagetest.NewStore(t)
	wrongIndex := candleMessage(t, 2, 10)
	var ev events.CandleEvent
	require.NoError(t, json.Unmarshal(wrongIndex.Value, &ev))
	ev.Index = 11
	wrongIndex.Value, _ = json.Marshal(ev)

	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte("not json")},
		wrongIndex,
		candleMessage(t, 3, 12),
	)
	ig := NewIngester(reader, store, logger.Discard(), Config{BatchSize: 3, BatchTimeout: 10 * time.Millisecond})

	runIngester(t, ig, func() bool { return len(reader.Committed()) == 3 })

	saved, _, skipped := ig.Stats()
	assert.Equal(t, int64(1), saved)
	assert.Equal(t, int64(2), skipped)
}

func TestParseMessage(t *testing.T) {
	p, err := parseMessage(candleMessage(t, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, testKey, p.key)
	assert.False(t, p.candle.IsPartial)

	_, err = parseMessage(kafka.Message{Value: []byte(`{"symbol":"","timeframeMinutes":1,"version":"v1"}`)})
	assert.Error(t, err)

	_, err = parseMessage(kafka.Message{Value: []byte(`{`)})
	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}
