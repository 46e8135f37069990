package storage_test

import (
	"context"
	"testing"

	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/internal/storage"
	"github.com/navid-fn/tanix/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var btcKey = model.SeriesKey{Symbol: "BTCUSD", TimeframeMinutes: 1, Version: "v1"}

func candleAt(start int64, close float64) model.Candle {
	return model.Candle{
		StartTimeMs: start,
		Open:        close - 1,
		High:        close + 2,
		Low:         close - 3,
		Close:       close,
		Volume:      110,
	}
}

func TestSaveCandleIsInsertOnly(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	first := candleAt(60000, 100)
	inserted, err := store.SaveCandle(ctx, btcKey, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	rewrite := candleAt(60000, 250)
	inserted, err = store.SaveCandle(ctx, btcKey, rewrite)
	require.NoError(t, err)
	assert.False(t, inserted)

	latest, err := store.GetLatestCandle(ctx, btcKey)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first, *latest)
}

func TestGetCandlesOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	for i := int64(4); i >= 0; i-- {
		_, err := store.SaveCandle(ctx, btcKey, candleAt(i*60000, float64(100+i)))
		require.NoError(t, err)
	}

	all, err := store.GetCandles(ctx, btcKey, 10, nil)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].StartTimeMs, all[i].StartTimeMs)
	}

	recent, err := store.GetCandles(ctx, btcKey, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{180000, 240000}, starts(recent))

	end := int64(120000)
	bounded, err := store.GetCandles(ctx, btcKey, 2, &end)
	require.NoError(t, err)
	assert.Equal(t, []int64{60000, 120000}, starts(bounded))

	none, err := store.GetCandles(ctx, btcKey, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetLatestCandleEmpty(t *testing.T) {
	store := storagetest.NewStore(t)

	latest, err := store.GetLatestCandle(context.Background(), btcKey)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestKeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	v2 := btcKey
	v2.Version = "v2"
	five := btcKey
	five.TimeframeMinutes = 5

	_, err := store.SaveCandle(ctx, btcKey, candleAt(0, 100))
	require.NoError(t, err)
	inserted, err := store.SaveCandle(ctx, v2, candleAt(0, 200))
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := store.GetCandles(ctx, v2, 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 200.0, got[0].Close)

	got, err = store.GetCandles(ctx, five, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPartialUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	p := candleAt(120000, 100)
	p.IsPartial = true
	ok, err := store.SavePartialCandle(ctx, btcKey, p)
	require.NoError(t, err)
	assert.True(t, ok)

	p.Close = 101
	p.High = 104
	_, err = store.SavePartialCandle(ctx, btcKey, p)
	require.NoError(t, err)

	got, err := store.GetPartialCandle(ctx, btcKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p, *got)

	older := candleAt(60000, 90)
	_, err = store.SavePartialCandle(ctx, btcKey, older)
	require.NoError(t, err)
	got, err = store.GetPartialCandle(ctx, btcKey)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), got.StartTimeMs)

	deleted, err := store.DeletePartialCandle(ctx, btcKey, 120000)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeletePartialCandle(ctx, btcKey, 120000)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err = store.GetPartialCandle(ctx, btcKey)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), got.StartTimeMs)
}

func TestDeleteCandlesRemovesSeries(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	other := model.SeriesKey{Symbol: "ETHUSD", TimeframeMinutes: 1, Version: "v1"}
	for i := int64(0); i < 3; i++ {
		_, err := store.SaveCandle(ctx, btcKey, candleAt(i*60000, 100))
		require.NoError(t, err)
	}
	_, err := store.SaveCandle(ctx, other, candleAt(0, 100))
	require.NoError(t, err)
	_, err = store.SavePartialCandle(ctx, btcKey, candleAt(180000, 100))
	require.NoError(t, err)

	removed, err := store.DeleteCandles(ctx, btcKey)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	latest, err := store.GetLatestCandle(ctx, btcKey)
	require.NoError(t, err)
	assert.Nil(t, latest)
	partial, err := store.GetPartialCandle(ctx, btcKey)
	require.NoError(t, err)
	assert.Nil(t, partial)

	kept, err := store.GetCandles(ctx, other, 10, nil)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestSaveRejectsInvalidCandles(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	tests := []struct {
		name string
		key  model.SeriesKey
		c    model.Candle
	}{
		{"empty symbol", model.SeriesKey{TimeframeMinutes: 1, Version: "v1"}, candleAt(0, 100)},
		{"zero timeframe", model.SeriesKey{Symbol: "X", Version: "v1"}, candleAt(0, 100)},
		{"misaligned start", btcKey, candleAt(1234, 100)},
		{"high below body", btcKey, model.Candle{Open: 10, High: 9, Low: 8, Close: 9.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := store.SaveCandle(ctx, tt.key, tt.c)
			assert.False(t, ok)
			assert.ErrorIs(t, err, storage.ErrInvalidCandle)

			ok, err = store.SavePartialCandle(ctx, tt.key, tt.c)
			assert.False(t, ok)
			assert.ErrorIs(t, err, storage.ErrInvalidCandle)
		})
	}
}

func TestClosedStoreReportsStorageError(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())

	_, err := store.SaveCandle(ctx, btcKey, candleAt(0, 100))
	assert.ErrorIs(t, err, storage.ErrStorage)

	_, err = store.GetCandles(ctx, btcKey, 10, nil)
	assert.ErrorIs(t, err, storage.ErrStorage)

	assert.ErrorIs(t, store.Ping(ctx), storage.ErrStorage)
}

func starts(cs []model.Candle) []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.StartTimeMs
	}
	return out
}
