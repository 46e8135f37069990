package streamclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/navid-fn/tanix/internal/logger"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig(baseURL)
	cfg.InitialReconnectDelay = time.Millisecond
	cfg.MaxReconnectDelay = 5 * time.Millisecond
	cfg.ReadTimeout = time.Second
	return cfg
}

// feed serves framesPerConn frames on every connection and then drops it.
func feed(t *testing.T, framesPerConn int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stream/OTC-AAPL" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)
		for i := 0; i < framesPerConn; i++ {
			f := Frame{
				Symbol:           "OTC-AAPL",
				TimeframeMinutes: 1,
				ServerTimeMs:     int64(n)*1000 + int64(i),
				Partial:          &model.Candle{Open: 1, High: 2, Low: 0.5, Close: 1.5, IsPartial: true},
			}
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base, want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/v1/stream/OTC-AAPL?timeframe=5"},
		{"https://api.example.com/", "wss://api.example.com/v1/stream/OTC-AAPL?timeframe=5"},
	}
	for _, tt := range tests {
		got, err := New(DefaultConfig(tt.base), logger.Discard()).StreamURL("OTC-AAPL", 5)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	got, err := New(DefaultConfig("http://h"), logger.Discard()).StreamURL("OTC: AAPL", 1)
	require.NoError(t, err)
	assert.Equal(t, "ws://h/v1/stream/OTC:%20AAPL?timeframe=1", got)

	_, err = New(DefaultConfig("ftp://h"), logger.Discard()).StreamURL("OTC-AAPL", 1)
	assert.Error(t, err)
}

func TestWatchDeliversFramesUntilStop(t *testing.T) {
	srv, _ := feed(t, 10)
	c := New(testConfig(srv.URL), logger.Discard())

	var got []Frame
	err := c.Watch(context.Background(), "OTC-AAPL", 1, func(f Frame) error {
		got = append(got, f)
		if len(got) == 3 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "OTC-AAPL", got[0].Symbol)
	assert.True(t, got[0].Partial.IsPartial)
}

func TestWatchReconnects(t *testing.T) {
	srv, conns := feed(t, 1)
	c := New(testConfig(srv.URL), logger.Discard())

	seen := 0
	err := c.Watch(context.Background(), "OTC-AAPL", 1, func(Frame) error {
		seen++
		if seen == 3 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, conns.Load(), int32(3))
}

func TestWatchUnknownAssetIsNotRetried(t *testing.T) {
	srv, conns := feed(t, 1)
	c := New(testConfig(srv.URL), logger.Discard())

	err := c.Watch(context.Background(), "OTC-DOGE", 1, func(Frame) error { return nil })
	assert.ErrorIs(t, err, ErrAssetNotFound)
	assert.Zero(t, conns.Load())
}

func TestWatchGivesUp(t *testing.T) {
	srv, _ := feed(t, 0)
	cfg := testConfig(srv.URL)
	cfg.MaxConsecutiveErrors = 3
	c := New(cfg, logger.Discard())

	err := c.Watch(context.Background(), "OTC-AAPL", 1, func(Frame) error { return nil })
	assert.ErrorContains(t, err, "giving up after 3 failed connections")
}

func TestWatchReturnsHandlerErrors(t *testing.T) {
	srv, _ := feed(t, 5)
	c := New(testConfig(srv.URL), logger.Discard())

	boom := errors.New("boom")
	err := c.Watch(context.Background(), "OTC-AAPL", 1, func(Frame) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWatchStopsWithContext(t *testing.T) {
	srv, _ := feed(t, 1000)
	c := New(testConfig(srv.URL), logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	err := c.Watch(ctx, "OTC-AAPL", 1, func(Frame) error {
		cancel()
		return nil
	})
	assert.NoError(t, err)
}
