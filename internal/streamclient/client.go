// Package streamclient follows the live partial-candle websocket feed of the
// API, reconnecting with exponential backoff when the connection drops.
package streamclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStop ends Watch without an error when returned by a frame handler.
	ErrStop = errors.New("stop watching")

	// ErrAssetNotFound is returned when the API rejects the asset. It is not retried.
	ErrAssetNotFound = errors.New("asset not found")
)

// Frame mirrors one message of the /v1/stream feed.
type Frame struct {
	Symbol           string        `json:"symbol"`
	TimeframeMinutes int           `json:"timeframeMinutes"`
	ServerTimeMs     int64         `json:"serverTimeMs"`
	Partial          *model.Candle `json:"partial"`
	Last             *model.Candle `json:"last"`
}

// Config holds the connection settings of a Client.
type Config struct {
	BaseURL               string
	HandshakeTimeout      time.Duration
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration

	// MaxConsecutiveErrors failed connections end Watch. Zero retries forever.
	MaxConsecutiveErrors int
}

// DefaultConfig returns the settings used by candlectl watch.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:               baseURL,
		HandshakeTimeout:      5 * time.Second,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          10 * time.Second,
		InitialReconnectDelay: time.Second,
		MaxReconnectDelay:     30 * time.Second,
		MaxConsecutiveErrors:  5,
	}
}

type Client struct {
	cfg    Config
	logger logrus.FieldLogger
	dialer websocket.Dialer
}

func New(cfg Config, logger logrus.FieldLogger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// StreamURL turns the http(s) base URL into the websocket URL of a series.
func (c *Client) StreamURL(symbol string, timeframeMinutes int) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/stream/" + symbol
	u.RawPath = ""
	u.RawQuery = url.Values{"timeframe": {strconv.Itoa(timeframeMinutes)}}.Encode()
	return u.String(), nil
}

// Watch calls fn for every frame of the series until ctx ends, fn returns an
// error, or too many connections fail in a row. fn returning ErrStop ends
// Watch with a nil error.
func (c *Client) Watch(ctx context.Context, symbol string, timeframeMinutes int, fn func(Frame) error) error {
	wsURL, err := c.StreamURL(symbol, timeframeMinutes)
	if err != nil {
		return err
	}
	log := c.logger.WithField("url", wsURL)

	reconnectDelay := c.cfg.InitialReconnectDelay
	consecutiveErrors := 0

	for {
		received, err := c.handleConnection(ctx, wsURL, fn)
		switch {
		case errors.Is(err, ErrStop):
			return nil
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrAssetNotFound), errors.Is(err, errHandler):
			return err
		}

		if received {
			consecutiveErrors = 0
			reconnectDelay = c.cfg.InitialReconnectDelay
		}
		consecutiveErrors++
		if c.cfg.MaxConsecutiveErrors > 0 && consecutiveErrors >= c.cfg.MaxConsecutiveErrors {
			return fmt.Errorf("giving up after %d failed connections: %w", consecutiveErrors, err)
		}

		log.WithError(err).Warnf("stream error (%d/%d), reconnecting in %v", consecutiveErrors, c.cfg.MaxConsecutiveErrors, reconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
		reconnectDelay = min(reconnectDelay*2, c.cfg.MaxReconnectDelay)
	}
}

var errHandler = errors.New("frame handler failed")

// handleConnection runs one connection. received reports whether at least one
// frame arrived, which resets the backoff.
func (c *Client) handleConnection(ctx context.Context, wsURL string, fn func(Frame) error) (received bool, err error) {
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, ErrAssetNotFound
		}
		return false, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	defer conn.Close()
	c.logger.WithField("url", wsURL).Debug("connected to stream")

	// Unblock ReadJSON when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.cfg.WriteTimeout))
		_ = conn.Close()
	})
	defer stop()

	conn.SetPingHandler(func(msg string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(msg), time.Now().Add(c.cfg.WriteTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return received, fmt.Errorf("WebSocket read error: %w", err)
		}
		received = true
		if err := fn(f); err != nil {
			if errors.Is(err, ErrStop) {
				return received, err
			}
			return received, fmt.Errorf("%w: %w", errHandler, err)
		}
	}
}
