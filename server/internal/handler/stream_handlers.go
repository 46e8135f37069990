package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/navid-fn/tanix/internal/model"
	"github.com/navid-fn/tanix/server/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// LiveFrame is one websocket message of the partial-candle feed.
type LiveFrame struct {
	Symbol           string        `json:"symbol"`
	TimeframeMinutes int           `json:"timeframeMinutes"`
	ServerTimeMs     int64         `json:"serverTimeMs"`
	Partial          *model.Candle `json:"partial"`
	Last             *model.Candle `json:"last"`
}

type StreamHandler struct {
	ohlcService *service.OHLCService
	upgrader    websocket.Upgrader
	interval    time.Duration
	logger      logrus.FieldLogger
	done        chan struct{}
	closeOnce   sync.Once
}

// NewStreamHandler pushes a frame every interval to each connected client.
func NewStreamHandler(service *service.OHLCService, interval time.Duration, logger logrus.FieldLogger) *StreamHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &StreamHandler{
		ohlcService: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Shutdown ends every open stream. Hijacked connections are not closed by
// http.Server.Shutdown.
func (h *StreamHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Stream upgrades to a websocket and streams the forming candle of the asset.
func (h *StreamHandler) Stream(c *gin.Context) {
	req := service.ParseOHLCRequest(c.Param("asset"), c.Query("timeframe"), "1", "true")

	// Resolve the asset before upgrading so unknown assets get a plain 404.
	first, err := h.frame(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.WithFields(logrus.Fields{"asset": req.Symbol, "remote": c.ClientIP()})
	log.Info("stream client connected")
	defer log.Info("stream client disconnected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go h.readPump(conn, cancel)

	if err := h.write(conn, first); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			f, err := h.frame(ctx, req)
			if err != nil {
				log.WithError(err).Warn("stream frame failed")
				continue
			}
			if err := h.write(conn, f); err != nil {
				log.WithError(err).Debug("stream write failed")
				return
			}
		}
	}
}

func (h *StreamHandler) frame(ctx context.Context, req service.OHLCRequest) (LiveFrame, error) {
	resp, err := h.ohlcService.Query(ctx, req)
	if err != nil {
		return LiveFrame{}, err
	}
	f := LiveFrame{
		Symbol:           resp.Symbol,
		TimeframeMinutes: resp.TimeframeMinutes,
		ServerTimeMs:     resp.ServerTimeMs,
		Partial:          resp.Partial,
	}
	if n := len(resp.Candles); n > 0 {
		f.Last = &resp.Candles[n-1]
	}
	return f, nil
}

func (h *StreamHandler) write(conn *websocket.Conn, f LiveFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

// readPump discards client messages and cancels the stream when the peer goes away.
func (h *StreamHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
