package api

import (
	"net/http"
	"time"

	"PricePulse/internal/relay"
	xlogger "PricePulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// RelayHandler upgrades HTTP requests to websocket subscriptions on the
// relay hub.
type RelayHandler struct {
	logger       *xlogger.Logger
	hub          *relay.Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
}

func NewRelayHandler(logger *xlogger.Logger, hub *relay.Hub, writeTimeout, pingInterval time.Duration) *RelayHandler {
	return &RelayHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// Serve upgrades the request and keeps the subscription alive until the
// peer disconnects.
func (h *RelayHandler) Serve(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	conn := relay.NewWSConn(ws, h.writeTimeout, h.pingInterval)
	h.hub.OnConnect(c.Request().Context(), conn)

	conn.ReadLoop()

	h.hub.OnDisconnect(conn)
	_ = conn.Close()
	return nil
}
