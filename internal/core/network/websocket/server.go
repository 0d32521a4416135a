package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/zeusync/recsync/internal/core/network/relay"
	"github.com/zeusync/recsync/internal/core/observability/log"
)

// Handler upgrades requests to WebSocket and runs a relay session on each.
type Handler struct {
	server   *relay.Server
	logger   log.Log
	upgrader websocket.Upgrader
}

func NewHandler(server *relay.Server, logger log.Log) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{
		server: server,
		logger: logger.With(log.String("transport", "websocket")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// consumers are not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", log.String("remote", r.RemoteAddr), log.Error(err))
		return
	}
	logger := h.logger.With(log.String("remote", r.RemoteAddr))
	logger.Info("relay consumer connected")
	if err := h.server.ServeConn(r.Context(), NewConn(conn)); err != nil {
		logger.Warn("relay session failed", log.Error(err))
		return
	}
	logger.Info("relay consumer done")
}
