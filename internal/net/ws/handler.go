package ws

import (
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"tilewalk/server"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/logging"
)

type HandlerConfig struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
}

// Handler upgrades /ws requests and runs one session per agent.
type Handler struct {
	hub       *server.Hub
	logger    telemetry.Logger
	publisher logging.Publisher
	upgrader  websocket.Upgrader
}

func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:       hub,
		logger:    logger,
		publisher: cfg.Publisher,
		upgrader:  upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	agentID := r.URL.Query().Get("id")
	if agentID == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", agentID, err)
		return
	}
	h.Serve(agentID, conn)
}
