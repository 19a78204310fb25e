package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"gopkg.in/yaml.v3"

	"tilewalk/server"
	"tilewalk/server/internal/net/proto"
	"tilewalk/server/internal/net/ws"
	"tilewalk/server/internal/observability"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/logging"
)

type HTTPHandlerConfig struct {
	ClientDir string

	// LayoutPath enables POST /layout/reload.
	LayoutPath    string
	Logger        telemetry.Logger
	Publisher     logging.Publisher
	Observability observability.Config
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string                    `json:"status"`
			ServerTime int64                     `json:"serverTime"`
			Tick       uint64                    `json:"tick"`
			Agents     []server.DiagnosticsAgent `json:"agents"`
			TickRate   int                       `json:"tickRate"`
			Heartbeat  int64                     `json:"heartbeatMillis"`
			Telemetry  map[string]uint64         `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Tick:       hub.Snapshot().Tick,
			Agents:     hub.DiagnosticsSnapshot(),
			TickRate:   hub.TickRate(),
			Heartbeat:  hub.Config().HeartbeatInterval.Milliseconds(),
			Telemetry:  hub.TelemetrySnapshot(),
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		join, ok := hub.Join()
		if !ok {
			httpError(w, "spawn unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		data, err := proto.EncodeJoinResponse(join)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/layout", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		doc := hub.Layout()
		if r.URL.Query().Get("format") == "yaml" {
			data, err := yaml.Marshal(doc)
			if err != nil {
				httpError(w, "failed to encode", nethttp.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(data)
			return
		}
		writeJSON(w, doc)
	})

	mux.HandleFunc("/layout/reload", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if cfg.LayoutPath == "" {
			httpError(w, "no layout file configured", nethttp.StatusNotFound)
			return
		}
		if err := hub.ReloadLayout(cfg.LayoutPath); err != nil {
			logger.Printf("[layout] reload failed: %v", err)
			httpError(w, err.Error(), nethttp.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, struct {
			Status string `json:"status"`
			Path   string `json:"path"`
		}{Status: "ok", Path: cfg.LayoutPath})
	})

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: logger, Publisher: cfg.Publisher})
	mux.HandleFunc("/ws", wsHandler.Handle)

	cfg.Observability.Mount(mux)

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
