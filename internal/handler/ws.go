package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/sessiond/internal/logger"
	"github.com/sessiond/internal/middleware"
	"github.com/sessiond/internal/ws"
)

type WSHandler struct {
	hub       *ws.Hub
	anyOrigin bool
	origins   map[string]struct{}
	upgrader  websocket.Upgrader
}

// NewWSHandler создаёт обработчик потока событий. origins — тот же список, что и для CORS ("*" — любой).
func NewWSHandler(hub *ws.Hub, origins []string) *WSHandler {
	h := &WSHandler{hub: hub, origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			h.anyOrigin = true
		}
		if o != "" {
			h.origins[o] = struct{}{}
		}
	}
	if len(h.origins) == 0 {
		h.anyOrigin = true
	}
	h.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: h.originAllowed}
	return h
}

// originAllowed пропускает запросы без Origin (не браузер) и origins из списка.
func (h *WSHandler) originAllowed(r *http.Request) bool {
	if h.anyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// ServeEvents — GET /ws/events[?sessionId=]: поток событий жизненного цикла сессий.
func (h *WSHandler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	if !h.originAllowed(r) {
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, middleware.ClientIP(r), r.URL.Query().Get("sessionId"))
	client.Start()
	if err := h.hub.Register(client); err != nil {
		logger.Errorf("ws register remote=%s: %v", middleware.ClientIP(r), err)
		client.CloseWith(websocket.CloseTryAgainLater, err.Error())
	}
}
