package handler

import (
	"net/http"
	"time"
)

type sessionCounter interface {
	Sessions() int
}

type HealthHandler struct {
	started time.Time
	broker  sessionCounter
}

func NewHealthHandler(broker sessionCounter) *HealthHandler {
	return &HealthHandler{started: time.Now(), broker: broker}
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, "ok", map[string]any{
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"stompSessions": h.broker.Sessions(),
	})
}
