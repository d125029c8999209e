package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты control API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(h.logger, fn))
	}

	handle("GET /api/v1/state", h.GetState)
	handle("GET /api/v1/states", h.GetStateHistory)
	handle("GET /api/v1/dapp", h.GetDapp)
	handle("GET /api/v1/data", h.GetData)
	handle("GET /api/v1/session", h.GetSession)
	handle("GET /api/v1/sessions", h.ListSessions)
	handle("POST /api/v1/command", h.PostCommand)

	mux.Handle("GET /healthz", http.HandlerFunc(h.Healthz))
}
