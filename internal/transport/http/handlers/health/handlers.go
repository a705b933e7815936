package healthhandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	DB Pinger
}

func NewHandler(db Pinger) *Handler {
	return &Handler{DB: db}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.Success(w, map[string]string{"status": "ok"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.DB == nil {
		api.Fail(w, http.StatusServiceUnavailable, "not_ready", "database not configured", reqID)
		return
	}
	if err := h.DB.Ping(ctx); err != nil {
		slog.Warn("readiness check failed", "err", err)
		api.Fail(w, http.StatusServiceUnavailable, "not_ready", "database unavailable", reqID)
		return
	}
	api.Success(w, map[string]string{"status": "ready"}, reqID)
}
