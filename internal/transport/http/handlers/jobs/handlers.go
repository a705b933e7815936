package jobshandler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrflow/internal/domain/auth"
	"hrflow/internal/platform/jobs"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
)

type Runner interface {
	RunNow(ctx context.Context, jobType, scope string, run func(context.Context) (any, error)) (any, error)
	Sweep(ctx context.Context) (jobs.SweepReport, error)
	PollSettlements(ctx context.Context) (int, error)
}

type Handler struct {
	Jobs  Runner
	Perms middleware.PermissionStore
}

func NewHandler(runner Runner, perms middleware.PermissionStore) *Handler {
	return &Handler{Jobs: runner, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermJobsRun, h.Perms))
		r.Post("/workflow-sweep", h.handleSweep)
		r.Post("/settlement-poll", h.handlePoll)
	})
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	report, err := h.Jobs.RunNow(r.Context(), jobs.JobWorkflowSweep, "manual", func(ctx context.Context) (any, error) {
		return h.Jobs.Sweep(ctx)
	})
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, report, reqID)
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	queued, err := h.Jobs.PollSettlements(r.Context())
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Accepted(w, map[string]int{"queued": queued}, reqID)
}
