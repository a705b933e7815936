package workflowhandler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrflow/internal/domain/audit"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/workflow"
	"hrflow/internal/requestctx"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
	"hrflow/internal/transport/http/shared"
)

// Engine is the part of workflow.Service the routes use.
type Engine interface {
	StartWorkflow(ctx context.Context, actor workflow.Actor, req workflow.StartRequest) (workflow.Instance, error)
	TakeAction(ctx context.Context, actor workflow.Actor, instanceID string, req workflow.ActionRequest) (workflow.ActionResult, error)
	CancelWorkflow(ctx context.Context, actor workflow.Actor, instanceID string) (workflow.Instance, error)
	ViewWorkflow(ctx context.Context, actor workflow.Actor, instanceID string) (workflow.Instance, error)
	ViewWorkflowHistory(ctx context.Context, actor workflow.Actor, instanceID string) ([]workflow.StepAction, error)
	GetPendingWorkflows(ctx context.Context, approverID string, limit, offset int) ([]workflow.Instance, int, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Handler struct {
	Engine      Engine
	Perms       middleware.PermissionStore
	Audit       Auditor
	Idempotency middleware.IdempotencyKeys
}

func NewHandler(engine Engine, perms middleware.PermissionStore, auditor Auditor, keys middleware.IdempotencyKeys) *Handler {
	return &Handler{Engine: engine, Perms: perms, Audit: auditor, Idempotency: keys}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/workflows", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermWorkflowStart, h.Perms)).Post("/", h.handleStart)
		r.With(middleware.RequirePermission(auth.PermWorkflowRead, h.Perms)).Get("/pending", h.handlePending)
		r.With(middleware.RequirePermission(auth.PermWorkflowRead, h.Perms)).Get("/{instanceID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermWorkflowRead, h.Perms)).Get("/{instanceID}/history", h.handleHistory)
		r.With(middleware.RequirePermission(auth.PermWorkflowAct, h.Perms), middleware.Idempotent(h.Idempotency)).Post("/{instanceID}/actions", h.handleAction)
		r.With(middleware.RequirePermission(auth.PermWorkflowStart, h.Perms)).Post("/{instanceID}/cancel", h.handleCancel)
	})
}

type startPayload struct {
	TemplateCode  string          `json:"templateCode"`
	ReferenceType string          `json:"referenceType"`
	ReferenceID   string          `json:"referenceId"`
	Metadata      json.RawMessage `json:"metadata"`
}

func actorFrom(user auth.UserContext) workflow.Actor {
	return workflow.Actor{ID: user.UserID, Roles: user.Roles}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload startPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Required("templateCode", payload.TemplateCode)
	v.Required("referenceType", payload.ReferenceType)
	v.Required("referenceId", payload.ReferenceID)
	if v.Reject(w, reqID) {
		return
	}

	inst, err := h.Engine.StartWorkflow(r.Context(), actorFrom(user), workflow.StartRequest{
		TemplateCode:  strings.TrimSpace(payload.TemplateCode),
		ReferenceType: strings.TrimSpace(payload.ReferenceType),
		ReferenceID:   strings.TrimSpace(payload.ReferenceID),
		Metadata:      payload.Metadata,
	})
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, user, "workflow.start", inst.ID, nil, inst)
	api.Created(w, inst, reqID)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	items, total, err := h.Engine.GetPendingWorkflows(r.Context(), user.UserID, page.Limit, page.Offset)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	shared.WriteTotal(w, page, total)
	api.Success(w, items, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	inst, err := h.Engine.ViewWorkflow(r.Context(), actorFrom(user), chi.URLParam(r, "instanceID"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, inst, reqID)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	history, err := h.Engine.ViewWorkflowHistory(r.Context(), actorFrom(user), chi.URLParam(r, "instanceID"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, history, reqID)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload workflow.ActionRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Required("action", string(payload.Action))
	v.NotNegative("returnToStep", payload.ReturnToStep)
	if v.Reject(w, reqID) {
		return
	}

	instanceID := chi.URLParam(r, "instanceID")
	result, err := h.Engine.TakeAction(r.Context(), actorFrom(user), instanceID, payload)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, user, "workflow."+string(payload.Action), instanceID, nil, result)
	api.Success(w, result, reqID)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	inst, err := h.Engine.CancelWorkflow(r.Context(), actorFrom(user), chi.URLParam(r, "instanceID"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, user, "workflow.cancel", inst.ID, nil, inst)
	api.Success(w, inst, reqID)
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	err := h.Audit.Record(r.Context(), audit.Entry{
		ActorID:    user.UserID,
		Action:     action,
		EntityType: "workflow_instance",
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		Before:     before,
		After:      after,
	})
	if err != nil {
		requestctx.Logger(r.Context()).Warn("audit "+action+" failed", "err", err)
	}
}
