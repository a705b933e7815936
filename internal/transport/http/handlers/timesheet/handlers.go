package timesheethandler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"hrflow/internal/domain/audit"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/settlement"
	"hrflow/internal/domain/timesheet"
	"hrflow/internal/platform/jobs"
	"hrflow/internal/requestctx"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/middleware"
	"hrflow/internal/transport/http/shared"
)

type Approvals interface {
	SubmitPeriod(ctx context.Context, submittedBy string, req timesheet.SubmitRequest) (timesheet.Finalization, error)
	ProcessApproval(ctx context.Context, req timesheet.ApprovalRequest) (timesheet.ApprovalResult, error)
	MarkSentToPayroll(ctx context.Context, finalizationID, actorID string) (timesheet.Finalization, error)
	GetFinalization(ctx context.Context, id string) (timesheet.Finalization, error)
	GetHistory(ctx context.Context, finalizationID string) ([]timesheet.HistoryEntry, error)
	ListPendingForApprover(ctx context.Context, approverID string, limit, offset int) ([]timesheet.Finalization, error)
}

type Settlements interface {
	Settle(ctx context.Context, finalizationID string) (settlement.Run, error)
	Summaries(ctx context.Context, finalizationID string) ([]settlement.Summary, error)
	Job(ctx context.Context, finalizationID string) (settlement.Job, error)
}

// Jobs hands settlement work to the background worker. RunNow records a
// job run for synchronous settles.
type Jobs interface {
	EnqueueSettlement(finalizationID string) bool
	RunNow(ctx context.Context, jobType, scope string, run func(context.Context) (any, error)) (any, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Handler struct {
	Approvals   Approvals
	Settlements Settlements
	Jobs        Jobs
	Perms       middleware.PermissionStore
	Audit       Auditor
	Idempotency middleware.IdempotencyKeys
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/timesheets/finalizations", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermTimesheetSubmit, h.Perms)).Post("/", h.handleSubmit)
		r.With(middleware.RequirePermission(auth.PermTimesheetApprove, h.Perms)).Get("/pending", h.handlePending)
		r.With(middleware.RequirePermission(auth.PermTimesheetRead, h.Perms)).Get("/{finalizationID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermTimesheetRead, h.Perms)).Get("/{finalizationID}/history", h.handleHistory)
		r.With(middleware.RequirePermission(auth.PermTimesheetApprove, h.Perms), middleware.Idempotent(h.Idempotency)).Post("/{finalizationID}/approval", h.handleApproval)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/{finalizationID}/summaries", h.handleSummaries)
		r.With(middleware.RequirePermission(auth.PermPayrollSettle, h.Perms)).Post("/{finalizationID}/settle", h.handleSettle)
		r.With(middleware.RequirePermission(auth.PermPayrollSettle, h.Perms)).Post("/{finalizationID}/send-to-payroll", h.handleSendToPayroll)
	})
}

type submitPayload struct {
	PeriodStart string   `json:"periodStart"`
	PeriodEnd   string   `json:"periodEnd"`
	EmployeeIDs []string `json:"employeeIds"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload submitPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	if strings.TrimSpace(user.CompanyID) == "" {
		v.Add("companyId", "token carries no company")
	}
	start, end := v.Period("periodStart", payload.PeriodStart, "periodEnd", payload.PeriodEnd)
	if len(payload.EmployeeIDs) == 0 {
		v.Add("employeeIds", "must list at least one employee")
	}
	if v.Reject(w, reqID) {
		return
	}

	f, err := h.Approvals.SubmitPeriod(r.Context(), user.UserID, timesheet.SubmitRequest{
		CompanyID:   user.CompanyID,
		PeriodStart: start,
		PeriodEnd:   end,
		EmployeeIDs: payload.EmployeeIDs,
	})
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, user, "timesheet.submit", f.ID, nil, f)
	api.Created(w, f, reqID)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	items, err := h.Approvals.ListPendingForApprover(r.Context(), user.UserID, page.Limit, page.Offset)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, items, reqID)
}

// finalization loads the addressed finalization and hides other
// companies' rows behind a 404.
func (h *Handler) finalization(w http.ResponseWriter, r *http.Request, user auth.UserContext) (timesheet.Finalization, bool) {
	reqID := middleware.GetRequestID(r.Context())
	f, err := h.Approvals.GetFinalization(r.Context(), chi.URLParam(r, "finalizationID"))
	if err == nil && f.CompanyID != user.CompanyID {
		err = timesheet.ErrFinalizationNotFound
	}
	if err != nil {
		api.FailError(w, err, reqID)
		return timesheet.Finalization{}, false
	}
	return f, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	f, ok := h.finalization(w, r, user)
	if !ok {
		return
	}
	api.Success(w, f, reqID)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	f, ok := h.finalization(w, r, user)
	if !ok {
		return
	}
	history, err := h.Approvals.GetHistory(r.Context(), f.ID)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, history, reqID)
}

type approvalPayload struct {
	Action          string `json:"action"`
	Comments        string `json:"comments"`
	ExpectedVersion *int   `json:"expectedVersion"`
}

func (h *Handler) handleApproval(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	var payload approvalPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Required("action", payload.Action)
	v.OneOf("action", payload.Action, timesheet.Actions)
	if v.Reject(w, reqID) {
		return
	}

	f, ok := h.finalization(w, r, user)
	if !ok {
		return
	}
	result, err := h.Approvals.ProcessApproval(r.Context(), timesheet.ApprovalRequest{
		FinalizationID:  f.ID,
		ApproverID:      user.UserID,
		Action:          strings.ToLower(strings.TrimSpace(payload.Action)),
		Comments:        payload.Comments,
		ExpectedVersion: payload.ExpectedVersion,
	})
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if result.SettlementQueued && h.Jobs != nil {
		h.Jobs.EnqueueSettlement(f.ID)
	}
	h.record(r, user, "timesheet."+result.History.Action, f.ID, f, result.Finalization)
	api.Success(w, result, reqID)
}

type summariesView struct {
	Summaries  []settlement.Summary `json:"summaries"`
	TotalGross decimal.Decimal      `json:"totalGross"`
	Job        *settlement.Job      `json:"job,omitempty"`
}

func (h *Handler) handleSummaries(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	f, ok := h.finalization(w, r, user)
	if !ok {
		return
	}
	summaries, err := h.Settlements.Summaries(r.Context(), f.ID)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	view := summariesView{Summaries: summaries, TotalGross: settlement.Total(summaries)}
	if job, err := h.Settlements.Job(r.Context(), f.ID); err == nil {
		view.Job = &job
	}
	api.Success(w, view, reqID)
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	f, ok := h.finalization(w, r, user)
	if !ok {
		return
	}

	settle := func(ctx context.Context) (any, error) {
		return h.Settlements.Settle(ctx, f.ID)
	}
	var out any
	var err error
	if h.Jobs != nil {
		out, err = h.Jobs.RunNow(r.Context(), jobs.JobSettlement, f.ID, settle)
	} else {
		out, err = settle(r.Context())
	}
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, user, "timesheet.settle", f.ID, nil, out)
	api.Success(w, out, reqID)
}

func (h *Handler) handleSendToPayroll(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	f, ok := h.finalization(w, r, user)
	if !ok {
		return
	}
	updated, err := h.Approvals.MarkSentToPayroll(r.Context(), f.ID, user.UserID)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.record(r, user, "timesheet.send_to_payroll", f.ID, f, updated)
	api.Success(w, updated, reqID)
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	err := h.Audit.Record(r.Context(), audit.Entry{
		ActorID:    user.UserID,
		Action:     action,
		EntityType: "timesheet_finalization",
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
