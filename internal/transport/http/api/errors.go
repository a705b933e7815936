package api

import (
	"errors"
	"log/slog"
	"net/http"

	"hrflow/internal/domain/errkind"
	"hrflow/internal/domain/settlement"
	"hrflow/internal/domain/timesheet"
	"hrflow/internal/domain/workflow"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Specific sentinels first; anything else falls back to its error kind.
var errorMappings = []errorMapping{
	{workflow.ErrTemplateNotFound, http.StatusNotFound, "template_not_found"},
	{workflow.ErrInstanceNotFound, http.StatusNotFound, "instance_not_found"},
	{timesheet.ErrFinalizationNotFound, http.StatusNotFound, "finalization_not_found"},
	{settlement.ErrFinalizationNotFound, http.StatusNotFound, "finalization_not_found"},
	{settlement.ErrJobNotFound, http.StatusNotFound, "settlement_job_not_found"},

	{workflow.ErrActiveInstanceExists, http.StatusConflict, "active_instance_exists"},
	{workflow.ErrInstanceTerminal, http.StatusConflict, "instance_terminal"},
	{workflow.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{workflow.ErrNotDue, http.StatusConflict, "not_due"},
	{timesheet.ErrFinalizationClosed, http.StatusConflict, "finalization_closed"},
	{timesheet.ErrFinalizationExists, http.StatusConflict, "finalization_exists"},
	{timesheet.ErrSettlementPending, http.StatusConflict, "settlement_pending"},
	{settlement.ErrNotReadyForSettlement, http.StatusConflict, "not_ready_for_settlement"},
	{settlement.ErrAlreadySettled, http.StatusConflict, "already_settled"},

	{workflow.ErrApproverUnresolved, http.StatusUnprocessableEntity, "approver_unresolved"},
	{settlement.ErrMissingCompensation, http.StatusUnprocessableEntity, "missing_compensation"},
}

// StatusFor maps a domain error to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	switch {
	case errors.Is(err, errkind.Authorization):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errkind.Concurrency):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, errkind.Caller):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// FailError writes err as an envelope. Internal errors are logged and
// their text is not sent to the client.
func FailError(w http.ResponseWriter, err error, requestID string) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "requestId", requestID, "err", err)
		message = "internal error"
	}
	Fail(w, status, code, message, requestID)
}
