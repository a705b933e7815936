package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrflow/internal/domain/errkind"
	"hrflow/internal/domain/settlement"
	"hrflow/internal/domain/timesheet"
	"hrflow/internal/domain/workflow"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{workflow.ErrInstanceNotFound, http.StatusNotFound, "instance_not_found"},
		{timesheet.ErrFinalizationNotFound, http.StatusNotFound, "finalization_not_found"},
		{fmt.Errorf("wrapped: %w", workflow.ErrInstanceTerminal), http.StatusConflict, "instance_terminal"},
		{workflow.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
		{timesheet.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
		{timesheet.ErrNotAuthorized, http.StatusForbidden, "forbidden"},
		{workflow.ErrCommentRequired, http.StatusBadRequest, "invalid_request"},
		{settlement.ErrAlreadySettled, http.StatusConflict, "already_settled"},
		{errkind.Dep("load", errors.New("conn reset")), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := StatusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestFailErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	FailError(rec, errkind.Dep("load instance", errors.New("password authentication failed")), "req-1")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.False(t, env.Success)
	assert.Equal(t, "internal error", env.Error.Message)
	assert.Equal(t, "req-1", env.RequestID)
}

func TestFailWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	FailWithDetails(rec, http.StatusBadRequest, "validation_error", "payload validation failed", map[string]any{"fields": []string{"action"}}, "req-2")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":"validation_error","message":"payload validation failed","details":{"fields":["action"]}},"requestId":"req-2"}`, rec.Body.String())
}
