package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrflow/internal/transport/http/api"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Action string `json:"action"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"approve","extra":1}`))
	rec := httptest.NewRecorder()

	ok := DecodeJSON(rec, req, &dst, "req-1")

	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	var dst map[string]any
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	rec := httptest.NewRecorder()

	require.False(t, DecodeJSON(rec, req, &dst, "req-1"))
	var env api.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "request body required", env.Error.Message)
}

func TestValidatorSortsIssues(t *testing.T) {
	v := NewValidator()
	v.Required("templateCode", "")
	v.Required("action", " ")
	v.OneOf("action", "approve", []string{"approve", "reject"})
	v.OneOf("kind", "Approve", []string{"approve", "reject"})
	v.NotNegative("returnToStep", -1)

	issues := v.Issues()
	require.Len(t, issues, 4)
	assert.Equal(t, "action", issues[0].Field)
	assert.Equal(t, "kind", issues[1].Field)
	assert.Equal(t, "must be one of approve, reject", issues[1].Reason)
	assert.Equal(t, "returnToStep", issues[2].Field)
	assert.Equal(t, "templateCode", issues[3].Field)

	rec := httptest.NewRecorder()
	assert.True(t, v.Reject(rec, "req-2"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env api.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestValidatorPeriod(t *testing.T) {
	v := NewValidator()
	start, end := v.Period("periodStart", "2026-03-01", "periodEnd", "2026-03-31T18:30:00+02:00")
	assert.False(t, v.Reject(httptest.NewRecorder(), "req-3"))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), end)

	v = NewValidator()
	v.Period("periodStart", "2026-03-31", "periodEnd", "2026-03-01")
	issues := v.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, "periodEnd", issues[0].Field)

	v = NewValidator()
	v.Period("periodStart", "", "periodEnd", "31/03/2026")
	issues = v.Issues()
	require.Len(t, issues, 2)
	assert.Equal(t, "is required", issues[1].Reason)
	assert.Equal(t, "must be a date (YYYY-MM-DD)", issues[0].Reason)
}

func TestParsePaginationClamps(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=900&offset=-3", nil)
	page := ParsePagination(req, 50, 200)
	assert.Equal(t, 200, page.Limit)
	assert.Equal(t, 0, page.Offset)
}

func TestWriteTotal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTotal(rec, Page{Limit: 50, Offset: 0}, 120)
	assert.Equal(t, "120", rec.Header().Get("X-Total-Count"))
	assert.Equal(t, "50", rec.Header().Get("X-Next-Offset"))

	rec = httptest.NewRecorder()
	WriteTotal(rec, Page{Limit: 50, Offset: 100}, 120)
	assert.Empty(t, rec.Header().Get("X-Next-Offset"))
}
