package shared

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"hrflow/internal/transport/http/api"
)

// Issue is one field-level problem reported under error.details.fields.
type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Validator collects issues for one payload so a caller sees every problem
// in a single 400 instead of fixing them one round trip at a time.
type Validator struct {
	issues []Issue
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Add(field, reason string) {
	v.issues = append(v.issues, Issue{Field: field, Reason: reason})
}

func (v *Validator) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "is required")
	}
}

// OneOf expects an exact match; actions and statuses are lower-case wire
// values and are not normalized.
func (v *Validator) OneOf(field, value string, allowed []string) {
	if value == "" || slices.Contains(allowed, value) {
		return
	}
	v.Add(field, "must be one of "+strings.Join(allowed, ", "))
}

func (v *Validator) NotNegative(field string, n int) {
	if n < 0 {
		v.Add(field, "must not be negative")
	}
}

// Period parses a closed date range. Either bound may be YYYY-MM-DD or an
// RFC3339 timestamp; only the UTC calendar day is kept.
func (v *Validator) Period(startField, rawStart, endField, rawEnd string) (time.Time, time.Time) {
	start, okStart := v.day(startField, rawStart)
	end, okEnd := v.day(endField, rawEnd)
	if okStart && okEnd && end.Before(start) {
		v.Add(endField, "must be on or after "+startField)
	}
	return start, end
}

func (v *Validator) day(field, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		v.Add(field, "is required")
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	v.Add(field, "must be a date (YYYY-MM-DD)")
	return time.Time{}, false
}

// Issues are ordered by field so responses are stable regardless of check order.
func (v *Validator) Issues() []Issue {
	out := slices.Clone(v.issues)
	slices.SortStableFunc(out, func(a, b Issue) int {
		return strings.Compare(a.Field, b.Field)
	})
	return out
}

// Reject writes a 400 when issues were collected and reports whether it did.
func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	if len(v.issues) == 0 {
		return false
	}
	api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed",
		map[string]any{"fields": v.Issues()}, requestID)
	return true
}
