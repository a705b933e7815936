package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKeys struct {
	mu   sync.Mutex
	rows map[string]memKeyRow
}

type memKeyRow struct {
	hash string
	resp StoredResponse
}

func newMemKeys() *memKeys {
	return &memKeys{rows: map[string]memKeyRow{}}
}

func (m *memKeys) id(companyID, userID, endpoint, key string) string {
	return strings.Join([]string{companyID, userID, endpoint, key}, "|")
}

func (m *memKeys) Check(_ context.Context, companyID, userID, endpoint, key, hash string) (StoredResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[m.id(companyID, userID, endpoint, key)]
	if !ok {
		return StoredResponse{}, false, nil
	}
	if row.hash != hash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return row.resp, true, nil
}

func (m *memKeys) Save(_ context.Context, companyID, userID, endpoint, key, hash string, resp StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[m.id(companyID, userID, endpoint, key)] = memKeyRow{hash: hash, resp: resp}
	return nil
}

func TestRequestHashDeterministic(t *testing.T) {
	assert.Equal(t, RequestHash([]byte("payload")), RequestHash([]byte("payload")))
	assert.NotEqual(t, RequestHash([]byte("payload")), RequestHash([]byte("other")))
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	calls := 0
	handler := Idempotent(newMemKeys())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"call":%d}`, calls)
	}))

	send := func(body string) *httptest.ResponseRecorder {
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/timesheets/finalizations/f1/approval", strings.NewReader(body)), "c1", "u1")
		req.Header.Set(IdempotencyHeader, "key-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send(`{"action":"approve"}`)
	require.Equal(t, http.StatusOK, first.Code)
	second := send(`{"action":"approve"}`)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, `{"call":1}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Equal(t, 1, calls)

	conflict := send(`{"action":"reject"}`)
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotentSkipsFailuresAndAnonymous(t *testing.T) {
	calls := 0
	handler := Idempotent(newMemKeys())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		req := asUser(httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`)), "c1", "u1")
		req.Header.Set(IdempotencyHeader, "key-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls, "non-2xx responses are not stored")

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
	req.Header.Set(IdempotencyHeader, "key-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 3, calls)
}
