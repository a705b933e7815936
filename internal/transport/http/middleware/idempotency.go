package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"hrflow/internal/domain/errkind"
	"hrflow/internal/platform/querier"
	"hrflow/internal/transport/http/api"
)

const IdempotencyHeader = "Idempotency-Key"

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// StoredResponse is a response captured for a given Idempotency-Key.
type StoredResponse struct {
	Status int
	Body   []byte
}

type IdempotencyKeys interface {
	Check(ctx context.Context, companyID, userID, endpoint, key, requestHash string) (StoredResponse, bool, error)
	Save(ctx context.Context, companyID, userID, endpoint, key, requestHash string, resp StoredResponse) error
}

type IdempotencyStore struct {
	DB querier.Querier
}

func NewIdempotencyStore(db querier.Querier) *IdempotencyStore {
	return &IdempotencyStore{DB: db}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, companyID, userID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	var storedHash string
	var resp StoredResponse
	err := s.DB.QueryRow(ctx, `
    SELECT request_hash, status_code, response_body
    FROM idempotency_keys
    WHERE company_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
  `, companyID, userID, key, endpoint).Scan(&storedHash, &resp.Status, &resp.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, errkind.Dep("check idempotency key", err)
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return resp, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, companyID, userID, endpoint, key, requestHash string, resp StoredResponse) error {
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO idempotency_keys (company_id, user_id, key, endpoint, request_hash, status_code, response_body)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    ON CONFLICT (company_id, user_id, key, endpoint)
    DO UPDATE SET status_code = EXCLUDED.status_code, response_body = EXCLUDED.response_body
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, companyID, userID, key, endpoint, requestHash, resp.Status, resp.Body)
	if err != nil {
		return errkind.Dep("save idempotency key", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotent replays the stored response when an authenticated caller
// repeats a request with the same Idempotency-Key and payload. Only 2xx
// responses are stored. Requests without the header pass through.
func Idempotent(store IdempotencyKeys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			user, ok := GetUser(r.Context())
			if key == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			reqID := GetRequestID(r.Context())
			if len(key) > 255 {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long", reqID)
				return
			}

			raw, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			endpoint := r.Method + " " + r.URL.Path
			hash := RequestHash(append([]byte(endpoint+"\n"), raw...))

			stored, found, err := store.Check(r.Context(), user.CompanyID, user.UserID, endpoint, key, hash)
			switch {
			case errors.Is(err, ErrIdempotencyConflict):
				api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), reqID)
				return
			case err != nil:
				slog.Error("idempotency check failed", "err", err, "requestId", reqID)
				api.Fail(w, http.StatusInternalServerError, "internal_error", "internal error", reqID)
				return
			case found:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if capture.status < 200 || capture.status >= 300 {
				return
			}
			resp := StoredResponse{Status: capture.status, Body: capture.body.Bytes()}
			if err := store.Save(r.Context(), user.CompanyID, user.UserID, endpoint, key, hash, resp); err != nil {
				slog.Warn("idempotency save failed", "err", err, "requestId", reqID)
			}
		})
	}
}
