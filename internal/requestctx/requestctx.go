// Package requestctx carries correlation data for one unit of work, either
// an HTTP request or a background job run, so log lines from any layer can
// be tied back to it.
package requestctx

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	jobKey
)

type jobInfo struct {
	jobType string
	scope   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

// WithJob marks ctx as belonging to a background job run.
func WithJob(ctx context.Context, jobType, scope string) context.Context {
	return context.WithValue(ctx, jobKey, jobInfo{jobType: jobType, scope: scope})
}

// Logger returns the default logger annotated with whatever correlation
// data ctx holds.
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if id := GetRequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	if j, ok := ctx.Value(jobKey).(jobInfo); ok {
		logger = logger.With("job_type", j.jobType)
		if j.scope != "" {
			logger = logger.With("job_scope", j.scope)
		}
	}
	return logger
}
