package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Repository interface {
	LoadScope(ctx context.Context, finalizationID string) (Scope, error)
	TimeEntries(ctx context.Context, scope Scope) ([]TimeEntry, error)
	Rates(ctx context.Context, scope Scope) (map[string]decimal.Decimal, error)
	// OvertimeRules returns the company override or the defaults.
	OvertimeRules(ctx context.Context, companyID string) (OvertimeRules, error)
	LeaveTransactions(ctx context.Context, scope Scope) ([]LeaveTransaction, error)

	// InsertRun reports false when the finalization already has a run.
	InsertRun(ctx context.Context, run Run) (bool, error)
	InsertSummaries(ctx context.Context, summaries []Summary) error
	MarkSummariesCreated(ctx context.Context, finalizationID string, at time.Time) error
	ListSummaries(ctx context.Context, finalizationID string) ([]Summary, error)

	// ClaimJob moves a claimable job to running. It reports false when the
	// job is missing, finished, not yet due, or held by a live worker.
	ClaimJob(ctx context.Context, finalizationID string, now, staleBefore time.Time, maxAttempts int) (Job, bool, error)
	CompleteJob(ctx context.Context, finalizationID string, at time.Time) error
	FailJob(ctx context.Context, finalizationID, reason string, retryAt, now time.Time) error
	PendingJobs(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]Job, error)
	GetJob(ctx context.Context, finalizationID string) (Job, error)
}

type StoreAPI interface {
	Repository
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
