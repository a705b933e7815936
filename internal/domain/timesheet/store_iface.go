package timesheet

import (
	"context"
	"time"
)

type Repository interface {
	GetFinalization(ctx context.Context, id string) (Finalization, error)
	CreateFinalization(ctx context.Context, f *Finalization) error
	// UpdateFinalization returns ErrConcurrentModification when the stored
	// version differs from expectedVersion.
	UpdateFinalization(ctx context.Context, f *Finalization, expectedVersion int) error
	// LockCompanyPeriods serializes period submissions for a company until
	// the surrounding transaction ends.
	LockCompanyPeriods(ctx context.Context, companyID string) error
	HasOverlappingFinalization(ctx context.Context, companyID string, start, end time.Time, employeeIDs []string) (bool, error)
	ListPendingForApprover(ctx context.Context, approverID string, limit, offset int) ([]Finalization, error)

	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	ListHistory(ctx context.Context, finalizationID string) ([]HistoryEntry, error)

	// LevelApprovers lists the approvers configured for a company level,
	// in a stable order.
	LevelApprovers(ctx context.Context, companyID string, level int) ([]string, error)
	MaxApprovalLevel(ctx context.Context, companyID string) (int, error)

	// EnqueueSettlement writes the settlement work item for a finalization.
	EnqueueSettlement(ctx context.Context, finalizationID string, at time.Time) error
}

type StoreAPI interface {
	Repository
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
