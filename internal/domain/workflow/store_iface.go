package workflow

import (
	"context"
	"time"
)

// Repository is the set of reads and writes a transition needs. Store
// implements it against Postgres, either on the pool or inside a tx.
type Repository interface {
	ActiveTemplateByCode(ctx context.Context, code string, at time.Time) (Template, error)
	TemplateByID(ctx context.Context, id string) (Template, error)
	FirstActiveStep(ctx context.Context, templateID string) (Step, error)
	StepByID(ctx context.Context, id string) (Step, error)
	NextActiveStep(ctx context.Context, templateID string, afterOrder int) (Step, bool, error)
	ActiveStepByOrder(ctx context.Context, templateID string, order int) (Step, bool, error)

	HasLiveInstance(ctx context.Context, referenceType, referenceID string) (bool, error)
	CreateInstance(ctx context.Context, inst *Instance) error
	GetInstance(ctx context.Context, id string) (Instance, error)
	// UpdateInstance writes inst if the stored version equals
	// expectedVersion and bumps the version. It returns
	// ErrConcurrentModification when no row matched.
	UpdateInstance(ctx context.Context, inst *Instance, expectedVersion int) error

	AppendAction(ctx context.Context, action *StepAction) error
	AppendSignature(ctx context.Context, sig *Signature) error
	ListActions(ctx context.Context, instanceID string) ([]StepAction, error)
	ListSignatures(ctx context.Context, instanceID string) ([]Signature, error)

	ListPending(ctx context.Context, approverID string, limit, offset int) ([]Instance, error)
	CountPending(ctx context.Context, approverID string) (int, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]Instance, error)
}

type StoreAPI interface {
	Repository
	// InTx runs fn in one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
