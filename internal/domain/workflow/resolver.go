package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hrflow/internal/platform/querier"
)

type ApproverSpec struct {
	Type                ApproverType
	Ref                 string
	AlternateApproverID string
}

func specForStep(step Step) ApproverSpec {
	return ApproverSpec{Type: step.ApproverType, Ref: step.ApproverRef, AlternateApproverID: step.AlternateApproverID}
}

type Subject struct {
	Category      Category
	ReferenceType string
	ReferenceID   string
	EmployeeID    string
	InitiatedBy   string
}

// ApproverResolver turns a step's approver definition into a concrete
// user id.
type ApproverResolver interface {
	Resolve(ctx context.Context, spec ApproverSpec, subject Subject) (string, error)
}

// DirectoryResolver resolves approvers from the HR directory tables.
type DirectoryResolver struct {
	DB querier.Querier
}

func NewDirectoryResolver(db querier.Querier) *DirectoryResolver {
	return &DirectoryResolver{DB: db}
}

func (r *DirectoryResolver) Resolve(ctx context.Context, spec ApproverSpec, subject Subject) (string, error) {
	var (
		query string
		args  []any
	)
	switch spec.Type {
	case ApproverFixedUser:
		if spec.Ref != "" {
			return spec.Ref, nil
		}
		return fallbackApprover(spec)
	case ApproverRole:
		query = `
      SELECT u.id::text
      FROM users u
      JOIN roles r ON r.id = u.role_id
      WHERE r.name = $1 AND u.status = 'active'
      ORDER BY u.created_at
      LIMIT 1`
		args = []any{spec.Ref}
	case ApproverPosition:
		query = `
      SELECT e.user_id::text
      FROM employees e
      WHERE e.position_id = $1 AND e.status = 'active' AND e.user_id IS NOT NULL
      ORDER BY e.start_date
      LIMIT 1`
		args = []any{spec.Ref}
	case ApproverReportingLine:
		if subject.EmployeeID == "" {
			return fallbackApprover(spec)
		}
		query = `
      SELECT m.user_id::text
      FROM employees e
      JOIN employees m ON m.id = e.manager_id
      WHERE e.id = $1 AND m.user_id IS NOT NULL`
		args = []any{subject.EmployeeID}
	case ApproverGovernanceBody:
		query = `
      SELECT user_id::text
      FROM governance_body_members
      WHERE body_id = $1 AND is_active
      ORDER BY is_chair DESC, joined_at
      LIMIT 1`
		args = []any{spec.Ref}
	default:
		return "", fmt.Errorf("%w: unknown approver type %q", ErrApproverUnresolved, spec.Type)
	}

	var approverID string
	err := r.DB.QueryRow(ctx, query, args...).Scan(&approverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallbackApprover(spec)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrApproverUnresolved, spec.Type, err)
	}
	return approverID, nil
}

func fallbackApprover(spec ApproverSpec) (string, error) {
	if spec.AlternateApproverID != "" {
		return spec.AlternateApproverID, nil
	}
	return "", fmt.Errorf("%w: no %s approver for %q", ErrApproverUnresolved, spec.Type, spec.Ref)
}
