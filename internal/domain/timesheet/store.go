package timesheet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"hrflow/internal/domain/errkind"
	"hrflow/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) InTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return errkind.Dep("begin timesheet tx", err)
	}
	if err := fn(&Store{DB: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Warn("timesheet rollback failed", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errkind.Dep("commit timesheet tx", err)
	}
	return nil
}

const finalizationColumns = `
  id::text, company_id, period_start, period_end, employee_ids, current_approval_level,
  max_approval_levels, workflow_status, current_approver_id, submitted_by, rejected_by,
  rejected_at, rejection_reason, approved_at, payroll_summary_created_at, sent_to_payroll_at,
  version, created_at, updated_at`

func scanFinalization(row pgx.Row) (Finalization, error) {
	var f Finalization
	err := row.Scan(&f.ID, &f.CompanyID, &f.PeriodStart, &f.PeriodEnd, &f.EmployeeIDs, &f.CurrentApprovalLevel,
		&f.MaxApprovalLevels, &f.WorkflowStatus, &f.CurrentApproverID, &f.SubmittedBy, &f.RejectedBy,
		&f.RejectedAt, &f.RejectionReason, &f.ApprovedAt, &f.PayrollSummaryCreatedAt, &f.SentToPayrollAt,
		&f.Version, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (s *Store) GetFinalization(ctx context.Context, id string) (Finalization, error) {
	f, err := scanFinalization(s.DB.QueryRow(ctx, `
    SELECT`+finalizationColumns+`
    FROM timesheet_finalizations
    WHERE id = $1
  `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Finalization{}, ErrFinalizationNotFound
	}
	if err != nil {
		return Finalization{}, errkind.Dep("load finalization", err)
	}
	return f, nil
}

func (s *Store) CreateFinalization(ctx context.Context, f *Finalization) error {
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO timesheet_finalizations (company_id, period_start, period_end, employee_ids,
      current_approval_level, max_approval_levels, workflow_status, current_approver_id, submitted_by,
      version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
    RETURNING id::text
  `, f.CompanyID, f.PeriodStart, f.PeriodEnd, f.EmployeeIDs, f.CurrentApprovalLevel, f.MaxApprovalLevels,
		f.WorkflowStatus, f.CurrentApproverID, f.SubmittedBy, f.Version, f.CreatedAt, f.UpdatedAt).Scan(&f.ID); err != nil {
		return errkind.Dep("create finalization", err)
	}
	return nil
}

func (s *Store) UpdateFinalization(ctx context.Context, f *Finalization, expectedVersion int) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE timesheet_finalizations
    SET current_approval_level = $3,
        workflow_status = $4,
        current_approver_id = $5,
        rejected_by = $6,
        rejected_at = $7,
        rejection_reason = $8,
        approved_at = $9,
        sent_to_payroll_at = $10,
        updated_at = $11,
        version = version + 1
    WHERE id = $1 AND version = $2
  `, f.ID, expectedVersion, f.CurrentApprovalLevel, f.WorkflowStatus, f.CurrentApproverID, f.RejectedBy,
		f.RejectedAt, f.RejectionReason, f.ApprovedAt, f.SentToPayrollAt, f.UpdatedAt)
	if err != nil {
		return errkind.Dep("update finalization", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	f.Version = expectedVersion + 1
	return nil
}

func (s *Store) LockCompanyPeriods(ctx context.Context, companyID string) error {
	if _, err := s.DB.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('timesheet_finalizations'), hashtext($1))`, companyID); err != nil {
		return errkind.Dep("lock company periods", err)
	}
	return nil
}

func (s *Store) HasOverlappingFinalization(ctx context.Context, companyID string, start, end time.Time, employeeIDs []string) (bool, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM timesheet_finalizations
      WHERE company_id = $1
        AND period_start <= $3
        AND period_end >= $2
        AND employee_ids && $4::text[]
        AND workflow_status <> 'rejected'
    )
  `, companyID, start, end, employeeIDs).Scan(&exists); err != nil {
		return false, errkind.Dep("check overlapping finalization", err)
	}
	return exists, nil
}

func (s *Store) ListPendingForApprover(ctx context.Context, approverID string, limit, offset int) ([]Finalization, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT`+finalizationColumns+`
    FROM timesheet_finalizations
    WHERE current_approver_id = $1 AND workflow_status LIKE 'pending_level_%'
    ORDER BY created_at
    LIMIT $2 OFFSET $3
  `, approverID, limit, offset)
	if err != nil {
		return nil, errkind.Dep("list pending finalizations", err)
	}
	defer rows.Close()

	var out []Finalization
	for rows.Next() {
		f, err := scanFinalization(rows)
		if err != nil {
			return nil, errkind.Dep("scan finalization", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("list pending finalizations", err)
	}
	return out, nil
}

func (s *Store) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO timesheet_approval_history (finalization_id, approval_level, approver_id, action, comments, created_at)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id::text
  `, entry.FinalizationID, entry.Level, entry.ApproverID, entry.Action, entry.Comments, entry.CreatedAt).Scan(&entry.ID); err != nil {
		return errkind.Dep("append approval history", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, finalizationID string) ([]HistoryEntry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, finalization_id::text, approval_level, approver_id, action, comments, created_at
    FROM timesheet_approval_history
    WHERE finalization_id = $1
    ORDER BY seq
  `, finalizationID)
	if err != nil {
		return nil, errkind.Dep("list approval history", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.FinalizationID, &h.Level, &h.ApproverID, &h.Action, &h.Comments, &h.CreatedAt); err != nil {
			return nil, errkind.Dep("scan approval history", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("list approval history", err)
	}
	return out, nil
}

func (s *Store) LevelApprovers(ctx context.Context, companyID string, level int) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT approver_id
    FROM shift_approval_levels
    WHERE company_id = $1 AND approval_level = $2 AND is_active
    ORDER BY created_at, approver_id
  `, companyID, level)
	if err != nil {
		return nil, errkind.Dep("list level approvers", err)
	}
	approvers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errkind.Dep("list level approvers", err)
	}
	return approvers, nil
}

// MaxApprovalLevel prefers the company setting and otherwise counts the
// configured levels.
func (s *Store) MaxApprovalLevel(ctx context.Context, companyID string) (int, error) {
	var levels int
	if err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(
      (SELECT max_approval_levels FROM timesheet_company_settings WHERE company_id = $1),
      (SELECT MAX(approval_level) FROM shift_approval_levels WHERE company_id = $1 AND is_active),
      1
    )
  `, companyID).Scan(&levels); err != nil {
		return 0, errkind.Dep("load approval levels", err)
	}
	return levels, nil
}

func (s *Store) EnqueueSettlement(ctx context.Context, finalizationID string, at time.Time) error {
	if _, err := s.DB.Exec(ctx, `
    INSERT INTO settlement_jobs (finalization_id, status, attempts, available_at, created_at, updated_at)
    VALUES ($1, 'pending', 0, $2, $2, $2)
    ON CONFLICT (finalization_id) DO NOTHING
  `, finalizationID, at); err != nil {
		return errkind.Dep("enqueue settlement", err)
	}
	return nil
}
