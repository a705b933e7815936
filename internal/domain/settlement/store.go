package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

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
		return errkind.Dep("begin settlement tx", err)
	}
	if err := fn(&Store{DB: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Warn("settlement rollback failed", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errkind.Dep("commit settlement tx", err)
	}
	return nil
}

// Numerics travel as text so no precision is lost to float conversion.
func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (s *Store) LoadScope(ctx context.Context, finalizationID string) (Scope, error) {
	var sc Scope
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, company_id, period_start, period_end, employee_ids, workflow_status, payroll_summary_created_at
    FROM timesheet_finalizations
    WHERE id = $1
  `, finalizationID).Scan(&sc.FinalizationID, &sc.CompanyID, &sc.PeriodStart, &sc.PeriodEnd, &sc.EmployeeIDs,
		&sc.WorkflowStatus, &sc.PayrollSummaryCreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Scope{}, ErrFinalizationNotFound
	}
	if err != nil {
		return Scope{}, errkind.Dep("load settlement scope", err)
	}
	return sc, nil
}

func (s *Store) TimeEntries(ctx context.Context, scope Scope) ([]TimeEntry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, employee_id, entry_date, total_hours::text, overtime_hours::text
    FROM time_entries
    WHERE employee_id = ANY($1::text[])
      AND entry_date BETWEEN $2 AND $3
    ORDER BY entry_date, id
  `, scope.EmployeeIDs, scope.PeriodStart, scope.PeriodEnd)
	if err != nil {
		return nil, errkind.Dep("load time entries", err)
	}
	defer rows.Close()

	var out []TimeEntry
	for rows.Next() {
		var (
			e         TimeEntry
			total, ot string
		)
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.Date, &total, &ot); err != nil {
			return nil, errkind.Dep("scan time entry", err)
		}
		if e.TotalHours, err = parseDecimal(total); err != nil {
			return nil, errkind.Dep("parse total hours", err)
		}
		if e.OvertimeHours, err = parseDecimal(ot); err != nil {
			return nil, errkind.Dep("parse overtime hours", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("load time entries", err)
	}
	return out, nil
}

func (s *Store) Rates(ctx context.Context, scope Scope) (map[string]decimal.Decimal, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT DISTINCT ON (employee_id) employee_id, hourly_rate::text
    FROM employee_compensation
    WHERE employee_id = ANY($1::text[])
      AND is_active
      AND effective_from <= $3
      AND (effective_to IS NULL OR effective_to >= $2)
    ORDER BY employee_id, effective_from DESC
  `, scope.EmployeeIDs, scope.PeriodStart, scope.PeriodEnd)
	if err != nil {
		return nil, errkind.Dep("load compensation", err)
	}
	defer rows.Close()

	out := map[string]decimal.Decimal{}
	for rows.Next() {
		var employeeID, raw string
		if err := rows.Scan(&employeeID, &raw); err != nil {
			return nil, errkind.Dep("scan compensation", err)
		}
		rate, err := parseDecimal(raw)
		if err != nil {
			return nil, errkind.Dep("parse hourly rate", err)
		}
		out[employeeID] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("load compensation", err)
	}
	return out, nil
}

func (s *Store) OvertimeRules(ctx context.Context, companyID string) (OvertimeRules, error) {
	var t1, t2, t3 string
	err := s.DB.QueryRow(ctx, `
    SELECT tier1_multiplier::text, tier2_multiplier::text, tier3_multiplier::text
    FROM overtime_rules
    WHERE company_id = $1
  `, companyID).Scan(&t1, &t2, &t3)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultOvertimeRules(), nil
	}
	if err != nil {
		return OvertimeRules{}, errkind.Dep("load overtime rules", err)
	}
	rules := DefaultOvertimeRules()
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{{t1, &rules.Tier1}, {t2, &rules.Tier2}, {t3, &rules.Tier3}} {
		d, err := parseDecimal(f.raw)
		if err != nil {
			return OvertimeRules{}, errkind.Dep("parse overtime multiplier", err)
		}
		*f.dst = d
	}
	return rules, nil
}

func (s *Store) LeaveTransactions(ctx context.Context, scope Scope) ([]LeaveTransaction, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, employee_id, leave_kind, transaction_date, hours::text, rate::text,
           payment_percentage::text, gross_amount::text
    FROM leave_payroll_transactions
    WHERE employee_id = ANY($1::text[])
      AND transaction_date BETWEEN $2 AND $3
    ORDER BY transaction_date, id
  `, scope.EmployeeIDs, scope.PeriodStart, scope.PeriodEnd)
	if err != nil {
		return nil, errkind.Dep("load leave transactions", err)
	}
	defer rows.Close()

	var out []LeaveTransaction
	for rows.Next() {
		var (
			tx                LeaveTransaction
			hours, pct, gross string
			rate              *string
		)
		if err := rows.Scan(&tx.ID, &tx.EmployeeID, &tx.LeaveKind, &tx.Date, &hours, &rate, &pct, &gross); err != nil {
			return nil, errkind.Dep("scan leave transaction", err)
		}
		if tx.Hours, err = parseDecimal(hours); err != nil {
			return nil, errkind.Dep("parse leave hours", err)
		}
		if tx.PaymentPercentage, err = parseDecimal(pct); err != nil {
			return nil, errkind.Dep("parse payment percentage", err)
		}
		if tx.GrossAmount, err = parseDecimal(gross); err != nil {
			return nil, errkind.Dep("parse leave gross", err)
		}
		if rate != nil {
			d, err := parseDecimal(*rate)
			if err != nil {
				return nil, errkind.Dep("parse leave rate", err)
			}
			tx.Rate = decimal.NewNullDecimal(d)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("load leave transactions", err)
	}
	return out, nil
}

func (s *Store) InsertRun(ctx context.Context, run Run) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO settlement_runs (finalization_id, row_count, total_gross, created_at)
    VALUES ($1, $2, $3::numeric, $4)
    ON CONFLICT (finalization_id) DO NOTHING
  `, run.FinalizationID, run.RowCount, run.TotalGross.String(), run.CreatedAt)
	if err != nil {
		return false, errkind.Dep("insert settlement run", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) InsertSummaries(ctx context.Context, summaries []Summary) error {
	if len(summaries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sm := range summaries {
		sources, err := json.Marshal(sm.SourceRecords)
		if err != nil {
			return err
		}
		batch.Queue(`
      INSERT INTO pay_element_summaries (finalization_id, employee_id, pay_element, source_key, hours, rate,
        multiplier, gross_amount, source_records, created_at)
      VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8::numeric,$9,$10)
    `, sm.FinalizationID, sm.EmployeeID, sm.PayElement, sm.SourceKey, sm.Hours.String(), sm.Rate.String(),
			sm.Multiplier.String(), sm.GrossAmount.String(), sources, sm.CreatedAt)
	}
	results := s.DB.SendBatch(ctx, batch)
	for range summaries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return errkind.Dep("insert pay element summary", err)
		}
	}
	if err := results.Close(); err != nil {
		return errkind.Dep("insert pay element summaries", err)
	}
	return nil
}

func (s *Store) MarkSummariesCreated(ctx context.Context, finalizationID string, at time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE timesheet_finalizations
    SET payroll_summary_created_at = $2,
        updated_at = $2,
        version = version + 1
    WHERE id = $1 AND workflow_status = 'approved_for_payroll' AND payroll_summary_created_at IS NULL
  `, finalizationID, at)
	if err != nil {
		return errkind.Dep("stamp payroll summary", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySettled
	}
	return nil
}

func (s *Store) ListSummaries(ctx context.Context, finalizationID string) ([]Summary, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, finalization_id::text, employee_id, pay_element, source_key, hours::text, rate::text,
           multiplier::text, gross_amount::text, source_records, created_at
    FROM pay_element_summaries
    WHERE finalization_id = $1
    ORDER BY seq
  `, finalizationID)
	if err != nil {
		return nil, errkind.Dep("list pay element summaries", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sm                       Summary
			hours, rate, mult, gross string
			sources                  []byte
		)
		if err := rows.Scan(&sm.ID, &sm.FinalizationID, &sm.EmployeeID, &sm.PayElement, &sm.SourceKey, &hours, &rate,
			&mult, &gross, &sources, &sm.CreatedAt); err != nil {
			return nil, errkind.Dep("scan pay element summary", err)
		}
		for _, f := range []struct {
			raw string
			dst *decimal.Decimal
		}{{hours, &sm.Hours}, {rate, &sm.Rate}, {mult, &sm.Multiplier}, {gross, &sm.GrossAmount}} {
			if *f.dst, err = parseDecimal(f.raw); err != nil {
				return nil, errkind.Dep("parse summary amount", err)
			}
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &sm.SourceRecords); err != nil {
				return nil, errkind.Dep("decode source records", err)
			}
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("list pay element summaries", err)
	}
	return out, nil
}

const jobColumns = `finalization_id::text, status, attempts, last_error, available_at, started_at, completed_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.FinalizationID, &j.Status, &j.Attempts, &j.LastError, &j.AvailableAt, &j.StartedAt, &j.CompletedAt)
	return j, err
}

func (s *Store) ClaimJob(ctx context.Context, finalizationID string, now, staleBefore time.Time, maxAttempts int) (Job, bool, error) {
	j, err := scanJob(s.DB.QueryRow(ctx, `
    UPDATE settlement_jobs
    SET status = 'running',
        attempts = attempts + 1,
        started_at = $2,
        updated_at = $2
    WHERE finalization_id = $1
      AND attempts < $4
      AND (
        (status IN ('pending', 'failed') AND available_at <= $2)
        OR (status = 'running' AND started_at < $3)
      )
    RETURNING `+jobColumns, finalizationID, now, staleBefore, maxAttempts))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, errkind.Dep("claim settlement job", err)
	}
	return j, true, nil
}

func (s *Store) CompleteJob(ctx context.Context, finalizationID string, at time.Time) error {
	if _, err := s.DB.Exec(ctx, `
    UPDATE settlement_jobs
    SET status = 'completed', completed_at = $2, last_error = '', updated_at = $2
    WHERE finalization_id = $1
  `, finalizationID, at); err != nil {
		return errkind.Dep("complete settlement job", err)
	}
	return nil
}

func (s *Store) FailJob(ctx context.Context, finalizationID, reason string, retryAt, now time.Time) error {
	if _, err := s.DB.Exec(ctx, `
    UPDATE settlement_jobs
    SET status = 'failed', last_error = $2, available_at = $3, updated_at = $4
    WHERE finalization_id = $1 AND status <> 'completed'
  `, finalizationID, reason, retryAt, now); err != nil {
		return errkind.Dep("fail settlement job", err)
	}
	return nil
}

func (s *Store) PendingJobs(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]Job, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+jobColumns+`
    FROM settlement_jobs
    WHERE attempts < $3
      AND (
        (status IN ('pending', 'failed') AND available_at <= $1)
        OR (status = 'running' AND started_at < $2)
      )
    ORDER BY available_at
    LIMIT $4
  `, now, staleBefore, maxAttempts, limit)
	if err != nil {
		return nil, errkind.Dep("list settlement jobs", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errkind.Dep("scan settlement job", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("list settlement jobs", err)
	}
	return out, nil
}

func (s *Store) GetJob(ctx context.Context, finalizationID string) (Job, error) {
	j, err := scanJob(s.DB.QueryRow(ctx, `
    SELECT `+jobColumns+`
    FROM settlement_jobs
    WHERE finalization_id = $1
  `, finalizationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, errkind.Dep("load settlement job", err)
	}
	return j, nil
}
