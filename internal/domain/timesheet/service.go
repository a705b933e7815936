package timesheet

import (
	"context"
	"errors"
	"slices"
	"time"

	"hrflow/internal/domain/errkind"
)

// Recorder receives approval outcomes for metrics.
type Recorder interface {
	TimesheetApproval(action, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) TimesheetApproval(string, string) {}

type Service struct {
	store    StoreAPI
	recorder Recorder
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func NewService(store StoreAPI, opts ...Option) *Service {
	s := &Service{
		store:    store,
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) SubmitPeriod(ctx context.Context, submittedBy string, req SubmitRequest) (Finalization, error) {
	if submittedBy == "" {
		return Finalization{}, ErrNotAuthorized
	}
	if req.PeriodEnd.Before(req.PeriodStart) {
		return Finalization{}, ErrInvalidPeriod
	}
	employees := dedupe(req.EmployeeIDs)
	if len(employees) == 0 {
		return Finalization{}, ErrNoEmployees
	}

	var f Finalization
	err := s.store.InTx(ctx, func(repo Repository) error {
		if err := repo.LockCompanyPeriods(ctx, req.CompanyID); err != nil {
			return err
		}
		overlap, err := repo.HasOverlappingFinalization(ctx, req.CompanyID, req.PeriodStart, req.PeriodEnd, employees)
		if err != nil {
			return err
		}
		if overlap {
			return ErrFinalizationExists
		}
		maxLevels, err := repo.MaxApprovalLevel(ctx, req.CompanyID)
		if err != nil {
			return err
		}
		if maxLevels < 1 {
			maxLevels = 1
		}
		now := s.now()
		f = Finalization{
			CompanyID:            req.CompanyID,
			PeriodStart:          req.PeriodStart,
			PeriodEnd:            req.PeriodEnd,
			EmployeeIDs:          employees,
			CurrentApprovalLevel: 1,
			MaxApprovalLevels:    maxLevels,
			WorkflowStatus:       PendingStatus(1),
			SubmittedBy:          submittedBy,
			Version:              1,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		approver, err := s.approverFor(ctx, repo, f, 1)
		if err != nil {
			return err
		}
		f.CurrentApproverID = approver
		return repo.CreateFinalization(ctx, &f)
	})
	if err != nil {
		return Finalization{}, err
	}
	return f, nil
}

// ProcessApproval applies one approver decision to a finalization. The
// final approval queues settlement in the same transaction; the
// settlement itself runs later.
func (s *Service) ProcessApproval(ctx context.Context, req ApprovalRequest) (ApprovalResult, error) {
	if !validAction(req.Action) {
		s.recorder.TimesheetApproval(req.Action, outcomeLabel(ErrInvalidAction))
		return ApprovalResult{}, ErrInvalidAction
	}
	var result ApprovalResult
	err := s.store.InTx(ctx, func(repo Repository) error {
		f, err := repo.GetFinalization(ctx, req.FinalizationID)
		if err != nil {
			return err
		}
		if f.Closed() {
			return ErrFinalizationClosed
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != f.Version {
			return ErrConcurrentModification
		}
		if err := s.authorize(ctx, repo, f, req.ApproverID); err != nil {
			return err
		}

		now := s.now()
		entry := HistoryEntry{
			FinalizationID: f.ID,
			Level:          f.CurrentApprovalLevel,
			ApproverID:     req.ApproverID,
			Action:         req.Action,
			Comments:       req.Comments,
			CreatedAt:      now,
		}
		if err := repo.AppendHistory(ctx, &entry); err != nil {
			return err
		}

		expected := f.Version
		queued := false
		switch req.Action {
		case ActionReject:
			f.WorkflowStatus = StatusRejected
			f.RejectedBy = req.ApproverID
			f.RejectedAt = &now
			f.RejectionReason = req.Comments
		case ActionReturn:
			level := max(1, f.CurrentApprovalLevel-1)
			approver, err := s.approverFor(ctx, repo, f, level)
			if err != nil {
				return err
			}
			f.CurrentApprovalLevel = level
			f.CurrentApproverID = approver
			f.WorkflowStatus = PendingStatus(level)
		case ActionApprove:
			if f.CurrentApprovalLevel < f.MaxApprovalLevels {
				level := f.CurrentApprovalLevel + 1
				approver, err := s.approverFor(ctx, repo, f, level)
				if err != nil {
					return err
				}
				f.CurrentApprovalLevel = level
				f.CurrentApproverID = approver
				f.WorkflowStatus = PendingStatus(level)
				break
			}
			f.WorkflowStatus = StatusApprovedForPayroll
			f.ApprovedAt = &now
			queued = true
		}
		f.UpdatedAt = now
		if err := repo.UpdateFinalization(ctx, &f, expected); err != nil {
			return err
		}
		if queued {
			if err := repo.EnqueueSettlement(ctx, f.ID, now); err != nil {
				return err
			}
		}
		result = ApprovalResult{Finalization: f, History: entry, SettlementQueued: queued}
		return nil
	})
	if err != nil {
		s.recorder.TimesheetApproval(req.Action, outcomeLabel(err))
		return ApprovalResult{}, err
	}
	s.recorder.TimesheetApproval(req.Action, "applied")
	return result, nil
}

// MarkSentToPayroll closes a settled finalization.
func (s *Service) MarkSentToPayroll(ctx context.Context, finalizationID, actorID string) (Finalization, error) {
	if actorID == "" {
		return Finalization{}, ErrNotAuthorized
	}
	var f Finalization
	err := s.store.InTx(ctx, func(repo Repository) error {
		var err error
		f, err = repo.GetFinalization(ctx, finalizationID)
		if err != nil {
			return err
		}
		switch {
		case f.WorkflowStatus == StatusSentToPayroll, f.WorkflowStatus == StatusRejected:
			return ErrFinalizationClosed
		case f.WorkflowStatus != StatusApprovedForPayroll, f.PayrollSummaryCreatedAt == nil:
			return ErrSettlementPending
		}
		now := s.now()
		expected := f.Version
		f.WorkflowStatus = StatusSentToPayroll
		f.SentToPayrollAt = &now
		f.UpdatedAt = now
		return repo.UpdateFinalization(ctx, &f, expected)
	})
	if err != nil {
		return Finalization{}, err
	}
	return f, nil
}

func (s *Service) GetFinalization(ctx context.Context, id string) (Finalization, error) {
	return s.store.GetFinalization(ctx, id)
}

func (s *Service) GetHistory(ctx context.Context, finalizationID string) ([]HistoryEntry, error) {
	if _, err := s.store.GetFinalization(ctx, finalizationID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, finalizationID)
}

func (s *Service) ListPendingForApprover(ctx context.Context, approverID string, limit, offset int) ([]Finalization, error) {
	return s.store.ListPendingForApprover(ctx, approverID, limit, offset)
}

func (s *Service) authorize(ctx context.Context, repo Repository, f Finalization, approverID string) error {
	if approverID == "" {
		return ErrNotAuthorized
	}
	if approverID == f.CurrentApproverID {
		return nil
	}
	approvers, err := repo.LevelApprovers(ctx, f.CompanyID, f.CurrentApprovalLevel)
	if err != nil {
		return err
	}
	if slices.Contains(approvers, approverID) {
		return nil
	}
	return ErrNotAuthorized
}

// approverFor picks the first configured approver for the level and
// falls back to the submitting timekeeper.
func (s *Service) approverFor(ctx context.Context, repo Repository, f Finalization, level int) (string, error) {
	approvers, err := repo.LevelApprovers(ctx, f.CompanyID, level)
	if err != nil {
		return "", err
	}
	if len(approvers) > 0 {
		return approvers[0], nil
	}
	return f.SubmittedBy, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, errkind.Authorization):
		return "denied"
	case errors.Is(err, errkind.Concurrency):
		return "conflict"
	case errors.Is(err, errkind.Caller):
		return "invalid"
	default:
		return "error"
	}
}
