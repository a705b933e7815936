package timesheet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrflow/internal/domain/errkind"
)

var fixedNow = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newTestService(levels map[int][]string) (*Service, *memStore) {
	store := newMemStore(levels)
	return NewService(store, WithClock(func() time.Time { return fixedNow })), store
}

func submit(t *testing.T, svc *Service) Finalization {
	t.Helper()
	f, err := svc.SubmitPeriod(context.Background(), "tk-1", SubmitRequest{
		CompanyID:   "co-1",
		PeriodStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		EmployeeIDs: []string{"emp-1", "emp-2", "emp-1"},
	})
	require.NoError(t, err)
	return f
}

func approve(svc *Service, id, approver, action string) (ApprovalResult, error) {
	return svc.ProcessApproval(context.Background(), ApprovalRequest{
		FinalizationID: id,
		ApproverID:     approver,
		Action:         action,
		Comments:       "ok",
	})
}

func TestSubmitPeriodStartsAtLevelOne(t *testing.T) {
	svc, _ := newTestService(map[int][]string{1: {"sup-1"}, 2: {"mgr-1"}})
	f := submit(t, svc)

	assert.Equal(t, PendingStatus(1), f.WorkflowStatus)
	assert.Equal(t, 1, f.CurrentApprovalLevel)
	assert.Equal(t, 2, f.MaxApprovalLevels)
	assert.Equal(t, "sup-1", f.CurrentApproverID)
	assert.Equal(t, []string{"emp-1", "emp-2"}, f.EmployeeIDs)
	assert.Equal(t, 1, f.Version)
}

func TestSubmitPeriodValidation(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.SubmitPeriod(ctx, "tk-1", SubmitRequest{
		CompanyID:   "co-1",
		PeriodStart: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EmployeeIDs: []string{"emp-1"},
	})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.SubmitPeriod(ctx, "tk-1", SubmitRequest{CompanyID: "co-1", EmployeeIDs: []string{""}})
	assert.ErrorIs(t, err, ErrNoEmployees)

	_, err = svc.SubmitPeriod(ctx, "", SubmitRequest{CompanyID: "co-1", EmployeeIDs: []string{"emp-1"}})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestSubmitPeriodFallsBackToTimekeeperAndRejectsOverlap(t *testing.T) {
	svc, _ := newTestService(nil)
	f := submit(t, svc)
	assert.Equal(t, "tk-1", f.CurrentApproverID)
	assert.Equal(t, 1, f.MaxApprovalLevels)

	_, err := svc.SubmitPeriod(context.Background(), "tk-1", SubmitRequest{
		CompanyID:   "co-1",
		PeriodStart: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC),
		EmployeeIDs: []string{"emp-2"},
	})
	assert.ErrorIs(t, err, ErrFinalizationExists)
}

func TestConcurrentOverlappingSubmitsCreateOne(t *testing.T) {
	svc, store := newTestService(map[int][]string{1: {"sup-1"}})
	store.afterOverlapCheck = func() { time.Sleep(5 * time.Millisecond) }

	const submitters = 4
	errs := make([]error, submitters)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SubmitPeriod(context.Background(), "tk-1", SubmitRequest{
				CompanyID:   "co-1",
				PeriodStart: time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.UTC),
				PeriodEnd:   time.Date(2026, 3, 20+i, 0, 0, 0, 0, time.UTC),
				EmployeeIDs: []string{"emp-1"},
			})
		}(i)
	}
	wg.Wait()

	var created, refused int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrFinalizationExists):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, submitters-1, refused)
	assert.Len(t, store.finalizations, 1)
}

func TestProcessApprovalWalksLevelsAndQueuesSettlement(t *testing.T) {
	svc, store := newTestService(map[int][]string{1: {"sup-1"}, 2: {"mgr-1"}})
	f := submit(t, svc)

	res, err := approve(svc, f.ID, "sup-1", ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, PendingStatus(2), res.Finalization.WorkflowStatus)
	assert.Equal(t, "mgr-1", res.Finalization.CurrentApproverID)
	assert.False(t, res.SettlementQueued)
	assert.Empty(t, store.queuedJobs())

	res, err = approve(svc, f.ID, "mgr-1", ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApprovedForPayroll, res.Finalization.WorkflowStatus)
	require.NotNil(t, res.Finalization.ApprovedAt)
	assert.True(t, res.SettlementQueued)
	assert.Equal(t, []string{f.ID}, store.queuedJobs())
	assert.Equal(t, 3, res.Finalization.Version)

	history, err := svc.GetHistory(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Level)
	assert.Equal(t, 2, history[1].Level)
}

func TestProcessApprovalUnauthorizedWritesNothing(t *testing.T) {
	svc, store := newTestService(map[int][]string{1: {"sup-1"}, 2: {"mgr-1"}})
	f := submit(t, svc)

	_, err := approve(svc, f.ID, "mgr-1", ActionApprove)
	require.ErrorIs(t, err, ErrNotAuthorized)
	assert.ErrorIs(t, err, errkind.Authorization)
	assert.Empty(t, store.historyFor(f.ID))

	stored, err := svc.GetFinalization(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, f, stored)
}

func TestProcessApprovalAcceptsAnyLevelApprover(t *testing.T) {
	svc, _ := newTestService(map[int][]string{1: {"sup-1", "sup-2"}})
	f := submit(t, svc)

	res, err := approve(svc, f.ID, "sup-2", ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApprovedForPayroll, res.Finalization.WorkflowStatus)
}

func TestProcessApprovalReturnStepsBackOneLevel(t *testing.T) {
	svc, store := newTestService(map[int][]string{1: {"sup-1"}, 2: {"mgr-1"}, 3: {"dir-1"}})
	f := submit(t, svc)

	_, err := approve(svc, f.ID, "sup-1", ActionApprove)
	require.NoError(t, err)
	_, err = approve(svc, f.ID, "mgr-1", ActionApprove)
	require.NoError(t, err)

	res, err := approve(svc, f.ID, "dir-1", ActionReturn)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Finalization.CurrentApprovalLevel)
	assert.Equal(t, PendingStatus(2), res.Finalization.WorkflowStatus)
	assert.Equal(t, "mgr-1", res.Finalization.CurrentApproverID)
	assert.Equal(t, ActionReturn, res.History.Action)
	assert.Equal(t, 3, res.History.Level)
	assert.Len(t, store.historyFor(f.ID), 3)
}

func TestProcessApprovalReturnAtFirstLevelStays(t *testing.T) {
	svc, _ := newTestService(map[int][]string{1: {"sup-1"}})
	f := submit(t, svc)

	res, err := approve(svc, f.ID, "sup-1", ActionReturn)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Finalization.CurrentApprovalLevel)
	assert.Equal(t, PendingStatus(1), res.Finalization.WorkflowStatus)
}

func TestProcessApprovalRejectClosesFinalization(t *testing.T) {
	svc, store := newTestService(map[int][]string{1: {"sup-1"}, 2: {"mgr-1"}})
	f := submit(t, svc)

	res, err := svc.ProcessApproval(context.Background(), ApprovalRequest{
		FinalizationID: f.ID, ApproverID: "sup-1", Action: ActionReject, Comments: "missing hours",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Finalization.WorkflowStatus)
	assert.Equal(t, "sup-1", res.Finalization.RejectedBy)
	assert.Equal(t, "missing hours", res.Finalization.RejectionReason)
	require.NotNil(t, res.Finalization.RejectedAt)

	_, err = approve(svc, f.ID, "sup-1", ActionApprove)
	assert.ErrorIs(t, err, ErrFinalizationClosed)
	assert.Len(t, store.historyFor(f.ID), 1)
}

func TestProcessApprovalRejectsUnknownActionAndMissingFinalization(t *testing.T) {
	svc, _ := newTestService(nil)
	f := submit(t, svc)

	_, err := approve(svc, f.ID, "tk-1", "escalate")
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = approve(svc, "missing", "tk-1", ActionApprove)
	assert.ErrorIs(t, err, ErrFinalizationNotFound)
}

func TestProcessApprovalExpectedVersion(t *testing.T) {
	svc, store := newTestService(map[int][]string{1: {"sup-1"}})
	f := submit(t, svc)

	stale := f.Version + 1
	_, err := svc.ProcessApproval(context.Background(), ApprovalRequest{
		FinalizationID: f.ID, ApproverID: "sup-1", Action: ActionApprove, ExpectedVersion: &stale,
	})
	require.ErrorIs(t, err, ErrConcurrentModification)
	assert.Empty(t, store.historyFor(f.ID))
}

func TestConcurrentFinalApprovalQueuesOneSettlement(t *testing.T) {
	svc, store := newTestService(map[int][]string{1: {"sup-1", "sup-2"}})
	f := submit(t, svc)

	var ready sync.WaitGroup
	ready.Add(2)
	store.afterGet = func() {
		ready.Done()
		ready.Wait()
	}

	approvers := []string{"sup-1", "sup-2"}
	errs := make([]error, len(approvers))
	var done sync.WaitGroup
	for i, approver := range approvers {
		done.Add(1)
		go func() {
			defer done.Done()
			_, errs[i] = approve(svc, f.ID, approver, ActionApprove)
		}()
	}
	done.Wait()
	store.afterGet = nil

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConcurrentModification):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, []string{f.ID}, store.queuedJobs())
	assert.Len(t, store.historyFor(f.ID), 1)
}

func TestMarkSentToPayrollRequiresSummaries(t *testing.T) {
	svc, store := newTestService(map[int][]string{1: {"sup-1"}})
	ctx := context.Background()
	f := submit(t, svc)

	_, err := svc.MarkSentToPayroll(ctx, f.ID, "payroll-1")
	assert.ErrorIs(t, err, ErrSettlementPending)

	res, err := approve(svc, f.ID, "sup-1", ActionApprove)
	require.NoError(t, err)

	_, err = svc.MarkSentToPayroll(ctx, f.ID, "payroll-1")
	assert.ErrorIs(t, err, ErrSettlementPending)

	settled := res.Finalization
	stamp := fixedNow.Add(time.Minute)
	settled.PayrollSummaryCreatedAt = &stamp
	store.put(settled)

	sent, err := svc.MarkSentToPayroll(ctx, f.ID, "payroll-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSentToPayroll, sent.WorkflowStatus)
	require.NotNil(t, sent.SentToPayrollAt)

	_, err = svc.MarkSentToPayroll(ctx, f.ID, "payroll-1")
	assert.ErrorIs(t, err, ErrFinalizationClosed)
	_, err = approve(svc, f.ID, "sup-1", ActionApprove)
	assert.ErrorIs(t, err, ErrFinalizationClosed)
}

func TestListPendingForApprover(t *testing.T) {
	svc, _ := newTestService(map[int][]string{1: {"sup-1"}, 2: {"mgr-1"}})
	f := submit(t, svc)

	pending, err := svc.ListPendingForApprover(context.Background(), "sup-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, f.ID, pending[0].ID)

	pending, err = svc.ListPendingForApprover(context.Background(), "mgr-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingLevel(t *testing.T) {
	level, ok := PendingLevel(PendingStatus(3))
	assert.True(t, ok)
	assert.Equal(t, 3, level)

	_, ok = PendingLevel(StatusRejected)
	assert.False(t, ok)
	_, ok = PendingLevel("pending_level_x")
	assert.False(t, ok)
}
