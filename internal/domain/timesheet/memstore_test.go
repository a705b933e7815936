package timesheet

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memStore struct {
	mu            sync.Mutex
	finalizations map[string]Finalization
	history       []HistoryEntry
	levels        map[int][]string
	maxLevels     int
	jobs          []string

	companyLocks map[string]*sync.Mutex

	// afterGet runs after GetFinalization returns inside a transaction.
	afterGet func()
	// afterOverlapCheck runs after HasOverlappingFinalization inside a
	// transaction.
	afterOverlapCheck func()
}

func newMemStore(levels map[int][]string) *memStore {
	maxLevels := 0
	for level := range levels {
		maxLevels = max(maxLevels, level)
	}
	return &memStore{
		finalizations: map[string]Finalization{},
		levels:        levels,
		maxLevels:     maxLevels,
		companyLocks:  map[string]*sync.Mutex{},
	}
}

func (m *memStore) historyFor(id string) []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryEntry
	for _, h := range m.history {
		if h.FinalizationID == id {
			out = append(out, h)
		}
	}
	return out
}

func (m *memStore) queuedJobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.jobs)
}

func (m *memStore) put(f Finalization) {
	m.mu.Lock()
	m.finalizations[f.ID] = f
	m.mu.Unlock()
}

func (m *memStore) InTx(ctx context.Context, fn func(repo Repository) error) error {
	tx := &memTx{memStore: m}
	defer func() {
		for _, unlock := range tx.release {
			unlock()
		}
	}()
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (m *memStore) GetFinalization(_ context.Context, id string) (Finalization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.finalizations[id]
	if !ok {
		return Finalization{}, ErrFinalizationNotFound
	}
	f.EmployeeIDs = slices.Clone(f.EmployeeIDs)
	return f, nil
}

func (m *memStore) CreateFinalization(_ context.Context, f *Finalization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = uuid.NewString()
	m.finalizations[f.ID] = *f
	return nil
}

func (m *memStore) UpdateFinalization(_ context.Context, f *Finalization, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.finalizations[f.ID]
	if !ok || cur.Version != expectedVersion {
		return ErrConcurrentModification
	}
	f.Version = expectedVersion + 1
	m.finalizations[f.ID] = *f
	return nil
}

// LockCompanyPeriods outside a transaction holds nothing.
func (m *memStore) LockCompanyPeriods(context.Context, string) error {
	return nil
}

func (m *memStore) HasOverlappingFinalization(_ context.Context, companyID string, start, end time.Time, employeeIDs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.finalizations {
		if f.CompanyID != companyID || f.WorkflowStatus == StatusRejected {
			continue
		}
		if f.PeriodStart.After(end) || f.PeriodEnd.Before(start) {
			continue
		}
		for _, id := range employeeIDs {
			if slices.Contains(f.EmployeeIDs, id) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memStore) ListPendingForApprover(_ context.Context, approverID string, limit, offset int) ([]Finalization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Finalization
	for _, f := range m.finalizations {
		if _, pending := PendingLevel(f.WorkflowStatus); pending && f.CurrentApproverID == approverID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) AppendHistory(_ context.Context, entry *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uuid.NewString()
	m.history = append(m.history, *entry)
	return nil
}

func (m *memStore) ListHistory(_ context.Context, finalizationID string) ([]HistoryEntry, error) {
	return m.historyFor(finalizationID), nil
}

func (m *memStore) LevelApprovers(_ context.Context, _ string, level int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.levels[level]), nil
}

func (m *memStore) MaxApprovalLevel(context.Context, string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxLevels, nil
}

func (m *memStore) EnqueueSettlement(_ context.Context, finalizationID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.jobs, finalizationID) {
		m.jobs = append(m.jobs, finalizationID)
	}
	return nil
}

type memTx struct {
	*memStore
	undo    []func()
	release []func()
}

func (tx *memTx) LockCompanyPeriods(_ context.Context, companyID string) error {
	tx.mu.Lock()
	lock, ok := tx.companyLocks[companyID]
	if !ok {
		lock = &sync.Mutex{}
		tx.companyLocks[companyID] = lock
	}
	tx.mu.Unlock()
	lock.Lock()
	tx.release = append(tx.release, lock.Unlock)
	return nil
}

func (tx *memTx) HasOverlappingFinalization(ctx context.Context, companyID string, start, end time.Time, employeeIDs []string) (bool, error) {
	overlap, err := tx.memStore.HasOverlappingFinalization(ctx, companyID, start, end, employeeIDs)
	if err == nil && tx.memStore.afterOverlapCheck != nil {
		tx.memStore.afterOverlapCheck()
	}
	return overlap, err
}

func (tx *memTx) GetFinalization(ctx context.Context, id string) (Finalization, error) {
	f, err := tx.memStore.GetFinalization(ctx, id)
	if err == nil && tx.memStore.afterGet != nil {
		tx.memStore.afterGet()
	}
	return f, err
}

func (tx *memTx) CreateFinalization(ctx context.Context, f *Finalization) error {
	if err := tx.memStore.CreateFinalization(ctx, f); err != nil {
		return err
	}
	id := f.ID
	tx.undo = append(tx.undo, func() {
		tx.mu.Lock()
		delete(tx.finalizations, id)
		tx.mu.Unlock()
	})
	return nil
}

func (tx *memTx) UpdateFinalization(ctx context.Context, f *Finalization, expectedVersion int) error {
	tx.mu.Lock()
	prev := tx.finalizations[f.ID]
	tx.mu.Unlock()
	if err := tx.memStore.UpdateFinalization(ctx, f, expectedVersion); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() {
		tx.mu.Lock()
		tx.finalizations[prev.ID] = prev
		tx.mu.Unlock()
	})
	return nil
}

func (tx *memTx) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	if err := tx.memStore.AppendHistory(ctx, entry); err != nil {
		return err
	}
	id := entry.ID
	tx.undo = append(tx.undo, func() {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		tx.history = slices.DeleteFunc(tx.history, func(h HistoryEntry) bool { return h.ID == id })
	})
	return nil
}

func (tx *memTx) EnqueueSettlement(ctx context.Context, finalizationID string, at time.Time) error {
	tx.mu.Lock()
	queued := slices.Contains(tx.jobs, finalizationID)
	tx.mu.Unlock()
	if err := tx.memStore.EnqueueSettlement(ctx, finalizationID, at); err != nil {
		return err
	}
	if queued {
		return nil
	}
	tx.undo = append(tx.undo, func() {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		tx.jobs = slices.DeleteFunc(tx.jobs, func(id string) bool { return id == finalizationID })
	})
	return nil
}
