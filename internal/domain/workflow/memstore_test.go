package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory StoreAPI. Writes made inside InTx are undone
// when fn fails, which is enough to observe rollback behavior in tests.
type memStore struct {
	mu         sync.Mutex
	templates  map[string]Template
	steps      map[string]Step
	instances  map[string]Instance
	actions    []StepAction
	signatures []Signature

	// afterGet runs after GetInstance returns inside a transaction.
	afterGet func()
}

func newMemStore() *memStore {
	return &memStore{
		templates: map[string]Template{},
		steps:     map[string]Step{},
		instances: map[string]Instance{},
	}
}

func (m *memStore) addTemplate(t Template, steps ...Step) Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.templates[t.ID] = t
	for _, st := range steps {
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		st.TemplateID = t.ID
		m.steps[st.ID] = st
	}
	return t
}

func (m *memStore) actionsFor(instanceID string) []StepAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StepAction
	for _, a := range m.actions {
		if a.InstanceID == instanceID {
			out = append(out, a)
		}
	}
	return out
}

func (m *memStore) InTx(ctx context.Context, fn func(repo Repository) error) error {
	tx := &memTx{memStore: m}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (m *memStore) ActiveTemplateByCode(_ context.Context, code string, at time.Time) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if t.Code == code && t.ActiveAt(at) {
			return t, nil
		}
	}
	return Template{}, ErrTemplateNotFound
}

func (m *memStore) TemplateByID(_ context.Context, id string) (Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return t, nil
}

func (m *memStore) activeSteps(templateID string) []Step {
	var out []Step
	for _, st := range m.steps {
		if st.TemplateID == templateID && st.IsActive {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out
}

func (m *memStore) FirstActiveStep(_ context.Context, templateID string) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := m.activeSteps(templateID)
	if len(steps) == 0 {
		return Step{}, ErrNoStepsConfigured
	}
	return steps[0], nil
}

func (m *memStore) StepByID(_ context.Context, id string) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.steps[id]
	if !ok {
		return Step{}, fmt.Errorf("step %s missing", id)
	}
	return st, nil
}

func (m *memStore) NextActiveStep(_ context.Context, templateID string, afterOrder int) (Step, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.activeSteps(templateID) {
		if st.StepOrder > afterOrder {
			return st, true, nil
		}
	}
	return Step{}, false, nil
}

func (m *memStore) ActiveStepByOrder(_ context.Context, templateID string, order int) (Step, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.activeSteps(templateID) {
		if st.StepOrder == order {
			return st, true, nil
		}
	}
	return Step{}, false, nil
}

func (m *memStore) HasLiveInstance(_ context.Context, referenceType, referenceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveFor(referenceType, referenceID), nil
}

func (m *memStore) liveFor(referenceType, referenceID string) bool {
	for _, inst := range m.instances {
		if inst.ReferenceType == referenceType && inst.ReferenceID == referenceID && !inst.Status.Terminal() {
			return true
		}
	}
	return false
}

func (m *memStore) CreateInstance(_ context.Context, inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveFor(inst.ReferenceType, inst.ReferenceID) {
		return ErrActiveInstanceExists
	}
	inst.ID = uuid.NewString()
	m.instances[inst.ID] = *inst
	return nil
}

func (m *memStore) GetInstance(_ context.Context, id string) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return Instance{}, ErrInstanceNotFound
	}
	return inst, nil
}

func (m *memStore) UpdateInstance(_ context.Context, inst *Instance, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.instances[inst.ID]
	if !ok || cur.Version != expectedVersion {
		return ErrConcurrentModification
	}
	inst.Version = expectedVersion + 1
	m.instances[inst.ID] = *inst
	return nil
}

func (m *memStore) AppendAction(_ context.Context, action *StepAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	action.ID = uuid.NewString()
	m.actions = append(m.actions, *action)
	return nil
}

func (m *memStore) AppendSignature(_ context.Context, sig *Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig.ID = uuid.NewString()
	m.signatures = append(m.signatures, *sig)
	return nil
}

func (m *memStore) ListActions(_ context.Context, instanceID string) ([]StepAction, error) {
	return m.actionsFor(instanceID), nil
}

func (m *memStore) ListSignatures(_ context.Context, instanceID string) ([]Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Signature
	for _, sig := range m.signatures {
		if sig.InstanceID == instanceID {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (m *memStore) ListPending(_ context.Context, approverID string, limit, offset int) ([]Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Instance
	for _, inst := range m.instances {
		if inst.CurrentApproverID == approverID && !inst.Status.Terminal() {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountPending(ctx context.Context, approverID string) (int, error) {
	all, err := m.ListPending(ctx, approverID, 0, 0)
	return len(all), err
}

func (m *memStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Instance
	for _, inst := range m.instances {
		if inst.AutoTerminateAt != nil && !inst.AutoTerminateAt.After(now) && !inst.Status.Terminal() {
			out = append(out, inst)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	*memStore
	undo []func()
}

func (tx *memTx) GetInstance(ctx context.Context, id string) (Instance, error) {
	inst, err := tx.memStore.GetInstance(ctx, id)
	if err == nil && tx.memStore.afterGet != nil {
		tx.memStore.afterGet()
	}
	return inst, err
}

func (tx *memTx) CreateInstance(ctx context.Context, inst *Instance) error {
	if err := tx.memStore.CreateInstance(ctx, inst); err != nil {
		return err
	}
	id := inst.ID
	tx.undo = append(tx.undo, func() {
		tx.mu.Lock()
		delete(tx.instances, id)
		tx.mu.Unlock()
	})
	return nil
}

func (tx *memTx) UpdateInstance(ctx context.Context, inst *Instance, expectedVersion int) error {
	tx.mu.Lock()
	prev := tx.instances[inst.ID]
	tx.mu.Unlock()
	if err := tx.memStore.UpdateInstance(ctx, inst, expectedVersion); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() {
		tx.mu.Lock()
		tx.instances[prev.ID] = prev
		tx.mu.Unlock()
	})
	return nil
}

func (tx *memTx) AppendAction(ctx context.Context, action *StepAction) error {
	if err := tx.memStore.AppendAction(ctx, action); err != nil {
		return err
	}
	id := action.ID
	tx.undo = append(tx.undo, func() {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		for i, a := range tx.actions {
			if a.ID == id {
				tx.actions = append(tx.actions[:i], tx.actions[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (tx *memTx) AppendSignature(ctx context.Context, sig *Signature) error {
	if err := tx.memStore.AppendSignature(ctx, sig); err != nil {
		return err
	}
	id := sig.ID
	tx.undo = append(tx.undo, func() {
		tx.mu.Lock()
		defer tx.mu.Unlock()
		for i, s := range tx.signatures {
			if s.ID == id {
				tx.signatures = append(tx.signatures[:i], tx.signatures[i+1:]...)
				return
			}
		}
	})
	return nil
}

// mapResolver resolves every approver type by looking up ApproverRef.
type mapResolver struct {
	mu    sync.Mutex
	users map[string]string
	calls int
}

func (r *mapResolver) Resolve(_ context.Context, spec ApproverSpec, _ Subject) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if spec.Type == ApproverFixedUser && spec.Ref != "" {
		return spec.Ref, nil
	}
	if id, ok := r.users[spec.Ref]; ok {
		return id, nil
	}
	return fallbackApprover(spec)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
