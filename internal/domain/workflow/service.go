package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hrflow/internal/domain/errkind"
)

// SystemActor is recorded as completedBy for transitions nobody requested.
const SystemActor = "system"

// Recorder receives transition outcomes for metrics.
type Recorder interface {
	WorkflowTransition(category, action, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) WorkflowTransition(string, string, string) {}

type Service struct {
	store    StoreAPI
	resolver ApproverResolver
	signer   *Signer
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

func NewService(store StoreAPI, resolver ApproverResolver, signer *Signer, opts ...Option) *Service {
	if signer == nil {
		signer = &Signer{}
	}
	s := &Service{
		store:    store,
		resolver: resolver,
		signer:   signer,
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) StartWorkflow(ctx context.Context, actor Actor, req StartRequest) (Instance, error) {
	if actor.ID == "" {
		return Instance{}, ErrNotAuthorized
	}
	var inst Instance
	err := s.store.InTx(ctx, func(repo Repository) error {
		now := s.now()
		tmpl, err := repo.ActiveTemplateByCode(ctx, req.TemplateCode, now)
		if err != nil {
			return err
		}
		step, err := repo.FirstActiveStep(ctx, tmpl.ID)
		if err != nil {
			return err
		}
		meta, err := DecodeMetadata(tmpl.Category, req.Metadata)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMetadataMismatch, err)
		}
		live, err := repo.HasLiveInstance(ctx, req.ReferenceType, req.ReferenceID)
		if err != nil {
			return err
		}
		if live {
			return ErrActiveInstanceExists
		}

		inst = Instance{
			TemplateID:       tmpl.ID,
			Category:         tmpl.Category,
			ReferenceType:    req.ReferenceType,
			ReferenceID:      req.ReferenceID,
			Status:           StatusPending,
			CurrentStepID:    step.ID,
			CurrentStepOrder: step.StepOrder,
			InitiatedBy:      actor.ID,
			DeadlineAt:       deadlineFor(step, now),
			Metadata:         meta,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if tmpl.AutoTerminateHours > 0 {
			at := now.Add(time.Duration(tmpl.AutoTerminateHours) * time.Hour)
			inst.AutoTerminateAt = &at
		}
		approver, err := s.resolve(ctx, step, inst)
		if err != nil {
			return err
		}
		inst.CurrentApproverID = approver
		return repo.CreateInstance(ctx, &inst)
	})
	if err != nil {
		s.recorder.WorkflowTransition("", "start", outcomeLabel(err))
		return Instance{}, err
	}
	s.recorder.WorkflowTransition(string(inst.Category), "start", string(OutcomeApplied))
	return inst, nil
}

// TakeAction validates and records an action against the instance's
// current step and applies the resulting transition. Once the actor is
// authorized every call leaves a ledger row: payload and state refusals
// are recorded as refused and returned after the row commits.
func (s *Service) TakeAction(ctx context.Context, actor Actor, instanceID string, req ActionRequest) (ActionResult, error) {
	var (
		result   ActionResult
		refusal  error
		category Category
	)
	err := s.store.InTx(ctx, func(repo Repository) error {
		refusal = nil
		inst, err := repo.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		category = inst.Category
		if req.ExpectedVersion != nil && *req.ExpectedVersion != inst.Version {
			return ErrConcurrentModification
		}
		step, err := repo.StepByID(ctx, inst.CurrentStepID)
		if err != nil {
			return err
		}
		if err := authorize(actor, inst, step, req.Action); err != nil {
			return err
		}
		tmpl, err := repo.TemplateByID(ctx, inst.TemplateID)
		if err != nil {
			return err
		}

		now := s.now()
		t := refuse(validateRequest(req, step))
		if t.refusal == nil {
			t, err = s.plan(ctx, repo, tmpl, inst, step, actor, req, now)
			if err != nil {
				return err
			}
		}
		next := t.next
		refusal = t.refusal

		action := StepAction{
			InstanceID:       inst.ID,
			StepID:           step.ID,
			StepOrder:        inst.CurrentStepOrder,
			Action:           req.Action,
			ActorID:          actor.ID,
			Comment:          req.Comment,
			DelegatedTo:      req.DelegatedTo,
			DelegationReason: req.DelegationReason,
			ReturnToStep:     req.ReturnToStep,
			ReturnReason:     req.ReturnReason,
			Outcome:          OutcomeApplied,
			CreatedAt:        now,
		}
		if refusal != nil {
			action.Outcome = OutcomeRefused
			action.RefusalReason = refusal.Error()
		}
		if err := repo.AppendAction(ctx, &action); err != nil {
			return err
		}
		if refusal == nil && req.Signature != nil && req.Signature.Text != "" && (tmpl.RequiresSignature || step.RequiresSignature) {
			sig, err := s.signer.Sign(inst.ID, action.ID, actor.ID, req.Signature.Text, now)
			if err != nil {
				return err
			}
			if err := repo.AppendSignature(ctx, &sig); err != nil {
				return err
			}
			action.Signature = &sig
		}

		result = ActionResult{Instance: inst, Action: action}
		if next == nil {
			return nil
		}
		if err := repo.UpdateInstance(ctx, next, inst.Version); err != nil {
			return err
		}
		result.Instance = *next
		return nil
	})
	if err != nil {
		s.recorder.WorkflowTransition(string(category), string(req.Action), outcomeLabel(err))
		return ActionResult{}, err
	}
	if refusal != nil {
		s.recorder.WorkflowTransition(string(category), string(req.Action), string(OutcomeRefused))
		return result, refusal
	}
	s.recorder.WorkflowTransition(string(category), string(req.Action), string(OutcomeApplied))
	return result, nil
}

// transition is the planned effect of an action. A nil next with a nil
// refusal means the action leaves the instance untouched.
type transition struct {
	next    *Instance
	refusal error
}

func refuse(err error) transition {
	return transition{refusal: err}
}

func (s *Service) plan(ctx context.Context, repo Repository, tmpl Template, inst Instance, step Step, actor Actor, req ActionRequest, now time.Time) (transition, error) {
	if inst.Status.Terminal() {
		return refuse(ErrInstanceTerminal), nil
	}
	next := inst
	next.UpdatedAt = now

	switch req.Action {
	case ActionApprove:
		following, ok, err := repo.NextActiveStep(ctx, inst.TemplateID, inst.CurrentStepOrder)
		if err != nil {
			return transition{}, err
		}
		if !ok {
			complete(&next, StatusApproved, ActionApprove, actor.ID, now)
			break
		}
		approver, err := s.resolve(ctx, following, inst)
		if err != nil {
			return transition{}, err
		}
		moveTo(&next, following, approver, now)
		next.Status = StatusInProgress
	case ActionReject:
		complete(&next, StatusRejected, ActionReject, actor.ID, now)
	case ActionReturn:
		if !tmpl.AllowReturnToPrevious {
			return refuse(ErrReturnNotAllowed), nil
		}
		if req.ReturnToStep > inst.CurrentStepOrder {
			return refuse(ErrReturnTargetNotFound), nil
		}
		target, ok, err := repo.ActiveStepByOrder(ctx, inst.TemplateID, req.ReturnToStep)
		if err != nil {
			return transition{}, err
		}
		if !ok {
			return refuse(ErrReturnTargetNotFound), nil
		}
		approver, err := s.resolve(ctx, target, inst)
		if err != nil {
			return transition{}, err
		}
		moveTo(&next, target, approver, now)
		next.Status = StatusReturned
	case ActionEscalate:
		next.Status = StatusEscalated
		next.EscalatedAt = &now
		if step.AlternateApproverID != "" {
			next.CurrentApproverID = step.AlternateApproverID
		}
	case ActionDelegate:
		next.CurrentApproverID = req.DelegatedTo
	case ActionComment:
		return transition{}, nil
	}

	if next.Status != inst.Status && !CanTransition(inst.Status, next.Status) {
		return refuse(fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inst.Status, next.Status)), nil
	}
	return transition{next: &next}, nil
}

// CancelWorkflow closes a live instance. Only the initiator may cancel.
func (s *Service) CancelWorkflow(ctx context.Context, actor Actor, instanceID string) (Instance, error) {
	var out Instance
	var category Category
	err := s.store.InTx(ctx, func(repo Repository) error {
		inst, err := repo.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		category = inst.Category
		if actor.ID == "" || actor.ID != inst.InitiatedBy {
			return ErrNotAuthorized
		}
		if inst.Status.Terminal() {
			return ErrInstanceTerminal
		}
		next := inst
		complete(&next, StatusCancelled, finalActionCancel, actor.ID, s.now())
		if err := repo.UpdateInstance(ctx, &next, inst.Version); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		s.recorder.WorkflowTransition(string(category), string(finalActionCancel), outcomeLabel(err))
		return Instance{}, err
	}
	s.recorder.WorkflowTransition(string(category), string(finalActionCancel), string(OutcomeApplied))
	return out, nil
}

// AutoTerminate closes an instance whose auto-terminate deadline has
// passed. It is called by the overdue sweeper.
func (s *Service) AutoTerminate(ctx context.Context, instanceID string) (Instance, error) {
	var out Instance
	var category Category
	err := s.store.InTx(ctx, func(repo Repository) error {
		inst, err := repo.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		category = inst.Category
		if inst.Status.Terminal() {
			return ErrInstanceTerminal
		}
		now := s.now()
		if inst.AutoTerminateAt == nil || inst.AutoTerminateAt.After(now) {
			return ErrNotDue
		}
		next := inst
		complete(&next, StatusAutoTerminated, finalActionAutoTerminate, SystemActor, now)
		if err := repo.UpdateInstance(ctx, &next, inst.Version); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		s.recorder.WorkflowTransition(string(category), string(finalActionAutoTerminate), outcomeLabel(err))
		return Instance{}, err
	}
	s.recorder.WorkflowTransition(string(category), string(finalActionAutoTerminate), string(OutcomeApplied))
	return out, nil
}

func (s *Service) GetWorkflow(ctx context.Context, instanceID string) (Instance, error) {
	return s.store.GetInstance(ctx, instanceID)
}

// ViewWorkflow returns an instance to an actor who is party to it. Other
// actors get ErrInstanceNotFound.
func (s *Service) ViewWorkflow(ctx context.Context, actor Actor, instanceID string) (Instance, error) {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	if err := s.checkVisible(ctx, actor, inst); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

// ViewWorkflowHistory is GetWorkflowHistory restricted like ViewWorkflow.
func (s *Service) ViewWorkflowHistory(ctx context.Context, actor Actor, instanceID string) ([]StepAction, error) {
	if _, err := s.ViewWorkflow(ctx, actor, instanceID); err != nil {
		return nil, err
	}
	return s.GetWorkflowHistory(ctx, instanceID)
}

func (s *Service) checkVisible(ctx context.Context, actor Actor, inst Instance) error {
	if actor.ID == "" {
		return ErrInstanceNotFound
	}
	if partyTo(actor, inst) {
		return nil
	}
	step, err := s.store.StepByID(ctx, inst.CurrentStepID)
	if err != nil {
		return err
	}
	if step.AlternateApproverID == actor.ID {
		return nil
	}
	actions, err := s.store.ListActions(ctx, inst.ID)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if a.ActorID == actor.ID || a.DelegatedTo == actor.ID {
			return nil
		}
	}
	return ErrInstanceNotFound
}

// GetWorkflowHistory returns the ledger for an instance in the order the
// actions were taken, with signatures attached and verified.
func (s *Service) GetWorkflowHistory(ctx context.Context, instanceID string) ([]StepAction, error) {
	if _, err := s.store.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	actions, err := s.store.ListActions(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	sigs, err := s.store.ListSignatures(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	byAction := make(map[string]*Signature, len(sigs))
	for i := range sigs {
		sig := sigs[i]
		if err := s.signer.Open(&sig); err != nil {
			return nil, errkind.Dep("open signature", err)
		}
		byAction[sig.StepActionID] = &sig
	}
	for i := range actions {
		actions[i].Signature = byAction[actions[i].ID]
	}
	return actions, nil
}

func (s *Service) GetPendingWorkflows(ctx context.Context, approverID string, limit, offset int) ([]Instance, int, error) {
	total, err := s.store.CountPending(ctx, approverID)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.store.ListPending(ctx, approverID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) ListOverdue(ctx context.Context, limit int) ([]Instance, error) {
	return s.store.ListOverdue(ctx, s.now(), limit)
}

func (s *Service) resolve(ctx context.Context, step Step, inst Instance) (string, error) {
	subject := Subject{
		Category:      inst.Category,
		ReferenceType: inst.ReferenceType,
		ReferenceID:   inst.ReferenceID,
		InitiatedBy:   inst.InitiatedBy,
	}
	if inst.Metadata != nil {
		subject.EmployeeID = inst.Metadata.SubjectEmployeeID()
	}
	approver, err := s.resolver.Resolve(ctx, specForStep(step), subject)
	if err != nil {
		if errors.Is(err, ErrApproverUnresolved) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrApproverUnresolved, err)
	}
	return approver, nil
}

func moveTo(inst *Instance, step Step, approver string, now time.Time) {
	inst.CurrentStepID = step.ID
	inst.CurrentStepOrder = step.StepOrder
	inst.CurrentApproverID = approver
	inst.DeadlineAt = deadlineFor(step, now)
}

func complete(inst *Instance, status Status, final Action, by string, now time.Time) {
	inst.Status = status
	inst.FinalAction = final
	inst.CompletedBy = by
	inst.CompletedAt = &now
	inst.UpdatedAt = now
}

func deadlineFor(step Step, now time.Time) *time.Time {
	if step.EscalationHours <= 0 {
		return nil
	}
	at := now.Add(time.Duration(step.EscalationHours) * time.Hour)
	return &at
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
