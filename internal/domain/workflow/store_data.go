package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"hrflow/internal/domain/errkind"
)

const templateColumns = `
  id::text, code, name, category, auto_terminate_hours, allow_return_to_previous,
  requires_signature, requires_letter, is_active, active_from, active_to`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Category, &t.AutoTerminateHours, &t.AllowReturnToPrevious,
		&t.RequiresSignature, &t.RequiresLetter, &t.IsActive, &t.ActiveFrom, &t.ActiveTo)
	return t, err
}

func (s *Store) ActiveTemplateByCode(ctx context.Context, code string, at time.Time) (Template, error) {
	t, err := scanTemplate(s.DB.QueryRow(ctx, `
    SELECT`+templateColumns+`
    FROM workflow_templates
    WHERE code = $1
      AND is_active
      AND (active_from IS NULL OR active_from <= $2)
      AND (active_to IS NULL OR active_to >= $2)
  `, code, at))
	if err != nil {
		return Template{}, notFound(err, ErrTemplateNotFound, "load template")
	}
	return t, nil
}

func (s *Store) TemplateByID(ctx context.Context, id string) (Template, error) {
	t, err := scanTemplate(s.DB.QueryRow(ctx, `
    SELECT`+templateColumns+`
    FROM workflow_templates
    WHERE id = $1
  `, id))
	if err != nil {
		return Template{}, notFound(err, ErrTemplateNotFound, "load template")
	}
	return t, nil
}

const stepColumns = `
  id::text, template_id::text, step_order, name, approver_type, approver_ref,
  requires_signature, requires_comment, can_delegate, escalation_hours, escalation_action,
  alternate_approver_id, is_active`

func scanStep(row pgx.Row) (Step, error) {
	var st Step
	err := row.Scan(&st.ID, &st.TemplateID, &st.StepOrder, &st.Name, &st.ApproverType, &st.ApproverRef,
		&st.RequiresSignature, &st.RequiresComment, &st.CanDelegate, &st.EscalationHours, &st.EscalationAction,
		&st.AlternateApproverID, &st.IsActive)
	return st, err
}

func (s *Store) FirstActiveStep(ctx context.Context, templateID string) (Step, error) {
	st, err := scanStep(s.DB.QueryRow(ctx, `
    SELECT`+stepColumns+`
    FROM workflow_steps
    WHERE template_id = $1 AND is_active
    ORDER BY step_order
    LIMIT 1
  `, templateID))
	if err != nil {
		return Step{}, notFound(err, ErrNoStepsConfigured, "load first step")
	}
	return st, nil
}

func (s *Store) StepByID(ctx context.Context, id string) (Step, error) {
	st, err := scanStep(s.DB.QueryRow(ctx, `
    SELECT`+stepColumns+`
    FROM workflow_steps
    WHERE id = $1
  `, id))
	if err != nil {
		// an instance always points at an existing step
		return Step{}, errkind.Dep("load current step", err)
	}
	return st, nil
}

func (s *Store) NextActiveStep(ctx context.Context, templateID string, afterOrder int) (Step, bool, error) {
	st, err := scanStep(s.DB.QueryRow(ctx, `
    SELECT`+stepColumns+`
    FROM workflow_steps
    WHERE template_id = $1 AND is_active AND step_order > $2
    ORDER BY step_order
    LIMIT 1
  `, templateID, afterOrder))
	if errors.Is(err, pgx.ErrNoRows) {
		return Step{}, false, nil
	}
	if err != nil {
		return Step{}, false, errkind.Dep("load next step", err)
	}
	return st, true, nil
}

func (s *Store) ActiveStepByOrder(ctx context.Context, templateID string, order int) (Step, bool, error) {
	st, err := scanStep(s.DB.QueryRow(ctx, `
    SELECT`+stepColumns+`
    FROM workflow_steps
    WHERE template_id = $1 AND is_active AND step_order = $2
  `, templateID, order))
	if errors.Is(err, pgx.ErrNoRows) {
		return Step{}, false, nil
	}
	if err != nil {
		return Step{}, false, errkind.Dep("load step by order", err)
	}
	return st, true, nil
}

const liveStatuses = `('pending','in_progress','returned','escalated','draft')`

func (s *Store) HasLiveInstance(ctx context.Context, referenceType, referenceID string) (bool, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM workflow_instances
      WHERE reference_type = $1 AND reference_id = $2 AND status IN `+liveStatuses+`
    )
  `, referenceType, referenceID).Scan(&exists); err != nil {
		return false, errkind.Dep("check live instance", err)
	}
	return exists, nil
}

func (s *Store) CreateInstance(ctx context.Context, inst *Instance) error {
	meta, err := EncodeMetadata(inst.Metadata)
	if err != nil {
		return err
	}
	err = s.DB.QueryRow(ctx, `
    INSERT INTO workflow_instances (template_id, category, reference_type, reference_id, status,
      current_step_id, current_step_order, current_approver_id, initiated_by, deadline_at,
      auto_terminate_at, metadata, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    RETURNING id::text
  `, inst.TemplateID, inst.Category, inst.ReferenceType, inst.ReferenceID, inst.Status,
		inst.CurrentStepID, inst.CurrentStepOrder, inst.CurrentApproverID, inst.InitiatedBy, inst.DeadlineAt,
		inst.AutoTerminateAt, meta, inst.Version, inst.CreatedAt, inst.UpdatedAt).Scan(&inst.ID)
	if isUniqueViolation(err, "workflow_instances_live_reference") {
		return ErrActiveInstanceExists
	}
	if err != nil {
		return errkind.Dep("create instance", err)
	}
	return nil
}

const instanceColumns = `
  id::text, template_id::text, category, reference_type, reference_id, status,
  current_step_id::text, current_step_order, current_approver_id, initiated_by, deadline_at,
  auto_terminate_at, escalated_at, completed_at, completed_by, final_action, metadata, version,
  created_at, updated_at`

func scanInstance(row pgx.Row) (Instance, error) {
	var inst Instance
	var meta []byte
	if err := row.Scan(&inst.ID, &inst.TemplateID, &inst.Category, &inst.ReferenceType, &inst.ReferenceID, &inst.Status,
		&inst.CurrentStepID, &inst.CurrentStepOrder, &inst.CurrentApproverID, &inst.InitiatedBy, &inst.DeadlineAt,
		&inst.AutoTerminateAt, &inst.EscalatedAt, &inst.CompletedAt, &inst.CompletedBy, &inst.FinalAction, &meta, &inst.Version,
		&inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return Instance{}, err
	}
	decoded, err := DecodeMetadata(inst.Category, meta)
	if err != nil {
		return Instance{}, err
	}
	inst.Metadata = decoded
	return inst, nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (Instance, error) {
	inst, err := scanInstance(s.DB.QueryRow(ctx, `
    SELECT`+instanceColumns+`
    FROM workflow_instances
    WHERE id = $1
  `, id))
	if err != nil {
		return Instance{}, notFound(err, ErrInstanceNotFound, "load instance")
	}
	return inst, nil
}

func (s *Store) UpdateInstance(ctx context.Context, inst *Instance, expectedVersion int) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE workflow_instances
    SET status = $3,
        current_step_id = $4,
        current_step_order = $5,
        current_approver_id = $6,
        deadline_at = $7,
        escalated_at = $8,
        completed_at = $9,
        completed_by = $10,
        final_action = $11,
        updated_at = $12,
        version = version + 1
    WHERE id = $1 AND version = $2
  `, inst.ID, expectedVersion, inst.Status, inst.CurrentStepID, inst.CurrentStepOrder, inst.CurrentApproverID,
		inst.DeadlineAt, inst.EscalatedAt, inst.CompletedAt, inst.CompletedBy, inst.FinalAction, inst.UpdatedAt)
	if err != nil {
		return errkind.Dep("update instance", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	inst.Version = expectedVersion + 1
	return nil
}

func (s *Store) AppendAction(ctx context.Context, action *StepAction) error {
	var returnTo *int
	if action.ReturnToStep > 0 {
		v := action.ReturnToStep
		returnTo = &v
	}
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO workflow_step_actions (instance_id, step_id, step_order, action, actor_id, comment,
      delegated_to, delegation_reason, return_to_step, return_reason, outcome, refusal_reason, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    RETURNING id::text
  `, action.InstanceID, action.StepID, action.StepOrder, action.Action, action.ActorID, action.Comment,
		action.DelegatedTo, action.DelegationReason, returnTo, action.ReturnReason, action.Outcome, action.RefusalReason,
		action.CreatedAt).Scan(&action.ID); err != nil {
		return errkind.Dep("append step action", err)
	}
	return nil
}

func (s *Store) AppendSignature(ctx context.Context, sig *Signature) error {
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO workflow_signatures (instance_id, step_action_id, signer_id, signature_text, signed_at, hash)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id::text
  `, sig.InstanceID, sig.StepActionID, sig.SignerID, sig.SealedText, sig.SignedAt, sig.Hash).Scan(&sig.ID); err != nil {
		return errkind.Dep("append signature", err)
	}
	return nil
}

func (s *Store) ListActions(ctx context.Context, instanceID string) ([]StepAction, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, instance_id::text, step_id::text, step_order, action, actor_id, comment,
           delegated_to, delegation_reason, COALESCE(return_to_step, 0), return_reason, outcome,
           refusal_reason, created_at
    FROM workflow_step_actions
    WHERE instance_id = $1
    ORDER BY seq
  `, instanceID)
	if err != nil {
		return nil, errkind.Dep("list step actions", err)
	}
	defer rows.Close()

	var out []StepAction
	for rows.Next() {
		var a StepAction
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.StepID, &a.StepOrder, &a.Action, &a.ActorID, &a.Comment,
			&a.DelegatedTo, &a.DelegationReason, &a.ReturnToStep, &a.ReturnReason, &a.Outcome,
			&a.RefusalReason, &a.CreatedAt); err != nil {
			return nil, errkind.Dep("scan step action", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("list step actions", err)
	}
	return out, nil
}

func (s *Store) ListSignatures(ctx context.Context, instanceID string) ([]Signature, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, instance_id::text, step_action_id::text, signer_id, signature_text, signed_at, hash
    FROM workflow_signatures
    WHERE instance_id = $1
  `, instanceID)
	if err != nil {
		return nil, errkind.Dep("list signatures", err)
	}
	defer rows.Close()

	var out []Signature
	for rows.Next() {
		var sig Signature
		if err := rows.Scan(&sig.ID, &sig.InstanceID, &sig.StepActionID, &sig.SignerID, &sig.SealedText, &sig.SignedAt, &sig.Hash); err != nil {
			return nil, errkind.Dep("scan signature", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep("list signatures", err)
	}
	return out, nil
}

func (s *Store) listInstances(ctx context.Context, op, query string, args ...any) ([]Instance, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, errkind.Dep(op, err)
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, errkind.Dep(op, err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Dep(op, err)
	}
	return out, nil
}

func (s *Store) ListPending(ctx context.Context, approverID string, limit, offset int) ([]Instance, error) {
	return s.listInstances(ctx, "list pending instances", `
    SELECT`+instanceColumns+`
    FROM workflow_instances
    WHERE current_approver_id = $1 AND status IN `+liveStatuses+`
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, approverID, limit, offset)
}

func (s *Store) CountPending(ctx context.Context, approverID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM workflow_instances
    WHERE current_approver_id = $1 AND status IN `+liveStatuses+`
  `, approverID).Scan(&total); err != nil {
		return 0, errkind.Dep("count pending instances", err)
	}
	return total, nil
}

func (s *Store) ListOverdue(ctx context.Context, now time.Time, limit int) ([]Instance, error) {
	return s.listInstances(ctx, "list overdue instances", `
    SELECT`+instanceColumns+`
    FROM workflow_instances
    WHERE auto_terminate_at IS NOT NULL AND auto_terminate_at <= $1 AND status IN `+liveStatuses+`
    ORDER BY auto_terminate_at
    LIMIT $2
  `, now, limit)
}
