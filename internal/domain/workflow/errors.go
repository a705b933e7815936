package workflow

import (
	"fmt"

	"hrflow/internal/domain/errkind"
)

var (
	ErrTemplateNotFound       = fmt.Errorf("%w: workflow template not found", errkind.Caller)
	ErrNoStepsConfigured      = fmt.Errorf("%w: workflow template has no active steps", errkind.Caller)
	ErrInstanceNotFound       = fmt.Errorf("%w: workflow instance not found", errkind.Caller)
	ErrReturnTargetNotFound   = fmt.Errorf("%w: return target step not found", errkind.Caller)
	ErrReturnTargetRequired   = fmt.Errorf("%w: return requires a target step", errkind.Caller)
	ErrReturnNotAllowed       = fmt.Errorf("%w: template does not allow returning to a previous step", errkind.Caller)
	ErrActiveInstanceExists   = fmt.Errorf("%w: an active workflow already exists for this reference", errkind.Caller)
	ErrInstanceTerminal       = fmt.Errorf("%w: workflow instance is already closed", errkind.Caller)
	ErrInvalidAction          = fmt.Errorf("%w: unknown workflow action", errkind.Caller)
	ErrCommentRequired        = fmt.Errorf("%w: step requires a comment", errkind.Caller)
	ErrDelegationNotAllowed   = fmt.Errorf("%w: step does not allow delegation", errkind.Caller)
	ErrDelegateTargetRequired = fmt.Errorf("%w: delegation requires a target approver", errkind.Caller)
	ErrMetadataMismatch       = fmt.Errorf("%w: metadata does not match template category", errkind.Caller)
	ErrNotDue                 = fmt.Errorf("%w: workflow instance is not past its auto-terminate deadline", errkind.Caller)

	ErrNotAuthorized = fmt.Errorf("%w: actor may not act on this workflow step", errkind.Authorization)

	ErrConcurrentModification = fmt.Errorf("%w: workflow instance changed while the action was processed", errkind.Concurrency)

	ErrApproverUnresolved = fmt.Errorf("%w: approver could not be resolved", errkind.Dependency)
)

var ErrInvalidTransition = fmt.Errorf("%w: transition not allowed from current status", errkind.Caller)
