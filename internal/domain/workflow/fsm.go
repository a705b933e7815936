package workflow

import "strings"

var liveTargets = []Status{
	StatusInProgress,
	StatusReturned,
	StatusEscalated,
	StatusApproved,
	StatusRejected,
	StatusCancelled,
	StatusAutoTerminated,
}

var allowedTransitions = map[Status][]Status{
	StatusDraft:      {StatusPending, StatusCancelled},
	StatusPending:    liveTargets,
	StatusInProgress: liveTargets,
	StatusReturned:   liveTargets,
	StatusEscalated:  liveTargets,
}

func CanTransition(from, to Status) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// validateRequest checks the payload against the step before anything is
// written. It does not look at instance state.
func validateRequest(req ActionRequest, step Step) error {
	if !req.Action.Valid() {
		return ErrInvalidAction
	}
	switch req.Action {
	case ActionApprove, ActionReject, ActionReturn:
		if step.RequiresComment && strings.TrimSpace(req.Comment) == "" {
			return ErrCommentRequired
		}
	}
	switch req.Action {
	case ActionDelegate:
		if !step.CanDelegate {
			return ErrDelegationNotAllowed
		}
		if strings.TrimSpace(req.DelegatedTo) == "" {
			return ErrDelegateTargetRequired
		}
	case ActionReturn:
		if req.ReturnToStep <= 0 {
			return ErrReturnTargetRequired
		}
	}
	return nil
}

// partyTo reports whether actor can see inst from the instance alone.
func partyTo(actor Actor, inst Instance) bool {
	if actor.ID == "" {
		return false
	}
	return actor.HasRole(RoleAdmin) || actor.ID == inst.InitiatedBy || actor.ID == inst.CurrentApproverID
}

// authorize decides whether actor may take req.Action on the current step.
func authorize(actor Actor, inst Instance, step Step, action Action) error {
	if actor.ID == "" {
		return ErrNotAuthorized
	}
	if actor.HasRole(RoleAdmin) {
		return nil
	}
	if actor.ID == inst.CurrentApproverID {
		return nil
	}
	if step.AlternateApproverID != "" && actor.ID == step.AlternateApproverID {
		return nil
	}
	if action == ActionComment && actor.ID == inst.InitiatedBy {
		return nil
	}
	return ErrNotAuthorized
}
