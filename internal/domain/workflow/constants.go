package workflow

type Status string

const (
	StatusDraft          Status = "draft"
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusReturned       Status = "returned"
	StatusEscalated      Status = "escalated"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
	StatusCancelled      Status = "cancelled"
	StatusAutoTerminated Status = "auto_terminated"
)

// Terminal reports whether no further action can be taken on the instance.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusAutoTerminated:
		return true
	}
	return false
}

type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionReturn   Action = "return"
	ActionEscalate Action = "escalate"
	ActionDelegate Action = "delegate"
	ActionComment  Action = "comment"

	// finalActionCancel and finalActionAutoTerminate only appear on
	// instances; they are never written as step actions.
	finalActionCancel        Action = "cancel"
	finalActionAutoTerminate Action = "auto_terminate"
)

var Actions = []Action{ActionApprove, ActionReject, ActionReturn, ActionEscalate, ActionDelegate, ActionComment}

func (a Action) Valid() bool {
	for _, candidate := range Actions {
		if a == candidate {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryLeaveRequest Category = "leave_request"
	CategoryPromotion    Category = "promotion"
	CategoryTransfer     Category = "transfer"
	CategoryTimesheet    Category = "timesheet"
)

type ApproverType string

const (
	ApproverFixedUser      ApproverType = "fixed_user"
	ApproverRole           ApproverType = "role"
	ApproverPosition       ApproverType = "position"
	ApproverReportingLine  ApproverType = "reporting_line"
	ApproverGovernanceBody ApproverType = "governance_body"
)

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeRefused Outcome = "refused"
)

// RoleAdmin may act on any step regardless of the resolved approver.
const RoleAdmin = "workflow_admin"
