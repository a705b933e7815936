package workflow

import (
	"encoding/json"
	"time"
)

type Template struct {
	ID                    string     `json:"id"`
	Code                  string     `json:"code"`
	Name                  string     `json:"name"`
	Category              Category   `json:"category"`
	AutoTerminateHours    int        `json:"autoTerminateHours"`
	AllowReturnToPrevious bool       `json:"allowReturnToPrevious"`
	RequiresSignature     bool       `json:"requiresSignature"`
	RequiresLetter        bool       `json:"requiresLetter"`
	IsActive              bool       `json:"isActive"`
	ActiveFrom            *time.Time `json:"activeFrom,omitempty"`
	ActiveTo              *time.Time `json:"activeTo,omitempty"`
}

// ActiveAt reports whether the template may start instances at t.
func (t Template) ActiveAt(at time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.ActiveFrom != nil && at.Before(*t.ActiveFrom) {
		return false
	}
	if t.ActiveTo != nil && at.After(*t.ActiveTo) {
		return false
	}
	return true
}

type Step struct {
	ID                  string       `json:"id"`
	TemplateID          string       `json:"templateId"`
	StepOrder           int          `json:"stepOrder"`
	Name                string       `json:"name"`
	ApproverType        ApproverType `json:"approverType"`
	ApproverRef         string       `json:"approverRef"`
	RequiresSignature   bool         `json:"requiresSignature"`
	RequiresComment     bool         `json:"requiresComment"`
	CanDelegate         bool         `json:"canDelegate"`
	EscalationHours     int          `json:"escalationHours"`
	EscalationAction    string       `json:"escalationAction,omitempty"`
	AlternateApproverID string       `json:"alternateApproverId,omitempty"`
	IsActive            bool         `json:"isActive"`
}

type Instance struct {
	ID                string     `json:"id"`
	TemplateID        string     `json:"templateId"`
	Category          Category   `json:"category"`
	ReferenceType     string     `json:"referenceType"`
	ReferenceID       string     `json:"referenceId"`
	Status            Status     `json:"status"`
	CurrentStepID     string     `json:"currentStepId"`
	CurrentStepOrder  int        `json:"currentStepOrder"`
	CurrentApproverID string     `json:"currentApproverId"`
	InitiatedBy       string     `json:"initiatedBy"`
	DeadlineAt        *time.Time `json:"deadlineAt,omitempty"`
	AutoTerminateAt   *time.Time `json:"autoTerminateAt,omitempty"`
	EscalatedAt       *time.Time `json:"escalatedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CompletedBy       string     `json:"completedBy,omitempty"`
	FinalAction       Action     `json:"finalAction,omitempty"`
	Metadata          Metadata   `json:"metadata"`
	Version           int        `json:"version"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type StepAction struct {
	ID               string     `json:"id"`
	InstanceID       string     `json:"instanceId"`
	StepID           string     `json:"stepId"`
	StepOrder        int        `json:"stepOrder"`
	Action           Action     `json:"action"`
	ActorID          string     `json:"actorId"`
	Comment          string     `json:"comment,omitempty"`
	DelegatedTo      string     `json:"delegatedTo,omitempty"`
	DelegationReason string     `json:"delegationReason,omitempty"`
	ReturnToStep     int        `json:"returnToStep,omitempty"`
	ReturnReason     string     `json:"returnReason,omitempty"`
	Outcome          Outcome    `json:"outcome"`
	RefusalReason    string     `json:"refusalReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	Signature        *Signature `json:"signature,omitempty"`
}

type Signature struct {
	ID            string    `json:"id"`
	InstanceID    string    `json:"instanceId"`
	StepActionID  string    `json:"stepActionId"`
	SignerID      string    `json:"signerId"`
	SignatureText string    `json:"signatureText"`
	SealedText    []byte    `json:"-"`
	SignedAt      time.Time `json:"signedAt"`
	Hash          string    `json:"hash"`
	Verified      bool      `json:"verified"`
}

// Actor is the caller identity supplied by the identity collaborator.
type Actor struct {
	ID    string
	Roles []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type StartRequest struct {
	TemplateCode  string
	ReferenceType string
	ReferenceID   string
	Metadata      json.RawMessage
}

type SignatureInput struct {
	Text string `json:"text"`
}

type ActionRequest struct {
	Action           Action          `json:"action"`
	Comment          string          `json:"comment"`
	DelegatedTo      string          `json:"delegatedTo"`
	DelegationReason string          `json:"delegationReason"`
	ReturnToStep     int             `json:"returnToStep"`
	ReturnReason     string          `json:"returnReason"`
	Signature        *SignatureInput `json:"signature,omitempty"`
	ExpectedVersion  *int            `json:"expectedVersion,omitempty"`
}

type ActionResult struct {
	Instance Instance   `json:"instance"`
	Action   StepAction `json:"action"`
}
