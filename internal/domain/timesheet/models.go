package timesheet

import "time"

type Finalization struct {
	ID                      string     `json:"id"`
	CompanyID               string     `json:"companyId"`
	PeriodStart             time.Time  `json:"periodStart"`
	PeriodEnd               time.Time  `json:"periodEnd"`
	EmployeeIDs             []string   `json:"employeeIds"`
	CurrentApprovalLevel    int        `json:"currentApprovalLevel"`
	MaxApprovalLevels       int        `json:"maxApprovalLevels"`
	WorkflowStatus          string     `json:"workflowStatus"`
	CurrentApproverID       string     `json:"currentApproverId"`
	SubmittedBy             string     `json:"submittedBy"`
	RejectedBy              string     `json:"rejectedBy,omitempty"`
	RejectedAt              *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason         string     `json:"rejectionReason,omitempty"`
	ApprovedAt              *time.Time `json:"approvedAt,omitempty"`
	PayrollSummaryCreatedAt *time.Time `json:"payrollSummaryCreatedAt,omitempty"`
	SentToPayrollAt         *time.Time `json:"sentToPayrollAt,omitempty"`
	Version                 int        `json:"version"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
}

// Closed reports whether approval actions are no longer accepted.
func (f Finalization) Closed() bool {
	switch f.WorkflowStatus {
	case StatusRejected, StatusApprovedForPayroll, StatusSentToPayroll:
		return true
	}
	return false
}

type HistoryEntry struct {
	ID             string    `json:"id"`
	FinalizationID string    `json:"finalizationId"`
	Level          int       `json:"level"`
	ApproverID     string    `json:"approverId"`
	Action         string    `json:"action"`
	Comments       string    `json:"comments,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type SubmitRequest struct {
	CompanyID   string    `json:"companyId"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	EmployeeIDs []string  `json:"employeeIds"`
}

type ApprovalRequest struct {
	FinalizationID  string
	ApproverID      string
	Action          string
	Comments        string
	ExpectedVersion *int
}

type ApprovalResult struct {
	Finalization     Finalization `json:"finalization"`
	History          HistoryEntry `json:"history"`
	SettlementQueued bool         `json:"settlementQueued"`
}
