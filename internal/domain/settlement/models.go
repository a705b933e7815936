package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

type OvertimeRules struct {
	Tier1 decimal.Decimal `json:"tier1"`
	Tier2 decimal.Decimal `json:"tier2"`
	Tier3 decimal.Decimal `json:"tier3"`
}

func DefaultOvertimeRules() OvertimeRules {
	return OvertimeRules{
		Tier1: decimal.RequireFromString("1.5"),
		Tier2: decimal.NewFromInt(2),
		Tier3: decimal.NewFromInt(3),
	}
}

type TimeEntry struct {
	ID            string
	EmployeeID    string
	Date          time.Time
	TotalHours    decimal.Decimal
	OvertimeHours decimal.Decimal
}

type LeaveTransaction struct {
	ID                string
	EmployeeID        string
	LeaveKind         string
	Date              time.Time
	Hours             decimal.Decimal
	Rate              decimal.NullDecimal
	PaymentPercentage decimal.Decimal
	GrossAmount       decimal.Decimal
}

type Input struct {
	FinalizationID string
	Entries        []TimeEntry
	// Rates maps employee id to the active hourly rate.
	Rates map[string]decimal.Decimal
	Rules OvertimeRules
	Leave []LeaveTransaction
}

type SourceRecord struct {
	ID    string          `json:"id"`
	Hours decimal.Decimal `json:"hours"`
	Date  string          `json:"date"`
}

type Summary struct {
	ID             string          `json:"id,omitempty"`
	FinalizationID string          `json:"finalizationId"`
	EmployeeID     string          `json:"employeeId"`
	PayElement     PayElement      `json:"payElement"`
	SourceKey      string          `json:"sourceKey,omitempty"`
	Hours          decimal.Decimal `json:"hours"`
	Rate           decimal.Decimal `json:"rate"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	GrossAmount    decimal.Decimal `json:"grossAmount"`
	SourceRecords  []SourceRecord  `json:"sourceRecords"`
	CreatedAt      time.Time       `json:"createdAt,omitempty"`
}

type Result struct {
	Summaries  []Summary       `json:"summaries"`
	TotalGross decimal.Decimal `json:"totalGross"`
}

// Scope is the part of a finalization settlement reads.
type Scope struct {
	FinalizationID          string
	CompanyID               string
	PeriodStart             time.Time
	PeriodEnd               time.Time
	EmployeeIDs             []string
	WorkflowStatus          string
	PayrollSummaryCreatedAt *time.Time
}

type Run struct {
	FinalizationID string          `json:"finalizationId"`
	RowCount       int             `json:"rowCount"`
	TotalGross     decimal.Decimal `json:"totalGross"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type Job struct {
	FinalizationID string     `json:"finalizationId"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"lastError,omitempty"`
	AvailableAt    time.Time  `json:"availableAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}
