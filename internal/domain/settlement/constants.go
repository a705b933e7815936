package settlement

import "github.com/shopspring/decimal"

type PayElement string

const (
	RegularTime     PayElement = "regular_time"
	Overtime1_5x    PayElement = "overtime_1_5x"
	Overtime2x      PayElement = "overtime_2x"
	Overtime3x      PayElement = "overtime_3x"
	PaidLeave       PayElement = "paid_leave"
	SickLeave       PayElement = "sick_leave"
	UnpaidDeduction PayElement = "unpaid_deduction"
	OtherLeave      PayElement = "other"
)

// Overtime band widths are fixed policy. Only the multipliers vary by company.
var (
	tier1Band = decimal.NewFromInt(4)
	tier2Band = decimal.NewFromInt(4)
)

var hundred = decimal.NewFromInt(100)

const moneyPlaces = 2

const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// readyStatus is the finalization status that settlement accepts.
const readyStatus = "approved_for_payroll"

func leaveElement(kind string) PayElement {
	switch kind {
	case "paid":
		return PaidLeave
	case "sick":
		return SickLeave
	case "unpaid":
		return UnpaidDeduction
	default:
		return OtherLeave
	}
}
