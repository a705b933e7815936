package timesheet

import (
	"fmt"

	"hrflow/internal/domain/errkind"
)

var (
	ErrFinalizationNotFound = fmt.Errorf("%w: timesheet finalization not found", errkind.Caller)
	ErrFinalizationClosed   = fmt.Errorf("%w: timesheet finalization is closed", errkind.Caller)
	ErrFinalizationExists   = fmt.Errorf("%w: an open finalization already covers these employees and dates", errkind.Caller)
	ErrInvalidAction        = fmt.Errorf("%w: unknown timesheet approval action", errkind.Caller)
	ErrInvalidPeriod        = fmt.Errorf("%w: period end must not be before period start", errkind.Caller)
	ErrNoEmployees          = fmt.Errorf("%w: finalization must cover at least one employee", errkind.Caller)
	ErrSettlementPending    = fmt.Errorf("%w: payroll summaries have not been created yet", errkind.Caller)

	ErrNotAuthorized = fmt.Errorf("%w: approver is not authorized for the current level", errkind.Authorization)

	ErrConcurrentModification = fmt.Errorf("%w: timesheet finalization changed while the approval was processed", errkind.Concurrency)
)
