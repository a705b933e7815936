package settlement

import (
	"fmt"

	"hrflow/internal/domain/errkind"
)

var (
	ErrFinalizationNotFound  = fmt.Errorf("%w: timesheet finalization not found", errkind.Caller)
	ErrNotReadyForSettlement = fmt.Errorf("%w: finalization is not approved for payroll", errkind.Caller)
	ErrAlreadySettled        = fmt.Errorf("%w: finalization already has payroll summaries", errkind.Caller)
	ErrMissingCompensation   = fmt.Errorf("%w: no active compensation for employee", errkind.Caller)
	ErrJobNotFound           = fmt.Errorf("%w: settlement job not found", errkind.Caller)
)
