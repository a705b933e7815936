package timesheet

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	StatusApprovedForPayroll = "approved_for_payroll"
	StatusRejected           = "rejected"
	StatusSentToPayroll      = "sent_to_payroll"

	pendingPrefix = "pending_level_"

	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionReturn  = "return"
)

var Actions = []string{ActionApprove, ActionReject, ActionReturn}

func PendingStatus(level int) string {
	return fmt.Sprintf("%s%d", pendingPrefix, level)
}

// PendingLevel extracts N from pending_level_N.
func PendingLevel(status string) (int, bool) {
	if !strings.HasPrefix(status, pendingPrefix) {
		return 0, false
	}
	level, err := strconv.Atoi(strings.TrimPrefix(status, pendingPrefix))
	if err != nil || level < 1 {
		return 0, false
	}
	return level, true
}

func validAction(action string) bool {
	for _, a := range Actions {
		if a == action {
			return true
		}
	}
	return false
}
