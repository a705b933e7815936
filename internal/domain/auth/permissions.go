package auth

import (
	"context"
	"slices"
)

const (
	RoleEmployee      = "employee"
	RoleTimekeeper    = "timekeeper"
	RoleApprover      = "approver"
	RolePayrollAdmin  = "payroll_admin"
	RoleHR            = "hr_admin"
	RoleWorkflowAdmin = "workflow_admin"
)

const (
	PermWorkflowStart    = "workflow.start"
	PermWorkflowRead     = "workflow.read"
	PermWorkflowAct      = "workflow.act"
	PermTimesheetSubmit  = "timesheet.submit"
	PermTimesheetRead    = "timesheet.read"
	PermTimesheetApprove = "timesheet.approve"
	PermPayrollRead      = "payroll.read"
	PermPayrollSettle    = "payroll.settle"
	PermAuditRead        = "audit.read"
	PermJobsRun          = "jobs.run"
)

var DefaultPermissions = []string{
	PermWorkflowStart,
	PermWorkflowRead,
	PermWorkflowAct,
	PermTimesheetSubmit,
	PermTimesheetRead,
	PermTimesheetApprove,
	PermPayrollRead,
	PermPayrollSettle,
	PermAuditRead,
	PermJobsRun,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermWorkflowStart,
		PermWorkflowRead,
		PermWorkflowAct,
	},
	RoleTimekeeper: {
		PermWorkflowRead,
		PermTimesheetSubmit,
		PermTimesheetRead,
	},
	RoleApprover: {
		PermWorkflowStart,
		PermWorkflowRead,
		PermWorkflowAct,
		PermTimesheetRead,
		PermTimesheetApprove,
	},
	RolePayrollAdmin: {
		PermTimesheetRead,
		PermPayrollRead,
		PermPayrollSettle,
		PermJobsRun,
	},
	RoleHR: {
		PermWorkflowStart,
		PermWorkflowRead,
		PermWorkflowAct,
		PermTimesheetRead,
		PermPayrollRead,
		PermAuditRead,
	},
	RoleWorkflowAdmin: {
		PermWorkflowStart,
		PermWorkflowRead,
		PermWorkflowAct,
		PermAuditRead,
		PermJobsRun,
	},
}

// StaticPermissions answers permission checks from an in-process role map.
type StaticPermissions map[string][]string

func (p StaticPermissions) HasPermission(_ context.Context, roles []string, permission string) (bool, error) {
	for _, role := range roles {
		if slices.Contains(p[role], permission) {
			return true, nil
		}
	}
	return false, nil
}
