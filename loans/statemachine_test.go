package loans

import (
	"fmt"
	"testing"

	"Gin_postgres_redis_lending/models"

	"github.com/stretchr/testify/assert"
)

var allRoles = []Role{RoleNeither, RoleBorrower, RoleOwner}

func TestIsTransitionAllowedGrid(t *testing.T) {
	type key struct {
		from, to models.LoanStatus
		role     Role
	}
	want := map[key]bool{
		{models.LoanRequested, models.LoanApproved, RoleOwner}: true,
		{models.LoanRequested, models.LoanRejected, RoleOwner}: true,
		{models.LoanApproved, models.LoanActive, RoleOwner}:    true,
		{models.LoanActive, models.LoanReturned, RoleBorrower}: true,
	}

	for _, from := range models.AllLoanStatuses {
		for _, to := range models.AllLoanStatuses {
			for _, role := range allRoles {
				k := key{from, to, role}
				name := fmt.Sprintf("%s->%s/%s", from, to, role)
				assert.Equal(t, want[k], IsTransitionAllowed(from, to, role), name)
			}
		}
	}
}

func TestNeitherRoleNeverTransitions(t *testing.T) {
	for _, from := range models.AllLoanStatuses {
		for _, to := range models.AllLoanStatuses {
			assert.False(t, IsTransitionAllowed(from, to, RoleNeither))
		}
	}
}

func TestNothingLeavesTerminalStates(t *testing.T) {
	for _, from := range []models.LoanStatus{models.LoanRejected, models.LoanReturned} {
		for _, to := range models.AllLoanStatuses {
			for _, role := range allRoles {
				assert.False(t, IsTransitionAllowed(from, to, role))
				_, ok := lookup(from, to)
				assert.False(t, ok, "%s->%s", from, to)
			}
		}
	}
}

func TestOverdueIsNeverARequestedTarget(t *testing.T) {
	for _, from := range models.AllLoanStatuses {
		_, ok := lookup(from, models.LoanOverdue)
		assert.False(t, ok, from)
	}
}

func TestCanBecomeOverdue(t *testing.T) {
	for _, s := range models.AllLoanStatuses {
		want := s == models.LoanActive || s == models.LoanReturnInitiated
		assert.Equal(t, want, CanBecomeOverdue(s), s)
	}
}

func TestOperationPermits(t *testing.T) {
	sources := map[string]models.LoanStatus{
		opApprove.name:        models.LoanRequested,
		opReject.name:         models.LoanRequested,
		opActivate.name:       models.LoanApproved,
		opInitiateReturn.name: models.LoanActive,
		opConfirmReturn.name:  models.LoanReturnInitiated,
		opSettleOverdue.name:  models.LoanOverdue,
	}
	ops := []operation{opApprove, opReject, opActivate, opInitiateReturn, opConfirmReturn, opSettleOverdue}

	for _, op := range ops {
		for _, from := range models.AllLoanStatuses {
			assert.Equal(t, sources[op.name] == from, op.permits(from), "%s from %s", op.name, from)
		}
	}
}
