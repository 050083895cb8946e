package loans

import "Gin_postgres_redis_lending/models"

// entryPath says through which entry points an edge may be taken.
type entryPath uint8

const (
	// viaStatusUpdate is the generic Service.UpdateStatus endpoint.
	viaStatusUpdate entryPath = 1 << iota
	// viaDedicated covers ApproveRequest, RejectRequest, ActivateLoan,
	// InitiateReturn, ConfirmReturn and SettleOverdue.
	viaDedicated

	viaBoth = viaStatusUpdate | viaDedicated
)

type edge struct {
	role  Role
	paths entryPath
}

// lookup is the only transition table. Overdue is absent as a target: it is
// reached through CanBecomeOverdue, never by a caller.
func lookup(from, to models.LoanStatus) (edge, bool) {
	switch from {
	case models.LoanRequested:
		switch to {
		case models.LoanApproved, models.LoanRejected:
			return edge{role: RoleOwner, paths: viaBoth}, true
		}
	case models.LoanApproved:
		if to == models.LoanActive {
			return edge{role: RoleOwner, paths: viaBoth}, true
		}
	case models.LoanActive:
		switch to {
		case models.LoanReturned:
			return edge{role: RoleBorrower, paths: viaStatusUpdate}, true
		case models.LoanReturnInitiated:
			return edge{role: RoleBorrower, paths: viaDedicated}, true
		}
	case models.LoanReturnInitiated:
		if to == models.LoanReturned {
			return edge{role: RoleOwner, paths: viaDedicated}, true
		}
	case models.LoanOverdue:
		if to == models.LoanReturned {
			return edge{role: RoleOwner, paths: viaDedicated}, true
		}
	case models.LoanRejected, models.LoanReturned:
		// terminal
	}
	return edge{}, false
}

func allowed(from, to models.LoanStatus, role Role, path entryPath) bool {
	e, ok := lookup(from, to)
	return ok && e.role == role && e.paths&path != 0
}

// IsTransitionAllowed decides whether role may move a loan from current to
// requested through the generic status endpoint.
func IsTransitionAllowed(current, requested models.LoanStatus, role Role) bool {
	return allowed(current, requested, role, viaStatusUpdate)
}

// CanBecomeOverdue reports whether the time-based overdue path applies to s.
func CanBecomeOverdue(s models.LoanStatus) bool {
	switch s {
	case models.LoanActive, models.LoanReturnInitiated:
		return true
	case models.LoanRequested, models.LoanApproved, models.LoanRejected,
		models.LoanReturned, models.LoanOverdue:
		return false
	}
	return false
}

// operation describes a dedicated lifecycle entry point.
type operation struct {
	name   string
	role   Role
	target models.LoanStatus
	// detail is returned as INVALID_TRANSITION when the current status
	// has no edge to target.
	detail string
}

var (
	opApprove        = operation{"approve", RoleOwner, models.LoanApproved, "only requests can be approved"}
	opReject         = operation{"reject", RoleOwner, models.LoanRejected, "only requests can be rejected"}
	opActivate       = operation{"activate", RoleOwner, models.LoanActive, "only approved loans can be activated"}
	opInitiateReturn = operation{"initiate_return", RoleBorrower, models.LoanReturnInitiated, "the loan must be active to be returned"}
	opConfirmReturn  = operation{"confirm_return", RoleOwner, models.LoanReturned, "the borrower must mark the item as returned first"}
	opSettleOverdue  = operation{"settle_overdue", RoleOwner, models.LoanReturned, "only overdue loans can be settled"}
)

// permits reports whether op may run on a loan in status from. Operations
// that share a target are pinned to their own source state.
func (op operation) permits(from models.LoanStatus) bool {
	switch op {
	case opConfirmReturn:
		if from != models.LoanReturnInitiated {
			return false
		}
	case opSettleOverdue:
		if from != models.LoanOverdue {
			return false
		}
	}
	return allowed(from, op.target, op.role, viaDedicated)
}
