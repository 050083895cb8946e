package loans

import "Gin_postgres_redis_lending/models"

// Role is the caller's relation to a loan.
type Role int

const (
	RoleNeither Role = iota
	RoleBorrower
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleBorrower:
		return "borrower"
	case RoleOwner:
		return "owner"
	case RoleNeither:
		return "neither"
	}
	return "unknown"
}

// RoleOf classifies userID against the loan's borrower and the item's owner.
// The loan must have its Item loaded.
func RoleOf(userID string, loan *models.Loan) Role {
	if userID == "" || loan == nil {
		return RoleNeither
	}
	if userID == loan.BorrowerID {
		return RoleBorrower
	}
	if loan.Item != nil && userID == loan.Item.OwnerID {
		return RoleOwner
	}
	return RoleNeither
}
