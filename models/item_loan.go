// models/item_loan.go
package models

import (
	"fmt"
	"strings"
	"time"
)

const LoanTable = "lsb_loans"
const ItemTable = "lsb_items"

// LoanStatus 借用单状态（封闭集合，新增状态时必须同步修改 loans 状态机）
type LoanStatus string

const (
	LoanRequested       LoanStatus = "requested"
	LoanApproved        LoanStatus = "approved"
	LoanRejected        LoanStatus = "rejected"
	LoanActive          LoanStatus = "active"
	LoanReturnInitiated LoanStatus = "return_initiated"
	LoanReturned        LoanStatus = "returned"
	LoanOverdue         LoanStatus = "overdue"
)

// AllLoanStatuses lists every status in lifecycle order.
var AllLoanStatuses = []LoanStatus{
	LoanRequested,
	LoanApproved,
	LoanRejected,
	LoanActive,
	LoanReturnInitiated,
	LoanReturned,
	LoanOverdue,
}

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanRequested, LoanApproved, LoanRejected, LoanActive,
		LoanReturnInitiated, LoanReturned, LoanOverdue:
		return true
	}
	return false
}

// IsOpen: 借用流程进行中，物品必须保持不可借
func (s LoanStatus) IsOpen() bool {
	switch s {
	case LoanRequested, LoanApproved, LoanActive, LoanReturnInitiated:
		return true
	case LoanRejected, LoanReturned, LoanOverdue:
		return false
	}
	return false
}

// HoldsItem: 物品仍被占用（进行中 + 逾期未结清）
func (s LoanStatus) HoldsItem() bool {
	return s.IsOpen() || s == LoanOverdue
}

func ParseLoanStatus(v string) (LoanStatus, error) {
	s := LoanStatus(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown loan status %q", v)
	}
	return s, nil
}

// HoldingStatuses 用于 SQL 的 IN (...) 条件
func HoldingStatuses() []LoanStatus {
	var out []LoanStatus
	for _, s := range AllLoanStatuses {
		if s.HoldsItem() {
			out = append(out, s)
		}
	}
	return out
}

type Item struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     string    `gorm:"type:uuid;index;not null" json:"ownerId"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `gorm:"size:2000" json:"description,omitempty"`
	Category    string    `gorm:"size:100;index" json:"category,omitempty"`
	IsAvailable bool      `gorm:"not null;default:true" json:"isAvailable"` // 只随借用状态变化
	Version     int64     `gorm:"not null;default:1" json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Loan struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID           string     `gorm:"type:uuid;index;not null" json:"itemId"`
	BorrowerID       string     `gorm:"type:uuid;index;not null" json:"borrowerId"`
	StartDate        time.Time  `gorm:"not null" json:"startDate"`
	EndDate          time.Time  `gorm:"index;not null" json:"endDate"`
	ActualReturnDate *time.Time `json:"actualReturnDate,omitempty"`
	Status           LoanStatus `gorm:"size:20;index;not null" json:"status"`
	Notes            string     `gorm:"size:1000" json:"notes,omitempty"`
	Version          int64      `gorm:"not null;default:1" json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	Item     *Item `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	Borrower *User `gorm:"foreignKey:BorrowerID" json:"borrower,omitempty"`
}

func (Item) TableName() string { return ItemTable }
func (Loan) TableName() string { return LoanTable }
