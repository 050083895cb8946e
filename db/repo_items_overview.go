// db/repo_items_overview.go
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Gin_postgres_redis_lending/models"

	"gorm.io/gorm"
)

type ItemRow struct {
	// Item fields
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	IsAvailable bool      `json:"isAvailable"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// 当前占用中的借用单（可空）
	LoanID           *string    `json:"loanId,omitempty"`
	LoanStatus       *string    `json:"loanStatus,omitempty"`
	BorrowerID       *string    `json:"borrowerId,omitempty"`
	BorrowerUsername *string    `json:"borrowerUsername,omitempty"`
	EndDate          *time.Time `json:"endDate,omitempty"`
	Overdue          bool       `json:"overdue"` // 由 SQL 计算
}

type ItemsQuery struct {
	OwnerID  string // 可选：只看某人的物品
	Q        string // 模糊搜索：name/category
	Category string
	Status   string // "", "available", "open", "overdue"
	Page     int
	Size     int
}

type PagedItems struct {
	Total int64     `json:"total"`
	Items []ItemRow `json:"items"`
}

var itemStatusFilters = map[string]bool{"": true, "available": true, "open": true, "overdue": true}

// ListItemsWithOpenLoan 物品列表 + 当前占用借用单（部分唯一索引保证至多一条）
func (r *Repo) ListItemsWithOpenLoan(ctx context.Context, q ItemsQuery) (*PagedItems, error) {
	if !itemStatusFilters[q.Status] {
		return nil, fmt.Errorf("unknown item status filter %q", q.Status)
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}
	offset := (q.Page - 1) * q.Size

	db := r.DB.WithContext(ctx)
	base := func() *gorm.DB {
		tx := db.
			Table(models.ItemTable+" i").
			Joins("LEFT JOIN "+models.LoanTable+" ol ON ol.item_id = i.id AND ol.status IN ?",
				statusStrings(models.HoldingStatuses())).
			Joins("LEFT JOIN " + models.UserTable + " u ON u.id = ol.borrower_id")

		// 过滤
		if q.OwnerID != "" {
			tx = tx.Where("i.owner_id = ?", q.OwnerID)
		}
		if s := strings.TrimSpace(q.Q); s != "" {
			pat := "%" + strings.ToLower(s) + "%"
			tx = tx.Where("LOWER(i.name) LIKE ? OR LOWER(i.category) LIKE ?", pat, pat)
		}
		if c := strings.TrimSpace(q.Category); c != "" {
			tx = tx.Where("i.category = ?", c)
		}
		switch q.Status {
		case "available":
			tx = tx.Where("i.is_available = ?", true)
		case "open":
			tx = tx.Where("ol.id IS NOT NULL")
		case "overdue":
			tx = tx.Where("ol.status = ?", string(models.LoanOverdue))
		}
		return tx
	}

	var total int64
	if err := base().Distinct("i.id").Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []ItemRow
	if err := base().
		Select(`
			i.id, i.owner_id, i.name, i.description, i.category, i.is_available, i.created_at, i.updated_at,
			ol.id          AS loan_id,
			ol.status      AS loan_status,
			ol.borrower_id AS borrower_id,
			ol.end_date    AS end_date,
			u.username     AS borrower_username,
			CASE WHEN ol.status = ? THEN TRUE ELSE FALSE END AS overdue
		`, string(models.LoanOverdue)).
		Order("i.created_at DESC").
		Offset(offset).
		Limit(q.Size).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	return &PagedItems{Total: total, Items: rows}, nil
}
