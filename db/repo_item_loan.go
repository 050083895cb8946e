package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Gin_postgres_redis_lending/models"

	"gorm.io/gorm"
)

// ErrItemHasLoans 借用记录永久保留，被引用过的物品不能删除
var ErrItemHasLoans = errors.New("item is referenced by loans")

// Items

// CreateItem 新物品总是可借，版本从 1 开始
func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	it.IsAvailable = true
	it.Version = 1
	return r.DB.WithContext(ctx).Create(it).Error
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

// ItemDetails 只包含目录字段；可借状态与版本号只由借用流程修改
type ItemDetails struct {
	Name        *string
	Description *string
	Category    *string
}

// UpdateItemDetails 更新名称/描述/分类，不触碰 is_available 与 version
func (r *Repo) UpdateItemDetails(ctx context.Context, id string, d ItemDetails, at time.Time) (*models.Item, error) {
	fields := map[string]any{"updated_at": at}
	if d.Name != nil {
		fields["name"] = *d.Name
	}
	if d.Description != nil {
		fields["description"] = *d.Description
	}
	if d.Category != nil {
		fields["category"] = *d.Category
	}
	res := r.DB.WithContext(ctx).Model(&models.Item{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindItemByID(ctx, id)
}

// DeleteItem 单条语句删除：只有没有任何借用单引用时才删
func (r *Repo) DeleteItem(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).
		Where("id = ? AND NOT EXISTS (SELECT 1 FROM "+models.LoanTable+" l WHERE l.item_id = ?)", id, id).
		Delete(&models.Item{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindItemByID(ctx, id); err != nil {
		return err
	}
	return ErrItemHasLoans
}

// Loans

// LoanRole 列表时按调用者身份过滤
type LoanRole string

const (
	LoanRoleAny      LoanRole = ""
	LoanRoleBorrower LoanRole = "borrower"
	LoanRoleOwner    LoanRole = "owner"
)

func ParseLoanRole(v string) (LoanRole, error) {
	switch r := LoanRole(strings.ToLower(strings.TrimSpace(v))); r {
	case LoanRoleAny, LoanRoleBorrower, LoanRoleOwner:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", v)
}

type LoansQuery struct {
	UserID string
	Role   LoanRole
	Status models.LoanStatus // 空 = 全部
}

// ListLoansForUser 只返回调用者作为借用人或物品所有者参与的借用单
func (r *Repo) ListLoansForUser(ctx context.Context, q LoansQuery) ([]models.Loan, error) {
	tx := r.DB.WithContext(ctx).
		Model(&models.Loan{}).
		Joins("Item").
		Order(models.LoanTable + ".created_at DESC")

	switch q.Role {
	case LoanRoleBorrower:
		tx = tx.Where(models.LoanTable+".borrower_id = ?", q.UserID)
	case LoanRoleOwner:
		tx = tx.Where(`"Item".owner_id = ?`, q.UserID)
	default:
		tx = tx.Where(models.LoanTable+`.borrower_id = ? OR "Item".owner_id = ?`, q.UserID, q.UserID)
	}
	if q.Status != "" {
		tx = tx.Where(models.LoanTable+".status = ?", string(q.Status))
	}

	var ls []models.Loan
	if err := tx.Find(&ls).Error; err != nil {
		return nil, err
	}
	return ls, nil
}
