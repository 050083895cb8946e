package db

import (
	"context"
	"errors"
	"time"

	"Gin_postgres_redis_lending/loans"
	"Gin_postgres_redis_lending/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ loans.Store = (*Repo)(nil)

func (r *Repo) LoadLoanWithItemAndBorrower(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	err := r.DB.WithContext(ctx).
		Preload("Item").
		Preload("Borrower").
		First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, loans.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *Repo) LoadItem(ctx context.Context, id string) (*models.Item, error) {
	it, err := r.FindItemByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, loans.ErrNotFound
	}
	return it, err
}

func (r *Repo) FindOverdueLoanIDs(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("status IN ? AND end_date < ?", statusStrings(overdueCandidates), now).
		Order("end_date ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Commit 在一个事务里写入整个变更集；任何一行版本不匹配即整体回滚
func (r *Repo) Commit(ctx context.Context, cs loans.Changeset) error {
	if cs.Empty() {
		return nil
	}
	at := cs.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	err := WithTx(ctx, r.DB, func(tx *gorm.DB) error {
		if l := cs.NewLoan; l != nil {
			l.Version = 1
			if err := tx.Omit(clause.Associations).Create(l).Error; err != nil {
				return translate(err)
			}
		}
		if l := cs.Loan; l != nil {
			if err := updateVersioned(tx, &models.Loan{}, l.ID, l.Version, map[string]any{
				"status":             l.Status,
				"actual_return_date": l.ActualReturnDate,
				"updated_at":         l.UpdatedAt,
			}); err != nil {
				return err
			}
		}
		if it := cs.Item; it != nil {
			if err := updateVersioned(tx, &models.Item{}, it.ID, it.Version, map[string]any{
				"is_available": it.IsAvailable,
				"updated_at":   at,
			}); err != nil {
				return err
			}
		}
		if u := cs.User; u != nil {
			if err := updateVersioned(tx, &models.User{}, u.ID, u.Version, map[string]any{
				"is_blocked":    u.IsBlocked,
				"block_reason":  u.BlockReason,
				"blocked_until": u.BlockedUntil,
				"updated_at":    at,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 事务提交后才推进内存中的版本号
	if cs.Loan != nil {
		cs.Loan.Version++
	}
	if cs.Item != nil {
		cs.Item.Version++
	}
	if cs.User != nil {
		cs.User.Version++
	}
	return nil
}

func updateVersioned(tx *gorm.DB, model any, id string, version int64, fields map[string]any) error {
	fields["version"] = version + 1
	res := tx.Model(model).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return loans.ErrConcurrencyConflict
	}
	return nil
}

// translate 唯一索引冲突视为并发冲突（另一请求先占用了该物品）
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return loans.ErrConcurrencyConflict
	}
	return err
}
