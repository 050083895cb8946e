package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_lending/logger"
	"Gin_postgres_redis_lending/models"

	"go.uber.org/multierr"
)

// DefaultBlockPeriod is how long a borrower stays blocked after an overdue loan.
const DefaultBlockPeriod = 30 * 24 * time.Hour

// SweeperParams configure the overdue sweeper.
type SweeperParams struct {
	Store    Store
	Logger   *logger.Logger
	Metrics  Metrics
	BlockFor time.Duration
	Retry    []RetryOption
}

// OverdueSweeper marks loans past their end date as Overdue and blocks the borrower.
type OverdueSweeper struct {
	store    Store
	logg     *logger.Logger
	metrics  Metrics
	blockFor time.Duration
	retry    []RetryOption
}

func NewOverdueSweeper(p SweeperParams) (*OverdueSweeper, error) {
	if p.Store == nil {
		return nil, errors.New("store required")
	}
	if p.BlockFor < 0 {
		return nil, fmt.Errorf("block period must not be negative, got %s", p.BlockFor)
	}
	if err := checkRetryOptions(p.Retry); err != nil {
		return nil, err
	}
	s := &OverdueSweeper{store: p.Store, logg: p.Logger, metrics: p.Metrics, blockFor: p.BlockFor, retry: p.Retry}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.blockFor == 0 {
		s.blockFor = DefaultBlockPeriod
	}
	return s, nil
}

// Run sweeps every candidate loan. Each loan is committed on its own, so one
// failure does not hold back the rest; failures are returned combined.
// Running twice with the same now changes nothing the second time.
func (s *OverdueSweeper) Run(ctx context.Context, now time.Time) error {
	ids, err := s.store.FindOverdueLoanIDs(ctx, now)
	if err != nil {
		return fmt.Errorf("find overdue loans: %w", err)
	}

	var errs error
	marked := 0
	for _, id := range ids {
		ok, err := s.markOverdue(ctx, id, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("loan %s: %w", id, err))
			continue
		}
		if ok {
			marked++
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"candidates": len(ids),
		"marked":     marked,
		"failed":     len(multierr.Errors(errs)),
	})
	s.logg.Info(logCtx, "overdue sweep complete")
	return errs
}

func (s *OverdueSweeper) markOverdue(ctx context.Context, loanID string, now time.Time) (bool, error) {
	var (
		marked bool
		from   models.LoanStatus
	)
	err := retryOnConflict(ctx, func(ctx context.Context) error {
		marked = false
		loan, err := s.store.LoadLoanWithItemAndBorrower(ctx, loanID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load loan: %w", err)
		}
		// a borrower or owner may have moved it since the candidate query
		if !CanBecomeOverdue(loan.Status) || !loan.EndDate.Before(now) {
			return nil
		}
		if loan.Borrower == nil {
			return errors.New("loan loaded without its borrower")
		}

		from = loan.Status
		loan.Status = models.LoanOverdue
		loan.UpdatedAt = now
		block(loan.Borrower, "overdue loan of "+itemName(loan), now.Add(s.blockFor))

		if err := s.store.Commit(ctx, Changeset{Loan: loan, User: loan.Borrower, At: now}); err != nil {
			return fmt.Errorf("commit overdue: %w", err)
		}
		marked = true
		return nil
	}, s.retry...)
	if err != nil {
		return false, err
	}

	if marked {
		logCtx := s.logg.WithLoanID(ctx, loanID)
		logCtx = s.logg.WithFields(logCtx, map[string]any{"from": string(from), "to": string(models.LoanOverdue)})
		s.logg.Info(logCtx, "loan marked overdue, borrower blocked")
		if s.metrics != nil {
			s.metrics.ObserveTransition(from, models.LoanOverdue)
		}
	}
	return marked, nil
}

// block never shortens an existing block. A block that already runs at
// least until `until` keeps its own reason; an indefinite one (nil
// BlockedUntil) is kept as is.
func block(u *models.User, reason string, until time.Time) {
	if u.IsBlocked && (u.BlockedUntil == nil || !u.BlockedUntil.Before(until)) {
		return
	}
	u.IsBlocked = true
	u.BlockReason = &reason
	u.BlockedUntil = &until
}

func itemName(loan *models.Loan) string {
	if loan.Item != nil && loan.Item.Name != "" {
		return loan.Item.Name
	}
	return loan.ItemID
}
