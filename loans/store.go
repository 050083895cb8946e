package loans

import (
	"context"
	"errors"
	"time"

	"Gin_postgres_redis_lending/models"
)

var (
	// ErrNotFound is returned by a Store when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrencyConflict is returned by Store.Commit when another writer
	// changed one of the records since it was loaded. Nothing was written.
	ErrConcurrencyConflict = errors.New("concurrency conflict, no rows were affected")
)

// Store is the persistence port of the lifecycle core.
type Store interface {
	// LoadLoanWithItemAndBorrower returns the loan with Item and Borrower populated.
	LoadLoanWithItemAndBorrower(ctx context.Context, id string) (*models.Loan, error)
	LoadItem(ctx context.Context, id string) (*models.Item, error)
	// FindOverdueLoanIDs lists loans that may be overdue: status Active or
	// ReturnInitiated with EndDate before now.
	FindOverdueLoanIDs(ctx context.Context, now time.Time) ([]string, error)
	// Commit writes the changeset as one unit, checking the Version of every
	// updated record. On success the in-memory versions are advanced.
	Commit(ctx context.Context, cs Changeset) error
}

// Changeset groups the records mutated by one lifecycle step.
// NewLoan is inserted; Loan, Item and User are updated.
// At is the clock time of the step; the store stamps updated rows with it.
type Changeset struct {
	NewLoan *models.Loan
	Loan    *models.Loan
	Item    *models.Item
	User    *models.User
	At      time.Time
}

func (cs Changeset) Empty() bool {
	return cs.NewLoan == nil && cs.Loan == nil && cs.Item == nil && cs.User == nil
}
