package db

import (
	"context"
	"testing"
	"time"

	"Gin_postgres_redis_lending/loans"
	"Gin_postgres_redis_lending/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestRepo(t *testing.T) *Repo {
	t.Helper()

	conn, err := Open(sqlite.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(conn))
	return NewRepo(conn)
}

type seeded struct {
	owner, borrower *models.User
	item            *models.Item
}

func seed(t *testing.T, r *Repo) seeded {
	t.Helper()
	ctx := context.Background()

	owner, err := r.FindOrCreateUser(ctx, "owner", uuid.NewString())
	require.NoError(t, err)
	borrower, err := r.FindOrCreateUser(ctx, "borrower", uuid.NewString())
	require.NoError(t, err)

	item := &models.Item{ID: uuid.NewString(), OwnerID: owner.ID, Name: "Cordless drill", Category: "tools"}
	require.NoError(t, r.CreateItem(ctx, item))
	return seeded{owner: owner, borrower: borrower, item: item}
}

func newLoan(s seeded, status models.LoanStatus, end time.Time) *models.Loan {
	return &models.Loan{
		ID:         uuid.NewString(),
		ItemID:     s.item.ID,
		BorrowerID: s.borrower.ID,
		StartDate:  end.Add(-72 * time.Hour),
		EndDate:    end,
		Status:     status,
		CreatedAt:  end.Add(-72 * time.Hour),
		UpdatedAt:  end.Add(-72 * time.Hour),
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	r := setupTestRepo(t)
	require.NoError(t, Migrate(r.DB))
}

func TestFindOrCreateUser(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	first, err := r.FindOrCreateUser(ctx, "alice", uuid.NewString())
	require.NoError(t, err)
	again, err := r.FindOrCreateUser(ctx, "alice", uuid.NewString())
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.EqualValues(t, 1, again.Version)
	assert.False(t, again.IsBlocked)
}

func TestTouchUserLoginCounts(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u, err := r.FindOrCreateUser(ctx, "alice", uuid.NewString())
	require.NoError(t, err)

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.TouchUserLogin(ctx, u.ID, at))
	require.NoError(t, r.TouchUserLogin(ctx, u.ID, at.Add(time.Hour)))

	got, err := r.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.LoginCount)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, got.LastLoginAt.Equal(at.Add(time.Hour)))
}

func TestCredentialRoundTrip(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u, err := r.FindOrCreateUser(ctx, "alice", uuid.NewString())
	require.NoError(t, err)

	credID := []byte{1, 2, 3, 4}
	require.NoError(t, r.AddCredential(ctx, &models.Credential{UserID: u.ID, CredentialID: credID, PublicKey: []byte{9}}))
	require.NoError(t, r.UpdateCredentialCounter(ctx, credID, 7, false, time.Now().UTC()))

	gotUser, cred, err := r.FindUserByCredentialID(ctx, credID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, gotUser.ID)
	assert.EqualValues(t, 7, cred.SignCount)
	require.NotNil(t, cred.LastUsedAt)

	n, err := r.CountCredentials(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCommitCreatesLoanAndTakesItem(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)

	item, err := r.LoadItem(ctx, s.item.ID)
	require.NoError(t, err)
	item.IsAvailable = false
	loan := newLoan(s, models.LoanRequested, time.Now().UTC().Add(48*time.Hour))

	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: loan, Item: item}))
	assert.EqualValues(t, 1, loan.Version)
	assert.EqualValues(t, 2, item.Version)

	got, err := r.LoadLoanWithItemAndBorrower(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanRequested, got.Status)
	require.NotNil(t, got.Item)
	assert.False(t, got.Item.IsAvailable)
	require.NotNil(t, got.Borrower)
	assert.Equal(t, s.borrower.ID, got.Borrower.ID)
}

func TestLoadMissing(t *testing.T) {
	r := setupTestRepo(t)
	_, err := r.LoadLoanWithItemAndBorrower(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, loans.ErrNotFound)
	_, err = r.LoadItem(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, loans.ErrNotFound)
}

func TestCommitDetectsStaleVersion(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)
	item, err := r.LoadItem(ctx, s.item.ID)
	require.NoError(t, err)
	item.IsAvailable = false
	loan := newLoan(s, models.LoanRequested, time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: loan, Item: item}))

	a, err := r.LoadLoanWithItemAndBorrower(ctx, loan.ID)
	require.NoError(t, err)
	b, err := r.LoadLoanWithItemAndBorrower(ctx, loan.ID)
	require.NoError(t, err)

	a.Status = models.LoanApproved
	require.NoError(t, r.Commit(ctx, loans.Changeset{Loan: a}))

	b.Status = models.LoanRejected
	b.Item.IsAvailable = true
	err = r.Commit(ctx, loans.Changeset{Loan: b, Item: b.Item})
	assert.ErrorIs(t, err, loans.ErrConcurrencyConflict)
	assert.EqualValues(t, 1, b.Version, "failed commit must not advance versions")

	got, err := r.LoadLoanWithItemAndBorrower(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, got.Status)
	assert.False(t, got.Item.IsAvailable, "item write must roll back with the loan")
	assert.EqualValues(t, 2, got.Item.Version, "item version is untouched by the failed commit")
}

func TestCommitStampsChangesetTime(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)
	at := time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC)

	item, err := r.LoadItem(ctx, s.item.ID)
	require.NoError(t, err)
	item.IsAvailable = false
	loan := newLoan(s, models.LoanActive, at.Add(-time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: loan, Item: item, At: at}))

	l, err := r.LoadLoanWithItemAndBorrower(ctx, loan.ID)
	require.NoError(t, err)
	l.Status = models.LoanOverdue
	l.UpdatedAt = at
	until := at.Add(24 * time.Hour)
	l.Borrower.IsBlocked = true
	l.Borrower.BlockedUntil = &until
	require.NoError(t, r.Commit(ctx, loans.Changeset{Loan: l, User: l.Borrower, At: at}))

	gotItem, err := r.LoadItem(ctx, s.item.ID)
	require.NoError(t, err)
	assert.True(t, gotItem.UpdatedAt.Equal(at), "item updated_at = %v", gotItem.UpdatedAt)
	gotUser, err := r.FindUserByID(ctx, s.borrower.ID)
	require.NoError(t, err)
	assert.True(t, gotUser.UpdatedAt.Equal(at), "user updated_at = %v", gotUser.UpdatedAt)
}

func TestCommitRollsBackWhenLaterRecordConflicts(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)
	loan := newLoan(s, models.LoanActive, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: loan}))

	l, err := r.LoadLoanWithItemAndBorrower(ctx, loan.ID)
	require.NoError(t, err)
	staleUser := *l.Borrower
	staleUser.Version = 99

	l.Status = models.LoanOverdue
	err = r.Commit(ctx, loans.Changeset{Loan: l, User: &staleUser})
	assert.ErrorIs(t, err, loans.ErrConcurrencyConflict)

	got, err := r.LoadLoanWithItemAndBorrower(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, got.Status)
}

func TestOneHoldingLoanPerItem(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)
	end := time.Now().UTC().Add(48 * time.Hour)

	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: newLoan(s, models.LoanOverdue, end)}))
	err := r.Commit(ctx, loans.Changeset{NewLoan: newLoan(s, models.LoanRequested, end)})
	assert.ErrorIs(t, err, loans.ErrConcurrencyConflict)

	// finished loans do not count
	other := seed2(t, r, s)
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: newLoan(other, models.LoanReturned, end)}))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: newLoan(other, models.LoanRejected, end)}))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: newLoan(other, models.LoanRequested, end)}))
}

// seed2 adds a second item for the same owner and borrower.
func seed2(t *testing.T, r *Repo, s seeded) seeded {
	t.Helper()
	item := &models.Item{ID: uuid.NewString(), OwnerID: s.owner.ID, Name: "Ladder", Category: "tools"}
	require.NoError(t, r.CreateItem(context.Background(), item))
	return seeded{owner: s.owner, borrower: s.borrower, item: item}
}

func TestFindOverdueLoanIDs(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := seed(t, r)

	late := newLoan(s, models.LoanActive, now.Add(-time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: late}))

	s2 := seed2(t, r, s)
	future := newLoan(s2, models.LoanReturnInitiated, now.Add(time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: future}))

	s3 := seed2(t, r, s)
	approved := newLoan(s3, models.LoanApproved, now.Add(-time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: approved}))

	s4 := seed2(t, r, s)
	pending := newLoan(s4, models.LoanReturnInitiated, now.Add(-2*time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: pending}))

	ids, err := r.FindOverdueLoanIDs(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{pending.ID, late.ID}, ids)
}

func TestListLoansForUser(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)
	stranger, err := r.FindOrCreateUser(ctx, "stranger", uuid.NewString())
	require.NoError(t, err)

	loan := newLoan(s, models.LoanActive, time.Now().UTC().Add(time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: loan}))

	asBorrower, err := r.ListLoansForUser(ctx, LoansQuery{UserID: s.borrower.ID, Role: LoanRoleBorrower})
	require.NoError(t, err)
	require.Len(t, asBorrower, 1)
	assert.Equal(t, loan.ID, asBorrower[0].ID)

	asOwner, err := r.ListLoansForUser(ctx, LoansQuery{UserID: s.owner.ID, Role: LoanRoleOwner})
	require.NoError(t, err)
	require.Len(t, asOwner, 1)
	require.NotNil(t, asOwner[0].Item)
	assert.Equal(t, s.item.ID, asOwner[0].Item.ID)

	ownerAsBorrower, err := r.ListLoansForUser(ctx, LoansQuery{UserID: s.owner.ID, Role: LoanRoleBorrower})
	require.NoError(t, err)
	assert.Empty(t, ownerAsBorrower)

	both, err := r.ListLoansForUser(ctx, LoansQuery{UserID: s.owner.ID})
	require.NoError(t, err)
	assert.Len(t, both, 1)

	filtered, err := r.ListLoansForUser(ctx, LoansQuery{UserID: s.borrower.ID, Status: models.LoanReturned})
	require.NoError(t, err)
	assert.Empty(t, filtered)

	none, err := r.ListLoansForUser(ctx, LoansQuery{UserID: stranger.ID})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseLoanRole(t *testing.T) {
	role, err := ParseLoanRole(" Owner ")
	require.NoError(t, err)
	assert.Equal(t, LoanRoleOwner, role)

	_, err = ParseLoanRole("admin")
	assert.Error(t, err)
}

func TestListItemsWithOpenLoan(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)
	free := seed2(t, r, s)

	item, err := r.LoadItem(ctx, s.item.ID)
	require.NoError(t, err)
	item.IsAvailable = false
	loan := newLoan(s, models.LoanOverdue, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: loan, Item: item}))

	all, err := r.ListItemsWithOpenLoan(ctx, ItemsQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)
	require.Len(t, all.Items, 2)

	overdue, err := r.ListItemsWithOpenLoan(ctx, ItemsQuery{Status: "overdue"})
	require.NoError(t, err)
	require.Len(t, overdue.Items, 1)
	row := overdue.Items[0]
	assert.Equal(t, s.item.ID, row.ID)
	assert.True(t, row.Overdue)
	require.NotNil(t, row.LoanID)
	assert.Equal(t, loan.ID, *row.LoanID)
	require.NotNil(t, row.BorrowerUsername)
	assert.Equal(t, "borrower", *row.BorrowerUsername)

	available, err := r.ListItemsWithOpenLoan(ctx, ItemsQuery{Status: "available"})
	require.NoError(t, err)
	require.Len(t, available.Items, 1)
	assert.Equal(t, free.item.ID, available.Items[0].ID)
	assert.Nil(t, available.Items[0].LoanID)

	search, err := r.ListItemsWithOpenLoan(ctx, ItemsQuery{Q: "ladd"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, search.Total)

	_, err = r.ListItemsWithOpenLoan(ctx, ItemsQuery{Status: "broken"})
	assert.Error(t, err)
}

func TestUpdateItemDetailsKeepsAvailabilityAndVersion(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)

	item, err := r.LoadItem(ctx, s.item.ID)
	require.NoError(t, err)
	item.IsAvailable = false
	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: newLoan(s, models.LoanRequested, time.Now().UTC().Add(time.Hour)), Item: item}))

	name, category := "Drill 18V", "power tools"
	got, err := r.UpdateItemDetails(ctx, s.item.ID, ItemDetails{Name: &name, Category: &category}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	assert.Equal(t, category, got.Category)
	assert.False(t, got.IsAvailable)
	assert.Equal(t, item.Version, got.Version)

	_, err = r.UpdateItemDetails(ctx, uuid.NewString(), ItemDetails{Name: &name}, time.Now().UTC())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteItem(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	s := seed(t, r)

	require.NoError(t, r.Commit(ctx, loans.Changeset{NewLoan: newLoan(s, models.LoanReturned, time.Now().UTC())}))
	assert.ErrorIs(t, r.DeleteItem(ctx, s.item.ID), ErrItemHasLoans)
	_, err := r.FindItemByID(ctx, s.item.ID)
	require.NoError(t, err)

	free := seed2(t, r, s)
	require.NoError(t, r.DeleteItem(ctx, free.item.ID))
	_, err = r.FindItemByID(ctx, free.item.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, r.DeleteItem(ctx, uuid.NewString()), gorm.ErrRecordNotFound)
}
