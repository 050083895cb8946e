package loans

import (
	"context"
	"sync"
	"time"

	"Gin_postgres_redis_lending/models"
)

// memStore is a Store held in maps. Records are copied in and out so the
// service never shares memory with what is "persisted".
type memStore struct {
	mu    sync.Mutex
	items map[string]models.Item
	loans map[string]models.Loan
	users map[string]models.User

	// beforeCommit may fail a commit before anything is checked or written.
	beforeCommit func(cs Changeset) error
	commits      int
}

func newMemStore() *memStore {
	return &memStore{
		items: map[string]models.Item{},
		loans: map[string]models.Loan{},
		users: map[string]models.User{},
	}
}

func (m *memStore) putUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Version == 0 {
		u.Version = 1
	}
	m.users[u.ID] = copyUser(u)
}

func (m *memStore) putItem(it models.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.Version == 0 {
		it.Version = 1
	}
	m.items[it.ID] = it
}

func (m *memStore) putLoan(l models.Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.Version == 0 {
		l.Version = 1
	}
	m.loans[l.ID] = copyLoan(l)
}

func (m *memStore) item(id string) models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *memStore) loan(id string) models.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyLoan(m.loans[id])
}

func (m *memStore) user(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.users[id])
}

func (m *memStore) loanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loans)
}

func (m *memStore) LoadLoanWithItemAndBorrower(_ context.Context, id string) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyLoan(l)
	if it, ok := m.items[l.ItemID]; ok {
		out.Item = &it
	}
	if u, ok := m.users[l.BorrowerID]; ok {
		cu := copyUser(u)
		out.Borrower = &cu
	}
	return &out, nil
}

func (m *memStore) LoadItem(_ context.Context, id string) (*models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &it, nil
}

func (m *memStore) FindOverdueLoanIDs(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, l := range m.loans {
		if CanBecomeOverdue(l.Status) && l.EndDate.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) Commit(_ context.Context, cs Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	if m.beforeCommit != nil {
		if err := m.beforeCommit(cs); err != nil {
			return err
		}
	}

	if cs.NewLoan != nil {
		if _, dup := m.loans[cs.NewLoan.ID]; dup {
			return ErrConcurrencyConflict
		}
		for _, l := range m.loans {
			if l.ItemID == cs.NewLoan.ItemID && l.Status.HoldsItem() {
				return ErrConcurrencyConflict
			}
		}
	}
	if cs.Loan != nil && m.loans[cs.Loan.ID].Version != cs.Loan.Version {
		return ErrConcurrencyConflict
	}
	if cs.Item != nil && m.items[cs.Item.ID].Version != cs.Item.Version {
		return ErrConcurrencyConflict
	}
	if cs.User != nil && m.users[cs.User.ID].Version != cs.User.Version {
		return ErrConcurrencyConflict
	}

	if cs.NewLoan != nil {
		cs.NewLoan.Version = 1
		m.loans[cs.NewLoan.ID] = copyLoan(*cs.NewLoan)
	}
	if cs.Loan != nil {
		cs.Loan.Version++
		m.loans[cs.Loan.ID] = copyLoan(*cs.Loan)
	}
	if cs.Item != nil {
		cs.Item.Version++
		cs.Item.UpdatedAt = cs.At
		m.items[cs.Item.ID] = *cs.Item
	}
	if cs.User != nil {
		cs.User.Version++
		cs.User.UpdatedAt = cs.At
		m.users[cs.User.ID] = copyUser(*cs.User)
	}
	return nil
}

func copyLoan(l models.Loan) models.Loan {
	out := l
	out.Item = nil
	out.Borrower = nil
	if l.ActualReturnDate != nil {
		t := *l.ActualReturnDate
		out.ActualReturnDate = &t
	}
	return out
}

func copyUser(u models.User) models.User {
	out := u
	out.Credentials = nil
	if u.BlockReason != nil {
		r := *u.BlockReason
		out.BlockReason = &r
	}
	if u.BlockedUntil != nil {
		t := *u.BlockedUntil
		out.BlockedUntil = &t
	}
	return out
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	conflicts   map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{conflicts: map[string]int{}}
}

func (r *recordingMetrics) ObserveTransition(from, to models.LoanStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}

func (r *recordingMetrics) IncConflict(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts[op]++
}

func (r *recordingMetrics) conflictCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflicts[op]
}
