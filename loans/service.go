// Package loans holds the loan lifecycle: the transition table, the
// authorization policy, the lifecycle service and the overdue sweeper.
package loans

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"Gin_postgres_redis_lending/logger"
	"Gin_postgres_redis_lending/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Metrics receives lifecycle observations.
type Metrics interface {
	ObserveTransition(from, to models.LoanStatus)
	IncConflict(operation string)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ServiceParams configure the lifecycle service.
type ServiceParams struct {
	Store   Store
	Clock   Clock
	Logger  *logger.Logger
	Metrics Metrics
	Retry   []RetryOption
}

// Service is the only writer of loan status and item availability.
type Service struct {
	store   Store
	clock   Clock
	logg    *logger.Logger
	metrics Metrics
	retry   []RetryOption
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Store == nil {
		return nil, errors.New("store required")
	}
	if err := checkRetryOptions(p.Retry); err != nil {
		return nil, err
	}
	s := &Service{store: p.Store, clock: p.Clock, logg: p.Logger, metrics: p.Metrics, retry: p.Retry}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	return s, nil
}

func checkRetryOptions(opts []RetryOption) error {
	cfg := &retryConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return fmt.Errorf("retry options: %w", err)
		}
	}
	return nil
}

type CreateLoanInput struct {
	ItemID     string    `json:"itemId" validate:"required"`
	BorrowerID string    `json:"borrowerId" validate:"required"`
	StartDate  time.Time `json:"startDate" validate:"required"`
	EndDate    time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	Notes      string    `json:"notes" validate:"max=1000"`
}

// CreateLoan opens a Requested loan and takes the item off the shelf.
func (s *Service) CreateLoan(ctx context.Context, in CreateLoanInput) (*models.Loan, error) {
	if err := validate.Struct(in); err != nil {
		return nil, invalidRequest(describeValidation(err))
	}

	var created *models.Loan
	err := s.run(ctx, "create", func(ctx context.Context) error {
		item, err := s.store.LoadItem(ctx, in.ItemID)
		if errors.Is(err, ErrNotFound) {
			return notFound("item")
		}
		if err != nil {
			return fmt.Errorf("load item %s: %w", in.ItemID, err)
		}
		if !item.IsAvailable {
			return conflict("item is not available for loan")
		}
		if item.OwnerID == in.BorrowerID {
			return invalidRequest("cannot borrow your own item")
		}

		now := s.clock.Now()
		loan := &models.Loan{
			ID:         uuid.NewString(),
			ItemID:     item.ID,
			BorrowerID: in.BorrowerID,
			StartDate:  in.StartDate,
			EndDate:    in.EndDate,
			Status:     models.LoanRequested,
			Notes:      strings.TrimSpace(in.Notes),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		item.IsAvailable = false
		if err := s.store.Commit(ctx, Changeset{NewLoan: loan, Item: item, At: now}); err != nil {
			return fmt.Errorf("commit create: %w", err)
		}
		loan.Item = item
		created = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, created, "", in.BorrowerID)
	return created, nil
}

func (s *Service) ApproveRequest(ctx context.Context, loanID, callerID string) (*models.Loan, error) {
	return s.transition(ctx, loanID, callerID, opApprove)
}

// RejectRequest also puts the item back on the shelf.
func (s *Service) RejectRequest(ctx context.Context, loanID, callerID string) (*models.Loan, error) {
	return s.transition(ctx, loanID, callerID, opReject)
}

func (s *Service) ActivateLoan(ctx context.Context, loanID, callerID string) (*models.Loan, error) {
	return s.transition(ctx, loanID, callerID, opActivate)
}

func (s *Service) InitiateReturn(ctx context.Context, loanID, callerID string) (*models.Loan, error) {
	return s.transition(ctx, loanID, callerID, opInitiateReturn)
}

// ConfirmReturn stamps the return date and makes the item available again.
func (s *Service) ConfirmReturn(ctx context.Context, loanID, callerID string) (*models.Loan, error) {
	return s.transition(ctx, loanID, callerID, opConfirmReturn)
}

// SettleOverdue is the owner confirming that an overdue item came back.
func (s *Service) SettleOverdue(ctx context.Context, loanID, callerID string) (*models.Loan, error) {
	return s.transition(ctx, loanID, callerID, opSettleOverdue)
}

// UpdateStatus is the generic entry point; only the edges allowed by
// IsTransitionAllowed are reachable through it.
func (s *Service) UpdateStatus(ctx context.Context, loanID string, requested models.LoanStatus, callerID string) (*models.Loan, error) {
	if !requested.Valid() {
		return nil, invalidRequest(fmt.Sprintf("unknown loan status %q", requested))
	}

	var (
		out  *models.Loan
		from models.LoanStatus
	)
	err := s.run(ctx, "update_status", func(ctx context.Context) error {
		loan, err := s.load(ctx, loanID)
		if err != nil {
			return err
		}
		role := RoleOf(callerID, loan)
		if role == RoleNeither {
			return unauthorized()
		}
		if !IsTransitionAllowed(loan.Status, requested, role) {
			return invalidTransition("status change not allowed")
		}
		from = loan.Status
		if err := s.store.Commit(ctx, s.apply(loan, requested)); err != nil {
			return fmt.Errorf("commit status update: %w", err)
		}
		out = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, out, from, callerID)
	return out, nil
}

// GetLoan returns the loan to its borrower or to the item's owner.
func (s *Service) GetLoan(ctx context.Context, loanID, callerID string) (*models.Loan, error) {
	loan, err := s.load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if RoleOf(callerID, loan) == RoleNeither {
		return nil, unauthorized()
	}
	return loan, nil
}

func (s *Service) transition(ctx context.Context, loanID, callerID string, op operation) (*models.Loan, error) {
	var (
		out  *models.Loan
		from models.LoanStatus
	)
	err := s.run(ctx, op.name, func(ctx context.Context) error {
		loan, err := s.load(ctx, loanID)
		if err != nil {
			return err
		}
		if RoleOf(callerID, loan) != op.role {
			return unauthorized()
		}
		if !op.permits(loan.Status) {
			return invalidTransition(op.detail)
		}
		from = loan.Status
		if err := s.store.Commit(ctx, s.apply(loan, op.target)); err != nil {
			return fmt.Errorf("commit %s: %w", op.name, err)
		}
		out = loan
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(ctx, out, from, callerID)
	return out, nil
}

// apply mutates loan (and its item) for the target status and returns what must be written.
func (s *Service) apply(loan *models.Loan, to models.LoanStatus) Changeset {
	now := s.clock.Now()
	loan.Status = to
	loan.UpdatedAt = now
	cs := Changeset{Loan: loan, At: now}

	switch to {
	case models.LoanReturned:
		loan.ActualReturnDate = &now
		loan.Item.IsAvailable = true
		cs.Item = loan.Item
	case models.LoanRejected:
		loan.Item.IsAvailable = true
		cs.Item = loan.Item
	case models.LoanRequested, models.LoanApproved, models.LoanActive,
		models.LoanReturnInitiated, models.LoanOverdue:
		// item stays off the shelf
	}
	return cs
}

func (s *Service) load(ctx context.Context, loanID string) (*models.Loan, error) {
	loan, err := s.store.LoadLoanWithItemAndBorrower(ctx, loanID)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound("loan")
	}
	if err != nil {
		return nil, fmt.Errorf("load loan %s: %w", loanID, err)
	}
	if loan.Item == nil {
		return nil, fmt.Errorf("loan %s loaded without its item", loanID)
	}
	return loan, nil
}

func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	opts := make([]RetryOption, 0, len(s.retry)+1)
	opts = append(opts, s.retry...)
	opts = append(opts, withRetryHook(func(attempt int, _ error) {
		logCtx := s.logg.WithFields(ctx, map[string]any{"operation": op, "attempt": attempt})
		s.logg.Warn(logCtx, "concurrent modification, retrying from a fresh read")
		if s.metrics != nil {
			s.metrics.IncConflict(op)
		}
	}))
	return retryOnConflict(ctx, fn, opts...)
}

func (s *Service) recordTransition(ctx context.Context, loan *models.Loan, from models.LoanStatus, callerID string) {
	logCtx := s.logg.WithLoanID(ctx, loan.ID)
	logCtx = s.logg.WithUserID(logCtx, callerID)
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": string(from), "to": string(loan.Status)})
	s.logg.Info(logCtx, "loan status changed")
	if s.metrics != nil {
		s.metrics.ObserveTransition(from, loan.Status)
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid loan request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gtfield":
		return "endDate must be after startDate"
	case "max":
		return fe.Field() + " is too long"
	}
	return fe.Field() + " is invalid"
}
