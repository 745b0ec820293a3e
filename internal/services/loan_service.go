package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/jobs"
	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
	"github.com/sjperalta/fintera-prestamos/pkg/logger"
)

const advanceBatchSize = 100

// LoanService persists engine decisions. Every write runs inside
// LoanRepository.UpdateLocked so one loan is never processed twice at once.
type LoanService struct {
	loanRepo       repository.LoanRepository
	clientRepo     repository.ClientRepository
	paymentRepo    repository.PaymentRepository
	transitionRepo repository.TransitionRepository
	engine         *engine.Engine
	worker         *jobs.Worker
	currency       string
	now            Clock
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	clientRepo repository.ClientRepository,
	paymentRepo repository.PaymentRepository,
	transitionRepo repository.TransitionRepository,
	eng *engine.Engine,
	worker *jobs.Worker,
	currency string,
	clock Clock,
) *LoanService {
	if clock == nil {
		clock = SystemClock
	}
	return &LoanService{
		loanRepo:       loanRepo,
		clientRepo:     clientRepo,
		paymentRepo:    paymentRepo,
		transitionRepo: transitionRepo,
		engine:         eng,
		worker:         worker,
		currency:       currency,
		now:            clock,
	}
}

// CreateLoanInput is the data needed to grant a loan
type CreateLoanInput struct {
	ClientID     uuid.UUID
	Principal    decimal.Decimal
	Frequency    string
	StartDate    *time.Time
	InterestRate *decimal.Decimal
	PenaltyRate  *decimal.Decimal
	Currency     string
	Note         *string
}

// RegisterPaymentInput is a payment received at the counter
type RegisterPaymentInput struct {
	PaymentID uuid.UUID
	LoanID    uuid.UUID
	Amount    decimal.Decimal
	PaidAt    *time.Time
	Method    string
	Note      *string
}

// AdvanceSummary reports one maintenance pass over the open loans
type AdvanceSummary struct {
	Processed int       `json:"processed"`
	Changed   int       `json:"changed"`
	Failed    int       `json:"failed"`
	AsOf      time.Time `json:"as_of"`
}

// CreateLoan grants a loan to an existing client and materializes its first installment
func (s *LoanService) CreateLoan(ctx context.Context, input CreateLoanInput) (*models.Loan, error) {
	if _, err := s.clientRepo.FindByID(ctx, input.ClientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: cliente %s", ErrNotFound, input.ClientID)
		}
		return nil, err
	}

	loan := models.Loan{
		ClientID:          input.ClientID,
		OriginalPrincipal: input.Principal,
		Frequency:         strings.ToLower(strings.TrimSpace(input.Frequency)),
		Currency:          s.currency,
		StartDate:         s.now(),
		Note:              input.Note,
	}
	if input.Currency != "" {
		loan.Currency = strings.ToUpper(input.Currency)
	}
	if input.StartDate != nil {
		loan.StartDate = input.StartDate.UTC()
	}
	if input.InterestRate != nil {
		if input.InterestRate.IsNegative() {
			return nil, fmt.Errorf("%w: tasa de interés negativa", ErrInvalidInput)
		}
		loan.InterestRate = decimal.NewNullDecimal(*input.InterestRate)
	}
	if input.PenaltyRate != nil {
		if input.PenaltyRate.IsNegative() {
			return nil, fmt.Errorf("%w: tasa de mora negativa", ErrInvalidInput)
		}
		loan.PenaltyRate = decimal.NewNullDecimal(*input.PenaltyRate)
	}

	res, err := s.engine.OpenLoan(ctx, loan)
	if err != nil {
		return nil, err
	}

	write := &repository.LoanWrite{
		Loan:        res.Loan,
		Created:     res.Created,
		Transitions: toStateTransitions(res.Loan.ID, nil, res.Transitions),
	}
	if err := s.loanRepo.Create(ctx, write); err != nil {
		return nil, fmt.Errorf("failed to create loan: %w", err)
	}

	logger.Info(fmt.Sprintf("[LoanService] Loan %s opened for client %s: %s %s %s",
		write.Loan.ID, write.Loan.ClientID, write.Loan.OriginalPrincipal, write.Loan.Currency, write.Loan.Frequency))

	created := write.Loan
	created.Installments = write.Created
	return &created, nil
}

// RegisterPayment applies a payment under the loan's row lock
func (s *LoanService) RegisterPayment(ctx context.Context, input RegisterPaymentInput) (*engine.AllocationResult, error) {
	paidAt := s.now()
	if input.PaidAt != nil {
		paidAt = input.PaidAt.UTC()
	}

	intent := engine.PaymentIntent{
		PaymentID: input.PaymentID,
		LoanID:    input.LoanID,
		Amount:    input.Amount,
		Timestamp: paidAt,
		Method:    strings.ToLower(strings.TrimSpace(input.Method)),
		Note:      input.Note,
	}

	var result *engine.AllocationResult
	err := s.loanRepo.UpdateLocked(ctx, input.LoanID, func(agg *repository.LoanAggregate) (*repository.LoanWrite, error) {
		res, err := s.engine.ApplyPayment(ctx, snapshotOf(agg), intent)
		if err != nil {
			return nil, err
		}
		result = res
		payment := res.Payment
		return &repository.LoanWrite{
			Loan:        res.Loan,
			Created:     res.Created,
			Updated:     res.Updated,
			Payment:     &payment,
			Transitions: toStateTransitions(res.Loan.ID, &payment.ID, res.Transitions),
		}, nil
	})
	if err != nil {
		return nil, s.translate("RegisterPayment", input.LoanID, err)
	}

	logger.Info("[LoanService] Payment applied",
		"loan_id", input.LoanID,
		"payment_id", result.Payment.ID,
		"amount", result.Payment.AmountTendered.String(),
		"penalty", result.Payment.PenaltyPortion.String(),
		"interest", result.Payment.InterestPortion.String(),
		"principal", result.Payment.PrincipalPortion.String(),
		"change", result.Payment.Change.String(),
		"pending", result.Loan.PendingPrincipal.String())
	s.logTransitions(input.LoanID, result.Transitions)

	return result, nil
}

// Advance brings a loan's schedule up to asOf (now when nil)
func (s *LoanService) Advance(ctx context.Context, loanID uuid.UUID, asOf *time.Time) (*engine.ScheduleResult, error) {
	at := s.now()
	if asOf != nil {
		at = asOf.UTC()
	}

	var result *engine.ScheduleResult
	err := s.loanRepo.UpdateLocked(ctx, loanID, func(agg *repository.LoanAggregate) (*repository.LoanWrite, error) {
		res, err := s.engine.AdvanceSchedule(ctx, snapshotOf(agg), at)
		if err != nil {
			return nil, err
		}
		result = res
		if res.Empty() {
			return nil, nil
		}
		return &repository.LoanWrite{
			Loan:        res.Loan,
			Created:     res.Created,
			Updated:     res.Updated,
			Transitions: toStateTransitions(loanID, nil, res.Transitions),
		}, nil
	})
	if err != nil {
		return nil, s.translate("Advance", loanID, err)
	}

	s.logTransitions(loanID, result.Transitions)
	return result, nil
}

// AdvanceAll runs Advance for every open loan, spreading the work over the
// worker pool. Failures are logged and counted; the pass continues.
func (s *LoanService) AdvanceAll(ctx context.Context) (*AdvanceSummary, error) {
	asOf := s.now()
	summary := &AdvanceSummary{AsOf: asOf}
	logger.Info("[LoanService] Advancing open loans...")

	after := uuid.Nil
	for {
		ids, err := s.loanRepo.ListOpenIDs(ctx, after, advanceBatchSize)
		if err != nil {
			return summary, fmt.Errorf("failed to fetch open loans after %s: %w", after, err)
		}
		if len(ids) == 0 {
			break
		}

		var changed atomic.Int64
		batch := make([]jobs.Job, 0, len(ids))
		for _, id := range ids {
			id := id
			batch = append(batch, func(ctx context.Context) error {
				res, err := s.Advance(ctx, id, &asOf)
				if err != nil {
					return fmt.Errorf("loan %s: %w", id, err)
				}
				if !res.Empty() {
					changed.Add(1)
				}
				return nil
			})
		}

		summary.Failed += s.worker.RunBatch(ctx, batch)
		summary.Processed += len(ids)
		summary.Changed += int(changed.Load())

		if len(ids) < advanceBatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	logger.Info(fmt.Sprintf("[LoanService] Advanced %d loans (%d changed, %d failed)",
		summary.Processed, summary.Changed, summary.Failed))

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d loans failed to advance", summary.Failed, summary.Processed)
	}
	return summary, nil
}

// Cancel closes a loan without collecting the remaining balance
func (s *LoanService) Cancel(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	at := s.now()

	var result *engine.ScheduleResult
	err := s.loanRepo.UpdateLocked(ctx, loanID, func(agg *repository.LoanAggregate) (*repository.LoanWrite, error) {
		res, err := s.engine.CancelLoan(ctx, snapshotOf(agg), at)
		if err != nil {
			return nil, err
		}
		result = res
		return &repository.LoanWrite{
			Loan:        res.Loan,
			Updated:     res.Updated,
			Transitions: toStateTransitions(loanID, nil, res.Transitions),
		}, nil
	})
	if err != nil {
		return nil, s.translate("Cancel", loanID, err)
	}

	logger.Info(fmt.Sprintf("[LoanService] Loan %s cancelled", loanID))
	s.logTransitions(loanID, result.Transitions)

	loan := result.Loan
	return &loan, nil
}

// Quote returns the amount needed to settle the loan as of asOf (now when nil).
// It reads without locking and writes nothing.
func (s *LoanService) Quote(ctx context.Context, loanID uuid.UUID, asOf *time.Time) (*engine.PayoffQuote, error) {
	at := s.now()
	if asOf != nil {
		at = asOf.UTC()
	}

	agg, err := s.loanRepo.LoadAggregate(ctx, loanID)
	if err != nil {
		return nil, s.translate("Quote", loanID, err)
	}
	quote, err := s.engine.Quote(ctx, snapshotOf(agg), at)
	if err != nil {
		return nil, s.translate("Quote", loanID, err)
	}
	return quote, nil
}

// FindByID returns a loan with its client and schedule
func (s *LoanService) FindByID(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.loanRepo.FindByIDWithDetails(ctx, loanID)
	if err != nil {
		return nil, s.translate("FindByID", loanID, err)
	}
	return loan, nil
}

// List returns a page of loans
func (s *LoanService) List(ctx context.Context, query *repository.ListQuery) ([]models.Loan, int64, error) {
	return s.loanRepo.List(ctx, query)
}

// Installments returns the schedule of a loan ordered by sequence
func (s *LoanService) Installments(ctx context.Context, loanID uuid.UUID) ([]models.Installment, error) {
	if _, err := s.loanRepo.FindByID(ctx, loanID); err != nil {
		return nil, s.translate("Installments", loanID, err)
	}
	return s.loanRepo.FindInstallments(ctx, loanID)
}

// Payments returns the payments recorded against a loan
func (s *LoanService) Payments(ctx context.Context, loanID uuid.UUID) ([]models.Payment, error) {
	if _, err := s.loanRepo.FindByID(ctx, loanID); err != nil {
		return nil, s.translate("Payments", loanID, err)
	}
	return s.paymentRepo.FindByLoan(ctx, loanID)
}

// History returns the status changes recorded for a loan and its installments
func (s *LoanService) History(ctx context.Context, loanID uuid.UUID) ([]models.StateTransition, error) {
	if _, err := s.loanRepo.FindByID(ctx, loanID); err != nil {
		return nil, s.translate("History", loanID, err)
	}
	return s.transitionRepo.FindByLoan(ctx, loanID)
}

// FindPayment returns a single payment
func (s *LoanService) FindPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: pago %s", ErrNotFound, paymentID)
		}
		return nil, err
	}
	return payment, nil
}

// translate maps persistence errors onto the engine's error kinds and reports
// invariant violations.
func (s *LoanService) translate(op string, loanID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: préstamo %s", engine.ErrUnknownLoanOrInstallment, loanID)
	case errors.Is(err, repository.ErrDuplicateKey):
		return fmt.Errorf("%w: %v", engine.ErrDuplicatePayment, err)
	case errors.Is(err, repository.ErrVersionConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, engine.ErrInvariantViolation):
		logger.Error("[LoanService] Invariant violation", "op", op, "loan_id", loanID, "error", err)
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("operation", op)
			scope.SetTag("loan_id", loanID.String())
			scope.SetLevel(sentry.LevelFatal)
			sentry.CaptureException(err)
		})
	}
	return err
}

func (s *LoanService) logTransitions(loanID uuid.UUID, transitions []engine.Transition) {
	for _, t := range transitions {
		logger.Info("[LoanService] State transition",
			"loan_id", loanID,
			"entity", t.Entity,
			"entity_id", t.EntityID,
			"event", t.Event,
			"from", t.From,
			"to", t.To)
	}
}

func snapshotOf(agg *repository.LoanAggregate) engine.LoanSnapshot {
	return engine.LoanSnapshot{
		Loan:         agg.Loan,
		Installments: agg.Installments,
		PaymentIDs:   agg.PaymentIDs,
	}
}

func toStateTransitions(loanID uuid.UUID, paymentID *uuid.UUID, transitions []engine.Transition) []models.StateTransition {
	if len(transitions) == 0 {
		return nil
	}
	out := make([]models.StateTransition, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, models.StateTransition{
			LoanID:     loanID,
			Entity:     t.Entity,
			EntityID:   t.EntityID,
			Event:      t.Event,
			FromStatus: t.From,
			ToStatus:   t.To,
			PaymentID:  paymentID,
		})
	}
	return out
}
