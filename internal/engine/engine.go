package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/config"
	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/statemachine"
)

// LoanSnapshot is the state of one loan as read by the caller. The engine
// never modifies it.
type LoanSnapshot struct {
	Loan         models.Loan
	Installments []models.Installment
	// PaymentIDs lists every payment already recorded against the loan.
	PaymentIDs []uuid.UUID
}

// PaymentIntent is cash offered by a client against a loan.
type PaymentIntent struct {
	PaymentID uuid.UUID
	LoanID    uuid.UUID
	Amount    decimal.Decimal
	Timestamp time.Time
	Method    string
	Note      *string
}

// Transition is a status change made while processing a request.
type Transition struct {
	Entity   string
	EntityID uuid.UUID
	Event    string
	From     string
	To       string
}

// Changes is what the caller must persist, in one transaction, after an
// engine call.
type Changes struct {
	Loan        models.Loan
	Created     []models.Installment
	Updated     []models.Installment
	Transitions []Transition
}

// Empty reports whether nothing needs to be written.
func (c Changes) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Transitions) == 0
}

// AllocationResult is the outcome of ApplyPayment.
type AllocationResult struct {
	Changes
	Payment models.Payment
	Dues    Dues
}

// ScheduleResult is the outcome of AdvanceSchedule and CancelLoan.
type ScheduleResult struct {
	Changes
}

// PayoffQuote is what it takes to close a loan as of a date (saldo para
// liquidar).
type PayoffQuote struct {
	LoanID               uuid.UUID
	AsOf                 time.Time
	TargetSequence       int
	TargetDueDate        time.Time
	Penalty              decimal.Decimal
	Interest             decimal.Decimal
	Principal            decimal.Decimal
	Total                decimal.Decimal
	MinimumToStayCurrent decimal.Decimal
	Status               string
}

// Engine applies the loan business rules. It holds no mutable state and is
// safe for concurrent use; callers serialize work per loan.
type Engine struct {
	policy   config.Policy
	strategy AllocationStrategy
	newID    func() uuid.UUID
}

// New creates an engine with an explicit allocation strategy.
func New(policy config.Policy, strategy AllocationStrategy) *Engine {
	if strategy == nil {
		strategy = PenaltyFirst()
	}
	return &Engine{policy: policy, strategy: strategy, newID: uuid.New}
}

// NewFromPolicy creates an engine using the strategy named in the policy.
func NewFromPolicy(policy config.Policy) (*Engine, error) {
	strategy, err := StrategyByName(policy.AllocationStrategy)
	if err != nil {
		return nil, err
	}
	return New(policy, strategy), nil
}

// Policy returns the business defaults the engine was built with.
func (e *Engine) Policy() config.Policy {
	return e.policy
}

// StrategyName returns the name of the active allocation strategy.
func (e *Engine) StrategyName() string {
	return e.strategy.Name()
}

// OpenLoan builds a new ACTIVE loan with its first installment.
func (e *Engine) OpenLoan(ctx context.Context, loan models.Loan) (*ScheduleResult, error) {
	if loan.OriginalPrincipal.Sign() <= 0 || !loan.OriginalPrincipal.Equal(RoundMoney(loan.OriginalPrincipal, e.policy.CurrencyDecimals)) {
		return nil, fmt.Errorf("%w: principal %s", ErrInvalidPaymentAmount, loan.OriginalPrincipal)
	}
	if _, err := DaysPerPeriod(loan.Frequency); err != nil {
		return nil, err
	}
	if loan.ID == uuid.Nil {
		loan.ID = e.newID()
	}
	loan.PendingPrincipal = loan.OriginalPrincipal
	loan.InterestPaid = decimal.Zero
	loan.PrincipalPaid = decimal.Zero
	loan.PenaltyPaid = decimal.Zero
	loan.LastPaymentDate = nil
	loan.ClosedAt = nil
	loan.Status = models.LoanStatusActive

	w, err := newWorkingSet(LoanSnapshot{Loan: loan})
	if err != nil {
		return nil, err
	}
	if err := e.advance(ctx, w, loan.StartDate); err != nil {
		return nil, err
	}
	return &ScheduleResult{Changes: w.changes()}, nil
}

// ApplyPayment allocates a payment to the loan, advances the affected
// installment and updates the loan totals and state.
func (e *Engine) ApplyPayment(ctx context.Context, snap LoanSnapshot, intent PaymentIntent) (*AllocationResult, error) {
	dec := e.policy.CurrencyDecimals

	if intent.Amount.Sign() <= 0 || !intent.Amount.Equal(RoundMoney(intent.Amount, dec)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPaymentAmount, intent.Amount)
	}
	if intent.LoanID != snap.Loan.ID {
		return nil, fmt.Errorf("%w: payment for loan %s applied to loan %s", ErrUnknownLoanOrInstallment, intent.LoanID, snap.Loan.ID)
	}
	if intent.Method == "" {
		intent.Method = models.PaymentMethodCash
	}
	if !models.ValidPaymentMethod(intent.Method) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, intent.Method)
	}
	if intent.PaymentID == uuid.Nil {
		return nil, ErrInvalidPaymentID
	}
	for _, id := range snap.PaymentIDs {
		if id == intent.PaymentID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePayment, intent.PaymentID)
		}
	}
	if snap.Loan.IsClosed() {
		return nil, fmt.Errorf("%w: %s", ErrLoanClosed, snap.Loan.Status)
	}
	if err := checkLoan(&snap.Loan); err != nil {
		return nil, err
	}

	accrualStart := snap.Loan.StartDate
	if snap.Loan.LastPaymentDate != nil {
		accrualStart = *snap.Loan.LastPaymentDate
	}
	periods, err := PeriodsElapsed(snap.Loan.Frequency, accrualStart, intent.Timestamp)
	if err != nil {
		return nil, err
	}
	elapsedDays, err := ElapsedDays(accrualStart, intent.Timestamp)
	if err != nil {
		return nil, err
	}

	w, err := newWorkingSet(snap)
	if err != nil {
		return nil, err
	}
	if err := e.advance(ctx, w, intent.Timestamp); err != nil {
		return nil, err
	}

	tidx := w.targetIndex()
	nidx := w.newestIndex()
	loan := &w.loan

	dues, penalties, err := e.dues(w, periods, intent.Timestamp)
	if err != nil {
		return nil, err
	}
	alloc, err := e.strategy.Allocate(intent.Amount, dues)
	if err != nil {
		return nil, err
	}

	unmetBefore := decimal.Zero
	for idx := range w.insts {
		if w.isOpen(idx) {
			unmetBefore = unmetBefore.Add(w.insts[idx].Unmet())
		}
	}
	principalBefore := loan.PendingPrincipal
	paidAt := intent.Timestamp

	loan.PendingPrincipal = loan.PendingPrincipal.Sub(alloc.Principal)
	loan.PrincipalPaid = loan.PrincipalPaid.Add(alloc.Principal)
	loan.InterestPaid = loan.InterestPaid.Add(alloc.Interest)
	loan.PenaltyPaid = loan.PenaltyPaid.Add(alloc.Penalty)
	loan.LastPaymentDate = &paidAt

	credited := w.settle(alloc, penalties, tidx, principalBefore, paidAt)

	// Unpaid interest always travels with the newest installment.
	w.insts[nidx].InterestCarried = dues.Interest.Sub(alloc.Interest)
	w.touch(nidx)

	payoff := loan.PendingPrincipal.Sign() == 0
	payment := models.Payment{
		ID:               intent.PaymentID,
		LoanID:           loan.ID,
		InstallmentID:    w.insts[tidx].ID,
		AmountTendered:   intent.Amount,
		PenaltyPortion:   alloc.Penalty,
		InterestPortion:  alloc.Interest,
		PrincipalPortion: alloc.Principal,
		Change:           alloc.Change,
		ElapsedDays:      elapsedDays.Round(4),
		PrincipalBefore:  principalBefore,
		PrincipalAfter:   loan.PendingPrincipal,
		PaidAt:           paidAt,
		Method:           intent.Method,
		Note:             intent.Note,
		Strategy:         e.strategy.Name(),
		Extraordinary:    payoff || (alloc.Principal.Sign() > 0 && alloc.Interest.Add(alloc.Principal).GreaterThan(unmetBefore)),
	}

	if payoff {
		if err := w.cancelOpen(ctx); err != nil {
			return nil, err
		}
		w.insts[nidx].InterestCarried = decimal.Zero
	} else {
		for _, idx := range credited {
			inst := &w.insts[idx]
			switch {
			case !inst.IsOpen():
				// payment ahead of schedule on a settled installment
			case inst.Unmet().Sign() == 0:
				if err := w.fireInstallment(ctx, idx, statemachine.EventPay); err != nil {
					return nil, err
				}
			case inst.MayPayPartial():
				if err := w.fireInstallment(ctx, idx, statemachine.EventPayPartial); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := e.advance(ctx, w, intent.Timestamp); err != nil {
		return nil, err
	}
	if err := e.settleLoanState(ctx, w, intent.Timestamp); err != nil {
		return nil, err
	}

	result := &AllocationResult{Changes: w.changes(), Payment: payment, Dues: dues}
	if err := checkResult(result, snap.Loan); err != nil {
		return nil, err
	}
	return result, nil
}

// dues computes what a payment at ts can be applied to: mora owed on every
// open installment, interest accrued since the last payment plus carried
// unpaid interest, and the whole pending principal. The mora of each
// installment is returned alongside, indexed like the working set.
func (e *Engine) dues(w *workingSet, periods decimal.Decimal, ts time.Time) (Dues, []decimal.Decimal, error) {
	dec := e.policy.CurrencyDecimals
	loan := &w.loan

	interest := AccruedInterest(loan.PendingPrincipal, loan.EffectiveInterestRate(e.policy.BaseRate), periods, dec).
		Add(w.insts[w.newestIndex()].InterestCarried)

	rate := loan.EffectivePenaltyRate(e.policy.BasePenaltyRate)
	penalties := make([]decimal.Decimal, len(w.insts))
	penalty := decimal.Zero
	for idx := range w.insts {
		penalties[idx] = decimal.Zero
		if !w.isOpen(idx) {
			continue
		}
		due, err := penaltyDue(&w.insts[idx], loan.Frequency, rate, ts, dec)
		if err != nil {
			return Dues{}, nil, err
		}
		penalties[idx] = due
		penalty = penalty.Add(due)
	}

	return Dues{Penalty: penalty, Interest: interest, Principal: loan.PendingPrincipal}, penalties, nil
}

// AdvanceSchedule materializes due installments, flags overdue ones and
// settles the loan state as of asOf without a payment.
func (e *Engine) AdvanceSchedule(ctx context.Context, snap LoanSnapshot, asOf time.Time) (*ScheduleResult, error) {
	if err := checkLoan(&snap.Loan); err != nil {
		return nil, err
	}
	w, err := newWorkingSet(snap)
	if err != nil {
		return nil, err
	}
	if w.loan.IsClosed() {
		return &ScheduleResult{Changes: w.changes()}, nil
	}
	if err := e.advance(ctx, w, asOf); err != nil {
		return nil, err
	}
	if err := e.settleLoanState(ctx, w, asOf); err != nil {
		return nil, err
	}
	return &ScheduleResult{Changes: w.changes()}, nil
}

// CancelLoan closes a loan by explicit action, cancelling every open
// installment. Totals are left untouched.
func (e *Engine) CancelLoan(ctx context.Context, snap LoanSnapshot, at time.Time) (*ScheduleResult, error) {
	if snap.Loan.IsClosed() {
		return nil, fmt.Errorf("%w: %s", ErrLoanClosed, snap.Loan.Status)
	}
	w, err := newWorkingSet(snap)
	if err != nil {
		return nil, err
	}
	if err := w.cancelOpen(ctx); err != nil {
		return nil, err
	}
	for idx := range w.insts {
		if w.insts[idx].InterestCarried.Sign() != 0 {
			w.insts[idx].InterestCarried = decimal.Zero
			w.touch(idx)
		}
	}
	if err := w.fireLoan(ctx, statemachine.EventCancel); err != nil {
		return nil, err
	}
	closedAt := at
	w.loan.ClosedAt = &closedAt
	return &ScheduleResult{Changes: w.changes()}, nil
}

// Quote returns the amount that would close the loan at asOf.
func (e *Engine) Quote(ctx context.Context, snap LoanSnapshot, asOf time.Time) (*PayoffQuote, error) {
	if snap.Loan.IsClosed() {
		return nil, fmt.Errorf("%w: %s", ErrLoanClosed, snap.Loan.Status)
	}
	accrualStart := snap.Loan.StartDate
	if snap.Loan.LastPaymentDate != nil {
		accrualStart = *snap.Loan.LastPaymentDate
	}
	periods, err := PeriodsElapsed(snap.Loan.Frequency, accrualStart, asOf)
	if err != nil {
		return nil, err
	}

	w, err := newWorkingSet(snap)
	if err != nil {
		return nil, err
	}
	if err := e.advance(ctx, w, asOf); err != nil {
		return nil, err
	}
	if err := e.settleLoanState(ctx, w, asOf); err != nil {
		return nil, err
	}

	tidx := w.targetIndex()
	dues, _, err := e.dues(w, periods, asOf)
	if err != nil {
		return nil, err
	}

	// to stay current a client settles the mora and every installment
	// already due, or the next one when nothing is due yet
	target := &w.insts[tidx]
	minimum := dues.Penalty
	due := false
	for idx := range w.insts {
		if w.isOpen(idx) && !asOf.Before(w.insts[idx].DueDate) {
			minimum = minimum.Add(w.insts[idx].Unmet())
			due = true
		}
	}
	if !due && w.isOpen(tidx) {
		minimum = minimum.Add(target.Unmet())
	}

	return &PayoffQuote{
		LoanID:               w.loan.ID,
		AsOf:                 asOf,
		TargetSequence:       target.Sequence,
		TargetDueDate:        target.DueDate,
		Penalty:              dues.Penalty,
		Interest:             dues.Interest,
		Principal:            dues.Principal,
		Total:                dues.Total(),
		MinimumToStayCurrent: minimum,
		Status:               w.loan.Status,
	}, nil
}

func checkLoan(l *models.Loan) error {
	if l.PendingPrincipal.IsNegative() || l.PendingPrincipal.GreaterThan(l.OriginalPrincipal) {
		return fmt.Errorf("%w: pending principal %s outside [0, %s] on loan %s",
			ErrInvariantViolation, l.PendingPrincipal, l.OriginalPrincipal, l.ID)
	}
	if !l.OriginalPrincipal.Sub(l.PendingPrincipal).Equal(l.PrincipalPaid) {
		return fmt.Errorf("%w: original %s - pending %s != principal paid %s on loan %s",
			ErrInvariantViolation, l.OriginalPrincipal, l.PendingPrincipal, l.PrincipalPaid, l.ID)
	}
	return nil
}

func checkResult(r *AllocationResult, before models.Loan) error {
	if err := checkLoan(&r.Loan); err != nil {
		return err
	}
	p := r.Payment
	if !p.Applied().Add(p.Change).Equal(p.AmountTendered) {
		return fmt.Errorf("%w: payment %s portions do not add up to %s", ErrInvariantViolation, p.ID, p.AmountTendered)
	}
	if r.Loan.PendingPrincipal.GreaterThan(before.PendingPrincipal) {
		return fmt.Errorf("%w: pending principal increased on loan %s", ErrInvariantViolation, r.Loan.ID)
	}
	if !r.Loan.PrincipalPaid.Sub(before.PrincipalPaid).Equal(p.PrincipalPortion) {
		return fmt.Errorf("%w: principal paid moved by other than the principal portion on loan %s", ErrInvariantViolation, r.Loan.ID)
	}
	if p.Change.Sign() > 0 && r.Loan.PendingPrincipal.Sign() != 0 {
		return fmt.Errorf("%w: change returned on loan %s with principal outstanding", ErrInvariantViolation, r.Loan.ID)
	}
	for _, list := range [][]models.Installment{r.Created, r.Updated} {
		for _, inst := range list {
			if !inst.PaidTotal.Equal(inst.InterestPaid.Add(inst.PrincipalPaid).Add(inst.PenaltyPaid)) {
				return fmt.Errorf("%w: installment %d paid total mismatch", ErrInvariantViolation, inst.Sequence)
			}
		}
	}
	if (r.Loan.Status == models.LoanStatusCompleted) != (r.Loan.PendingPrincipal.Sign() == 0) {
		return fmt.Errorf("%w: loan %s status %s with pending principal %s", ErrInvariantViolation, r.Loan.ID, r.Loan.Status, r.Loan.PendingPrincipal)
	}
	return nil
}
