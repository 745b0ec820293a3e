package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/statemachine"
)

// workingSet is a private, mutable copy of a loan snapshot. Engine
// operations mutate it and then report what changed.
type workingSet struct {
	loan        models.Loan
	insts       []models.Installment
	created     map[uuid.UUID]bool
	touched     map[uuid.UUID]bool
	transitions []Transition
}

func newWorkingSet(snap LoanSnapshot) (*workingSet, error) {
	w := &workingSet{
		loan:    snap.Loan,
		insts:   make([]models.Installment, len(snap.Installments)),
		created: make(map[uuid.UUID]bool),
		touched: make(map[uuid.UUID]bool),
	}
	w.loan.Installments = nil
	w.loan.Payments = nil
	copy(w.insts, snap.Installments)

	sort.Slice(w.insts, func(a, b int) bool { return w.insts[a].Sequence < w.insts[b].Sequence })
	for idx := range w.insts {
		if w.insts[idx].LoanID != w.loan.ID {
			return nil, fmt.Errorf("%w: installment %s belongs to loan %s", ErrUnknownLoanOrInstallment, w.insts[idx].ID, w.insts[idx].LoanID)
		}
		if w.insts[idx].Sequence != idx+1 {
			return nil, fmt.Errorf("%w: installment sequence gap at %d", ErrInvariantViolation, idx+1)
		}
	}
	return w, nil
}

func (w *workingSet) newestIndex() int {
	return len(w.insts) - 1
}

// isOpen reports whether the installment at idx can still receive payments.
func (w *workingSet) isOpen(idx int) bool {
	return w.insts[idx].IsOpen()
}

// targetIndex is the oldest open installment, or the newest one when every
// installment is settled.
func (w *workingSet) targetIndex() int {
	for idx := range w.insts {
		if w.isOpen(idx) {
			return idx
		}
	}
	return w.newestIndex()
}

// isLate reports whether the installment at idx is past due with part of its
// minimum unmet as of asOf, whether or not it has been flagged OVERDUE yet.
func (w *workingSet) isLate(idx int, asOf time.Time) bool {
	inst := &w.insts[idx]
	return w.isOpen(idx) && asOf.After(inst.DueDate) && inst.Unmet().Sign() > 0
}

func (w *workingSet) touch(idx int) {
	w.touched[w.insts[idx].ID] = true
}

func (w *workingSet) record(entity string, id uuid.UUID, event, from, to string) {
	w.transitions = append(w.transitions, Transition{Entity: entity, EntityID: id, Event: event, From: from, To: to})
}

// fireInstallment runs an installment event through its state machine and
// records the transition.
func (w *workingSet) fireInstallment(ctx context.Context, idx int, event string) error {
	inst := &w.insts[idx]
	from := inst.Status
	f := statemachine.NewInstallmentFSM(inst)

	var err error
	switch event {
	case statemachine.EventPay:
		err = f.Pay(ctx)
	case statemachine.EventPayPartial:
		err = f.PayPartial(ctx)
	case statemachine.EventExpire:
		err = f.Expire(ctx)
	case statemachine.EventCancel:
		err = f.Cancel(ctx)
	default:
		err = fmt.Errorf("unknown installment event %q", event)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	w.touch(idx)
	w.record(models.TransitionEntityInstallment, inst.ID, event, from, inst.Status)
	return nil
}

// cancelOpen cancels every installment still able to receive payments.
func (w *workingSet) cancelOpen(ctx context.Context) error {
	for idx := range w.insts {
		if !w.isOpen(idx) {
			continue
		}
		if err := w.fireInstallment(ctx, idx, statemachine.EventCancel); err != nil {
			return err
		}
	}
	return nil
}

func (w *workingSet) changes() Changes {
	ch := Changes{Loan: w.loan, Transitions: w.transitions}
	for _, inst := range w.insts {
		switch {
		case w.created[inst.ID]:
			ch.Created = append(ch.Created, inst)
		case w.touched[inst.ID]:
			ch.Updated = append(ch.Updated, inst)
		}
	}
	return ch
}

// advance flags installments past their due date with part of their own
// minimum unmet as OVERDUE, PARTIAL ones included, and materializes every
// installment whose period has started by asOf. Several missed periods are
// handled in one call; each becomes OVERDUE in turn.
func (e *Engine) advance(ctx context.Context, w *workingSet, asOf time.Time) error {
	if w.loan.IsClosed() {
		return nil
	}
	if len(w.insts) == 0 {
		if err := e.materialize(w); err != nil {
			return err
		}
	}

	limit, err := e.advanceLimit(w, asOf)
	if err != nil {
		return err
	}

	for iter := 0; ; iter++ {
		if iter > limit {
			return fmt.Errorf("%w: schedule for loan %s did not settle after %d passes", ErrInvariantViolation, w.loan.ID, iter)
		}
		progressed := false

		for idx := range w.insts {
			inst := &w.insts[idx]
			if !inst.MayExpire() || !asOf.After(inst.DueDate) {
				continue
			}
			event := statemachine.EventExpire
			if inst.Unmet().Sign() == 0 {
				// nothing was ever owed on it (zero-rate loans)
				event = statemachine.EventPay
			}
			if err := w.fireInstallment(ctx, idx, event); err != nil {
				return err
			}
			progressed = true
		}

		if e.periodEnded(w, asOf) && w.loan.PendingPrincipal.Sign() > 0 {
			if err := e.materialize(w); err != nil {
				return err
			}
			progressed = true
		}

		if !progressed {
			w.refreshShortfall()
			return nil
		}
	}
}

// periodEnded reports whether the newest installment has left PENDING and
// its period is over, so its successor must exist. A PARTIAL installment
// still accepts payments on its due date and only rolls over after it.
func (e *Engine) periodEnded(w *workingSet, asOf time.Time) bool {
	newest := &w.insts[w.newestIndex()]
	switch newest.Status {
	case models.InstallmentStatusPending:
		return false
	case models.InstallmentStatusPartial:
		return asOf.After(newest.DueDate)
	}
	return !asOf.Before(newest.DueDate)
}

// advanceLimit bounds the materialization loop: one pass per period between
// the loan start and asOf, plus slack for the expiry passes.
func (e *Engine) advanceLimit(w *workingSet, asOf time.Time) (int, error) {
	if !asOf.After(w.loan.StartDate) {
		return 2, nil
	}
	periods, err := PeriodsElapsed(w.loan.Frequency, w.loan.StartDate, asOf)
	if err != nil {
		return 0, err
	}
	return int(periods.IntPart())*2 + 4, nil
}

// materialize appends the next installment. The first installment starts at
// the loan start date; later ones start at their predecessor's due date and
// take over the carried interest. Its own minimum is one period of interest
// on the pending principal.
func (e *Engine) materialize(w *workingSet) error {
	rate := w.loan.EffectiveInterestRate(e.policy.BaseRate)

	next := models.Installment{
		ID:               e.newID(),
		LoanID:           w.loan.ID,
		Sequence:         1,
		PeriodStart:      w.loan.StartDate,
		MinimumDue:       AccruedInterest(w.loan.PendingPrincipal, rate, decimal.NewFromInt(1), e.policy.CurrencyDecimals),
		InterestCarried:  decimal.Zero,
		ShortfallCarried: decimal.Zero,
		PrincipalAtStart: w.loan.PendingPrincipal,
		InterestPaid:     decimal.Zero,
		PrincipalPaid:    decimal.Zero,
		PenaltyPaid:      decimal.Zero,
		PaidTotal:        decimal.Zero,
		Status:           models.InstallmentStatusPending,
	}

	if len(w.insts) > 0 {
		pidx := w.newestIndex()
		pred := &w.insts[pidx]
		next.Sequence = pred.Sequence + 1
		next.PeriodStart = pred.DueDate
		next.InterestCarried = pred.InterestCarried
		if pred.InterestCarried.Sign() != 0 {
			pred.InterestCarried = decimal.Zero
			w.touch(pidx)
		}
	}

	due, err := DueDateAfter(w.loan.Frequency, next.PeriodStart, 1)
	if err != nil {
		return err
	}
	next.DueDate = due

	w.insts = append(w.insts, next)
	w.created[next.ID] = true
	return nil
}

// refreshShortfall adds the unmet minimum of every older open installment to
// the newest installment's MinimumDue, so the newest shows what it takes to
// be current at its due date. The shortfall is still settled on the older
// installments; older ones hand back whatever they showed before.
func (w *workingSet) refreshShortfall() {
	if len(w.insts) == 0 {
		return
	}
	nidx := w.newestIndex()
	owed := decimal.Zero
	for idx := 0; idx < nidx; idx++ {
		inst := &w.insts[idx]
		if inst.IsOpen() {
			owed = owed.Add(inst.Unmet())
		}
		if inst.ShortfallCarried.Sign() != 0 {
			inst.MinimumDue = inst.MinimumDue.Sub(inst.ShortfallCarried)
			inst.ShortfallCarried = decimal.Zero
			w.touch(idx)
		}
	}

	newest := &w.insts[nidx]
	if newest.ShortfallCarried.Equal(owed) {
		return
	}
	newest.MinimumDue = newest.MinimumDue.Sub(newest.ShortfallCarried).Add(owed)
	newest.ShortfallCarried = owed
	w.touch(nidx)
}

// settle credits an allocation to the open installments oldest first: mora
// up to what each one owes, then interest and principal up to its unmet
// minimum. Whatever is left lands on the newest open installment, or on the
// target when nothing is open. It returns the credited installments in order.
func (w *workingSet) settle(alloc Allocation, penalties []decimal.Decimal, target int, principalBefore decimal.Decimal, paidAt time.Time) []int {
	var credited []int
	credit := func(idx int, penalty, interest, principal decimal.Decimal) {
		inst := &w.insts[idx]
		if !inst.HasPayments() {
			inst.PrincipalAtStart = principalBefore
		}
		inst.PenaltyPaid = inst.PenaltyPaid.Add(penalty)
		inst.InterestPaid = inst.InterestPaid.Add(interest)
		inst.PrincipalPaid = inst.PrincipalPaid.Add(principal)
		inst.PaidTotal = inst.PaidTotal.Add(penalty).Add(interest).Add(principal)
		inst.PaymentDate = &paidAt
		w.touch(idx)
		if len(credited) == 0 || credited[len(credited)-1] != idx {
			credited = append(credited, idx)
		}
	}

	penalty, interest, principal := alloc.Penalty, alloc.Interest, alloc.Principal
	last := target
	for idx := range w.insts {
		if !w.isOpen(idx) {
			continue
		}
		last = idx
		p := decimal.Min(penalty, penalties[idx])
		room := w.insts[idx].Unmet()
		i := decimal.Min(interest, room)
		c := decimal.Min(principal, room.Sub(i))
		if p.Sign() > 0 || i.Sign() > 0 || c.Sign() > 0 {
			credit(idx, p, i, c)
		}
		penalty, interest, principal = penalty.Sub(p), interest.Sub(i), principal.Sub(c)
	}
	if penalty.Sign() > 0 || interest.Sign() > 0 || principal.Sign() > 0 {
		credit(last, penalty, interest, principal)
	}
	return credited
}
