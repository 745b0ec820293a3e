package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/statemachine"
)

// arrearsProfile summarizes how far behind a loan is as of a date.
type arrearsProfile struct {
	// MaxOverduePeriods is the longest time, in periods, any installment has
	// been past due with an unmet minimum.
	MaxOverduePeriods decimal.Decimal
	// LongestRun is the longest streak of consecutive late installments.
	LongestRun int
	// Late counts late installments.
	Late int
}

func (w *workingSet) arrears(asOf time.Time) (arrearsProfile, error) {
	profile := arrearsProfile{MaxOverduePeriods: decimal.Zero}
	run := 0
	for idx := range w.insts {
		if !w.isLate(idx, asOf) {
			run = 0
			continue
		}
		periods, err := PeriodsElapsed(w.loan.Frequency, w.insts[idx].DueDate, asOf)
		if err != nil {
			return arrearsProfile{}, err
		}
		if periods.GreaterThan(profile.MaxOverduePeriods) {
			profile.MaxOverduePeriods = periods
		}
		run++
		profile.Late++
		if run > profile.LongestRun {
			profile.LongestRun = run
		}
	}
	return profile, nil
}

func (w *workingSet) fireLoan(ctx context.Context, event string) error {
	from := w.loan.Status
	f := statemachine.NewLoanFSM(&w.loan)

	var err error
	switch event {
	case statemachine.EventFallBehind:
		err = f.FallBehind(ctx)
	case statemachine.EventCatchUp:
		err = f.CatchUp(ctx)
	case statemachine.EventComplete:
		err = f.Complete(ctx)
	case statemachine.EventCancel:
		err = f.Cancel(ctx)
	default:
		err = fmt.Errorf("unknown loan event %q", event)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}

	w.record(models.TransitionEntityLoan, w.loan.ID, event, from, w.loan.Status)
	return nil
}

// settleLoanState moves the loan between ACTIVE, LATE and COMPLETED from the
// state of its installments as of asOf.
func (e *Engine) settleLoanState(ctx context.Context, w *workingSet, asOf time.Time) error {
	if w.loan.IsClosed() {
		return nil
	}

	if w.loan.PendingPrincipal.Sign() == 0 {
		if err := w.fireLoan(ctx, statemachine.EventComplete); err != nil {
			return err
		}
		closedAt := asOf
		w.loan.ClosedAt = &closedAt
		return nil
	}

	profile, err := w.arrears(asOf)
	if err != nil {
		return err
	}
	late := profile.MaxOverduePeriods.GreaterThan(e.policy.GracePeriods)

	switch {
	case late && w.loan.MayFallBehind():
		return w.fireLoan(ctx, statemachine.EventFallBehind)
	case !late && w.loan.MayCatchUp():
		return w.fireLoan(ctx, statemachine.EventCatchUp)
	}
	return nil
}
