package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// Loan events
const (
	EventFallBehind = "fall_behind"
	EventCatchUp    = "catch_up"
	EventComplete   = "complete"
)

// LoanFSM wraps a loan with its state machine
type LoanFSM struct {
	loan *models.Loan
	fsm  *fsm.FSM
}

// NewLoanFSM creates a new loan state machine
func NewLoanFSM(loan *models.Loan) *LoanFSM {
	lfsm := &LoanFSM{
		loan: loan,
	}

	lfsm.fsm = fsm.NewFSM(
		loan.Status,
		fsm.Events{
			// active → late
			{Name: EventFallBehind, Src: []string{models.LoanStatusActive}, Dst: models.LoanStatusLate},

			// late → active
			{Name: EventCatchUp, Src: []string{models.LoanStatusLate}, Dst: models.LoanStatusActive},

			// active/late → completed (pending principal is zero)
			{Name: EventComplete, Src: []string{models.LoanStatusActive, models.LoanStatusLate}, Dst: models.LoanStatusCompleted},

			// active/late → cancelled
			{Name: EventCancel, Src: []string{models.LoanStatusActive, models.LoanStatusLate}, Dst: models.LoanStatusCancelled},
		},
		fsm.Callbacks{},
	)

	return lfsm
}

// FallBehind transitions loan to late state
func (l *LoanFSM) FallBehind(ctx context.Context) error {
	if !l.loan.MayFallBehind() {
		return fmt.Errorf("loan cannot fall behind in current state: %s", l.loan.Status)
	}
	return l.fire(ctx, EventFallBehind)
}

// CatchUp transitions a late loan back to active
func (l *LoanFSM) CatchUp(ctx context.Context) error {
	if !l.loan.MayCatchUp() {
		return fmt.Errorf("loan cannot catch up in current state: %s", l.loan.Status)
	}
	return l.fire(ctx, EventCatchUp)
}

// Complete transitions loan to completed state
func (l *LoanFSM) Complete(ctx context.Context) error {
	if !l.loan.MayComplete() {
		return fmt.Errorf("loan cannot be completed: pending principal is %s", l.loan.PendingPrincipal.String())
	}
	return l.fire(ctx, EventComplete)
}

// Cancel transitions loan to cancelled state
func (l *LoanFSM) Cancel(ctx context.Context) error {
	if !l.loan.MayCancel() {
		return fmt.Errorf("loan cannot be cancelled in current state: %s", l.loan.Status)
	}
	return l.fire(ctx, EventCancel)
}

func (l *LoanFSM) fire(ctx context.Context, event string) error {
	if err := l.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("failed to %s loan: %w", event, err)
	}
	l.loan.Status = l.fsm.Current()
	return nil
}

// Current returns the current state
func (l *LoanFSM) Current() string {
	return l.fsm.Current()
}

// Can checks if a transition is possible
func (l *LoanFSM) Can(event string) bool {
	return l.fsm.Can(event)
}
