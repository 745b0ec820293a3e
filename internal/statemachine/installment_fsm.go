package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// Installment events
const (
	EventPay        = "pay"
	EventPayPartial = "pay_partial"
	EventExpire     = "expire"
	EventCancel     = "cancel"
)

// InstallmentFSM wraps an installment with its state machine
type InstallmentFSM struct {
	installment *models.Installment
	fsm         *fsm.FSM
}

// NewInstallmentFSM creates a new installment state machine
func NewInstallmentFSM(installment *models.Installment) *InstallmentFSM {
	ifsm := &InstallmentFSM{
		installment: installment,
	}

	ifsm.fsm = fsm.NewFSM(
		installment.Status,
		fsm.Events{
			// pending/partial/overdue → paid (minimum covered)
			{Name: EventPay, Src: []string{models.InstallmentStatusPending, models.InstallmentStatusPartial, models.InstallmentStatusOverdue}, Dst: models.InstallmentStatusPaid},

			// pending/overdue → partial (minimum not covered)
			{Name: EventPayPartial, Src: []string{models.InstallmentStatusPending, models.InstallmentStatusOverdue}, Dst: models.InstallmentStatusPartial},

			// pending/partial → overdue (due date passed with unmet minimum)
			{Name: EventExpire, Src: []string{models.InstallmentStatusPending, models.InstallmentStatusPartial}, Dst: models.InstallmentStatusOverdue},

			// any open state → cancelled
			{Name: EventCancel, Src: []string{models.InstallmentStatusPending, models.InstallmentStatusPartial, models.InstallmentStatusOverdue}, Dst: models.InstallmentStatusCancelled},
		},
		fsm.Callbacks{},
	)

	return ifsm
}

// Pay transitions installment to paid state
func (i *InstallmentFSM) Pay(ctx context.Context) error {
	if !i.installment.MayPay() {
		return fmt.Errorf("installment cannot be paid in current state: %s", i.installment.Status)
	}
	return i.fire(ctx, EventPay)
}

// PayPartial records a payment that left part of the minimum unmet
func (i *InstallmentFSM) PayPartial(ctx context.Context) error {
	if !i.installment.MayPayPartial() {
		return fmt.Errorf("installment cannot be partially paid in current state: %s", i.installment.Status)
	}
	return i.fire(ctx, EventPayPartial)
}

// Expire transitions installment to overdue state
func (i *InstallmentFSM) Expire(ctx context.Context) error {
	if !i.installment.MayExpire() {
		return fmt.Errorf("installment cannot expire in current state: %s", i.installment.Status)
	}
	return i.fire(ctx, EventExpire)
}

// Cancel transitions installment to cancelled state
func (i *InstallmentFSM) Cancel(ctx context.Context) error {
	if !i.installment.MayCancel() {
		return fmt.Errorf("installment cannot be cancelled in current state: %s", i.installment.Status)
	}
	return i.fire(ctx, EventCancel)
}

func (i *InstallmentFSM) fire(ctx context.Context, event string) error {
	if err := i.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("failed to %s installment %d: %w", event, i.installment.Sequence, err)
	}
	i.installment.Status = i.fsm.Current()
	return nil
}

// Current returns the current state
func (i *InstallmentFSM) Current() string {
	return i.fsm.Current()
}

// Can checks if a transition is possible
func (i *InstallmentFSM) Can(event string) bool {
	return i.fsm.Can(event)
}
