package statemachine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

func TestInstallmentFSM_Transitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		from    string
		event   func(*InstallmentFSM) error
		want    string
		wantErr bool
	}{
		{"pending pays in full", models.InstallmentStatusPending, func(f *InstallmentFSM) error { return f.Pay(ctx) }, models.InstallmentStatusPaid, false},
		{"pending pays short", models.InstallmentStatusPending, func(f *InstallmentFSM) error { return f.PayPartial(ctx) }, models.InstallmentStatusPartial, false},
		{"overdue pays short", models.InstallmentStatusOverdue, func(f *InstallmentFSM) error { return f.PayPartial(ctx) }, models.InstallmentStatusPartial, false},
		{"partial completes", models.InstallmentStatusPartial, func(f *InstallmentFSM) error { return f.Pay(ctx) }, models.InstallmentStatusPaid, false},
		{"partial expires", models.InstallmentStatusPartial, func(f *InstallmentFSM) error { return f.Expire(ctx) }, models.InstallmentStatusOverdue, false},
		{"overdue cancels", models.InstallmentStatusOverdue, func(f *InstallmentFSM) error { return f.Cancel(ctx) }, models.InstallmentStatusCancelled, false},
		{"paid cannot cancel", models.InstallmentStatusPaid, func(f *InstallmentFSM) error { return f.Cancel(ctx) }, models.InstallmentStatusPaid, true},
		{"partial cannot pay short again", models.InstallmentStatusPartial, func(f *InstallmentFSM) error { return f.PayPartial(ctx) }, models.InstallmentStatusPartial, true},
		{"overdue cannot expire again", models.InstallmentStatusOverdue, func(f *InstallmentFSM) error { return f.Expire(ctx) }, models.InstallmentStatusOverdue, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := &models.Installment{Sequence: 1, Status: tt.from}
			err := tt.event(NewInstallmentFSM(inst))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, inst.Status)
		})
	}
}

func TestLoanFSM_Transitions(t *testing.T) {
	ctx := context.Background()

	loan := &models.Loan{Status: models.LoanStatusActive, PendingPrincipal: decimal.NewFromInt(100)}
	f := NewLoanFSM(loan)

	require.NoError(t, f.FallBehind(ctx))
	assert.Equal(t, models.LoanStatusLate, loan.Status)

	require.NoError(t, f.CatchUp(ctx))
	assert.Equal(t, models.LoanStatusActive, loan.Status)

	assert.Error(t, f.Complete(ctx), "pending principal still outstanding")

	loan.PendingPrincipal = decimal.Zero
	require.NoError(t, f.Complete(ctx))
	assert.Equal(t, models.LoanStatusCompleted, loan.Status)

	assert.Error(t, f.Cancel(ctx))
	assert.Error(t, f.FallBehind(ctx))
}

func TestLoanFSM_CancelFromLate(t *testing.T) {
	loan := &models.Loan{Status: models.LoanStatusLate, PendingPrincipal: decimal.NewFromInt(50)}
	f := NewLoanFSM(loan)

	require.NoError(t, f.Cancel(context.Background()))
	assert.Equal(t, models.LoanStatusCancelled, loan.Status)
	assert.True(t, loan.IsClosed())
}
