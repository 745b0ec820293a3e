package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/models"
)

func TestCreateLoan(t *testing.T) {
	env := newTestEnv(t, t0)
	loan := env.openLoan(t, "1000")

	assert.Equal(t, models.LoanStatusActive, loan.Status)
	assert.Equal(t, "HNL", loan.Currency)
	requireMoney(t, "1000", loan.PendingPrincipal)
	require.Len(t, loan.Installments, 1)
	assert.Equal(t, 1, loan.Installments[0].Sequence)
	requireMoney(t, "100", loan.Installments[0].MinimumDue)

	stored := env.store.loan(loan.ID)
	assert.Equal(t, loan.ID, stored.ID)
	assert.Len(t, env.store.installments(loan.ID), 1)
}

func TestCreateLoan_Validation(t *testing.T) {
	env := newTestEnv(t, t0)
	client := env.store.addClient("Jose Perez", "0801199000001")
	negative := dec("-0.01")

	tests := []struct {
		name    string
		input   CreateLoanInput
		wantErr error
	}{
		{
			name:    "unknown client",
			input:   CreateLoanInput{ClientID: uuid.New(), Principal: dec("1000"), Frequency: "monthly"},
			wantErr: ErrNotFound,
		},
		{
			name:    "negative interest override",
			input:   CreateLoanInput{ClientID: client.ID, Principal: dec("1000"), Frequency: "monthly", InterestRate: &negative},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "negative penalty override",
			input:   CreateLoanInput{ClientID: client.ID, Principal: dec("1000"), Frequency: "monthly", PenaltyRate: &negative},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "unknown frequency",
			input:   CreateLoanInput{ClientID: client.ID, Principal: dec("1000"), Frequency: "yearly"},
			wantErr: engine.ErrUnknownFrequency,
		},
		{
			name:    "zero principal",
			input:   CreateLoanInput{ClientID: client.ID, Principal: dec("0"), Frequency: "monthly"},
			wantErr: engine.ErrInvalidPaymentAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.loans.CreateLoan(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, env.store.loans)
}

func TestRegisterPayment_PersistsAllocation(t *testing.T) {
	env := newTestEnv(t, t0)
	loan := env.openLoan(t, "1000")

	res := env.pay(t, loan.ID, "150", day(30))

	requireMoney(t, "0", res.Payment.PenaltyPortion)
	requireMoney(t, "100", res.Payment.InterestPortion)
	requireMoney(t, "50", res.Payment.PrincipalPortion)

	stored := env.store.loan(loan.ID)
	requireMoney(t, "950", stored.PendingPrincipal)
	requireMoney(t, "50", stored.PrincipalPaid)
	assert.Equal(t, int64(1), stored.Version)

	insts := env.store.installments(loan.ID)
	require.Len(t, insts, 2)
	assert.Equal(t, models.InstallmentStatusPaid, insts[0].Status)
	assert.Equal(t, models.InstallmentStatusPending, insts[1].Status)

	payments, err := env.loans.Payments(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, res.Payment.ID, payments[0].ID)

	history, err := env.loans.History(context.Background(), loan.ID)
	require.NoError(t, err)
	var payTransitions int
	for _, tr := range history {
		if tr.PaymentID != nil && *tr.PaymentID == res.Payment.ID {
			payTransitions++
		}
	}
	assert.Equal(t, 1, payTransitions, "PENDING -> PAID recorded against the payment")
}

func TestRegisterPayment_DuplicateLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t, t0)
	loan := env.openLoan(t, "1000")

	at := day(30)
	input := RegisterPaymentInput{PaymentID: uuid.New(), LoanID: loan.ID, Amount: dec("150"), PaidAt: &at}
	_, err := env.loans.RegisterPayment(context.Background(), input)
	require.NoError(t, err)
	before := env.store.loan(loan.ID)
	writes := env.store.writes

	_, err = env.loans.RegisterPayment(context.Background(), input)
	assert.ErrorIs(t, err, engine.ErrDuplicatePayment)
	assert.Equal(t, before, env.store.loan(loan.ID))
	assert.Equal(t, writes, env.store.writes)
}

func TestRegisterPayment_DuplicateAcrossLoans(t *testing.T) {
	env := newTestEnv(t, t0)
	first := env.openLoan(t, "1000")
	second := env.openLoan(t, "500")

	at := day(30)
	id := uuid.New()
	_, err := env.loans.RegisterPayment(context.Background(), RegisterPaymentInput{PaymentID: id, LoanID: first.ID, Amount: dec("150"), PaidAt: &at})
	require.NoError(t, err)

	// the second loan's snapshot does not know the id; the key check catches it
	_, err = env.loans.RegisterPayment(context.Background(), RegisterPaymentInput{PaymentID: id, LoanID: second.ID, Amount: dec("60"), PaidAt: &at})
	assert.ErrorIs(t, err, engine.ErrDuplicatePayment)
	assert.Equal(t, int64(0), env.store.loan(second.ID).Version)
}

func TestRegisterPayment_Errors(t *testing.T) {
	env := newTestEnv(t, t0)
	loan := env.openLoan(t, "1000")
	at := day(10)

	tests := []struct {
		name    string
		input   RegisterPaymentInput
		wantErr error
	}{
		{"unknown loan", RegisterPaymentInput{PaymentID: uuid.New(), LoanID: uuid.New(), Amount: dec("10"), PaidAt: &at}, engine.ErrUnknownLoanOrInstallment},
		{"zero amount", RegisterPaymentInput{PaymentID: uuid.New(), LoanID: loan.ID, Amount: dec("0"), PaidAt: &at}, engine.ErrInvalidPaymentAmount},
		{"sub-cent amount", RegisterPaymentInput{PaymentID: uuid.New(), LoanID: loan.ID, Amount: dec("10.005"), PaidAt: &at}, engine.ErrInvalidPaymentAmount},
		{"missing id", RegisterPaymentInput{LoanID: loan.ID, Amount: dec("10"), PaidAt: &at}, engine.ErrInvalidPaymentID},
		{"bad method", RegisterPaymentInput{PaymentID: uuid.New(), LoanID: loan.ID, Amount: dec("10"), PaidAt: &at, Method: "bitcoin"}, engine.ErrInvalidPaymentMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.loans.RegisterPayment(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, int64(0), env.store.loan(loan.ID).Version)
}

func TestRegisterPayment_UsesClockWhenNoTimestamp(t *testing.T) {
	env := newTestEnv(t, day(30))
	loan := env.openLoan(t, "1000")

	res, err := env.loans.RegisterPayment(context.Background(), RegisterPaymentInput{
		PaymentID: uuid.New(),
		LoanID:    loan.ID,
		Amount:    dec("150"),
		Method:    " Transfer ",
	})
	require.NoError(t, err)
	assert.Equal(t, day(30), res.Payment.PaidAt)
	assert.Equal(t, models.PaymentMethodTransfer, res.Payment.Method)
	requireMoney(t, "100", res.Payment.InterestPortion)
}

func TestRegisterPayment_ConcurrentPaymentsKeepIdentity(t *testing.T) {
	env := newTestEnv(t, t0)
	loan := env.openLoan(t, "1000")

	var wg sync.WaitGroup
	at := day(5)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.loans.RegisterPayment(context.Background(), RegisterPaymentInput{
				PaymentID: uuid.New(), LoanID: loan.ID, Amount: dec("25"), PaidAt: &at,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored := env.store.loan(loan.ID)
	assert.Equal(t, int64(8), stored.Version)
	assert.True(t, stored.OriginalPrincipal.Sub(stored.PendingPrincipal).Equal(stored.PrincipalPaid))
	assert.True(t, stored.InterestPaid.Add(stored.PrincipalPaid).Add(stored.PenaltyPaid).Equal(dec("200")))
}

func TestAdvance(t *testing.T) {
	env := newTestEnv(t, t0)
	loan := env.openLoan(t, "1000")
	at := day(40)

	res, err := env.loans.Advance(context.Background(), loan.ID, &at)
	require.NoError(t, err)
	assert.False(t, res.Empty())

	stored := env.store.loan(loan.ID)
	assert.Equal(t, models.LoanStatusLate, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
	insts := env.store.installments(loan.ID)
	require.Len(t, insts, 2)
	assert.Equal(t, models.InstallmentStatusOverdue, insts[0].Status)

	// same instant again writes nothing
	res, err = env.loans.Advance(context.Background(), loan.ID, &at)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, int64(1), env.store.loan(loan.ID).Version)
}

func TestAdvanceAll(t *testing.T) {
	env := newTestEnv(t, day(40))
	late := env.openLoan(t, "1000")
	paid := env.openLoan(t, "100")
	env.pay(t, paid.ID, "100", t0)

	summary, err := env.loans.AdvanceAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed, "closed loans are skipped")
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, models.LoanStatusLate, env.store.loan(late.ID).Status)
	assert.Equal(t, models.LoanStatusCompleted, env.store.loan(paid.ID).Status)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t, day(3))
	loan := env.openLoan(t, "1000")

	cancelled, err := env.loans.Cancel(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.ClosedAt)

	for _, inst := range env.store.installments(loan.ID) {
		assert.Equal(t, models.InstallmentStatusCancelled, inst.Status)
	}

	_, err = env.loans.Cancel(context.Background(), loan.ID)
	assert.ErrorIs(t, err, engine.ErrLoanClosed)

	at := day(4)
	_, err = env.loans.RegisterPayment(context.Background(), RegisterPaymentInput{PaymentID: uuid.New(), LoanID: loan.ID, Amount: dec("10"), PaidAt: &at})
	assert.ErrorIs(t, err, engine.ErrLoanClosed)
}

func TestQuote_DoesNotWrite(t *testing.T) {
	env := newTestEnv(t, t0)
	loan := env.openLoan(t, "1000")
	writes := env.store.writes
	at := day(40)

	quote, err := env.loans.Quote(context.Background(), loan.ID, &at)
	require.NoError(t, err)

	requireMoney(t, "1.67", quote.Penalty)
	requireMoney(t, "133.33", quote.Interest)
	requireMoney(t, "1000", quote.Principal)
	requireMoney(t, "1135", quote.Total)
	assert.Equal(t, writes, env.store.writes)
	assert.Equal(t, models.LoanStatusActive, env.store.loan(loan.ID).Status)

	_, err = env.loans.Quote(context.Background(), uuid.New(), &at)
	assert.ErrorIs(t, err, engine.ErrUnknownLoanOrInstallment)
}

func TestFindByID_NotFound(t *testing.T) {
	env := newTestEnv(t, t0)
	_, err := env.loans.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, engine.ErrUnknownLoanOrInstallment)

	_, err = env.loans.FindPayment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
