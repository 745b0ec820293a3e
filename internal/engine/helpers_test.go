package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sjperalta/fintera-prestamos/internal/config"
	"github.com/sjperalta/fintera-prestamos/internal/models"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return t0.AddDate(0, 0, n)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func newTestEngine() *Engine {
	return New(config.DefaultPolicy(), PenaltyFirst())
}

// openLoan creates a monthly loan at t0 using the default 10% rate.
func openLoan(t *testing.T, e *Engine, principal string) LoanSnapshot {
	t.Helper()
	res, err := e.OpenLoan(context.Background(), models.Loan{
		ClientID:          uuid.New(),
		OriginalPrincipal: dec(principal),
		Frequency:         models.FrequencyMonthly,
		StartDate:         t0,
	})
	require.NoError(t, err)
	return LoanSnapshot{Loan: res.Loan, Installments: res.Created}
}

// merge folds engine output into a new snapshot, the way a repository would
// after committing it.
func merge(snap LoanSnapshot, ch Changes, paymentID *uuid.UUID) LoanSnapshot {
	next := LoanSnapshot{Loan: ch.Loan, PaymentIDs: append([]uuid.UUID{}, snap.PaymentIDs...)}
	byID := make(map[uuid.UUID]models.Installment, len(ch.Updated))
	for _, inst := range ch.Updated {
		byID[inst.ID] = inst
	}
	for _, inst := range snap.Installments {
		if updated, ok := byID[inst.ID]; ok {
			inst = updated
		}
		next.Installments = append(next.Installments, inst)
	}
	next.Installments = append(next.Installments, ch.Created...)
	if paymentID != nil {
		next.PaymentIDs = append(next.PaymentIDs, *paymentID)
	}
	return next
}

func pay(t *testing.T, e *Engine, snap LoanSnapshot, amount string, at time.Time) (LoanSnapshot, *AllocationResult) {
	t.Helper()
	intent := PaymentIntent{PaymentID: uuid.New(), LoanID: snap.Loan.ID, Amount: dec(amount), Timestamp: at}
	res, err := e.ApplyPayment(context.Background(), snap, intent)
	require.NoError(t, err)
	return merge(snap, res.Changes, &intent.PaymentID), res
}

func advanceTo(t *testing.T, e *Engine, snap LoanSnapshot, at time.Time) LoanSnapshot {
	t.Helper()
	res, err := e.AdvanceSchedule(context.Background(), snap, at)
	require.NoError(t, err)
	return merge(snap, res.Changes, nil)
}

func bySeq(snap LoanSnapshot, seq int) models.Installment {
	for _, inst := range snap.Installments {
		if inst.Sequence == seq {
			return inst
		}
	}
	return models.Installment{}
}
