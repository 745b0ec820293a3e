package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// Penalty computes mora on an overdue amount. It is zero unless the
// installment is strictly past due.
func Penalty(overdueAmount, penaltyRatePerPeriod, overduePeriods decimal.Decimal, decimals int32) decimal.Decimal {
	if overduePeriods.Sign() <= 0 {
		return decimal.Zero
	}
	return AccruedInterest(overdueAmount, penaltyRatePerPeriod, overduePeriods, decimals)
}

// penaltyDue returns what is still owed in mora for an installment at ts.
// It is recomputed from the current unmet minimum each time, so it never
// compounds, and whatever mora the installment already collected is
// subtracted.
func penaltyDue(inst *models.Installment, frequency string, rate decimal.Decimal, ts time.Time, decimals int32) (decimal.Decimal, error) {
	if !ts.After(inst.DueDate) {
		return decimal.Zero, nil
	}
	overdue, err := PeriodsElapsed(frequency, inst.DueDate, ts)
	if err != nil {
		return decimal.Zero, err
	}
	due := Penalty(inst.Unmet(), rate, overdue, decimals).Sub(inst.PenaltyPaid)
	if due.IsNegative() {
		return decimal.Zero, nil
	}
	return due, nil
}
