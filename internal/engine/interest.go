package engine

import "github.com/shopspring/decimal"

// RoundMoney rounds half-up to the currency minor unit. Amounts handled by
// the engine are never negative, where decimal's Round is half-up.
func RoundMoney(amount decimal.Decimal, decimals int32) decimal.Decimal {
	return amount.Round(decimals)
}

// AccruedInterest returns simple interest on principal for the given
// fractional periods, rounded once to the currency minor unit.
func AccruedInterest(principal, ratePerPeriod, periods decimal.Decimal, decimals int32) decimal.Decimal {
	if principal.Sign() <= 0 || ratePerPeriod.Sign() <= 0 || periods.Sign() <= 0 {
		return decimal.Zero
	}
	return RoundMoney(principal.Mul(ratePerPeriod).Mul(periods), decimals)
}
