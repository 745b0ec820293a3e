package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Allocation strategy names
const (
	StrategyPenaltyFirst  = "mora-interes-capital"
	StrategyInterestFirst = "interes-mora-capital"
)

// Dues is what a payment can be applied to, each already rounded.
type Dues struct {
	Penalty   decimal.Decimal
	Interest  decimal.Decimal
	Principal decimal.Decimal
}

// Total returns the amount needed to cover every due in full.
func (d Dues) Total() decimal.Decimal {
	return d.Penalty.Add(d.Interest).Add(d.Principal)
}

// Allocation is the split of a single payment.
type Allocation struct {
	Penalty   decimal.Decimal
	Interest  decimal.Decimal
	Principal decimal.Decimal
	Change    decimal.Decimal
}

// Applied returns the part of the payment kept by the loan.
func (a Allocation) Applied() decimal.Decimal {
	return a.Penalty.Add(a.Interest).Add(a.Principal)
}

// AllocationStrategy decides the order in which a payment covers its dues.
type AllocationStrategy interface {
	Name() string
	Allocate(amount decimal.Decimal, dues Dues) (Allocation, error)
}

type bucket int

const (
	bucketPenalty bucket = iota
	bucketInterest
	bucketPrincipal
)

// orderedStrategy fills dues in a fixed order, each capped at its need and at
// what is left of the payment. Whatever is left at the end is change.
type orderedStrategy struct {
	name  string
	order [3]bucket
}

// PenaltyFirst covers mora, then interest, then principal.
func PenaltyFirst() AllocationStrategy {
	return orderedStrategy{name: StrategyPenaltyFirst, order: [3]bucket{bucketPenalty, bucketInterest, bucketPrincipal}}
}

// InterestFirst covers interest, then mora, then principal.
func InterestFirst() AllocationStrategy {
	return orderedStrategy{name: StrategyInterestFirst, order: [3]bucket{bucketInterest, bucketPenalty, bucketPrincipal}}
}

// StrategyByName resolves a configured strategy name.
func StrategyByName(name string) (AllocationStrategy, error) {
	switch name {
	case "", StrategyPenaltyFirst:
		return PenaltyFirst(), nil
	case StrategyInterestFirst:
		return InterestFirst(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

func (s orderedStrategy) Name() string {
	return s.name
}

func (s orderedStrategy) Allocate(amount decimal.Decimal, dues Dues) (Allocation, error) {
	if amount.Sign() <= 0 {
		return Allocation{}, fmt.Errorf("%w: %s", ErrInvalidPaymentAmount, amount.String())
	}
	if dues.Penalty.IsNegative() || dues.Interest.IsNegative() || dues.Principal.IsNegative() {
		return Allocation{}, fmt.Errorf("%w: negative due in allocation input", ErrInvariantViolation)
	}

	alloc := Allocation{Penalty: decimal.Zero, Interest: decimal.Zero, Principal: decimal.Zero}
	remaining := amount
	for _, b := range s.order {
		var need decimal.Decimal
		switch b {
		case bucketPenalty:
			need = dues.Penalty
		case bucketInterest:
			need = dues.Interest
		case bucketPrincipal:
			need = dues.Principal
		}
		portion := decimal.Min(need, remaining)
		remaining = remaining.Sub(portion)
		switch b {
		case bucketPenalty:
			alloc.Penalty = portion
		case bucketInterest:
			alloc.Interest = portion
		case bucketPrincipal:
			alloc.Principal = portion
		}
	}
	alloc.Change = remaining

	if !alloc.Applied().Add(alloc.Change).Equal(amount) {
		return Allocation{}, fmt.Errorf("%w: allocation %s + change %s != amount %s",
			ErrInvariantViolation, alloc.Applied(), alloc.Change, amount)
	}
	return alloc, nil
}
