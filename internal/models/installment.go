package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Installment (cuota) is one period of a loan's repayment schedule
type Installment struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_installment_loan_seq" json:"loan_id"`
	Sequence         int             `gorm:"not null;uniqueIndex:idx_installment_loan_seq" json:"sequence"`
	PeriodStart      time.Time       `gorm:"not null" json:"period_start"`
	DueDate          time.Time       `gorm:"not null;index" json:"due_date"`
	MinimumDue       decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"minimum_due"`
	InterestCarried  decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"interest_carried"`
	ShortfallCarried decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"shortfall_carried"`
	PrincipalAtStart decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"principal_at_start"`
	InterestPaid     decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"interest_paid"`
	PrincipalPaid    decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"principal_paid"`
	PenaltyPaid      decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"penalty_paid"`
	PaidTotal        decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"paid_total"`
	PaymentDate      *time.Time      `json:"payment_date"`
	Status           string          `gorm:"size:16;default:PENDING;not null;index" json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Installment
func (Installment) TableName() string {
	return "installments"
}

// Installment status constants
const (
	InstallmentStatusPending   = "PENDING"
	InstallmentStatusPartial   = "PARTIAL"
	InstallmentStatusOverdue   = "OVERDUE"
	InstallmentStatusPaid      = "PAID"
	InstallmentStatusCancelled = "CANCELLED"
)

// IsOpen returns true while the installment can still receive payments
func (i *Installment) IsOpen() bool {
	switch i.Status {
	case InstallmentStatusPending, InstallmentStatusPartial, InstallmentStatusOverdue:
		return true
	}
	return false
}

// MayPay returns true if installment can transition to paid
func (i *Installment) MayPay() bool {
	return i.IsOpen()
}

// MayPayPartial returns true if a short payment can be recorded
func (i *Installment) MayPayPartial() bool {
	return i.Status == InstallmentStatusPending || i.Status == InstallmentStatusOverdue
}

// MayExpire returns true if installment can be flagged as overdue
func (i *Installment) MayExpire() bool {
	return i.Status == InstallmentStatusPending || i.Status == InstallmentStatusPartial
}

// MayCancel returns true if installment can be cancelled
func (i *Installment) MayCancel() bool {
	return i.IsOpen()
}

// Unmet returns the part of the installment's own minimum not yet covered by
// interest and principal. Shortfall carried in from older installments is
// shown in MinimumDue but is settled on those installments, so it is left out.
func (i *Installment) Unmet() decimal.Decimal {
	unmet := i.MinimumDue.Sub(i.ShortfallCarried).Sub(i.InterestPaid).Sub(i.PrincipalPaid)
	if unmet.IsNegative() {
		return decimal.Zero
	}
	return unmet
}

// HasPayments returns true once any payment touched this installment
func (i *Installment) HasPayments() bool {
	return i.PaidTotal.Sign() > 0
}

// InstallmentResponse is the JSON response format for installments
type InstallmentResponse struct {
	ID               uuid.UUID       `json:"id"`
	LoanID           uuid.UUID       `json:"loan_id"`
	Sequence         int             `json:"sequence"`
	PeriodStart      time.Time       `json:"period_start"`
	DueDate          time.Time       `json:"due_date"`
	MinimumDue       decimal.Decimal `json:"minimum_due"`
	InterestCarried  decimal.Decimal `json:"interest_carried"`
	ShortfallCarried decimal.Decimal `json:"shortfall_carried"`
	PrincipalAtStart decimal.Decimal `json:"principal_at_start"`
	InterestPaid     decimal.Decimal `json:"interest_paid"`
	PrincipalPaid    decimal.Decimal `json:"principal_paid"`
	PenaltyPaid      decimal.Decimal `json:"penalty_paid"`
	PaidTotal        decimal.Decimal `json:"paid_total"`
	Unmet            decimal.Decimal `json:"unmet"`
	PaymentDate      *time.Time      `json:"payment_date"`
	Status           string          `json:"status"`
}

// ToResponse converts Installment to InstallmentResponse
func (i *Installment) ToResponse() InstallmentResponse {
	return InstallmentResponse{
		ID:               i.ID,
		LoanID:           i.LoanID,
		Sequence:         i.Sequence,
		PeriodStart:      i.PeriodStart,
		DueDate:          i.DueDate,
		MinimumDue:       i.MinimumDue,
		InterestCarried:  i.InterestCarried,
		ShortfallCarried: i.ShortfallCarried,
		PrincipalAtStart: i.PrincipalAtStart,
		InterestPaid:     i.InterestPaid,
		PrincipalPaid:    i.PrincipalPaid,
		PenaltyPaid:      i.PenaltyPaid,
		PaidTotal:        i.PaidTotal,
		Unmet:            i.Unmet(),
		PaymentDate:      i.PaymentDate,
		Status:           i.Status,
	}
}
