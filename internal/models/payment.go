package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is an immutable record of cash received against a loan. The ID is
// supplied by the caller and doubles as the idempotency key.
type Payment struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"loan_id"`
	InstallmentID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"installment_id"`
	AmountTendered   decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"amount_tendered"`
	PenaltyPortion   decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"penalty_portion"`
	InterestPortion  decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"interest_portion"`
	PrincipalPortion decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"principal_portion"`
	Change           decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"change"`
	ElapsedDays      decimal.Decimal `gorm:"type:numeric(12,4);not null;default:0" json:"elapsed_days"`
	PrincipalBefore  decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"principal_before"`
	PrincipalAfter   decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"principal_after"`
	PaidAt           time.Time       `gorm:"not null;index" json:"paid_at"`
	Method           string          `gorm:"size:16;default:cash;not null" json:"method"`
	Note             *string         `gorm:"type:text" json:"note"`
	Strategy         string          `gorm:"size:64;not null" json:"strategy"`
	Extraordinary    bool            `gorm:"not null;default:false" json:"extraordinary"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`

	// Associations
	Loan        Loan        `gorm:"foreignKey:LoanID" json:"-"`
	Installment Installment `gorm:"foreignKey:InstallmentID" json:"-"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// Payment method constants
const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
	PaymentMethodDeposit  = "deposit"
	PaymentMethodOther    = "other"
)

// ValidPaymentMethod reports whether m is one of the accepted methods
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodDeposit, PaymentMethodOther:
		return true
	}
	return false
}

// Applied returns the part of the tendered amount that stayed with the loan
func (p *Payment) Applied() decimal.Decimal {
	return p.PenaltyPortion.Add(p.InterestPortion).Add(p.PrincipalPortion)
}

// PaymentResponse is the JSON response format for payments
type PaymentResponse struct {
	ID               uuid.UUID       `json:"id"`
	LoanID           uuid.UUID       `json:"loan_id"`
	InstallmentID    uuid.UUID       `json:"installment_id"`
	InstallmentSeq   int             `json:"installment_sequence,omitempty"`
	AmountTendered   decimal.Decimal `json:"amount_tendered"`
	PenaltyPortion   decimal.Decimal `json:"penalty_portion"`
	InterestPortion  decimal.Decimal `json:"interest_portion"`
	PrincipalPortion decimal.Decimal `json:"principal_portion"`
	Change           decimal.Decimal `json:"change"`
	ElapsedDays      decimal.Decimal `json:"elapsed_days"`
	PrincipalBefore  decimal.Decimal `json:"principal_before"`
	PrincipalAfter   decimal.Decimal `json:"principal_after"`
	PaidAt           time.Time       `json:"paid_at"`
	Method           string          `json:"method"`
	Note             *string         `json:"note"`
	Strategy         string          `json:"strategy"`
	Extraordinary    bool            `json:"extraordinary"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ToResponse converts Payment to PaymentResponse
func (p *Payment) ToResponse() PaymentResponse {
	resp := PaymentResponse{
		ID:               p.ID,
		LoanID:           p.LoanID,
		InstallmentID:    p.InstallmentID,
		AmountTendered:   p.AmountTendered,
		PenaltyPortion:   p.PenaltyPortion,
		InterestPortion:  p.InterestPortion,
		PrincipalPortion: p.PrincipalPortion,
		Change:           p.Change,
		ElapsedDays:      p.ElapsedDays,
		PrincipalBefore:  p.PrincipalBefore,
		PrincipalAfter:   p.PrincipalAfter,
		PaidAt:           p.PaidAt,
		Method:           p.Method,
		Note:             p.Note,
		Strategy:         p.Strategy,
		Extraordinary:    p.Extraordinary,
		CreatedAt:        p.CreatedAt,
	}
	if p.Installment.ID != uuid.Nil {
		resp.InstallmentSeq = p.Installment.Sequence
	}
	return resp
}
