package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Loan represents a simple-interest loan granted to a client
type Loan struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID          uuid.UUID           `gorm:"type:uuid;not null;index" json:"client_id"`
	OriginalPrincipal decimal.Decimal     `gorm:"type:numeric(18,4);not null" json:"original_principal"`
	PendingPrincipal  decimal.Decimal     `gorm:"type:numeric(18,4);not null" json:"pending_principal"`
	InterestRate      decimal.NullDecimal `gorm:"type:numeric(10,6)" json:"interest_rate"`
	PenaltyRate       decimal.NullDecimal `gorm:"type:numeric(10,6)" json:"penalty_rate"`
	Frequency         string              `gorm:"size:16;not null" json:"frequency"`
	Currency          string              `gorm:"size:3;default:HNL;not null" json:"currency"`
	StartDate         time.Time           `gorm:"not null;index" json:"start_date"`
	LastPaymentDate   *time.Time          `json:"last_payment_date"`
	InterestPaid      decimal.Decimal     `gorm:"type:numeric(18,4);not null;default:0" json:"interest_paid"`
	PrincipalPaid     decimal.Decimal     `gorm:"type:numeric(18,4);not null;default:0" json:"principal_paid"`
	PenaltyPaid       decimal.Decimal     `gorm:"type:numeric(18,4);not null;default:0" json:"penalty_paid"`
	Status            string              `gorm:"size:16;default:ACTIVE;not null;index" json:"status"`
	Version           int64               `gorm:"not null;default:0" json:"version"`
	Note              *string             `gorm:"type:text" json:"note"`
	ClosedAt          *time.Time          `json:"closed_at"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`

	// Associations
	Client       Client        `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Installments []Installment `gorm:"foreignKey:LoanID" json:"installments,omitempty"`
	Payments     []Payment     `gorm:"foreignKey:LoanID" json:"payments,omitempty"`
}

// TableName specifies the table name for Loan
func (Loan) TableName() string {
	return "loans"
}

// Loan status constants
const (
	LoanStatusActive    = "ACTIVE"
	LoanStatusLate      = "LATE"
	LoanStatusCompleted = "COMPLETED"
	LoanStatusCancelled = "CANCELLED"
)

// Payment frequency constants
const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

// IsClosed returns true once the loan reached a terminal state
func (l *Loan) IsClosed() bool {
	return l.Status == LoanStatusCompleted || l.Status == LoanStatusCancelled
}

// MayFallBehind returns true if loan can be flagged as late
func (l *Loan) MayFallBehind() bool {
	return l.Status == LoanStatusActive
}

// MayCatchUp returns true if a late loan can go back to active
func (l *Loan) MayCatchUp() bool {
	return l.Status == LoanStatusLate
}

// MayComplete returns true if the loan has nothing left to collect
func (l *Loan) MayComplete() bool {
	return !l.IsClosed() && l.PendingPrincipal.Sign() == 0
}

// MayCancel returns true if loan can be cancelled
func (l *Loan) MayCancel() bool {
	return !l.IsClosed()
}

// EffectiveInterestRate returns the loan override or the given base rate
func (l *Loan) EffectiveInterestRate(base decimal.Decimal) decimal.Decimal {
	if l.InterestRate.Valid {
		return l.InterestRate.Decimal
	}
	return base
}

// EffectivePenaltyRate returns the loan override or the given base rate
func (l *Loan) EffectivePenaltyRate(base decimal.Decimal) decimal.Decimal {
	if l.PenaltyRate.Valid {
		return l.PenaltyRate.Decimal
	}
	return base
}

// LoanResponse is the JSON response format for loans
type LoanResponse struct {
	ID                uuid.UUID       `json:"id"`
	ClientID          uuid.UUID       `json:"client_id"`
	ClientName        string          `json:"client_name,omitempty"`
	ClientIdentity    string          `json:"client_identity,omitempty"`
	OriginalPrincipal decimal.Decimal `json:"original_principal"`
	PendingPrincipal  decimal.Decimal `json:"pending_principal"`
	InterestRate      *string         `json:"interest_rate"`
	PenaltyRate       *string         `json:"penalty_rate"`
	Frequency         string          `json:"frequency"`
	Currency          string          `json:"currency"`
	StartDate         time.Time       `json:"start_date"`
	LastPaymentDate   *time.Time      `json:"last_payment_date"`
	InterestPaid      decimal.Decimal `json:"interest_paid"`
	PrincipalPaid     decimal.Decimal `json:"principal_paid"`
	PenaltyPaid       decimal.Decimal `json:"penalty_paid"`
	Status            string          `json:"status"`
	Note              *string         `json:"note"`
	ClosedAt          *time.Time      `json:"closed_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	Installments []InstallmentResponse `json:"installments,omitempty"`
}

// ToResponse converts Loan to LoanResponse
func (l *Loan) ToResponse() LoanResponse {
	resp := LoanResponse{
		ID:                l.ID,
		ClientID:          l.ClientID,
		OriginalPrincipal: l.OriginalPrincipal,
		PendingPrincipal:  l.PendingPrincipal,
		Frequency:         l.Frequency,
		Currency:          l.Currency,
		StartDate:         l.StartDate,
		LastPaymentDate:   l.LastPaymentDate,
		InterestPaid:      l.InterestPaid,
		PrincipalPaid:     l.PrincipalPaid,
		PenaltyPaid:       l.PenaltyPaid,
		Status:            l.Status,
		Note:              l.Note,
		ClosedAt:          l.ClosedAt,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}

	if l.InterestRate.Valid {
		rate := l.InterestRate.Decimal.String()
		resp.InterestRate = &rate
	}
	if l.PenaltyRate.Valid {
		rate := l.PenaltyRate.Decimal.String()
		resp.PenaltyRate = &rate
	}

	if l.Client.ID != uuid.Nil {
		resp.ClientName = l.Client.FullName
		resp.ClientIdentity = MaskIdentity(l.Client.Identity)
	}

	for i := range l.Installments {
		resp.Installments = append(resp.Installments, l.Installments[i].ToResponse())
	}

	return resp
}
