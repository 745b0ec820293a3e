package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ArrearsRow is one open loan in the arrears portfolio report
type ArrearsRow struct {
	LoanID              uuid.UUID       `json:"loan_id"`
	ClientID            uuid.UUID       `json:"client_id"`
	ClientName          string          `json:"client_name"`
	ClientIdentity      string          `json:"client_identity"`
	ClientPhone         string          `json:"client_phone"`
	Classification      string          `json:"classification"`
	LoanStatus          string          `json:"loan_status"`
	Frequency           string          `json:"frequency"`
	Currency            string          `json:"currency"`
	PendingPrincipal    decimal.Decimal `json:"pending_principal"`
	OverdueInstallments int             `json:"overdue_installments"`
	OverdueAmount       decimal.Decimal `json:"overdue_amount"`
	OldestDueDate       *time.Time      `json:"oldest_due_date"`
	LastPaymentDate     *time.Time      `json:"last_payment_date"`
}

// DaysOverdue returns whole days between the oldest overdue due date and asOf
func (r *ArrearsRow) DaysOverdue(asOf time.Time) int {
	if r.OldestDueDate == nil || !asOf.After(*r.OldestDueDate) {
		return 0
	}
	return int(asOf.Sub(*r.OldestDueDate).Hours() / 24)
}

// StatusCount is a row of a grouped count
type StatusCount struct {
	Status string          `json:"status"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// PortfolioSummary aggregates the whole loan book
type PortfolioSummary struct {
	Currency           string          `json:"currency"`
	LoansByStatus      []StatusCount   `json:"loans_by_status"`
	ClientsByStatus    []StatusCount   `json:"clients_by_classification"`
	OriginalPrincipal  decimal.Decimal `json:"original_principal"`
	PendingPrincipal   decimal.Decimal `json:"pending_principal"`
	InterestCollected  decimal.Decimal `json:"interest_collected"`
	PenaltyCollected   decimal.Decimal `json:"penalty_collected"`
	PrincipalRecovered decimal.Decimal `json:"principal_recovered"`
	GeneratedAt        time.Time       `json:"generated_at"`
}
