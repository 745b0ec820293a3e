package models

import (
	"time"

	"github.com/google/uuid"
)

// StateTransition records a status change applied by the loan engine
type StateTransition struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	LoanID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"loan_id"`
	Entity     string     `gorm:"size:20;not null" json:"entity"` // loan, installment
	EntityID   uuid.UUID  `gorm:"type:uuid;not null" json:"entity_id"`
	Event      string     `gorm:"size:20;not null" json:"event"` // pay, expire, fall_behind, ...
	FromStatus string     `gorm:"size:16" json:"from_status"`
	ToStatus   string     `gorm:"size:16;not null" json:"to_status"`
	PaymentID  *uuid.UUID `gorm:"type:uuid;index" json:"payment_id,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for StateTransition
func (StateTransition) TableName() string {
	return "state_transitions"
}

// Transition entity constants
const (
	TransitionEntityLoan        = "loan"
	TransitionEntityInstallment = "installment"
)
