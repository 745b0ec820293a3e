package repository

import (
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	Client     ClientRepository
	Loan       LoanRepository
	Payment    PaymentRepository
	Transition TransitionRepository
	Report     ReportRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Client:     NewClientRepository(db),
		Loan:       NewLoanRepository(db),
		Payment:    NewPaymentRepository(db),
		Transition: NewTransitionRepository(db),
		Report:     NewReportRepository(db),
	}
}
