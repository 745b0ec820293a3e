package handlers

import (
	"github.com/sjperalta/fintera-prestamos/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health         *HealthHandler
	Client         *ClientHandler
	Loan           *LoanHandler
	Payment        *PaymentHandler
	Classification *ClassificationHandler
	Report         *ReportHandler
	Job            *JobHandler
}

// NewHandlers creates all handler instances. ping backs the health check.
func NewHandlers(svcs *services.Services, ping func() error) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(ping),
		Client:         NewClientHandler(svcs.Client, svcs.Classification),
		Loan:           NewLoanHandler(svcs.Loan),
		Payment:        NewPaymentHandler(svcs.Loan),
		Classification: NewClassificationHandler(svcs.Classification),
		Report:         NewReportHandler(svcs.Report),
		Job:            NewJobHandler(svcs.Job),
	}
}
