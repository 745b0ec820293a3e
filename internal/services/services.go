package services

import (
	"github.com/sjperalta/fintera-prestamos/internal/config"
	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/jobs"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
)

// Services holds all service instances
type Services struct {
	Client         *ClientService
	Loan           *LoanService
	Classification *ClassificationService
	Report         *ReportService
	Job            *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, eng *engine.Engine, cfg *config.Config, clock Clock) *Services {
	return &Services{
		Client:         NewClientService(repos.Client, repos.Loan),
		Loan:           NewLoanService(repos.Loan, repos.Client, repos.Payment, repos.Transition, eng, worker, cfg.Currency, clock),
		Classification: NewClassificationService(repos.Client, repos.Loan, eng, clock),
		Report:         NewReportService(repos.Report, repos.Loan, repos.Payment, cfg.Currency, clock),
		Job:            NewJobService(worker),
	}
}
