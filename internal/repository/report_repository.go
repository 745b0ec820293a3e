package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// ReportRepository runs the aggregate queries behind portfolio reports
type ReportRepository interface {
	GetArrearsRows(ctx context.Context) ([]models.ArrearsRow, error)
	GetLoansByStatus(ctx context.Context) ([]models.StatusCount, error)
	GetClientsByClassification(ctx context.Context) ([]models.StatusCount, error)
	GetPortfolioTotals(ctx context.Context) (*models.PortfolioSummary, error)
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// GetArrearsRows lists every open loan with its overdue exposure, worst first
func (r *reportRepository) GetArrearsRows(ctx context.Context) ([]models.ArrearsRow, error) {
	var rows []models.ArrearsRow
	overdue := models.InstallmentStatusOverdue

	err := r.db.WithContext(ctx).
		Table("loans").
		Select(`loans.id AS loan_id,
			clients.id AS client_id,
			clients.full_name AS client_name,
			clients.identity AS client_identity,
			clients.phone AS client_phone,
			clients.classification AS classification,
			loans.status AS loan_status,
			loans.frequency AS frequency,
			loans.currency AS currency,
			loans.pending_principal AS pending_principal,
			loans.last_payment_date AS last_payment_date,
			COUNT(installments.id) FILTER (WHERE installments.status = ?) AS overdue_installments,
			COALESCE(SUM(GREATEST(installments.minimum_due - installments.shortfall_carried - installments.interest_paid - installments.principal_paid, 0)) FILTER (WHERE installments.status = ?), 0) AS overdue_amount,
			MIN(installments.due_date) FILTER (WHERE installments.status = ?) AS oldest_due_date`,
			overdue, overdue, overdue).
		Joins("JOIN clients ON clients.id = loans.client_id").
		Joins("LEFT JOIN installments ON installments.loan_id = loans.id").
		Where("loans.status IN ?", openLoanStatuses).
		Group("loans.id, clients.id").
		Order("overdue_amount DESC, oldest_due_date ASC NULLS LAST").
		Scan(&rows).Error
	return rows, err
}

func (r *reportRepository) GetLoansByStatus(ctx context.Context) ([]models.StatusCount, error) {
	var counts []models.StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(pending_principal), 0) AS amount").
		Group("status").
		Order("status").
		Scan(&counts).Error
	return counts, err
}

func (r *reportRepository) GetClientsByClassification(ctx context.Context) ([]models.StatusCount, error) {
	var counts []models.StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.Client{}).
		Select("classification AS status, COUNT(*) AS count, 0 AS amount").
		Group("classification").
		Order("classification").
		Scan(&counts).Error
	return counts, err
}

func (r *reportRepository) GetPortfolioTotals(ctx context.Context) (*models.PortfolioSummary, error) {
	var totals struct {
		OriginalPrincipal  decimal.Decimal
		PendingPrincipal   decimal.Decimal
		InterestCollected  decimal.Decimal
		PenaltyCollected   decimal.Decimal
		PrincipalRecovered decimal.Decimal
	}

	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Select(`COALESCE(SUM(original_principal), 0) AS original_principal,
			COALESCE(SUM(pending_principal) FILTER (WHERE status IN ?), 0) AS pending_principal,
			COALESCE(SUM(interest_paid), 0) AS interest_collected,
			COALESCE(SUM(penalty_paid), 0) AS penalty_collected,
			COALESCE(SUM(principal_paid), 0) AS principal_recovered`, openLoanStatuses).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	return &models.PortfolioSummary{
		OriginalPrincipal:  totals.OriginalPrincipal,
		PendingPrincipal:   totals.PendingPrincipal,
		InterestCollected:  totals.InterestCollected,
		PenaltyCollected:   totals.PenaltyCollected,
		PrincipalRecovered: totals.PrincipalRecovered,
	}, nil
}
