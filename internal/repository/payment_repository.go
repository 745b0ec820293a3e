package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// PaymentRepository defines the interface for payment data access.
// Payments are only written through LoanRepository.UpdateLocked.
type PaymentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByLoan(ctx context.Context, loanID uuid.UUID) ([]models.Payment, error)
	FindByDateRange(ctx context.Context, from, to time.Time) ([]models.Payment, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Joins("Installment").
		First(&payment, "payments.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByIDWithDetails loads the payment with its installment, loan and client for receipts
func (r *paymentRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Joins("Installment").
		Preload("Loan.Client").
		First(&payment, "payments.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) FindByLoan(ctx context.Context, loanID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Joins("Installment").
		Where("payments.loan_id = ?", loanID).
		Order("payments.paid_at ASC, payments.created_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepository) FindByDateRange(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("paid_at >= ? AND paid_at < ?", from, to).
		Order("paid_at ASC").
		Find(&payments).Error
	return payments, err
}
