package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// TransitionRepository reads the status history written alongside loan updates
type TransitionRepository interface {
	FindByLoan(ctx context.Context, loanID uuid.UUID) ([]models.StateTransition, error)
	FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.StateTransition, error)
}

type transitionRepository struct {
	db *gorm.DB
}

// NewTransitionRepository creates a new transition repository
func NewTransitionRepository(db *gorm.DB) TransitionRepository {
	return &transitionRepository{db: db}
}

func (r *transitionRepository) FindByLoan(ctx context.Context, loanID uuid.UUID) ([]models.StateTransition, error) {
	var entries []models.StateTransition
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *transitionRepository) FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.StateTransition, error) {
	var entries []models.StateTransition
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}
