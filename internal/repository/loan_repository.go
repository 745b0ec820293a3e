package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// LoanAggregate is a loan read together with everything the engine needs
type LoanAggregate struct {
	Loan         models.Loan
	Installments []models.Installment
	PaymentIDs   []uuid.UUID
}

// LoanWrite is the set of rows produced by one engine call
type LoanWrite struct {
	Loan        models.Loan
	Created     []models.Installment
	Updated     []models.Installment
	Payment     *models.Payment
	Transitions []models.StateTransition
}

// LoanRepository defines the interface for loan data access
type LoanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	FindByClient(ctx context.Context, clientID uuid.UUID, includeClosed bool) ([]models.Loan, error)
	FindInstallments(ctx context.Context, loanID uuid.UUID) ([]models.Installment, error)
	List(ctx context.Context, query *ListQuery) ([]models.Loan, int64, error)
	ListOpenIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	LoadAggregate(ctx context.Context, id uuid.UUID) (*LoanAggregate, error)
	Create(ctx context.Context, write *LoanWrite) error
	UpdateLocked(ctx context.Context, id uuid.UUID, fn func(agg *LoanAggregate) (*LoanWrite, error)) error
}

type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

var loanSortColumns = map[string]bool{
	"start_date":        true,
	"pending_principal": true,
	"status":            true,
	"created_at":        true,
}

var openLoanStatuses = []string{models.LoanStatusActive, models.LoanStatusLate}

func orderBySequence(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

func (r *loanRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Joins("Client").
		Preload("Installments", orderBySequence).
		First(&loan, "loans.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindByClient returns the loans of a client with their installments preloaded
func (r *loanRepository) FindByClient(ctx context.Context, clientID uuid.UUID, includeClosed bool) ([]models.Loan, error) {
	var loans []models.Loan
	db := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Preload("Installments", orderBySequence)
	if !includeClosed {
		db = db.Where("status IN ?", openLoanStatuses)
	}
	err := db.Order("start_date ASC").Find(&loans).Error
	return loans, err
}

func (r *loanRepository) FindInstallments(ctx context.Context, loanID uuid.UUID) ([]models.Installment, error) {
	var installments []models.Installment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("sequence ASC").
		Find(&installments).Error
	return installments, err
}

func (r *loanRepository) List(ctx context.Context, query *ListQuery) ([]models.Loan, int64, error) {
	var loans []models.Loan
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Loan{})

	if val := query.Filters["status_in"]; val != "" {
		statuses := strings.Split(val, ",")
		for i, s := range statuses {
			statuses[i] = strings.ToUpper(strings.TrimSpace(s))
		}
		db = db.Where("status IN ?", statuses)
	}
	if val := query.Filters["client_id"]; val != "" {
		db = db.Where("client_id = ?", val)
	}
	if val := query.Filters["frequency"]; val != "" {
		db = db.Where("frequency = ?", val)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Order(query.orderBy(loanSortColumns, "created_at DESC")).Order("id ASC")
	if query.PerPage > 0 {
		db = db.Offset(query.Offset()).Limit(query.PerPage)
	}

	err := db.Find(&loans).Error
	return loans, total, err
}

// ListOpenIDs pages through ACTIVE and LATE loans by id. Keyset paging keeps
// the walk stable while loans close underneath it.
func (r *loanRepository) ListOpenIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("status IN ? AND id > ?", openLoanStatuses, after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *loanRepository) LoadAggregate(ctx context.Context, id uuid.UUID) (*LoanAggregate, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return loadAggregate(r.db.WithContext(ctx), loan)
}

func loadAggregate(db *gorm.DB, loan models.Loan) (*LoanAggregate, error) {
	agg := &LoanAggregate{Loan: loan}
	if err := db.Where("loan_id = ?", loan.ID).Order("sequence ASC").Find(&agg.Installments).Error; err != nil {
		return nil, fmt.Errorf("load installments: %w", err)
	}
	if err := db.Model(&models.Payment{}).Where("loan_id = ?", loan.ID).Pluck("id", &agg.PaymentIDs).Error; err != nil {
		return nil, fmt.Errorf("load payment ids: %w", err)
	}
	return agg, nil
}

// Create inserts a freshly opened loan with its first installments
func (r *loanRepository) Create(ctx context.Context, write *LoanWrite) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&write.Loan).Error; err != nil {
			if isDuplicateKeyError(err, "loans_pkey") {
				return fmt.Errorf("%w: préstamo %s", ErrDuplicateKey, write.Loan.ID)
			}
			return err
		}
		return persistChildren(tx, write)
	})
}

// UpdateLocked runs fn against the current state of a loan while holding its
// row lock and persists whatever fn returns. A nil write commits nothing.
func (r *loanRepository) UpdateLocked(ctx context.Context, id uuid.UUID, fn func(agg *LoanAggregate) (*LoanWrite, error)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loan models.Loan
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&loan, "id = ?", id).Error
		if err != nil {
			return err
		}

		agg, err := loadAggregate(tx, loan)
		if err != nil {
			return err
		}

		write, err := fn(agg)
		if err != nil {
			return err
		}
		if write == nil {
			return nil
		}

		if err := updateLoanVersioned(tx, &write.Loan, loan.Version); err != nil {
			return err
		}
		return persistChildren(tx, write)
	})
}

func updateLoanVersioned(tx *gorm.DB, loan *models.Loan, version int64) error {
	now := time.Now()
	res := tx.Model(&models.Loan{}).
		Where("id = ? AND version = ?", loan.ID, version).
		Updates(map[string]interface{}{
			"pending_principal": loan.PendingPrincipal,
			"interest_paid":     loan.InterestPaid,
			"principal_paid":    loan.PrincipalPaid,
			"penalty_paid":      loan.PenaltyPaid,
			"last_payment_date": loan.LastPaymentDate,
			"status":            loan.Status,
			"closed_at":         loan.ClosedAt,
			"version":           version + 1,
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	loan.Version = version + 1
	loan.UpdatedAt = now
	return nil
}

func persistChildren(tx *gorm.DB, write *LoanWrite) error {
	for i := range write.Created {
		if err := tx.Omit(clause.Associations).Create(&write.Created[i]).Error; err != nil {
			if isDuplicateKeyError(err, "idx_installment_loan_seq") {
				return fmt.Errorf("%w: cuota %d", ErrVersionConflict, write.Created[i].Sequence)
			}
			return fmt.Errorf("create installment %d: %w", write.Created[i].Sequence, err)
		}
	}
	for i := range write.Updated {
		if err := tx.Omit(clause.Associations).Save(&write.Updated[i]).Error; err != nil {
			return fmt.Errorf("update installment %d: %w", write.Updated[i].Sequence, err)
		}
	}

	if write.Payment != nil {
		if err := tx.Omit(clause.Associations).Create(write.Payment).Error; err != nil {
			if isDuplicateKeyError(err, "payments_pkey") {
				return fmt.Errorf("%w: pago %s", ErrDuplicateKey, write.Payment.ID)
			}
			return err
		}
	}

	if len(write.Transitions) > 0 {
		if err := tx.Create(&write.Transitions).Error; err != nil {
			return fmt.Errorf("record transitions: %w", err)
		}
	}
	return nil
}
