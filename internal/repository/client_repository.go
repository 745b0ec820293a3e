package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// ClientRepository defines the interface for client data access
type ClientRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error)
	FindByIdentity(ctx context.Context, identity string) (*models.Client, error)
	Create(ctx context.Context, client *models.Client) error
	Update(ctx context.Context, client *models.Client) error
	List(ctx context.Context, query *ListQuery) ([]models.Client, int64, error)
	UpdateClassifications(ctx context.Context, updates map[uuid.UUID]string, at time.Time) error
}

type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

var clientSortColumns = map[string]bool{
	"full_name":      true,
	"identity":       true,
	"classification": true,
	"created_at":     true,
}

func (r *clientRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).First(&client, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) FindByIdentity(ctx context.Context, identity string) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).
		Where("identity = ?", identity).
		First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) Create(ctx context.Context, client *models.Client) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(client).Error; err != nil {
		if isDuplicateKeyError(err, "idx_clients_identity") {
			return fmt.Errorf("%w: ya existe un cliente con este documento de identidad", ErrDuplicateKey)
		}
		return err
	}
	return nil
}

func (r *clientRepository) Update(ctx context.Context, client *models.Client) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(client).Error
}

func (r *clientRepository) List(ctx context.Context, query *ListQuery) ([]models.Client, int64, error) {
	var clients []models.Client
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Client{})

	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("full_name ILIKE ? OR identity ILIKE ? OR phone ILIKE ?", search, search, search)
	}

	if query.Filters["classification"] != "" {
		db = db.Where("classification = ?", query.Filters["classification"])
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// id as tiebreaker keeps batch pagination stable
	db = db.Order(query.orderBy(clientSortColumns, "created_at ASC")).Order("id ASC")

	if query.PerPage > 0 {
		db = db.Offset(query.Offset()).Limit(query.PerPage)
	}

	err := db.Find(&clients).Error
	return clients, total, err
}

// UpdateClassifications stores a batch of derived classifications in one transaction
func (r *clientRepository) UpdateClassifications(ctx context.Context, updates map[uuid.UUID]string, at time.Time) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, status := range updates {
			res := tx.Model(&models.Client{}).
				Where("id = ?", id).
				Updates(map[string]interface{}{
					"classification": status,
					"classified_at":  at,
					"updated_at":     time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("client %s: %w", id, gorm.ErrRecordNotFound)
			}
		}
		return nil
	})
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
