package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
	"github.com/sjperalta/fintera-prestamos/pkg/logger"
)

// ClientService manages borrowers
type ClientService struct {
	clientRepo repository.ClientRepository
	loanRepo   repository.LoanRepository
}

func NewClientService(clientRepo repository.ClientRepository, loanRepo repository.LoanRepository) *ClientService {
	return &ClientService{
		clientRepo: clientRepo,
		loanRepo:   loanRepo,
	}
}

// CreateClientInput is the data needed to register a client
type CreateClientInput struct {
	FullName string
	Identity string
	Phone    string
	Address  *string
	Note     *string
}

func (s *ClientService) Create(ctx context.Context, input CreateClientInput) (*models.Client, error) {
	client := &models.Client{
		ID:             uuid.New(),
		FullName:       strings.TrimSpace(input.FullName),
		Identity:       normalizeIdentity(input.Identity),
		Phone:          strings.TrimSpace(input.Phone),
		Address:        input.Address,
		Note:           input.Note,
		Classification: models.ClassificationAlDia,
	}

	if client.FullName == "" {
		return nil, fmt.Errorf("%w: el nombre es requerido", ErrInvalidInput)
	}
	if client.Identity == "" {
		return nil, fmt.Errorf("%w: el documento de identidad es requerido", ErrInvalidInput)
	}

	if existing, err := s.clientRepo.FindByIdentity(ctx, client.Identity); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: ya existe un cliente con este documento de identidad", ErrDuplicate)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := s.clientRepo.Create(ctx, client); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, err
	}

	logger.Info(fmt.Sprintf("[ClientService] Client %s registered", client.ID))
	return client, nil
}

func (s *ClientService) FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	client, err := s.clientRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: cliente %s", ErrNotFound, id)
		}
		return nil, err
	}
	return client, nil
}

func (s *ClientService) List(ctx context.Context, query *repository.ListQuery) ([]models.Client, int64, error) {
	return s.clientRepo.List(ctx, query)
}

// Loans returns every loan of a client, closed ones included
func (s *ClientService) Loans(ctx context.Context, clientID uuid.UUID) ([]models.Loan, error) {
	if _, err := s.FindByID(ctx, clientID); err != nil {
		return nil, err
	}
	return s.loanRepo.FindByClient(ctx, clientID, true)
}

// normalizeIdentity strips separators so "0801-1990-12345" and "0801199012345" match
func normalizeIdentity(identity string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '.':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(identity)))
}
