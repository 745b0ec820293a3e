package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/jobs"
	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
	"github.com/sjperalta/fintera-prestamos/pkg/logger"
)

// ClassificationService derives client payment health (AL_DIA, ATRASADO,
// MOROSO) from their open loans and stores it on the client.
type ClassificationService struct {
	clientRepo repository.ClientRepository
	loanRepo   repository.LoanRepository
	engine     *engine.Engine
	now        Clock
	pageSize   int
}

func NewClassificationService(clientRepo repository.ClientRepository, loanRepo repository.LoanRepository, eng *engine.Engine, clock Clock) *ClassificationService {
	if clock == nil {
		clock = SystemClock
	}
	return &ClassificationService{
		clientRepo: clientRepo,
		loanRepo:   loanRepo,
		engine:     eng,
		now:        clock,
		pageSize:   100,
	}
}

// ClassificationSummary reports one classification pass
type ClassificationSummary struct {
	Processed int            `json:"processed"`
	Changed   int            `json:"changed"`
	Failed    int            `json:"failed"`
	ByStatus  map[string]int `json:"by_status"`
	AsOf      time.Time      `json:"as_of"`
}

// Classify returns the current classification of one client without storing it
func (s *ClassificationService) Classify(ctx context.Context, clientID uuid.UUID) (*engine.Classification, error) {
	if _, err := s.clientRepo.FindByID(ctx, clientID); err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: cliente %s", ErrNotFound, clientID)
		}
		return nil, err
	}

	portfolio, err := s.portfolio(ctx, clientID)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.Classify(ctx, s.now(), []engine.Portfolio{portfolio})
	if err != nil {
		s.reportFailure("Classify", clientID, err)
		return nil, err
	}
	c := result[clientID]
	return &c, nil
}

// UpdateAll classifies every client page by page and stores the ones that
// changed. Clients whose loans cannot be evaluated are counted as failed and
// skipped; once every page is done they are returned as a permanent error so
// the scheduler does not rerun the whole pass for them.
func (s *ClassificationService) UpdateAll(ctx context.Context) (*ClassificationSummary, error) {
	asOf := s.now()
	summary := &ClassificationSummary{ByStatus: make(map[string]int), AsOf: asOf}
	var failures []error
	logger.Info("[ClassificationService] Updating client classifications...")

	page := 1
	for {
		query := repository.NewListQuery()
		query.Page = page
		query.PerPage = s.pageSize

		clients, total, err := s.clientRepo.List(ctx, query)
		if err != nil {
			return summary, fmt.Errorf("failed to fetch clients page %d: %w", page, err)
		}
		if len(clients) == 0 {
			break
		}

		portfolios := make([]engine.Portfolio, 0, len(clients))
		current := make(map[uuid.UUID]string, len(clients))
		for _, client := range clients {
			p, err := s.portfolio(ctx, client.ID)
			if err != nil {
				logger.Error(fmt.Sprintf("[ClassificationService] Error loading loans for client %s: %v", client.ID, err))
				summary.Failed++
				continue
			}
			portfolios = append(portfolios, p)
			current[client.ID] = client.Classification
		}

		results, err := s.engine.Classify(ctx, asOf, portfolios)
		if err != nil {
			var classifyErr *engine.ClassifyError
			if !errors.As(err, &classifyErr) {
				return summary, fmt.Errorf("failed to classify clients page %d: %w", page, err)
			}
			for id, cerr := range classifyErr.Failed {
				s.reportFailure("UpdateAll", id, cerr)
				summary.Failed++
			}
			failures = append(failures, classifyErr)
		}

		updates := make(map[uuid.UUID]string)
		for id, c := range results {
			summary.Processed++
			summary.ByStatus[c.Status]++
			if current[id] != c.Status {
				updates[id] = c.Status
				logger.Info("[ClassificationService] Classification changed",
					"client_id", id,
					"from", current[id],
					"to", c.Status,
					"max_overdue_periods", c.MaxOverduePeriods.String(),
					"worst_loan_id", c.WorstLoanID)
			}
		}

		if err := s.clientRepo.UpdateClassifications(ctx, updates, asOf); err != nil {
			return summary, fmt.Errorf("failed to store classifications page %d: %w", page, err)
		}
		summary.Changed += len(updates)

		if int64(page*s.pageSize) >= total || len(clients) < s.pageSize {
			break
		}
		page++
	}

	logger.Info(fmt.Sprintf("[ClassificationService] Classified %d clients (%d changed, %d failed)",
		summary.Processed, summary.Changed, summary.Failed))
	if len(failures) > 0 {
		return summary, jobs.Permanent(errors.Join(failures...))
	}
	return summary, nil
}

func (s *ClassificationService) reportFailure(op string, clientID uuid.UUID, err error) {
	logger.Error("[ClassificationService] Client not classified", "op", op, "client_id", clientID, "error", err)
	if !errors.Is(err, engine.ErrInvariantViolation) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", op)
		scope.SetTag("client_id", clientID.String())
		scope.SetLevel(sentry.LevelFatal)
		sentry.CaptureException(err)
	})
}

func (s *ClassificationService) portfolio(ctx context.Context, clientID uuid.UUID) (engine.Portfolio, error) {
	loans, err := s.loanRepo.FindByClient(ctx, clientID, false)
	if err != nil {
		return engine.Portfolio{}, err
	}
	p := engine.Portfolio{ClientID: clientID, Loans: make([]engine.LoanSnapshot, 0, len(loans))}
	for _, loan := range loans {
		installments := loan.Installments
		loan.Installments = nil
		p.Loans = append(p.Loans, engine.LoanSnapshot{Loan: loan, Installments: installments})
	}
	return p, nil
}

// ClassificationLabel returns the Spanish label used in reports
func ClassificationLabel(status string) string {
	switch status {
	case models.ClassificationMoroso:
		return "Moroso"
	case models.ClassificationAtrasado:
		return "Atrasado"
	}
	return "Al día"
}
