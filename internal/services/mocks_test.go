package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sjperalta/fintera-prestamos/internal/config"
	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/jobs"
	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
	"github.com/sjperalta/fintera-prestamos/pkg/logger"
)

func init() {
	logger.Setup("test", "error")
}

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return t0.AddDate(0, 0, n)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

func requireMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

// memStore keeps loans, installments and payments in memory and serializes
// UpdateLocked calls the way the row lock does.
type memStore struct {
	mu          sync.Mutex
	clients     map[uuid.UUID]models.Client
	loans       map[uuid.UUID]models.Loan
	insts       map[uuid.UUID][]models.Installment
	payments    map[uuid.UUID]models.Payment
	transitions []models.StateTransition
	writes      int
}

func newMemStore() *memStore {
	return &memStore{
		clients:  make(map[uuid.UUID]models.Client),
		loans:    make(map[uuid.UUID]models.Loan),
		insts:    make(map[uuid.UUID][]models.Installment),
		payments: make(map[uuid.UUID]models.Payment),
	}
}

func (m *memStore) addClient(name, identity string) models.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := models.Client{ID: uuid.New(), FullName: name, Identity: identity, Classification: models.ClassificationAlDia, CreatedAt: time.Now()}
	m.clients[c.ID] = c
	return c
}

func (m *memStore) loan(id uuid.UUID) models.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loans[id]
}

func (m *memStore) installments(id uuid.UUID) []models.Installment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Installment{}, m.insts[id]...)
}

// mockLoanRepository implements LoanRepository on top of memStore
type mockLoanRepository struct {
	repository.LoanRepository
	store *memStore
}

func (r *mockLoanRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	loan, ok := r.store.loans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &loan, nil
}

func (r *mockLoanRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	loan, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	loan.Installments = r.store.installments(id)
	return loan, nil
}

func (r *mockLoanRepository) FindByClient(ctx context.Context, clientID uuid.UUID, includeClosed bool) ([]models.Loan, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.Loan
	for _, loan := range r.store.loans {
		if loan.ClientID != clientID || (!includeClosed && loan.IsClosed()) {
			continue
		}
		loan.Installments = append([]models.Installment{}, r.store.insts[loan.ID]...)
		out = append(out, loan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *mockLoanRepository) FindInstallments(ctx context.Context, loanID uuid.UUID) ([]models.Installment, error) {
	return r.store.installments(loanID), nil
}

func (r *mockLoanRepository) ListOpenIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var ids []uuid.UUID
	for id, loan := range r.store.loans {
		if !loan.IsClosed() && id.String() > after.String() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *mockLoanRepository) LoadAggregate(ctx context.Context, id uuid.UUID) (*repository.LoanAggregate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.aggregate(id)
}

func (m *memStore) aggregate(id uuid.UUID) (*repository.LoanAggregate, error) {
	loan, ok := m.loans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	agg := &repository.LoanAggregate{Loan: loan, Installments: append([]models.Installment{}, m.insts[id]...)}
	for pid, p := range m.payments {
		if p.LoanID == id {
			agg.PaymentIDs = append(agg.PaymentIDs, pid)
		}
	}
	return agg, nil
}

func (r *mockLoanRepository) Create(ctx context.Context, write *repository.LoanWrite) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.loans[write.Loan.ID]; exists {
		return repository.ErrDuplicateKey
	}
	r.store.loans[write.Loan.ID] = write.Loan
	r.store.insts[write.Loan.ID] = append([]models.Installment{}, write.Created...)
	r.store.transitions = append(r.store.transitions, write.Transitions...)
	r.store.writes++
	return nil
}

func (r *mockLoanRepository) UpdateLocked(ctx context.Context, id uuid.UUID, fn func(agg *repository.LoanAggregate) (*repository.LoanWrite, error)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	agg, err := r.store.aggregate(id)
	if err != nil {
		return err
	}
	version := agg.Loan.Version

	write, err := fn(agg)
	if err != nil || write == nil {
		return err
	}

	if write.Payment != nil {
		if _, exists := r.store.payments[write.Payment.ID]; exists {
			return repository.ErrDuplicateKey
		}
	}

	write.Loan.Version = version + 1
	r.store.loans[id] = write.Loan

	insts := r.store.insts[id]
	for _, u := range write.Updated {
		for i := range insts {
			if insts[i].ID == u.ID {
				insts[i] = u
			}
		}
	}
	r.store.insts[id] = append(insts, write.Created...)

	if write.Payment != nil {
		r.store.payments[write.Payment.ID] = *write.Payment
	}
	r.store.transitions = append(r.store.transitions, write.Transitions...)
	r.store.writes++
	return nil
}

// mockClientRepository implements ClientRepository on top of memStore
type mockClientRepository struct {
	repository.ClientRepository
	store *memStore
}

func (r *mockClientRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *mockClientRepository) FindByIdentity(ctx context.Context, identity string) (*models.Client, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.clients {
		if c.Identity == identity {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockClientRepository) Create(ctx context.Context, client *models.Client) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	client.CreatedAt = time.Now()
	r.store.clients[client.ID] = *client
	return nil
}

func (r *mockClientRepository) List(ctx context.Context, query *repository.ListQuery) ([]models.Client, int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	all := make([]models.Client, 0, len(r.store.clients))
	for _, c := range r.store.clients {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })

	total := int64(len(all))
	start := query.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + query.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *mockClientRepository) UpdateClassifications(ctx context.Context, updates map[uuid.UUID]string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, status := range updates {
		c := r.store.clients[id]
		c.Classification = status
		c.ClassifiedAt = &at
		r.store.clients[id] = c
	}
	return nil
}

// mockPaymentRepository implements PaymentRepository on top of memStore
type mockPaymentRepository struct {
	repository.PaymentRepository
	store *memStore
}

func (r *mockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *mockPaymentRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p.Loan = r.store.loans[p.LoanID]
	p.Loan.Client = r.store.clients[p.Loan.ClientID]
	for _, inst := range r.store.insts[p.LoanID] {
		if inst.ID == p.InstallmentID {
			p.Installment = inst
		}
	}
	return p, nil
}

func (r *mockPaymentRepository) FindByLoan(ctx context.Context, loanID uuid.UUID) ([]models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.Payment
	for _, p := range r.store.payments {
		if p.LoanID == loanID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(out[j].PaidAt) })
	return out, nil
}

// mockTransitionRepository implements TransitionRepository on top of memStore
type mockTransitionRepository struct {
	repository.TransitionRepository
	store *memStore
}

func (r *mockTransitionRepository) FindByLoan(ctx context.Context, loanID uuid.UUID) ([]models.StateTransition, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.StateTransition
	for _, tr := range r.store.transitions {
		if tr.LoanID == loanID {
			out = append(out, tr)
		}
	}
	return out, nil
}

// testEnv wires real services over the in-memory store
type testEnv struct {
	store   *memStore
	worker  *jobs.Worker
	engine  *engine.Engine
	loans   *LoanService
	clients *ClientService
	classes *ClassificationService
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	store := newMemStore()
	worker := jobs.NewWorker(2)
	t.Cleanup(worker.Shutdown)

	eng := engine.New(config.DefaultPolicy(), engine.PenaltyFirst())
	loanRepo := &mockLoanRepository{store: store}
	clientRepo := &mockClientRepository{store: store}
	clock := fixedClock(now)

	return &testEnv{
		store:   store,
		worker:  worker,
		engine:  eng,
		loans:   NewLoanService(loanRepo, clientRepo, &mockPaymentRepository{store: store}, &mockTransitionRepository{store: store}, eng, worker, "HNL", clock),
		clients: NewClientService(clientRepo, loanRepo),
		classes: NewClassificationService(clientRepo, loanRepo, eng, clock),
	}
}

// openLoan grants a monthly loan of principal at t0 to a new client
func (e *testEnv) openLoan(t *testing.T, principal string) models.Loan {
	t.Helper()
	client := e.store.addClient("Maria Lopez", uuid.NewString()[:13])
	start := t0
	loan, err := e.loans.CreateLoan(context.Background(), CreateLoanInput{
		ClientID:  client.ID,
		Principal: dec(principal),
		Frequency: models.FrequencyMonthly,
		StartDate: &start,
	})
	require.NoError(t, err)
	return *loan
}

func (e *testEnv) pay(t *testing.T, loanID uuid.UUID, amount string, at time.Time) *engine.AllocationResult {
	t.Helper()
	res, err := e.loans.RegisterPayment(context.Background(), RegisterPaymentInput{
		PaymentID: uuid.New(),
		LoanID:    loanID,
		Amount:    dec(amount),
		PaidAt:    &at,
	})
	require.NoError(t, err)
	return res
}
