package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sjperalta/fintera-prestamos/internal/config"
	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/jobs"
	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
	"github.com/sjperalta/fintera-prestamos/internal/services"
	"github.com/sjperalta/fintera-prestamos/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Setup("test", "error")
}

var opened = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type fakeClientRepository struct {
	repository.ClientRepository
	clients map[uuid.UUID]models.Client
}

func (r *fakeClientRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *fakeClientRepository) FindByIdentity(ctx context.Context, identity string) (*models.Client, error) {
	for _, c := range r.clients {
		if c.Identity == identity {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeClientRepository) Create(ctx context.Context, client *models.Client) error {
	r.clients[client.ID] = *client
	return nil
}

// fakeLoanRepository serves a single loan aggregate
type fakeLoanRepository struct {
	repository.LoanRepository
	agg    *repository.LoanAggregate
	writes []*repository.LoanWrite
}

func (r *fakeLoanRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	if r.agg == nil || r.agg.Loan.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	loan := r.agg.Loan
	loan.Installments = r.agg.Installments
	return &loan, nil
}

func (r *fakeLoanRepository) LoadAggregate(ctx context.Context, id uuid.UUID) (*repository.LoanAggregate, error) {
	if r.agg == nil || r.agg.Loan.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	agg := *r.agg
	return &agg, nil
}

func (r *fakeLoanRepository) UpdateLocked(ctx context.Context, id uuid.UUID, fn func(agg *repository.LoanAggregate) (*repository.LoanWrite, error)) error {
	agg, err := r.LoadAggregate(ctx, id)
	if err != nil {
		return err
	}
	write, err := fn(agg)
	if err != nil {
		return err
	}
	if write != nil {
		r.writes = append(r.writes, write)
	}
	return nil
}

type testServer struct {
	router  *gin.Engine
	clients *fakeClientRepository
	loans   *fakeLoanRepository
	engine  *engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	worker := jobs.NewWorker(1)
	t.Cleanup(worker.Shutdown)

	clients := &fakeClientRepository{clients: make(map[uuid.UUID]models.Client)}
	loans := &fakeLoanRepository{}
	eng := engine.New(config.DefaultPolicy(), engine.PenaltyFirst())
	clock := func() time.Time { return opened.AddDate(0, 0, 30) }

	loanSvc := services.NewLoanService(loans, clients, nil, nil, eng, worker, "HNL", clock)
	clientSvc := services.NewClientService(clients, loans)
	classSvc := services.NewClassificationService(clients, loans, eng, clock)

	clientHandler := NewClientHandler(clientSvc, classSvc)
	loanHandler := NewLoanHandler(loanSvc)
	paymentHandler := NewPaymentHandler(loanSvc)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.POST("/clients", clientHandler.Create)
	v1.GET("/clients/:client_id", clientHandler.Show)
	v1.GET("/loans/:loan_id", loanHandler.Show)
	v1.GET("/loans/:loan_id/quote", loanHandler.Quote)
	v1.POST("/loans/:loan_id/payments", paymentHandler.Create)

	return &testServer{router: r, clients: clients, loans: loans, engine: eng}
}

// openLoan stores a fresh monthly loan of 1000 as the served aggregate
func (s *testServer) openLoan(t *testing.T) models.Loan {
	t.Helper()
	res, err := s.engine.OpenLoan(context.Background(), models.Loan{
		ClientID:          uuid.New(),
		OriginalPrincipal: decimal.NewFromInt(1000),
		Frequency:         models.FrequencyMonthly,
		Currency:          "HNL",
		StartDate:         opened,
	})
	require.NoError(t, err)
	s.loans.agg = &repository.LoanAggregate{Loan: res.Loan, Installments: res.Created}
	return res.Loan
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: nombre", services.ErrInvalidInput), http.StatusBadRequest},
		{engine.ErrInvalidPaymentAmount, http.StatusBadRequest},
		{engine.ErrInvalidTimeRange, http.StatusBadRequest},
		{engine.ErrUnknownFrequency, http.StatusBadRequest},
		{services.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", engine.ErrUnknownLoanOrInstallment), http.StatusNotFound},
		{engine.ErrDuplicatePayment, http.StatusConflict},
		{services.ErrDuplicate, http.StatusConflict},
		{services.ErrConflict, http.StatusConflict},
		{engine.ErrLoanClosed, http.StatusUnprocessableEntity},
		{engine.ErrInvariantViolation, http.StatusInternalServerError},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, fmt.Errorf("%w: principal mismatch", engine.ErrInvariantViolation))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "principal mismatch")
	assert.Len(t, c.Errors, 1)
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("2026-02-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseTime("2026-02-04T10:00:00-06:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 4, 16, 0, 0, 0, time.UTC), *got)

	got, err = parseTime("")
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseTime("04/02/2026")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/ok", NewHealthHandler(nil).Index)
	r.GET("/down", NewHealthHandler(func() error { return errors.New("dial tcp: refused") }).Index)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestClientHandler_Create(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/clients", `{"client": {"full_name": "Ana Martinez", "identity": "0801-1990-12345"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	client := decode(t, w)["client"].(map[string]interface{})
	assert.Equal(t, "Ana Martinez", client["full_name"])
	assert.Equal(t, models.ClassificationAlDia, client["classification"])

	w = s.do(http.MethodPost, "/api/v1/clients", `{"full_name": "Otra", "identity": "0801199012345"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/v1/clients", `{"identity": "123"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/clients", `{"full_name": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientHandler_Show(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/clients/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/clients/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoanHandler_Show(t *testing.T) {
	s := newTestServer(t)
	loan := s.openLoan(t)

	w := s.do(http.MethodGet, "/api/v1/loans/"+loan.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)["loan"].(map[string]interface{})
	assert.Equal(t, loan.ID.String(), body["id"])
	assert.Len(t, body["installments"], 1)

	w = s.do(http.MethodGet, "/api/v1/loans/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoanHandler_Quote(t *testing.T) {
	s := newTestServer(t)
	loan := s.openLoan(t)

	w := s.do(http.MethodGet, "/api/v1/loans/"+loan.ID.String()+"/quote?as_of=ayer", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/loans/"+loan.ID.String()+"/quote?as_of=2026-02-04", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	quote := decode(t, w)
	assert.Contains(t, quote, "total")
	assert.Contains(t, quote, "minimum_to_stay_current")
	assert.Empty(t, s.loans.writes)
}

func TestPaymentHandler_Create(t *testing.T) {
	s := newTestServer(t)
	loan := s.openLoan(t)
	path := "/api/v1/loans/" + loan.ID.String() + "/payments"
	paymentID := uuid.NewString()

	w := s.do(http.MethodPost, path, `{"payment_id": "abc", "amount": "150"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, path, `{"payment_id": "`+paymentID+`", "amount": "-5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, path, `{"payment": {"payment_id": "`+paymentID+`", "amount": "150", "paid_at": "2026-02-04T09:00:00Z"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	payment := body["payment"].(map[string]interface{})
	assert.Equal(t, paymentID, payment["id"])
	assert.Contains(t, body, "dues")
	require.Len(t, s.loans.writes, 1)
	assert.Equal(t, paymentID, s.loans.writes[0].Payment.ID.String())
}

func TestPaymentHandler_ClosedLoan(t *testing.T) {
	s := newTestServer(t)
	s.openLoan(t)
	s.loans.agg.Loan.Status = models.LoanStatusCancelled

	w := s.do(http.MethodPost, "/api/v1/loans/"+s.loans.agg.Loan.ID.String()+"/payments",
		`{"payment_id": "`+uuid.NewString()+`", "amount": "100"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, s.loans.writes)
}
