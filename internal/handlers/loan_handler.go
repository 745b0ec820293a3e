package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/services"
)

type LoanHandler struct {
	loanService *services.LoanService
}

func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

type CreateLoanRequest struct {
	ClientID     string              `json:"client_id"`
	Principal    decimal.Decimal     `json:"principal" swaggertype:"string" example:"1000.00"`
	Frequency    string              `json:"frequency" example:"monthly"`
	StartDate    string              `json:"start_date" example:"2026-01-05"`
	InterestRate decimal.NullDecimal `json:"interest_rate" swaggertype:"string" example:"0.10"`
	PenaltyRate  decimal.NullDecimal `json:"penalty_rate" swaggertype:"string" example:"0.05"`
	Currency     string              `json:"currency" example:"HNL"`
	Note         *string             `json:"note"`
}

// @Summary Create Loan
// @Description Grants a loan to an existing client and generates its first installment
// @Tags Loans
// @Accept json
// @Produce json
// @Param request body CreateLoanRequest true "Loan"
// @Success 201 {object} models.LoanResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /loans [post]
func (h *LoanHandler) Create(c *gin.Context) {
	var req CreateLoanRequest
	if err := bindPayload(c, "loan", &req); err != nil {
		respondError(c, err)
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id inválido"})
		return
	}
	startDate, err := parseTime(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date inválida, use YYYY-MM-DD o RFC 3339"})
		return
	}

	loan, err := h.loanService.CreateLoan(c.Request.Context(), services.CreateLoanInput{
		ClientID:     clientID,
		Principal:    req.Principal,
		Frequency:    req.Frequency,
		StartDate:    startDate,
		InterestRate: optionalDecimal(req.InterestRate),
		PenaltyRate:  optionalDecimal(req.PenaltyRate),
		Currency:     req.Currency,
		Note:         req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"loan": loan.ToResponse()})
}

// @Summary List Loans
// @Description Get a paginated list of loans
// @Tags Loans
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "Comma separated statuses, e.g. ACTIVE,LATE"
// @Param client_id query string false "Client ID"
// @Param frequency query string false "daily, weekly, biweekly or monthly"
// @Success 200 {object} map[string]interface{}
// @Router /loans [get]
func (h *LoanHandler) Index(c *gin.Context) {
	query := listQuery(c)
	if status := c.Query("status"); status != "" {
		query.Filters["status_in"] = strings.ToUpper(status)
	}
	if clientID := c.Query("client_id"); clientID != "" {
		if _, err := uuid.Parse(clientID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "client_id inválido"})
			return
		}
		query.Filters["client_id"] = clientID
	}
	if frequency := c.Query("frequency"); frequency != "" {
		query.Filters["frequency"] = strings.ToLower(frequency)
	}

	loans, total, err := h.loanService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.LoanResponse, 0, len(loans))
	for i := range loans {
		responses = append(responses, loans[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{
		"loans":      responses,
		"pagination": pagination(query, total),
	})
}

// @Summary Get Loan
// @Description Loan with its client and installment schedule
// @Tags Loans
// @Produce json
// @Param loan_id path string true "Loan ID"
// @Success 200 {object} models.LoanResponse
// @Failure 404 {object} map[string]string
// @Router /loans/{loan_id} [get]
func (h *LoanHandler) Show(c *gin.Context) {
	id, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	loan, err := h.loanService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse()})
}

// @Summary Loan Installments
// @Tags Loans
// @Produce json
// @Param loan_id path string true "Loan ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /loans/{loan_id}/installments [get]
func (h *LoanHandler) Installments(c *gin.Context) {
	id, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	installments, err := h.loanService.Installments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.InstallmentResponse, 0, len(installments))
	for i := range installments {
		responses = append(responses, installments[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"installments": responses})
}

// @Summary Loan Payments
// @Tags Loans
// @Produce json
// @Param loan_id path string true "Loan ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /loans/{loan_id}/payments [get]
func (h *LoanHandler) Payments(c *gin.Context) {
	id, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	payments, err := h.loanService.Payments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.PaymentResponse, 0, len(payments))
	for i := range payments {
		responses = append(responses, payments[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"payments": responses})
}

// @Summary Loan History
// @Description Status changes of the loan and its installments, oldest first
// @Tags Loans
// @Produce json
// @Param loan_id path string true "Loan ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /loans/{loan_id}/history [get]
func (h *LoanHandler) History(c *gin.Context) {
	id, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	transitions, err := h.loanService.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if transitions == nil {
		transitions = []models.StateTransition{}
	}
	c.JSON(http.StatusOK, gin.H{"history": transitions})
}

// @Summary Payoff Quote
// @Description Amount needed to settle the loan as of a date. Writes nothing.
// @Tags Loans
// @Produce json
// @Param loan_id path string true "Loan ID"
// @Param as_of query string false "YYYY-MM-DD or RFC 3339, defaults to now"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /loans/{loan_id}/quote [get]
func (h *LoanHandler) Quote(c *gin.Context) {
	id, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	asOf, err := parseTime(c.Query("as_of"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "as_of inválida, use YYYY-MM-DD o RFC 3339"})
		return
	}

	quote, err := h.loanService.Quote(c.Request.Context(), id, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loan_id":                 quote.LoanID,
		"as_of":                   quote.AsOf,
		"status":                  quote.Status,
		"target_sequence":         quote.TargetSequence,
		"target_due_date":         quote.TargetDueDate,
		"penalty":                 quote.Penalty,
		"interest":                quote.Interest,
		"principal":               quote.Principal,
		"total":                   quote.Total,
		"minimum_to_stay_current": quote.MinimumToStayCurrent,
	})
}

// @Summary Advance Loan
// @Description Materializes missed periods, expires overdue installments and updates the loan status
// @Tags Loans
// @Produce json
// @Param loan_id path string true "Loan ID"
// @Param as_of query string false "YYYY-MM-DD or RFC 3339, defaults to now"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /loans/{loan_id}/advance [post]
func (h *LoanHandler) Advance(c *gin.Context) {
	id, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	asOf, err := parseTime(c.Query("as_of"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "as_of inválida, use YYYY-MM-DD o RFC 3339"})
		return
	}

	result, err := h.loanService.Advance(c.Request.Context(), id, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loan":        result.Loan.ToResponse(),
		"created":     len(result.Created),
		"updated":     len(result.Updated),
		"transitions": transitionsResponse(result.Transitions),
	})
}

// @Summary Advance All Loans
// @Description Runs the maintenance pass over every open loan now
// @Tags Loans
// @Produce json
// @Success 200 {object} services.AdvanceSummary
// @Failure 500 {object} map[string]string
// @Router /loans/advance [post]
func (h *LoanHandler) AdvanceAll(c *gin.Context) {
	summary, err := h.loanService.AdvanceAll(c.Request.Context())
	// loans that failed are counted in the summary; anything else aborted the pass
	if err != nil && summary.Failed == 0 {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Cancel Loan
// @Description Closes the loan and cancels its open installments
// @Tags Loans
// @Produce json
// @Param loan_id path string true "Loan ID"
// @Success 200 {object} models.LoanResponse
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /loans/{loan_id}/cancel [post]
func (h *LoanHandler) Cancel(c *gin.Context) {
	id, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	loan, err := h.loanService.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse()})
}
