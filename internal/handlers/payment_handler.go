package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/services"
)

type PaymentHandler struct {
	loanService *services.LoanService
}

func NewPaymentHandler(loanService *services.LoanService) *PaymentHandler {
	return &PaymentHandler{loanService: loanService}
}

// RegisterPaymentRequest is a payment received for a loan. payment_id is
// chosen by the caller and makes retries safe.
type RegisterPaymentRequest struct {
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount" swaggertype:"string" example:"150.00"`
	PaidAt    string          `json:"paid_at" example:"2026-02-04T10:00:00Z"`
	Method    string          `json:"method" example:"cash"`
	Note      *string         `json:"note"`
}

// @Summary Register Payment
// @Description Applies a payment to the loan (penalty, then interest, then principal) and returns the allocation
// @Tags Payments
// @Accept json
// @Produce json
// @Param loan_id path string true "Loan ID"
// @Param request body RegisterPaymentRequest true "Payment"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /loans/{loan_id}/payments [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	loanID, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	var req RegisterPaymentRequest
	if err := bindPayload(c, "payment", &req); err != nil {
		respondError(c, err)
		return
	}
	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_id inválido"})
		return
	}
	paidAt, err := parseTime(req.PaidAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paid_at inválida, use YYYY-MM-DD o RFC 3339"})
		return
	}

	result, err := h.loanService.RegisterPayment(c.Request.Context(), services.RegisterPaymentInput{
		PaymentID: paymentID,
		LoanID:    loanID,
		Amount:    req.Amount,
		PaidAt:    paidAt,
		Method:    req.Method,
		Note:      req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	installments := make([]models.InstallmentResponse, 0, len(result.Updated)+len(result.Created))
	for i := range result.Updated {
		installments = append(installments, result.Updated[i].ToResponse())
	}
	for i := range result.Created {
		installments = append(installments, result.Created[i].ToResponse())
	}

	c.JSON(http.StatusCreated, gin.H{
		"payment":      result.Payment.ToResponse(),
		"loan":         result.Loan.ToResponse(),
		"installments": installments,
		"dues":         duesResponse(result.Dues),
		"transitions":  transitionsResponse(result.Transitions),
	})
}

// @Summary Get Payment
// @Tags Payments
// @Produce json
// @Param payment_id path string true "Payment ID"
// @Success 200 {object} models.PaymentResponse
// @Failure 404 {object} map[string]string
// @Router /payments/{payment_id} [get]
func (h *PaymentHandler) Show(c *gin.Context) {
	id, ok := uuidParam(c, "payment_id")
	if !ok {
		return
	}
	payment, err := h.loanService.FindPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment.ToResponse()})
}
