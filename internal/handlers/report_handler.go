package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sjperalta/fintera-prestamos/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	reportService *services.ReportService
}

func NewReportHandler(reportService *services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// @Summary Portfolio Summary
// @Description Totals of the loan book by status and client classification
// @Tags Reports
// @Produce json
// @Success 200 {object} models.PortfolioSummary
// @Router /reports/portfolio [get]
func (h *ReportHandler) Portfolio(c *gin.Context) {
	summary, err := h.reportService.PortfolioSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Arrears Export
// @Description Excel workbook with open loans, their overdue exposure and a summary sheet
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /reports/arrears.xlsx [get]
func (h *ReportHandler) ArrearsXLSX(c *gin.Context) {
	data, filename, err := h.reportService.ArrearsXLSX(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// @Summary Payment Receipt
// @Description PDF receipt showing how a payment was applied
// @Tags Reports
// @Produce application/pdf
// @Param payment_id path string true "Payment ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Router /payments/{payment_id}/receipt.pdf [get]
func (h *ReportHandler) PaymentReceiptPDF(c *gin.Context) {
	id, ok := uuidParam(c, "payment_id")
	if !ok {
		return
	}
	data, filename, err := h.reportService.PaymentReceiptPDF(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// @Summary Loan Statement
// @Description CSV with every payment of the loan and its running principal balance
// @Tags Reports
// @Produce text/csv
// @Param loan_id path string true "Loan ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Router /loans/{loan_id}/statement.csv [get]
func (h *ReportHandler) LoanStatementCSV(c *gin.Context) {
	id, ok := uuidParam(c, "loan_id")
	if !ok {
		return
	}
	data, filename, err := h.reportService.LoanStatementCSV(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
