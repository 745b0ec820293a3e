package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
)

// ReportService builds the portfolio exports and payment receipts
type ReportService struct {
	reportRepo  repository.ReportRepository
	loanRepo    repository.LoanRepository
	paymentRepo repository.PaymentRepository
	currency    string
	now         Clock
}

func NewReportService(reportRepo repository.ReportRepository, loanRepo repository.LoanRepository, paymentRepo repository.PaymentRepository, currency string, clock Clock) *ReportService {
	if clock == nil {
		clock = SystemClock
	}
	return &ReportService{
		reportRepo:  reportRepo,
		loanRepo:    loanRepo,
		paymentRepo: paymentRepo,
		currency:    currency,
		now:         clock,
	}
}

// PortfolioSummary aggregates the whole loan book
func (s *ReportService) PortfolioSummary(ctx context.Context) (*models.PortfolioSummary, error) {
	summary, err := s.reportRepo.GetPortfolioTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio totals: %w", err)
	}
	if summary.LoansByStatus, err = s.reportRepo.GetLoansByStatus(ctx); err != nil {
		return nil, fmt.Errorf("failed to count loans: %w", err)
	}
	if summary.ClientsByStatus, err = s.reportRepo.GetClientsByClassification(ctx); err != nil {
		return nil, fmt.Errorf("failed to count clients: %w", err)
	}
	summary.Currency = s.currency
	summary.GeneratedAt = s.now()
	return summary, nil
}

var arrearsHeader = []string{
	"Préstamo", "Cliente", "Identidad", "Teléfono", "Clasificación", "Estado",
	"Frecuencia", "Capital Pendiente", "Cuotas Vencidas", "Monto Vencido",
	"Vencimiento Más Antiguo", "Días Mora", "Último Pago",
}

// ArrearsXLSX exports open loans with their overdue exposure, plus a summary sheet
func (s *ReportService) ArrearsXLSX(ctx context.Context) ([]byte, string, error) {
	rows, err := s.reportRepo.GetArrearsRows(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load arrears: %w", err)
	}
	summary, err := s.PortfolioSummary(ctx)
	if err != nil {
		return nil, "", err
	}
	asOf := s.now()

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Mora"
	_ = f.SetSheetName("Sheet1", sheet)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	moneyStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 4})

	_ = f.SetCellValue(sheet, "A1", "Reporte de Cartera en Mora")
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)
	_ = f.SetCellValue(sheet, "A2", fmt.Sprintf("Generado: %s", asOf.Format("2006-01-02 15:04")))

	for i, h := range arrearsHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 4)
		_ = f.SetCellValue(sheet, cell, h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(arrearsHeader))
	_ = f.SetCellStyle(sheet, "A4", lastCol+"4", headerStyle)

	for i, r := range rows {
		line := i + 5
		values := []interface{}{
			r.LoanID.String(),
			r.ClientName,
			models.MaskIdentity(r.ClientIdentity),
			r.ClientPhone,
			ClassificationLabel(r.Classification),
			r.LoanStatus,
			r.Frequency,
			r.PendingPrincipal.InexactFloat64(),
			r.OverdueInstallments,
			r.OverdueAmount.InexactFloat64(),
			formatDate(r.OldestDueDate),
			r.DaysOverdue(asOf),
			formatDate(r.LastPaymentDate),
		}
		cell, _ := excelize.CoordinatesToCellName(1, line)
		_ = f.SetSheetRow(sheet, cell, &values)
		_ = f.SetCellStyle(sheet, fmt.Sprintf("H%d", line), fmt.Sprintf("H%d", line), moneyStyle)
		_ = f.SetCellStyle(sheet, fmt.Sprintf("J%d", line), fmt.Sprintf("J%d", line), moneyStyle)
	}
	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 30)
	_ = f.SetColWidth(sheet, "C", lastCol, 16)

	if err := s.writeSummarySheet(f, summary, headerStyle, moneyStyle); err != nil {
		return nil, "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("cartera_mora_%s.xlsx", asOf.Format("2006-01-02"))
	return buf.Bytes(), filename, nil
}

func (s *ReportService) writeSummarySheet(f *excelize.File, summary *models.PortfolioSummary, headerStyle, moneyStyle int) error {
	sheet := "Resumen"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	_ = f.SetCellValue(sheet, "A1", "Métrica")
	_ = f.SetCellValue(sheet, "B1", fmt.Sprintf("Valor (%s)", summary.Currency))
	_ = f.SetCellStyle(sheet, "A1", "B1", headerStyle)

	metrics := []struct {
		label string
		value decimal.Decimal
	}{
		{"Capital Otorgado", summary.OriginalPrincipal},
		{"Capital Pendiente", summary.PendingPrincipal},
		{"Capital Recuperado", summary.PrincipalRecovered},
		{"Intereses Cobrados", summary.InterestCollected},
		{"Mora Cobrada", summary.PenaltyCollected},
	}
	line := 2
	for _, m := range metrics {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), m.label)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), m.value.InexactFloat64())
		_ = f.SetCellStyle(sheet, fmt.Sprintf("B%d", line), fmt.Sprintf("B%d", line), moneyStyle)
		line++
	}

	line++
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), "Préstamos por Estado")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), "Cantidad")
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", line), "Capital Pendiente")
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", line), fmt.Sprintf("C%d", line), headerStyle)
	line++
	for _, c := range summary.LoansByStatus {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), c.Status)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), c.Count)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", line), c.Amount.InexactFloat64())
		line++
	}

	line++
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), "Clientes por Clasificación")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), "Cantidad")
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", line), fmt.Sprintf("B%d", line), headerStyle)
	line++
	for _, c := range summary.ClientsByStatus {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), ClassificationLabel(c.Status))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), c.Count)
		line++
	}

	_ = f.SetColWidth(sheet, "A", "A", 30)
	_ = f.SetColWidth(sheet, "B", "C", 20)
	return nil
}

// PaymentReceiptPDF renders the receipt of a single payment
func (s *ReportService) PaymentReceiptPDF(ctx context.Context, paymentID uuid.UUID) ([]byte, string, error) {
	p, err := s.paymentRepo.FindByIDWithDetails(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("%w: pago %s", ErrNotFound, paymentID)
		}
		return nil, "", err
	}

	currency := p.Loan.Currency
	if currency == "" {
		currency = s.currency
	}
	money := func(d decimal.Decimal) string {
		return fmt.Sprintf("%s %s", d.StringFixed(2), currency)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr("Recibo de Pago"))
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	row := func(label, value string) {
		pdf.Cell(60, 7, tr(label))
		pdf.Cell(0, 7, tr(value))
		pdf.Ln(7)
	}

	row("Recibo No.:", p.ID.String())
	row("Fecha de pago:", p.PaidAt.Format("2006-01-02 15:04"))
	if p.Loan.Client.ID != uuid.Nil {
		row("Cliente:", p.Loan.Client.FullName)
		row("Identidad:", models.MaskIdentity(p.Loan.Client.Identity))
	}
	row("Préstamo:", p.LoanID.String())
	if p.Installment.ID != uuid.Nil {
		row("Cuota:", fmt.Sprintf("%d (vence %s)", p.Installment.Sequence, p.Installment.DueDate.Format("2006-01-02")))
	}
	row("Forma de pago:", paymentMethodLabel(p.Method))
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, tr("Aplicación del pago"))
	pdf.Ln(9)
	pdf.SetFont("Arial", "", 10)

	row("Monto recibido:", money(p.AmountTendered))
	row("En letras:", AmountInWords(p.AmountTendered, currency))
	row("Mora:", money(p.PenaltyPortion))
	row("Interés:", money(p.InterestPortion))
	row("Capital:", money(p.PrincipalPortion))
	if p.Change.Sign() > 0 {
		row("Cambio devuelto:", money(p.Change))
	}
	pdf.Ln(4)

	row("Capital anterior:", money(p.PrincipalBefore))
	row("Capital pendiente:", money(p.PrincipalAfter))
	if p.Extraordinary {
		row("Observación:", "Abono extraordinario a capital")
	}
	if p.Note != nil && strings.TrimSpace(*p.Note) != "" {
		row("Nota:", *p.Note)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("recibo_%s.pdf", p.ID.String()[:8])
	return buf.Bytes(), filename, nil
}

// LoanStatementCSV lists every payment of a loan with its allocation and the
// running principal balance (estado de cuenta).
func (s *ReportService) LoanStatementCSV(ctx context.Context, loanID uuid.UUID) ([]byte, string, error) {
	loan, err := s.loanRepo.FindByIDWithDetails(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("%w: préstamo %s", ErrNotFound, loanID)
		}
		return nil, "", err
	}
	payments, err := s.paymentRepo.FindByLoan(ctx, loanID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load payments: %w", err)
	}

	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	_ = writer.Write([]string{"Estado de Cuenta", s.now().Format("2006-01-02 15:04")})
	_ = writer.Write([]string{"Préstamo", loan.ID.String()})
	if loan.Client.ID != uuid.Nil {
		_ = writer.Write([]string{"Cliente", loan.Client.FullName, models.MaskIdentity(loan.Client.Identity)})
	}
	_ = writer.Write([]string{"Capital Otorgado", loan.OriginalPrincipal.StringFixed(2), loan.Currency})
	_ = writer.Write([]string{"Estado", loan.Status})
	_ = writer.Write([]string{""})

	_ = writer.Write([]string{"Fecha", "Recibo", "Forma de Pago", "Monto", "Mora", "Interés", "Capital", "Cambio", "Saldo Capital", "Extraordinario"})
	for _, p := range payments {
		extraordinary := "No"
		if p.Extraordinary {
			extraordinary = "Sí"
		}
		_ = writer.Write([]string{
			p.PaidAt.Format("2006-01-02 15:04"),
			p.ID.String(),
			paymentMethodLabel(p.Method),
			p.AmountTendered.StringFixed(2),
			p.PenaltyPortion.StringFixed(2),
			p.InterestPortion.StringFixed(2),
			p.PrincipalPortion.StringFixed(2),
			p.Change.StringFixed(2),
			p.PrincipalAfter.StringFixed(2),
			extraordinary,
		})
	}
	_ = writer.Write([]string{""})
	_ = writer.Write([]string{"Total Mora", loan.PenaltyPaid.StringFixed(2)})
	_ = writer.Write([]string{"Total Interés", loan.InterestPaid.StringFixed(2)})
	_ = writer.Write([]string{"Total Capital", loan.PrincipalPaid.StringFixed(2)})
	_ = writer.Write([]string{"Capital Pendiente", loan.PendingPrincipal.StringFixed(2)})

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("estado_cuenta_%s.csv", loan.ID.String()[:8])
	return buf.Bytes(), filename, nil
}

func paymentMethodLabel(method string) string {
	switch method {
	case models.PaymentMethodTransfer:
		return "Transferencia"
	case models.PaymentMethodDeposit:
		return "Depósito"
	case models.PaymentMethodOther:
		return "Otro"
	}
	return "Efectivo"
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
