package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/repository"
	"github.com/sjperalta/fintera-prestamos/internal/services"
)

// errorStatus maps service and engine errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, engine.ErrInvalidTimeRange),
		errors.Is(err, engine.ErrInvalidPaymentAmount),
		errors.Is(err, engine.ErrInvalidPaymentMethod),
		errors.Is(err, engine.ErrInvalidPaymentID),
		errors.Is(err, engine.ErrUnknownFrequency):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, engine.ErrUnknownLoanOrInstallment):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDuplicate),
		errors.Is(err, engine.ErrDuplicatePayment),
		errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, engine.ErrLoanClosed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "Error interno del servidor"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// uuidParam reads a path parameter as a UUID, replying 400 when malformed
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID inválido"})
		return uuid.Nil, false
	}
	return id, true
}

// parseTime accepts RFC 3339 timestamps and plain dates (midnight UTC)
func parseTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func listQuery(c *gin.Context) *repository.ListQuery {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PerPage < 1 || query.PerPage > 100 {
		query.PerPage = 20
	}
	query.Search = c.Query("search")

	// Parse sort parameter (format: field-direction)
	if sort := c.Query("sort"); sort != "" {
		parts := strings.Split(sort, "-")
		query.SortBy = parts[0]
		if len(parts) > 1 {
			query.SortDir = parts[1]
		}
	}
	return query
}

func pagination(query *repository.ListQuery, total int64) gin.H {
	return gin.H{
		"page":        query.Page,
		"per_page":    query.PerPage,
		"total":       total,
		"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
	}
}

func transitionsResponse(transitions []engine.Transition) []gin.H {
	out := make([]gin.H, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, gin.H{
			"entity":    t.Entity,
			"entity_id": t.EntityID,
			"event":     t.Event,
			"from":      t.From,
			"to":        t.To,
		})
	}
	return out
}

func duesResponse(d engine.Dues) gin.H {
	return gin.H{
		"penalty":   d.Penalty,
		"interest":  d.Interest,
		"principal": d.Principal,
		"total":     d.Total(),
	}
}

// optionalDecimal keeps absent fields apart from explicit zeros
func optionalDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}
