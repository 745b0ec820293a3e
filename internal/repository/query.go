package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrVersionConflict is returned when a loan changed between read and write
	ErrVersionConflict = errors.New("el préstamo fue modificado por otra operación")
	// ErrDuplicateKey is returned when an insert hits a primary or unique key
	ErrDuplicateKey = errors.New("registro duplicado")
)

// ListQuery represents common query parameters
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
	SortBy  string
	SortDir string
	Filters map[string]string
}

// NewListQuery creates a ListQuery with defaults
func NewListQuery() *ListQuery {
	return &ListQuery{
		Page:    1,
		PerPage: 20,
		Filters: make(map[string]string),
	}
}

// Offset returns the row offset of the current page
func (q *ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PerPage
}

// orderBy builds an ORDER BY clause from the query, accepting only the listed columns
func (q *ListQuery) orderBy(allowed map[string]bool, fallback string) string {
	col := strings.ToLower(strings.TrimSpace(q.SortBy))
	if !allowed[col] {
		return fallback
	}
	if strings.EqualFold(q.SortDir, "desc") {
		return col + " DESC"
	}
	return col + " ASC"
}

func isDuplicateKeyError(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && (constraintName == "" || pgErr.ConstraintName == constraintName)
	}
	return false
}
