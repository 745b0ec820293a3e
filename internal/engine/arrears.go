package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sjperalta/fintera-prestamos/internal/models"
)

// Portfolio is every loan held by one client.
type Portfolio struct {
	ClientID uuid.UUID
	Loans    []LoanSnapshot
}

// Classification is the derived payment health of a client.
type Classification struct {
	ClientID          uuid.UUID
	Status            string
	MaxOverduePeriods decimal.Decimal
	LongestRun        int
	LateInstallments  int
	// WorstLoanID is the loan that decided the status, uuid.Nil when AL_DIA.
	WorstLoanID uuid.UUID
}

// ClassifyError lists the clients that could not be classified and why.
// The other clients of the same call are classified normally.
type ClassifyError struct {
	Failed map[uuid.UUID]error
}

func (e *ClassifyError) Error() string {
	ids := make([]uuid.UUID, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("client %s: %v", id, e.Failed[id]))
	}
	return fmt.Sprintf("%d clients not classified: %s", len(ids), strings.Join(parts, "; "))
}

// Unwrap exposes the per-client errors to errors.Is and errors.As.
func (e *ClassifyError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}

// Classify derives the classification of each client as of asOf. Snapshots
// are advanced on private copies so missed periods that were never
// materialized still count; nothing passed in is modified. A client with a
// loan that cannot be evaluated is left out of the result and reported in a
// *ClassifyError.
func (e *Engine) Classify(ctx context.Context, asOf time.Time, portfolios []Portfolio) (map[uuid.UUID]Classification, error) {
	out := make(map[uuid.UUID]Classification, len(portfolios))
	failed := make(map[uuid.UUID]error)

	for _, p := range portfolios {
		c, err := e.classifyPortfolio(ctx, asOf, p)
		if err != nil {
			failed[p.ClientID] = err
			continue
		}
		out[p.ClientID] = c
	}

	if len(failed) > 0 {
		return out, &ClassifyError{Failed: failed}
	}
	return out, nil
}

func (e *Engine) classifyPortfolio(ctx context.Context, asOf time.Time, p Portfolio) (Classification, error) {
	best := Classification{ClientID: p.ClientID, Status: models.ClassificationAlDia, MaxOverduePeriods: decimal.Zero}

	for _, snap := range p.Loans {
		if snap.Loan.IsClosed() {
			continue
		}
		w, err := newWorkingSet(snap)
		if err != nil {
			return Classification{}, fmt.Errorf("loan %s: %w", snap.Loan.ID, err)
		}
		if err := e.advance(ctx, w, asOf); err != nil {
			return Classification{}, fmt.Errorf("loan %s: %w", snap.Loan.ID, err)
		}
		profile, err := w.arrears(asOf)
		if err != nil {
			return Classification{}, fmt.Errorf("loan %s: %w", snap.Loan.ID, err)
		}

		c := Classification{
			ClientID:          p.ClientID,
			Status:            e.classifyProfile(profile),
			MaxOverduePeriods: profile.MaxOverduePeriods,
			LongestRun:        profile.LongestRun,
			LateInstallments:  profile.Late,
			WorstLoanID:       snap.Loan.ID,
		}
		if worse(c, best) {
			best = c
		}
	}

	if best.Status == models.ClassificationAlDia {
		best.WorstLoanID = uuid.Nil
	}
	return best, nil
}

func (e *Engine) classifyProfile(p arrearsProfile) string {
	switch {
	case p.MaxOverduePeriods.GreaterThan(e.policy.EscalationWindow),
		p.LongestRun >= e.policy.MaxConsecutiveMissed:
		return models.ClassificationMoroso
	case p.MaxOverduePeriods.GreaterThan(e.policy.GracePeriods):
		return models.ClassificationAtrasado
	}
	return models.ClassificationAlDia
}

// worse orders by status first, then by how long the loan has been overdue.
func worse(a, b Classification) bool {
	ra, rb := models.ClassificationRank(a.Status), models.ClassificationRank(b.Status)
	if ra != rb {
		return ra > rb
	}
	return a.MaxOverduePeriods.GreaterThan(b.MaxOverduePeriods)
}
