package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/jobs"
	"github.com/sjperalta/fintera-prestamos/internal/models"
)

func TestClassificationService_UpdateAll(t *testing.T) {
	env := newTestEnv(t, day(40))
	late := env.openLoan(t, "1000")
	current := env.openLoan(t, "1000")
	env.pay(t, current.ID, "150", day(30))
	idle := env.store.addClient("Sin Prestamos", "0801199900099")

	summary, err := env.classes.UpdateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.ByStatus[models.ClassificationAtrasado])
	assert.Equal(t, 2, summary.ByStatus[models.ClassificationAlDia])

	assert.Equal(t, models.ClassificationAtrasado, env.store.clients[late.ClientID].Classification)
	assert.NotNil(t, env.store.clients[late.ClientID].ClassifiedAt)
	assert.Equal(t, models.ClassificationAlDia, env.store.clients[current.ClientID].Classification)
	assert.Nil(t, env.store.clients[idle.ID].ClassifiedAt, "unchanged clients are not rewritten")

	// the pass never writes loans
	assert.Equal(t, models.LoanStatusActive, env.store.loan(late.ID).Status)
}

func TestClassificationService_UpdateAllSkipsBrokenLoan(t *testing.T) {
	env := newTestEnv(t, day(40))
	env.classes.pageSize = 1
	broken := env.openLoan(t, "1000")
	late := env.openLoan(t, "1000")
	env.store.mu.Lock()
	env.store.insts[broken.ID][0].Sequence = 4
	env.store.mu.Unlock()

	summary, err := env.classes.UpdateAll(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrInvariantViolation))
	assert.True(t, errors.Is(err, jobs.ErrPermanent), "a rerun would fail the same way")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, models.ClassificationAtrasado, env.store.clients[late.ClientID].Classification)
	assert.Equal(t, models.ClassificationAlDia, env.store.clients[broken.ClientID].Classification)
}

func TestClassificationService_Paginates(t *testing.T) {
	env := newTestEnv(t, day(65))
	env.classes.pageSize = 2
	for i := 0; i < 5; i++ {
		env.openLoan(t, "100")
	}

	summary, err := env.classes.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 5, summary.ByStatus[models.ClassificationMoroso])
}

func TestClassificationService_Classify(t *testing.T) {
	env := newTestEnv(t, day(65))
	loan := env.openLoan(t, "1000")

	c, err := env.classes.Classify(context.Background(), loan.ClientID)
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationMoroso, c.Status)
	assert.Equal(t, loan.ID, c.WorstLoanID)

	// read-only
	assert.Equal(t, models.ClassificationAlDia, env.store.clients[loan.ClientID].Classification)

	_, err = env.classes.Classify(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClassificationLabel(t *testing.T) {
	assert.Equal(t, "Moroso", ClassificationLabel(models.ClassificationMoroso))
	assert.Equal(t, "Atrasado", ClassificationLabel(models.ClassificationAtrasado))
	assert.Equal(t, "Al día", ClassificationLabel(models.ClassificationAlDia))
}
