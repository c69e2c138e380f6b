package proposal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freelatracker/internal/auth"
	"freelatracker/internal/db/dbtest"
)

func TestRepositoryOwnerScopedCRUD(t *testing.T) {
	ctx := context.Background()
	database := dbtest.Open(t)
	users := auth.NewRepository(database)
	repo := NewRepository(database)

	ana, err := users.CreateUser(ctx, "ana@example.com", "hash")
	require.NoError(t, err)
	bob, err := users.CreateUser(ctx, "bob@example.com", "hash")
	require.NoError(t, err)

	link := "https://example.com/job/1"
	created, err := repo.Create(ctx, ana.ID, ProposalInput{
		ClientName: "Acme", Platform: "Upwork", ProjectTitle: "Landing page",
		ProjectLink: &link, Amount: 500, Currency: "USD", Status: StatusSent,
	})
	require.NoError(t, err)
	assert.Equal(t, ana.ID, created.OwnerID)
	require.NotNil(t, created.ProjectLink)
	assert.Nil(t, created.Notes)

	_, err = repo.Get(ctx, bob.ID, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	input := created.Input()
	input.Status = StatusAccepted
	updated, err := repo.Update(ctx, ana.ID, created.ID, input)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, updated.Status)

	_, err = repo.Update(ctx, bob.ID, created.ID, input)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Create(ctx, ana.ID, ProposalInput{
		ClientName: "Beta", Platform: "Fiverr", ProjectTitle: "Logo", Amount: 80, Currency: "USD", Status: StatusRejected,
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, ana.ID, ProposalInput{
		ClientName: "Gamma", Platform: "Direct", ProjectTitle: "API", Amount: 900, Currency: "EUR", Status: StatusDraft,
	})
	require.NoError(t, err)

	list, err := repo.List(ctx, ana.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	stats, err := repo.Stats(ctx, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Accepted: 1, Rejected: 1, Pending: 1, ConversionPercent: 33.33}, stats)

	empty, err := repo.Stats(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, empty)

	assert.ErrorIs(t, repo.Delete(ctx, bob.ID, created.ID), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, ana.ID, created.ID))
	_, err = repo.Get(ctx, ana.ID, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
