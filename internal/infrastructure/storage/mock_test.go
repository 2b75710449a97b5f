package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockRepository_UpsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()

	require.NoError(t, repo.UpsertMerchant(ctx, "M1", "One", StatusActive))
	require.NoError(t, repo.UpsertMerchant(ctx, "M1", "Uno", StatusInactive))

	m, err := repo.FindByMID(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, "Uno", m.Name)
	assert.Equal(t, 1, repo.Count())
	assert.Equal(t, 2, repo.UpsertCalls)
	assert.Equal(t, "Uno", repo.LastUpserted.Name)
}

func TestMockRepository_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	boom := errors.New("disk full")
	repo.UpsertErrByMID["BAD"] = boom

	assert.ErrorIs(t, repo.UpsertMerchant(ctx, "BAD", "x", StatusActive), boom)
	assert.NoError(t, repo.UpsertMerchant(ctx, "GOOD", "y", StatusActive))
	assert.Equal(t, 1, repo.Count())
}

func TestMockRepository_ListMatchesStoreSemantics(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	repo.Seed("A1", "Blue Bottle", StatusActive)
	repo.Seed("B2", "Corner Deli", StatusInactive)
	repo.Seed("C3", "Bottle Shop", StatusActive)

	result, err := repo.ListMerchants(ctx, MerchantFilters{Search: "BOTTLE"})
	require.NoError(t, err)
	require.Len(t, result.Merchants, 2)
	assert.Equal(t, "C3", result.Merchants[0].MID)

	page, err := repo.ListMerchants(ctx, MerchantFilters{Limit: 1, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Merchants)
	assert.Equal(t, int64(3), page.TotalCount)
}

func TestMockRepository_ListNegativeOffset(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRepository()
	repo.Seed("A1", "One", StatusActive)
	repo.Seed("B2", "Two", StatusActive)

	page, err := repo.ListMerchants(ctx, MerchantFilters{Limit: 1, Offset: -3})
	require.NoError(t, err)
	require.Len(t, page.Merchants, 1)
	assert.Equal(t, "B2", page.Merchants[0].MID)
	assert.Equal(t, 0, page.Offset)
}
