//go:build integration

package flags

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletscope/walletscope/internal/testutil"
)

func TestPostgresStore_AppendListDelete(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, cat := range []string{"sanctioned", "scam", "Rug Pull"} {
		require.NoError(t, s.Append(ctx, &Flag{
			Chain:      "ETH",
			Address:    "0xABC",
			Source:     "ofac",
			Category:   ParseCategory(cat),
			Confidence: ConfidenceHigh,
			FirstSeen:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	n, err := s.Count(ctx, "eth", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := s.All(ctx, "eth", "0xabc")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, CategorySanctioned, all[0].Category.Kind)
	assert.Equal(t, Other("Rug Pull"), all[2].Category)

	page, err := s.List(ctx, "eth", "0xabc", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Flags, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, all[2].ID, page.Flags[0].ID)

	page, err = s.List(ctx, "eth", "0xabc", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Flags, 1)
	assert.Equal(t, all[0].ID, page.Flags[0].ID)

	deleted, err := s.Delete(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, all[0].ID, deleted.ID)

	_, err = s.Get(ctx, all[0].ID)
	assert.ErrorIs(t, err, ErrFlagNotFound)

	n, _ = s.Count(ctx, "eth", "0xabc")
	assert.Equal(t, 2, n)
}

func TestPostgresStore_AppendOversizedStrings(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.Append(ctx, &Flag{
		Chain:    "eth",
		Address:  "0xabc",
		Source:   strings.Repeat("provider", 20),
		Category: ParseCategory(strings.Repeat("x", 65)),
		Flagger:  strings.Repeat("f", 200),
		Reason:   strings.Repeat("a", 499) + "é",
	}))

	all, err := s.All(ctx, "eth", "0xabc")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Source, MaxSourceLength)
	assert.Len(t, all[0].Category.String(), MaxCategoryLength)
}
