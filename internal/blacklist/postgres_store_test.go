//go:build integration

package blacklist

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/testutil"
)

func TestPostgresStore_UpsertGuards(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	_, err := s.Get(ctx, "eth", testAddr)
	assert.ErrorIs(t, err, ErrAggregateNotFound)

	agg, err := s.Upsert(ctx, Update{Chain: "ETH", Address: testAddr, FlagsCount: 5, Blacklisted: true, LastFlagger: "0xF1"})
	require.NoError(t, err)
	assert.Equal(t, "eth", agg.Chain)
	assert.Equal(t, "0xf1", agg.LastFlagger)

	agg, err = s.Upsert(ctx, Update{Chain: "eth", Address: testAddr, FlagsCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, agg.FlagsCount, "older count must not overwrite a newer one")
	assert.True(t, agg.Blacklisted)
	assert.Equal(t, "0xf1", agg.LastFlagger)

	agg, err = s.Upsert(ctx, Update{Chain: "eth", Address: testAddr, FlagsCount: 3, ExpectedThreshold: intPtr(3), SetThreshold: true, Blacklisted: true, AllowDecrease: true})
	require.NoError(t, err)
	assert.Equal(t, 3, agg.FlagsCount)
	require.NotNil(t, agg.FlagThreshold)
	assert.Equal(t, 3, *agg.FlagThreshold)

	_, err = s.Upsert(ctx, Update{Chain: "eth", Address: testAddr, FlagsCount: 4})
	assert.ErrorIs(t, err, ErrThresholdChanged)
}

func TestPostgresGate_ConcurrentFlags(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	fs := flags.NewPostgresStore(db)
	store := NewPostgresStore(db)
	require.NoError(t, fs.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
	g := NewGate(fs, store, 8)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.RecordFlag(ctx, "eth", testAddr, fmt.Sprintf("0xf%d", i), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := g.Status(ctx, "eth", testAddr)
	require.NoError(t, err)
	assert.Equal(t, 20, st.FlagsCount)
	assert.True(t, st.Blacklisted)
}
