package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		in   string
		want Confidence
	}{
		{"high", ConfidenceHigh},
		{" HIGH ", ConfidenceHigh},
		{"medium", ConfidenceMedium},
		{"low", ConfidenceLow},
		{"", ConfidenceLow},
		{"certain", ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseConfidence(tt.in), tt.in)
	}
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, Category{Kind: CategorySanctioned}, ParseCategory("Sanctioned"))
	assert.Equal(t, Category{Kind: CategoryScam}, ParseCategory("scam"))
	assert.Equal(t, Category{Kind: CategoryPhishing}, ParseCategory("PHISHING"))

	other := ParseCategory("Rug Pull")
	assert.Equal(t, CategoryOther, other.Kind)
	assert.Equal(t, "Rug Pull", other.Raw)
	assert.Equal(t, "Rug Pull", other.String())

	assert.Equal(t, "other", ParseCategory("").String())
}

func TestCategory_JSON(t *testing.T) {
	b, err := json.Marshal(Flag{Category: ParseCategory("scam")})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"category":"scam"`)

	var f Flag
	require.NoError(t, json.Unmarshal([]byte(`{"category":"mixer"}`), &f))
	assert.Equal(t, Other("mixer"), f.Category)
}

func TestFlag_Normalize(t *testing.T) {
	f := &Flag{Chain: " ETH ", Address: "0xABCdef", Source: "OFAC", Confidence: "weird"}
	require.NoError(t, f.Normalize())
	assert.Equal(t, "eth", f.Chain)
	assert.Equal(t, "0xabcdef", f.Address)
	assert.Equal(t, "ofac", f.Source)
	assert.Equal(t, ConfidenceLow, f.Confidence)
	assert.Equal(t, CategoryOther, f.Category.Kind)
	assert.False(t, f.FirstSeen.IsZero())

	assert.ErrorIs(t, (&Flag{Chain: "eth"}).Normalize(), ErrInvalidInput)
	assert.ErrorIs(t, (&Flag{Address: "0x1"}).Normalize(), ErrInvalidInput)
}

func TestFlag_NormalizeBoundsColumns(t *testing.T) {
	f := &Flag{
		Chain:    "eth",
		Address:  "0xabc",
		Source:   strings.Repeat("S", 100),
		Category: ParseCategory(strings.Repeat("é", 40)),
		Flagger:  strings.Repeat("f", 300),
		Reason:   strings.Repeat("r", 900),
	}
	require.NoError(t, f.Normalize())
	assert.Equal(t, strings.Repeat("s", MaxSourceLength), f.Source)
	assert.Len(t, f.Flagger, MaxFlaggerLength)
	assert.Len(t, f.Reason, 500)
	assert.Equal(t, CategoryOther, f.Category.Kind)
	assert.Equal(t, strings.Repeat("é", 32), f.Category.Raw)
	assert.True(t, utf8.ValidString(f.Category.Raw))
}

func TestMemoryStore_AppendCountCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, &Flag{Chain: "ETH", Address: "0xAAA", Source: SourceUser}))
	require.NoError(t, s.Append(ctx, &Flag{Chain: "eth", Address: "0xaaa", Source: SourceUser}))

	n, err := s.Count(ctx, "Eth", "0XAAA")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, _ = s.Count(ctx, "eth", "0xbbb")
	assert.Equal(t, 0, n)
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(ctx, &Flag{Chain: "eth", Address: "0xabc"})
		}()
	}
	wg.Wait()

	n, err := s.Count(ctx, "eth", "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestMemoryStore_ListPaginates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &Flag{
			ID:        fmt.Sprintf("flg_%d", i),
			Chain:     "eth",
			Address:   "0xabc",
			FirstSeen: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := s.List(ctx, "eth", "0xabc", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Flags, 2)
	assert.Equal(t, "flg_4", page.Flags[0].ID)
	assert.Equal(t, "flg_3", page.Flags[1].ID)
	assert.True(t, page.HasMore)

	page, err = s.List(ctx, "eth", "0xabc", page.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, "flg_2", page.Flags[0].ID)
	assert.Equal(t, "flg_1", page.Flags[1].ID)

	page, err = s.List(ctx, "eth", "0xabc", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Flags, 1)
	assert.Equal(t, "flg_0", page.Flags[0].ID)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestMemoryStore_GetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	f := &Flag{Chain: "eth", Address: "0xabc"}
	require.NoError(t, s.Append(ctx, f))
	require.NotEmpty(t, f.ID)

	got, err := s.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.Address)

	deleted, err := s.Delete(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, deleted.ID)

	n, _ := s.Count(ctx, "eth", "0xabc")
	assert.Equal(t, 0, n)

	_, err = s.Get(ctx, f.ID)
	assert.ErrorIs(t, err, ErrFlagNotFound)
	_, err = s.Delete(ctx, f.ID)
	assert.ErrorIs(t, err, ErrFlagNotFound)
}
