package socialcredit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletscope/walletscope/internal/profile"
)

func allTabs() profile.Tabs {
	return profile.Tabs{
		Name: true, Bio: true, Avatar: true, Twitter: true, Discord: true,
		Telegram: true, Github: true, Website: true, Email: true,
	}
}

func TestCompute_Maximum(t *testing.T) {
	res := Compute(Inputs{SignedIn: true, Tabs: allTabs(), ConnectedChains: 8})
	assert.Equal(t, 795, res.Total)
	assert.Equal(t, 795, res.MaxTotal)
	assert.True(t, res.DiscordEligible)
	assert.Len(t, res.Components, 12)
}

func TestCompute_RatingBonusClampedAtMax(t *testing.T) {
	res := Compute(Inputs{SignedIn: true, Tabs: allTabs(), ConnectedChains: 20, WalletRatingAvg: 5, WalletRatingCount: 3})
	assert.Equal(t, MaxTotal, res.Total)
}

func TestCompute_DiscordRequiresEveryTab(t *testing.T) {
	tabs := allTabs()
	tabs.Telegram = false
	res := Compute(Inputs{SignedIn: true, Tabs: tabs, ConnectedChains: 8, WalletRatingAvg: 5, WalletRatingCount: 9})
	assert.False(t, res.DiscordEligible)
	assert.Equal(t, 795-43+1, res.Total)

	res = Compute(Inputs{SignedIn: false, Tabs: allTabs(), ConnectedChains: 8})
	assert.False(t, res.DiscordEligible)
	assert.Equal(t, 9*43+8, res.Total)
}

func TestCompute_Empty(t *testing.T) {
	res := Compute(Inputs{})
	assert.Equal(t, 0, res.Total)
	assert.False(t, res.DiscordEligible)
}

func TestCompute_PenaltyNeverNegative(t *testing.T) {
	res := Compute(Inputs{ConnectedChains: 2, WalletRatingAvg: 1, WalletRatingCount: 4})
	assert.Equal(t, 0, res.Total)

	res = Compute(Inputs{SignedIn: true, WalletRatingAvg: 1.25, WalletRatingCount: 1})
	assert.Equal(t, 395, res.Total)
}

func TestRatingAdjustment(t *testing.T) {
	assert.Equal(t, 1, RatingAdjustment(4.75, 1))
	assert.Equal(t, 0, RatingAdjustment(4.74, 10))
	assert.Equal(t, -5, RatingAdjustment(1.25, 1))
	assert.Equal(t, 0, RatingAdjustment(1.26, 1))
	assert.Equal(t, 0, RatingAdjustment(5, 0))
	assert.Equal(t, 0, RatingAdjustment(1, 0))
}

func TestHandler_GetSocialCredit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := profile.NewMemoryStore()
	addr := "0x3333333333333333333333333333333333333333"
	require.NoError(t, store.Upsert(context.Background(), &profile.Profile{
		Address: addr, SignedIn: true, Tabs: profile.Tabs{Name: true}, ConnectedChains: 2,
	}))

	r := gin.New()
	NewHandler(store).RegisterRoutes(r.Group("/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/profiles/"+addr+"/social-credit", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SocialCredit Result `json:"socialCredit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 400+43+2, resp.SocialCredit.Total)
	assert.False(t, resp.SocialCredit.DiscordEligible)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/profiles/0xunknown/social-credit", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.SocialCredit.Total)
}
