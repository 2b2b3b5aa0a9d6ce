package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletscope/walletscope/internal/blacklist"
	"github.com/walletscope/walletscope/internal/cache"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/profile"
	"github.com/walletscope/walletscope/internal/reputation"
	"github.com/walletscope/walletscope/internal/risk"
)

const testAddr = "0x52908400098527886e0f7030069857d2e4169ee7"

func init() {
	gin.SetMode(gin.TestMode)
}

type countingEvaluator struct {
	inner *risk.Service
	calls atomic.Int32
}

func (e *countingEvaluator) Evaluate(ctx context.Context, chain, address string) (*risk.WalletRiskAggregate, error) {
	e.calls.Add(1)
	return e.inner.Evaluate(ctx, chain, address)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *Service
	eval     *countingEvaluator
	gate     *blacklist.Gate
	signals  *risk.MemorySignalStore
	profiles *profile.MemoryStore
	clock    *clock
}

func newFixture(t *testing.T, signer *reputation.Signer) *fixture {
	t.Helper()
	fs := flags.NewMemoryStore()
	signals := risk.NewMemorySignalStore()
	eval := &countingEvaluator{inner: risk.NewService(fs, signals, risk.NewMemoryStore())}
	gate := blacklist.NewGate(fs, blacklist.NewMemoryStore(), 3)
	profiles := profile.NewMemoryStore()
	backend := cache.NewMemoryBackend(0)
	t.Cleanup(backend.Close)
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}

	return &fixture{
		svc:      NewService(eval, gate, profiles, backend, signer, cache.WithClock(clk.Now)),
		eval:     eval,
		gate:     gate,
		signals:  signals,
		profiles: profiles,
		clock:    clk,
	}
}

func TestRiskProfile_Memoised(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.RiskProfile(ctx, "eth", testAddr)
	require.NoError(t, err)
	_, err = f.svc.RiskProfile(ctx, "ETH", testAddr)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.eval.calls.Load())

	f.clock.Advance(SummaryTTL)
	_, err = f.svc.RiskProfile(ctx, "eth", testAddr)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.eval.calls.Load())
}

func TestRiskProfile_InvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.RiskProfile(context.Background(), "eth", " ")
	assert.ErrorIs(t, err, flags.ErrInvalidInput)
}

func TestReputation_UnknownWallet(t *testing.T) {
	f := newFixture(t, nil)

	v, err := f.svc.Reputation(context.Background(), "eth", testAddr)
	require.NoError(t, err)
	assert.Nil(t, v.Reputation.Score)
	assert.Equal(t, reputation.LabelUnknown, v.Reputation.Label)
	assert.Equal(t, reputation.TrustBase, v.TrustScore)
	assert.Nil(t, v.Attestation)
}

func TestReputation_BlendsRiskAndRatings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.signals.Put(ctx, "eth", testAddr, risk.BehaviorSignals{MixerProximity: true}))
	require.NoError(t, f.profiles.Upsert(ctx, &profile.Profile{
		Address:       testAddr,
		VerifiedLinks: 2,
		TxRatingAvg:   5,
		TxRatingCount: 4,
	}))

	v, err := f.svc.Reputation(ctx, "eth", testAddr)
	require.NoError(t, err)

	// risk 10 -> safety 90; tx (5-1)*25 = 100; 0.7*90 + 0.3*100 = 93
	require.NotNil(t, v.Reputation.Score)
	assert.Equal(t, 93, *v.Reputation.Score)
	assert.Equal(t, reputation.LabelStrong, v.Reputation.Label)
	assert.Equal(t, 70, v.TrustScore)
}

func TestSummary_FlagStatusIsLive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	s, err := f.svc.Summary(ctx, "eth", testAddr)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Blacklist.FlagsCount)

	for _, flagger := range []string{"0xa1", "0xa2", "0xa3"} {
		_, err := f.gate.RecordFlag(ctx, "eth", testAddr, flagger, "scam")
		require.NoError(t, err)
	}

	s, err = f.svc.Summary(ctx, "eth", testAddr)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Blacklist.FlagsCount)
	assert.True(t, s.Blacklist.Blacklisted)
	assert.Equal(t, 20, s.Reputation.TrustScore)
	// the risk evaluation is still the memoised one
	assert.Empty(t, s.Risk.Flags)
	assert.Equal(t, int32(1), f.eval.calls.Load())

	f.clock.Advance(SummaryTTL + time.Second)
	s, err = f.svc.Summary(ctx, "eth", testAddr)
	require.NoError(t, err)
	assert.Len(t, s.Risk.Flags, 3)
}

func TestReputation_Attested(t *testing.T) {
	signer := reputation.NewSigner("test-secret")
	f := newFixture(t, signer)

	v, err := f.svc.Reputation(context.Background(), "eth", testAddr)
	require.NoError(t, err)
	require.NotNil(t, v.Attestation)

	payload := struct {
		Chain      string                `json:"chain"`
		Address    string                `json:"address"`
		Reputation reputation.Reputation `json:"reputation"`
		TrustScore int                   `json:"trustScore"`
	}{v.Chain, v.Address, v.Reputation, v.TrustScore}
	assert.True(t, signer.Verify(payload, v.Attestation.Value))
}

func TestHandler_Routes(t *testing.T) {
	f := newFixture(t, nil)
	r := gin.New()
	NewHandler(f.svc).RegisterRoutes(r.Group("/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallets/eth/"+testAddr, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var s Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, testAddr, s.Address)
	assert.Equal(t, risk.LevelLow, s.Risk.RiskLevel)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallets/eth/"+testAddr+"/reputation", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallets/eth/nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
