package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walletscope/walletscope/internal/cache"
	"github.com/walletscope/walletscope/internal/explorer"
)

const (
	addrA = "0x52908400098527886e0f7030069857d2e4169ee7"
	addrB = "0x8617e340b3d01fa5f11f306f4090fd50e238070d"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// flakyProvider wraps a Static provider and can be switched to fail.
type flakyProvider struct {
	*explorer.Static
	mu   sync.Mutex
	down bool
}

func (p *flakyProvider) setDown(v bool) {
	p.mu.Lock()
	p.down = v
	p.mu.Unlock()
}

func (p *flakyProvider) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return errors.New("provider down")
	}
	return nil
}

func (p *flakyProvider) Labels(ctx context.Context, chain string, addrs []string) ([]explorer.AddressLabel, error) {
	if err := p.err(); err != nil {
		return nil, err
	}
	return p.Static.Labels(ctx, chain, addrs)
}

func (p *flakyProvider) Exchanges(ctx context.Context, chain string) ([]explorer.Exchange, error) {
	if err := p.err(); err != nil {
		return nil, err
	}
	return p.Static.Exchanges(ctx, chain)
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

func setup(t *testing.T) (*Service, *flakyProvider, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	backend := cache.NewMemoryBackend(0)
	t.Cleanup(backend.Close)

	p := &flakyProvider{Static: explorer.NewStatic()}
	p.SetLabel("eth", explorer.AddressLabel{Address: addrA, Labels: []string{"exchange"}, Entity: "Binance"})
	p.SetExchanges("eth", []explorer.Exchange{{Name: "Binance", Address: addrA}})
	p.SetTransactions("eth", addrA, []explorer.Transaction{{Hash: "0x1"}, {Hash: "0x2"}})

	return NewService(p, backend, cache.WithClock(clk.Now)), p, clk
}

func TestLabels_CachedRegardlessOfOrder(t *testing.T) {
	svc, p, _ := setup(t)
	ctx := context.Background()

	res, err := svc.Labels(ctx, "eth", []string{addrA, addrB})
	require.NoError(t, err)
	require.Len(t, res.Value, 2)
	assert.Equal(t, &explorer.Label{Name: "Binance", Type: "exchange"}, res.Value[addrA])
	assert.Nil(t, res.Value[addrB])

	_, err = svc.Labels(ctx, "ETH", []string{addrB, addrA, addrA})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Calls())
}

func TestLabels_Validation(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Labels(ctx, "eth", []string{"", " "})
	assert.ErrorIs(t, err, ErrNoAddresses)

	_, err = svc.Labels(ctx, "eth", []string{"0xnothex"})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestLabels_StaleWhenProviderFails(t *testing.T) {
	svc, p, clk := setup(t)
	ctx := context.Background()

	_, err := svc.Labels(ctx, "eth", []string{addrA})
	require.NoError(t, err)

	clk.Advance(LabelsTTL + time.Second)
	p.setDown(true)

	res, err := svc.Labels(ctx, "eth", []string{addrA})
	require.NoError(t, err)
	assert.True(t, res.Stale)
	require.Len(t, res.Value, 1)
	assert.Equal(t, "Binance", res.Value[addrA].Name)
}

func TestExchanges_OriginUnavailableWithoutHistory(t *testing.T) {
	svc, p, _ := setup(t)
	p.setDown(true)

	_, err := svc.Exchanges(context.Background(), "eth")
	assert.ErrorIs(t, err, cache.ErrOriginUnavailable)
}

func TestTransactions_ClampsLimit(t *testing.T) {
	svc, _, _ := setup(t)
	res, err := svc.Transactions(context.Background(), "eth", addrA, 1)
	require.NoError(t, err)
	assert.Len(t, res.Value, 1)

	res, err = svc.Transactions(context.Background(), "eth", addrA, 0)
	require.NoError(t, err)
	assert.Len(t, res.Value, 2)
}

func newRouter(svc *Service, clk *clock) *gin.Engine {
	h := NewHandler(svc)
	h.now = clk.Now
	r := gin.New()
	h.RegisterRoutes(r.Group("/v1"))
	return r
}

func TestHandler_GetLabelsSetsMaxAge(t *testing.T) {
	svc, _, clk := setup(t)
	r := newRouter(svc, clk)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/labels/eth?addresses="+addrA, nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))

	var body struct {
		Labels map[string]*explorer.Label `json:"labels"`
		Stale  bool                       `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Stale)
	assert.Len(t, body.Labels, 1)

	clk.Advance(20 * time.Second)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/labels/eth?addresses="+addrA, nil))
	assert.Equal(t, "public, max-age=40", w.Header().Get("Cache-Control"))
}

func TestHandler_GetLabelsMapsEveryRequestedAddress(t *testing.T) {
	svc, _, clk := setup(t)
	r := newRouter(svc, clk)

	upperB := "0x8617E340B3D01FA5F11F306F4090FD50E238070D"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/labels/eth?addresses="+addrA+","+upperB, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Chain  string                     `json:"chain"`
		Labels map[string]json.RawMessage `json:"labels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "eth", body.Chain)
	require.Len(t, body.Labels, 2)
	assert.JSONEq(t, `{"name":"Binance","type":"exchange"}`, string(body.Labels[addrA]))
	assert.Equal(t, "null", string(body.Labels[addrB]))
}

func TestAddressLabel_Display(t *testing.T) {
	assert.Nil(t, explorer.AddressLabel{Address: addrA}.Display())
	assert.Equal(t, &explorer.Label{Name: "mixer", Type: "mixer"},
		explorer.AddressLabel{Labels: []string{" Mixer "}}.Display())
	assert.Equal(t, &explorer.Label{Name: "Kraken", Type: "other"},
		explorer.AddressLabel{Entity: "Kraken"}.Display())
}

func TestHandler_StaleResponseIsMarked(t *testing.T) {
	svc, p, clk := setup(t)
	r := newRouter(svc, clk)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/exchanges/eth", nil))
	require.Equal(t, http.StatusOK, w.Code)

	clk.Advance(ExchangesTTL + time.Minute)
	p.setDown(true)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/exchanges/eth", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "true", w.Header().Get("X-Cache-Stale"))
}

func TestHandler_Errors(t *testing.T) {
	svc, p, clk := setup(t)
	r := newRouter(svc, clk)

	tests := []struct {
		name string
		path string
		down bool
		want int
	}{
		{"unsupported chain", "/v1/exchanges/dogechain", false, http.StatusBadRequest},
		{"missing addresses", "/v1/labels/eth", false, http.StatusBadRequest},
		{"bad wallet address", "/v1/wallets/eth/0x123/transactions", false, http.StatusBadRequest},
		{"origin down", "/v1/exchanges/base", true, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.setDown(tt.down)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
