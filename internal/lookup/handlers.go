package lookup

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/walletscope/walletscope/internal/cache"
	"github.com/walletscope/walletscope/internal/explorer"
	"github.com/walletscope/walletscope/internal/logging"
	"github.com/walletscope/walletscope/internal/validation"
)

// Handler provides HTTP endpoints for explorer lookups.
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHandler creates a lookup handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

// RegisterRoutes sets up lookup routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("", validation.WalletParamsMiddleware())
	g.GET("/labels/:chain", h.GetLabels)
	g.GET("/wallets/:chain/:address/transactions", h.GetTransactions)
	g.GET("/exchanges/:chain", h.GetExchanges)
}

// GetLabels handles GET /v1/labels/:chain?addresses=a,b
func (h *Handler) GetLabels(c *gin.Context) {
	chain := c.Param("chain")
	res, err := h.service.Labels(c.Request.Context(), chain, strings.Split(c.Query("addresses"), ","))
	if err != nil {
		h.writeError(c, "labels", err)
		return
	}
	h.setCacheHeaders(c, res.Stale, res.StoredAt, res.TTL)
	c.JSON(http.StatusOK, gin.H{
		"chain":    strings.ToLower(chain),
		"labels":   res.Value,
		"stale":    res.Stale,
		"cachedAt": res.StoredAt,
	})
}

// GetTransactions handles GET /v1/wallets/:chain/:address/transactions
func (h *Handler) GetTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.service.Transactions(c.Request.Context(), c.Param("chain"), c.Param("address"), limit)
	if err != nil {
		h.writeError(c, "transactions", err)
		return
	}
	h.setCacheHeaders(c, res.Stale, res.StoredAt, res.TTL)
	c.JSON(http.StatusOK, gin.H{
		"chain":        strings.ToLower(c.Param("chain")),
		"address":      c.Param("address"),
		"transactions": res.Value,
		"stale":        res.Stale,
		"cachedAt":     res.StoredAt,
	})
}

// GetExchanges handles GET /v1/exchanges/:chain
func (h *Handler) GetExchanges(c *gin.Context) {
	res, err := h.service.Exchanges(c.Request.Context(), c.Param("chain"))
	if err != nil {
		h.writeError(c, "exchanges", err)
		return
	}
	h.setCacheHeaders(c, res.Stale, res.StoredAt, res.TTL)
	c.JSON(http.StatusOK, gin.H{
		"chain":     strings.ToLower(c.Param("chain")),
		"exchanges": res.Value,
		"stale":     res.Stale,
		"cachedAt":  res.StoredAt,
	})
}

// setCacheHeaders lets clients reuse a response for the rest of its TTL.
// Stale responses must be revalidated.
func (h *Handler) setCacheHeaders(c *gin.Context, stale bool, storedAt time.Time, ttl time.Duration) {
	if stale {
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Cache-Stale", "true")
		return
	}
	remaining := ttl - h.now().Sub(storedAt)
	if remaining < 0 {
		remaining = 0
	}
	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(remaining.Seconds())))
}

func (h *Handler) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrNoAddresses), errors.Is(err, ErrTooManyAddress), errors.Is(err, ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": err.Error(),
		})
	case errors.Is(err, explorer.ErrUnsupportedChain):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unsupported_chain",
			"message": "chain is not supported by the data provider",
		})
	case errors.Is(err, explorer.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no data for this " + op + " lookup",
		})
	case errors.Is(err, cache.ErrOriginUnavailable):
		logging.L(c.Request.Context()).Warn("origin unavailable", "lookup", op, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "origin_unavailable",
			"message": "The data provider is unavailable, try again shortly",
		})
	default:
		logging.L(c.Request.Context()).Error("lookup failed", "lookup", op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Lookup failed",
		})
	}
}
