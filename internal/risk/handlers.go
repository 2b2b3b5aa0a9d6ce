package risk

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/logging"
)

// Profiler returns the risk aggregate for a wallet. The wallet summary
// service implements it with short-lived memoisation; *Service implements
// it directly.
type Profiler interface {
	RiskProfile(ctx context.Context, chain, address string) (*WalletRiskAggregate, error)
}

// RiskProfile evaluates the wallet without memoisation.
func (s *Service) RiskProfile(ctx context.Context, chain, address string) (*WalletRiskAggregate, error) {
	return s.Evaluate(ctx, chain, address)
}

// Handler provides HTTP endpoints for wallet risk.
type Handler struct {
	service  *Service
	profiler Profiler
}

// NewHandler creates a risk handler. If profiler is nil the service is used.
func NewHandler(service *Service, profiler Profiler) *Handler {
	if profiler == nil {
		profiler = service
	}
	return &Handler{service: service, profiler: profiler}
}

// RegisterRoutes sets up public risk routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:chain/:address/risk", h.GetRiskProfile)
}

// RegisterAdminRoutes sets up admin-only risk routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/signals/:chain/:address", h.PutSignals)
}

// GetRiskProfile handles GET /v1/wallets/:chain/:address/risk
func (h *Handler) GetRiskProfile(c *gin.Context) {
	agg, err := h.profiler.RiskProfile(c.Request.Context(), c.Param("chain"), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// PutSignals handles PUT /v1/admin/signals/:chain/:address
func (h *Handler) PutSignals(c *gin.Context) {
	var sig BehaviorSignals
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	chain, address := c.Param("chain"), c.Param("address")
	if err := h.service.RecordSignals(c.Request.Context(), chain, address, sig); err != nil {
		writeError(c, err)
		return
	}
	logging.L(c.Request.Context()).Info("behavior signals recorded", "chain", chain, "address", address)

	agg, err := h.service.Evaluate(c.Request.Context(), chain, address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, flags.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": err.Error(),
		})
		return
	}
	logging.L(c.Request.Context()).Error("risk request failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Failed to evaluate wallet risk",
	})
}
