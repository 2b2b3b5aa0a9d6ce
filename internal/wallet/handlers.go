package wallet

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/logging"
	"github.com/walletscope/walletscope/internal/validation"
)

// Handler provides HTTP endpoints for wallet views.
type Handler struct {
	service *Service
}

// NewHandler creates a wallet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up wallet routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("", validation.WalletParamsMiddleware())
	g.GET("/wallets/:chain/:address", h.GetSummary)
	g.GET("/wallets/:chain/:address/reputation", h.GetReputation)
}

// GetSummary handles GET /v1/wallets/:chain/:address
func (h *Handler) GetSummary(c *gin.Context) {
	s, err := h.service.Summary(c.Request.Context(), c.Param("chain"), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, s)
}

// GetReputation handles GET /v1/wallets/:chain/:address/reputation
func (h *Handler) GetReputation(c *gin.Context) {
	v, err := h.service.Reputation(c.Request.Context(), c.Param("chain"), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, flags.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": err.Error(),
		})
		return
	}
	logging.L(c.Request.Context()).Error("wallet view failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Failed to load wallet",
	})
}
