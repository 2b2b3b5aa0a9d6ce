package blacklist

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/walletscope/walletscope/internal/auth"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/logging"
	"github.com/walletscope/walletscope/internal/pagination"
	"github.com/walletscope/walletscope/internal/profile"
	"github.com/walletscope/walletscope/internal/reputation"
	"github.com/walletscope/walletscope/internal/validation"
)

// Handler provides HTTP endpoints for flag submission and status.
type Handler struct {
	gate     *Gate
	flags    flags.Store
	profiles profile.Store
}

// NewHandler creates a blacklist handler.
func NewHandler(gate *Gate, fs flags.Store, profiles profile.Store) *Handler {
	return &Handler{gate: gate, flags: fs, profiles: profiles}
}

// RegisterRoutes sets up public flag routes. Submission goes through
// RegisterProtectedRoutes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/flags/:chain/:address", validation.WalletParamsMiddleware(), h.GetStatus)
	r.GET("/flags/:chain/:address/list", validation.WalletParamsMiddleware(), h.ListFlags)
}

// RegisterProtectedRoutes sets up routes that need a signed-in wallet. The
// caller installs auth and quota middleware on r.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/flags/:chain/:address", validation.WalletParamsMiddleware(), h.AddFlag)
}

// RegisterAdminRoutes sets up moderation routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.DELETE("/flags/:id", h.DeleteFlag)
	r.PUT("/thresholds/:chain/:address", validation.WalletParamsMiddleware(), h.PutThreshold)
}

// AddFlagRequest is the body of POST /v1/flags/:chain/:address
type AddFlagRequest struct {
	Reason string `json:"reason"`
}

// AddFlag handles POST /v1/flags/:chain/:address
func (h *Handler) AddFlag(c *gin.Context) {
	flagger := auth.GetAuthenticatedWallet(c)
	if flagger == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Sign in to flag a wallet.",
		})
		return
	}

	var req AddFlagRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid request body",
			})
			return
		}
	}
	req.Reason = validation.SanitizeString(req.Reason, validation.MaxReasonLength)

	ctx := c.Request.Context()
	chain, address := c.Param("chain"), c.Param("address")
	st, err := h.gate.RecordFlag(ctx, chain, address, flagger, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	logging.L(ctx).Info("wallet flagged",
		"chain", st.Chain, "address", st.Address, "flagger", flagger,
		"flags", st.FlagsCount, "blacklisted", st.Blacklisted)

	c.JSON(http.StatusCreated, gin.H{
		"flagsCount":  st.FlagsCount,
		"blacklisted": st.Blacklisted,
		"trustScore":  h.trustScore(ctx, st.Address, st.FlagsCount),
	})
}

// GetStatus handles GET /v1/flags/:chain/:address
//
// Status is always read from the store; it is never served from a cache.
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.gate.Status(ctx, c.Param("chain"), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"chain":              st.Chain,
		"address":            st.Address,
		"flags":              st.FlagsCount,
		"isBlacklisted":      st.Blacklisted,
		"lastFlagger":        st.LastFlagger,
		"showBalance":        st.Blacklisted,
		"effectiveThreshold": st.EffectiveThreshold,
		"trustScore":         h.trustScore(ctx, st.Address, st.FlagsCount),
	})
}

// ListFlags handles GET /v1/flags/:chain/:address/list
func (h *Handler) ListFlags(c *gin.Context) {
	page, err := h.flags.List(c.Request.Context(),
		c.Param("chain"), c.Param("address"),
		c.Query("cursor"), pagination.ParseLimit(c.Query("limit")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// DeleteFlag handles DELETE /v1/admin/flags/:id
func (h *Handler) DeleteFlag(c *gin.Context) {
	st, err := h.gate.RemoveFlag(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

// PutThresholdRequest is the body of PUT /v1/admin/thresholds/:chain/:address.
// A null threshold clears the override.
type PutThresholdRequest struct {
	Threshold *int `json:"threshold"`
}

// PutThreshold handles PUT /v1/admin/thresholds/:chain/:address
func (h *Handler) PutThreshold(c *gin.Context) {
	var req PutThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	st, err := h.gate.SetThreshold(c.Request.Context(), c.Param("chain"), c.Param("address"), req.Threshold)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

// trustScore degrades to zero verified links when the profile read fails.
func (h *Handler) trustScore(ctx context.Context, address string, flagsCount int) int {
	links := 0
	if h.profiles != nil {
		p, err := profile.Lookup(ctx, h.profiles, address)
		if err != nil {
			logging.L(ctx).Warn("profile lookup failed", "address", address, "error", err)
		} else {
			links = p.VerifiedLinks
		}
	}
	return reputation.TrustScore(links, flagsCount)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, flags.ErrInvalidInput),
		errors.Is(err, ErrInvalidThreshold),
		errors.Is(err, pagination.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": err.Error(),
		})
	case errors.Is(err, flags.ErrFlagNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Flag not found",
		})
	default:
		logging.L(c.Request.Context()).Error("flag request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to process flag request",
		})
	}
}

// FlaggerKey keys the daily flag quota by the signed-in wallet.
func FlaggerKey(c *gin.Context) string {
	return auth.GetAuthenticatedWallet(c)
}
