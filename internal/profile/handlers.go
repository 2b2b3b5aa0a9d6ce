package profile

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/walletscope/walletscope/internal/logging"
)

// Handler exposes profile read and admin seed endpoints.
type Handler struct {
	store Store
}

// NewHandler creates a profile handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up public profile routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/profiles/:address", h.GetProfile)
}

// RegisterAdminRoutes sets up admin-only profile routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/profiles/:address", h.PutProfile)
}

// GetProfile handles GET /v1/profiles/:address
func (h *Handler) GetProfile(c *gin.Context) {
	p, err := Lookup(c.Request.Context(), h.store, c.Param("address"))
	if err != nil {
		logging.L(c.Request.Context()).Error("profile lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load profile",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// PutProfile handles PUT /v1/admin/profiles/:address
func (h *Handler) PutProfile(c *gin.Context) {
	var p Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	p.Address = c.Param("address")

	if err := h.store.Upsert(c.Request.Context(), &p); err != nil {
		if errors.Is(err, ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
			return
		}
		logging.L(c.Request.Context()).Error("profile upsert failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to save profile",
		})
		return
	}

	saved, err := Lookup(c.Request.Context(), h.store, p.Address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": saved})
}
