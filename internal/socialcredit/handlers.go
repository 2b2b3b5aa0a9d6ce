package socialcredit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/walletscope/walletscope/internal/logging"
	"github.com/walletscope/walletscope/internal/profile"
)

// Handler serves social-credit scores.
type Handler struct {
	profiles profile.Store
}

// NewHandler creates a social-credit handler.
func NewHandler(profiles profile.Store) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes sets up social-credit routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/profiles/:address/social-credit", h.GetSocialCredit)
}

// GetSocialCredit handles GET /v1/profiles/:address/social-credit
func (h *Handler) GetSocialCredit(c *gin.Context) {
	p, err := profile.Lookup(c.Request.Context(), h.profiles, c.Param("address"))
	if err != nil {
		logging.L(c.Request.Context()).Error("social credit profile lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load profile",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      p.Address,
		"socialCredit": Compute(FromProfile(p)),
	})
}
