package ingest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/walletscope/walletscope/internal/flags"
	"github.com/walletscope/walletscope/internal/logging"
)

// Handler exposes batch import to moderators.
type Handler struct {
	importer *Importer
}

// NewHandler creates an ingest handler.
func NewHandler(importer *Importer) *Handler {
	return &Handler{importer: importer}
}

// RegisterAdminRoutes sets up the import route under the admin group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/flags/import", h.ImportFlags)
}

// ImportFlags handles POST /v1/admin/flags/import
func (h *Handler) ImportFlags(c *gin.Context) {
	var b Batch
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Body must be {\"kind\": ..., \"entries\": [...]}",
		})
		return
	}

	report, err := h.importer.Import(c.Request.Context(), &b)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, report)
	case errors.Is(err, ErrUnknownKind), errors.Is(err, flags.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_input",
			"message": err.Error(),
		})
	default:
		logging.L(c.Request.Context()).Error("flag import failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Import stopped after a storage failure",
			"report":  report,
		})
	}
}
