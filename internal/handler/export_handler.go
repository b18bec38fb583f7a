package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quillstage/quillstage-api/internal/models"
	"github.com/quillstage/quillstage-api/internal/service"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
	"github.com/quillstage/quillstage-api/pkg/response"
)

type exportService interface {
	Generate(ctx context.Context, resourceID, format string, actor *models.JWTClaims) (*service.ExportResult, error)
	ParseToken(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error)
	Open(relPath string) (*os.File, error)
}

// ExportHandler exposes review-history export generation and download.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Generate godoc
// @Summary Export a resource's review history
// @Tags Exports
// @Produce json
// @Param id path string true "Resource ID"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/export [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Generate(c.Request.Context(), c.Param("id"), c.Query("format"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a generated export by signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.service.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}
	file, err := h.service.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		c.Abort()
	}
}
