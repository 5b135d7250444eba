package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DownMan01/evot4r/internal/models"
	"github.com/DownMan01/evot4r/internal/service"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
	"github.com/DownMan01/evot4r/pkg/response"
)

// AdminHandler serves the registration approval surface.
type AdminHandler struct {
	roster    *service.RosterService
	documents *service.DocumentService
}

// NewAdminHandler creates a new handler.
func NewAdminHandler(roster *service.RosterService, documents *service.DocumentService) *AdminHandler {
	return &AdminHandler{roster: roster, documents: documents}
}

// ListPending godoc
// @Summary List pending registrations
// @Description Page through accounts awaiting approval
// @Tags Admin
// @Produce json
// @Param search query string false "Search by name, email or student ID"
// @Param course query string false "Filter by course"
// @Param year_level query string false "Filter by year level"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/registrations/pending [get]
func (h *AdminHandler) ListPending(c *gin.Context) {
	filter := pendingFilterFromQuery(c)

	roster, err := h.roster.ListPending(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster.Registrations, &roster.Pagination)
}

// ExportPending godoc
// @Summary Export pending registrations
// @Description Download the filtered roster as CSV or PDF
// @Tags Admin
// @Produce octet-stream
// @Param format query string true "Export format (csv or pdf)"
// @Param search query string false "Search by name, email or student ID"
// @Param course query string false "Filter by course"
// @Param year_level query string false "Filter by year level"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /admin/registrations/pending/export [get]
func (h *AdminHandler) ExportPending(c *gin.Context) {
	format := service.RosterFormat(c.DefaultQuery("format", string(service.RosterFormatCSV)))

	result, err := h.roster.ExportPending(c.Request.Context(), pendingFilterFromQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.FileName)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

// DocumentURL godoc
// @Summary Issue a signed document URL
// @Description Return a short lived token for viewing a voter's ID image
// @Tags Admin
// @Produce json
// @Param id path string true "Voter ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/registrations/{id}/document-url [get]
func (h *AdminHandler) DocumentURL(c *gin.Context) {
	signed, err := h.documents.SignedURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signed, nil)
}

func pendingFilterFromQuery(c *gin.Context) models.PendingRegistrationFilter {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return models.PendingRegistrationFilter{
		Search:    c.Query("search"),
		Course:    c.Query("course"),
		YearLevel: c.Query("year_level"),
		Page:      page,
		PageSize:  pageSize,
	}
}

// DocumentHandler streams stored ID images against signed tokens.
type DocumentHandler struct {
	documents *service.DocumentService
}

// NewDocumentHandler creates a new handler.
func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Fetch godoc
// @Summary Fetch a document by token
// @Description Stream the ID image referenced by a valid signed token
// @Tags Documents
// @Produce octet-stream
// @Param token query string true "Signed document token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) Fetch(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "document token required"))
		return
	}

	file, contentType, err := h.documents.Open(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read document"))
		return
	}

	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
