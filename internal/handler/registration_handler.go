package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DownMan01/evot4r/internal/dto"
	"github.com/DownMan01/evot4r/internal/service"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
	"github.com/DownMan01/evot4r/pkg/response"
)

type rosterInvalidator interface {
	InvalidateRoster(ctx context.Context)
}

// RegistrationHandler wires the signup wizard and submission endpoints.
type RegistrationHandler struct {
	wizard    *service.WizardService
	submitter *service.RegistrationService
	roster    rosterInvalidator
}

// NewRegistrationHandler creates a new handler.
func NewRegistrationHandler(wizard *service.WizardService, submitter *service.RegistrationService, roster rosterInvalidator) *RegistrationHandler {
	return &RegistrationHandler{wizard: wizard, submitter: submitter, roster: roster}
}

// StartSession godoc
// @Summary Start a registration session
// @Description Open a new four step signup wizard session
// @Tags Registration
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /register/sessions [post]
func (h *RegistrationHandler) StartSession(c *gin.Context) {
	session, err := h.wizard.Start(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewWizardSessionResponse(session))
}

// GetSession godoc
// @Summary Fetch a registration session
// @Description Return the current step and draft for a wizard session
// @Tags Registration
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /register/sessions/{id} [get]
func (h *RegistrationHandler) GetSession(c *gin.Context) {
	session, err := h.wizard.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewWizardSessionResponse(session), nil)
}

// SaveDraft godoc
// @Summary Save draft fields
// @Description Merge submitted fields into the wizard draft without validating them
// @Tags Registration
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.DraftInput true "Draft fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /register/sessions/{id}/draft [put]
func (h *RegistrationHandler) SaveDraft(c *gin.Context) {
	var input dto.DraftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid draft payload"))
		return
	}

	session, err := h.wizard.ApplyInput(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewWizardSessionResponse(session), nil)
}

// UploadDocument godoc
// @Summary Stage the ID image
// @Description Attach a student ID image to the draft; a new upload replaces the previous one
// @Tags Registration
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param document formData file true "ID image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /register/sessions/{id}/document [post]
func (h *RegistrationHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("document")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Please upload your ID"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file"))
		return
	}
	defer file.Close()

	session, err := h.wizard.StageDocument(
		c.Request.Context(),
		c.Param("id"),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewWizardSessionResponse(session), nil)
}

// Advance godoc
// @Summary Advance the wizard
// @Description Validate the current step and move forward by one
// @Tags Registration
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /register/sessions/{id}/advance [post]
func (h *RegistrationHandler) Advance(c *gin.Context) {
	session, err := h.wizard.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewWizardSessionResponse(session), nil)
}

// Retreat godoc
// @Summary Step back in the wizard
// @Description Move back one step without validating or clearing data
// @Tags Registration
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /register/sessions/{id}/retreat [post]
func (h *RegistrationHandler) Retreat(c *gin.Context) {
	session, err := h.wizard.Retreat(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewWizardSessionResponse(session), nil)
}

// Reset godoc
// @Summary Reset the wizard
// @Description Return the session to a blank draft at step one
// @Tags Registration
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /register/sessions/{id}/reset [post]
func (h *RegistrationHandler) Reset(c *gin.Context) {
	session, err := h.wizard.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewWizardSessionResponse(session), nil)
}

// CancelSession godoc
// @Summary Cancel a registration session
// @Description Destroy the session, its draft and any staged document
// @Tags Registration
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 {object} response.Envelope
// @Router /register/sessions/{id} [delete]
func (h *RegistrationHandler) CancelSession(c *gin.Context) {
	if err := h.wizard.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit the registration
// @Description Run the duplicate check, upload and account creation pipeline
// @Tags Registration
// @Produce json
// @Param id path string true "Session ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /register/sessions/{id}/submit [post]
func (h *RegistrationHandler) Submit(c *gin.Context) {
	result, err := h.submitter.Submit(c.Request.Context(), c.Param("id"), service.SubmissionMeta{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.roster != nil {
		h.roster.InvalidateRoster(c.Request.Context())
	}
	response.Created(c, result)
}
