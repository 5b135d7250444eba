package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DownMan01/evot4r/internal/dto"
	"github.com/DownMan01/evot4r/internal/models"
	"github.com/DownMan01/evot4r/pkg/config"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
)

type wizardSessionStore interface {
	Save(ctx context.Context, session *models.WizardSession) error
	Find(ctx context.Context, id string) (*models.WizardSession, error)
	Delete(ctx context.Context, id string) error
}

type documentStager interface {
	Stage(sessionID, fileName string, r io.Reader) (string, int64, error)
	DiscardStaged(sessionID string) error
}

// WizardService owns the registration wizard state machine: one session
// per registration attempt, a step pointer that only moves through
// Advance/Retreat, and a draft that survives backward motion.
type WizardService struct {
	sessions  wizardSessionStore
	documents documentStager
	logger    *zap.Logger
	cfg       config.RegistrationConfig
}

// NewWizardService constructs a WizardService instance.
func NewWizardService(sessions wizardSessionStore, documents documentStager, logger *zap.Logger, cfg config.RegistrationConfig) *WizardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WizardService{sessions: sessions, documents: documents, logger: logger, cfg: cfg}
}

// Start creates a fresh session positioned at the first step.
func (s *WizardService) Start(ctx context.Context) (*models.WizardSession, error) {
	now := time.Now().UTC()
	session := &models.WizardSession{
		ID:        uuid.NewString(),
		Step:      models.FirstStep,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to start registration session")
	}
	return session, nil
}

// Get loads an existing session.
func (s *WizardService) Get(ctx context.Context, id string) (*models.WizardSession, error) {
	return s.sessions.Find(ctx, id)
}

// ApplyInput merges the provided fields into the draft without
// validating them; validation happens when the step is advanced.
func (s *WizardService) ApplyInput(ctx context.Context, id string, input dto.DraftInput) (*models.WizardSession, error) {
	session, err := s.sessions.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	draft := &session.Draft
	applyString(&draft.FullName, input.FullName)
	applyString(&draft.Email, input.Email)
	applyString(&draft.StudentID, input.StudentID)
	applyString(&draft.Course, input.Course)
	applyString(&draft.YearLevel, input.YearLevel)
	applyString(&draft.Gender, input.Gender)
	applyString(&draft.Password, input.Password)
	applyString(&draft.ConfirmPassword, input.ConfirmPassword)
	session.UpdatedAt = time.Now().UTC()

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to save registration draft")
	}
	return session, nil
}

// StageDocument stores the selected ID image in the staging area and
// records the reference on the draft. A new selection replaces the
// previous staged file.
func (s *WizardService) StageDocument(ctx context.Context, id, fileName, contentType string, size int64, r io.Reader) (*models.WizardSession, error) {
	session, err := s.sessions.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cfg.MaxUploadBytes > 0 && size > s.cfg.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ID image is too large")
	}
	if len(s.cfg.AllowedMIMEs) > 0 && !oneOf(contentType, s.cfg.AllowedMIMEs) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ID image must be a JPEG, PNG or WebP file")
	}

	path, written, err := s.documents.Stage(session.ID, fileName, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpload.Code, appErrors.ErrUpload.Status, "failed to stage ID image")
	}

	session.Draft.Document = &models.StagedDocument{
		FileName:    fileName,
		StoragePath: path,
		ContentType: contentType,
		SizeBytes:   written,
	}
	session.UpdatedAt = time.Now().UTC()

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to save registration draft")
	}
	return session, nil
}

// Advance validates the current step and moves the pointer forward by
// exactly one, capped at the last step. On validation failure the
// pointer stays put and the first failing reason is returned.
func (s *WizardService) Advance(ctx context.Context, id string) (*models.WizardSession, error) {
	session, err := s.sessions.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	if verr := ValidateStep(session.Step, session.Draft); verr != nil {
		return nil, verr
	}

	if session.Step < models.LastStep {
		session.Step++
		session.UpdatedAt = time.Now().UTC()
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to save registration session")
		}
	}
	return session, nil
}

// Retreat moves the pointer back by one, floored at the first step. It
// never validates and never clears entered data.
func (s *WizardService) Retreat(ctx context.Context, id string) (*models.WizardSession, error) {
	session, err := s.sessions.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Step > models.FirstStep {
		session.Step--
		session.UpdatedAt = time.Now().UTC()
		if err := s.sessions.Save(ctx, session); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to save registration session")
		}
	}
	return session, nil
}

// Reset returns the session to a blank draft at step one, releasing any
// staged document.
func (s *WizardService) Reset(ctx context.Context, id string) (*models.WizardSession, error) {
	session, err := s.sessions.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.documents.DiscardStaged(session.ID); err != nil {
		s.logger.Warn("failed to discard staged document on reset", zap.String("session_id", session.ID), zap.Error(err))
	}

	session.Draft = models.RegistrationDraft{}
	session.Step = models.FirstStep
	session.UpdatedAt = time.Now().UTC()

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to reset registration session")
	}
	return session, nil
}

// Cancel destroys the session and its draft, releasing staged files.
func (s *WizardService) Cancel(ctx context.Context, id string) error {
	if err := s.documents.DiscardStaged(id); err != nil {
		s.logger.Warn("failed to discard staged document on cancel", zap.String("session_id", id), zap.Error(err))
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to cancel registration session")
	}
	return nil
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
