package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/DownMan01/evot4r/internal/models"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
	"github.com/DownMan01/evot4r/pkg/storage"
)

type registrationVoterRepository interface {
	CheckDuplicate(ctx context.Context, email, studentID string) (models.DuplicateCheckResult, error)
	Create(ctx context.Context, nv models.NewVoter) (*models.Voter, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type documentPromoter interface {
	Promote(stagedPath, key string) (string, error)
	Delete(key string) error
	DiscardStaged(sessionID string) error
}

// SubmissionMeta carries request context recorded in the audit trail.
type SubmissionMeta struct {
	IP        string
	UserAgent string
}

// RegistrationService executes the guarded submission pipeline:
// duplicate check, then document upload, then account creation, each
// stage awaited before the next and each failure halting the rest.
type RegistrationService struct {
	voters    registrationVoterRepository
	sessions  wizardSessionStore
	documents documentPromoter
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistrationService constructs a RegistrationService instance.
func NewRegistrationService(voters registrationVoterRepository, sessions wizardSessionStore, documents documentPromoter, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		voters:    voters,
		sessions:  sessions,
		documents: documents,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit runs one submission attempt for the session. Local validation
// happens before any backend call; duplicates halt the pipeline before
// the upload; an upload failure halts it before account creation. There
// is no automatic retry: a failed attempt ends here and the voter may
// re-trigger submission, which starts a fresh attempt with a higher
// generation number.
func (s *RegistrationService) Submit(ctx context.Context, sessionID string, meta SubmissionMeta) (*models.SubmissionResult, error) {
	session, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Bump the attempt generation first so a still-pending older attempt
	// can detect it has been superseded and stop before mutating state.
	attempt := session.Attempt + 1
	session.Attempt = attempt
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to record submission attempt")
	}

	draft := session.Draft.Trimmed()
	if verr := ValidateThroughStep(models.LastStep, draft); verr != nil {
		return nil, verr
	}

	// Stage: duplicate check.
	duplicate, err := s.voters.CheckDuplicate(ctx, draft.Email, draft.StudentID)
	if err != nil {
		s.logger.Error("duplicate check failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "Unable to validate account information. Please try again.")
	}
	if duplicate.HasDuplicates() {
		return nil, appErrors.Clone(appErrors.ErrDuplicateIdentity, duplicateMessage(duplicate))
	}

	if stale, err := s.superseded(ctx, sessionID, attempt); stale || err != nil {
		if err != nil {
			return nil, err
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission superseded by a newer attempt")
	}

	// Stage: document upload. The key embeds the submission timestamp so
	// repeated attempts by the same identity never collide.
	key := storage.DocumentKey(draft.StudentID, s.now(), draft.Document.FileName)
	reference, err := s.documents.Promote(draft.Document.StoragePath, key)
	if err != nil {
		s.logger.Error("document upload failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpload.Code, appErrors.ErrUpload.Status, "Failed to upload ID image")
	}

	if stale, err := s.superseded(ctx, sessionID, attempt); stale || err != nil {
		if err != nil {
			return nil, err
		}
		// The timestamped key belongs only to this stale attempt, so the
		// promoted file can be removed outright.
		if derr := s.documents.Delete(reference); derr != nil {
			s.logger.Warn("failed to remove superseded document", zap.String("document_key", reference), zap.Error(derr))
			s.recordOrphan(ctx, reference, meta)
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission superseded by a newer attempt")
	}

	// Stage: account creation.
	hash, err := bcrypt.GenerateFromPassword([]byte(draft.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	voter, err := s.voters.Create(ctx, models.NewVoter{
		StudentID:     draft.StudentID,
		Email:         draft.Email,
		PasswordHash:  string(hash),
		FullName:      draft.FullName,
		Course:        draft.Course,
		YearLevel:     draft.YearLevel,
		Gender:        draft.Gender,
		IDDocumentKey: reference,
	})
	if err != nil {
		// The uploaded document is not rolled back; record the orphan so
		// an operator can reap it.
		s.recordOrphan(ctx, reference, meta)
		return nil, classifyAccountError(err)
	}

	if err := s.documents.DiscardStaged(sessionID); err != nil {
		s.logger.Warn("failed to release staged document", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to destroy registration session", zap.String("session_id", sessionID), zap.Error(err))
	}

	if err := s.voters.CreateAuditLog(ctx, &models.AuditLog{
		VoterID:    &voter.ID,
		Action:     models.AuditActionRegistration,
		Resource:   "registration",
		ResourceID: &voter.ID,
		NewValues:  []byte(`{"status":"pending_approval"}`),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record registration audit log", zap.Error(err))
	}

	return &models.SubmissionResult{
		Stage:   models.StageSuccess,
		VoterID: voter.ID,
		Message: "Your account has been created successfully. Please wait for approval from the administrator.",
	}, nil
}

// superseded reports whether a newer attempt has bumped the generation
// counter while this one was in flight. A destroyed session also counts
// as superseded.
func (s *RegistrationService) superseded(ctx context.Context, sessionID string, attempt int) (bool, error) {
	current, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return current.Attempt != attempt, nil
}

func (s *RegistrationService) recordOrphan(ctx context.Context, reference string, meta SubmissionMeta) {
	payload, _ := json.Marshal(map[string]string{"document_key": reference})
	if err := s.voters.CreateAuditLog(ctx, &models.AuditLog{
		Action:    models.AuditActionDocumentOrphaned,
		Resource:  "document",
		NewValues: payload,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record orphaned document", zap.String("document_key", reference), zap.Error(err))
	}
}

func duplicateMessage(result models.DuplicateCheckResult) string {
	message := "Account creation failed: "
	if result.EmailExists {
		message += "Email already exists. "
	}
	if result.StudentIDExists {
		message += "Student ID already exists. "
	}
	return message + "Please use different credentials."
}

// classifyAccountError maps an account-creation failure onto a fixed set
// of user-facing categories. Structured Postgres errors are preferred;
// message substrings remain as a fallback for provider-style errors
// whose wording is not a stable contract.
func classifyAccountError(err error) *appErrors.Error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return appErrors.Wrap(err, appErrors.ErrAlreadyRegistered.Code, appErrors.ErrAlreadyRegistered.Status, appErrors.ErrAlreadyRegistered.Message)
	}

	message := err.Error()
	switch {
	case strings.Contains(message, "already registered"):
		return appErrors.Wrap(err, appErrors.ErrAlreadyRegistered.Code, appErrors.ErrAlreadyRegistered.Status, appErrors.ErrAlreadyRegistered.Message)
	case strings.Contains(message, "Invalid email"):
		return appErrors.Wrap(err, appErrors.ErrInvalidEmail.Code, appErrors.ErrInvalidEmail.Status, appErrors.ErrInvalidEmail.Message)
	case strings.Contains(message, "Password"):
		return appErrors.Wrap(err, appErrors.ErrWeakPassword.Code, appErrors.ErrWeakPassword.Status, appErrors.ErrWeakPassword.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrRegistration.Code, appErrors.ErrRegistration.Status, appErrors.ErrRegistration.Message)
	}
}
