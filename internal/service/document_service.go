package service

import (
	"context"
	"database/sql"
	"errors"
	"mime"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/DownMan01/evot4r/internal/models"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
	"github.com/DownMan01/evot4r/pkg/storage"
)

type documentVoterFinder interface {
	FindByID(ctx context.Context, id string) (*models.Voter, error)
}

type documentOpener interface {
	Open(key string) (*os.File, error)
}

// SignedDocumentURL points at a voter's ID image for a limited time.
type SignedDocumentURL struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DocumentService exposes stored ID images to administrators through
// short-lived signed tokens, never raw file paths.
type DocumentService struct {
	voters documentVoterFinder
	store  documentOpener
	signer *storage.SignedURLSigner
	logger *zap.Logger
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(voters documentVoterFinder, store documentOpener, signer *storage.SignedURLSigner, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{voters: voters, store: store, signer: signer, logger: logger}
}

// SignedURL issues a fresh token for the voter's ID document.
func (s *DocumentService) SignedURL(ctx context.Context, voterID string) (*SignedDocumentURL, error) {
	voter, err := s.voters.FindByID(ctx, voterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "voter not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load voter")
	}
	if voter.IDDocumentKey == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "voter has no ID document on file")
	}

	token, expiresAt, err := s.signer.Generate(voter.ID, voter.IDDocumentKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign document URL")
	}
	return &SignedDocumentURL{Token: token, ExpiresAt: expiresAt}, nil
}

// Open validates a signed token and returns the underlying file with
// its content type. The caller owns closing the file.
func (s *DocumentService) Open(_ context.Context, token string) (*os.File, string, error) {
	_, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired document token")
	}

	file, err := s.store.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "document no longer exists")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return file, contentType, nil
}
