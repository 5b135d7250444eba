package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DocumentStore persists ID documents on disk. Files move through two
// areas: a staging directory holding the voter's locally selected image
// while the wizard is in progress, and a permanent directory that
// receives the file only when submission reaches the upload stage.
type DocumentStore struct {
	stagingDir  string
	documentDir string
}

// NewDocumentStore ensures both directories exist and returns a handle.
func NewDocumentStore(stagingDir, documentDir string) (*DocumentStore, error) {
	if stagingDir == "" {
		stagingDir = "./staging"
	}
	if documentDir == "" {
		documentDir = "./student-ids"
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	if err := os.MkdirAll(documentDir, 0o755); err != nil {
		return nil, fmt.Errorf("create document directory: %w", err)
	}
	return &DocumentStore{stagingDir: stagingDir, documentDir: documentDir}, nil
}

// DocumentKey derives the permanent storage key for a submission.
// Repeated attempts by the same identity produce distinct keys because
// the submission timestamp participates in the name.
func DocumentKey(studentID string, submittedAt time.Time, originalName string) string {
	ext := filepath.Ext(originalName)
	return fmt.Sprintf("%s-%d%s", studentID, submittedAt.UnixMilli(), ext)
}

// Stage writes the selected file under the session's staging area,
// replacing any previously staged file so repeated selections within one
// session do not accumulate.
func (s *DocumentStore) Stage(sessionID, fileName string, r io.Reader) (string, int64, error) {
	if err := s.DiscardStaged(sessionID); err != nil {
		return "", 0, err
	}
	dir := filepath.Join(s.stagingDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("prepare staging directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(fileName))
	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create staged file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	n, err := io.Copy(file, r)
	if err != nil {
		return "", 0, fmt.Errorf("write staged file: %w", err)
	}
	return path, n, nil
}

// Promote copies a staged file into the permanent document area under
// the provided key and returns the key as the stable upload reference.
func (s *DocumentStore) Promote(stagedPath, key string) (string, error) {
	src, err := os.Open(stagedPath)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.Create(s.resolve(key))
	if err != nil {
		return "", fmt.Errorf("create document file: %w", err)
	}
	defer dst.Close() //nolint:errcheck

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write document file: %w", err)
	}
	return key, nil
}

// DiscardStaged removes the staging area for a session. Safe to call
// when nothing was staged.
func (s *DocumentStore) DiscardStaged(sessionID string) error {
	dir := filepath.Join(s.stagingDir, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("discard staged files: %w", err)
	}
	return nil
}

// Open returns a read-only handle for a stored document.
func (s *DocumentStore) Open(key string) (*os.File, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return file, nil
}

// Delete removes a stored document if present.
func (s *DocumentStore) Delete(key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *DocumentStore) Path(key string) string {
	return s.resolve(key)
}

func (s *DocumentStore) resolve(key string) string {
	// Keys never escape the document directory.
	clean := filepath.Base(strings.TrimSpace(key))
	return filepath.Join(s.documentDir, clean)
}
