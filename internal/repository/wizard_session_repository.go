package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DownMan01/evot4r/internal/models"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
)

const wizardSessionKeyPrefix = "wizard:session:"

// WizardSessionRepository persists in-progress registration sessions in
// Redis. Sessions expire with their TTL so abandoned drafts are
// destroyed without explicit cleanup.
type WizardSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWizardSessionRepository constructs a session repository.
func NewWizardSessionRepository(client *redis.Client, ttl time.Duration) *WizardSessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &WizardSessionRepository{client: client, ttl: ttl}
}

// Save stores the session and refreshes its expiry.
func (r *WizardSessionRepository) Save(ctx context.Context, session *models.WizardSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal wizard session %s: %w", session.ID, err)
	}
	if err := r.client.Set(ctx, wizardSessionKeyPrefix+session.ID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set wizard session %s: %w", session.ID, err)
	}
	return nil
}

// Find loads a session by identifier.
func (r *WizardSessionRepository) Find(ctx context.Context, id string) (*models.WizardSession, error) {
	raw, err := r.client.Get(ctx, wizardSessionKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration session not found or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to load registration session")
	}
	var session models.WizardSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal wizard session %s: %w", id, err)
	}
	return &session, nil
}

// Delete destroys a session. Missing sessions are not an error.
func (r *WizardSessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, wizardSessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis delete wizard session %s: %w", id, err)
	}
	return nil
}
