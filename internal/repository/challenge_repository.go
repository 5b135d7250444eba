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

const challengeKeyPrefix = "2fa:challenge:"

// ChallengeRepository stores pending two-factor challenges in Redis.
// Expiry is the only limit the store imposes; a wrong code leaves the
// challenge in place for re-entry.
type ChallengeRepository struct {
	client *redis.Client
}

// NewChallengeRepository constructs a challenge repository.
func NewChallengeRepository(client *redis.Client) *ChallengeRepository {
	return &ChallengeRepository{client: client}
}

// Save stores the challenge until its expiry timestamp.
func (r *ChallengeRepository) Save(ctx context.Context, challenge *models.TwoFactorChallenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal challenge %s: %w", challenge.ID, err)
	}
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return appErrors.Clone(appErrors.ErrChallengeNotFound, "challenge already expired")
	}
	if err := r.client.Set(ctx, challengeKeyPrefix+challenge.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set challenge %s: %w", challenge.ID, err)
	}
	return nil
}

// Find loads a pending challenge by identifier.
func (r *ChallengeRepository) Find(ctx context.Context, id string) (*models.TwoFactorChallenge, error) {
	raw, err := r.client.Get(ctx, challengeKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrChallengeNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrBackend.Code, appErrors.ErrBackend.Status, "failed to load verification challenge")
	}
	var challenge models.TwoFactorChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, fmt.Errorf("unmarshal challenge %s: %w", id, err)
	}
	return &challenge, nil
}

// Delete discards a challenge. Missing challenges are not an error.
func (r *ChallengeRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, challengeKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis delete challenge %s: %w", id, err)
	}
	return nil
}
