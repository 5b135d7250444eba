package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/DownMan01/evot4r/internal/models"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
)

type authVoterRepository interface {
	FindByStudentID(ctx context.Context, studentID string) (*models.Voter, error)
	FindByEmail(ctx context.Context, email string) (*models.Voter, error)
	FindByID(ctx context.Context, id string) (*models.Voter, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	RevokeVoterRefreshTokens(ctx context.Context, voterID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type challengeStore interface {
	Save(ctx context.Context, challenge *models.TwoFactorChallenge) error
	Find(ctx context.Context, id string) (*models.TwoFactorChallenge, error)
	Delete(ctx context.Context, id string) error
}

type codeSender interface {
	SendTwoFactorCode(ctx context.Context, voter *models.Voter, code string) error
	SendPasswordReset(ctx context.Context, voter *models.Voter) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	CodeTTL            time.Duration
	ResendCooldown     time.Duration
}

// AuthService provides sign-in, second-factor and session use cases.
type AuthService struct {
	repo       authVoterRepository
	challenges challengeStore
	sender     codeSender
	validator  *validator.Validate
	logger     *zap.Logger
	config     AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authVoterRepository, challenges challengeStore, sender codeSender, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		repo:       repo,
		challenges: challenges,
		sender:     sender,
		validator:  validate,
		logger:     logger,
		config:     config,
	}
}

// SignIn authenticates a voter by student ID and password. Accounts
// with a second factor enabled do not receive tokens here: the result
// carries a challenge ID and a one-time code is dispatched instead.
func (s *AuthService) SignIn(ctx context.Context, req models.SignInRequest) (*models.SignInResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	voter, err := s.repo.FindByStudentID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Invalid student ID or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch voter")
	}

	if err := approvedForSignIn(voter); err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(voter.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "Invalid student ID or password")
	}

	if voter.TwoFactorEnabled {
		challenge, err := s.issueChallenge(ctx, voter)
		if err != nil {
			return nil, err
		}
		return &models.SignInResult{
			Status:      models.SignInTwoFactorRequired,
			ChallengeID: challenge.ID,
		}, nil
	}

	tokens, err := s.issueTokens(ctx, voter, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &voter.ID, models.AuditActionLogin, `{"status":"success"}`, req.IP, req.UserAgent)

	return &models.SignInResult{
		Status: models.SignInLoggedIn,
		Tokens: tokens,
		Voter:  voterInfo(voter),
	}, nil
}

// VerifyTwoFactor completes a pending challenge. A wrong code rejects
// the attempt but keeps the challenge alive, so the voter can retype
// without signing in again.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, req models.VerifyTwoFactorRequest) (*models.SignInResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	challenge, err := s.challenges.Find(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if now.After(challenge.ExpiresAt) {
		if derr := s.challenges.Delete(ctx, challenge.ID); derr != nil {
			s.logger.Warn("failed to delete expired challenge", zap.Error(derr))
		}
		return nil, appErrors.Clone(appErrors.ErrChallengeNotFound, "verification challenge not found or expired")
	}

	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(req.Code)) != 1 {
		challenge.Attempts++
		if err := s.challenges.Save(ctx, challenge); err != nil {
			s.logger.Warn("failed to record failed verification attempt", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrTwoFactorCode, "Invalid verification code. Please try again.")
	}

	if err := s.challenges.Delete(ctx, challenge.ID); err != nil {
		s.logger.Warn("failed to delete verified challenge", zap.Error(err))
	}

	voter, err := s.repo.FindByID(ctx, challenge.VoterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load voter")
	}
	if err := approvedForSignIn(voter); err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, voter, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &voter.ID, models.AuditActionTwoFactorVerify, `{"status":"success"}`, req.IP, req.UserAgent)

	return &models.SignInResult{
		Status: models.SignInLoggedIn,
		Tokens: tokens,
		Voter:  voterInfo(voter),
	}, nil
}

// ResendCode issues a fresh code for an active challenge, subject to a
// cooldown between sends.
func (s *AuthService) ResendCode(ctx context.Context, challengeID string) error {
	challenge, err := s.challenges.Find(ctx, challengeID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if now.Before(challenge.ResendAt) {
		return appErrors.Clone(appErrors.ErrResendCooldown, "A verification code was sent recently. Please wait before requesting another.")
	}

	code, err := generateVerificationCode()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}

	challenge.Code = code
	challenge.ResendAt = now.Add(s.config.ResendCooldown)
	challenge.ExpiresAt = now.Add(s.config.CodeTTL)
	if err := s.challenges.Save(ctx, challenge); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification challenge")
	}

	voter, err := s.repo.FindByID(ctx, challenge.VoterID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load voter")
	}
	if err := s.sender.SendTwoFactorCode(ctx, voter, code); err != nil {
		s.logger.Warn("failed to dispatch verification code", zap.String("challenge_id", challengeID), zap.Error(err))
	}
	return nil
}

// CancelTwoFactor abandons a pending challenge and returns the voter to
// the credential step.
func (s *AuthService) CancelTwoFactor(ctx context.Context, challengeID, ip, userAgent string) error {
	challenge, err := s.challenges.Find(ctx, challengeID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrChallengeNotFound) {
			return nil
		}
		return err
	}

	if err := s.challenges.Delete(ctx, challenge.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel verification challenge")
	}

	s.audit(ctx, &challenge.VoterID, models.AuditActionTwoFactorCancel, `{"status":"cancelled"}`, ip, userAgent)
	return nil
}

// RefreshToken rotates a refresh token into a new token pair.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	storedToken, err := s.repo.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if storedToken.Revoked {
		// A rotated token presented again means the chain leaked.
		// Cut off every session for the voter, not just this token.
		if err := s.repo.RevokeVoterRefreshTokens(ctx, storedToken.VoterID); err != nil {
			s.logger.Warn("failed to revoke voter sessions after token replay", zap.Error(err))
		}
		s.audit(ctx, &storedToken.VoterID, models.AuditActionSessionsRevoked, `{"reason":"refresh_token_replay"}`, req.IP, req.UserAgent)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}
	if time.Now().UTC().After(storedToken.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	voter, err := s.repo.FindByID(ctx, storedToken.VoterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load voter")
	}
	if err := approvedForSignIn(voter); err != nil {
		return nil, err
	}

	if err := s.repo.RevokeRefreshToken(ctx, storedToken.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	return s.issueTokens(ctx, voter, req.IP, req.UserAgent)
}

// Logout revokes the provided refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken, voterID, ip, userAgent string) error {
	storedToken, err := s.repo.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}

	if storedToken.VoterID != voterID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to voter")
	}

	if err := s.repo.RevokeRefreshToken(ctx, storedToken.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}

	s.audit(ctx, &voterID, models.AuditActionLogout, `{"status":"logout"}`, ip, userAgent)
	return nil
}

// RequestPasswordReset initiates the reset flow. The outcome is the
// same whether or not the email belongs to an account, so the endpoint
// cannot be used to probe which addresses are registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Please enter a valid email address.")
	}

	voter, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("password reset lookup failed", zap.Error(err))
		}
		return nil
	}

	if voter.Status == models.StatusApproved {
		if err := s.sender.SendPasswordReset(ctx, voter); err != nil {
			s.logger.Warn("failed to dispatch password reset", zap.Error(err))
		}
		s.audit(ctx, &voter.ID, models.AuditActionPasswordReset, `{"status":"requested"}`, "", "")
	}
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) issueChallenge(ctx context.Context, voter *models.Voter) (*models.TwoFactorChallenge, error) {
	code, err := generateVerificationCode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
	}

	now := time.Now().UTC()
	challenge := &models.TwoFactorChallenge{
		ID:        uuid.NewString(),
		VoterID:   voter.ID,
		StudentID: voter.StudentID,
		Code:      code,
		IssuedAt:  now,
		ResendAt:  now.Add(s.config.ResendCooldown),
		ExpiresAt: now.Add(s.config.CodeTTL),
	}
	if err := s.challenges.Save(ctx, challenge); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification challenge")
	}

	if err := s.sender.SendTwoFactorCode(ctx, voter, code); err != nil {
		s.logger.Warn("failed to dispatch verification code", zap.String("voter_id", voter.ID), zap.Error(err))
	}
	return challenge, nil
}

func (s *AuthService) issueTokens(ctx context.Context, voter *models.Voter, ip, userAgent string) (*models.TokenPair, error) {
	accessToken, err := s.generateAccessToken(voter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshTokenValue, err := generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	now := time.Now().UTC()
	refreshToken := &models.RefreshToken{
		ID:        uuid.NewString(),
		VoterID:   voter.ID,
		Token:     refreshTokenValue,
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.repo.CreateRefreshToken(ctx, refreshToken); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	if err := s.repo.UpdateLastLogin(ctx, voter.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
	}, nil
}

func (s *AuthService) generateAccessToken(voter *models.Voter) (string, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		VoterID:   voter.ID,
		StudentID: voter.StudentID,
		Role:      voter.Role,
		Email:     voter.Email,
		FullName:  voter.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   voter.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) audit(ctx context.Context, voterID *string, action, values, ip, userAgent string) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		VoterID:    voterID,
		Action:     action,
		Resource:   "auth",
		ResourceID: voterID,
		NewValues:  []byte(values),
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// approvedForSignIn rejects accounts that are not yet, or no longer,
// allowed to authenticate.
func approvedForSignIn(voter *models.Voter) error {
	switch voter.Status {
	case models.StatusPendingApproval:
		return appErrors.Clone(appErrors.ErrPendingApproval, "Your account is pending approval by the administrator.")
	case models.StatusRejected:
		return appErrors.Clone(appErrors.ErrAccountRejected, "Your account registration was rejected. Please contact the administrator.")
	default:
		return nil
	}
}

func voterInfo(voter *models.Voter) *models.VoterInfo {
	return &models.VoterInfo{
		ID:        voter.ID,
		StudentID: voter.StudentID,
		Email:     voter.Email,
		FullName:  voter.FullName,
		Role:      voter.Role,
	}
}

func generateRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// generateVerificationCode returns a uniformly random six digit code.
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
