package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignInRequest holds credentials for authenticating a voter.
type SignInRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// SignInStatus discriminates the outcome of a credential check.
type SignInStatus string

const (
	SignInLoggedIn          SignInStatus = "LOGGED_IN"
	SignInTwoFactorRequired SignInStatus = "TWO_FACTOR_REQUIRED"
)

// TokenPair bundles the issued access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// SignInResult is the outcome of a login attempt. Tokens are set only
// when Status is SignInLoggedIn; a two-factor outcome carries the
// challenge identifier the client must verify against.
type SignInResult struct {
	Status      SignInStatus `json:"status"`
	Tokens      *TokenPair   `json:"tokens,omitempty"`
	ChallengeID string       `json:"challenge_id,omitempty"`
	Voter       *VoterInfo   `json:"voter,omitempty"`
}

// VoterInfo describes the authenticated voter in responses.
type VoterInfo struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      VoterRole `json:"role"`
}

// TwoFactorChallenge is the pending second-factor state for one login
// attempt. Credentials stay associated with the challenge so the second
// factor can complete the original attempt without re-prompting for a
// password. The record is destroyed on verified success, cancellation
// or expiry; a rejected code leaves it active.
type TwoFactorChallenge struct {
	ID        string    `json:"id"`
	VoterID   string    `json:"voter_id"`
	StudentID string    `json:"student_id"`
	Code      string    `json:"code"`
	Attempts  int       `json:"attempts"`
	IssuedAt  time.Time `json:"issued_at"`
	ResendAt  time.Time `json:"resend_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyTwoFactorRequest completes a pending challenge.
type VerifyTwoFactorRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	IP          string `json:"-"`
	UserAgent   string `json:"-"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// ResetPasswordRequest initiates the stateless reset flow.
type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	VoterID   string    `json:"voter_id"`
	StudentID string    `json:"student_id"`
	Role      VoterRole `json:"role"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	jwt.RegisteredClaims
}
