package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/DownMan01/evot4r/internal/models"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
)

type mockAuthRepo struct {
	voters        map[string]*models.Voter
	refreshTokens map[string]*models.RefreshToken
	auditLogs     []*models.AuditLog
	lastLogin     map[string]time.Time
}

func newMockAuthRepo(voters ...*models.Voter) *mockAuthRepo {
	repo := &mockAuthRepo{
		voters:        make(map[string]*models.Voter),
		refreshTokens: make(map[string]*models.RefreshToken),
		lastLogin:     make(map[string]time.Time),
	}
	for _, v := range voters {
		repo.voters[v.ID] = v
	}
	return repo
}

func (m *mockAuthRepo) FindByStudentID(_ context.Context, studentID string) (*models.Voter, error) {
	for _, v := range m.voters {
		if v.StudentID == studentID {
			return v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByEmail(_ context.Context, email string) (*models.Voter, error) {
	for _, v := range m.voters {
		if v.Email == email {
			return v, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(_ context.Context, id string) (*models.Voter, error) {
	v, ok := m.voters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return v, nil
}

func (m *mockAuthRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	m.lastLogin[id] = ts
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) RevokeVoterRefreshTokens(_ context.Context, voterID string) error {
	for _, token := range m.refreshTokens {
		if token.VoterID == voterID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *mockAuthRepo) auditActions() []string {
	actions := make([]string, 0, len(m.auditLogs))
	for _, log := range m.auditLogs {
		actions = append(actions, log.Action)
	}
	return actions
}

type mockChallengeStore struct {
	challenges map[string]models.TwoFactorChallenge
}

func newMockChallengeStore() *mockChallengeStore {
	return &mockChallengeStore{challenges: make(map[string]models.TwoFactorChallenge)}
}

func (m *mockChallengeStore) Save(_ context.Context, challenge *models.TwoFactorChallenge) error {
	m.challenges[challenge.ID] = *challenge
	return nil
}

func (m *mockChallengeStore) Find(_ context.Context, id string) (*models.TwoFactorChallenge, error) {
	challenge, ok := m.challenges[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrChallengeNotFound, "verification challenge not found or expired")
	}
	clone := challenge
	return &clone, nil
}

func (m *mockChallengeStore) Delete(_ context.Context, id string) error {
	delete(m.challenges, id)
	return nil
}

type mockSender struct {
	codes  []string
	resets []string
}

func (m *mockSender) SendTwoFactorCode(_ context.Context, _ *models.Voter, code string) error {
	m.codes = append(m.codes, code)
	return nil
}

func (m *mockSender) SendPasswordReset(_ context.Context, voter *models.Voter) error {
	m.resets = append(m.resets, voter.Email)
	return nil
}

func testVoter(t *testing.T, status models.VoterStatus, twoFactor bool) *models.Voter {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.Voter{
		ID:               uuid.NewString(),
		StudentID:        "2021-00123",
		Email:            "juan@example.com",
		PasswordHash:     string(hash),
		FullName:         "Juan Dela Cruz",
		Role:             models.RoleVoter,
		Status:           status,
		TwoFactorEnabled: twoFactor,
	}
}

func newAuthService(repo *mockAuthRepo, challenges *mockChallengeStore, sender *mockSender) *AuthService {
	return NewAuthService(repo, challenges, sender, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "evotar-test",
		CodeTTL:            5 * time.Minute,
		ResendCooldown:     30 * time.Second,
	})
}

func TestSignInUnknownStudent(t *testing.T) {
	svc := newAuthService(newMockAuthRepo(), newMockChallengeStore(), &mockSender{})

	_, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: "2099-99999", Password: "whatever"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestSignInWrongPassword(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, false)
	svc := newAuthService(newMockAuthRepo(voter), newMockChallengeStore(), &mockSender{})

	_, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "wrong"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestSignInBlockedByAccountStatus(t *testing.T) {
	cases := []struct {
		name   string
		status models.VoterStatus
		want   *appErrors.Error
	}{
		{"pending approval", models.StatusPendingApproval, appErrors.ErrPendingApproval},
		{"rejected", models.StatusRejected, appErrors.ErrAccountRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			voter := testVoter(t, tc.status, false)
			svc := newAuthService(newMockAuthRepo(voter), newMockChallengeStore(), &mockSender{})

			_, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, tc.want))
		})
	}
}

func TestSignInWithoutTwoFactorIssuesTokens(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, false)
	repo := newMockAuthRepo(voter)
	svc := newAuthService(repo, newMockChallengeStore(), &mockSender{})

	result, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1", IP: "127.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, models.SignInLoggedIn, result.Status)
	require.NotNil(t, result.Tokens)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	require.NotNil(t, result.Voter)
	assert.Equal(t, voter.StudentID, result.Voter.StudentID)

	_, ok := repo.refreshTokens[result.Tokens.RefreshToken]
	assert.True(t, ok)
	assert.Contains(t, repo.lastLogin, voter.ID)

	claims, err := svc.ValidateToken(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, voter.ID, claims.VoterID)
	assert.Equal(t, models.RoleVoter, claims.Role)
}

func TestSignInWithTwoFactorIssuesChallengeNotTokens(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, true)
	challenges := newMockChallengeStore()
	sender := &mockSender{}
	svc := newAuthService(newMockAuthRepo(voter), challenges, sender)

	result, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	assert.Equal(t, models.SignInTwoFactorRequired, result.Status)
	assert.Nil(t, result.Tokens)
	require.NotEmpty(t, result.ChallengeID)

	challenge, ok := challenges.challenges[result.ChallengeID]
	require.True(t, ok)
	assert.Equal(t, voter.ID, challenge.VoterID)
	require.Len(t, sender.codes, 1)
	assert.Equal(t, challenge.Code, sender.codes[0])
	assert.Len(t, challenge.Code, 6)
}

func TestVerifyTwoFactorWrongCodeKeepsChallenge(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, true)
	challenges := newMockChallengeStore()
	svc := newAuthService(newMockAuthRepo(voter), challenges, &mockSender{})

	result, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.VerifyTwoFactor(context.Background(), models.VerifyTwoFactorRequest{ChallengeID: result.ChallengeID, Code: "000000"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTwoFactorCode))

	// challenge stays alive so the voter can retype the code
	challenge, ok := challenges.challenges[result.ChallengeID]
	require.True(t, ok)
	assert.Equal(t, 1, challenge.Attempts)
}

func TestVerifyTwoFactorCorrectCodeLogsIn(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, true)
	challenges := newMockChallengeStore()
	sender := &mockSender{}
	svc := newAuthService(newMockAuthRepo(voter), challenges, sender)

	started, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	result, err := svc.VerifyTwoFactor(context.Background(), models.VerifyTwoFactorRequest{
		ChallengeID: started.ChallengeID,
		Code:        sender.codes[0],
	})
	require.NoError(t, err)

	assert.Equal(t, models.SignInLoggedIn, result.Status)
	require.NotNil(t, result.Tokens)

	_, ok := challenges.challenges[started.ChallengeID]
	assert.False(t, ok)
}

func TestVerifyTwoFactorExpiredChallenge(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, true)
	challenges := newMockChallengeStore()
	sender := &mockSender{}
	svc := newAuthService(newMockAuthRepo(voter), challenges, sender)

	started, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	expired := challenges.challenges[started.ChallengeID]
	expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	challenges.challenges[started.ChallengeID] = expired

	_, err = svc.VerifyTwoFactor(context.Background(), models.VerifyTwoFactorRequest{
		ChallengeID: started.ChallengeID,
		Code:        sender.codes[0],
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrChallengeNotFound))

	_, ok := challenges.challenges[started.ChallengeID]
	assert.False(t, ok)
}

func TestResendCodeHonoursCooldown(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, true)
	challenges := newMockChallengeStore()
	sender := &mockSender{}
	svc := newAuthService(newMockAuthRepo(voter), challenges, sender)

	started, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	err = svc.ResendCode(context.Background(), started.ChallengeID)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrResendCooldown))
	assert.Len(t, sender.codes, 1)

	cooled := challenges.challenges[started.ChallengeID]
	cooled.ResendAt = time.Now().UTC().Add(-time.Second)
	challenges.challenges[started.ChallengeID] = cooled

	require.NoError(t, svc.ResendCode(context.Background(), started.ChallengeID))
	require.Len(t, sender.codes, 2)
	assert.Equal(t, challenges.challenges[started.ChallengeID].Code, sender.codes[1])
}

func TestCancelTwoFactorDestroysChallenge(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, true)
	challenges := newMockChallengeStore()
	svc := newAuthService(newMockAuthRepo(voter), challenges, &mockSender{})

	started, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, svc.CancelTwoFactor(context.Background(), started.ChallengeID, "", ""))
	_, ok := challenges.challenges[started.ChallengeID]
	assert.False(t, ok)

	// cancelling an already expired challenge is not an error
	require.NoError(t, svc.CancelTwoFactor(context.Background(), started.ChallengeID, "", ""))
}

func TestRefreshTokenRotates(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, false)
	repo := newMockAuthRepo(voter)
	svc := newAuthService(repo, newMockChallengeStore(), &mockSender{})

	signedIn, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	rotated, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: signedIn.Tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, signedIn.Tokens.RefreshToken, rotated.RefreshToken)

	// the used token is revoked and cannot be replayed
	assert.True(t, repo.refreshTokens[signedIn.Tokens.RefreshToken].Revoked)
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: signedIn.Tokens.RefreshToken})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestRefreshTokenReplayRevokesAllSessions(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, false)
	repo := newMockAuthRepo(voter)
	svc := newAuthService(repo, newMockChallengeStore(), &mockSender{})

	signedIn, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	rotated, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: signedIn.Tokens.RefreshToken})
	require.NoError(t, err)

	// replaying the rotated-out token kills the live session too
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: signedIn.Tokens.RefreshToken})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
	assert.True(t, repo.refreshTokens[rotated.RefreshToken].Revoked)
	assert.Contains(t, repo.auditActions(), models.AuditActionSessionsRevoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: rotated.RefreshToken})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestLogoutRevokesOwnTokenOnly(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, false)
	repo := newMockAuthRepo(voter)
	svc := newAuthService(repo, newMockChallengeStore(), &mockSender{})

	signedIn, err := svc.SignIn(context.Background(), models.SignInRequest{StudentID: voter.StudentID, Password: "secret1"})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), signedIn.Tokens.RefreshToken, "someone-else", "", "")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, svc.Logout(context.Background(), signedIn.Tokens.RefreshToken, voter.ID, "", ""))
	assert.True(t, repo.refreshTokens[signedIn.Tokens.RefreshToken].Revoked)
}

func TestRequestPasswordResetDoesNotRevealAccounts(t *testing.T) {
	voter := testVoter(t, models.StatusApproved, false)
	sender := &mockSender{}
	svc := newAuthService(newMockAuthRepo(voter), newMockChallengeStore(), sender)

	// unknown address succeeds exactly like a known one
	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Email: "nobody@example.com"}))
	assert.Empty(t, sender.resets)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Email: voter.Email}))
	assert.Equal(t, []string{voter.Email}, sender.resets)
}

func TestRequestPasswordResetSkipsUnapprovedAccounts(t *testing.T) {
	voter := testVoter(t, models.StatusPendingApproval, false)
	sender := &mockSender{}
	svc := newAuthService(newMockAuthRepo(voter), newMockChallengeStore(), sender)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ResetPasswordRequest{Email: voter.Email}))
	assert.Empty(t, sender.resets)
}
