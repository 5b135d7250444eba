package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DownMan01/evot4r/internal/models"
)

// VoterRepository provides database access for voter accounts.
type VoterRepository struct {
	db *sqlx.DB
}

// NewVoterRepository creates a new instance of VoterRepository.
func NewVoterRepository(db *sqlx.DB) *VoterRepository {
	return &VoterRepository{db: db}
}

// CheckDuplicate reports whether the email or student ID is already
// registered. The result is computed fresh on every call.
func (r *VoterRepository) CheckDuplicate(ctx context.Context, email, studentID string) (models.DuplicateCheckResult, error) {
	const query = `SELECT
		EXISTS(SELECT 1 FROM voters WHERE LOWER(email) = LOWER($1)) AS email_exists,
		EXISTS(SELECT 1 FROM voters WHERE student_id = $2) AS student_id_exists`
	var result models.DuplicateCheckResult
	if err := r.db.GetContext(ctx, &result, query, email, studentID); err != nil {
		return models.DuplicateCheckResult{}, fmt.Errorf("check duplicate identity: %w", err)
	}
	return result, nil
}

// Create inserts a new voter account in pending-approval state.
func (r *VoterRepository) Create(ctx context.Context, nv models.NewVoter) (*models.Voter, error) {
	now := time.Now().UTC()
	voter := &models.Voter{
		ID:            nv.ID,
		StudentID:     nv.StudentID,
		Email:         strings.ToLower(nv.Email),
		PasswordHash:  nv.PasswordHash,
		FullName:      nv.FullName,
		Course:        nv.Course,
		YearLevel:     nv.YearLevel,
		Gender:        nv.Gender,
		IDDocumentKey: nv.IDDocumentKey,
		Role:          models.RoleVoter,
		Status:        models.StatusPendingApproval,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if voter.ID == "" {
		voter.ID = uuid.NewString()
	}
	const query = `INSERT INTO voters (id, student_id, email, password_hash, full_name, course, year_level, gender, id_document_key, role, status, two_factor_enabled, created_at, updated_at) VALUES (:id, :student_id, :email, :password_hash, :full_name, :course, :year_level, :gender, :id_document_key, :role, :status, :two_factor_enabled, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, voter); err != nil {
		return nil, fmt.Errorf("create voter: %w", err)
	}
	return voter, nil
}

// FindByStudentID returns a voter by student identifier.
func (r *VoterRepository) FindByStudentID(ctx context.Context, studentID string) (*models.Voter, error) {
	const query = `SELECT id, student_id, email, password_hash, full_name, course, year_level, gender, id_document_key, role, status, two_factor_enabled, last_login, created_at, updated_at FROM voters WHERE student_id = $1 LIMIT 1`
	var voter models.Voter
	if err := r.db.GetContext(ctx, &voter, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find voter by student id: %w", err)
	}
	return &voter, nil
}

// FindByEmail returns a voter by email address.
func (r *VoterRepository) FindByEmail(ctx context.Context, email string) (*models.Voter, error) {
	const query = `SELECT id, student_id, email, password_hash, full_name, course, year_level, gender, id_document_key, role, status, two_factor_enabled, last_login, created_at, updated_at FROM voters WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var voter models.Voter
	if err := r.db.GetContext(ctx, &voter, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find voter by email: %w", err)
	}
	return &voter, nil
}

// FindByID returns a voter by identifier.
func (r *VoterRepository) FindByID(ctx context.Context, id string) (*models.Voter, error) {
	const query = `SELECT id, student_id, email, password_hash, full_name, course, year_level, gender, id_document_key, role, status, two_factor_enabled, last_login, created_at, updated_at FROM voters WHERE id = $1 LIMIT 1`
	var voter models.Voter
	if err := r.db.GetContext(ctx, &voter, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find voter by id: %w", err)
	}
	return &voter, nil
}

// UpdateLastLogin updates the last_login timestamp for a voter.
func (r *VoterRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE voters SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// ListPending returns unapproved registrations with total count.
func (r *VoterRepository) ListPending(ctx context.Context, filter models.PendingRegistrationFilter) ([]models.PendingRegistration, int, error) {
	baseQuery := `FROM voters WHERE status = 'PENDING_APPROVAL'`
	var conditions []string
	var args []interface{}

	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.YearLevel != "" {
		conditions = append(conditions, fmt.Sprintf("year_level = $%d", len(args)+1))
		args = append(args, filter.YearLevel)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(full_name) LIKE $%d OR student_id LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT id, student_id, email, full_name, course, year_level, gender, created_at %s ORDER BY created_at ASC LIMIT %d OFFSET %d`, baseQuery, pageSize, offset)
	pending := make([]models.PendingRegistration, 0)
	if err := r.db.SelectContext(ctx, &pending, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list pending registrations: %w", err)
	}

	countQuery := `SELECT COUNT(*) ` + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count pending registrations: %w", err)
	}

	return pending, total, nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *VoterRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, voter_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :voter_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *VoterRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, voter_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *VoterRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeVoterRefreshTokens revokes all refresh tokens for a voter.
func (r *VoterRepository) RevokeVoterRefreshTokens(ctx context.Context, voterID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE voter_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, voterID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke voter refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *VoterRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, voter_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :voter_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
