package models

import "time"

// VoterRole represents the available roles for the RBAC system.
type VoterRole string

const (
	RoleAdmin VoterRole = "ADMIN"
	RoleVoter VoterRole = "VOTER"
)

// VoterStatus is the approval state of a registered account.
type VoterStatus string

const (
	StatusPendingApproval VoterStatus = "PENDING_APPROVAL"
	StatusApproved        VoterStatus = "APPROVED"
	StatusRejected        VoterStatus = "REJECTED"
)

// Voter represents an account stored in the voters table.
type Voter struct {
	ID               string      `db:"id" json:"id"`
	StudentID        string      `db:"student_id" json:"student_id"`
	Email            string      `db:"email" json:"email"`
	PasswordHash     string      `db:"password_hash" json:"-"`
	FullName         string      `db:"full_name" json:"full_name"`
	Course           string      `db:"course" json:"course"`
	YearLevel        string      `db:"year_level" json:"year_level"`
	Gender           string      `db:"gender" json:"gender"`
	IDDocumentKey    string      `db:"id_document_key" json:"-"`
	Role             VoterRole   `db:"role" json:"role"`
	Status           VoterStatus `db:"status" json:"status"`
	TwoFactorEnabled bool        `db:"two_factor_enabled" json:"two_factor_enabled"`
	LastLogin        *time.Time  `db:"last_login" json:"last_login,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// NewVoter captures the fields persisted when an account is created.
type NewVoter struct {
	ID            string
	StudentID     string
	Email         string
	PasswordHash  string
	FullName      string
	Course        string
	YearLevel     string
	Gender        string
	IDDocumentKey string
}

// PendingRegistration is the admin-facing view of an unapproved account.
type PendingRegistration struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	Email       string    `db:"email" json:"email"`
	FullName    string    `db:"full_name" json:"full_name"`
	Course      string    `db:"course" json:"course"`
	YearLevel   string    `db:"year_level" json:"year_level"`
	Gender      string    `db:"gender" json:"gender"`
	SubmittedAt time.Time `db:"created_at" json:"submitted_at"`
}
