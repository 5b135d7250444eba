package models

import (
	"strings"
	"time"
)

// RegistrationStep identifies a position within the signup wizard.
type RegistrationStep int

// Wizard steps in their fixed order.
const (
	StepPersonalInfo    RegistrationStep = 1
	StepAcademicDetails RegistrationStep = 2
	StepAccountSecurity RegistrationStep = 3
	StepVerification    RegistrationStep = 4

	FirstStep = StepPersonalInfo
	LastStep  = StepVerification
)

// Courses accepted during registration. Values outside this set are invalid.
var Courses = []string{
	"Bachelor of Science in Criminology",
	"Bachelor of Secondary Education",
	"Bachelor of Science in Social Works",
	"Bachelor of Science in Business Administration",
	"Bachelor of Elementary Education",
	"Bachelor of Science in Accountancy",
	"Bachelor of Science in Information Technology",
	"Bachelor of Physical Education",
}

// YearLevels accepted during registration.
var YearLevels = []string{"1st Year", "2nd Year", "3rd Year", "4th Year"}

// Genders accepted during registration.
var Genders = []string{"Male", "Female"}

// MinPasswordLength is the lower bound enforced at step 3.
const MinPasswordLength = 6

// StagedDocument references an ID image held in staging until submission.
type StagedDocument struct {
	FileName    string `json:"file_name"`
	StoragePath string `json:"storage_path"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// RegistrationDraft is the data accumulated across wizard steps.
type RegistrationDraft struct {
	FullName        string          `json:"full_name"`
	Email           string          `json:"email"`
	StudentID       string          `json:"student_id"`
	Course          string          `json:"course"`
	YearLevel       string          `json:"year_level"`
	Gender          string          `json:"gender"`
	Password        string          `json:"password"`
	ConfirmPassword string          `json:"confirm_password"`
	Document        *StagedDocument `json:"document,omitempty"`
}

// Trimmed returns a copy with surrounding whitespace removed from the
// identity fields. Passwords are left untouched.
func (d RegistrationDraft) Trimmed() RegistrationDraft {
	d.FullName = strings.TrimSpace(d.FullName)
	d.Email = strings.TrimSpace(d.Email)
	d.StudentID = strings.TrimSpace(d.StudentID)
	return d
}

// WizardSession holds one registration attempt in progress. The draft
// lives only as long as the session: submit success, cancel or expiry
// destroys both.
type WizardSession struct {
	ID        string            `json:"id"`
	Step      RegistrationStep  `json:"step"`
	Draft     RegistrationDraft `json:"draft"`
	Attempt   int               `json:"attempt"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DuplicateCheckResult reports identity conflicts found before submission.
// It is computed fresh on every attempt and never cached.
type DuplicateCheckResult struct {
	EmailExists     bool `json:"email_exists" db:"email_exists"`
	StudentIDExists bool `json:"student_id_exists" db:"student_id_exists"`
}

// HasDuplicates reports whether either identity field is already taken.
func (r DuplicateCheckResult) HasDuplicates() bool {
	return r.EmailExists || r.StudentIDExists
}

// SubmissionStage tracks progress through the guarded submission pipeline.
type SubmissionStage string

// Submission stages, strictly sequential.
const (
	StageIdle              SubmissionStage = "IDLE"
	StageDuplicateChecking SubmissionStage = "DUPLICATE_CHECKING"
	StageUploading         SubmissionStage = "UPLOADING"
	StageCreatingAccount   SubmissionStage = "CREATING_ACCOUNT"
	StageSuccess           SubmissionStage = "SUCCESS"
	StageError             SubmissionStage = "ERROR"
)

// SubmissionResult is returned once a submission attempt terminates.
type SubmissionResult struct {
	Stage     SubmissionStage       `json:"stage"`
	VoterID   string                `json:"voter_id,omitempty"`
	Message   string                `json:"message"`
	Duplicate *DuplicateCheckResult `json:"duplicate,omitempty"`
}
