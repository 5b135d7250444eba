package dto

import "github.com/DownMan01/evot4r/internal/models"

// DraftInput carries partial wizard field updates. Nil fields are left
// untouched so each step can submit only what it owns.
type DraftInput struct {
	FullName        *string `json:"full_name,omitempty"`
	Email           *string `json:"email,omitempty"`
	StudentID       *string `json:"student_id,omitempty"`
	Course          *string `json:"course,omitempty"`
	YearLevel       *string `json:"year_level,omitempty"`
	Gender          *string `json:"gender,omitempty"`
	Password        *string `json:"password,omitempty"`
	ConfirmPassword *string `json:"confirm_password,omitempty"`
}

// WizardSessionResponse echoes the session state without secrets.
type WizardSessionResponse struct {
	ID         string                  `json:"id"`
	Step       models.RegistrationStep `json:"step"`
	TotalSteps int                     `json:"total_steps"`
	Draft      DraftEcho               `json:"draft"`
}

// DraftEcho mirrors the draft minus passwords.
type DraftEcho struct {
	FullName  string                 `json:"full_name"`
	Email     string                 `json:"email"`
	StudentID string                 `json:"student_id"`
	Course    string                 `json:"course"`
	YearLevel string                 `json:"year_level"`
	Gender    string                 `json:"gender"`
	Document  *models.StagedDocument `json:"document,omitempty"`
}

// NewWizardSessionResponse converts a session into its API shape.
func NewWizardSessionResponse(session *models.WizardSession) WizardSessionResponse {
	return WizardSessionResponse{
		ID:         session.ID,
		Step:       session.Step,
		TotalSteps: int(models.LastStep),
		Draft: DraftEcho{
			FullName:  session.Draft.FullName,
			Email:     session.Draft.Email,
			StudentID: session.Draft.StudentID,
			Course:    session.Draft.Course,
			YearLevel: session.Draft.YearLevel,
			Gender:    session.Draft.Gender,
			Document:  session.Draft.Document,
		},
	}
}
