package service

import (
	"github.com/DownMan01/evot4r/internal/models"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
)

// ValidateStep checks the fields assigned to a single wizard step and
// returns the first failure in the declared field order, or nil when the
// step is complete. It performs no I/O and never touches the backend.
func ValidateStep(step models.RegistrationStep, draft models.RegistrationDraft) *appErrors.Error {
	d := draft.Trimmed()

	switch step {
	case models.StepPersonalInfo:
		if d.FullName == "" {
			return invalidStep("Please enter your full name")
		}
		if d.Email == "" {
			return invalidStep("Please enter your email address")
		}
		if d.StudentID == "" {
			return invalidStep("Please enter your student ID")
		}
	case models.StepAcademicDetails:
		if !oneOf(d.Course, models.Courses) {
			return invalidStep("Please select your course")
		}
		if !oneOf(d.YearLevel, models.YearLevels) {
			return invalidStep("Please select your year level")
		}
		if !oneOf(d.Gender, models.Genders) {
			return invalidStep("Please select your gender")
		}
	case models.StepAccountSecurity:
		if len(d.Password) < models.MinPasswordLength {
			return invalidStep("Password must be at least 6 characters")
		}
		if d.Password != d.ConfirmPassword {
			return invalidStep("Passwords do not match")
		}
	case models.StepVerification:
		if d.Document == nil {
			return invalidStep("Please upload your ID")
		}
	}

	return nil
}

// ValidateThroughStep checks steps 1..step in order, returning the first
// failure. A draft is submittable only when all four steps pass.
func ValidateThroughStep(step models.RegistrationStep, draft models.RegistrationDraft) *appErrors.Error {
	for n := models.FirstStep; n <= step; n++ {
		if err := ValidateStep(n, draft); err != nil {
			return err
		}
	}
	return nil
}

func invalidStep(reason string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrValidation, reason)
}

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
