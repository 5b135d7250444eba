package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DownMan01/evot4r/internal/models"
)

func TestValidateStepPersonalInfoOrder(t *testing.T) {
	draft := completeDraft()
	draft.FullName = "  "
	draft.Email = ""
	err := ValidateStep(models.StepPersonalInfo, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please enter your full name", err.Message)

	draft.FullName = "Juan Dela Cruz"
	err = ValidateStep(models.StepPersonalInfo, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please enter your email address", err.Message)

	draft.Email = "juan@example.com"
	draft.StudentID = " "
	err = ValidateStep(models.StepPersonalInfo, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please enter your student ID", err.Message)
}

func TestValidateStepAcademicDetails(t *testing.T) {
	draft := completeDraft()
	draft.Course = ""
	err := ValidateStep(models.StepAcademicDetails, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please select your course", err.Message)

	draft.Course = "Underwater Basket Weaving"
	err = ValidateStep(models.StepAcademicDetails, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please select your course", err.Message)

	draft.Course = models.Courses[0]
	draft.YearLevel = "5th Year"
	err = ValidateStep(models.StepAcademicDetails, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please select your year level", err.Message)

	draft.YearLevel = "4th Year"
	draft.Gender = ""
	err = ValidateStep(models.StepAcademicDetails, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please select your gender", err.Message)
}

func TestValidateStepAccountSecurity(t *testing.T) {
	draft := completeDraft()
	draft.Password = "abc12"
	draft.ConfirmPassword = "abc12"
	err := ValidateStep(models.StepAccountSecurity, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Password must be at least 6 characters", err.Message)

	draft.Password = "abc123"
	draft.ConfirmPassword = "abc124"
	err = ValidateStep(models.StepAccountSecurity, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Passwords do not match", err.Message)
}

func TestValidateStepVerification(t *testing.T) {
	draft := completeDraft()
	draft.Document = nil
	err := ValidateStep(models.StepVerification, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please upload your ID", err.Message)
}

func TestValidateStepCompleteDraftPassesAll(t *testing.T) {
	draft := completeDraft()
	for step := models.FirstStep; step <= models.LastStep; step++ {
		assert.Nil(t, ValidateStep(step, draft), "step %d should pass", step)
	}
	assert.Nil(t, ValidateThroughStep(models.LastStep, draft))
}

func TestValidateThroughStepReportsEarliestFailure(t *testing.T) {
	draft := completeDraft()
	draft.Email = ""
	draft.Password = "x"
	err := ValidateThroughStep(models.LastStep, draft)
	require.NotNil(t, err)
	assert.Equal(t, "Please enter your email address", err.Message)
}
