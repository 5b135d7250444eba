package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/DownMan01/evot4r/internal/models"
	"github.com/DownMan01/evot4r/internal/service"
	"github.com/DownMan01/evot4r/pkg/config"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
	"github.com/DownMan01/evot4r/pkg/response"
)

type memorySessionStore struct {
	sessions map[string]models.WizardSession
}

func (m *memorySessionStore) Save(_ context.Context, session *models.WizardSession) error {
	m.sessions[session.ID] = *session
	return nil
}

func (m *memorySessionStore) Find(_ context.Context, id string) (*models.WizardSession, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration session not found or expired")
	}
	clone := session
	return &clone, nil
}

func (m *memorySessionStore) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

type memoryDocumentStore struct {
	staged   map[string]string
	promoted []string
}

func (m *memoryDocumentStore) Stage(sessionID, fileName string, r io.Reader) (string, int64, error) {
	written, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", 0, err
	}
	path := fmt.Sprintf("/staging/%s/%s", sessionID, fileName)
	m.staged[sessionID] = path
	return path, written, nil
}

func (m *memoryDocumentStore) DiscardStaged(sessionID string) error {
	delete(m.staged, sessionID)
	return nil
}

func (m *memoryDocumentStore) Promote(_, key string) (string, error) {
	m.promoted = append(m.promoted, key)
	return key, nil
}

func (m *memoryDocumentStore) Delete(key string) error {
	for i, promoted := range m.promoted {
		if promoted == key {
			m.promoted = append(m.promoted[:i], m.promoted[i+1:]...)
			break
		}
	}
	return nil
}

type memoryVoterStore struct {
	voters    map[string]*models.Voter
	auditLogs []*models.AuditLog
}

func (m *memoryVoterStore) CheckDuplicate(_ context.Context, email, studentID string) (models.DuplicateCheckResult, error) {
	var result models.DuplicateCheckResult
	for _, v := range m.voters {
		if v.Email == email {
			result.EmailExists = true
		}
		if v.StudentID == studentID {
			result.StudentIDExists = true
		}
	}
	return result, nil
}

func (m *memoryVoterStore) Create(_ context.Context, nv models.NewVoter) (*models.Voter, error) {
	voter := &models.Voter{
		ID:        uuid.NewString(),
		StudentID: nv.StudentID,
		Email:     nv.Email,
		FullName:  nv.FullName,
		Status:    models.StatusPendingApproval,
		Role:      models.RoleVoter,
	}
	m.voters[voter.ID] = voter
	return voter, nil
}

func (m *memoryVoterStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *memoryVoterStore) FindByID(_ context.Context, id string) (*models.Voter, error) {
	voter, ok := m.voters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return voter, nil
}

func buildRegistrationRouter(voters *memoryVoterStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	sessions := &memorySessionStore{sessions: make(map[string]models.WizardSession)}
	documents := &memoryDocumentStore{staged: make(map[string]string)}

	cfg := config.RegistrationConfig{
		MaxUploadBytes: 1 << 20,
		AllowedMIMEs:   []string{"image/jpeg", "image/png", "image/webp"},
	}
	wizard := service.NewWizardService(sessions, documents, nil, cfg)
	submitter := service.NewRegistrationService(voters, sessions, documents, nil)
	h := NewRegistrationHandler(wizard, submitter, nil)

	router := gin.New()
	group := router.Group("/register/sessions")
	group.POST("", h.StartSession)
	group.GET("/:id", h.GetSession)
	group.PUT("/:id/draft", h.SaveDraft)
	group.POST("/:id/document", h.UploadDocument)
	group.POST("/:id/advance", h.Advance)
	group.POST("/:id/retreat", h.Retreat)
	group.POST("/:id/reset", h.Reset)
	group.POST("/:id/submit", h.Submit)
	group.DELETE("/:id", h.CancelSession)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope
}

func putDraft(t *testing.T, router *gin.Engine, sessionID, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, "/register/sessions/"+sessionID+"/draft", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	return performRequest(router, req)
}

func uploadDocument(t *testing.T, router *gin.Engine, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="document"; filename="id.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(make([]byte, 256))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest(http.MethodPost, "/register/sessions/"+sessionID+"/document", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return performRequest(router, req)
}

func TestRegistrationWizardEndToEnd(t *testing.T) {
	voters := &memoryVoterStore{voters: make(map[string]*models.Voter)}
	router := buildRegistrationRouter(voters)

	// open a session
	req, _ := http.NewRequest(http.MethodPost, "/register/sessions", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusCreated, resp.Code)

	var started struct {
		ID   string `json:"id"`
		Step int    `json:"step"`
	}
	envelope := decodeEnvelope(t, resp)
	raw, _ := json.Marshal(envelope.Data)
	require.NoError(t, json.Unmarshal(raw, &started))
	require.Equal(t, 1, started.Step)
	sessionID := started.ID

	// advancing an empty step 1 fails with the first missing field
	req, _ = http.NewRequest(http.MethodPost, "/register/sessions/"+sessionID+"/advance", nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, resp.Body.String(), "Please enter your full name")

	// fill everything and walk to the last step
	resp = putDraft(t, router, sessionID, `{
		"full_name": "Juan Dela Cruz",
		"email": "juan@example.com",
		"student_id": "2021-00123",
		"course": "Bachelor of Science in Information Technology",
		"year_level": "3rd Year",
		"gender": "Male",
		"password": "secret1",
		"confirm_password": "secret1"
	}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotContains(t, resp.Body.String(), "secret1")

	for step := 1; step <= 3; step++ {
		req, _ = http.NewRequest(http.MethodPost, "/register/sessions/"+sessionID+"/advance", nil)
		resp = performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code, "advance from step %d", step)
	}

	// step 4 needs the ID image
	req, _ = http.NewRequest(http.MethodPost, "/register/sessions/"+sessionID+"/submit", nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, resp.Body.String(), "Please upload your ID")

	resp = uploadDocument(t, router, sessionID)
	require.Equal(t, http.StatusOK, resp.Code)

	// submit creates a pending account and destroys the session
	req, _ = http.NewRequest(http.MethodPost, "/register/sessions/"+sessionID+"/submit", nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusCreated, resp.Code)
	require.Contains(t, resp.Body.String(), "wait for approval from the administrator")
	require.Len(t, voters.voters, 1)

	req, _ = http.NewRequest(http.MethodGet, "/register/sessions/"+sessionID, nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRegistrationDuplicateSubmission(t *testing.T) {
	voters := &memoryVoterStore{voters: map[string]*models.Voter{
		"existing": {
			ID:        "existing",
			StudentID: "2021-00123",
			Email:     "taken@example.com",
			Status:    models.StatusApproved,
			CreatedAt: time.Now().UTC(),
		},
	}}
	router := buildRegistrationRouter(voters)

	req, _ := http.NewRequest(http.MethodPost, "/register/sessions", nil)
	resp := performRequest(router, req)
	envelope := decodeEnvelope(t, resp)
	raw, _ := json.Marshal(envelope.Data)
	var started struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &started))

	resp = putDraft(t, router, started.ID, `{
		"full_name": "Juan Dela Cruz",
		"email": "new@example.com",
		"student_id": "2021-00123",
		"course": "Bachelor of Science in Information Technology",
		"year_level": "3rd Year",
		"gender": "Male",
		"password": "secret1",
		"confirm_password": "secret1"
	}`)
	require.Equal(t, http.StatusOK, resp.Code)
	resp = uploadDocument(t, router, started.ID)
	require.Equal(t, http.StatusOK, resp.Code)

	req, _ = http.NewRequest(http.MethodPost, "/register/sessions/"+started.ID+"/submit", nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Contains(t, resp.Body.String(), "Student ID already exists.")
	require.NotContains(t, resp.Body.String(), "Email already exists.")

	// nothing was uploaded or created
	require.Len(t, voters.voters, 1)
}

func TestCancelSessionDiscardsDraft(t *testing.T) {
	voters := &memoryVoterStore{voters: make(map[string]*models.Voter)}
	router := buildRegistrationRouter(voters)

	req, _ := http.NewRequest(http.MethodPost, "/register/sessions", nil)
	resp := performRequest(router, req)
	envelope := decodeEnvelope(t, resp)
	raw, _ := json.Marshal(envelope.Data)
	var started struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &started))

	req, _ = http.NewRequest(http.MethodDelete, "/register/sessions/"+started.ID, nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusNoContent, resp.Code)

	req, _ = http.NewRequest(http.MethodGet, "/register/sessions/"+started.ID, nil)
	resp = performRequest(router, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}
