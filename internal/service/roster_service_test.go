package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DownMan01/evot4r/internal/models"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
)

type mockPendingLister struct {
	registrations []models.PendingRegistration
	calls         int
}

func (m *mockPendingLister) ListPending(_ context.Context, filter models.PendingRegistrationFilter) ([]models.PendingRegistration, int, error) {
	m.calls++
	return m.registrations, len(m.registrations), nil
}

type memoryRosterCache struct {
	values map[string]interface{}
}

func newMemoryRosterCache() *memoryRosterCache {
	return &memoryRosterCache{values: make(map[string]interface{})}
}

func (c *memoryRosterCache) Get(_ context.Context, key string, dest interface{}) error {
	value, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*PendingRoster) = *value.(*PendingRoster)
	return nil
}

func (c *memoryRosterCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.values[key] = value
	return nil
}

func (c *memoryRosterCache) DeleteByPattern(_ context.Context, _ string) error {
	c.values = make(map[string]interface{})
	return nil
}

func pendingFixture() []models.PendingRegistration {
	return []models.PendingRegistration{
		{
			ID:          "r1",
			StudentID:   "2021-00123",
			Email:       "juan@example.com",
			FullName:    "Juan Dela Cruz",
			Course:      "Bachelor of Science in Information Technology",
			YearLevel:   "3rd Year",
			Gender:      "Male",
			SubmittedAt: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		},
		{
			ID:          "r2",
			StudentID:   "2022-00456",
			Email:       "maria@example.com",
			FullName:    "Maria Clara",
			Course:      "Bachelor of Secondary Education",
			YearLevel:   "2nd Year",
			Gender:      "Female",
			SubmittedAt: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestListPendingCachesPages(t *testing.T) {
	repo := &mockPendingLister{registrations: pendingFixture()}
	cache := newMemoryRosterCache()
	svc := NewRosterService(repo, cache, nil)

	first, err := svc.ListPending(context.Background(), models.PendingRegistrationFilter{})
	require.NoError(t, err)
	assert.Len(t, first.Registrations, 2)
	assert.Equal(t, 2, first.Pagination.TotalCount)
	assert.Equal(t, 1, first.Pagination.Page)
	assert.Equal(t, 20, first.Pagination.PageSize)

	second, err := svc.ListPending(context.Background(), models.PendingRegistrationFilter{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)

	svc.InvalidateRoster(context.Background())
	_, err = svc.ListPending(context.Background(), models.PendingRegistrationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestListPendingWorksWithoutCache(t *testing.T) {
	repo := &mockPendingLister{registrations: pendingFixture()}
	svc := NewRosterService(repo, nil, nil)

	roster, err := svc.ListPending(context.Background(), models.PendingRegistrationFilter{Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, roster.Pagination.Page)
	assert.Equal(t, 5, roster.Pagination.PageSize)
}

func TestExportPendingCSV(t *testing.T) {
	repo := &mockPendingLister{registrations: pendingFixture()}
	svc := NewRosterService(repo, nil, nil)

	result, err := svc.ExportPending(context.Background(), models.PendingRegistrationFilter{}, RosterFormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.FileName, ".csv"))

	body := string(result.Payload)
	assert.Contains(t, body, "Student ID,Full Name,Email")
	assert.Contains(t, body, "2021-00123")
	assert.Contains(t, body, "Maria Clara")
}

func TestExportPendingPDF(t *testing.T) {
	repo := &mockPendingLister{registrations: pendingFixture()}
	svc := NewRosterService(repo, nil, nil)

	result, err := svc.ExportPending(context.Background(), models.PendingRegistrationFilter{}, RosterFormatPDF)
	require.NoError(t, err)

	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasSuffix(result.FileName, ".pdf"))
	assert.NotEmpty(t, result.Payload)
}

func TestExportPendingRejectsUnknownFormat(t *testing.T) {
	svc := NewRosterService(&mockPendingLister{}, nil, nil)

	_, err := svc.ExportPending(context.Background(), models.PendingRegistrationFilter{}, RosterFormat("xlsx"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
