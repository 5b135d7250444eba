package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DownMan01/evot4r/internal/models"
	appErrors "github.com/DownMan01/evot4r/pkg/errors"
	"github.com/DownMan01/evot4r/pkg/export"
)

type pendingRegistrationLister interface {
	ListPending(ctx context.Context, filter models.PendingRegistrationFilter) ([]models.PendingRegistration, int, error)
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// RosterFormat selects an export encoding for the pending roster.
type RosterFormat string

const (
	RosterFormatCSV RosterFormat = "csv"
	RosterFormatPDF RosterFormat = "pdf"
)

// PendingRoster is a page of unapproved registrations.
type PendingRoster struct {
	Registrations []models.PendingRegistration `json:"registrations"`
	Pagination    models.Pagination            `json:"pagination"`
}

// RosterExport is a rendered roster document ready to stream.
type RosterExport struct {
	FileName    string
	ContentType string
	Payload     []byte
}

const rosterCacheTTL = 30 * time.Second

// RosterService serves the admin view of accounts awaiting approval.
// List pages are cached briefly; any cache failure falls through to the
// database.
type RosterService struct {
	repo   pendingRegistrationLister
	cache  rosterCache
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewRosterService constructs a RosterService.
func NewRosterService(repo pendingRegistrationLister, cache rosterCache, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		repo:   repo,
		cache:  cache,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// ListPending returns one page of pending registrations.
func (s *RosterService) ListPending(ctx context.Context, filter models.PendingRegistrationFilter) (*PendingRoster, error) {
	filter = normalizeFilter(filter)
	key := rosterCacheKey(filter)

	if s.cache != nil {
		var cached PendingRoster
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("pending roster cache read failed", zap.Error(err))
		}
	}

	registrations, total, err := s.repo.ListPending(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending registrations")
	}

	roster := &PendingRoster{
		Registrations: registrations,
		Pagination: models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalCount: total,
		},
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, roster, rosterCacheTTL); err != nil {
			s.logger.Warn("pending roster cache write failed", zap.Error(err))
		}
	}
	return roster, nil
}

// ExportPending renders the full filtered roster as CSV or PDF.
func (s *RosterService) ExportPending(ctx context.Context, filter models.PendingRegistrationFilter, format RosterFormat) (*RosterExport, error) {
	filter = normalizeFilter(filter)
	filter.Page = 1
	filter.PageSize = 10000

	registrations, _, err := s.repo.ListPending(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending registrations")
	}

	dataset := export.Dataset{
		Headers: []string{"Student ID", "Full Name", "Email", "Course", "Year Level", "Gender", "Submitted At"},
		Rows:    make([]map[string]string, 0, len(registrations)),
	}
	for _, reg := range registrations {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student ID":   reg.StudentID,
			"Full Name":    reg.FullName,
			"Email":        reg.Email,
			"Course":       reg.Course,
			"Year Level":   reg.YearLevel,
			"Gender":       reg.Gender,
			"Submitted At": reg.SubmittedAt.UTC().Format(time.RFC3339),
		})
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case RosterFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster CSV")
		}
		return &RosterExport{
			FileName:    fmt.Sprintf("pending-registrations-%s.csv", stamp),
			ContentType: "text/csv",
			Payload:     payload,
		}, nil
	case RosterFormatPDF:
		payload, err := s.pdf.Render(dataset, "Pending Voter Registrations")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster PDF")
		}
		return &RosterExport{
			FileName:    fmt.Sprintf("pending-registrations-%s.pdf", stamp),
			ContentType: "application/pdf",
			Payload:     payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// InvalidateRoster drops cached roster pages, typically after a new
// registration lands.
func (s *RosterService) InvalidateRoster(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "roster:pending:*"); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.Error(err))
	}
}

func normalizeFilter(filter models.PendingRegistrationFilter) models.PendingRegistrationFilter {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return filter
}

func rosterCacheKey(filter models.PendingRegistrationFilter) string {
	return fmt.Sprintf("roster:pending:%s:%s:%s:%d:%d", filter.Search, filter.Course, filter.YearLevel, filter.Page, filter.PageSize)
}
