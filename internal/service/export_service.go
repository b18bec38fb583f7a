package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quillstage/quillstage-api/internal/models"
	appErrors "github.com/quillstage/quillstage-api/pkg/errors"
	"github.com/quillstage/quillstage-api/pkg/export"
	"github.com/quillstage/quillstage-api/pkg/storage"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportLedgerReader interface {
	ListLedger(ctx context.Context, filter models.ReviewFilter) ([]models.ReviewLedgerEntry, error)
}

type exportResourceReader interface {
	GetByID(ctx context.Context, id string) (*models.Resource, error)
}

type exportCommentReader interface {
	ListByResource(ctx context.Context, resourceID string) ([]models.ReviewComment, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       string
	ExpiresAt    time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders a resource's review history to a downloadable file
// behind a signed URL.
type ExportService struct {
	resources exportResourceReader
	ledger    exportLedgerReader
	comments  exportCommentReader
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(resources exportResourceReader, ledger exportLedgerReader, comments exportCommentReader, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		resources: resources,
		ledger:    ledger,
		comments:  comments,
		storage:   storage,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate renders the review history for one resource and stores the file.
func (s *ExportService) Generate(ctx context.Context, resourceID, format string, actor *models.JWTClaims) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	resource, err := s.resources.GetByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource")
	}
	if actor.Role != models.RoleAdmin && resource.OrganizationID != actor.OrganizationID {
		return nil, appErrors.ErrForbidden
	}

	dataset, title, err := s.buildDataset(ctx, resource)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := s.buildFilename(resource, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(resource.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(resource *models.Resource, format string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("review_history_%s_%s.%s", sanitizeFilename(resource.ID), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, resource *models.Resource) (export.Dataset, string, error) {
	entries, err := s.ledger.ListLedger(ctx, models.ReviewFilter{ResourceID: resource.ID})
	if err != nil {
		return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review history")
	}
	commentCounts := map[string]int{}
	if s.comments != nil {
		comments, err := s.comments.ListByResource(ctx, resource.ID)
		if err != nil {
			return export.Dataset{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review comments")
		}
		for _, c := range comments {
			commentCounts[c.ReviewerID]++
		}
	}

	rows := make([]map[string]string, 0, len(entries)+1)
	for _, entry := range entries {
		notes := ""
		if entry.Notes != nil {
			notes = *entry.Notes
		}
		rows = append(rows, map[string]string{
			"Reviewer ID": entry.ReviewerID,
			"Verdict":     string(entry.Status),
			"Notes":       notes,
			"Comments":    fmt.Sprintf("%d", commentCounts[entry.ReviewerID]),
			"Updated At":  entry.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Reviewer ID", "Verdict", "Notes", "Comments", "Updated At"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Review History: %s (%s)", resource.Title, resource.Status)
	return dataset, title, nil
}
