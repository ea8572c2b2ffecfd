package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tecnophone/secop-importer/api/internal/dto"
	"github.com/tecnophone/secop-importer/api/internal/entity"
	"github.com/tecnophone/secop-importer/api/internal/ingest"
	"github.com/tecnophone/secop-importer/api/internal/odoo"
	"github.com/tecnophone/secop-importer/api/internal/repository"
	"github.com/tecnophone/secop-importer/api/internal/scraper"
)

// ErrUploadNotFound is returned when an upload ID has no stored file.
var ErrUploadNotFound = errors.New("upload not found")

// importTag is attached to every created lead alongside the row's economic
// activity.
const importTag = "TECNOPHONE"

const previewRows = 10

// deadlineExtractor is the slice of the scraper the service depends on.
type deadlineExtractor interface {
	ExtractAll(ctx context.Context, requests []scraper.Request) ([]scraper.Result, scraper.Summary)
}

// ImportService orchestrates the pipeline from uploaded file to CRM leads.
type ImportService struct {
	uploadDir string
	imports   repository.ImportsRepository
	store     *scraper.DeadlineStore
	extractor deadlineExtractor
	dialSink  func() (odoo.Client, error)
	sinkURL   string
	sinkDB    string
}

// NewImportService wires the import pipeline. dialSink opens a fresh CRM
// session per run.
func NewImportService(
	uploadDir string,
	imports repository.ImportsRepository,
	store *scraper.DeadlineStore,
	extractor deadlineExtractor,
	dialSink func() (odoo.Client, error),
	sinkURL, sinkDB string,
) *ImportService {
	return &ImportService{
		uploadDir: uploadDir,
		imports:   imports,
		store:     store,
		extractor: extractor,
		dialSink:  dialSink,
		sinkURL:   sinkURL,
		sinkDB:    sinkDB,
	}
}

// Upload stores the file, parses it and returns a preview. Files whose
// structure cannot produce leads are rejected and removed.
func (s *ImportService) Upload(ctx context.Context, fileName string, src io.Reader) (*dto.UploadResponse, error) {
	uploadID := uuid.NewString()

	path, err := s.saveUpload(uploadID, fileName, src)
	if err != nil {
		return nil, err
	}

	result, err := ingest.ParseFile(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	if err := ingest.ValidateStructure(result.Table.Headers); err != nil {
		os.Remove(path)
		return nil, err
	}

	preview := make([]map[string]string, 0, previewRows)
	for i, row := range result.Table.Rows {
		if i == previewRows {
			break
		}
		preview = append(preview, row)
	}

	return &dto.UploadResponse{
		UploadID:        uploadID,
		FileName:        fileName,
		Headers:         result.Table.Headers,
		TotalRows:       len(result.Table.Rows),
		Preview:         preview,
		FormatCorrected: len(result.Report.Corrections) > 0,
		Corrections:     result.Report.Corrections,
		Warnings:        result.Report.Warnings,
		Stats:           ingest.ComputeStats(result.Table),
	}, nil
}

// ExtractDeadlines scrapes closing dates for every link in an uploaded file
// and parks them for the next Execute call on the same upload.
func (s *ImportService) ExtractDeadlines(ctx context.Context, uploadID string) (*dto.ExtractDeadlinesResponse, error) {
	result, _, err := s.loadUpload(uploadID)
	if err != nil {
		return nil, err
	}

	hasLinks := false
	for _, header := range result.Table.Headers {
		if header == ingest.ColEnlace {
			hasLinks = true
			break
		}
	}
	if !hasLinks {
		return nil, &ingest.MissingRequiredFieldError{
			Missing: []string{ingest.ColEnlace},
			Headers: result.Table.Headers,
		}
	}

	requests := make([]scraper.Request, 0, len(result.Table.Rows))
	for _, row := range result.Table.Rows {
		requests = append(requests, scraper.Request{
			Enlace: row[ingest.ColEnlace],
			Numero: row[ingest.ColNumero],
		})
	}

	results, summary := s.extractor.ExtractAll(ctx, requests)

	deadlines := make(map[string]string)
	for _, r := range results {
		if r.Status == scraper.StatusSuccess {
			deadlines[r.Enlace] = r.Normalized
		}
	}
	s.store.Put(uploadID, deadlines)

	log.Printf("deadline extraction upload_id=%s total=%d success=%d failed=%d",
		uploadID, summary.Total, summary.Success, summary.Failed)

	return &dto.ExtractDeadlinesResponse{
		UploadID: uploadID,
		Results:  results,
		Summary:  summary,
	}, nil
}

// Execute runs the import for an uploaded file: every row is transformed and
// pushed to the CRM sequentially, and the run is recorded in history. A
// failing row never aborts the run; a failing sink connection does.
func (s *ImportService) Execute(ctx context.Context, uploadID string) (*dto.ExecuteImportResponse, error) {
	result, path, err := s.loadUpload(uploadID)
	if err != nil {
		return nil, err
	}
	fileName := originalName(path, uploadID)

	record, err := s.imports.Create(ctx, fileName, s.sinkURL, s.sinkDB)
	if err != nil {
		return nil, fmt.Errorf("record import run: %w", err)
	}

	sink, err := s.dialSink()
	if err != nil {
		return nil, s.failRun(ctx, record, len(result.Table.Rows), fmt.Errorf("connect sink: %w", err))
	}
	if err := sink.Authenticate(); err != nil {
		return nil, s.failRun(ctx, record, len(result.Table.Rows), err)
	}

	deadlines := s.store.Take(uploadID)
	started := time.Now()

	response := &dto.ExecuteImportResponse{
		ImportID:  record.ID.String(),
		TotalRows: len(result.Table.Rows),
	}

	for i, row := range result.Table.Rows {
		rowNum := i + 1

		lead, err := ingest.TransformRow(row, rowNum, deadlines)
		if err != nil {
			response.Failed++
			response.Errors = append(response.Errors, dto.RowError{Row: rowNum, Message: err.Error()})
			continue
		}

		existing, err := sink.SearchLeadsByName(lead.Name)
		if err != nil {
			response.Failed++
			response.Errors = append(response.Errors, dto.RowError{Row: rowNum, Name: lead.Name, Message: err.Error()})
			continue
		}
		if len(existing) > 0 {
			response.Duplicates++
			response.DuplicateRefs = append(response.DuplicateRefs, dto.DuplicateRef{
				Row: rowNum, Name: lead.Name, LeadID: existing[0],
			})
			continue
		}

		values := leadValues(lead)

		resolution := sink.FindOrCreatePartner(lead.PartnerName, lead.EmailFrom, lead.Phone)
		if resolution.Fallback {
			log.Printf("partner fallback row=%d name=%q err=%v", rowNum, lead.PartnerName, resolution.Err)
		} else {
			values["partner_id"] = resolution.ID
			if lead.EmailFrom == "" && resolution.Email != "" {
				values["email_from"] = resolution.Email
			}
			if lead.Phone == "" && resolution.Phone != "" {
				values["phone"] = resolution.Phone
			}
		}

		if tagIDs := s.resolveTags(sink, lead); len(tagIDs) > 0 {
			values["tag_ids"] = []interface{}{[]interface{}{6, 0, tagIDs}}
		}

		leadID, err := sink.CreateLead(values)
		if err != nil {
			response.Failed++
			response.Errors = append(response.Errors, dto.RowError{Row: rowNum, Name: lead.Name, Message: err.Error()})
			continue
		}

		response.Created++
		response.LeadIDs = append(response.LeadIDs, leadID)
	}

	response.Status = entity.ImportStatusCompleted
	response.DurationMS = time.Since(started).Milliseconds()
	if response.TotalRows > 0 {
		rate := float64(response.Created) / float64(response.TotalRows) * 100
		response.SuccessRate = math.Round(rate*100) / 100
	}

	finished, err := s.imports.Finish(ctx, record.ID, repository.ImportFinish{
		Status:     response.Status,
		TotalRows:  response.TotalRows,
		Created:    response.Created,
		Duplicates: response.Duplicates,
		Failed:     response.Failed,
		Duplicate:  mustJSON(response.DuplicateRefs),
		Errors:     mustJSON(response.Errors),
		Summary:    mustJSON(response),
	})
	if err != nil {
		return nil, fmt.Errorf("close import run: %w", err)
	}
	response.ImportID = finished.ID.String()

	os.Remove(path)

	log.Printf("import completed import_id=%s rows=%d created=%d duplicates=%d failed=%d",
		response.ImportID, response.TotalRows, response.Created, response.Duplicates, response.Failed)
	return response, nil
}

// History returns the most recent import runs.
func (s *ImportService) History(ctx context.Context, filter repository.ImportListFilter) ([]entity.ImportRecord, error) {
	return s.imports.List(ctx, filter)
}

// HistoryDetails returns one run by ID.
func (s *ImportService) HistoryDetails(ctx context.Context, id string) (*entity.ImportRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.New("invalid import id")
	}
	return s.imports.FindByID(ctx, parsed)
}

// Stats aggregates counters over all recorded runs.
func (s *ImportService) Stats(ctx context.Context) (*repository.ImportStats, error) {
	return s.imports.Stats(ctx)
}

func (s *ImportService) resolveTags(sink odoo.Client, lead *ingest.Lead) []int64 {
	names := []string{importTag}
	if lead.ActividadEconomica != "" {
		names = append(names, strings.ToUpper(lead.ActividadEconomica))
	}

	var ids []int64
	for _, name := range names {
		id, err := sink.FindOrCreateTag(name)
		if err != nil {
			log.Printf("tag resolution failed name=%q err=%v", name, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *ImportService) failRun(ctx context.Context, record *entity.ImportRecord, totalRows int, cause error) error {
	_, finishErr := s.imports.Finish(ctx, record.ID, repository.ImportFinish{
		Status:    entity.ImportStatusFailed,
		TotalRows: totalRows,
		Errors:    mustJSON([]dto.RowError{{Message: cause.Error()}}),
	})
	if finishErr != nil {
		log.Printf("failed to close import run %s: %v", record.ID, finishErr)
	}
	return cause
}

func (s *ImportService) saveUpload(uploadID, fileName string, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(s.uploadDir, uploadID+"_"+sanitizeFileName(fileName))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

// loadUpload finds and re-parses the stored file for an upload ID.
func (s *ImportService) loadUpload(uploadID string) (*ingest.Result, string, error) {
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil, "", ErrUploadNotFound
	}

	matches, err := filepath.Glob(filepath.Join(s.uploadDir, uploadID+"_*"))
	if err != nil || len(matches) == 0 {
		return nil, "", ErrUploadNotFound
	}
	path := matches[0]

	result, err := ingest.ParseFile(path)
	if err != nil {
		return nil, "", err
	}
	return result, path, nil
}

// leadValues flattens a lead into the sink's field map, omitting empties.
func leadValues(lead *ingest.Lead) map[string]interface{} {
	values := map[string]interface{}{
		"name":             lead.Name,
		"partner_name":     lead.PartnerName,
		"expected_revenue": lead.ExpectedRevenue,
		"probability":      lead.Probability,
		"description":      lead.Description,
		"type":             lead.Type,
	}
	if lead.Website != "" {
		values["website"] = lead.Website
	}
	if lead.City != "" {
		values["city"] = lead.City
	}
	if lead.EmailFrom != "" {
		values["email_from"] = lead.EmailFrom
	}
	if lead.Phone != "" {
		values["phone"] = lead.Phone
	}
	if lead.DateDeadline != "" {
		values["date_deadline"] = lead.DateDeadline
	}
	if lead.CierreConHora != "" {
		values["x_cierre_con_hora"] = lead.CierreConHora
	}
	return values
}

func sanitizeFileName(name string) string {
	base := filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}

// originalName recovers the uploaded file name from the stored path.
func originalName(path, uploadID string) string {
	base := filepath.Base(path)
	return strings.TrimPrefix(base, uploadID+"_")
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
