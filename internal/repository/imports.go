package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tecnophone/secop-importer/api/internal/entity"
)

// ErrImportNotFound is returned when no import run matches the lookup.
var ErrImportNotFound = errors.New("import run not found")

// ImportFinish carries the closing state of an import run.
type ImportFinish struct {
	Status     string
	TotalRows  int
	Created    int
	Duplicates int
	Failed     int
	Duplicate  json.RawMessage
	Errors     json.RawMessage
	Summary    json.RawMessage
}

// ImportStats aggregates figures over all recorded runs.
type ImportStats struct {
	TotalRuns       int `json:"total_runs"`
	CompletedRuns   int `json:"completed_runs"`
	FailedRuns      int `json:"failed_runs"`
	LeadsCreated    int `json:"leads_created"`
	DuplicatesFound int `json:"duplicates_found"`
	RowsFailed      int `json:"rows_failed"`
}

// ImportListFilter narrows and pages the history listing.
type ImportListFilter struct {
	Limit  int
	Offset int
	Status string
}

// ImportsRepository persists the history of import runs.
type ImportsRepository interface {
	Create(ctx context.Context, fileName, odooURL, odooDatabase string) (*entity.ImportRecord, error)
	Finish(ctx context.Context, id uuid.UUID, result ImportFinish) (*entity.ImportRecord, error)
	List(ctx context.Context, filter ImportListFilter) ([]entity.ImportRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ImportRecord, error)
	Stats(ctx context.Context) (*ImportStats, error)
}

// PGXImportsRepository implements ImportsRepository with pgx.
type PGXImportsRepository struct {
	pool pgxPool
}

// NewPGXImportsRepository instantiates an imports repository.
func NewPGXImportsRepository(pool pgxPool) *PGXImportsRepository {
	return &PGXImportsRepository{pool: pool}
}

const importColumns = `id, file_name, status, total_rows, created, duplicates, failed,
	duplicate_ref, errors, summary, odoo_url, odoo_database,
	started_at, finished_at, created_at, updated_at`

// Create opens a new run in processing state.
func (r *PGXImportsRepository) Create(ctx context.Context, fileName, odooURL, odooDatabase string) (*entity.ImportRecord, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO import_runs (file_name, status, odoo_url, odoo_database, started_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING %s
    `, importColumns), fileName, entity.ImportStatusProcessing, odooURL, odooDatabase)

	record, err := scanImport(row)
	if err != nil {
		return nil, fmt.Errorf("insert import run: %w", err)
	}
	return record, nil
}

// Finish closes a run with its final counters and reports.
func (r *PGXImportsRepository) Finish(ctx context.Context, id uuid.UUID, result ImportFinish) (*entity.ImportRecord, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE import_runs
        SET status = $1, total_rows = $2, created = $3, duplicates = $4, failed = $5,
            duplicate_ref = $6, errors = $7, summary = $8,
            finished_at = NOW(), updated_at = NOW()
        WHERE id = $9
        RETURNING %s
    `, importColumns),
		result.Status, result.TotalRows, result.Created, result.Duplicates, result.Failed,
		nullableJSON(result.Duplicate), nullableJSON(result.Errors), nullableJSON(result.Summary), id)

	record, err := scanImport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImportNotFound
		}
		return nil, fmt.Errorf("finish import run: %w", err)
	}
	return record, nil
}

// List returns the most recent runs, newest first.
func (r *PGXImportsRepository) List(ctx context.Context, filter ImportListFilter) ([]entity.ImportRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM import_runs`, importColumns)
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	var records []entity.ImportRecord
	for rows.Next() {
		record, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import runs: %w", err)
	}
	return records, nil
}

// FindByID retrieves one run.
func (r *PGXImportsRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ImportRecord, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM import_runs WHERE id = $1`, importColumns), id)

	record, err := scanImport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImportNotFound
		}
		return nil, fmt.Errorf("query import run: %w", err)
	}
	return record, nil
}

// Stats sums counters across all runs.
func (r *PGXImportsRepository) Stats(ctx context.Context) (*ImportStats, error) {
	row := r.pool.QueryRow(ctx, `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status = 'completed'),
               COUNT(*) FILTER (WHERE status = 'failed'),
               COALESCE(SUM(created), 0),
               COALESCE(SUM(duplicates), 0),
               COALESCE(SUM(failed), 0)
        FROM import_runs
    `)

	var stats ImportStats
	err := row.Scan(&stats.TotalRuns, &stats.CompletedRuns, &stats.FailedRuns,
		&stats.LeadsCreated, &stats.DuplicatesFound, &stats.RowsFailed)
	if err != nil {
		return nil, fmt.Errorf("query import stats: %w", err)
	}
	return &stats, nil
}

func scanImport(row pgx.Row) (*entity.ImportRecord, error) {
	var record entity.ImportRecord
	err := row.Scan(
		&record.ID, &record.FileName, &record.Status,
		&record.TotalRows, &record.Created, &record.Duplicates, &record.Failed,
		&record.DuplicateRef, &record.Errors, &record.Summary,
		&record.OdooURL, &record.OdooDatabase,
		&record.StartedAt, &record.FinishedAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
