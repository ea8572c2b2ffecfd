package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Import run lifecycle states.
const (
	ImportStatusProcessing = "processing"
	ImportStatusCompleted  = "completed"
	ImportStatusFailed     = "failed"
)

// ImportRecord is the persisted history of one import run against the CRM.
type ImportRecord struct {
	ID           uuid.UUID       `json:"id"`
	FileName     string          `json:"file_name"`
	Status       string          `json:"status"`
	TotalRows    int             `json:"total_rows"`
	Created      int             `json:"created"`
	Duplicates   int             `json:"duplicates"`
	Failed       int             `json:"failed"`
	DuplicateRef json.RawMessage `json:"duplicate_ref,omitempty"`
	Errors       json.RawMessage `json:"errors,omitempty"`
	Summary      json.RawMessage `json:"summary,omitempty"`
	OdooURL      *string         `json:"odoo_url,omitempty"`
	OdooDatabase *string         `json:"odoo_database,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Duration reports the elapsed run time, zero while still processing.
func (r *ImportRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
