package dto

// UploadResponse describes a parsed upload, ready to be imported.
type UploadResponse struct {
	UploadID        string              `json:"upload_id"`
	FileName        string              `json:"file_name"`
	Headers         []string            `json:"headers"`
	TotalRows       int                 `json:"total_rows"`
	Preview         []map[string]string `json:"preview"`
	FormatCorrected bool                `json:"format_corrected"`
	Corrections     []string            `json:"corrections,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
	Stats           any                 `json:"stats,omitempty"`
}

// ExecuteImportRequest starts an import for a previously uploaded file.
type ExecuteImportRequest struct {
	UploadID string `json:"upload_id"`
}

// RowError reports one row that could not be imported.
type RowError struct {
	Row     int    `json:"row"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// DuplicateRef points at a lead that already existed in the CRM.
type DuplicateRef struct {
	Row    int    `json:"row"`
	Name   string `json:"name"`
	LeadID int64  `json:"lead_id"`
}

// ExecuteImportResponse is the outcome of one import run.
type ExecuteImportResponse struct {
	ImportID      string         `json:"import_id"`
	Status        string         `json:"status"`
	TotalRows     int            `json:"total_rows"`
	Created       int            `json:"created"`
	Duplicates    int            `json:"duplicates"`
	Failed        int            `json:"failed"`
	LeadIDs       []int64        `json:"lead_ids,omitempty"`
	DuplicateRefs []DuplicateRef `json:"duplicate_refs,omitempty"`
	Errors        []RowError     `json:"errors,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
	SuccessRate   float64        `json:"success_rate"`
}

// ExtractDeadlinesRequest scrapes closing dates for an uploaded file.
type ExtractDeadlinesRequest struct {
	UploadID string `json:"upload_id"`
}

// ExtractDeadlinesResponse reports per-link extraction outcomes.
type ExtractDeadlinesResponse struct {
	UploadID string `json:"upload_id"`
	Results  any    `json:"results"`
	Summary  any    `json:"summary"`
}
