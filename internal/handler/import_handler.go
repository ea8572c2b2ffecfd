package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tecnophone/secop-importer/api/internal/dto"
	"github.com/tecnophone/secop-importer/api/internal/ingest"
	"github.com/tecnophone/secop-importer/api/internal/repository"
	"github.com/tecnophone/secop-importer/api/internal/service"
)

// maxUploadBytes caps procurement export uploads.
const maxUploadBytes = 10 << 20

// ImportHandler exposes the file-to-CRM import pipeline.
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler constructs an ImportHandler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Upload handles POST /imports/upload requests.
func (h *ImportHandler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return Error(c, http.StatusBadRequest, "missing file")
	}
	if fileHeader.Size > maxUploadBytes {
		return Error(c, http.StatusRequestEntityTooLarge, "file exceeds 10MB limit")
	}

	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".csv", ".xlsx", ".xls":
	default:
		return Error(c, http.StatusBadRequest, "unsupported file type, expected csv, xlsx or xls")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return Error(c, http.StatusBadRequest, "unable to open file")
	}
	defer file.Close()

	response, err := h.imports.Upload(c.Request().Context(), fileHeader.Filename, file)
	if err != nil {
		return h.ingestError(c, err)
	}

	return Success(c, http.StatusOK, "file parsed", response)
}

// Execute handles POST /imports/execute requests.
func (h *ImportHandler) Execute(c echo.Context) error {
	var req dto.ExecuteImportRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.UploadID) == "" {
		return Error(c, http.StatusBadRequest, "upload_id is required")
	}

	response, err := h.imports.Execute(c.Request().Context(), req.UploadID)
	if err != nil {
		if errors.Is(err, service.ErrUploadNotFound) {
			return Error(c, http.StatusNotFound, "upload not found")
		}
		return h.ingestError(c, err)
	}

	return Success(c, http.StatusOK, "import completed", response)
}

// ExtractDeadlines handles POST /imports/extract-deadlines requests.
func (h *ImportHandler) ExtractDeadlines(c echo.Context) error {
	var req dto.ExtractDeadlinesRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.UploadID) == "" {
		return Error(c, http.StatusBadRequest, "upload_id is required")
	}

	response, err := h.imports.ExtractDeadlines(c.Request().Context(), req.UploadID)
	if err != nil {
		if errors.Is(err, service.ErrUploadNotFound) {
			return Error(c, http.StatusNotFound, "upload not found")
		}
		return h.ingestError(c, err)
	}

	return Success(c, http.StatusOK, "deadlines extracted", response)
}

// History handles GET /imports/history requests. Accepts page, limit and
// status query parameters.
func (h *ImportHandler) History(c echo.Context) error {
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return Error(c, http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}
	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return Error(c, http.StatusBadRequest, "invalid page")
		}
		page = parsed
	}

	records, err := h.imports.History(c.Request().Context(), repository.ImportListFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
		Status: c.QueryParam("status"),
	})
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to list import history")
	}
	return Success(c, http.StatusOK, "import history retrieved", map[string]any{
		"imports": records,
		"page":    page,
		"limit":   limit,
	})
}

// HistoryDetails handles GET /imports/history/:id requests.
func (h *ImportHandler) HistoryDetails(c echo.Context) error {
	record, err := h.imports.HistoryDetails(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrImportNotFound) {
			return Error(c, http.StatusNotFound, "import run not found")
		}
		return Error(c, http.StatusBadRequest, err.Error())
	}
	return Success(c, http.StatusOK, "import run retrieved", record)
}

// Stats handles GET /imports/stats requests.
func (h *ImportHandler) Stats(c echo.Context) error {
	stats, err := h.imports.Stats(c.Request().Context())
	if err != nil {
		return Error(c, http.StatusInternalServerError, "failed to compute import stats")
	}
	return Success(c, http.StatusOK, "import stats retrieved", stats)
}

// ingestError maps parsing failures onto 400 responses that carry enough
// context for the frontend to explain the rejection.
func (h *ImportHandler) ingestError(c echo.Context, err error) error {
	var missing *ingest.MissingRequiredFieldError
	if errors.As(err, &missing) {
		return c.JSON(http.StatusBadRequest, APIResponse{
			Status:  "error",
			Message: missing.Error(),
			Data: map[string]any{
				"missing_fields": missing.Missing,
				"headers":        missing.Headers,
			},
		})
	}

	var malformed *ingest.MalformedFileError
	if errors.As(err, &malformed) {
		return c.JSON(http.StatusBadRequest, APIResponse{
			Status:  "error",
			Message: malformed.Error(),
			Data: map[string]any{
				"columns": malformed.Columns,
				"headers": malformed.Headers,
			},
		})
	}

	return Error(c, http.StatusInternalServerError, "failed to process file")
}
