package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Report accumulates validation warnings and the structural corrections
// applied to one parsed file. It lives for a single parse call.
type Report struct {
	TotalRows      int      `json:"total_rows"`
	TotalColumns   int      `json:"total_columns"`
	EmptyRows      int      `json:"empty_rows"`
	DuplicateRows  int      `json:"duplicate_rows"`
	InvalidNumbers int      `json:"invalid_numbers"`
	InvalidDates   int      `json:"invalid_dates"`
	Warnings       []string `json:"warnings,omitempty"`
	Corrections    []string `json:"corrections,omitempty"`
}

// Options toggles the individual auto-correction passes.
type Options struct {
	NormalizeHeaders bool
	DropEmptyColumns bool
	DropEmptyRows    bool
	NormalizeNumbers bool
	NormalizeDates   bool
	FillDefaults     bool
	TrimFields       bool
}

// DefaultOptions enables every pass.
func DefaultOptions() Options {
	return Options{
		NormalizeHeaders: true,
		DropEmptyColumns: true,
		DropEmptyRows:    true,
		NormalizeNumbers: true,
		NormalizeDates:   true,
		FillDefaults:     true,
		TrimFields:       true,
	}
}

// criticalColumns must be present (under any alias) for an import to be
// useful. Absence is a warning, never a hard failure.
var criticalColumns = []string{ColEntidad, ColObjeto, ColNumero, ColEnlace}

// datePatterns recognizes the date formats that pass through unchanged at
// this stage. Actual parsing happens in the transformer.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`^\d{1,2}-[A-Za-z]{3}-\d{4}$`),
}

// an amount keeps only digits, separators and sign before normalization
var nonNumericPattern = regexp.MustCompile(`[^\d,.\-]`)

// comma followed by one or two trailing digits marks the European decimal
// convention (1.234,56)
var commaDecimalPattern = regexp.MustCompile(`,\d{1,2}$`)

// Validate runs the pre-correction checks: critical column presence, empty
// row count and duplicate count by process number. Duplicates are reported
// but never removed here; suppression happens against the sink.
func Validate(t *Table) *Report {
	report := &Report{
		TotalRows:    len(t.Rows),
		TotalColumns: len(t.Headers),
	}

	if missing := missingCriticalColumns(t.Headers); len(missing) > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("critical columns missing: %s", strings.Join(missing, ", ")))
	}

	for _, row := range t.Rows {
		if rowIsEmpty(row) {
			report.EmptyRows++
		}
	}
	if report.EmptyRows > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d empty rows found", report.EmptyRows))
	}

	report.DuplicateRows = countDuplicates(t.Rows)
	if report.DuplicateRows > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d duplicate rows found", report.DuplicateRows))
	}

	return report
}

// AutoCorrect runs the second-pass cleanup over tokenized rows. Each pass
// is independently toggleable and reports what it changed.
func AutoCorrect(t *Table, opts Options) (*Table, []string) {
	headers := append([]string(nil), t.Headers...)
	rows := make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		clone := make(Row, len(row))
		for k, v := range row {
			clone[k] = v
		}
		rows[i] = clone
	}
	var corrections []string

	if opts.NormalizeHeaders {
		normalized, headerNotes := NormalizeHeaders(headers)
		rows = rekeyRows(rows, headers, normalized)
		headers = normalized
		corrections = append(corrections, headerNotes...)
	}

	if opts.DropEmptyColumns {
		var removed []string
		headers, rows, removed = dropEmptyColumns(headers, rows)
		if len(removed) > 0 {
			corrections = append(corrections, fmt.Sprintf("empty columns removed: %s", strings.Join(removed, ", ")))
		}
	}

	if opts.DropEmptyRows {
		before := len(rows)
		rows = dropEmptyRows(rows)
		if dropped := before - len(rows); dropped > 0 {
			corrections = append(corrections, fmt.Sprintf("%d empty rows removed", dropped))
		}
	}

	if opts.NormalizeNumbers {
		for _, row := range rows {
			if value, ok := row[ColCuantia]; ok && value != "" {
				if normalized, ok := NormalizeNumber(value); ok {
					row[ColCuantia] = strconv.FormatFloat(normalized, 'f', -1, 64)
				}
			}
		}
	}

	if opts.NormalizeDates {
		for _, row := range rows {
			if value, ok := row[ColFechaPublicacion]; ok && value != "" {
				row[ColFechaPublicacion] = normalizeDateAdvisory(value)
			}
		}
	}

	if opts.FillDefaults {
		filled := fillDefaults(rows)
		if filled > 0 {
			corrections = append(corrections, fmt.Sprintf("%d optional fields filled with defaults", filled))
		}
	}

	if opts.TrimFields {
		for _, row := range rows {
			for key, value := range row {
				row[key] = strings.TrimSpace(value)
			}
		}
	}

	return &Table{Headers: headers, Rows: rows}, corrections
}

// NormalizeNumber strips currency symbols and resolves the decimal-separator
// convention. The second return is false when nothing numeric remains.
func NormalizeNumber(value string) (float64, bool) {
	cleaned := strings.TrimSpace(nonNumericPattern.ReplaceAllString(value, ""))
	if cleaned == "" {
		return 0, false
	}

	if commaDecimalPattern.MatchString(cleaned) {
		// European convention: dots are thousands separators
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// normalizeDateAdvisory keeps recognized date strings as-is and passes
// everything else through unchanged. Enforcement happens later.
func normalizeDateAdvisory(value string) string {
	trimmed := strings.TrimSpace(value)
	for _, pattern := range datePatterns {
		if pattern.MatchString(trimmed) {
			return trimmed
		}
	}
	return trimmed
}

func missingCriticalColumns(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[CanonicalHeader(h)] = true
	}

	var missing []string
	for _, critical := range criticalColumns {
		if !present[critical] {
			missing = append(missing, critical)
		}
	}
	return missing
}

func rekeyRows(rows []Row, oldHeaders, newHeaders []string) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		rekeyed := make(Row, len(newHeaders))
		for j, oldKey := range oldHeaders {
			if j < len(newHeaders) {
				rekeyed[newHeaders[j]] = row[oldKey]
			}
		}
		out[i] = rekeyed
	}
	return out
}

// defaultValues are substituted into blank cells of their column. Columns
// carrying a default survive empty-column pruning so the fill can happen.
var defaultValues = map[string]string{
	ColContratistas: "Sin adjudicar",
	ColPortalOrigen: "Desconocido",
}

func dropEmptyColumns(headers []string, rows []Row) ([]string, []Row, []string) {
	var kept, removed []string
	for _, header := range headers {
		if _, hasDefault := defaultValues[CanonicalHeader(header)]; hasDefault {
			kept = append(kept, header)
			continue
		}
		hasData := false
		for _, row := range rows {
			if strings.TrimSpace(row[header]) != "" {
				hasData = true
				break
			}
		}
		if hasData {
			kept = append(kept, header)
		} else {
			removed = append(removed, header)
		}
	}
	if len(removed) == 0 {
		return headers, rows, nil
	}

	out := make([]Row, len(rows))
	for i, row := range rows {
		pruned := make(Row, len(kept))
		for _, header := range kept {
			pruned[header] = row[header]
		}
		out[i] = pruned
	}
	return kept, out, removed
}

func dropEmptyRows(rows []Row) []Row {
	kept := rows[:0:0]
	for _, row := range rows {
		if !rowIsEmpty(row) {
			kept = append(kept, row)
		}
	}
	return kept
}

func rowIsEmpty(row Row) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func fillDefaults(rows []Row) int {
	filled := 0
	for _, row := range rows {
		for column, fallback := range defaultValues {
			if _, ok := row[column]; !ok {
				continue
			}
			if strings.TrimSpace(row[column]) == "" {
				row[column] = fallback
				filled++
			}
		}
	}
	return filled
}

func countDuplicates(rows []Row) int {
	seen := make(map[string]int)
	total := 0
	for _, row := range rows {
		number := ""
		for key, value := range row {
			if CanonicalHeader(key) == ColNumero {
				number = strings.TrimSpace(value)
				break
			}
		}
		if number == "" {
			continue
		}
		seen[number]++
		total++
	}
	return total - len(seen)
}
