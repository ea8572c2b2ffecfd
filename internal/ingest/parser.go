package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one parsed record, keyed by the file's header row. Every row of a
// parse result carries the same key set; values may be empty.
type Row map[string]string

// Table is the format-agnostic output shared by the CSV and spreadsheet
// parsers.
type Table struct {
	Headers []string
	Rows    []Row
}

// Result is a fully parsed, corrected and validated file.
type Result struct {
	Table  *Table
	Report *Report
}

var unnamedColumnPattern = regexp.MustCompile(`^Unnamed:`)

// ParseFile parses a CSV or spreadsheet file, applying format correction and
// the post-parse validation pass.
func ParseFile(path string) (*Result, error) {
	var (
		table *Table
		notes []string
		err   error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		table, notes, err = parseCSVFile(path)
	case ".xlsx", ".xls":
		table, notes, err = parseWorkbookFile(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	report := Validate(table)
	corrected, corrections := AutoCorrect(table, DefaultOptions())
	report.Corrections = append(notes, corrections...)

	return &Result{Table: corrected, Report: report}, nil
}

func parseCSVFile(path string) (*Table, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	return ParseCSV(raw)
}

// ParseCSV corrects and tokenizes raw CSV bytes. Dynamic type coercion is
// deliberately absent: every value stays textual until a later stage parses
// it.
func ParseCSV(raw []byte) (*Table, []string, error) {
	content, recoded := DecodeText(raw)
	notes := []string{}
	if recoded {
		notes = append(notes, "content re-encoded from Windows-1252")
	}

	corrected, correctionNotes, err := CorrectCSV(content)
	notes = append(notes, correctionNotes...)
	if err != nil {
		return nil, notes, err
	}

	reader := csv.NewReader(strings.NewReader(corrected))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, notes, &MalformedFileError{Columns: 0}
		}
		return nil, notes, fmt.Errorf("read csv header: %w", err)
	}

	headers := make([]string, 0, len(header))
	for _, h := range header {
		headers = append(headers, strings.TrimSpace(h))
	}
	if len(headers) < minColumns {
		return nil, notes, &MalformedFileError{Columns: len(headers), Headers: headers}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, notes, fmt.Errorf("read csv row: %w", err)
		}

		row := make(Row, len(headers))
		empty := true
		for i, h := range headers {
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			row[h] = value
			if value != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	return &Table{Headers: headers, Rows: rows}, notes, nil
}

// parseWorkbookFile reads the first worksheet of an Excel file. A collapsed
// structure (one header cell containing a whole CSV line) is routed through
// the CSV correction path instead.
func parseWorkbookFile(path string) (*Table, []string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}

	cells, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(cells) == 0 {
		return nil, nil, &MalformedFileError{Columns: 0}
	}

	headerCells := cells[0]
	if len(headerCells) == 1 && strings.Contains(headerCells[0], ",") {
		// csv content pasted into a single column: stitch the first cell
		// of every row back into delimited text
		lines := make([]string, 0, len(cells))
		for _, row := range cells {
			if len(row) > 0 && strings.TrimSpace(row[0]) != "" {
				lines = append(lines, row[0])
			}
		}
		table, notes, err := ParseCSV([]byte(strings.Join(lines, "\n")))
		if err != nil {
			return nil, notes, err
		}
		notes = append([]string{"collapsed spreadsheet structure corrected"}, notes...)
		return table, notes, nil
	}

	headers, keep := workbookHeaders(headerCells)
	if len(headers) < minColumns {
		return nil, nil, &MalformedFileError{Columns: len(headers), Headers: headers}
	}

	var rows []Row
	for _, record := range cells[1:] {
		row := make(Row, len(headers))
		empty := true
		for i, col := range keep {
			value := ""
			if col < len(record) {
				value = strings.TrimSpace(record[col])
			}
			row[headers[i]] = value
			if value != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	return &Table{Headers: headers, Rows: rows}, nil, nil
}

// workbookHeaders drops empty and placeholder columns, returning the kept
// header names together with their source column indexes.
func workbookHeaders(cells []string) ([]string, []int) {
	var headers []string
	var keep []int
	for i, cell := range cells {
		name := strings.TrimSpace(cell)
		if name == "" || unnamedColumnPattern.MatchString(name) {
			continue
		}
		headers = append(headers, name)
		keep = append(keep, i)
	}
	return headers, keep
}
