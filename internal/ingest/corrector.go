package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Exports from desktop spreadsheet tools arrive with a bounded set of known
// structural defects: whole lines wrapped in an extra quote pair, doubled
// inner quotes, unbalanced quoting, BOM prefixes and curly quotes. The
// corrector detects those signatures and rewrites the text into well-formed
// delimited lines before the parser sees it.

const (
	minColumns = 3
	maxColumns = 20
)

var curlyQuoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// DecodeText converts raw file bytes to a UTF-8 string. Bytes that are not
// valid UTF-8 are decoded as Windows-1252, the encoding older SECOP exports
// ship with. A leading byte-order-mark is stripped either way.
func DecodeText(raw []byte) (string, bool) {
	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), "\uFEFF"), false
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.TrimPrefix(string(raw), "\uFEFF"), false
	}
	return strings.TrimPrefix(string(decoded), "\uFEFF"), true
}

// NeedsCorrection inspects the header line for the known corruption
// signatures. Any single trigger is enough.
func NeedsCorrection(firstLine string) (bool, []string) {
	var reasons []string

	// whole header wrapped in one quote pair with the delimiter inside; a
	// `","` sequence marks real quoted field boundaries, not a wrap
	if strings.HasPrefix(firstLine, `"`) && strings.HasSuffix(firstLine, `"`) {
		inner := firstLine[1 : len(firstLine)-1]
		if strings.Contains(inner, ",") && !strings.Contains(inner, `","`) {
			reasons = append(reasons, "header line wrapped in quotes")
		}
	}

	// quote-aware split sees a single field even though the line carries
	// commas, meaning everything sits inside one quoted region
	if len(tokenizeLine(firstLine)) == 1 && strings.Contains(firstLine, ",") {
		reasons = append(reasons, "single column detected with embedded commas")
	}

	quoteCount := strings.Count(firstLine, `"`)
	if quoteCount%2 != 0 {
		reasons = append(reasons, "unbalanced quotes")
	}

	// known-bad SECOP export: expected header words present but the line
	// tokenizes to almost nothing
	if strings.Contains(firstLine, "Entidad") && strings.Contains(firstLine, "Objeto") &&
		strings.Contains(firstLine, "Cuantía") && quoteCount > 0 {
		if len(tokenizeLine(firstLine)) < 5 {
			reasons = append(reasons, "known SECOP II export corruption")
		}
	}

	return len(reasons) > 0, reasons
}

// CorrectCSV normalizes the text and, when a corruption signature is present,
// repairs every physical line. It returns the (possibly rewritten) content
// together with human-readable notes about what was done. Content without any
// trigger is returned byte-identical.
func CorrectCSV(content string) (string, []string, error) {
	var notes []string

	if strings.HasPrefix(content, "\uFEFF") {
		content = strings.TrimPrefix(content, "\uFEFF")
		notes = append(notes, "byte-order-mark removed")
	}
	if cleaned := curlyQuoteReplacer.Replace(content); cleaned != content {
		content = cleaned
		notes = append(notes, "typographic quotes replaced")
	}

	lines := splitNonEmptyLines(content)
	if len(lines) == 0 {
		return content, notes, &MalformedFileError{Columns: 0}
	}

	needed, reasons := NeedsCorrection(lines[0])
	if !needed {
		if err := validateHeaderLine(lines[0], &notes); err != nil {
			return content, notes, err
		}
		return content, notes, nil
	}
	notes = append(notes, reasons...)

	lines[0] = correctLine(lines[0], true)
	for i := 1; i < len(lines); i++ {
		lines[i] = correctLine(lines[i], false)
	}
	corrected := strings.Join(lines, "\n")

	if err := validateHeaderLine(lines[0], &notes); err != nil {
		return corrected, notes, err
	}
	return corrected, notes, nil
}

// correctLine repairs one physical line. Header lines additionally get their
// fields mapped through the alias table and re-quoted.
func correctLine(line string, isHeader bool) string {
	corrected := strings.TrimSpace(line)

	// balance a dangling quote before anything else
	if strings.Count(corrected, `"`)%2 != 0 {
		corrected += `"`
	}

	// strip an outer quote pair when the whole line was wrapped
	if strings.HasPrefix(corrected, `"`) && strings.HasSuffix(corrected, `"`) && len(corrected) >= 2 {
		inner := corrected[1 : len(corrected)-1]
		hasEscapedQuotes := strings.Contains(inner, `""`)
		if !hasEscapedQuotes || len(strings.Split(inner, ",")) > 10 {
			corrected = inner
		}
	}

	corrected = strings.ReplaceAll(corrected, `""`, `"`)

	if isHeader {
		corrected = normalizeHeaderLine(corrected)
	}
	return corrected
}

// normalizeHeaderLine tokenizes the header respecting quotes, maps each token
// through the alias table and rejoins, quoting tokens that need it.
func normalizeHeaderLine(line string) string {
	if strings.TrimSpace(line) == "" {
		return line
	}

	fields := tokenizeLine(line)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		canonical := CanonicalHeader(field)
		if strings.ContainsAny(canonical, " .(") {
			canonical = `"` + canonical + `"`
		}
		out = append(out, canonical)
	}
	return strings.Join(out, ",")
}

// tokenizeLine splits a delimited line on commas while honouring quote pairs.
// Surrounding quotes are stripped from each token.
func tokenizeLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		fields = append(fields, strings.TrimSpace(current.String()))
	}
	return fields
}

// validateHeaderLine re-tokenizes the header after correction. Fewer than
// minColumns is unrecoverable; more than maxColumns is flagged but the parser
// gets to make the final call.
func validateHeaderLine(header string, notes *[]string) error {
	fields := tokenizeLine(header)
	if len(fields) < minColumns {
		return &MalformedFileError{Columns: len(fields), Headers: fields}
	}
	if len(fields) > maxColumns {
		*notes = append(*notes, fmt.Sprintf("%d columns detected, delimiters may still be broken", len(fields)))
	}
	return nil
}

func splitNonEmptyLines(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
