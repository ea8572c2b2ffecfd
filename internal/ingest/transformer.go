package ingest

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/idna"
)

// Lead is the flattened CRM payload built from one procurement row. Field
// names mirror the sink's crm.lead model.
type Lead struct {
	Name               string  `json:"name"`
	PartnerName        string  `json:"partner_name"`
	ExpectedRevenue    float64 `json:"expected_revenue"`
	Probability        int     `json:"probability"`
	DateDeadline       string  `json:"date_deadline,omitempty"`
	CierreConHora      string  `json:"cierre_con_hora,omitempty"`
	Description        string  `json:"description"`
	Website            string  `json:"website,omitempty"`
	City               string  `json:"city,omitempty"`
	EmailFrom          string  `json:"email_from,omitempty"`
	Phone              string  `json:"phone,omitempty"`
	ActividadEconomica string  `json:"actividad_economica,omitempty"`
	Type               string  `json:"type"`
}

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	phoneStripPattern = regexp.MustCompile(`[^\d+]`)
)

// timestampLayouts are tried in order when a value carries no time part.
var timestampLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
}

// ValidateStructure checks that a header set can produce leads at all.
// Both the current portal export and the legacy layout are accepted.
func ValidateStructure(headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[CanonicalHeader(h)] = true
	}

	if present[ColEntidad] && present[ColObjeto] {
		return nil
	}
	if present[ColLegacyNombreProceso] {
		return nil
	}

	missing := []string{}
	if !present[ColEntidad] {
		missing = append(missing, ColEntidad)
	}
	if !present[ColObjeto] {
		missing = append(missing, ColObjeto)
	}
	return &MissingRequiredFieldError{Missing: missing, Headers: headers}
}

// TransformRow converts one parsed row into a Lead. rowNum is 1-based and
// only used for error reporting. deadlines maps process links to
// previously scraped closing timestamps, which take precedence over any
// date found in the file itself.
func TransformRow(row Row, rowNum int, deadlines map[string]string) (*Lead, error) {
	name, err := buildName(row, rowNum)
	if err != nil {
		return nil, err
	}

	lead := &Lead{
		Name:               name,
		PartnerName:        CleanText(valueOf(row, ColEntidad)),
		ExpectedRevenue:    revenueOf(row),
		Probability:        probabilityOf(valueOf(row, ColEstado)),
		Description:        buildDescription(row),
		Website:            cleanURL(valueOf(row, ColEnlace)),
		City:               cleanCity(valueOf(row, ColUbicacion)),
		EmailFrom:          cleanEmail(valueOf(row, ColLegacyEmail)),
		Phone:              cleanPhone(valueOf(row, ColLegacyTelefono)),
		ActividadEconomica: CleanText(valueOf(row, ColActividadEconomica)),
		Type:               "opportunity",
	}
	if lead.City == "" {
		lead.City = CleanText(valueOf(row, ColLegacyCiudad))
	}

	// date_deadline and the scheduling mirror carry the same normalized value
	if deadline := resolveDeadline(row, deadlines); deadline != "" {
		lead.DateDeadline = deadline
		lead.CierreConHora = deadline
	}

	return lead, nil
}

// buildName derives the opportunity title through a fixed fallback chain.
func buildName(row Row, rowNum int) (string, error) {
	modalidad := CleanText(valueOf(row, ColModalidad))
	numero := CleanText(valueOf(row, ColNumero))

	switch {
	case modalidad != "" && numero != "":
		return fmt.Sprintf("%s - %s", modalidad, numero), nil
	case numero != "":
		return numero, nil
	}

	if legacy := CleanText(valueOf(row, ColLegacyNombreProceso)); legacy != "" {
		return legacy, nil
	}

	if objeto := CleanText(valueOf(row, ColObjeto)); objeto != "" {
		runes := []rune(objeto)
		if len(runes) > 100 {
			return string(runes[:100]), nil
		}
		return objeto, nil
	}

	return "", &RowTransformError{Row: rowNum, Message: "no usable name source in row"}
}

// probabilityOf maps the portal's process status onto a pipeline stage
// probability. Unknown statuses land at 10 rather than zero so they still
// surface in the pipeline.
func probabilityOf(estado string) int {
	lowered := strings.ToLower(strings.TrimSpace(estado))
	switch {
	case lowered == "":
		return 10
	case strings.Contains(lowered, "convocatoria") || strings.Contains(lowered, "publicado"):
		return 25
	case strings.Contains(lowered, "evaluación") || strings.Contains(lowered, "evaluacion"):
		return 50
	case strings.Contains(lowered, "adjudicado") || strings.Contains(lowered, "celebrado"):
		return 100
	case strings.Contains(lowered, "desierto") || strings.Contains(lowered, "cancelado"):
		return 0
	default:
		return 10
	}
}

func revenueOf(row Row) float64 {
	raw := valueOf(row, ColCuantia)
	if raw == "" {
		raw = valueOf(row, ColLegacyValorContrato)
	}
	if raw == "" {
		return 0
	}
	amount, ok := NormalizeNumber(raw)
	if !ok {
		return 0
	}
	return amount
}

// resolveDeadline prefers a scraped closing timestamp keyed by the process
// link, then falls back to publication dates found in the file.
func resolveDeadline(row Row, deadlines map[string]string) string {
	if deadlines != nil {
		if scraped, ok := deadlines[valueOf(row, ColEnlace)]; ok && scraped != "" {
			return scraped
		}
	}
	if published := NormalizeTimestamp(valueOf(row, ColFechaPublicacion)); published != "" {
		return published
	}
	return NormalizeTimestamp(valueOf(row, ColLegacyFechaPub))
}

// NormalizeTimestamp coerces assorted date strings to "2006-01-02 15:04:05".
// It returns "" when nothing parseable remains; callers treat that as null.
func NormalizeTimestamp(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if parsed, err := time.Parse("2006-01-02 15:04:05", trimmed); err == nil {
		return parsed.Format("2006-01-02 15:04:05")
	}

	datePart := trimmed
	timePart := "00:00:00"
	if fields := strings.Fields(trimmed); len(fields) > 1 {
		datePart = fields[0]
		if candidate, err := time.Parse("15:04:05", fields[1]); err == nil {
			timePart = candidate.Format("15:04:05")
		} else if candidate, err := time.Parse("15:04", fields[1]); err == nil {
			timePart = candidate.Format("15:04:05")
		}
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, datePart); err == nil {
			return parsed.Format("2006-01-02") + " " + timePart
		}
	}
	return ""
}

// buildDescription assembles a plain-text summary block. HTML is avoided so
// the sink renders it verbatim.
func buildDescription(row Row) string {
	var sections []string

	if objeto := CleanText(valueOf(row, ColObjeto)); objeto != "" {
		runes := []rune(objeto)
		if len(runes) > 200 {
			objeto = string(runes[:200]) + "..."
		}
		sections = append(sections, objeto)
	}

	var facts []string
	for _, col := range []string{ColModalidad, ColEstado, ColUbicacion} {
		if v := CleanText(valueOf(row, col)); v != "" {
			facts = append(facts, v)
		}
	}
	if len(facts) > 0 {
		sections = append(sections, strings.Join(facts, " | "))
	}

	if actividad := CleanText(valueOf(row, ColActividadEconomica)); actividad != "" {
		runes := []rune(actividad)
		if len(runes) > 100 {
			actividad = string(runes[:100])
		}
		sections = append(sections, actividad)
	}

	if codes := CleanText(valueOf(row, ColCodigosUNSPSC)); codes != "" {
		sections = append(sections, "UNSPSC: "+codes)
	}

	if link := strings.TrimSpace(valueOf(row, ColEnlace)); link != "" {
		sections = append(sections, link)
	}

	return strings.Join(sections, "\n\n")
}

// cleanURL normalizes a process link. Bare hosts gain an https scheme; a
// value whose host fails to parse or validate passes through, keeping its
// scheme when it has one.
func cleanURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	candidate := trimmed
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		candidate = "https://" + candidate
	}

	parsed, err := url.Parse(candidate)
	if err == nil && parsed.Host != "" {
		if _, err := idna.Lookup.ToASCII(parsed.Hostname()); err == nil {
			return candidate
		}
	}
	if strings.HasPrefix(trimmed, "http") {
		return trimmed
	}
	return "https://" + trimmed
}

// cleanCity extracts the municipality from "Departamento : Municipio". Any
// other shape, including extra separators, is taken as the city itself.
func cleanCity(raw string) string {
	trimmed := CleanText(raw)
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, ":")
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1])
	}
	return trimmed
}

// cleanPhone normalizes against the Colombian numbering plan, falling back
// to a digit strip when the value is not a parseable number.
func cleanPhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := phonenumbers.Parse(trimmed, "CO")
	if err == nil && phonenumbers.IsValidNumber(parsed) {
		return phonenumbers.Format(parsed, phonenumbers.E164)
	}

	stripped := phoneStripPattern.ReplaceAllString(trimmed, "")
	if plusIdx := strings.LastIndex(stripped, "+"); plusIdx > 0 {
		stripped = strings.ReplaceAll(stripped, "+", "")
	}
	if stripped == "" || stripped == "+" {
		return ""
	}
	return stripped
}

func cleanEmail(raw string) string {
	return emailPattern.FindString(raw)
}

// CleanText collapses runs of whitespace into single spaces and trims.
func CleanText(value string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
}

// valueOf looks a column up by its canonical name regardless of which
// alias the file used.
func valueOf(row Row, canonical string) string {
	if v, ok := row[canonical]; ok {
		return v
	}
	for key, v := range row {
		if CanonicalHeader(key) == canonical {
			return v
		}
	}
	return ""
}
