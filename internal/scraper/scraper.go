package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Extraction status codes reported per link.
const (
	StatusSuccess    = "success"
	StatusMissingURL = "missing_url"
	StatusInvalidURL = "invalid_url"
	StatusNotFound   = "not_found"
	StatusParseError = "parse_error"
	StatusTimeout    = "timeout"
	StatusError      = "error"
)

const portalHost = "licitaciones.info"

const (
	defaultBatchSize = 5
	defaultPause     = time.Second
	requestTimeout   = 15 * time.Second
)

// Request identifies one process to scrape. Numero is the fallback process
// code when the link itself does not carry one.
type Request struct {
	Enlace string `json:"enlace"`
	Numero string `json:"numero,omitempty"`
}

// Result is the outcome for a single link. Normalized is the closing
// timestamp in "2006-01-02 15:04:05" UTC, empty unless Status is success.
type Result struct {
	Enlace        string `json:"enlace"`
	CodigoProceso string `json:"codigo_proceso,omitempty"`
	Raw           string `json:"raw,omitempty"`
	Normalized    string `json:"normalized,omitempty"`
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
}

// Summary aggregates a batch run.
type Summary struct {
	Total    int            `json:"total"`
	Success  int            `json:"success"`
	Failed   int            `json:"failed"`
	ByStatus map[string]int `json:"by_status"`
}

// Extractor scrapes closing deadlines from the procurement portal. Batches
// run concurrently with a fixed pause between them to stay polite.
type Extractor struct {
	client    *http.Client
	baseURL   string
	host      string
	batchSize int
	pause     time.Duration
}

func NewExtractor(baseURL string) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: requestTimeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		host:      portalHost,
		batchSize: defaultBatchSize,
		pause:     defaultPause,
	}
}

// contratoPattern locates the JSON blob the detail page embeds in an HTML
// attribute, with its quotes entity-escaped.
var contratoPattern = regexp.MustCompile(`contrato="(\{&quot;.+?\})"`)

// spanishMonths maps the portal's abbreviated month names.
var spanishMonths = map[string]time.Month{
	"ene": time.January, "feb": time.February, "mar": time.March,
	"abr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "ago": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dic": time.December,
}

var siteTimestampPattern = regexp.MustCompile(`^(\d{1,2})/([A-Za-z]{3})/(\d{4})\s*-\s*(\d{1,2}):(\d{2})\s*([ap]m)$`)

// ExtractAll scrapes every request, preserving input order in the results.
// The context cancels remaining batches.
func (e *Extractor) ExtractAll(ctx context.Context, requests []Request) ([]Result, Summary) {
	results := make([]Result, len(requests))

	for start := 0; start < len(requests); start += e.batchSize {
		if ctx.Err() != nil {
			for i := start; i < len(requests); i++ {
				results[i] = Result{Enlace: requests[i].Enlace, Status: StatusError, Detail: ctx.Err().Error()}
			}
			break
		}

		end := start + e.batchSize
		if end > len(requests) {
			end = len(requests)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = e.ExtractDeadline(ctx, requests[i])
			}(i)
		}
		wg.Wait()

		if end < len(requests) {
			select {
			case <-ctx.Done():
			case <-time.After(e.pause):
			}
		}
	}

	return results, summarize(results)
}

// ExtractDeadline scrapes the closing timestamp for one process link. The
// detail page embeds the contract as a JSON blob; when the link instead
// carries a process code, the portal's detail endpoint is queried directly.
func (e *Extractor) ExtractDeadline(ctx context.Context, req Request) Result {
	result := Result{Enlace: req.Enlace}

	if strings.TrimSpace(req.Enlace) == "" {
		result.Status = StatusMissingURL
		return result
	}

	parsed, err := url.Parse(req.Enlace)
	if err != nil || !strings.Contains(parsed.Hostname(), e.host) {
		result.Status = StatusInvalidURL
		return result
	}

	if parsed.Query().Get("random") != "" {
		return e.extractFromPage(ctx, req)
	}
	return e.extractFromAPI(ctx, req, parsed)
}

// extractFromPage fetches the detail page and pulls the embedded contract
// blob out of the markup.
func (e *Extractor) extractFromPage(ctx context.Context, req Request) Result {
	result := Result{Enlace: req.Enlace}

	body, status, err := e.get(ctx, req.Enlace)
	if err != nil {
		result.Status = classifyTransportError(err)
		result.Detail = err.Error()
		return result
	}
	if status == http.StatusNotFound {
		result.Status = StatusNotFound
		return result
	}
	if status != http.StatusOK {
		result.Status = StatusError
		result.Detail = fmt.Sprintf("unexpected status %d", status)
		return result
	}

	match := contratoPattern.FindSubmatch(body)
	if match == nil {
		result.Status = StatusParseError
		result.Detail = "contract blob not found in page"
		return result
	}

	var contract struct {
		CodigoProceso    string `json:"CodigoProceso"`
		FechaVencimiento string `json:"FechaVencimiento"`
		FechaPublicacion string `json:"FechaPublicacion"`
	}
	if err := json.Unmarshal([]byte(html.UnescapeString(string(match[1]))), &contract); err != nil {
		result.Status = StatusParseError
		result.Detail = err.Error()
		return result
	}

	result.CodigoProceso = contract.CodigoProceso
	return finishResult(result, contract.FechaVencimiento)
}

// extractFromAPI resolves a process code and asks the portal's detail
// endpoint for the schedule.
func (e *Extractor) extractFromAPI(ctx context.Context, req Request, link *url.URL) Result {
	result := Result{Enlace: req.Enlace}

	codigo := processCode(link, req.Numero)
	if codigo == "" {
		result.Status = StatusInvalidURL
		result.Detail = "no process code in link or row"
		return result
	}
	result.CodigoProceso = codigo

	payload, err := json.Marshal(map[string]string{"codigo_proceso": codigo})
	if err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
		return result
	}

	body, status, err := e.post(ctx, e.baseURL+"/obtener-detalle-contrato", payload)
	if err != nil {
		result.Status = classifyTransportError(err)
		result.Detail = err.Error()
		return result
	}
	if status == http.StatusNotFound {
		result.Status = StatusNotFound
		return result
	}
	if status != http.StatusOK {
		result.Status = StatusError
		result.Detail = fmt.Sprintf("unexpected status %d", status)
		return result
	}

	raw, err := scheduleDeadline(body)
	if err != nil {
		result.Status = StatusParseError
		result.Detail = err.Error()
		return result
	}
	return finishResult(result, raw)
}

// finishResult normalizes the scraped timestamp and shifts it to UTC.
func finishResult(result Result, raw string) Result {
	result.Raw = raw

	normalized, err := NormalizeSiteTimestamp(raw)
	if err != nil {
		result.Status = StatusParseError
		result.Detail = err.Error()
		return result
	}

	result.Normalized = ToSinkUTC(normalized)
	result.Status = StatusSuccess
	return result
}

type detalleEntry struct {
	Nombre         string         `json:"nombre"`
	Valor          string         `json:"valor"`
	ListSinDivisor []detalleEntry `json:"list_sin_divisor"`
}

type detalleSection struct {
	Nombre    string         `json:"nombre"`
	Childrens []detalleEntry `json:"childrens"`
}

// scheduleDeadline digs the offer-submission date out of the detail
// endpoint's schedule section.
func scheduleDeadline(body []byte) (string, error) {
	var response struct {
		Detalle []detalleSection `json:"detalle"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("decode detail response: %w", err)
	}

	for _, section := range response.Detalle {
		if !strings.EqualFold(strings.TrimSpace(section.Nombre), "Cronograma") {
			continue
		}
		if raw := findOfferDeadline(section.Childrens); raw != "" {
			return raw, nil
		}
	}
	return "", errors.New("schedule has no offer-submission entry")
}

func findOfferDeadline(entries []detalleEntry) string {
	for _, entry := range entries {
		if isOfferDeadline(entry.Nombre) && strings.TrimSpace(entry.Valor) != "" {
			return strings.TrimSpace(entry.Valor)
		}
		if raw := findOfferDeadline(entry.ListSinDivisor); raw != "" {
			return raw
		}
	}
	return ""
}

func isOfferDeadline(nombre string) bool {
	lowered := strings.ToLower(nombre)
	return strings.Contains(lowered, "presentación de ofertas") ||
		strings.Contains(lowered, "presentacion de ofertas")
}

// processCode extracts the process code from the link path, falling back to
// the row's own number.
func processCode(link *url.URL, numero string) string {
	if code := link.Query().Get("codigo_proceso"); code != "" {
		return code
	}
	segments := strings.Split(strings.Trim(link.Path, "/"), "/")
	if len(segments) > 0 {
		if last := segments[len(segments)-1]; last != "" && strings.ContainsAny(last, "0123456789") {
			return last
		}
	}
	return strings.TrimSpace(numero)
}

// NormalizeSiteTimestamp converts the portal's display format, e.g.
// "20/Nov/2025 - 09:00 am", to "2006-01-02 15:04:05".
func NormalizeSiteTimestamp(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)

	match := siteTimestampPattern.FindStringSubmatch(trimmed)
	if match == nil {
		return "", fmt.Errorf("unrecognized timestamp %q", raw)
	}

	month, ok := spanishMonths[strings.ToLower(match[2])]
	if !ok {
		return "", fmt.Errorf("unknown month %q", match[2])
	}

	day := atoi(match[1])
	year := atoi(match[3])
	hour := atoi(match[4])
	minute := atoi(match[5])

	if strings.EqualFold(match[6], "pm") && hour != 12 {
		hour += 12
	}
	if strings.EqualFold(match[6], "am") && hour == 12 {
		hour = 0
	}

	parsed := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	return parsed.Format("2006-01-02 15:04:05"), nil
}

// ToSinkUTC shifts a Bogota-local timestamp to UTC. Colombia has no daylight
// saving, the offset is a constant five hours.
func ToSinkUTC(timestamp string) string {
	parsed, err := time.Parse("2006-01-02 15:04:05", timestamp)
	if err != nil {
		return timestamp
	}
	return parsed.Add(5 * time.Hour).Format("2006-01-02 15:04:05")
}

func (e *Extractor) get(ctx context.Context, target string) ([]byte, int, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	return e.do(request)
}

func (e *Extractor) post(ctx context.Context, target string, payload []byte) ([]byte, int, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	request.Header.Set("Content-Type", "application/json")
	return e.do(request)
}

func (e *Extractor) do(request *http.Request) ([]byte, int, error) {
	response, err := e.client.Do(request)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return nil, response.StatusCode, err
	}
	return body, response.StatusCode, nil
}

func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}
	return StatusError
}

func summarize(results []Result) Summary {
	summary := Summary{Total: len(results), ByStatus: make(map[string]int)}
	for _, result := range results {
		summary.ByStatus[result.Status]++
		if result.Status == StatusSuccess {
			summary.Success++
		} else {
			summary.Failed++
		}
	}
	return summary
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
