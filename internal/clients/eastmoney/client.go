// Package eastmoney provides a client for the eastmoney fund data pages
package eastmoney

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/interfaces"
	"github.com/bobmcallan/fundback/internal/models"
)

const (
	DefaultBaseURL    = "http://fund.eastmoney.com/f10/F10DataApi.aspx"
	DefaultFeeBaseURL = "http://fundf10.eastmoney.com"
	DefaultTimeout    = 30 * time.Second
	DefaultRateLimit  = 5 // requests per second

	defaultPerPage = 49
	maxPages       = 500
)

// The history endpoint rejects requests without a browser user agent.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Client implements the EastmoneyClient interface. The NAV history endpoint
// returns a JavaScript assignment wrapping an HTML table, one page per
// request; the client walks the pages and flattens them into records.
type Client struct {
	baseURL    string
	feeBaseURL string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the NAV history endpoint URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithFeeBaseURL sets the fee page base URL
func WithFeeBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.feeBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new eastmoney client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		feeBaseURL: DefaultFeeBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an upstream error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eastmoney error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

var (
	apidataPattern = regexp.MustCompile(`content:"(.*?)",records:(\d+),pages:(\d+),curpage:(\d+)`)
	rowPattern     = regexp.MustCompile(`(?s)<tr[^>]*>(.*?)</tr>`)
	cellPattern    = regexp.MustCompile(`(?s)<td[^>]*>(.*?)</td>`)
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
)

// navPage is one decoded page of the history table.
type navPage struct {
	records []models.NAVRecord
	pages   int
	total   int
}

// get performs a rate-limited GET with browser headers and returns the body.
func (c *Client) get(ctx context.Context, reqURL, referer string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Endpoint:   reqURL,
		}
	}
	return body, nil
}

// GetNAVHistory retrieves the NAV history for a fund, sorted by date
// ascending. Without a date range the full published history is walked.
func (c *Client) GetNAVHistory(ctx context.Context, code string, opts ...interfaces.NAVOption) ([]models.NAVRecord, error) {
	if !models.FundCodePattern.MatchString(code) {
		return nil, fmt.Errorf("invalid fund code %q", code)
	}

	params := &interfaces.NAVParams{PerPage: defaultPerPage}
	for _, opt := range opts {
		opt(params)
	}
	if params.PerPage <= 0 {
		params.PerPage = defaultPerPage
	}

	referer := fmt.Sprintf("http://fundf10.eastmoney.com/jjjz_%s.html", code)

	var records []models.NAVRecord
	for page := 1; page <= maxPages; page++ {
		result, err := c.fetchNAVPage(ctx, code, page, params, referer)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch NAV page %d for %s: %w", page, code, err)
		}
		records = append(records, result.records...)

		if page == 1 {
			c.logger.Debug().
				Str("code", code).
				Int("records", result.total).
				Int("pages", result.pages).
				Msg("NAV history download started")
		}
		if page >= result.pages || len(result.records) == 0 {
			break
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})

	c.logger.Info().
		Str("code", code).
		Int("records", len(records)).
		Msg("NAV history downloaded")

	return records, nil
}

func (c *Client) fetchNAVPage(ctx context.Context, code string, page int, params *interfaces.NAVParams, referer string) (*navPage, error) {
	query := url.Values{}
	query.Set("type", "lsjz")
	query.Set("code", code)
	query.Set("page", strconv.Itoa(page))
	query.Set("per", strconv.Itoa(params.PerPage))
	if !params.From.IsZero() {
		query.Set("sdate", params.From.Format("2006-01-02"))
	}
	if !params.To.IsZero() {
		query.Set("edate", params.To.Format("2006-01-02"))
	}
	query.Set("rt", strconv.FormatInt(time.Now().UnixMilli(), 10))

	body, err := c.get(ctx, c.baseURL+"?"+query.Encode(), referer)
	if err != nil {
		return nil, err
	}

	m := apidataPattern.FindStringSubmatch(string(body))
	if m == nil {
		return nil, fmt.Errorf("unexpected response shape (no apidata payload)")
	}

	content := html.UnescapeString(m[1])
	total, _ := strconv.Atoi(m[2])
	pages, _ := strconv.Atoi(m[3])

	result := &navPage{pages: pages, total: total}
	for _, row := range rowPattern.FindAllStringSubmatch(content, -1) {
		record, ok := parseNAVRow(row[1])
		if !ok {
			continue
		}
		result.records = append(result.records, record)
	}
	return result, nil
}

// parseNAVRow decodes one <tr> of the history table. Columns are date, unit
// NAV, cumulative NAV, daily growth, purchase status, redeem status,
// dividend. Header rows and rows without a parsable date are rejected.
func parseNAVRow(row string) (models.NAVRecord, bool) {
	cells := cellPattern.FindAllStringSubmatch(row, -1)
	if len(cells) < 4 {
		return models.NAVRecord{}, false
	}

	text := make([]string, len(cells))
	for i, cell := range cells {
		text[i] = strings.TrimSpace(tagPattern.ReplaceAllString(cell[1], ""))
	}

	date, err := time.Parse("2006-01-02", text[0])
	if err != nil {
		return models.NAVRecord{}, false
	}

	record := models.NAVRecord{
		Date:           date,
		UnitNAV:        parseCellFloat(text[1]),
		CumulativeNAV:  parseCellFloat(text[2]),
		DailyGrowthPct: parseCellFloat(strings.TrimSuffix(text[3], "%")),
	}
	if len(text) > 4 {
		record.PurchaseStatus = text[4]
	}
	if len(text) > 5 {
		record.RedeemStatus = text[5]
	}
	if len(text) > 6 {
		record.DividendRaw = text[6]
	}
	return record, true
}

// parseCellFloat parses a numeric table cell. Placeholder cells like "---"
// or empty strings come back as 0.
func parseCellFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "-") == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
