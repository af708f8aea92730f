package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"ragcore/internal/config"
	apperrors "ragcore/internal/errors"
)

// maxFetchBody bounds how much of a page body is read before cleaning.
const maxFetchBody = 2 << 20

type webSearchInput struct {
	Query string `json:"query" jsonschema:"required,description=Web search query"`
}

type fetchInput struct {
	URL string `json:"url" jsonschema:"required,description=Absolute http(s) URL to fetch"`
}

// searchResponse is the JSON shape the metasearch endpoints return.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Fetcher downloads a page and reduces it to readable text. Extraction goes
// through readability first; pages it cannot parse fall back to stripping
// markup with goquery.
type Fetcher struct {
	cfg    config.Web
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a page fetcher.
func NewFetcher(cfg config.Web, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		logger: logger,
	}
}

// Fetch returns the cleaned text of one page, clipped to maxChars runes.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", apperrors.Validation("WEB_URL", fmt.Sprintf("not an absolute http(s) url: %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", apperrors.Transient("WEB_FETCH", "building fetch request", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", apperrors.Transient("WEB_FETCH", fmt.Sprintf("fetching %s", parsed.Host), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Transient("WEB_FETCH", fmt.Sprintf("fetching %s: status %d", parsed.Host, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return "", apperrors.Transient("WEB_FETCH", "reading page body", err)
	}

	text := f.extract(body, parsed)
	if text == "" {
		return "", apperrors.Degraded("WEB_EMPTY", fmt.Sprintf("no readable text at %s", parsed.Host), nil)
	}
	return truncate(text, maxChars), nil
}

// extract runs readability, then the goquery fallback.
func (f *Fetcher) extract(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		if text := collapseSpace(article.TextContent); text != "" {
			return text
		}
	} else {
		f.logger.Debug("readability extraction failed, using fallback",
			zap.String("host", pageURL.Host),
			zap.Error(err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, iframe").Remove()
	return collapseSpace(doc.Find("body").Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ============================================================================
// WEB_SEARCH
// ============================================================================

// WebSearch queries the configured metasearch endpoints in order until one
// responds, formats the top hits and inlines the first result's page text.
type WebSearch struct {
	cfg      config.Web
	client   *http.Client
	fetcher  *Fetcher
	maxChars int
	logger   *zap.Logger
}

// NewWebSearch creates the web_search tool. maxChars bounds the inlined
// first-page text.
func NewWebSearch(cfg config.Web, fetcher *Fetcher, maxChars int, logger *zap.Logger) *WebSearch {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxChars <= 0 {
		maxChars = 3000
	}
	return &WebSearch{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.EndpointTimeout},
		fetcher:  fetcher,
		maxChars: maxChars,
		logger:   logger,
	}
}

func (t *WebSearch) Name() string { return "web_search" }

func (t *WebSearch) Description() string {
	return "Search the web for current information not in the knowledge base. Returns the top hits and the first page's content."
}

func (t *WebSearch) InputSchema() *jsonschema.Schema {
	return reflectSchema(webSearchInput{})
}

// CallTimeout covers trying every endpoint plus fetching the first hit.
func (t *WebSearch) CallTimeout() time.Duration {
	n := len(t.cfg.SearchEndpoints)
	if n == 0 {
		n = 1
	}
	return time.Duration(n)*t.cfg.EndpointTimeout + t.cfg.FetchTimeout
}

func (t *WebSearch) Execute(ctx context.Context, tc *ToolContext, input string) (string, error) {
	query, err := decodeString(input, "query")
	if err != nil {
		return "", err
	}
	if len(t.cfg.SearchEndpoints) == 0 {
		return "Web search is not configured on this deployment.", nil
	}

	results, err := t.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results.Results) == 0 {
		return fmt.Sprintf("No web results for %q.", query), nil
	}

	hits := results.Results
	if len(hits) > 3 {
		hits = hits[:3]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Web results for %q:\n", query)
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, strings.TrimSpace(hit.Title), hit.URL)
		if snippet := collapseSpace(hit.Content); snippet != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(snippet, 300))
		}
	}

	if page, err := t.fetcher.Fetch(ctx, hits[0].URL, t.maxChars); err == nil {
		fmt.Fprintf(&b, "\nContent of first result:\n%s", page)
	} else {
		t.logger.Debug("first-result fetch skipped",
			zap.String("url", hits[0].URL),
			zap.Error(err))
	}
	return b.String(), nil
}

// search tries each endpoint with its own timeout until one answers.
func (t *WebSearch) search(ctx context.Context, query string) (*searchResponse, error) {
	var lastErr error
	for _, endpoint := range t.cfg.SearchEndpoints {
		res, err := t.searchOne(ctx, endpoint, query)
		if err == nil {
			return res, nil
		}
		lastErr = err
		t.logger.Warn("web search endpoint failed, trying next",
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}
	return nil, apperrors.Transient("WEB_SEARCH", "all web search endpoints failed", lastErr)
}

func (t *WebSearch) searchOne(ctx context.Context, endpoint, query string) (*searchResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, t.cfg.EndpointTimeout)
	defer cancel()

	u := fmt.Sprintf("%s?q=%s&format=json", strings.TrimRight(endpoint, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if t.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBody)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return &out, nil
}

// ============================================================================
// FETCH_WEBPAGE
// ============================================================================

// FetchWebpage retrieves one page's readable text.
type FetchWebpage struct {
	fetcher  *Fetcher
	timeout  time.Duration
	maxChars int
}

// NewFetchWebpage creates the fetch_webpage tool.
func NewFetchWebpage(fetcher *Fetcher, timeout time.Duration, maxChars int) *FetchWebpage {
	if maxChars <= 0 {
		maxChars = 3000
	}
	return &FetchWebpage{fetcher: fetcher, timeout: timeout, maxChars: maxChars}
}

func (t *FetchWebpage) Name() string { return "fetch_webpage" }

func (t *FetchWebpage) Description() string {
	return "Fetch a web page by URL and return its readable text with markup stripped."
}

func (t *FetchWebpage) InputSchema() *jsonschema.Schema {
	return reflectSchema(fetchInput{})
}

func (t *FetchWebpage) CallTimeout() time.Duration { return t.timeout }

func (t *FetchWebpage) Execute(ctx context.Context, _ *ToolContext, input string) (string, error) {
	raw, err := decodeString(input, "url")
	if err != nil {
		return "", err
	}
	return t.fetcher.Fetch(ctx, raw, t.maxChars)
}
