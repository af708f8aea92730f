package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragcore/internal/config"
	apperrors "ragcore/internal/errors"
)

const searchPayload = `{
  "results": [
    {"title": "Reciprocal rank fusion", "url": "%s/page", "content": "RRF combines ranked lists."},
    {"title": "Hybrid search", "url": "https://example.com/hybrid", "content": "Vector plus keyword."},
    {"title": "Evaluation", "url": "https://example.com/eval", "content": "Judging RAG output."},
    {"title": "Fourth hit", "url": "https://example.com/extra", "content": "Should not be listed."}
  ]
}`

const pageHTML = `<!doctype html>
<html><head><title>RRF</title><style>body{color:red}</style></head>
<body>
  <script>var tracking = true;</script>
  <article>
    <h1>Reciprocal Rank Fusion</h1>
    <p>Reciprocal rank fusion merges multiple ranked lists by summing reciprocal ranks.
    It rewards documents that appear near the top of any contributing list and it is
    robust to score scale differences between retrieval systems. This paragraph is long
    enough for content extraction to treat it as the main article body of the page and
    not as boilerplate navigation or footer text that should be removed entirely.</p>
  </article>
</body></html>`

func testWebConfig(endpoints ...string) config.Web {
	return config.Web{
		SearchEndpoints: endpoints,
		EndpointTimeout: 2 * time.Second,
		FetchTimeout:    2 * time.Second,
		UserAgent:       "ragcore-test/1.0",
	}
}

func newWebServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.NotEmpty(t, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fmt.Sprintf(searchPayload, srv.URL)))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(pageHTML))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSearchReturnsTopHitsAndFirstPage(t *testing.T) {
	srv := newWebServer(t)
	cfg := testWebConfig(srv.URL + "/search")
	fetcher := NewFetcher(cfg, zap.NewNop())
	tool := NewWebSearch(cfg, fetcher, 3000, zap.NewNop())

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), `{"query":"reciprocal rank fusion"}`)

	require.NoError(t, err)
	assert.Contains(t, obs, "1. Reciprocal rank fusion")
	assert.Contains(t, obs, "3. Evaluation")
	assert.NotContains(t, obs, "Fourth hit")
	assert.Contains(t, obs, "Content of first result:")
	assert.Contains(t, obs, "merges multiple ranked lists")
	assert.NotContains(t, obs, "var tracking")
}

func TestWebSearchFailsOverBetweenEndpoints(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(dead.Close)
	srv := newWebServer(t)

	cfg := testWebConfig(dead.URL+"/search", srv.URL+"/search")
	fetcher := NewFetcher(cfg, zap.NewNop())
	tool := NewWebSearch(cfg, fetcher, 3000, zap.NewNop())

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), "rrf")

	require.NoError(t, err)
	assert.Contains(t, obs, "1. Reciprocal rank fusion")
}

func TestWebSearchAllEndpointsDown(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(dead.Close)

	cfg := testWebConfig(dead.URL + "/search")
	tool := NewWebSearch(cfg, NewFetcher(cfg, zap.NewNop()), 3000, zap.NewNop())

	_, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), "rrf")

	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestWebSearchUnconfigured(t *testing.T) {
	cfg := testWebConfig()
	tool := NewWebSearch(cfg, NewFetcher(cfg, zap.NewNop()), 3000, zap.NewNop())

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), "anything")

	require.NoError(t, err)
	assert.Contains(t, obs, "not configured")
}

func TestFetchWebpageCleansMarkup(t *testing.T) {
	srv := newWebServer(t)
	cfg := testWebConfig()
	tool := NewFetchWebpage(NewFetcher(cfg, zap.NewNop()), cfg.FetchTimeout, 3000)

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), `{"url":"`+srv.URL+`/page"}`)

	require.NoError(t, err)
	assert.Contains(t, obs, "Reciprocal Rank Fusion")
	assert.NotContains(t, obs, "<p>")
	assert.NotContains(t, obs, "var tracking")
	assert.NotContains(t, obs, "color:red")
}

func TestFetchWebpageClipsBody(t *testing.T) {
	srv := newWebServer(t)
	cfg := testWebConfig()
	tool := NewFetchWebpage(NewFetcher(cfg, zap.NewNop()), cfg.FetchTimeout, 80)

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), srv.URL+"/page")

	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(obs)), 83)
}

func TestFetchWebpageRejectsBadURL(t *testing.T) {
	cfg := testWebConfig()
	tool := NewFetchWebpage(NewFetcher(cfg, zap.NewNop()), cfg.FetchTimeout, 3000)

	for _, raw := range []string{"not-a-url", "ftp://example.com/x", "/relative/path"} {
		_, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), raw)
		require.Error(t, err, raw)
		assert.True(t, apperrors.IsValidation(err), raw)
	}
}

func TestCurrentDatetimeUsesConfiguredZone(t *testing.T) {
	tool := NewCurrentDatetime("UTC")
	tool.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), "{}")

	require.NoError(t, err)
	assert.Contains(t, obs, "2025-03-14 09:26:53")
	assert.Contains(t, obs, "Friday")
	assert.Contains(t, obs, "UTC")
}

func TestCurrentDatetimeBadZoneFallsBackToUTC(t *testing.T) {
	tool := NewCurrentDatetime("Not/AZone")
	tool.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	}

	obs, err := tool.Execute(context.Background(), NewToolContext("kb-1", ""), "")

	require.NoError(t, err)
	assert.Contains(t, obs, "UTC")
}
