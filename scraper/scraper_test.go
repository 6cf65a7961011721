package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/sanctions-screen/config"
	"github.com/aluiziolira/sanctions-screen/models"
	"github.com/aluiziolira/sanctions-screen/parser"
	"github.com/aluiziolira/sanctions-screen/pipeline"
)

const searchEndpoint = "https://www.opensanctions.org/search/"

const noResultsPage = `<html><body><div class="alert">No matching entities were found.</div></body></html>`

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "ok", err: nil, statusCode: http.StatusOK, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "http_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestBuildSearchURL(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "Jane Doe", want: "https://www.opensanctions.org/search/?q=Jane+Doe"},
		{name: "Müller & Söhne", want: "https://www.opensanctions.org/search/?q=M%C3%BCller+%26+S%C3%B6hne"},
		{name: "a/b?c", want: "https://www.opensanctions.org/search/?q=a%2Fb%3Fc"},
	}

	for _, tt := range tests {
		if got := BuildSearchURL(config.DefaultConfig().SearchURL, tt.name); got != tt.want {
			t.Fatalf("BuildSearchURL(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestQueryTruncatesLinks(t *testing.T) {
	s, _ := newTestScraper(t, map[string]httpmock.Responder{
		"Jane Doe": htmlResponder(buildResultPage(5)),
	})

	result := s.Query("Jane Doe")
	if result.Status != models.StatusMatch {
		t.Fatalf("status=%q, want match (error=%q)", result.Status, result.Error)
	}
	if result.MatchCount != 5 {
		t.Fatalf("match count=%d, want 5", result.MatchCount)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("entities=%d, want 2", len(result.Entities))
	}
	for i, link := range result.Entities {
		wantURL := fmt.Sprintf("https://www.opensanctions.org/entities/NK-%d/", i+1)
		if link.URL != wantURL || link.Label != fmt.Sprintf("Entity %d", i+1) {
			t.Fatalf("entity %d = %+v, want %s", i, link, wantURL)
		}
	}
	if result.SearchURL != searchEndpoint+"?q=Jane+Doe" {
		t.Fatalf("search url=%q", result.SearchURL)
	}
	if result.Error != "" {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestQueryNoMatch(t *testing.T) {
	s, _ := newTestScraper(t, map[string]httpmock.Responder{
		"John Roe": htmlResponder(noResultsPage),
	})

	result := s.Query("John Roe")
	if result.Status != models.StatusNoMatch {
		t.Fatalf("status=%q, want no_match", result.Status)
	}
	if result.MatchCount != 0 || len(result.Entities) != 0 || result.Error != "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestQueryUnknownLayout(t *testing.T) {
	s, _ := newTestScraper(t, map[string]httpmock.Responder{
		"Max Mustermann": htmlResponder(`<html><body><p>Service maintenance</p></body></html>`),
	})

	result := s.Query("Max Mustermann")
	if result.Status != models.StatusUnknown {
		t.Fatalf("status=%q, want unknown", result.Status)
	}
	if result.MatchCount != 0 || result.Error != "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestQueryTimeout(t *testing.T) {
	s, _ := newTestScraper(t, map[string]httpmock.Responder{
		"Jane Doe": httpmock.NewErrorResponder(context.DeadlineExceeded),
	})

	result := s.Query("Jane Doe")
	if result.Status != models.StatusError {
		t.Fatalf("status=%q, want error", result.Status)
	}
	if result.Error == "" {
		t.Fatalf("error message should not be empty")
	}
	if result.MatchCount != 0 || len(result.Entities) != 0 {
		t.Fatalf("error result carries matches: %+v", result)
	}
	if got := s.errorsByType["timeout"]; got != 1 {
		t.Fatalf("timeout errors=%d, want 1", got)
	}
}

func TestQueryHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusInternalServerError, expected: "http_status"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			s, _ := newTestScraper(t, map[string]httpmock.Responder{
				"Jane Doe": httpmock.NewStringResponder(tt.status, ""),
			})

			result := s.Query("Jane Doe")
			if result.Status != models.StatusError || result.Error == "" {
				t.Fatalf("result=%+v, want error status with message", result)
			}
			if got := s.errorsByType[tt.expected]; got == 0 {
				t.Fatalf("expected %q classification for status %d, got %v", tt.expected, tt.status, s.errorsByType)
			}
		})
	}
}

func TestRunStreamsResultsAndSkipsFinalDelay(t *testing.T) {
	s, transport := newTestScraper(t, map[string]httpmock.Responder{
		"Jane Doe": htmlResponder(buildResultPage(1)),
		"John Roe": htmlResponder(noResultsPage),
		"Broken":   httpmock.NewStringResponder(http.StatusBadGateway, ""),
	})
	s.cfg.Delay = 250 * time.Millisecond

	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(writer)

	names := []string{"Jane Doe", "John Roe", "Broken", "Jane Doe"}
	summary, err := s.Run(context.Background(), names, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if len(slept) != len(names)-1 {
		t.Fatalf("sleeps=%d, want %d", len(slept), len(names)-1)
	}
	for _, d := range slept {
		if d != s.cfg.Delay {
			t.Fatalf("slept %v, want %v", d, s.cfg.Delay)
		}
	}

	results := writer.All()
	if len(results) != len(names) {
		t.Fatalf("results=%d, want %d", len(results), len(names))
	}
	wantStatus := []models.Status{models.StatusMatch, models.StatusNoMatch, models.StatusError, models.StatusMatch}
	for i, r := range results {
		if r.QueryName != names[i] || r.Status != wantStatus[i] {
			t.Fatalf("result %d = %s/%s, want %s/%s", i, r.QueryName, r.Status, names[i], wantStatus[i])
		}
	}

	if summary.TotalCount != 4 || summary.RequestCount != 4 || summary.ErrorCount != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.ByStatus[models.StatusMatch] != 2 || summary.Interrupted {
		t.Fatalf("summary = %+v", summary)
	}
	if got := transport.GetTotalCallCount(); got != 4 {
		t.Fatalf("requests=%d, want 4 (duplicate names are queried again)", got)
	}
}

func TestRunCancelledDuringDelay(t *testing.T) {
	s, transport := newTestScraper(t, map[string]httpmock.Responder{
		"Jane Doe": htmlResponder(noResultsPage),
		"John Roe": htmlResponder(noResultsPage),
	})
	s.cfg.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	writer := &collectingWriter{}
	p := pipeline.NewPipeline(writer)

	summary, err := s.Run(ctx, []string{"Jane Doe", "John Roe"}, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !summary.Interrupted {
		t.Fatalf("summary should be marked interrupted")
	}
	if got := writer.Count(); got != 1 {
		t.Fatalf("results=%d, want 1", got)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("requests=%d, want 1", got)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	s, transport := newTestScraper(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	writer := &collectingWriter{}
	summary, err := s.Run(ctx, []string{"Jane Doe"}, pipeline.NewPipeline(writer))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !summary.Interrupted || summary.TotalCount != 0 || writer.Count() != 0 {
		t.Fatalf("summary = %+v, written = %d", summary, writer.Count())
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("requests=%d, want 0", got)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleep error = %v, want context.Canceled", err)
	}
}

func TestNewScraperRequiresExtractor(t *testing.T) {
	if _, err := NewScraper(config.DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error without extractor")
	}
}

func newTestScraper(t *testing.T, pages map[string]httpmock.Responder) (*Scraper, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.MaxLinks = 2
	cfg.Delay = 0
	cfg.Timeout = 5 * time.Second

	extractor, err := parser.NewExtractor(cfg.Extractor, cfg.BaseURL(), cfg.EntityPathPrefix)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	s, err := NewScraper(cfg, extractor)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, searchEndpoint, func(req *http.Request) (*http.Response, error) {
		responder, ok := pages[req.URL.Query().Get("q")]
		if !ok {
			return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
		}
		return responder(req)
	})
	s.WithTransport(transport)
	return s, transport
}

type collectingWriter struct {
	mu      sync.Mutex
	results []*models.SearchResult
}

func (cw *collectingWriter) Write(results []*models.SearchResult) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.results = append(cw.results, results...)
	return nil
}

func (cw *collectingWriter) Close() error {
	return nil
}

func (cw *collectingWriter) Validate() error {
	return nil
}

func (cw *collectingWriter) Count() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return len(cw.results)
}

func (cw *collectingWriter) All() []*models.SearchResult {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]*models.SearchResult, len(cw.results))
	copy(out, cw.results)
	return out
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildResultPage(n int) string {
	var builder strings.Builder
	builder.WriteString("<html><body><nav><a href=\"/datasets/\">Datasets</a></nav><ul class=\"results\">")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&builder, "<li><a href=\"/entities/NK-%d/\">Entity %d</a></li>", i, i)
	}
	builder.WriteString("</ul><a href=\"https://example.org/entities/X/\">elsewhere</a></body></html>")
	return builder.String()
}
