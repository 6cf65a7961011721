package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/sanctions-screen/config"
	"github.com/aluiziolira/sanctions-screen/models"
	"github.com/aluiziolira/sanctions-screen/parser"
	"github.com/aluiziolira/sanctions-screen/pipeline"
)

const (
	ctxStart  = "start"
	ctxStatus = "status"
	ctxBody   = "body"
)

// Scraper issues search requests one at a time through a synchronous colly
// collector and classifies each result page.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	extractor parser.Extractor
	Metrics   *Metrics

	// sleep waits between names; swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error

	requestCount int
	errorCount   int
	errorsByType map[string]int
}

// NewScraper builds a scraper configured from cfg.
func NewScraper(cfg *config.Config, extractor parser.Extractor) (*Scraper, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	parsed, err := url.Parse(cfg.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("search url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		extractor:    extractor,
		Metrics:      NewMetrics(),
		sleep:        sleepContext,
		errorsByType: make(map[string]int),
	}
	s.configureHandlers()
	return s, nil
}

// WithTransport replaces the HTTP transport used for searches.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.collector.WithTransport(rt)
}

func (s *Scraper) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		s.Metrics.IncRequest()
		slog.Debug("search request", slog.String("url", r.URL.String()))
	})

	s.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxStatus, r.StatusCode)
		r.Ctx.Put(ctxBody, string(r.Body))
		s.observe(r.Ctx)
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxStatus, r.StatusCode)
		s.observe(r.Ctx)
	})
}

func (s *Scraper) observe(ctx *colly.Context) {
	if start, ok := ctx.GetAny(ctxStart).(time.Time); ok {
		s.Metrics.ObserveDuration(time.Since(start))
	}
}

// BuildSearchURL substitutes the query-escaped name into the template.
func BuildSearchURL(template, name string) string {
	return strings.Replace(template, config.QueryPlaceholder, url.QueryEscape(name), 1)
}

// Query performs one search for name and classifies the outcome. Network
// and HTTP failures are reported in the result, never returned.
func (s *Scraper) Query(name string) *models.SearchResult {
	result := &models.SearchResult{
		QueryName: name,
		SearchURL: BuildSearchURL(s.cfg.SearchURL, name),
		QueriedAt: time.Now(),
	}

	page, err := s.fetch(result.SearchURL)
	if err != nil {
		category := errorTypeLabel(err)
		s.errorCount++
		s.errorsByType[category]++
		s.Metrics.IncError(category)
		slog.Warn("search failed",
			slog.String("name", name),
			slog.String("url", result.SearchURL),
			slog.String("category", category),
			slog.Any("error", err),
		)

		result.Status = models.StatusError
		result.Error = err.Error()
		if result.Error == "" {
			result.Error = category
		}
		s.Metrics.IncResult(result.Status)
		return result
	}

	extraction := s.extractor.Extract(page, s.cfg.MaxLinks)
	result.Status = parser.Classify(page, s.cfg.NoMatchMarkers, extraction.Total)
	switch result.Status {
	case models.StatusMatch:
		result.MatchCount = extraction.Total
		result.Entities = extraction.Links
		s.Metrics.AddLinks(extraction.Total)
	case models.StatusUnknown:
		slog.Warn("search page returned without parseable entity links",
			slog.String("name", name),
			slog.String("url", result.SearchURL),
		)
	}
	s.Metrics.IncResult(result.Status)
	return result
}

func (s *Scraper) fetch(searchURL string) (string, error) {
	s.requestCount++
	ctx := colly.NewContext()
	err := s.collector.Request(http.MethodGet, searchURL, nil, ctx, nil)
	status, _ := ctx.GetAny(ctxStatus).(int)
	if err != nil {
		return "", classifyError(err, status)
	}
	if status != http.StatusOK {
		if classified := classifyError(nil, status); classified != nil {
			return "", classified
		}
		return "", fmt.Errorf("no response received")
	}
	body, _ := ctx.GetAny(ctxBody).(string)
	return body, nil
}

// Run screens names in order, streaming each result into p. It waits the
// configured delay between names, never after the last one. Cancelling ctx
// stops the run before the next request.
func (s *Scraper) Run(ctx context.Context, names []string, p *pipeline.Pipeline) (*models.RunSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	summary := &models.RunSummary{
		StartTime: time.Now(),
		ByStatus:  make(map[models.Status]int),
	}

	for i, name := range names {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		result := s.Query(name)
		if err := p.Process(result); err != nil {
			return nil, fmt.Errorf("write result for %q: %w", name, err)
		}
		summary.TotalCount++
		summary.ByStatus[result.Status]++

		slog.Info("screened name",
			slog.Int("index", i+1),
			slog.Int("total", len(names)),
			slog.String("name", name),
			slog.String("status", string(result.Status)),
			slog.Int("match_count", result.MatchCount),
		)

		if i < len(names)-1 && s.cfg.Delay > 0 {
			if err := s.sleep(ctx, s.cfg.Delay); err != nil {
				summary.Interrupted = true
				break
			}
		}
	}

	summary.EndTime = time.Now()
	summary.RequestCount = s.requestCount
	summary.ErrorCount = s.errorCount
	summary.ErrorsByType = s.snapshotErrors()
	return summary, nil
}

func (s *Scraper) snapshotErrors() map[string]int {
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
