package parser

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/sanctions-screen/models"
)

// Extraction holds the entity links kept from one page. Total counts every
// distinct link found, before the max-links cut.
type Extraction struct {
	Links []models.EntityLink
	Total int
}

// Extractor finds entity links in a search result page. Implementations
// must not fail on malformed markup; they return an empty Extraction.
type Extractor interface {
	Extract(page string, maxLinks int) Extraction
}

// NewExtractor returns the extractor registered under kind.
func NewExtractor(kind, baseURL, pathPrefix string) (Extractor, error) {
	m, err := newLinkMatcher(baseURL, pathPrefix)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "document", "":
		return &DocumentExtractor{match: m}, nil
	case "pattern":
		return &PatternExtractor{match: m}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", kind)
	}
}

// DocumentExtractor parses the page into a DOM and walks its anchors.
type DocumentExtractor struct {
	match *linkMatcher
}

// Extract implements Extractor.
func (d *DocumentExtractor) Extract(page string, maxLinks int) Extraction {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return Extraction{}
	}

	acc := newAccumulator(maxLinks)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := d.match.resolve(href)
		if !ok {
			return
		}
		acc.add(CollapseSpace(s.Text()), abs)
	})
	return acc.result()
}

var (
	anchorPattern = regexp.MustCompile(`(?is)<a\s[^>]*?href\s*=\s*["']([^"']*)["'][^>]*>(.*?)</a>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// PatternExtractor scans the raw page with regular expressions, without
// building a DOM.
type PatternExtractor struct {
	match *linkMatcher
}

// Extract implements Extractor.
func (p *PatternExtractor) Extract(page string, maxLinks int) Extraction {
	acc := newAccumulator(maxLinks)
	for _, m := range anchorPattern.FindAllStringSubmatch(page, -1) {
		abs, ok := p.match.resolve(html.UnescapeString(m[1]))
		if !ok {
			continue
		}
		label := html.UnescapeString(tagPattern.ReplaceAllString(m[2], ""))
		acc.add(CollapseSpace(label), abs)
	}
	return acc.result()
}

// linkMatcher decides which hrefs point at entity pages and makes them absolute.
type linkMatcher struct {
	base   *url.URL
	prefix string
}

func newLinkMatcher(baseURL, pathPrefix string) (*linkMatcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if pathPrefix == "" {
		return nil, fmt.Errorf("entity path prefix cannot be empty")
	}
	return &linkMatcher{base: base, prefix: pathPrefix}, nil
}

func (m *linkMatcher) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if ref.Host != "" && !strings.EqualFold(ref.Host, m.base.Host) {
		return "", false
	}
	if ref.Scheme != "" && ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	if !strings.HasPrefix(ref.Path, m.prefix) || len(ref.Path) == len(m.prefix) {
		return "", false
	}
	return m.base.ResolveReference(ref).String(), true
}

type accumulator struct {
	max   int
	seen  map[string]struct{}
	links []models.EntityLink
	total int
}

func newAccumulator(maxLinks int) *accumulator {
	if maxLinks < 0 {
		maxLinks = 0
	}
	return &accumulator{
		max:  maxLinks,
		seen: make(map[string]struct{}),
	}
}

func (a *accumulator) add(label, link string) {
	key := link + "\x00" + NormalizeName(label)
	if _, ok := a.seen[key]; ok {
		return
	}
	a.seen[key] = struct{}{}
	a.total++
	if len(a.links) < a.max {
		a.links = append(a.links, models.EntityLink{Label: label, URL: link})
	}
}

func (a *accumulator) result() Extraction {
	return Extraction{Links: a.links, Total: a.total}
}
