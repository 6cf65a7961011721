package parser

import (
	"fmt"
	"strings"
	"testing"
)

const testBase = "https://www.opensanctions.org"

func buildResultPage(n int) string {
	var builder strings.Builder
	builder.WriteString(`<html><body><nav><a href="/datasets/">Datasets</a></nav><ul class="results">`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&builder, `<li><a class="entity" href="/entities/NK-%d/"><strong>Person</strong> %d</a></li>`, i, i)
	}
	builder.WriteString(`</ul></body></html>`)
	return builder.String()
}

func extractors(t *testing.T) map[string]Extractor {
	t.Helper()
	out := make(map[string]Extractor)
	for _, kind := range []string{"document", "pattern"} {
		e, err := NewExtractor(kind, testBase, "/entities/")
		if err != nil {
			t.Fatalf("new %s extractor: %v", kind, err)
		}
		out[kind] = e
	}
	return out
}

func TestExtractTruncatesInPageOrder(t *testing.T) {
	page := buildResultPage(5)

	for kind, e := range extractors(t) {
		t.Run(kind, func(t *testing.T) {
			got := e.Extract(page, 2)
			if got.Total != 5 {
				t.Fatalf("total = %d, want 5", got.Total)
			}
			if len(got.Links) != 2 {
				t.Fatalf("links = %d, want 2", len(got.Links))
			}
			if got.Links[0].URL != testBase+"/entities/NK-1/" || got.Links[1].URL != testBase+"/entities/NK-2/" {
				t.Fatalf("unexpected order: %+v", got.Links)
			}
			if got.Links[0].Label != "Person 1" {
				t.Fatalf("label = %q, want %q", got.Links[0].Label, "Person 1")
			}
		})
	}
}

func TestExtractDedupesLinks(t *testing.T) {
	page := `<a href="/entities/Q1/">Jane  Doe</a><a href="/entities/Q1/">jane doe</a><a href="/entities/Q1/">Alias</a>`

	for kind, e := range extractors(t) {
		t.Run(kind, func(t *testing.T) {
			got := e.Extract(page, 10)
			if got.Total != 2 || len(got.Links) != 2 {
				t.Fatalf("got %+v, want 2 distinct links", got)
			}
			if got.Links[0].Label != "Jane Doe" || got.Links[1].Label != "Alias" {
				t.Fatalf("labels = %+v", got.Links)
			}
		})
	}
}

func TestExtractUnescapesLabels(t *testing.T) {
	page := `<a href="/entities/Q2/">M&uuml;ller &amp; S&ouml;hne</a>`

	for kind, e := range extractors(t) {
		t.Run(kind, func(t *testing.T) {
			got := e.Extract(page, 3)
			if len(got.Links) != 1 || got.Links[0].Label != "Müller & Söhne" {
				t.Fatalf("got %+v", got.Links)
			}
		})
	}
}

func TestExtractFiltersForeignLinks(t *testing.T) {
	page := `<a href="https://evil.test/entities/X/">x</a>` +
		`<a href="//evil.test/entities/Y/">y</a>` +
		`<a href="/entities/">index</a>` +
		`<a href="mailto:someone@example.test">mail</a>` +
		`<a href="https://www.opensanctions.org/entities/Z/">z</a>`

	for kind, e := range extractors(t) {
		t.Run(kind, func(t *testing.T) {
			got := e.Extract(page, 5)
			if got.Total != 1 || got.Links[0].URL != testBase+"/entities/Z/" {
				t.Fatalf("got %+v, want only the same-host entity link", got)
			}
		})
	}
}

func TestExtractMalformedHTML(t *testing.T) {
	pages := []string{
		"",
		"<<<>>>",
		`<a href="/entities/Q1/">unterminated`,
		"<html><body><div><a href=",
		"\x00\xff\xfe",
	}

	for kind, e := range extractors(t) {
		for i, page := range pages {
			t.Run(fmt.Sprintf("%s/%d", kind, i), func(t *testing.T) {
				got := e.Extract(page, 3)
				if len(got.Links) > got.Total {
					t.Fatalf("links exceed total: %+v", got)
				}
			})
		}
	}
}

func TestExtractZeroMaxLinksStillCounts(t *testing.T) {
	for kind, e := range extractors(t) {
		t.Run(kind, func(t *testing.T) {
			got := e.Extract(buildResultPage(3), 0)
			if got.Total != 3 || len(got.Links) != 0 {
				t.Fatalf("got %+v, want total 3 and no links", got)
			}
		})
	}
}

func TestNewExtractorErrors(t *testing.T) {
	if _, err := NewExtractor("xpath", testBase, "/entities/"); err == nil {
		t.Fatalf("expected error for unknown extractor")
	}
	if _, err := NewExtractor("document", "not a url", "/entities/"); err == nil {
		t.Fatalf("expected error for base url without host")
	}
	if _, err := NewExtractor("pattern", testBase, ""); err == nil {
		t.Fatalf("expected error for empty prefix")
	}
}
