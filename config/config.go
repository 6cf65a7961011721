package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// QueryPlaceholder is replaced by the escaped name in SearchURL.
const QueryPlaceholder = "{query}"

// Input describes where names are collected from.
type Input struct {
	Names           []string
	TextFile        string
	CSVFile         string
	NameColumn      string
	FirstNameColumn string
	LastNameColumn  string
	CSVDelimiter    rune
}

// Config holds screening configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Input Input

	SearchURL        string
	EntityPathPrefix string
	NoMatchMarkers   []string
	Extractor        string // document or pattern

	MaxLinks  int
	Delay     time.Duration
	Timeout   time.Duration
	Limit     int
	Dedupe    bool
	UserAgent string

	OutputFile   string
	OutputFormat string // csv, json, or dual

	Verbose     bool
	MetricsAddr string
	LogFile     string
}

// DefaultConfig returns the defaults for the public OpenSanctions site.
func DefaultConfig() *Config {
	return &Config{
		Input: Input{
			FirstNameColumn: "Vorname",
			LastNameColumn:  "Nachname",
			CSVDelimiter:    ',',
		},
		SearchURL:        "https://www.opensanctions.org/search/?q={query}",
		EntityPathPrefix: "/entities/",
		NoMatchMarkers:   []string{"No matching entities were found."},
		Extractor:        "document",
		MaxLinks:         3,
		Delay:            500 * time.Millisecond,
		Timeout:          20 * time.Second,
		Limit:            0,
		Dedupe:           true,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		OutputFile:       "opensanctions_results.csv",
		OutputFormat:     "csv",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SearchURL == "" {
		return fmt.Errorf("search URL cannot be empty")
	}
	if !strings.Contains(c.SearchURL, QueryPlaceholder) {
		return fmt.Errorf("search URL must contain %s", QueryPlaceholder)
	}
	parsedURL, err := url.Parse(strings.Replace(c.SearchURL, QueryPlaceholder, "x", 1))
	if err != nil {
		return fmt.Errorf("invalid search URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search URL must include a host")
	}
	if c.EntityPathPrefix == "" {
		return fmt.Errorf("entity path prefix cannot be empty")
	}
	if c.Extractor != "document" && c.Extractor != "pattern" {
		return fmt.Errorf("extractor must be document or pattern")
	}

	if c.MaxLinks < 0 {
		return fmt.Errorf("max links cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}

	d := c.Input.CSVDelimiter
	if d == 0 || d == '"' || d == '\r' || d == '\n' || d == utf8.RuneError {
		return fmt.Errorf("csv delimiter %q is not usable", d)
	}
	if c.Input.CSVFile != "" && c.Input.NameColumn == "" &&
		c.Input.FirstNameColumn == "" && c.Input.LastNameColumn == "" {
		return fmt.Errorf("csv input needs a name column or first/last name columns")
	}

	return nil
}

// BaseURL returns scheme and host of the search URL, used to resolve
// relative entity links.
func (c *Config) BaseURL() string {
	parsed, err := url.Parse(strings.Replace(c.SearchURL, QueryPlaceholder, "x", 1))
	if err != nil {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
