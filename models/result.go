// Package models defines data structures for the screening run.
package models

import "time"

// Status is the per-name outcome of a search.
type Status string

const (
	StatusMatch   Status = "match"
	StatusNoMatch Status = "no_match"
	StatusUnknown Status = "unknown"
	StatusError   Status = "error"
)

// Valid reports whether s is one of the four known outcomes.
func (s Status) Valid() bool {
	switch s {
	case StatusMatch, StatusNoMatch, StatusUnknown, StatusError:
		return true
	default:
		return false
	}
}

// EntityLink is one entity anchor extracted from a result page.
type EntityLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// String renders the link as "Label (URL)", or just the URL when the label is empty.
func (l EntityLink) String() string {
	if l.Label == "" {
		return l.URL
	}
	return l.Label + " (" + l.URL + ")"
}

// SearchResult is the outcome of querying one name.
type SearchResult struct {
	QueryName  string       `json:"query_name"`
	Status     Status       `json:"status"`
	MatchCount int          `json:"match_count"`
	SearchURL  string       `json:"search_url"`
	Entities   []EntityLink `json:"entity_results"`
	Error      string       `json:"error"`
	QueriedAt  time.Time    `json:"queried_at"`
}

// RunSummary holds the overall result of a batch run.
type RunSummary struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ByStatus     map[Status]int
	RequestCount int
	ErrorCount   int
	ErrorsByType map[string]int
	Interrupted  bool
}
