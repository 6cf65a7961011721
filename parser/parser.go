package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/sanctions-screen/models"
	"golang.org/x/text/cases"
)

// NormalizeName returns the dedup key for a name: case-folded with
// whitespace runs collapsed to single spaces.
func NormalizeName(name string) string {
	return cases.Fold().String(CollapseSpace(name))
}

// CollapseSpace trims s and replaces internal whitespace runs with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Classify derives the status of a successfully loaded page. A no-match
// marker wins over extracted links.
func Classify(page string, markers []string, total int) models.Status {
	for _, marker := range markers {
		if marker != "" && strings.Contains(page, marker) {
			return models.StatusNoMatch
		}
	}
	if total > 0 {
		return models.StatusMatch
	}
	return models.StatusUnknown
}

// ValidateResult ensures a result is internally consistent before it is written.
func ValidateResult(r *models.SearchResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	if strings.TrimSpace(r.QueryName) == "" {
		return fmt.Errorf("result missing query name")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("result for %q has invalid status %q", r.QueryName, r.Status)
	}
	if r.MatchCount < 0 {
		return fmt.Errorf("result for %q has negative match count", r.QueryName)
	}
	if r.SearchURL == "" {
		return fmt.Errorf("result for %q missing search url", r.QueryName)
	}
	if r.MatchCount < len(r.Entities) {
		return fmt.Errorf("result for %q lists %d entities but counts %d", r.QueryName, len(r.Entities), r.MatchCount)
	}

	switch r.Status {
	case models.StatusError:
		if r.Error == "" {
			return fmt.Errorf("error result for %q missing message", r.QueryName)
		}
		if r.MatchCount != 0 || len(r.Entities) != 0 {
			return fmt.Errorf("error result for %q carries matches", r.QueryName)
		}
	case models.StatusMatch:
		if r.MatchCount == 0 {
			return fmt.Errorf("match result for %q has zero matches", r.QueryName)
		}
	default:
		if r.MatchCount != 0 || len(r.Entities) != 0 {
			return fmt.Errorf("%s result for %q carries matches", r.Status, r.QueryName)
		}
	}
	if r.Status != models.StatusError && r.Error != "" {
		return fmt.Errorf("%s result for %q carries an error message", r.Status, r.QueryName)
	}
	return nil
}
