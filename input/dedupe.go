package input

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/sanctions-screen/parser"
)

// Dedupe drops names whose normalized key was already seen, keeping the
// first occurrence in its original form. Order is preserved.
func Dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	if len(names) == 0 {
		return out
	}

	// Sized to the input so no key is ever evicted.
	seen, err := lru.New[string, struct{}](len(names))
	if err != nil {
		return append(out, names...)
	}
	for _, name := range names {
		key := parser.NormalizeName(name)
		if seen.Contains(key) {
			continue
		}
		seen.Add(key, struct{}{})
		out = append(out, name)
	}
	return out
}

// Limit returns the first n names, or all of them when n is zero or negative.
func Limit(names []string, n int) []string {
	if n <= 0 || n >= len(names) {
		return names
	}
	return names[:n]
}

// Select applies deduplication (unless disabled) and then the limit.
func Select(names []string, dedupe bool, limit int) []string {
	if dedupe {
		names = Dedupe(names)
	}
	return Limit(names, limit)
}
