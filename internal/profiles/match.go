package profiles

import (
	"regexp"
	"strings"

	"lifxctl/internal/store"
)

// Match returns the first profile that query identifies: an exact id, an
// exact name, an exact tag, then a loose name match. It returns nil when
// nothing matches.
func Match(all []*store.Profile, query string) *store.Profile {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	for _, p := range all {
		if p.ID == query {
			return p
		}
	}
	for _, p := range all {
		if strings.ToLower(p.Name) == q {
			return p
		}
	}
	for _, p := range all {
		for _, tag := range p.Tags {
			if strings.ToLower(tag) == q {
				return p
			}
		}
	}
	for _, p := range all {
		if NameMatches(p.Name, q) {
			return p
		}
	}
	return nil
}

var fillerWords = regexp.MustCompile(`\b(the|my|a|an|to|for|and|or|of|in|on|at)\b`)

// NameMatches reports whether query loosely names a profile: either string
// contains the other once filler words are dropped, or at least 60% of the
// shorter word list overlaps the other.
func NameMatches(name, query string) bool {
	a := clean(name)
	b := clean(query)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	wa := strings.Fields(a)
	wb := strings.Fields(b)
	shared := 0
	for _, w := range wa {
		for _, w2 := range wb {
			if strings.Contains(w2, w) || strings.Contains(w, w2) {
				shared++
				break
			}
		}
	}
	return float64(shared) >= float64(min(len(wa), len(wb)))*0.6
}

func clean(s string) string {
	s = fillerWords.ReplaceAllString(strings.ToLower(s), "")
	return strings.Join(strings.Fields(s), " ")
}
