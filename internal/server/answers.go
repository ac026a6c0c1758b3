package server

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// matchesAnswer reports whether a free-text submission matches any of the
// accepted answers. Both sides are normalized; exact matches win, and a
// small edit distance is tolerated, scaled with the accepted answer's
// length (0 for <=3 chars, 1 for <=6, 2 otherwise). Empty submissions are
// always rejected.
func matchesAnswer(submitted string, accepted []string) bool {
	sub := normalizeAnswer(submitted)
	if sub == "" {
		return false
	}
	for _, answer := range accepted {
		norm := normalizeAnswer(answer)
		if norm == "" {
			continue
		}
		if sub == norm {
			return true
		}
		if threshold := distanceThreshold(norm); threshold > 0 {
			if levenshtein.ComputeDistance(sub, norm) <= threshold {
				return true
			}
		}
	}
	return false
}

func distanceThreshold(answer string) int {
	switch {
	case len(answer) <= 3:
		return 0
	case len(answer) <= 6:
		return 1
	default:
		return 2
	}
}

// normalizeAnswer lowercases, strips punctuation, collapses whitespace
// and drops a single leading article.
func normalizeAnswer(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	fields := strings.Fields(b.String())
	if len(fields) > 1 {
		switch fields[0] {
		case "the", "a", "an":
			fields = fields[1:]
		}
	}
	return strings.Join(fields, " ")
}
