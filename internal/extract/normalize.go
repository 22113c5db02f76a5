package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/unicode/norm"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// Normalize canonicalizes a brand alias or text span for matching and
// dedup: unicode NFKC fold, lowercase, punctuation stripped, whitespace
// collapsed.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			// Punctuation is dropped, not replaced, so "e-mail" and
			// "email" normalize identically.
		}
	}

	return strings.TrimSpace(multiSpace.ReplaceAllString(b.String(), " "))
}

// Similarity returns a normalized edit-distance similarity in [0,1]
// between two already-normalized strings.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		if a == b {
			return 1
		}
		return 0
	}
	return levenshtein.Similarity(a, b, levenshtein.NewParams())
}
