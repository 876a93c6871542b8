package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var punctuationRegex = regexp.MustCompile(`[,.\-']`)

// NormalizeName lowercases a name, drops punctuation and collapses
// whitespace so that "Carlsen, Magnus" and "carlsen magnus" compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = punctuationRegex.ReplaceAllString(name, " ")
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return name
}

// NameSimilarity returns the Jaro-Winkler similarity of two names after
// normalization, 1 means identical.
func NameSimilarity(a, b string) float64 {
	return matchr.JaroWinkler(NormalizeName(a), NormalizeName(b), false)
}

// Truncate cuts `s` to at most `max` runes, replacing the tail with "..."
// when it had to cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
