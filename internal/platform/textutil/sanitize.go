package textutil

import (
	"html"
	"sort"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	minTokenLength = 2
	maxTokenLength = 24
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	folder       = cases.Fold()
)

// Sanitize strips markup from free text, collapses whitespace and truncates to limit runes.
// A non-positive limit disables truncation.
func Sanitize(value string, limit int) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned = strings.Join(strings.FieldsFunc(cleaned, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	if limit > 0 {
		runes := []rune(cleaned)
		if len(runes) > limit {
			cleaned = strings.TrimSpace(string(runes[:limit]))
		}
	}
	return cleaned
}

// NormalizeSearch applies NFKC normalisation and case folding so full-width and mixed-case input
// compare equal.
func NormalizeSearch(value string) string {
	normalized := folder.String(norm.NFKC.String(value))
	return strings.Join(strings.Fields(normalized), " ")
}

// SearchTerms splits a normalised query into the words matched against search tokens.
func SearchTerms(query string) []string {
	words := splitWords(NormalizeSearch(query))
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		runes := []rune(word)
		if len(runes) < minTokenLength {
			continue
		}
		if len(runes) > maxTokenLength {
			word = string(runes[:maxTokenLength])
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}

// LongestTerm returns the most selective search term, or "" when none qualifies.
func LongestTerm(terms []string) string {
	longest := ""
	for _, term := range terms {
		if len([]rune(term)) > len([]rune(longest)) {
			longest = term
		}
	}
	return longest
}

// SearchTokens indexes values by every word prefix so that SearchTerms of a partial word match.
func SearchTokens(values ...string) []string {
	set := make(map[string]struct{})
	for _, value := range values {
		for _, word := range splitWords(NormalizeSearch(value)) {
			runes := []rune(word)
			for n := minTokenLength; n <= len(runes) && n <= maxTokenLength; n++ {
				set[string(runes[:n])] = struct{}{}
			}
		}
	}
	tokens := make([]string, 0, len(set))
	for token := range set {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func splitWords(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
