package noveltycheck

import (
	"strings"
	"unicode"
)

// stopwords drops filler plus generic invention jargon ("device", "smart",
// "novel") so queries skew toward distinguishing terms.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "are": {}, "was": {}, "has": {}, "have": {}, "can": {},
	"will": {}, "its": {}, "you": {}, "your": {}, "all": {}, "any": {},
	"use": {}, "used": {}, "using": {}, "into": {}, "when": {}, "which": {},
	"while": {}, "where": {}, "than": {}, "then": {}, "them": {}, "they": {},
	"also": {}, "more": {}, "most": {}, "other": {}, "such": {}, "some": {},
	"very": {}, "just": {}, "like": {}, "make": {}, "makes": {}, "made": {},
	"way": {}, "easy": {}, "easily": {}, "allows": {}, "allow": {},
	"helps": {}, "help": {}, "user": {}, "users": {},
	// invention jargon
	"device": {}, "smart": {}, "novel": {}, "invention": {}, "product": {},
	"system": {}, "method": {}, "new": {}, "improved": {}, "innovative": {},
	"unique": {}, "solution": {}, "technology": {}, "idea": {},
}

const maxKeywordsPerField = 5

// ExtractKeywords returns the top distinguishing terms of text, space
// joined. Pure and deterministic: identical inputs must produce identical
// output so repeated checks hit the same cache key.
func ExtractKeywords(text string) string {
	return strings.Join(extractTerms(text, maxKeywordsPerField), " ")
}

func extractTerms(text string, max int) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	out := make([]string, 0, max)
	seen := map[string]struct{}{}
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == max {
			break
		}
	}
	return out
}

// GenerateSearchQueries is the deterministic query fallback used when the
// AI expansion is unavailable: one query from the core name+description,
// one from the problem statement, and up to three per-feature queries,
// deduplicated and capped.
func GenerateSearchQueries(name, description, problem string, features []string) []string {
	queries := make([]string, 0, MaxQueries)

	if q := ExtractKeywords(name + " " + description); q != "" {
		queries = append(queries, q)
	}
	if strings.TrimSpace(problem) != "" {
		if q := ExtractKeywords(problem); q != "" {
			queries = append(queries, q+" solution")
		}
	}
	featureCount := 0
	for _, f := range features {
		if featureCount == 3 {
			break
		}
		if q := ExtractKeywords(f); q != "" {
			queries = append(queries, q)
			featureCount++
		}
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, MaxQueries)
	for _, q := range queries {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if len(out) == MaxQueries {
			break
		}
	}
	return out
}
