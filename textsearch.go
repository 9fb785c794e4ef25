package openregulations

import (
	"sort"
	"strings"
)

// Comment is the plain-text view of a comment, used by the lexical
// fallback when a docket has no embeddings.
type Comment struct {
	ID        string
	Text      string
	Author    string
	Sentiment Sentiment
}

// TextResult is a single lexical match. Score is the fraction of query
// tokens found in the comment text, in (0, 1].
type TextResult struct {
	ID        string
	Score     float64
	Text      string
	Author    string
	Sentiment Sentiment
}

// TextSearch scores comments by the fraction of query tokens present as
// case-insensitive substrings. Tokens of length <= 2 are discarded;
// comments matching zero tokens are excluded. The ranking is fully
// deterministic: descending score, input order on ties.
func TextSearch(query string, comments []Comment) []TextResult {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	results := make([]TextResult, 0, len(comments))
	for _, c := range comments {
		text := strings.ToLower(c.Text)
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, TextResult{
			ID:        c.ID,
			Score:     float64(matched) / float64(len(tokens)),
			Text:      c.Text,
			Author:    c.Author,
			Sentiment: c.Sentiment,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// tokenize splits on whitespace, lowercases, and drops short tokens that
// would match almost anything.
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
