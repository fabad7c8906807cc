package classifier

import (
	"context"

	"modgate/internal/pkg/filter"
)

const blocklistDefaultScore = 0.9

// Blocklist classifies text against an in-process blocklist using
// Aho-Corasick matching over normalized text. It needs no network and is
// the fallback provider when no external classifier is configured.
type Blocklist struct {
	matcher *filter.Matcher
}

// NewBlocklist builds a blocklist classifier from the given patterns.
func NewBlocklist(patterns []filter.Pattern) *Blocklist {
	return &Blocklist{matcher: filter.New(patterns)}
}

// ClassifyText flags each category that has at least one matching pattern,
// scoring it with the highest pattern score in that category.
func (b *Blocklist) ClassifyText(_ context.Context, text string) (*TextResult, error) {
	result := &TextResult{Scores: make(map[string]float64)}
	for _, m := range b.matcher.Search(text) {
		category := m.Category
		if category == "" {
			category = "blocklist"
		}
		score := m.Score
		if score <= 0 {
			score = blocklistDefaultScore
		}
		if prev, ok := result.Scores[category]; !ok {
			result.Flagged = append(result.Flagged, category)
			result.Scores[category] = score
		} else if score > prev {
			result.Scores[category] = score
		}
	}
	return result, nil
}
