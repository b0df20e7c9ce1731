package expand

import (
	"context"

	"github.com/nazmulh/jobdelta/internal/model"
)

// NopSuggester is a no-op suggester used when expansion is disabled.
// It suggests nothing and makes no LLM calls.
type NopSuggester struct{}

// NewNopSuggester returns a NopSuggester.
func NewNopSuggester() *NopSuggester {
	return &NopSuggester{}
}

// SuggestKeywords returns no suggestions.
func (n *NopSuggester) SuggestKeywords(_ context.Context, _ []model.Record, _ []string) ([]string, error) {
	return nil, nil
}

// SuggestLocations returns no suggestions.
func (n *NopSuggester) SuggestLocations(_ context.Context, _ []model.Record, _ []string) ([]string, error) {
	return nil, nil
}
