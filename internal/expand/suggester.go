package expand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/nazmulh/jobdelta/internal/model"
)

const (
	maxTitleContext    = 50
	maxLocationContext = 30
)

// LLMSuggester proposes new search keywords and locations by showing an LLM
// a sample of already-discovered postings and the terms already in use.
type LLMSuggester struct {
	provider       Provider
	extraKeywords  int
	extraLocations int
	logger         *slog.Logger
}

// NewLLMSuggester creates a suggester that asks provider for extraKeywords
// new keywords and extraLocations new locations per run.
func NewLLMSuggester(provider Provider, extraKeywords, extraLocations int, logger *slog.Logger) *LLMSuggester {
	return &LLMSuggester{
		provider:       provider,
		extraKeywords:  extraKeywords,
		extraLocations: extraLocations,
		logger:         logger,
	}
}

// SuggestKeywords returns up to extraKeywords new search terms derived from
// the titles in snapshot. known lists the terms already in use, shown to the
// LLM so it avoids repeats.
func (s *LLMSuggester) SuggestKeywords(ctx context.Context, snapshot []model.Record, known []string) ([]string, error) {
	if s.extraKeywords <= 0 {
		return nil, nil
	}

	titles := sampleAttr(snapshot, model.AttrTitle, maxTitleContext)
	return s.suggest(ctx, keywordTemplate, titles, known, s.extraKeywords)
}

// SuggestLocations returns up to extraLocations new search locations derived
// from the locations in snapshot.
func (s *LLMSuggester) SuggestLocations(ctx context.Context, snapshot []model.Record, known []string) ([]string, error) {
	if s.extraLocations <= 0 {
		return nil, nil
	}

	locations := sampleAttr(snapshot, model.AttrLocation, maxLocationContext)
	return s.suggest(ctx, locationTemplate, locations, known, s.extraLocations)
}

func (s *LLMSuggester) suggest(ctx context.Context, tmpl *template.Template, found, known []string, count int) ([]string, error) {
	foundContext := "No existing data yet."
	if len(found) > 0 {
		foundContext = "- " + strings.Join(found, "\n- ")
	}

	var promptBuf bytes.Buffer
	err := tmpl.Execute(&promptBuf, struct {
		Found string
		Known string
		Count int
	}{
		Found: foundContext,
		Known: strings.Join(known, ", "),
		Count: count,
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	raw, err := s.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return nil, fmt.Errorf("llm complete: %w", err)
	}

	terms, err := parseStringArray(raw)
	if err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}

	if len(terms) > count {
		terms = terms[:count]
	}
	s.logger.Debug("llm suggested terms", "count", len(terms))
	return terms, nil
}

// sampleAttr collects up to limit distinct non-empty values of key across records.
func sampleAttr(records []model.Record, key string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		v := strings.TrimSpace(r.Attr(key))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// parseStringArray extracts a JSON string array from an LLM response,
// tolerating markdown fences and surrounding prose.
func parseStringArray(raw string) ([]string, error) {
	text := cleanJSONBlock(raw)

	var terms []string
	if err := json.Unmarshal([]byte(text), &terms); err != nil {
		// The model sometimes wraps the array in explanation text.
		start := strings.Index(text, "[")
		end := strings.LastIndex(text, "]")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON array in response: %w", err)
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &terms); err != nil {
			return nil, fmt.Errorf("unmarshal suggestions: %w", err)
		}
	}

	out := terms[:0]
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
