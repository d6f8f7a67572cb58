package enrich

import (
	"context"

	"github.com/lifeinbox/intake/internal/dump"
)

// Degraded defaults used when an enrichment capability is exhausted. Each
// capability owns exactly one fallback shape so the neutral values live in a
// single place.
const (
	// PlaceholderSummary replaces the summary when analysis is unavailable.
	PlaceholderSummary = "Content received but analysis unavailable"

	// FallbackConfidence is the AI confidence recorded on a degraded item.
	FallbackConfidence = 10

	// DefaultCategory is applied when categorization cannot produce a
	// better answer.
	DefaultCategory = "general"
)

// Fallback produces a degraded-but-valid value for one capability.
type Fallback[T any] func(ctx context.Context) (T, error)

// EmptyEntities is the fallback for entity extraction: a valid, fully
// populated but empty structure so consumers never branch on missing fields.
func EmptyEntities(context.Context) (dump.Entities, error) {
	return dump.Entities{
		Summary: dump.EntitySummary{ByType: map[string]int{}},
	}, nil
}

// NeutralAnalysis is the fallback for AI semantic analysis.
func NeutralAnalysis(context.Context) (Analysis, error) {
	return Analysis{
		Summary:    PlaceholderSummary,
		Category:   DefaultCategory,
		Sentiment:  "neutral",
		Urgency:    "low",
		Confidence: FallbackConfidence,
	}, nil
}

// DefaultCategorization is the fallback for categorization: the default
// category at zero confidence, never auto-applied.
func DefaultCategorization(context.Context) (dump.Categorization, error) {
	return dump.Categorization{
		Category:   DefaultCategory,
		Confidence: 0,
		Reasoning:  "categorization unavailable, defaulted",
	}, nil
}
