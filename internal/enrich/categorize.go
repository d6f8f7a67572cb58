package enrich

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lifeinbox/intake/internal/dump"
)

// Categorization policy thresholds. A category is applied automatically only
// at or above AutoApplyThreshold; below ReviewThreshold it is flagged for
// human review.
const (
	AutoApplyThreshold = 0.8
	ReviewThreshold    = 0.5
)

const (
	categoryBaseConfidence = 0.55
	categoryHitBonus       = 0.15
	categoryMaxConfidence  = 0.95
	aiAgreementBonus       = 0.1
	aiOnlyConfidence       = 0.6
)

// categoryRule matches a category by keyword hits. Rules are evaluated in
// declaration order; on equal scores the earlier rule wins.
type categoryRule struct {
	Name     string
	Keywords []string
}

var categoryRules = []categoryRule{
	{Name: "travel", Keywords: []string{"flight", "hotel", "airport", "booking", "confirmation", "itinerary", "trip", "train", "visa", "boarding"}},
	{Name: "finance", Keywords: []string{"invoice", "payment", "bill", "bank", "tax", "refund", "salary", "subscription", "receipt", "transfer"}},
	{Name: "shopping", Keywords: []string{"order", "delivery", "shipped", "tracking", "cart", "purchase", "return", "package", "store"}},
	{Name: "health", Keywords: []string{"doctor", "appointment", "prescription", "pharmacy", "dentist", "clinic", "medication", "therapy"}},
	{Name: "work", Keywords: []string{"meeting", "deadline", "project", "report", "interview", "presentation", "client", "standup"}},
	{Name: "home", Keywords: []string{"rent", "lease", "repair", "plumber", "electrician", "utilities", "cleaning", "grocery", "groceries"}},
	{Name: "social", Keywords: []string{"birthday", "party", "dinner", "wedding", "concert", "tickets", "anniversary", "brunch"}},
}

// Categorize infers the best-guess category for content from the keyword
// rules, optionally reconciled with an AI-suggested category. Empty content
// yields the default category at confidence 0.
func Categorize(content, aiHint string) dump.Categorization {
	text := strings.ToLower(strings.TrimSpace(content))
	if text == "" {
		return dump.Categorization{
			Category:  DefaultCategory,
			Reasoning: "no content to categorize",
		}
	}

	type scored struct {
		rule categoryRule
		hits int
	}
	var scores []scored
	for _, rule := range categoryRules {
		hits := 0
		for _, keyword := range rule.Keywords {
			if strings.Contains(text, keyword) {
				hits++
			}
		}
		if hits > 0 {
			scores = append(scores, scored{rule: rule, hits: hits})
		}
	}

	aiHint = strings.ToLower(strings.TrimSpace(aiHint))

	if len(scores) == 0 {
		if aiHint != "" && aiHint != DefaultCategory {
			return dump.Categorization{
				Category:   aiHint,
				Confidence: aiOnlyConfidence,
				Reasoning:  "no keyword match, using AI-suggested category",
			}
		}
		return dump.Categorization{
			Category:  DefaultCategory,
			Reasoning: "no category signals found",
		}
	}

	// Stable sort preserves declaration order among equal scores.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].hits > scores[j].hits
	})

	winner := scores[0]
	confidence := categoryBaseConfidence + categoryHitBonus*float64(winner.hits-1)
	reasoning := fmt.Sprintf("matched %d %s keyword(s)", winner.hits, winner.rule.Name)
	if aiHint == winner.rule.Name {
		confidence += aiAgreementBonus
		reasoning += ", confirmed by AI analysis"
	}
	if confidence > categoryMaxConfidence {
		confidence = categoryMaxConfidence
	}

	var alternatives []dump.CategorySuggestion
	for _, s := range scores[1:] {
		altConfidence := categoryBaseConfidence + categoryHitBonus*float64(s.hits-1)
		if altConfidence > categoryMaxConfidence {
			altConfidence = categoryMaxConfidence
		}
		alternatives = append(alternatives, dump.CategorySuggestion{
			Category:   s.rule.Name,
			Confidence: altConfidence,
		})
	}
	if aiHint != "" && aiHint != winner.rule.Name && aiHint != DefaultCategory {
		alternatives = append(alternatives, dump.CategorySuggestion{
			Category:   aiHint,
			Confidence: aiOnlyConfidence,
		})
	}
	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].Confidence > alternatives[j].Confidence
	})

	return dump.Categorization{
		Category:     winner.rule.Name,
		Confidence:   confidence,
		Reasoning:    reasoning,
		Alternatives: alternatives,
		AutoApplied:  confidence >= AutoApplyThreshold,
	}
}
