package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lifeinbox/intake/pkg/llm"
)

// Analysis is the AI-derived view of a content item.
type Analysis struct {
	Summary     string   `json:"summary"`
	Category    string   `json:"category"`
	Sentiment   string   `json:"sentiment"`
	Urgency     string   `json:"urgency"`
	ActionItems []string `json:"action_items"`
	Confidence  int      `json:"confidence"`
}

const analysisSystemPrompt = `You analyze short personal notes and messages.
Respond with a single JSON object, no prose, with these keys:
summary (one sentence), category (one lowercase word),
sentiment (positive|neutral|negative), urgency (low|medium|high),
action_items (array of short strings), confidence (integer 0-100).`

// Analyzer calls the LLM for semantic analysis of raw content.
type Analyzer struct {
	provider llm.Provider
	logger   *logrus.Logger
}

func NewAnalyzer(provider llm.Provider, logger *logrus.Logger) *Analyzer {
	return &Analyzer{provider: provider, logger: logger}
}

// Analyze produces a summary, sentiment, urgency, action items, and a
// category hint for the content. The raw model output is parsed defensively;
// a response that is not valid JSON is an error and left to the caller's
// fallback policy.
func (a *Analyzer) Analyze(ctx context.Context, content string) (Analysis, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Analysis{}, fmt.Errorf("no content to analyze")
	}

	raw, err := llm.CompleteText(ctx, a.provider, []llm.Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: content},
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("analysis request: %w", err)
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		a.logger.WithError(err).Debug("Unparseable analysis response")
		return Analysis{}, err
	}
	return analysis, nil
}

func parseAnalysis(raw string) (Analysis, error) {
	payload := stripCodeFence(raw)

	// Models occasionally wrap the object in prose; cut to the outermost braces.
	if start := strings.Index(payload, "{"); start >= 0 {
		if end := strings.LastIndex(payload, "}"); end > start {
			payload = payload[start : end+1]
		}
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis response: %w", err)
	}

	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 100 {
		analysis.Confidence = 100
	}
	analysis.Category = strings.ToLower(strings.TrimSpace(analysis.Category))
	return analysis, nil
}

func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
