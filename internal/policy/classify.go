// Package policy classifies MAP policy documents and turns the analysis
// into a recommendation.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/map-review/internal/model"
	"github.com/sells-group/map-review/pkg/anthropic"
)

const systemPrompt = `You analyze MAP (Minimum Advertised Price) policy documents from vendors/suppliers.
Output valid JSON only, no markdown or explanation.`

const userPromptTemplate = `Analyze this MAP policy text and return a JSON object with exactly these keys (all required):
- "appliesToAllRetailers": boolean — true if the policy applies to all retailers/channels; false if it only applies to a specific segment (e.g. "big box retailers", "e-commerce only", "authorized dealers").
- "segmentDescription": string | null — if appliesToAllRetailers is false, a short plain-language description of which segment (e.g. "big box retailers only"); otherwise null.
- "consequencesSpecific": boolean — true if the policy states specific action steps for violations (e.g. "first violation: warning; second: 90-day supply cutoff; third: termination"). false if consequences are vague or not stated.
- "consequencesSummary": string | null — if consequencesSpecific is true, a brief summary of the steps (1–2 sentences); otherwise null.

Policy text:
---
%s
---`

// ClassifyFailure is a non-fatal classification outcome. Message is shown
// to end users verbatim; quota and rate-limit phrasing from the API is
// preserved so users can tell "try again later" from "misconfigured".
type ClassifyFailure struct {
	Message string
}

func (f *ClassifyFailure) Error() string { return f.Message }

// Config bounds a Classifier. Zero values take the defaults below.
type Config struct {
	Model     string
	MaxTokens int64
	// MaxChars bounds the document text embedded in the prompt.
	MaxChars int
	// Timeout bounds a single classification request.
	Timeout time.Duration
}

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 500
	defaultMaxChars  = 12000
	defaultTimeout   = 45 * time.Second
)

// Classifier asks the model two questions about a policy document:
// does it bind every retailer, and are violation consequences concrete.
type Classifier struct {
	client anthropic.Client
	cfg    Config
}

// NewClassifier creates a Classifier. A nil client means no API key is
// configured; Classify then fails with a configuration message instead
// of attempting a request.
func NewClassifier(client anthropic.Client, cfg Config) *Classifier {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Classifier{client: client, cfg: cfg}
}

func (c *Classifier) Classify(ctx context.Context, text string) (*model.PolicyAnalysis, *ClassifyFailure) {
	if strings.TrimSpace(text) == "" {
		return nil, &ClassifyFailure{Message: "No policy text to analyze."}
	}
	if c.client == nil {
		return nil, &ClassifyFailure{
			Message: "Policy text was extracted, but analysis is not configured (missing MAPREVIEW_ANTHROPIC_KEY).",
		}
	}

	text = truncateText(text, c.cfg.MaxChars)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, text)},
		},
	})
	if err != nil {
		return nil, &ClassifyFailure{Message: fmt.Sprintf("Policy analysis failed: %v", err)}
	}

	resp.Usage.LogCost(c.cfg.Model, "classify_policy")

	raw := extractText(resp)
	if strings.TrimSpace(raw) == "" {
		return nil, &ClassifyFailure{Message: "Empty response from policy analysis."}
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &parsed); err != nil {
		return nil, &ClassifyFailure{Message: fmt.Sprintf("Policy analysis failed: %v", err)}
	}

	analysis := normalizeAnalysis(parsed)
	zap.L().Debug("policy classified",
		zap.Bool("applies_to_all_retailers", analysis.AppliesToAllRetailers),
		zap.Bool("consequences_specific", analysis.ConsequencesSpecific),
	)
	return analysis, nil
}

// truncateText caps text at max bytes without splitting a multi-byte rune,
// which would embed invalid UTF-8 in the prompt.
func truncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}

// normalizeAnalysis coerces the decoded reply field by field. A missing or
// wrong-typed boolean becomes false and a missing or wrong-typed string
// becomes null, so a sloppy reply degrades instead of failing.
func normalizeAnalysis(parsed map[string]any) *model.PolicyAnalysis {
	analysis := &model.PolicyAnalysis{}
	if v, ok := parsed["appliesToAllRetailers"].(bool); ok {
		analysis.AppliesToAllRetailers = v
	}
	if v, ok := parsed["segmentDescription"].(string); ok {
		analysis.SegmentDescription = &v
	}
	if v, ok := parsed["consequencesSpecific"].(bool); ok {
		analysis.ConsequencesSpecific = v
	}
	if v, ok := parsed["consequencesSummary"].(string); ok {
		analysis.ConsequencesSummary = &v
	}
	return analysis
}

// extractText concatenates text content blocks from a response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
