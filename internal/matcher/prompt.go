package matcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matsen/sift/internal/record"
)

const maxAbstractLength = 2000

// buildPrompt renders the scoring prompt for one (article, question) pair.
func buildPrompt(article record.CanonicalArticle, q record.ResearchQuestion) string {
	abstract := article.Meta.Abstract
	if abstract == "" {
		abstract = "(no abstract available)"
	} else if len(abstract) > maxAbstractLength {
		abstract = abstract[:maxAbstractLength]
	}

	var questionText strings.Builder
	questionText.WriteString(fmt.Sprintf("NAME: %s\n", q.Name))
	if len(q.Keywords) > 0 {
		questionText.WriteString(fmt.Sprintf("KEYWORDS: %s\n", strings.Join(q.Keywords, ", ")))
	}
	if len(q.Topics) > 0 {
		questionText.WriteString(fmt.Sprintf("TOPICS: %s\n", strings.Join(q.Topics, ", ")))
	}
	if len(q.Authors) > 0 {
		questionText.WriteString(fmt.Sprintf("PREFERRED_AUTHORS: %s\n", strings.Join(q.Authors, ", ")))
	}

	return fmt.Sprintf(`You are assessing whether a scientific article is relevant to a research question.

Research question:
%s
Article:
TITLE: %s
AUTHORS: %s
ABSTRACT: %s

Rate the article's relevance to the research question on a scale from 0.0
(completely unrelated) to 1.0 (directly on topic).

Output format: Return a JSON object with exactly these fields:
{"score": 0.0, "matched_keywords": ["keyword"], "reasoning": "one short sentence"}

Return ONLY the JSON object, no other text.`,
		questionText.String(),
		article.Meta.Title,
		strings.Join(article.Meta.Authors, ", "),
		abstract)
}

// parseScoreResponse parses the oracle's reply. The reply may arrive wrapped
// in a markdown code block. Returns ok=false when no JSON object can be
// recovered.
func parseScoreResponse(response string) (ScoreResult, bool) {
	text := strings.TrimSpace(response)

	// Handle markdown code blocks
	if strings.HasPrefix(text, "```") {
		text = extractFromCodeBlock(text)
	}

	var result ScoreResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return ScoreResult{}, false
	}
	if result.MatchedKeywords == nil {
		result.MatchedKeywords = []string{}
	}
	return result, true
}

// extractFromCodeBlock extracts content from a markdown code block.
func extractFromCodeBlock(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}

	// Remove first line (```json or ```)
	start := 1
	end := len(lines)
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		end = len(lines) - 1
	}
	return strings.Join(lines[start:end], "\n")
}
