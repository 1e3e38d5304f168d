// Package matcher scores (article, research question) pairs through an
// external LLM oracle and persists qualifying matches.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/sift/internal/llm"
	"github.com/matsen/sift/internal/record"
	"github.com/matsen/sift/internal/store"
)

// MatchStore is the slice of the relational store the matcher needs.
type MatchStore interface {
	Match(ctx context.Context, articleID, questionID string) (record.ArticleMatch, error)
	InsertMatch(ctx context.Context, m record.ArticleMatch) error
}

// ScoreResult is the parsed scoring verdict for one (article, question)
// pair. Score is always within [0,1].
type ScoreResult struct {
	Score           float64  `json:"score"`
	MatchedKeywords []string `json:"matched_keywords"`
	Reasoning       string   `json:"reasoning"`
}

// Matcher evaluates articles against research questions.
type Matcher struct {
	oracle llm.Oracle
	db     MatchStore
	log    *zap.Logger
}

// New creates a Matcher. A nil logger disables logging.
func New(oracle llm.Oracle, db MatchStore, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{oracle: oracle, db: db, log: log}
}

// Score asks the oracle to rate the article's relevance to the question.
// Unparsable oracle output is downgraded to a zero score, never raised;
// out-of-range scores are clamped into [0,1]. An error is returned only for
// oracle transport failures.
func (m *Matcher) Score(ctx context.Context, article record.CanonicalArticle, q record.ResearchQuestion) (ScoreResult, error) {
	response, err := m.oracle.Generate(ctx, buildPrompt(article, q))
	if err != nil {
		return ScoreResult{}, fmt.Errorf("scoring %s against %s: %w", article.ID, q.ID, err)
	}

	result, ok := parseScoreResponse(response)
	if !ok {
		m.log.Warn("unparsable scoring response, downgrading to zero",
			zap.String("article_id", article.ID),
			zap.String("question_id", q.ID))
		return ScoreResult{Score: 0.0, MatchedKeywords: []string{}, Reasoning: "parse failure"}, nil
	}

	result.Score = clampScore(result.Score)
	return result, nil
}

// Evaluate scores the article and persists a match when the score clears the
// question's threshold (inclusive) and no match exists yet for the pair.
// Existing matches are never re-scored: the first score wins. Returns the
// persisted match, or nil when nothing was persisted.
func (m *Matcher) Evaluate(ctx context.Context, article record.CanonicalArticle, q record.ResearchQuestion) (*record.ArticleMatch, error) {
	_, err := m.db.Match(ctx, article.ID, q.ID)
	if err == nil {
		// First score wins; only user annotations may change afterward.
		return nil, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking existing match: %w", err)
	}

	result, err := m.Score(ctx, article, q)
	if err != nil {
		return nil, err
	}
	if result.Score < q.MinRelevanceScore {
		return nil, nil
	}

	match := record.ArticleMatch{
		ArticleID:       article.ID,
		QuestionID:      q.ID,
		RelevanceScore:  result.Score,
		MatchedKeywords: result.MatchedKeywords,
		MatchedTopics:   matchedTerms(q.Topics, article),
		MatchedAuthors:  matchedAuthors(q.Authors, article.Meta.Authors),
		Reasoning:       result.Reasoning,
	}
	if err := m.db.InsertMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("persisting match: %w", err)
	}
	return &match, nil
}

// matchedTerms returns the question terms that appear in the article's
// title, abstract, or keywords, case-insensitively.
func matchedTerms(terms []string, article record.CanonicalArticle) []string {
	haystack := strings.ToLower(article.Meta.Title + " " + article.Meta.Abstract + " " +
		strings.Join(article.Meta.Keywords, " "))
	var out []string
	for _, term := range terms {
		if term != "" && strings.Contains(haystack, strings.ToLower(term)) {
			out = append(out, term)
		}
	}
	return out
}

// matchedAuthors returns the preferred authors present in the article's
// author list, case-insensitively.
func matchedAuthors(preferred, authors []string) []string {
	var out []string
	for _, p := range preferred {
		for _, a := range authors {
			if strings.EqualFold(strings.TrimSpace(p), strings.TrimSpace(a)) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// clampScore forces a raw score into [0,1]. Out-of-range scores are clamped,
// never rejected.
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
