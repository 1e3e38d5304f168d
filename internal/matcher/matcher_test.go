package matcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/matsen/sift/internal/record"
	"github.com/matsen/sift/internal/store"
)

type fakeOracle struct {
	response string
	err      error
	calls    int
}

func (f *fakeOracle) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

type fakeMatchStore struct {
	matches map[string]record.ArticleMatch
	inserts int
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{matches: make(map[string]record.ArticleMatch)}
}

func matchKey(articleID, questionID string) string {
	return articleID + "|" + questionID
}

func (f *fakeMatchStore) Match(ctx context.Context, articleID, questionID string) (record.ArticleMatch, error) {
	m, ok := f.matches[matchKey(articleID, questionID)]
	if !ok {
		return record.ArticleMatch{}, fmt.Errorf("match: %w", store.ErrNotFound)
	}
	return m, nil
}

func (f *fakeMatchStore) InsertMatch(ctx context.Context, m record.ArticleMatch) error {
	f.inserts++
	f.matches[matchKey(m.ArticleID, m.QuestionID)] = m
	return nil
}

func testArticle() record.CanonicalArticle {
	return record.CanonicalArticle{
		ID: "doi:10.1/phylo",
		Meta: record.BibliographicRecord{
			Title:    "Bayesian phylogenetic inference at scale",
			Authors:  []string{"Jane Smith", "Bob Lee"},
			Abstract: "We study variational methods for phylogenetics.",
			Keywords: []string{"phylogenetics", "variational inference"},
		},
	}
}

func testQuestion() record.ResearchQuestion {
	return record.ResearchQuestion{
		ID:                "q-phylo",
		Name:              "Scalable phylogenetics",
		Keywords:          []string{"phylogenetics"},
		Topics:            []string{"variational", "coalescent"},
		Authors:           []string{"jane smith", "Alice Wong"},
		MinRelevanceScore: 0.5,
	}
}

func TestParseScoreResponse(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantOK    bool
		wantScore float64
	}{
		{
			name:      "bare json",
			response:  `{"score": 0.8, "matched_keywords": ["phylogenetics"], "reasoning": "on topic"}`,
			wantOK:    true,
			wantScore: 0.8,
		},
		{
			name:      "fenced json",
			response:  "```json\n{\"score\": 0.7, \"matched_keywords\": [], \"reasoning\": \"ok\"}\n```",
			wantOK:    true,
			wantScore: 0.7,
		},
		{
			name:      "fence without language tag",
			response:  "```\n{\"score\": 0.4, \"matched_keywords\": [], \"reasoning\": \"ok\"}\n```",
			wantOK:    true,
			wantScore: 0.4,
		},
		{
			name:     "prose instead of json",
			response: "This article seems quite relevant to the question.",
			wantOK:   false,
		},
		{
			name:     "truncated json",
			response: `{"score": 0.8, "matched_key`,
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseScoreResponse(tt.response)
			if ok != tt.wantOK {
				t.Fatalf("parseScoreResponse() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Score != tt.wantScore {
				t.Errorf("score = %v, want %v", got.Score, tt.wantScore)
			}
			if ok && got.MatchedKeywords == nil {
				t.Error("matched keywords should never be nil on success")
			}
		})
	}
}

func TestScoreDowngradesParseFailure(t *testing.T) {
	oracle := &fakeOracle{response: "not json at all"}
	m := New(oracle, newFakeMatchStore(), nil)

	got, err := m.Score(context.Background(), testArticle(), testQuestion())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got.Score != 0.0 {
		t.Errorf("score = %v, want 0.0", got.Score)
	}
	if got.Reasoning != "parse failure" {
		t.Errorf("reasoning = %q, want %q", got.Reasoning, "parse failure")
	}
	if len(got.MatchedKeywords) != 0 {
		t.Errorf("matched keywords = %v, want empty", got.MatchedKeywords)
	}
}

func TestScoreClampsOutOfRange(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"above one", `{"score": 1.7, "matched_keywords": [], "reasoning": "x"}`, 1.0},
		{"below zero", `{"score": -0.3, "matched_keywords": [], "reasoning": "x"}`, 0.0},
		{"in range", `{"score": 0.42, "matched_keywords": [], "reasoning": "x"}`, 0.42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(&fakeOracle{response: tt.response}, newFakeMatchStore(), nil)
			got, err := m.Score(context.Background(), testArticle(), testQuestion())
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if got.Score != tt.want {
				t.Errorf("score = %v, want %v", got.Score, tt.want)
			}
		})
	}
}

func TestScoreOracleFailure(t *testing.T) {
	oracleErr := errors.New("connection refused")
	m := New(&fakeOracle{err: oracleErr}, newFakeMatchStore(), nil)

	if _, err := m.Score(context.Background(), testArticle(), testQuestion()); !errors.Is(err, oracleErr) {
		t.Errorf("Score() error = %v, want wrapped oracle error", err)
	}
}

func TestEvaluateThresholdInclusive(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		threshold float64
		wantMatch bool
	}{
		{"above threshold", 0.8, 0.5, true},
		{"exactly at threshold", 0.5, 0.5, true},
		{"below threshold", 0.49, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newFakeMatchStore()
			response := fmt.Sprintf(`{"score": %v, "matched_keywords": ["phylogenetics"], "reasoning": "x"}`, tt.score)
			m := New(&fakeOracle{response: response}, db, nil)

			q := testQuestion()
			q.MinRelevanceScore = tt.threshold
			match, err := m.Evaluate(context.Background(), testArticle(), q)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if (match != nil) != tt.wantMatch {
				t.Fatalf("match persisted = %v, want %v", match != nil, tt.wantMatch)
			}
			if tt.wantMatch && match.RelevanceScore != tt.score {
				t.Errorf("relevance score = %v, want %v", match.RelevanceScore, tt.score)
			}
			wantInserts := 0
			if tt.wantMatch {
				wantInserts = 1
			}
			if db.inserts != wantInserts {
				t.Errorf("inserts = %d, want %d", db.inserts, wantInserts)
			}
		})
	}
}

func TestEvaluateFirstScoreWins(t *testing.T) {
	db := newFakeMatchStore()
	oracle := &fakeOracle{response: `{"score": 0.9, "matched_keywords": [], "reasoning": "x"}`}
	m := New(oracle, db, nil)

	article, q := testArticle(), testQuestion()
	first, err := m.Evaluate(context.Background(), article, q)
	if err != nil {
		t.Fatalf("first Evaluate() error = %v", err)
	}
	if first == nil {
		t.Fatal("first Evaluate() persisted nothing")
	}

	// A later run with a different verdict must not touch the stored match.
	oracle.response = `{"score": 0.1, "matched_keywords": [], "reasoning": "changed my mind"}`
	second, err := m.Evaluate(context.Background(), article, q)
	if err != nil {
		t.Fatalf("second Evaluate() error = %v", err)
	}
	if second != nil {
		t.Error("second Evaluate() should not persist again")
	}
	if oracle.calls != 1 {
		t.Errorf("oracle calls = %d, want 1 (existing matches are not re-scored)", oracle.calls)
	}
	stored, err := db.Match(context.Background(), article.ID, q.ID)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if stored.RelevanceScore != 0.9 {
		t.Errorf("stored score = %v, want original 0.9", stored.RelevanceScore)
	}
}

func TestEvaluateMatchedTermsAndAuthors(t *testing.T) {
	db := newFakeMatchStore()
	m := New(&fakeOracle{response: `{"score": 0.8, "matched_keywords": ["phylogenetics"], "reasoning": "x"}`}, db, nil)

	match, err := m.Evaluate(context.Background(), testArticle(), testQuestion())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if match == nil {
		t.Fatal("no match persisted")
	}
	if len(match.MatchedTopics) != 1 || match.MatchedTopics[0] != "variational" {
		t.Errorf("matched topics = %v, want [variational]", match.MatchedTopics)
	}
	if len(match.MatchedAuthors) != 1 || match.MatchedAuthors[0] != "jane smith" {
		t.Errorf("matched authors = %v, want [jane smith]", match.MatchedAuthors)
	}
}
