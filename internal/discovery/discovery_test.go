package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/matsen/sift/internal/graph"
	"github.com/matsen/sift/internal/record"
	"github.com/matsen/sift/internal/source"
)

type memPersister struct{}

func (memPersister) LoadGraph(ctx context.Context) ([]record.CanonicalArticle, []record.Citation, error) {
	return nil, nil, nil
}
func (memPersister) UpsertArticle(ctx context.Context, a record.CanonicalArticle) error { return nil }
func (memPersister) UpsertCitation(ctx context.Context, c record.Citation) error        { return nil }

type fixedSource struct {
	name    string
	records []record.BibliographicRecord
	err     error
	panics  bool
}

func (s fixedSource) Name() string { return s.name }

func (s fixedSource) Discover(ctx context.Context, query string, maxResults int) ([]record.BibliographicRecord, error) {
	if s.panics {
		panic("source blew up")
	}
	return s.records, s.err
}

// thresholdEvaluator matches articles whose abstract contains "relevant",
// once per article.
type thresholdEvaluator struct {
	seen map[string]bool
}

func newThresholdEvaluator() *thresholdEvaluator {
	return &thresholdEvaluator{seen: make(map[string]bool)}
}

func (e *thresholdEvaluator) Evaluate(ctx context.Context, article record.CanonicalArticle, q record.ResearchQuestion) (*record.ArticleMatch, error) {
	if e.seen[article.ID] {
		return nil, nil
	}
	e.seen[article.ID] = true
	if !strings.Contains(article.Meta.Abstract, "relevant") {
		return nil, nil
	}
	return &record.ArticleMatch{ArticleID: article.ID, QuestionID: q.ID, RelevanceScore: 0.9}, nil
}

type mapQuestions map[string]record.ResearchQuestion

func (m mapQuestions) Question(ctx context.Context, id string) (record.ResearchQuestion, error) {
	q, ok := m[id]
	if !ok {
		return record.ResearchQuestion{}, fmt.Errorf("question %s not found", id)
	}
	return q, nil
}

func rec(title, doi, src, abstract string) record.BibliographicRecord {
	return record.BibliographicRecord{Title: title, DOI: doi, Source: src, Abstract: abstract}
}

func newOrchestrator(t *testing.T, sources []source.Source, questions mapQuestions) (*Orchestrator, *graph.Store) {
	t.Helper()
	reg := source.NewRegistry(nil)
	for _, s := range sources {
		reg.Register(s)
	}
	g := graph.NewStore(memPersister{}, nil)
	return New(reg, g, newThresholdEvaluator(), questions, nil), g
}

func TestRunDiscoveryPartialFailureIsolation(t *testing.T) {
	sources := []source.Source{
		fixedSource{name: "arxiv", records: []record.BibliographicRecord{
			rec("Variational phylogenetics", "10.1/a", "arxiv", "very relevant study"),
			rec("Coalescent models", "10.1/b", "arxiv", "background material"),
		}},
		fixedSource{name: "openalex", err: errors.New("rate limited")},
		fixedSource{name: "inbox", records: []record.BibliographicRecord{
			rec("Variational phylogenetics (preprint)", "10.1/a", "inbox", "very relevant study"),
			rec("Protein folding", "10.1/c", "inbox", "relevant adjacent work"),
			rec("Economics of trade", "10.1/d", "inbox", "unrelated"),
		}},
	}
	questions := mapQuestions{
		"q1": {ID: "q1", Name: "Scalable phylogenetics", Keywords: []string{"phylogenetics"},
			SelectedSources: []string{"*"}, MinRelevanceScore: 0.5},
	}
	o, g := newOrchestrator(t, sources, questions)

	res, err := o.RunDiscoveryForQuestion(context.Background(), "q1", 0)
	if err != nil {
		t.Fatalf("RunDiscoveryForQuestion() error = %v", err)
	}
	if res.Success {
		t.Error("run with a failed source should not report success")
	}
	if res.ArticlesFound != 5 {
		t.Errorf("articles found = %d, want 5", res.ArticlesFound)
	}
	if res.ArticlesProcessed != 4 {
		t.Errorf("articles processed = %d, want 4 (one DOI duplicate)", res.ArticlesProcessed)
	}
	if res.ArticlesMatched != 2 {
		t.Errorf("articles matched = %d, want 2", res.ArticlesMatched)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "openalex") {
		t.Errorf("errors = %v, want exactly one openalex entry", res.Errors)
	}
	if res.Sources["openalex"].Errors != 1 {
		t.Errorf("openalex error count = %d, want 1", res.Sources["openalex"].Errors)
	}
	if res.Sources["arxiv"].ArticlesFound != 2 || res.Sources["inbox"].ArticlesFound != 3 {
		t.Errorf("per-source counts = %v", res.Sources)
	}
	if g.NodeCount() != 4 {
		t.Errorf("graph nodes = %d, want 4", g.NodeCount())
	}
}

func TestRunDiscoveryPanicIsolation(t *testing.T) {
	sources := []source.Source{
		fixedSource{name: "bad", panics: true},
		fixedSource{name: "good", records: []record.BibliographicRecord{
			rec("Survivor paper", "10.1/s", "good", "relevant"),
		}},
	}
	questions := mapQuestions{
		"q1": {ID: "q1", Name: "q", SelectedSources: []string{"*"}, MinRelevanceScore: 0.5},
	}
	o, _ := newOrchestrator(t, sources, questions)

	res, err := o.RunDiscoveryForQuestion(context.Background(), "q1", 0)
	if err != nil {
		t.Fatalf("RunDiscoveryForQuestion() error = %v", err)
	}
	if res.ArticlesProcessed != 1 {
		t.Errorf("articles processed = %d, want 1 from the surviving source", res.ArticlesProcessed)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "panic") {
		t.Errorf("errors = %v, want one panic entry", res.Errors)
	}
}

func TestRunDiscoveryConfigurationErrors(t *testing.T) {
	sources := []source.Source{fixedSource{name: "arxiv"}}
	questions := mapQuestions{
		"no-sources": {ID: "no-sources", Name: "q", SelectedSources: []string{"scopus"}, MinRelevanceScore: 0.5},
		"invalid":    {ID: "invalid", Name: "q", SelectedSources: []string{"*"}, MinRelevanceScore: 1.5},
	}
	o, _ := newOrchestrator(t, sources, questions)

	tests := []struct {
		name       string
		questionID string
	}{
		{"unknown question", "missing"},
		{"invalid threshold", "invalid"},
		{"no resolvable sources", "no-sources"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.RunDiscoveryForQuestion(context.Background(), tt.questionID, 0); err == nil {
				t.Error("expected a configuration error")
			}
		})
	}
}

func TestRunDiscoveryRerunDoesNotRematch(t *testing.T) {
	sources := []source.Source{
		fixedSource{name: "arxiv", records: []record.BibliographicRecord{
			rec("Stable paper", "10.1/s", "arxiv", "relevant"),
		}},
	}
	questions := mapQuestions{
		"q1": {ID: "q1", Name: "q", SelectedSources: []string{"*"}, MinRelevanceScore: 0.5},
	}
	o, g := newOrchestrator(t, sources, questions)

	first, err := o.RunDiscoveryForQuestion(context.Background(), "q1", 0)
	if err != nil {
		t.Fatalf("first run error = %v", err)
	}
	second, err := o.RunDiscoveryForQuestion(context.Background(), "q1", 0)
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if first.ArticlesMatched != 1 || second.ArticlesMatched != 0 {
		t.Errorf("matched = %d then %d, want 1 then 0", first.ArticlesMatched, second.ArticlesMatched)
	}
	if g.NodeCount() != 1 {
		t.Errorf("graph nodes = %d, want 1 after re-run", g.NodeCount())
	}
}

func TestRunDiscoveryBatch(t *testing.T) {
	sources := []source.Source{
		fixedSource{name: "arxiv", records: []record.BibliographicRecord{
			rec("Paper one", "10.1/x", "arxiv", "relevant"),
			rec("Paper two", "10.1/y", "arxiv", "nothing"),
		}},
	}
	questions := mapQuestions{
		"q1": {ID: "q1", Name: "first", SelectedSources: []string{"*"}, MinRelevanceScore: 0.5},
		"q2": {ID: "q2", Name: "second", SelectedSources: []string{"*"}, MinRelevanceScore: 0.5},
	}

	for _, concurrent := range []bool{false, true} {
		name := "sequential"
		if concurrent {
			name = "concurrent"
		}
		t.Run(name, func(t *testing.T) {
			o, _ := newOrchestrator(t, sources, questions)
			batch := o.RunDiscoveryBatch(context.Background(), []string{"q1", "missing", "q2"}, 0, concurrent)

			if batch.QuestionsRun != 3 {
				t.Errorf("questions run = %d, want 3", batch.QuestionsRun)
			}
			if batch.QuestionsFailed != 1 {
				t.Errorf("questions failed = %d, want 1", batch.QuestionsFailed)
			}
			if batch.ArticlesFound != 4 {
				t.Errorf("articles found = %d, want 4", batch.ArticlesFound)
			}
			// The same two articles reach the graph from both questions, but
			// the evaluator scores each article once.
			if batch.ArticlesMatched != 1 {
				t.Errorf("articles matched = %d, want 1", batch.ArticlesMatched)
			}
			if results := batch.Results; len(results) != 3 || results[1].QuestionID != "missing" {
				t.Errorf("results = %+v, want ordered per input", results)
			}
			if len(batch.Results[1].Errors) != 1 {
				t.Errorf("failed question errors = %v, want one entry", batch.Results[1].Errors)
			}
		})
	}
}
