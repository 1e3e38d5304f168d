// Package discovery runs the standing-question pipeline: fan out to the
// question's selected sources, deduplicate what comes back, fold the unique
// records into the citation graph, and score each against the question.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/sift/internal/dedupe"
	"github.com/matsen/sift/internal/graph"
	"github.com/matsen/sift/internal/identity"
	"github.com/matsen/sift/internal/record"
	"github.com/matsen/sift/internal/source"
)

// DefaultMaxResults caps how many records a single source may contribute to
// one run when the caller does not say otherwise.
const DefaultMaxResults = 50

// QuestionStore loads research question definitions.
type QuestionStore interface {
	Question(ctx context.Context, id string) (record.ResearchQuestion, error)
}

// Evaluator scores an article against a question and persists a match when
// it qualifies. A nil match with a nil error means the article did not
// qualify or was already scored.
type Evaluator interface {
	Evaluate(ctx context.Context, article record.CanonicalArticle, q record.ResearchQuestion) (*record.ArticleMatch, error)
}

// SourceStats is the per-source breakdown of one run.
type SourceStats struct {
	ArticlesFound int `json:"articles_found"`
	Errors        int `json:"errors"`
}

// RunResult is the structured outcome of one discovery run. Runs report
// their failures here instead of raising; only configuration errors abort a
// run before a result exists.
type RunResult struct {
	QuestionID        string                 `json:"question_id"`
	Success           bool                   `json:"success"`
	ArticlesFound     int                    `json:"articles_found"`
	ArticlesProcessed int                    `json:"articles_processed"`
	ArticlesMatched   int                    `json:"articles_matched"`
	Sources           map[string]SourceStats `json:"sources"`
	Errors            []string               `json:"errors,omitempty"`
	Duration          time.Duration          `json:"duration"`
}

// BatchResult aggregates the runs of a discovery batch.
type BatchResult struct {
	Results           []RunResult `json:"results"`
	QuestionsRun      int         `json:"questions_run"`
	QuestionsFailed   int         `json:"questions_failed"`
	ArticlesFound     int         `json:"articles_found"`
	ArticlesProcessed int         `json:"articles_processed"`
	ArticlesMatched   int         `json:"articles_matched"`
	Duration          time.Duration `json:"duration"`
}

// Orchestrator wires sources, the graph store, and the matcher into
// discovery runs. The graph store is not safe for concurrent writers, so a
// mutex serializes the merge-and-score stage across concurrent runs.
type Orchestrator struct {
	registry  *source.Registry
	resolver  *identity.Resolver
	graph     *graph.Store
	matcher   Evaluator
	questions QuestionStore
	log       *zap.Logger

	mu sync.Mutex
}

// New creates an Orchestrator. A nil logger disables logging.
func New(registry *source.Registry, g *graph.Store, matcher Evaluator, questions QuestionStore, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		registry:  registry,
		resolver:  identity.NewResolver(log),
		graph:     g,
		matcher:   matcher,
		questions: questions,
		log:       log,
	}
}

type sourceOutcome struct {
	name    string
	records []record.BibliographicRecord
	err     error
}

// RunDiscoveryForQuestion executes one discovery run. maxResults caps each
// source's contribution; zero means DefaultMaxResults. Source failures are
// isolated into the result's error list; an error return means the run could
// not start (unknown question, invalid definition, no resolvable sources).
func (o *Orchestrator) RunDiscoveryForQuestion(ctx context.Context, questionID string, maxResults int) (RunResult, error) {
	start := time.Now()
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	q, err := o.questions.Question(ctx, questionID)
	if err != nil {
		return RunResult{}, fmt.Errorf("loading question %s: %w", questionID, err)
	}
	if err := q.Validate(); err != nil {
		return RunResult{}, fmt.Errorf("question %s: %w", questionID, err)
	}
	sources := o.registry.Resolve(q.SelectedSources)
	if len(sources) == 0 {
		return RunResult{}, fmt.Errorf("question %s resolves to no sources (selected %v)", questionID, q.SelectedSources)
	}

	result := RunResult{
		QuestionID: questionID,
		Sources:    make(map[string]SourceStats, len(sources)),
	}

	outcomes := o.queryAll(ctx, sources, buildQuery(q), maxResults)

	var all []record.BibliographicRecord
	for _, out := range outcomes {
		stats := SourceStats{ArticlesFound: len(out.records)}
		if out.err != nil {
			stats.Errors = 1
			result.Errors = append(result.Errors, fmt.Sprintf("source %s: %v", out.name, out.err))
			o.log.Warn("source query failed",
				zap.String("source", out.name),
				zap.String("question_id", questionID),
				zap.Error(out.err))
		}
		result.Sources[out.name] = stats
		all = append(all, out.records...)
	}
	result.ArticlesFound = len(all)

	unique := dedupe.Deduplicate(o.log, all)
	result.ArticlesProcessed = len(unique)

	// The graph store expects a single writer.
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, rec := range unique {
		id := o.resolver.Resolve(rec)
		o.graph.AddArticle(ctx, id, rec)

		article, err := o.graph.Article(id)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("article %s: %v", id, err))
			continue
		}
		match, err := o.matcher.Evaluate(ctx, article, q)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("scoring %s: %v", id, err))
			continue
		}
		if match != nil {
			result.ArticlesMatched++
		}
	}
	if err := o.graph.Save(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("saving graph: %v", err))
	}

	result.Success = len(result.Errors) == 0
	result.Duration = time.Since(start)
	o.log.Info("discovery run finished",
		zap.String("question_id", questionID),
		zap.Int("found", result.ArticlesFound),
		zap.Int("processed", result.ArticlesProcessed),
		zap.Int("matched", result.ArticlesMatched),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// queryAll fans out to the sources concurrently. Each branch is failure
// isolated: an error or panic in one source becomes that source's outcome
// and never cancels a sibling.
func (o *Orchestrator) queryAll(ctx context.Context, sources []source.Source, query string, maxResults int) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = sourceOutcome{name: src.Name(), err: fmt.Errorf("panic: %v", r)}
				}
			}()
			recs, derr := src.Discover(ctx, query, maxResults)
			outcomes[i] = sourceOutcome{name: src.Name(), records: recs, err: derr}
			return nil
		})
	}
	// Branches never return errors; failures land in their outcome slot.
	_ = g.Wait()
	return outcomes
}

// RunDiscoveryBatch runs the pipeline for many questions, sequentially or
// concurrently, continuing past any single question's failure. A failed
// question contributes a zero result with its error recorded.
func (o *Orchestrator) RunDiscoveryBatch(ctx context.Context, questionIDs []string, maxResults int, concurrent bool) BatchResult {
	start := time.Now()
	results := make([]RunResult, len(questionIDs))

	run := func(i int, id string) {
		res, err := o.RunDiscoveryForQuestion(ctx, id, maxResults)
		if err != nil {
			res = RunResult{
				QuestionID: id,
				Errors:     []string{err.Error()},
			}
			o.log.Warn("discovery run failed", zap.String("question_id", id), zap.Error(err))
		}
		results[i] = res
	}

	if concurrent {
		var wg sync.WaitGroup
		for i, id := range questionIDs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				run(i, id)
			}()
		}
		wg.Wait()
	} else {
		for i, id := range questionIDs {
			run(i, id)
		}
	}

	batch := BatchResult{Results: results, QuestionsRun: len(results)}
	for _, res := range results {
		if !res.Success {
			batch.QuestionsFailed++
		}
		batch.ArticlesFound += res.ArticlesFound
		batch.ArticlesProcessed += res.ArticlesProcessed
		batch.ArticlesMatched += res.ArticlesMatched
	}
	batch.Duration = time.Since(start)
	return batch
}

// buildQuery renders a question's search query from its keywords and topics,
// falling back to its name.
func buildQuery(q record.ResearchQuestion) string {
	parts := append(append([]string{}, q.Keywords...), q.Topics...)
	if len(parts) == 0 {
		return q.Name
	}
	return strings.Join(parts, " ")
}
