package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matsen/sift/internal/record"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "sift.db"), nil)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func article(id, title, doi string) record.CanonicalArticle {
	return record.CanonicalArticle{
		ID: id,
		Meta: record.BibliographicRecord{
			Title:           title,
			DOI:             doi,
			Source:          "test",
			ScrapeTimestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestUpsertArticle_InsertAndLoad(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	a := article("doi:10.1/a", "A Paper", "10.1/a")
	a.Meta.Authors = []string{"Ada Lovelace", "Alan Turing"}
	a.Meta.Keywords = []string{"computing"}
	a.Analysis = map[string]any{"summary": "s"}

	if err := d.UpsertArticle(ctx, a); err != nil {
		t.Fatal(err)
	}

	articles, citations, err := d.LoadGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 1 || len(citations) != 0 {
		t.Fatalf("loaded %d articles, %d citations", len(articles), len(citations))
	}
	got := articles[0]
	if got.ID != a.ID || got.Meta.Title != "A Paper" || len(got.Meta.Authors) != 2 {
		t.Errorf("round-tripped article = %+v", got)
	}
	if got.Analysis["summary"] != "s" {
		t.Errorf("analysis lost: %+v", got.Analysis)
	}
	if !got.Meta.ScrapeTimestamp.Equal(a.Meta.ScrapeTimestamp) {
		t.Errorf("timestamp = %v", got.Meta.ScrapeTimestamp)
	}
}

func TestUpsertArticle_CoalescePreservesColumns(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	full := article("doi:10.1/a", "A Paper", "10.1/a")
	full.Meta.Abstract = "the abstract"
	full.Meta.URL = "https://example.org/a"
	if err := d.UpsertArticle(ctx, full); err != nil {
		t.Fatal(err)
	}

	// Partial re-save with empty abstract and URL must not erase them.
	partial := article("doi:10.1/a", "A Paper", "10.1/a")
	partial.PDFPath = "/pdfs/a.pdf"
	if err := d.UpsertArticle(ctx, partial); err != nil {
		t.Fatal(err)
	}

	articles, _, err := d.LoadGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 1 {
		t.Fatalf("article count = %d, want 1", len(articles))
	}
	got := articles[0]
	if got.Meta.Abstract != "the abstract" {
		t.Errorf("abstract erased by partial write: %q", got.Meta.Abstract)
	}
	if got.Meta.URL != "https://example.org/a" {
		t.Errorf("url erased: %q", got.Meta.URL)
	}
	if got.PDFPath != "/pdfs/a.pdf" {
		t.Errorf("new column not written: %q", got.PDFPath)
	}
}

func TestUpsertArticle_ResolvesRowByWeakerIdentifier(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	// First seen under a title-derived id with no DOI.
	weak := record.CanonicalArticle{
		ID:   "title:a paper",
		Meta: record.BibliographicRecord{Title: "A Paper", Source: "test"},
	}
	if err := d.UpsertArticle(ctx, weak); err != nil {
		t.Fatal(err)
	}

	// Later observed with a DOI: same title must resolve to the same row,
	// migrating it to the stronger canonical id.
	strong := article("doi:10.1/a", "A Paper", "10.1/a")
	if err := d.UpsertArticle(ctx, strong); err != nil {
		t.Fatal(err)
	}

	articles, _, err := d.LoadGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 1 {
		t.Fatalf("article count = %d, want 1 (row should be reused)", len(articles))
	}
	if articles[0].ID != "doi:10.1/a" {
		t.Errorf("row id = %q, want migrated canonical id", articles[0].ID)
	}
	if articles[0].Meta.DOI != "10.1/a" {
		t.Errorf("doi = %q", articles[0].Meta.DOI)
	}
}

func TestUpsertCitation_RoundTripAndMerge(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if err := d.UpsertArticle(ctx, article("a", "A", "10.1/a")); err != nil {
		t.Fatal(err)
	}
	if err := d.UpsertArticle(ctx, article("b", "B", "10.1/b")); err != nil {
		t.Fatal(err)
	}

	if err := d.UpsertCitation(ctx, record.Citation{CitingID: "a", CitedID: "b", Text: "raw text"}); err != nil {
		t.Fatal(err)
	}
	if err := d.UpsertCitation(ctx, record.Citation{CitingID: "a", CitedID: "b", Year: 2020, Influential: true}); err != nil {
		t.Fatal(err)
	}

	_, citations, err := d.LoadGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(citations) != 1 {
		t.Fatalf("citation count = %d, want 1", len(citations))
	}
	c := citations[0]
	if c.Text != "raw text" || c.Year != 2020 || !c.Influential {
		t.Errorf("merged citation = %+v", c)
	}
}

func TestQuestions_RoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	q := record.ResearchQuestion{
		ID:                "q1",
		Name:              "Transformers",
		Keywords:          []string{"transformer", "attention"},
		SelectedSources:   []string{"*"},
		MinRelevanceScore: 0.5,
	}
	if err := d.UpsertQuestion(ctx, q); err != nil {
		t.Fatal(err)
	}

	got, err := d.Question(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Transformers" || got.MinRelevanceScore != 0.5 || len(got.Keywords) != 2 {
		t.Errorf("question = %+v", got)
	}

	if _, err := d.Question(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing question error = %v", err)
	}

	if err := d.UpsertQuestion(ctx, record.ResearchQuestion{ID: "bad", Name: "n", MinRelevanceScore: 1.5}); err == nil {
		t.Error("out-of-range threshold accepted")
	}
}

func TestMatches_UniqueAndMutableFields(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	m := record.ArticleMatch{
		ArticleID:      "doi:10.1/a",
		QuestionID:     "q1",
		RelevanceScore: 0.8,
		Reasoning:      "on topic",
	}
	if err := d.InsertMatch(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := d.InsertMatch(ctx, m); err == nil {
		t.Error("duplicate (article, question) match accepted")
	}

	if err := d.SetMatchSentiment(ctx, m.ArticleID, m.QuestionID, "interested"); err != nil {
		t.Fatal(err)
	}
	if err := d.SetMatchViewed(ctx, m.ArticleID, m.QuestionID, true); err != nil {
		t.Fatal(err)
	}

	got, err := d.Match(ctx, m.ArticleID, m.QuestionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RelevanceScore != 0.8 || got.UserSentiment != "interested" || !got.Viewed {
		t.Errorf("match = %+v", got)
	}

	if err := d.SetMatchSentiment(ctx, "nope", "q1", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("sentiment on missing match error = %v", err)
	}
}
