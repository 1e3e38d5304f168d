// Package record defines the core domain types for discovered literature:
// raw bibliographic records as returned by sources, canonical articles as
// stored in the citation graph, citation edge payloads, research questions,
// and question matches.
package record

import (
	"errors"
	"time"
)

// BibliographicRecord is a raw record returned by a single discovery source.
// Records are ephemeral: they exist for the duration of one discovery run and
// are folded into canonical articles by the dedup merger.
type BibliographicRecord struct {
	Title           string   `json:"title"`
	Authors         []string `json:"authors,omitempty"`
	Abstract        string   `json:"abstract,omitempty"`
	DOI             string   `json:"doi,omitempty"`
	ArXivID         string   `json:"arxiv_id,omitempty"`
	BackupID        string   `json:"backup_id,omitempty"` // From secondary lookup services
	Venue           string   `json:"venue,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty"` // YYYY-MM-DD, may be partial
	URL             string   `json:"url,omitempty"`
	PDFURL          string   `json:"pdf_url,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`

	// Provenance
	Source          string    `json:"source"`
	ScrapeTimestamp time.Time `json:"scrape_timestamp"`

	// Source-specific extras that have no typed field. Merged shallowly,
	// last write wins per key.
	AdditionalMetadata map[string]any `json:"additional_metadata,omitempty"`
}

// MergedFromKey is the AdditionalMetadata key under which the dedup merger
// accumulates the names of all sources that contributed to a record.
const MergedFromKey = "merged_from_sources"

// CanonicalArticle is a node in the citation graph: the merged view of every
// observation of one paper, addressed by its canonical identity key.
type CanonicalArticle struct {
	ID   string              `json:"id"`
	Meta BibliographicRecord `json:"meta"`

	// Analysis payload produced by an external document-analysis step.
	Analysis map[string]any `json:"analysis,omitempty"`
	Model    string         `json:"model,omitempty"` // Model that produced Analysis

	// File references
	PDFPath      string `json:"pdf_path,omitempty"`
	MarkdownPath string `json:"markdown_path,omitempty"`
	NotePath     string `json:"note_path,omitempty"` // Obsidian note reference
}

// Citation is a directed edge in the citation graph: CitingID cites CitedID.
// The payload carries metadata extracted from the citing document.
type Citation struct {
	CitingID string `json:"citing_id"`
	CitedID  string `json:"cited_id"`

	Text        string   `json:"text,omitempty"` // Raw extracted citation text
	Title       string   `json:"title,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Year        int      `json:"year,omitempty"`
	Venue       string   `json:"venue,omitempty"`
	Influential bool     `json:"influential,omitempty"`
	Order       int      `json:"order,omitempty"` // Position in the citing document's reference list
}

// ExtractedCitation is one entry produced by the upstream citation-extraction
// collaborator for a processed document. Exactly one entry should carry
// IsDocumentCitation; the graph store falls back to the first entry when none
// does.
type ExtractedCitation struct {
	Text        string   `json:"text,omitempty"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Year        int      `json:"year,omitempty"`
	Venue       string   `json:"venue,omitempty"`
	Influential bool     `json:"influential,omitempty"`

	DOI     string `json:"doi,omitempty"`
	ArXivID string `json:"arxiv_id,omitempty"`

	IsDocumentCitation bool `json:"is_document_citation,omitempty"`
}

// ResearchQuestion is a standing query that discovery runs evaluate sources
// against.
type ResearchQuestion struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`
	Topics   []string `json:"topics,omitempty" yaml:"topics"`
	Authors  []string `json:"authors,omitempty" yaml:"authors"`

	// SelectedSources names the registered sources to query. The single
	// entry "*" expands to every registered source.
	SelectedSources []string `json:"selected_sources,omitempty" yaml:"selected_sources"`

	MinRelevanceScore float64 `json:"min_relevance_score" yaml:"min_relevance_score"`
	Schedule          string  `json:"schedule,omitempty" yaml:"schedule"`
}

// ArticleMatch records that an article cleared a question's relevance
// threshold. Unique per (article, question); after creation only the
// sentiment, viewed, and bookmarked fields may change.
type ArticleMatch struct {
	ArticleID      string  `json:"article_id"`
	QuestionID     string  `json:"question_id"`
	RelevanceScore float64 `json:"relevance_score"`

	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	MatchedTopics   []string `json:"matched_topics,omitempty"`
	MatchedAuthors  []string `json:"matched_authors,omitempty"`
	Reasoning       string   `json:"reasoning,omitempty"`

	UserSentiment string    `json:"user_sentiment,omitempty"`
	Viewed        bool      `json:"viewed"`
	Bookmarked    bool      `json:"bookmarked"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validation errors.
var (
	ErrEmptyQuestionID   = errors.New("question id is required")
	ErrEmptyQuestionName = errors.New("question name is required")
	ErrScoreOutOfRange   = errors.New("min_relevance_score must be in [0,1]")
	ErrEmptyCitingID     = errors.New("citing_id is required")
	ErrEmptyCitedID      = errors.New("cited_id is required")
	ErrSelfCitation      = errors.New("citing_id and cited_id cannot be the same")
)

// Validate checks a research question for configuration errors.
// A malformed question is a configuration-class error and is raised to the
// caller rather than absorbed into a run result.
func (q *ResearchQuestion) Validate() error {
	if q.ID == "" {
		return ErrEmptyQuestionID
	}
	if q.Name == "" {
		return ErrEmptyQuestionName
	}
	if q.MinRelevanceScore < 0 || q.MinRelevanceScore > 1 {
		return ErrScoreOutOfRange
	}
	return nil
}

// Validate checks a citation edge for structural errors.
func (c *Citation) Validate() error {
	if c.CitingID == "" {
		return ErrEmptyCitingID
	}
	if c.CitedID == "" {
		return ErrEmptyCitedID
	}
	if c.CitingID == c.CitedID {
		return ErrSelfCitation
	}
	return nil
}
