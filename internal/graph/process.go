package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/sift/internal/record"
)

// extractionSource is the source name recorded on nodes created from
// citation-extraction output rather than a discovery source.
const extractionSource = "citation_extraction"

// ErrNoCitations reports a ProcessCitations call with an empty extraction.
var ErrNoCitations = errors.New("no citations to process")

// ProcessCitations ingests the citation-extraction output for one document.
//
// The entry flagged IsDocumentCitation identifies the document itself; when
// none is flagged the first entry is used and a warning logged. One flagged
// entry is a precondition owed by the extraction collaborator; the fallback
// is deliberately preserved rather than guessed around. The chosen primary id
// is returned so callers can audit the selection.
//
// Every other entry becomes a node plus a directed edge primary -> cited.
// Persistence is deferred and flushed once at the end of the batch. Afterward
// note artifacts are regenerated for every node exactly one hop from the
// primary in either direction.
func (s *Store) ProcessCitations(ctx context.Context, pdfPath, markdownPath string, analysis map[string]any, citations []record.ExtractedCitation) (string, error) {
	if len(citations) == 0 {
		return "", ErrNoCitations
	}

	docIdx := -1
	for i := range citations {
		if citations[i].IsDocumentCitation {
			docIdx = i
			break
		}
	}
	if docIdx < 0 {
		docIdx = 0
		s.log.Warn("no citation flagged as the document itself, falling back to first entry",
			zap.String("pdf_path", pdfPath),
			zap.String("first_title", citations[0].Title))
	}

	s.batch = true
	defer func() { s.batch = false }()

	primaryRec := extractionRecord(citations[docIdx])
	primaryID := s.resolver.Resolve(primaryRec)
	s.AddArticle(ctx, primaryID, primaryRec,
		WithAnalysis(analysis, ""),
		WithPaths(pdfPath, markdownPath))

	order := 0
	for i, cit := range citations {
		if i == docIdx {
			continue
		}
		order++

		citedID := s.resolver.Resolve(extractionRecord(cit))
		s.AddArticle(ctx, citedID, extractionRecord(cit))

		err := s.AddCitation(ctx, record.Citation{
			CitingID:    primaryID,
			CitedID:     citedID,
			Text:        cit.Text,
			Title:       cit.Title,
			Authors:     cit.Authors,
			Year:        cit.Year,
			Venue:       cit.Venue,
			Influential: cit.Influential,
			Order:       order,
		})
		if err != nil {
			// Missing endpoints and self-citations are skips, not failures.
			if errors.Is(err, ErrMissingEndpoint) || errors.Is(err, record.ErrSelfCitation) {
				continue
			}
			return primaryID, fmt.Errorf("adding citation %s -> %s: %w", primaryID, citedID, err)
		}
	}

	if err := s.Save(ctx); err != nil {
		return primaryID, fmt.Errorf("saving citation batch: %w", err)
	}

	s.regenerateNeighborNotes(primaryID)
	return primaryID, nil
}

// regenerateNeighborNotes refreshes note artifacts for the 1-hop
// neighborhood of the primary node. Bounded to direct neighbors, not the
// full reachability closure. Failures are logged per node.
func (s *Store) regenerateNeighborNotes(primaryID string) {
	if s.notes == nil {
		return
	}

	neighbors := make(map[string]struct{})
	for cited := range s.out[primaryID] {
		neighbors[cited] = struct{}{}
	}
	for citing := range s.in[primaryID] {
		neighbors[citing] = struct{}{}
	}

	for id := range neighbors {
		node := s.nodes[id]
		outgoing := make([]record.Citation, 0, len(s.out[id]))
		for _, c := range s.out[id] {
			outgoing = append(outgoing, *c)
		}

		notePath, pdfPath, mdPath, err := s.notes.CreateNote(node.PDFPath, node.MarkdownPath, node.Analysis, outgoing)
		if err != nil {
			s.log.Warn("note regeneration failed",
				zap.String("article_id", id),
				zap.Error(err))
			continue
		}
		node.NotePath = notePath
		if pdfPath != "" {
			node.PDFPath = pdfPath
		}
		if mdPath != "" {
			node.MarkdownPath = mdPath
		}
		// Picked up by the next save.
		s.dirtyNodes[id] = struct{}{}
	}
}

// extractionRecord converts one extraction entry to a bibliographic record
// for identity resolution and node metadata.
func extractionRecord(c record.ExtractedCitation) record.BibliographicRecord {
	rec := record.BibliographicRecord{
		Title:           c.Title,
		Authors:         c.Authors,
		DOI:             c.DOI,
		ArXivID:         c.ArXivID,
		Venue:           c.Venue,
		Source:          extractionSource,
		ScrapeTimestamp: time.Now().UTC(),
	}
	if c.Year > 0 {
		rec.PublicationDate = fmt.Sprintf("%04d", c.Year)
	}
	return rec
}
