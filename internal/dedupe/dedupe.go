// Package dedupe folds duplicate bibliographic records collected in one
// discovery run into single merged records.
//
// Records from different sources rarely agree on which identifiers they
// carry, so the merger maintains three independent lookup indices: arXiv id,
// DOI, and a title-plus-first-author key. A record matching any index is
// merged into the existing record; identifiers discovered during the merge
// are back-filled into all three indices so later records can match on them.
package dedupe

import (
	"go.uber.org/zap"

	"github.com/matsen/sift/internal/identity"
	"github.com/matsen/sift/internal/record"
)

// Merger accumulates records for one discovery run and deduplicates them
// incrementally. Not safe for concurrent use.
type Merger struct {
	log     *zap.Logger
	records []*record.BibliographicRecord

	// Index values map to positions in records.
	byArXiv map[string]int
	byDOI   map[string]int
	byTitle map[string]int
}

// NewMerger creates an empty Merger. A nil logger disables logging.
func NewMerger(log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{
		log:     log,
		byArXiv: make(map[string]int),
		byDOI:   make(map[string]int),
		byTitle: make(map[string]int),
	}
}

// Add folds one record into the merger. When the record matches an existing
// entry on any index the two are merged in place; match precedence when
// several indices hit is arXiv, then DOI, then title/author.
func (m *Merger) Add(rec record.BibliographicRecord) {
	arxivKey, doiKey, titleKey := indexKeys(rec)

	idx, matchedBy := m.lookup(arxivKey, doiKey, titleKey)
	if idx < 0 {
		m.records = append(m.records, &rec)
		m.reindex(len(m.records) - 1)
		return
	}

	existing := m.records[idx]
	Merge(existing, rec)
	m.log.Debug("merged duplicate record",
		zap.String("title", existing.Title),
		zap.String("matched_by", matchedBy),
		zap.String("source", rec.Source))

	// The merge may have surfaced identifiers the existing record lacked.
	m.reindex(idx)
}

// Records returns the deduplicated records in first-seen order.
func (m *Merger) Records() []record.BibliographicRecord {
	out := make([]record.BibliographicRecord, len(m.records))
	for i, r := range m.records {
		out[i] = *r
	}
	return out
}

// Deduplicate folds a batch of records and returns the deduplicated result.
func Deduplicate(log *zap.Logger, recs []record.BibliographicRecord) []record.BibliographicRecord {
	m := NewMerger(log)
	for _, r := range recs {
		m.Add(r)
	}
	return m.Records()
}

// lookup checks the three indices in precedence order and returns the
// position of the first hit, or -1.
func (m *Merger) lookup(arxivKey, doiKey, titleKey string) (int, string) {
	if arxivKey != "" {
		if idx, ok := m.byArXiv[arxivKey]; ok {
			return idx, "arxiv"
		}
	}
	if doiKey != "" {
		if idx, ok := m.byDOI[doiKey]; ok {
			return idx, "doi"
		}
	}
	if titleKey != "" {
		if idx, ok := m.byTitle[titleKey]; ok {
			return idx, "title"
		}
	}
	return -1, ""
}

// reindex registers every available key of the record at position idx.
func (m *Merger) reindex(idx int) {
	arxivKey, doiKey, titleKey := indexKeys(*m.records[idx])
	if arxivKey != "" {
		m.byArXiv[arxivKey] = idx
	}
	if doiKey != "" {
		m.byDOI[doiKey] = idx
	}
	if titleKey != "" {
		m.byTitle[titleKey] = idx
	}
}

// indexKeys derives the three normalized lookup keys for a record.
// The title key requires both a title and at least one author.
func indexKeys(rec record.BibliographicRecord) (arxivKey, doiKey, titleKey string) {
	if rec.ArXivID != "" {
		arxivKey = identity.NormalizeArXivID(rec.ArXivID)
	}
	if rec.DOI != "" {
		doiKey = identity.NormalizeDOI(rec.DOI)
	}
	if rec.Title != "" && len(rec.Authors) > 0 {
		titleKey = identity.NormalizeTitle(rec.Title) + "|" + identity.NormalizeAuthor(rec.Authors[0])
	}
	return arxivKey, doiKey, titleKey
}
