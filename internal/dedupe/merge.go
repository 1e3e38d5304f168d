package dedupe

import (
	"reflect"

	"github.com/matsen/sift/internal/record"
)

// Merge folds src into dst using a deterministic, order-independent policy:
//
//   - title, abstract, venue: the longer string wins
//   - authors: the longer list wins; keywords: union with de-duplication
//   - identifiers and URLs: an existing non-empty value is never overwritten
//   - additional metadata: shallow merge, last write wins per key
//   - scrape timestamp: the most recent wins
//
// The names of both contributing sources are accumulated under
// record.MergedFromKey. Returns true if dst changed.
func Merge(dst *record.BibliographicRecord, src record.BibliographicRecord) bool {
	changed := false

	if longerWins(&dst.Title, src.Title) {
		changed = true
	}
	if longerWins(&dst.Abstract, src.Abstract) {
		changed = true
	}
	if longerWins(&dst.Venue, src.Venue) {
		changed = true
	}

	if len(src.Authors) > len(dst.Authors) {
		dst.Authors = append([]string(nil), src.Authors...)
		changed = true
	}
	if merged := unionStrings(dst.Keywords, src.Keywords); len(merged) != len(dst.Keywords) {
		dst.Keywords = merged
		changed = true
	}

	if fillEmpty(&dst.DOI, src.DOI) {
		changed = true
	}
	if fillEmpty(&dst.ArXivID, src.ArXivID) {
		changed = true
	}
	if fillEmpty(&dst.BackupID, src.BackupID) {
		changed = true
	}
	if fillEmpty(&dst.URL, src.URL) {
		changed = true
	}
	if fillEmpty(&dst.PDFURL, src.PDFURL) {
		changed = true
	}
	if fillEmpty(&dst.PublicationDate, src.PublicationDate) {
		changed = true
	}

	for k, v := range src.AdditionalMetadata {
		if k == record.MergedFromKey {
			continue
		}
		if cur, ok := dst.AdditionalMetadata[k]; ok && reflect.DeepEqual(cur, v) {
			continue
		}
		if dst.AdditionalMetadata == nil {
			dst.AdditionalMetadata = make(map[string]any, len(src.AdditionalMetadata))
		}
		dst.AdditionalMetadata[k] = v
		changed = true
	}

	if appendMergedSources(dst, src) {
		changed = true
	}

	if src.ScrapeTimestamp.After(dst.ScrapeTimestamp) {
		dst.ScrapeTimestamp = src.ScrapeTimestamp
		changed = true
	}

	return changed
}

// longerWins replaces *dst when src is strictly longer.
func longerWins(dst *string, src string) bool {
	if len(src) > len(*dst) {
		*dst = src
		return true
	}
	return false
}

// fillEmpty sets *dst from src only when *dst is empty.
func fillEmpty(dst *string, src string) bool {
	if *dst == "" && src != "" {
		*dst = src
		return true
	}
	return false
}

// unionStrings appends elements of b not already present in a, preserving
// order of first appearance.
func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// appendMergedSources accumulates contributing source names on dst.
// Reports a change only when the accumulated list actually grew, so merging
// an already-seen source stays idempotent.
func appendMergedSources(dst *record.BibliographicRecord, src record.BibliographicRecord) bool {
	existing := mergedSources(*dst)

	names := unionStrings(nil, existing)
	names = unionStrings(names, []string{dst.Source})
	names = unionStrings(names, mergedSources(src))
	names = unionStrings(names, []string{src.Source})

	// Drop empties from records that never set a source name.
	filtered := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) == 0 {
		return false
	}
	if len(existing) == 0 && len(filtered) == 1 && filtered[0] == dst.Source {
		// Nothing beyond the record's own source; keep the merge idempotent
		// by not materializing the key.
		return false
	}

	same := len(filtered) == len(existing)
	if same {
		for i := range filtered {
			if filtered[i] != existing[i] {
				same = false
				break
			}
		}
	}

	if dst.AdditionalMetadata == nil {
		dst.AdditionalMetadata = make(map[string]any, 1)
	}
	dst.AdditionalMetadata[record.MergedFromKey] = filtered
	return !same
}

// mergedSources reads the accumulated source list off a record, tolerating
// both []string and []any (the latter appears after a JSON round-trip).
func mergedSources(rec record.BibliographicRecord) []string {
	raw, ok := rec.AdditionalMetadata[record.MergedFromKey]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
