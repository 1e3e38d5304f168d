package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/sift/internal/record"
)

// maxJSONLLineCapacity is the maximum buffer size for reading JSONL lines
// (1MB per line).
const maxJSONLLineCapacity = 1024 * 1024

// JSONLSource serves records from a local JSONL inbox file, one
// bibliographic record per line. It is the offline counterpart of the
// network sources: scrapers or export tools drop records in the file and
// discovery picks them up from there.
type JSONLSource struct {
	name string
	path string
	log  *zap.Logger
}

// NewJSONLSource creates a JSONL-backed source with the given registry name.
func NewJSONLSource(name, path string, log *zap.Logger) *JSONLSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONLSource{name: name, path: path, log: log}
}

// Name returns the registry name of this source.
func (s *JSONLSource) Name() string { return s.name }

// Discover reads the inbox file and returns records whose title, abstract,
// or keywords contain any of the query's terms, case-insensitively. A
// missing file yields no results. Malformed lines are skipped with a
// warning so one bad record does not block the rest of the inbox.
func (s *JSONLSource) Discover(ctx context.Context, query string, maxResults int) ([]record.BibliographicRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening inbox file: %w", err)
	}
	defer f.Close()

	terms := strings.Fields(strings.ToLower(query))

	var out []record.BibliographicRecord
	scanner := bufio.NewScanner(f)
	buf := make([]byte, maxJSONLLineCapacity)
	scanner.Buffer(buf, maxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec record.BibliographicRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn("skipping malformed inbox line",
				zap.String("path", s.path),
				zap.Int("line", lineNum),
				zap.Error(err))
			continue
		}
		if !matchesQuery(rec, terms) {
			continue
		}
		if rec.Source == "" {
			rec.Source = s.name
		}
		out = append(out, rec)
		if maxResults > 0 && len(out) >= maxResults {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading inbox file: %w", err)
	}
	return out, nil
}

// matchesQuery reports whether any query term appears in the record's
// title, abstract, or keywords. An empty query matches everything.
func matchesQuery(rec record.BibliographicRecord, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	haystack := strings.ToLower(rec.Title + " " + rec.Abstract + " " + strings.Join(rec.Keywords, " "))
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}
