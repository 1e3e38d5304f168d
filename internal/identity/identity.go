// Package identity computes canonical keys for bibliographic records.
//
// Every article node in the citation graph is addressed by exactly one
// canonical key. Keys are derived by priority: DOI, then arXiv id, then a
// backup id from a secondary lookup service, then a sanitized title. The two
// remaining fallbacks (author surname plus random suffix, fully random id)
// are non-deterministic and logged, since records resolved through them can
// never be matched against later observations.
package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matsen/sift/internal/record"
)

var (
	arxivVersionSuffix = regexp.MustCompile(`v\d+$`)
	nonKeyRune         = regexp.MustCompile(`[^a-z0-9 ]+`)
	nonWordRune        = regexp.MustCompile(`[^\w\s]+`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	hyphenRun          = regexp.MustCompile(`-+`)
)

// Resolver computes canonical identity keys.
type Resolver struct {
	log *zap.Logger
}

// NewResolver creates a Resolver. A nil logger disables logging.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log}
}

// Resolve returns the canonical key for a record.
//
// Resolution is deterministic whenever the record carries a DOI, arXiv id,
// backup id, or title. Records with none of those yield a random key and a
// warning: they will form a fresh node on every observation.
func (r *Resolver) Resolve(rec record.BibliographicRecord) string {
	if rec.DOI != "" {
		return "doi:" + strings.ToLower(strings.TrimSpace(rec.DOI))
	}
	if rec.ArXivID != "" {
		return "arxiv:" + NormalizeArXivID(rec.ArXivID)
	}
	if rec.BackupID != "" {
		// Backup ids come pre-formatted from secondary lookup services.
		return rec.BackupID
	}
	if rec.Title != "" {
		return "title:" + sanitizeTitleKey(rec.Title)
	}
	if len(rec.Authors) > 0 {
		surname := firstAuthorSurname(rec.Authors[0])
		if surname != "" {
			key := surname + "-" + shortSuffix()
			r.log.Warn("resolved identity from author surname only (low confidence)",
				zap.String("key", key),
				zap.String("source", rec.Source))
			return key
		}
	}
	key := "article-" + uuid.NewString()
	r.log.Warn("record has no identifying fields, assigned random identity",
		zap.String("key", key),
		zap.String("source", rec.Source))
	return key
}

// NormalizeArXivID lowercases an arXiv id and strips any version suffix, so
// 1234.5678v2 and 1234.5678v3 resolve to the same key.
func NormalizeArXivID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, "arxiv:")
	return arxivVersionSuffix.ReplaceAllString(id, "")
}

// NormalizeDOI lowercases and trims a DOI for index lookups.
func NormalizeDOI(doi string) string {
	return strings.ToLower(strings.TrimSpace(doi))
}

// NormalizeTitle produces the dedup-index form of a title: lowercase, all
// non-word and non-space characters stripped, whitespace collapsed.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = nonWordRune.ReplaceAllString(t, "")
	return whitespaceRun.ReplaceAllString(t, " ")
}

// NormalizeAuthor produces the dedup-index form of an author name:
// lowercase with whitespace collapsed.
func NormalizeAuthor(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	return whitespaceRun.ReplaceAllString(n, " ")
}

// sanitizeTitleKey builds the title-derived canonical key: lowercase, every
// run of non-alphanumeric non-space characters replaced with a single
// hyphen, whitespace collapsed.
func sanitizeTitleKey(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = nonKeyRune.ReplaceAllString(t, "-")
	t = whitespaceRun.ReplaceAllString(t, " ")
	return hyphenRun.ReplaceAllString(t, "-")
}

// firstAuthorSurname extracts the surname of an author display name.
// The last whitespace-separated token is taken as the surname; multi-part
// surnames are known to split incorrectly.
func firstAuthorSurname(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	surname := fields[len(fields)-1]
	return nonKeyRune.ReplaceAllString(surname, "")
}

// shortSuffix returns an 8-character random suffix.
func shortSuffix() string {
	return uuid.NewString()[:8]
}
