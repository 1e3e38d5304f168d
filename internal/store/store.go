// Package store persists the citation graph, research questions, and
// question matches to SQLite.
//
// Writes follow COALESCE(new, old) semantics: a partial update never erases
// a previously known column value. Article rows are resolved by trying DOI,
// then arXiv id, then title equality, since a node may have first been seen
// under a weaker identifier and later acquired a stronger one.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite database connection.
type DB struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens or creates the SQLite database at path. A nil logger disables
// logging.
func Open(path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db, log: log}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates all tables and indexes if they don't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			title TEXT,
			authors_json TEXT,
			abstract TEXT,
			doi TEXT,
			arxiv_id TEXT,
			backup_id TEXT,
			venue TEXT,
			publication_date TEXT,
			url TEXT,
			pdf_url TEXT,
			keywords_json TEXT,
			source TEXT,
			scrape_timestamp TEXT,
			additional_metadata_json TEXT,
			analysis_json TEXT,
			model TEXT,
			pdf_path TEXT,
			markdown_path TEXT,
			note_path TEXT
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_doi ON articles(doi) WHERE doi IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_arxiv ON articles(arxiv_id) WHERE arxiv_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_articles_title ON articles(title);

		CREATE TABLE IF NOT EXISTS citations (
			citing_id TEXT NOT NULL,
			cited_id TEXT NOT NULL,
			text TEXT,
			title TEXT,
			authors_json TEXT,
			year INTEGER,
			venue TEXT,
			influential INTEGER NOT NULL DEFAULT 0,
			ord INTEGER,
			PRIMARY KEY (citing_id, cited_id)
		);

		CREATE INDEX IF NOT EXISTS idx_citations_cited ON citations(cited_id);

		CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			keywords_json TEXT,
			topics_json TEXT,
			authors_json TEXT,
			selected_sources_json TEXT,
			min_relevance_score REAL NOT NULL,
			schedule TEXT
		);

		CREATE TABLE IF NOT EXISTS matches (
			article_id TEXT NOT NULL,
			question_id TEXT NOT NULL,
			relevance_score REAL NOT NULL,
			matched_keywords_json TEXT,
			matched_topics_json TEXT,
			matched_authors_json TEXT,
			reasoning TEXT,
			user_sentiment TEXT,
			viewed INTEGER NOT NULL DEFAULT 0,
			bookmarked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT,
			PRIMARY KEY (article_id, question_id)
		);

		CREATE INDEX IF NOT EXISTS idx_matches_question ON matches(question_id);
	`
	_, err := db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure (the concurrent-writer race case).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullStr maps "" to NULL so COALESCE updates preserve existing values.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt maps 0 to NULL.
func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// jsonStrings marshals a string list, mapping empty to NULL.
func jsonStrings(list []string) any {
	if len(list) == 0 {
		return nil
	}
	data, _ := json.Marshal(list)
	return string(data)
}

// jsonMap marshals a map, mapping empty to NULL.
func jsonMap(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	data, _ := json.Marshal(m)
	return string(data)
}

// decodeStrings unmarshals a JSON string-list column.
func decodeStrings(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return out
}

// decodeMap unmarshals a JSON object column.
func decodeMap(ns sql.NullString) map[string]any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return out
}

// strOf unwraps a nullable text column.
func strOf(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
