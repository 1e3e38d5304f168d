package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matsen/sift/internal/record"
)

// UpsertCitation writes one citation edge row. Re-writing an existing edge
// fills in previously unknown payload columns; the influential flag is
// sticky once observed.
func (d *DB) UpsertCitation(ctx context.Context, c record.Citation) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO citations (citing_id, cited_id, text, title, authors_json, year, venue, influential, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (citing_id, cited_id) DO UPDATE SET
			text = COALESCE(excluded.text, text),
			title = COALESCE(excluded.title, title),
			authors_json = COALESCE(excluded.authors_json, authors_json),
			year = COALESCE(excluded.year, year),
			venue = COALESCE(excluded.venue, venue),
			influential = MAX(influential, excluded.influential),
			ord = COALESCE(excluded.ord, ord)
	`,
		c.CitingID,
		c.CitedID,
		nullStr(c.Text),
		nullStr(c.Title),
		jsonStrings(c.Authors),
		nullInt(c.Year),
		nullStr(c.Venue),
		boolInt(c.Influential),
		nullInt(c.Order),
	)
	if err != nil {
		return fmt.Errorf("upserting citation %s -> %s: %w", c.CitingID, c.CitedID, err)
	}
	return nil
}

// loadCitations reads every citation edge row.
func (d *DB) loadCitations(ctx context.Context) ([]record.Citation, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT citing_id, cited_id, text, title, authors_json, year, venue, influential, ord
		FROM citations
	`)
	if err != nil {
		return nil, fmt.Errorf("querying citations: %w", err)
	}
	defer rows.Close()

	var citations []record.Citation
	for rows.Next() {
		var (
			c                         record.Citation
			text, title, authorsJSON  sql.NullString
			venue                     sql.NullString
			year, ord                 sql.NullInt64
			influential               int
		)
		if err := rows.Scan(&c.CitingID, &c.CitedID, &text, &title, &authorsJSON,
			&year, &venue, &influential, &ord); err != nil {
			return nil, fmt.Errorf("scanning citation: %w", err)
		}
		c.Text = strOf(text)
		c.Title = strOf(title)
		c.Authors = decodeStrings(authorsJSON)
		c.Year = int(year.Int64)
		c.Venue = strOf(venue)
		c.Influential = influential != 0
		c.Order = int(ord.Int64)
		citations = append(citations, c)
	}
	return citations, rows.Err()
}

// boolInt converts a bool to its SQLite integer form.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
