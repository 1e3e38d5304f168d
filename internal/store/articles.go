package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/sift/internal/record"
)

const articleColumns = `id, title, authors_json, abstract, doi, arxiv_id, backup_id,
	venue, publication_date, url, pdf_url, keywords_json, source, scrape_timestamp,
	additional_metadata_json, analysis_json, model, pdf_path, markdown_path, note_path`

// UpsertArticle writes one article row, preserving existing non-null column
// values when the new value is null.
//
// A unique-constraint violation on insert (a concurrent writer won the race)
// is retried once as an update against the now-visible row; a second failure
// is logged and the save skipped, which is not fatal to the enclosing batch.
func (d *DB) UpsertArticle(ctx context.Context, a record.CanonicalArticle) error {
	rowID, err := d.resolveArticleRow(ctx, a)
	if err != nil {
		return fmt.Errorf("resolving article row: %w", err)
	}

	if rowID != "" {
		return d.updateArticle(ctx, rowID, a)
	}

	err = d.insertArticle(ctx, a)
	if !isUniqueViolation(err) {
		return err
	}

	// Concurrent-writer race: the row appeared between resolve and insert.
	// Retry exactly once as an update.
	rowID, rerr := d.resolveArticleRow(ctx, a)
	if rerr != nil || rowID == "" {
		d.log.Warn("article insert raced and retry could not locate row, skipping save",
			zap.String("article_id", a.ID),
			zap.Error(err))
		return nil
	}
	if uerr := d.updateArticle(ctx, rowID, a); uerr != nil {
		d.log.Warn("article upsert retry failed, skipping save",
			zap.String("article_id", a.ID),
			zap.Error(uerr))
	}
	return nil
}

// resolveArticleRow finds an existing row for the article by trying doi,
// then arxiv_id, then title equality, then the canonical id itself.
// Returns "" when no row matches.
func (d *DB) resolveArticleRow(ctx context.Context, a record.CanonicalArticle) (string, error) {
	type probe struct {
		column string
		value  string
	}
	probes := []probe{
		{"doi", a.Meta.DOI},
		{"arxiv_id", a.Meta.ArXivID},
		{"title", a.Meta.Title},
		{"id", a.ID},
	}

	for _, p := range probes {
		if p.value == "" {
			continue
		}
		var id string
		err := d.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT id FROM articles WHERE %s = ?", p.column), p.value).Scan(&id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return "", err
		}
		return id, nil
	}
	return "", nil
}

func (d *DB) insertArticle(ctx context.Context, a record.CanonicalArticle) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, articleValues(a)...)
	return err
}

// updateArticle merges the article onto the row rowID with COALESCE(new, old)
// semantics, also migrating the row to the article's canonical id in case a
// stronger identifier was acquired.
func (d *DB) updateArticle(ctx context.Context, rowID string, a record.CanonicalArticle) error {
	vals := articleValues(a)
	vals = append(vals, rowID)
	_, err := d.db.ExecContext(ctx, `
		UPDATE articles SET
			id = ?,
			title = COALESCE(?, title),
			authors_json = COALESCE(?, authors_json),
			abstract = COALESCE(?, abstract),
			doi = COALESCE(?, doi),
			arxiv_id = COALESCE(?, arxiv_id),
			backup_id = COALESCE(?, backup_id),
			venue = COALESCE(?, venue),
			publication_date = COALESCE(?, publication_date),
			url = COALESCE(?, url),
			pdf_url = COALESCE(?, pdf_url),
			keywords_json = COALESCE(?, keywords_json),
			source = COALESCE(?, source),
			scrape_timestamp = COALESCE(?, scrape_timestamp),
			additional_metadata_json = COALESCE(?, additional_metadata_json),
			analysis_json = COALESCE(?, analysis_json),
			model = COALESCE(?, model),
			pdf_path = COALESCE(?, pdf_path),
			markdown_path = COALESCE(?, markdown_path),
			note_path = COALESCE(?, note_path)
		WHERE id = ?
	`, vals...)
	return err
}

// articleValues builds the parameter list in articleColumns order.
func articleValues(a record.CanonicalArticle) []any {
	var ts any
	if !a.Meta.ScrapeTimestamp.IsZero() {
		ts = a.Meta.ScrapeTimestamp.UTC().Format(time.RFC3339)
	}
	return []any{
		a.ID,
		nullStr(a.Meta.Title),
		jsonStrings(a.Meta.Authors),
		nullStr(a.Meta.Abstract),
		nullStr(a.Meta.DOI),
		nullStr(a.Meta.ArXivID),
		nullStr(a.Meta.BackupID),
		nullStr(a.Meta.Venue),
		nullStr(a.Meta.PublicationDate),
		nullStr(a.Meta.URL),
		nullStr(a.Meta.PDFURL),
		jsonStrings(a.Meta.Keywords),
		nullStr(a.Meta.Source),
		ts,
		jsonMap(a.Meta.AdditionalMetadata),
		jsonMap(a.Analysis),
		nullStr(a.Model),
		nullStr(a.PDFPath),
		nullStr(a.MarkdownPath),
		nullStr(a.NotePath),
	}
}

// LoadGraph reads one row per article and one row per citation edge.
func (d *DB) LoadGraph(ctx context.Context) ([]record.CanonicalArticle, []record.Citation, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT "+articleColumns+" FROM articles")
	if err != nil {
		return nil, nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var articles []record.CanonicalArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	citations, err := d.loadCitations(ctx)
	if err != nil {
		return nil, nil, err
	}
	return articles, citations, nil
}

func scanArticle(rows *sql.Rows) (record.CanonicalArticle, error) {
	var (
		a                                            record.CanonicalArticle
		title, abstract, doi, arxivID, backupID      sql.NullString
		venue, pubDate, url, pdfURL, source, scraped sql.NullString
		authorsJSON, keywordsJSON, metaJSON          sql.NullString
		analysisJSON, model                          sql.NullString
		pdfPath, markdownPath, notePath              sql.NullString
	)
	err := rows.Scan(&a.ID, &title, &authorsJSON, &abstract, &doi, &arxivID, &backupID,
		&venue, &pubDate, &url, &pdfURL, &keywordsJSON, &source, &scraped,
		&metaJSON, &analysisJSON, &model, &pdfPath, &markdownPath, &notePath)
	if err != nil {
		return a, err
	}

	a.Meta = record.BibliographicRecord{
		Title:              strOf(title),
		Authors:            decodeStrings(authorsJSON),
		Abstract:           strOf(abstract),
		DOI:                strOf(doi),
		ArXivID:            strOf(arxivID),
		BackupID:           strOf(backupID),
		Venue:              strOf(venue),
		PublicationDate:    strOf(pubDate),
		URL:                strOf(url),
		PDFURL:             strOf(pdfURL),
		Keywords:           decodeStrings(keywordsJSON),
		Source:             strOf(source),
		AdditionalMetadata: decodeMap(metaJSON),
	}
	if scraped.Valid {
		if t, err := time.Parse(time.RFC3339, scraped.String); err == nil {
			a.Meta.ScrapeTimestamp = t
		}
	}
	a.Analysis = decodeMap(analysisJSON)
	a.Model = strOf(model)
	a.PDFPath = strOf(pdfPath)
	a.MarkdownPath = strOf(markdownPath)
	a.NotePath = strOf(notePath)
	return a, nil
}
