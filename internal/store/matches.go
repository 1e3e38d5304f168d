package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matsen/sift/internal/record"
)

// Match returns the persisted match for one (article, question) pair.
// Returns ErrNotFound when no match exists.
func (d *DB) Match(ctx context.Context, articleID, questionID string) (record.ArticleMatch, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT article_id, question_id, relevance_score,
			matched_keywords_json, matched_topics_json, matched_authors_json,
			reasoning, user_sentiment, viewed, bookmarked, created_at
		FROM matches WHERE article_id = ? AND question_id = ?
	`, articleID, questionID)

	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return m, fmt.Errorf("match (%s, %s): %w", articleID, questionID, ErrNotFound)
	}
	if err != nil {
		return m, fmt.Errorf("loading match (%s, %s): %w", articleID, questionID, err)
	}
	return m, nil
}

// InsertMatch persists a new match. Matches are created at most once per
// (article, question) pair; callers check Match first, and the primary key
// backs that up.
func (d *DB) InsertMatch(ctx context.Context, m record.ArticleMatch) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO matches (article_id, question_id, relevance_score,
			matched_keywords_json, matched_topics_json, matched_authors_json,
			reasoning, user_sentiment, viewed, bookmarked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ArticleID,
		m.QuestionID,
		m.RelevanceScore,
		jsonStrings(m.MatchedKeywords),
		jsonStrings(m.MatchedTopics),
		jsonStrings(m.MatchedAuthors),
		nullStr(m.Reasoning),
		nullStr(m.UserSentiment),
		boolInt(m.Viewed),
		boolInt(m.Bookmarked),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting match (%s, %s): %w", m.ArticleID, m.QuestionID, err)
	}
	return nil
}

// MatchesForQuestion returns every match for a question, highest score first.
func (d *DB) MatchesForQuestion(ctx context.Context, questionID string) ([]record.ArticleMatch, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT article_id, question_id, relevance_score,
			matched_keywords_json, matched_topics_json, matched_authors_json,
			reasoning, user_sentiment, viewed, bookmarked, created_at
		FROM matches WHERE question_id = ?
		ORDER BY relevance_score DESC, article_id
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	var matches []record.ArticleMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SetMatchSentiment updates the one user-mutable annotation on a match.
func (d *DB) SetMatchSentiment(ctx context.Context, articleID, questionID, sentiment string) error {
	return d.updateMatchField(ctx, articleID, questionID, "user_sentiment", nullStr(sentiment))
}

// SetMatchViewed marks a match as viewed or not.
func (d *DB) SetMatchViewed(ctx context.Context, articleID, questionID string, viewed bool) error {
	return d.updateMatchField(ctx, articleID, questionID, "viewed", boolInt(viewed))
}

// SetMatchBookmarked marks a match as bookmarked or not.
func (d *DB) SetMatchBookmarked(ctx context.Context, articleID, questionID string, bookmarked bool) error {
	return d.updateMatchField(ctx, articleID, questionID, "bookmarked", boolInt(bookmarked))
}

func (d *DB) updateMatchField(ctx context.Context, articleID, questionID, column string, value any) error {
	res, err := d.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE matches SET %s = ? WHERE article_id = ? AND question_id = ?", column),
		value, articleID, questionID)
	if err != nil {
		return fmt.Errorf("updating match %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("match (%s, %s): %w", articleID, questionID, ErrNotFound)
	}
	return nil
}

func scanMatch(row rowScanner) (record.ArticleMatch, error) {
	var (
		m                           record.ArticleMatch
		keywords, topics, authors   sql.NullString
		reasoning, sentiment, ctime sql.NullString
		viewed, bookmarked          int
	)
	err := row.Scan(&m.ArticleID, &m.QuestionID, &m.RelevanceScore,
		&keywords, &topics, &authors, &reasoning, &sentiment, &viewed, &bookmarked, &ctime)
	if err != nil {
		return m, err
	}
	m.MatchedKeywords = decodeStrings(keywords)
	m.MatchedTopics = decodeStrings(topics)
	m.MatchedAuthors = decodeStrings(authors)
	m.Reasoning = strOf(reasoning)
	m.UserSentiment = strOf(sentiment)
	m.Viewed = viewed != 0
	m.Bookmarked = bookmarked != 0
	if ctime.Valid {
		if t, err := time.Parse(time.RFC3339, ctime.String); err == nil {
			m.CreatedAt = t
		}
	}
	return m, nil
}
