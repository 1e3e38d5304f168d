package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matsen/sift/internal/record"
)

// UpsertQuestion writes a research question, replacing any existing
// definition. Questions are configuration and are validated before save.
func (d *DB) UpsertQuestion(ctx context.Context, q record.ResearchQuestion) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("invalid question %q: %w", q.ID, err)
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO questions (id, name, keywords_json, topics_json, authors_json, selected_sources_json, min_relevance_score, schedule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			keywords_json = excluded.keywords_json,
			topics_json = excluded.topics_json,
			authors_json = excluded.authors_json,
			selected_sources_json = excluded.selected_sources_json,
			min_relevance_score = excluded.min_relevance_score,
			schedule = excluded.schedule
	`,
		q.ID,
		q.Name,
		jsonStrings(q.Keywords),
		jsonStrings(q.Topics),
		jsonStrings(q.Authors),
		jsonStrings(q.SelectedSources),
		q.MinRelevanceScore,
		nullStr(q.Schedule),
	)
	if err != nil {
		return fmt.Errorf("upserting question %q: %w", q.ID, err)
	}
	return nil
}

// Question returns one research question by id. Returns ErrNotFound when it
// does not exist.
func (d *DB) Question(ctx context.Context, id string) (record.ResearchQuestion, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, name, keywords_json, topics_json, authors_json, selected_sources_json, min_relevance_score, schedule
		FROM questions WHERE id = ?
	`, id)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return q, fmt.Errorf("question %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return q, fmt.Errorf("loading question %q: %w", id, err)
	}
	return q, nil
}

// ListQuestions returns all research questions ordered by id.
func (d *DB) ListQuestions(ctx context.Context) ([]record.ResearchQuestion, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, keywords_json, topics_json, authors_json, selected_sources_json, min_relevance_score, schedule
		FROM questions ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying questions: %w", err)
	}
	defer rows.Close()

	var questions []record.ResearchQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (record.ResearchQuestion, error) {
	var (
		q                             record.ResearchQuestion
		keywords, topics, authors     sql.NullString
		selectedSources, schedule     sql.NullString
	)
	err := row.Scan(&q.ID, &q.Name, &keywords, &topics, &authors, &selectedSources, &q.MinRelevanceScore, &schedule)
	if err != nil {
		return q, err
	}
	q.Keywords = decodeStrings(keywords)
	q.Topics = decodeStrings(topics)
	q.Authors = decodeStrings(authors)
	q.SelectedSources = decodeStrings(selectedSources)
	q.Schedule = strOf(schedule)
	return q, nil
}
