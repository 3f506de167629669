package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches cards with Postgres full-text search, also matching
// case-insensitive substrings of the title so partial words hit.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.list_id, l.board_id, c.title,
			ts_headline('simple', COALESCE(c.description, ''), plainto_tsquery('simple', $2), 'MaxFragments=1,MaxWords=30')
		FROM cards c
		JOIN lists l ON l.id = c.list_id
		WHERE l.board_id = $1
			AND (
				to_tsvector('simple', c.title || ' ' || COALESCE(c.description, '')) @@ plainto_tsquery('simple', $2)
				OR LOWER(c.title) LIKE $3
			)
		ORDER BY ts_rank(to_tsvector('simple', c.title || ' ' || COALESCE(c.description, '')), plainto_tsquery('simple', $2)) DESC,
			l.position, c.position
		LIMIT $4
	`, q.BoardID, text, likePattern(text), q.limit())
	if err != nil {
		return nil, fmt.Errorf("pgfts query: %w", err)
	}
	return scanResults(rows)
}

// LoadCards returns every card for a full reindex.
func (p *PgFTS) LoadCards(ctx context.Context) ([]CardRecord, error) {
	return loadCards(ctx, p.db)
}

// Substring is a dialect-neutral fallback for databases without full-text
// search. It matches case-insensitive substrings of title or description.
type Substring struct {
	db *sql.DB
}

func NewSubstring(db *sql.DB) *Substring {
	return &Substring{db: db}
}

func (s *Substring) Search(ctx context.Context, q Query) ([]Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.list_id, l.board_id, c.title, COALESCE(c.description, '')
		FROM cards c
		JOIN lists l ON l.id = c.list_id
		WHERE l.board_id = $1
			AND (LOWER(c.title) LIKE $2 OR LOWER(COALESCE(c.description, '')) LIKE $2)
		ORDER BY l.position, c.position, c.created_at, c.id
		LIMIT $3
	`, q.BoardID, likePattern(text), q.limit())
	if err != nil {
		return nil, fmt.Errorf("substring query: %w", err)
	}
	return scanResults(rows)
}

func (s *Substring) LoadCards(ctx context.Context) ([]CardRecord, error) {
	return loadCards(ctx, s.db)
}

func likePattern(text string) string {
	escaped := strings.NewReplacer(`%`, ``, `_`, ``).Replace(strings.ToLower(text))
	return "%" + escaped + "%"
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.CardID, &r.ListID, &r.BoardID, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func loadCards(ctx context.Context, db *sql.DB) ([]CardRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, l.board_id, c.list_id, c.title, COALESCE(c.description, ''), c.position
		FROM cards c
		JOIN lists l ON l.id = c.list_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	defer rows.Close()

	cards := make([]CardRecord, 0)
	for rows.Next() {
		var c CardRecord
		if err := rows.Scan(&c.ID, &c.BoardID, &c.ListID, &c.Title, &c.Description, &c.Position); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
