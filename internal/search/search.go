// Package search finds cards on a board by title and description.
// Meilisearch is used when configured and healthy; otherwise queries go to
// the relational fallback.
package search

import "context"

// CardRecord is what gets indexed for a card.
type CardRecord struct {
	ID          string  `json:"id"`
	BoardID     string  `json:"boardId"`
	ListID      string  `json:"listId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Position    float64 `json:"position"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	CardID  string `json:"cardId"`
	ListID  string `json:"listId"`
	BoardID string `json:"boardId"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query is always scoped to one board.
type Query struct {
	BoardID string
	Text    string
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a board-scoped card search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}
