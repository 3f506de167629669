package search

import (
	"context"
	"log/slog"
)

// Loader reads every card for a full reindex.
type Loader interface {
	LoadCards(ctx context.Context) ([]CardRecord, error)
}

// Fallback is the relational searcher used when Meilisearch is absent or
// unhealthy.
type Fallback interface {
	Searcher
	Loader
}

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	meili    *Meili
	fallback Fallback
	logger   *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Fallback, logger *slog.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, logger: logger}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: len(results), Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back", "error", err)
	}

	results, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("fallback search failed", "board_id", q.BoardID, "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: len(results), Query: q.Text}
}

// IndexCard indexes a card (fire-and-forget to Meilisearch).
func (s *Service) IndexCard(card CardRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexCards([]CardRecord{card}); err != nil {
			s.logger.Warn("index card", "card_id", card.ID, "error", err)
		}
	}()
}

// DeleteCards removes cards from the index (fire-and-forget).
func (s *Service) DeleteCards(ids ...string) {
	if !s.meiliReady() || len(ids) == 0 {
		return
	}
	go func() {
		for _, id := range ids {
			if err := s.meili.DeleteCard(id); err != nil {
				s.logger.Warn("delete card from index", "card_id", id, "error", err)
			}
		}
	}()
}

// Reindex pushes every card from the database into Meilisearch and reports
// how many were sent.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.meili == nil {
		return 0, nil
	}
	cards, err := s.fallback.LoadCards(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.meili.IndexCards(cards); err != nil {
		return 0, err
	}
	return len(cards), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
