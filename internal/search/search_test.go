package search

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store/storetest"
)

func seedCards(t *testing.T) *store.PostgresStore {
	t.Helper()
	s := storetest.Open(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hash := "x"

	require.NoError(t, s.CreateUser(ctx, store.User{ID: "usr_1", Name: "Ada", Email: "ada@example.com", PasswordHash: &hash, CreatedAt: now}))
	for _, b := range []string{"brd_1", "brd_2"} {
		require.NoError(t, s.InsertBoard(ctx, store.Board{ID: b, Title: b, Color: "blue", OwnerID: "usr_1", CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, s.InsertList(ctx, store.List{ID: "lst_" + b, BoardID: b, Title: "Todo", CreatedAt: now, UpdatedAt: now}))
	}
	desc := "write the Launch plan"
	cards := []store.Card{
		{ID: "crd_1", ListID: "lst_brd_1", Title: "Launch website", Position: 0},
		{ID: "crd_2", ListID: "lst_brd_1", Title: "Hire designer", Description: &desc, Position: 1},
		{ID: "crd_3", ListID: "lst_brd_1", Title: "Budget", Position: 2},
		{ID: "crd_4", ListID: "lst_brd_2", Title: "Launch party", Position: 0},
	}
	for _, c := range cards {
		c.CreatedAt, c.UpdatedAt = now, now
		require.NoError(t, s.InsertCard(ctx, c))
	}
	return s
}

func TestSubstringSearchIsBoardScoped(t *testing.T) {
	db := seedCards(t)
	svc := NewService(nil, NewSubstring(db.DB()), slog.New(slog.NewTextHandler(io.Discard, nil)))

	resp := svc.Search(context.Background(), Query{BoardID: "brd_1", Text: "launch"})
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "crd_1", resp.Results[0].CardID)
	assert.Equal(t, "crd_2", resp.Results[1].CardID)
	assert.Equal(t, "write the Launch plan", resp.Results[1].Snippet)
	for _, r := range resp.Results {
		assert.Equal(t, "brd_1", r.BoardID)
	}
	assert.Equal(t, 2, resp.Total)
}

func TestSearchEmptyQueryReturnsNoResults(t *testing.T) {
	db := seedCards(t)
	svc := NewService(nil, NewSubstring(db.DB()), slog.New(slog.NewTextHandler(io.Discard, nil)))

	resp := svc.Search(context.Background(), Query{BoardID: "brd_1", Text: "   "})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestLikePatternStripsWildcards(t *testing.T) {
	assert.Equal(t, "%abc%", likePattern("A%b_C"))
}

func TestLoadCardsForReindex(t *testing.T) {
	db := seedCards(t)
	cards, err := NewSubstring(db.DB()).LoadCards(context.Background())
	require.NoError(t, err)
	assert.Len(t, cards, 4)

	svc := NewService(nil, NewSubstring(db.DB()), slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "reindex is a no-op without meilisearch")
}
