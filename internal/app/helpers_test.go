package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/blob"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/config"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/search"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store/storetest"
)

type testEnv struct {
	svc   *Service
	store *store.PostgresStore
	blobs *blob.Disk
	clock *fakeClock
}

// fakeClock advances one second per reading so rows get distinct times.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func testConfig() config.Config {
	return config.Config{
		SessionCookieName: "glide_sess",
		SessionTTL:        time.Hour,
		MaskNotFound:      true,
		MaxFileSize:       1 << 20,
		OAuthStateSecret:  "test-state-secret",
		FrontendURL:       "http://app.test",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := storetest.Open(t)
	disk, err := blob.NewDisk(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(testConfig(), Deps{
		Store:  st,
		Blobs:  disk,
		Search: search.NewService(nil, search.NewSubstring(st.DB()), logger),
		Logger: logger,
	})
	svc.passwords.WithCost(bcrypt.MinCost)

	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	svc.now = clock.Now
	return &testEnv{svc: svc, store: st, blobs: disk, clock: clock}
}

func (e *testEnv) user(t *testing.T, id string) Actor {
	t.Helper()
	hash := "unused"
	require.NoError(t, e.store.CreateUser(context.Background(), store.User{
		ID:           id,
		Name:         "User " + id,
		Email:        id + "@example.com",
		PasswordHash: &hash,
		CreatedAt:    e.clock.Now(),
	}))
	return Actor{UserID: id, IP: "127.0.0.1", UserAgent: "go-test"}
}

// board creates a board owned by owner with one list and one card.
func (e *testEnv) board(t *testing.T, owner Actor) (store.Board, store.List, store.Card) {
	t.Helper()
	ctx := context.Background()
	board, err := e.svc.CreateBoard(ctx, owner, CreateBoardInput{Title: "Launch"})
	require.NoError(t, err)
	list, err := e.svc.CreateList(ctx, owner, CreateListInput{BoardID: board.ID, Title: "Todo"})
	require.NoError(t, err)
	card, err := e.svc.CreateCard(ctx, owner, CreateCardInput{ListID: list.ID, Title: "Write launch post"})
	require.NoError(t, err)
	return board, list, card
}

func (e *testEnv) upload(t *testing.T, actor Actor, cardID, name, body string) store.Attachment {
	t.Helper()
	attachment, err := e.svc.UploadAttachment(context.Background(), actor, UploadInput{
		CardID:      cardID,
		FileName:    name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Body:        bytes.NewReader([]byte(body)),
	})
	require.NoError(t, err)
	return attachment
}

func ptr[T any](v T) *T {
	return &v
}
