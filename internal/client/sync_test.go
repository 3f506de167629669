package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/app"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/blob"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/client"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/config"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/realtime"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store/storetest"
)

type viewer struct {
	api   *client.HTTPAPI
	store *client.Store
	sub   *client.Subscription
}

func startServer(t *testing.T) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	disk, err := blob.NewDisk(t.TempDir())
	require.NoError(t, err)
	svc := app.New(config.Config{
		SessionCookieName: "glide_sess",
		SessionTTL:        time.Hour,
		MaskNotFound:      true,
		MaxFileSize:       1 << 20,
		OAuthStateSecret:  "sync-test",
		FrontendURL:       "http://app.test",
	}, app.Deps{Store: storetest.Open(t), Blobs: disk})

	hub := realtime.NewHub(svc, "", nil)
	srv := httptest.NewServer(app.NewHTTPServer(svc, "http://app.test").WithRealtime(hub).Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub
}

func signUp(t *testing.T, srv *httptest.Server, name, email string) *client.HTTPAPI {
	t.Helper()
	api := client.NewHTTPAPI(srv.URL, "", srv.Client())
	_, err := api.SignUp(context.Background(), name, email, "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, api.Token())
	return api
}

func watch(t *testing.T, srv *httptest.Server, api *client.HTTPAPI, boardID string) *viewer {
	t.Helper()
	ctx := context.Background()
	st := client.NewStore(api)
	require.NoError(t, st.Load(ctx))
	require.NoError(t, st.OpenBoard(ctx, boardID))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	sub, err := client.Dial(ctx, wsURL, api.Token(), st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	st.SetPublisher(sub)
	require.NoError(t, sub.Join(boardID))
	return &viewer{api: api, store: st, sub: sub}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 20*time.Millisecond)
}

func TestTwoViewersStayInSync(t *testing.T) {
	srv, hub := startServer(t)
	ctx := context.Background()

	aliceAPI := signUp(t, srv, "Alice", "alice@example.com")
	bobAPI := signUp(t, srv, "Bob", "bob@example.com")
	board, err := aliceAPI.CreateBoard(ctx, "Launch")
	require.NoError(t, err)
	_, err = aliceAPI.AddMember(ctx, board.ID, "bob@example.com")
	require.NoError(t, err)

	alice := watch(t, srv, aliceAPI, board.ID)
	bob := watch(t, srv, bobAPI, board.ID)
	eventually(t, func() bool { return hub.Subscribers(board.ID) == 2 })

	todo, err := alice.store.AddList(ctx, "Todo")
	require.NoError(t, err)
	done, err := alice.store.AddList(ctx, "Done")
	require.NoError(t, err)
	eventually(t, func() bool { return len(bob.store.Lists()) == 2 })
	assert.Equal(t, todo.ID, bob.store.Lists()[0].ID)

	card, err := alice.store.AddCard(ctx, todo.ID, "Write launch post")
	require.NoError(t, err)
	eventually(t, func() bool { return len(bob.store.Cards(todo.ID)) == 1 })

	_, err = alice.store.MoveCard(ctx, card.ID, done.ID, 0)
	require.NoError(t, err)
	eventually(t, func() bool {
		cards := bob.store.Cards(done.ID)
		return len(cards) == 1 && cards[0].ID == card.ID && len(bob.store.Cards(todo.ID)) == 0
	})

	title := "Publish launch post"
	_, err = bob.store.UpdateCard(ctx, card.ID, client.CardPatch{Title: &title})
	require.NoError(t, err)
	eventually(t, func() bool {
		cards := alice.store.Cards(done.ID)
		return len(cards) == 1 && cards[0].Title == title
	})

	// Both caches agree with a fresh read from the server.
	fresh := client.NewStore(aliceAPI)
	require.NoError(t, fresh.OpenBoard(ctx, board.ID))
	for _, v := range []*viewer{alice, bob} {
		assert.Equal(t, titles(fresh.Cards(done.ID)), titles(v.store.Cards(done.ID)))
	}
}

func TestViewerCatchesUpAfterReconnect(t *testing.T) {
	srv, hub := startServer(t)
	ctx := context.Background()

	aliceAPI := signUp(t, srv, "Alice", "alice@example.com")
	bobAPI := signUp(t, srv, "Bob", "bob@example.com")
	board, err := aliceAPI.CreateBoard(ctx, "Launch")
	require.NoError(t, err)
	_, err = aliceAPI.AddMember(ctx, board.ID, "bob@example.com")
	require.NoError(t, err)

	alice := watch(t, srv, aliceAPI, board.ID)
	bob := watch(t, srv, bobAPI, board.ID)
	eventually(t, func() bool { return hub.Subscribers(board.ID) == 2 })

	require.NoError(t, bob.sub.Close())
	<-bob.sub.Done()
	eventually(t, func() bool { return hub.Subscribers(board.ID) == 1 })

	_, err = alice.store.AddList(ctx, "Missed while away")
	require.NoError(t, err)
	assert.Empty(t, bob.store.Lists())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	sub, err := client.Dial(ctx, wsURL, bobAPI.Token(), bob.store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	bob.store.SetPublisher(sub)
	require.NoError(t, sub.Join(board.ID))
	require.NoError(t, bob.store.Resync(ctx))

	lists := bob.store.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, "Missed while away", lists[0].Title)
	eventually(t, func() bool { return hub.Subscribers(board.ID) == 2 })
}

func TestOutsiderCannotOpenOrJoin(t *testing.T) {
	srv, hub := startServer(t)
	ctx := context.Background()

	owner := signUp(t, srv, "Alice", "alice@example.com")
	outsider := signUp(t, srv, "Mallory", "mallory@example.com")
	board, err := owner.CreateBoard(ctx, "Private")
	require.NoError(t, err)

	st := client.NewStore(outsider)
	err = st.OpenBoard(ctx, board.ID)
	assert.True(t, client.IsStatus(err, http.StatusForbidden), "got %v", err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	sub, err := client.Dial(ctx, wsURL, outsider.Token(), st, nil)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Join(board.ID))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.Subscribers(board.ID))

	_, err = client.Dial(ctx, wsURL, "", st, nil)
	assert.Error(t, err)
}

func titles(cards []store.Card) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.Title)
	}
	return out
}
