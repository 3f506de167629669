package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestGoogle(t *testing.T, userInfoStatus int) *Google {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		if userInfoStatus != http.StatusOK {
			http.Error(w, "nope", userInfoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"g-42","email":"ada@example.com","verified_email":true,"name":"Ada","picture":"https://img/ada.png"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := NewGoogle("client", "secret", "http://localhost/cb")
	g.config.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	g.userInfoURL = srv.URL + "/userinfo"
	return g
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	g := NewGoogle("client", "secret", "http://localhost/cb")
	u, err := url.Parse(g.AuthCodeURL("state-123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "email")
}

func TestExchangeLoadsProfile(t *testing.T) {
	g := newTestGoogle(t, http.StatusOK)
	profile, err := g.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, Profile{ID: "g-42", Email: "ada@example.com", VerifiedEmail: true, Name: "Ada", Picture: "https://img/ada.png"}, profile)
}

func TestExchangeFailures(t *testing.T) {
	g := newTestGoogle(t, http.StatusUnauthorized)
	_, err := g.Exchange(context.Background(), "the-code")
	assert.Error(t, err)

	_, err = g.Exchange(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingCode)
}
