// Package client is the board cache a UI keeps in sync with the server: it
// applies edits optimistically, reconciles them with the server's answer and
// folds in realtime notifications from other users.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
)

// API is the subset of the REST surface the Store needs.
type API interface {
	Me(ctx context.Context) (store.User, error)
	ListBoards(ctx context.Context) ([]store.Board, error)
	GetBoard(ctx context.Context, boardID string) (store.Board, error)
	ListLists(ctx context.Context, boardID string) ([]store.List, error)
	ListCards(ctx context.Context, listID string) ([]store.Card, error)
	CreateList(ctx context.Context, boardID, title string) (store.List, error)
	CreateCard(ctx context.Context, listID, title string) (store.Card, error)
	UpdateCard(ctx context.Context, cardID string, patch CardPatch) (store.Card, error)
	MoveCard(ctx context.Context, cardID, listID string, index int) (store.Card, error)
}

// CardPatch carries the card fields being edited. Nil fields are left as
// they are.
type CardPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Color       *string    `json:"color,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

func (p CardPatch) apply(card *store.Card) {
	if p.Title != nil {
		card.Title = *p.Title
	}
	if p.Description != nil {
		v := *p.Description
		card.Description = &v
	}
	if p.Color != nil {
		v := *p.Color
		card.Color = &v
	}
	if p.DueDate != nil {
		v := p.DueDate.UTC()
		card.DueDate = &v
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// HTTPAPI talks to the board server over its JSON API using a bearer
// session token.
type HTTPAPI struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPAPI(baseURL, token string, client *http.Client) *HTTPAPI {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPAPI{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

// Token returns the session token requests are sent with.
func (a *HTTPAPI) Token() string { return a.token }

type authResponse struct {
	User  store.User `json:"user"`
	Token string     `json:"token"`
}

// Login exchanges credentials for a session token and keeps it for later
// requests.
func (a *HTTPAPI) Login(ctx context.Context, email, password string) (store.User, error) {
	var out authResponse
	err := a.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return store.User{}, err
	}
	a.token = out.Token
	return out.User, nil
}

// SignUp registers an account and keeps the issued session token.
func (a *HTTPAPI) SignUp(ctx context.Context, name, email, password string) (store.User, error) {
	var out authResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/api/auth/signup", body, &out); err != nil {
		return store.User{}, err
	}
	a.token = out.Token
	return out.User, nil
}

func (a *HTTPAPI) Logout(ctx context.Context) error {
	err := a.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	a.token = ""
	return err
}

func (a *HTTPAPI) Me(ctx context.Context) (store.User, error) {
	var out struct {
		User store.User `json:"user"`
	}
	err := a.do(ctx, http.MethodGet, "/api/auth/me", nil, &out)
	return out.User, err
}

func (a *HTTPAPI) ListBoards(ctx context.Context) ([]store.Board, error) {
	var out []store.Board
	err := a.do(ctx, http.MethodGet, "/api/boards", nil, &out)
	return out, err
}

func (a *HTTPAPI) CreateBoard(ctx context.Context, title string) (store.Board, error) {
	var out store.Board
	err := a.do(ctx, http.MethodPost, "/api/boards", map[string]string{"title": title}, &out)
	return out, err
}

// AddMember gives the account registered under email member access.
func (a *HTTPAPI) AddMember(ctx context.Context, boardID, email string) (store.Member, error) {
	var out store.Member
	err := a.do(ctx, http.MethodPost, "/api/boards/"+url.PathEscape(boardID)+"/members", map[string]string{"email": email}, &out)
	return out, err
}

func (a *HTTPAPI) GetBoard(ctx context.Context, boardID string) (store.Board, error) {
	var out store.Board
	err := a.do(ctx, http.MethodGet, "/api/boards/"+url.PathEscape(boardID), nil, &out)
	return out, err
}

func (a *HTTPAPI) ListLists(ctx context.Context, boardID string) ([]store.List, error) {
	var out []store.List
	err := a.do(ctx, http.MethodGet, "/api/lists/"+url.PathEscape(boardID), nil, &out)
	return out, err
}

func (a *HTTPAPI) ListCards(ctx context.Context, listID string) ([]store.Card, error) {
	var out []store.Card
	err := a.do(ctx, http.MethodGet, "/api/cards/"+url.PathEscape(listID), nil, &out)
	return out, err
}

func (a *HTTPAPI) CreateList(ctx context.Context, boardID, title string) (store.List, error) {
	var out store.List
	err := a.do(ctx, http.MethodPost, "/api/lists", map[string]string{"boardId": boardID, "title": title}, &out)
	return out, err
}

func (a *HTTPAPI) CreateCard(ctx context.Context, listID, title string) (store.Card, error) {
	var out store.Card
	err := a.do(ctx, http.MethodPost, "/api/cards", map[string]string{"listId": listID, "title": title}, &out)
	return out, err
}

func (a *HTTPAPI) UpdateCard(ctx context.Context, cardID string, patch CardPatch) (store.Card, error) {
	var out store.Card
	err := a.do(ctx, http.MethodPut, "/api/cards/"+url.PathEscape(cardID), patch, &out)
	return out, err
}

func (a *HTTPAPI) MoveCard(ctx context.Context, cardID, listID string, index int) (store.Card, error) {
	var out store.Card
	body := map[string]any{"listId": listID, "index": index}
	err := a.do(ctx, http.MethodPut, "/api/cards/"+url.PathEscape(cardID)+"/move", body, &out)
	return out, err
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
