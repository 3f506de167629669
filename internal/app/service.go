package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/auth"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/authpw"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/blob"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/config"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/email"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/oauth"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/rbac"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/search"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/session"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/util"
)

// Actor is the caller of a service operation, resolved once at the edge.
type Actor struct {
	UserID    string
	IP        string
	UserAgent string
}

// Session is a freshly issued login.
type Session struct {
	Token     string
	User      store.User
	ExpiresAt time.Time
}

type dataStore interface {
	store.Querier
	WithTx(ctx context.Context, fn func(store.Querier) error) error
	Ping(ctx context.Context) error
}

type mailer interface {
	IsConfigured() bool
	SendMemberAdded(to string, data email.MemberAddedData) error
}

type googleProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (oauth.Profile, error)
}

// Deps are the collaborators wired in by cmd/api. Search, Mailer and Google
// are optional.
type Deps struct {
	Store    *store.PostgresStore
	Sessions session.Store
	Blobs    blob.Storage
	Search   *search.Service
	Mailer   *email.Service
	Google   *oauth.Google
	Logger   *slog.Logger
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  session.Store
	passwords *authpw.Service
	blobs     blob.Storage
	search    *search.Service
	mailer    mailer
	google    googleProvider
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		passwords: authpw.NewService(deps.Store),
		blobs:     deps.Blobs,
		search:    deps.Search,
		logger:    deps.Logger,
		now:       time.Now,
	}
	if svc.sessions == nil {
		svc.sessions = session.NewSQLStore(deps.Store)
	}
	if svc.logger == nil {
		svc.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Mailer != nil {
		svc.mailer = deps.Mailer
	}
	if deps.Google != nil {
		svc.google = deps.Google
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionTTL() time.Duration {
	return s.cfg.SessionTTL
}

// Auth

type SignUpInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) SignUp(ctx context.Context, actor Actor, in SignUpInput) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{Name: in.Name, Email: in.Email, Password: in.Password})
	if err != nil {
		return Session{}, mapAuthError(err)
	}
	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}
	actor.UserID = user.ID
	s.logActivity(ctx, actor, "", "signup", map[string]any{"email": user.Email})
	return sess, nil
}

func (s *Service) Login(ctx context.Context, actor Actor, emailAddr, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, emailAddr, password)
	if err != nil {
		return Session{}, mapAuthError(err)
	}
	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}
	actor.UserID = user.ID
	s.logActivity(ctx, actor, "", "login", map[string]any{"provider": "password"})
	return sess, nil
}

func mapAuthError(err error) error {
	var verr *authpw.ValidationError
	switch {
	case errors.As(err, &verr):
		return invalidInput(verr.Field, verr.Message)
	case errors.Is(err, authpw.ErrEmailTaken):
		return invalidInput("email", "Email already registered")
	case errors.Is(err, authpw.ErrInvalidCredentials):
		err := domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		err.kind = ErrUnauthenticated
		return err
	default:
		return err
	}
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, hash, err := auth.NewSessionToken()
	if err != nil {
		return Session{}, err
	}
	expiresAt := s.now().Add(s.cfg.SessionTTL)
	if err := s.sessions.SaveSession(ctx, hash, user.ID, expiresAt); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	return Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// SessionFromToken resolves an opaque session token to its user.
func (s *Service) SessionFromToken(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, unauthenticated()
	}
	data, err := s.sessions.LookupSession(ctx, auth.HashToken(token))
	if errors.Is(err, session.ErrNotFound) {
		return store.User{}, unauthenticated()
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup session: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, data.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, unauthenticated()
	}
	if err != nil {
		return store.User{}, err
	}
	return user, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, auth.HashToken(token))
}

func (s *Service) GoogleEnabled() bool {
	return s.google != nil
}

// GoogleAuthURL starts the Google sign-in round trip. returnTo travels in
// the signed state and comes back from GoogleCallback.
func (s *Service) GoogleAuthURL(returnTo string) (string, error) {
	if s.google == nil {
		return "", domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Google sign-in is not configured", nil)
	}
	state, err := auth.IssueState([]byte(s.cfg.OAuthStateSecret), returnTo, s.now())
	if err != nil {
		return "", err
	}
	return s.google.AuthCodeURL(state), nil
}

// GoogleCallback finishes the round trip: it finds the user by Google id,
// links an existing password account with the same email, or creates one.
func (s *Service) GoogleCallback(ctx context.Context, actor Actor, code, state string) (Session, string, error) {
	if s.google == nil {
		return Session{}, "", domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Google sign-in is not configured", nil)
	}
	claims, err := auth.ParseState([]byte(s.cfg.OAuthStateSecret), state)
	if err != nil {
		return Session{}, "", unauthenticated()
	}
	profile, err := s.google.Exchange(ctx, code)
	if errors.Is(err, oauth.ErrMissingCode) {
		return Session{}, "", invalidInput("code", "authorization code missing")
	}
	if err != nil {
		return Session{}, "", fmt.Errorf("google exchange: %w", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return Session{}, "", invalidInput("email", "Google account has no email")
	}

	var user store.User
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		found, err := q.GetUserByGoogleID(ctx, profile.ID)
		if err == nil {
			user = found
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		var avatar *string
		if profile.Picture != "" {
			avatar = &profile.Picture
		}
		found, err = q.GetUserByEmail(ctx, profile.Email)
		if err == nil {
			if err := q.LinkGoogleAccount(ctx, found.ID, profile.ID, avatar); err != nil {
				return err
			}
			user, err = q.GetUserByID(ctx, found.ID)
			return err
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		name := profile.Name
		if name == "" {
			name = profile.Email
		}
		googleID := profile.ID
		user = store.User{
			ID:        util.NewID("usr"),
			Name:      name,
			Email:     profile.Email,
			Avatar:    avatar,
			GoogleID:  &googleID,
			CreatedAt: s.now().UTC(),
		}
		return q.CreateUser(ctx, user)
	})
	if err != nil {
		return Session{}, "", err
	}

	sess, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, "", err
	}
	actor.UserID = user.ID
	s.logActivity(ctx, actor, "", "login", map[string]any{"provider": "google"})
	return sess, claims.ReturnTo, nil
}

// Access

// authorize resolves the actor's role on the board behind access and checks
// it against action.
func authorize(access store.BoardAccess, actor Actor, action rbac.Action) (rbac.Role, error) {
	role := rbac.Resolve(actor.UserID, access.OwnerID, access.MemberRole)
	if role == rbac.RoleNone {
		return role, forbidden("Access denied")
	}
	if !rbac.Can(role, action) {
		return role, forbidden("Only the board owner can do that")
	}
	return role, nil
}

// lookupError turns a store miss into a NotFound naming what was missing.
func lookupError(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(what + " not found")
	}
	return err
}

// CanAccessBoard is used by the realtime hub before a connection joins a
// board channel.
func (s *Service) CanAccessBoard(ctx context.Context, userID, boardID string) error {
	access, err := s.store.BoardAccess(ctx, boardID, userID)
	if err != nil {
		return lookupError(err, "Board")
	}
	_, err = authorize(access, Actor{UserID: userID}, rbac.ActionRead)
	return err
}

// Activity

// logActivity appends to the activity log after the primary write has
// committed. Failures are logged and dropped.
func (s *Service) logActivity(ctx context.Context, actor Actor, boardID, action string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		s.logger.Warn("marshal activity details", "action", action, "error", err)
		payload = nil
	}
	entry := store.ActivityLogEntry{
		ID:        util.NewID("act"),
		Action:    action,
		Details:   payload,
		CreatedAt: s.now().UTC(),
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	if boardID != "" {
		entry.BoardID = &boardID
	}
	if actor.IP != "" {
		entry.IPAddress = &actor.IP
	}
	if actor.UserAgent != "" {
		entry.UserAgent = &actor.UserAgent
	}
	if err := s.store.InsertActivity(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("activity log write failed", "action", action, "user_id", actor.UserID, "error", err)
	}
}

// ListActivity returns the board's activity, newest first. Owner only.
func (s *Service) ListActivity(ctx context.Context, actor Actor, boardID string, limit int) ([]store.ActivityLogEntry, error) {
	access, err := s.store.BoardAccess(ctx, boardID, actor.UserID)
	if err != nil {
		return nil, lookupError(err, "Board")
	}
	if _, err := authorize(access, actor, rbac.ActionAdminister); err != nil {
		return nil, err
	}
	return s.store.ListActivity(ctx, boardID, limit)
}

// Blobs

// releaseBlobs deletes stored files whose rows are already gone.
func (s *Service) releaseBlobs(ctx context.Context, keys []string) {
	if s.blobs == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("release attachment file", "key", key, "error", err)
		}
	}
}

// Search

func (s *Service) indexCard(boardID string, card store.Card) {
	if s.search == nil {
		return
	}
	record := search.CardRecord{
		ID:       card.ID,
		BoardID:  boardID,
		ListID:   card.ListID,
		Title:    card.Title,
		Position: card.Position,
	}
	if card.Description != nil {
		record.Description = *card.Description
	}
	s.search.IndexCard(record)
}

func (s *Service) unindexCards(ids []string) {
	if s.search == nil {
		return
	}
	s.search.DeleteCards(ids...)
}

// SearchCards runs a board-scoped card search.
func (s *Service) SearchCards(ctx context.Context, actor Actor, boardID, text string, limit int) (search.Response, error) {
	access, err := s.store.BoardAccess(ctx, boardID, actor.UserID)
	if err != nil {
		return search.Response{}, lookupError(err, "Board")
	}
	if _, err := authorize(access, actor, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{BoardID: boardID, Text: text, Limit: limit}), nil
}
