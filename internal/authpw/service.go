// Package authpw provides email/password sign-up and sign-in.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/util"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError names the first offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// UserStore is the persistence the service needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
	cost  int
	now   func() time.Time
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

type SignUpRequest struct {
	Name     string
	Email    string
	Password string
}

func (r SignUpRequest) validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" || len(name) > 255 {
		return &ValidationError{Field: "name", Message: "name must be between 1 and 255 characters"}
	}
	email := strings.TrimSpace(r.Email)
	if email == "" || len(email) > 255 {
		return &ValidationError{Field: "email", Message: "email must be between 1 and 255 characters"}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "email must be a valid address"}
	}
	if len(r.Password) < 6 || len(r.Password) > 255 {
		return &ValidationError{Field: "password", Message: "password must be between 6 and 255 characters"}
	}
	return nil
}

// SignUp creates a password account. Emails are compared case-insensitively.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	if err := req.validate(); err != nil {
		return store.User{}, err
	}
	email := strings.TrimSpace(req.Email)

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return store.User{}, ErrEmailTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}
	hashed := string(hash)

	user := store.User{
		ID:           util.NewID("usr"),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: &hashed,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn checks a password. Unknown emails, accounts without a password
// (Google-only) and wrong passwords all yield ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return store.User{}, &ValidationError{Field: "email", Message: "email is required"}
	}
	if password == "" {
		return store.User{}, &ValidationError{Field: "password", Message: "password is required"}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.PasswordHash == nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}
