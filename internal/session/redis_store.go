// Package session stores opaque login sessions keyed by the SHA-256 hash of
// the session token. Redis is the primary backend; SQLStore persists the same
// records in Postgres when Redis is not configured.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
)

var ErrNotFound = errors.New("session not found or expired")

// Data is what a session resolves to.
type Data struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is implemented by RedisStore and SQLStore.
type Store interface {
	SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (Data, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

// RedisStore keeps sessions as JSON values with a TTL matching expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "sess:",
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

func (s *RedisStore) SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("save session: expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}

	payload, err := json.Marshal(Data{UserID: userID, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(tokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) LookupSession(ctx context.Context, tokenHash string) (Data, error) {
	raw, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("lookup session: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("unmarshal session: %w", err)
	}
	if data.UserID == "" {
		return Data{}, ErrNotFound
	}
	return data, nil
}

func (s *RedisStore) RevokeSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SQLQueries is the subset of store.Querier that SQLStore needs.
type SQLQueries interface {
	SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string, now time.Time) (store.User, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

// SQLStore persists sessions in the sessions table.
type SQLStore struct {
	q   SQLQueries
	now func() time.Time
}

func NewSQLStore(q SQLQueries) *SQLStore {
	return &SQLStore{q: q, now: time.Now}
}

func (s *SQLStore) SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	return s.q.SaveSession(ctx, tokenHash, userID, expiresAt)
}

func (s *SQLStore) LookupSession(ctx context.Context, tokenHash string) (Data, error) {
	user, err := s.q.LookupSession(ctx, tokenHash, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, err
	}
	return Data{UserID: user.ID}, nil
}

func (s *SQLStore) RevokeSession(ctx context.Context, tokenHash string) error {
	return s.q.RevokeSession(ctx, tokenHash)
}
