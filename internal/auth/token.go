// Package auth issues the opaque session tokens handed to browsers and the
// signed state parameter used during the Google sign-in round trip.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// NewSessionToken returns a random token for the client and the hash under
// which the server stores it. Only the hash is ever persisted.
func NewSessionToken() (token, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashToken(token), nil
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}

// StateClaims travel in the OAuth state parameter so the callback can be
// checked without server-side storage.
type StateClaims struct {
	Nonce    string `json:"nonce"`
	ReturnTo string `json:"return_to,omitempty"`
	jwt.RegisteredClaims
}

const stateTTL = 10 * time.Minute

func IssueState(secret []byte, returnTo string, now time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}
	claims := StateClaims{
		Nonce:    base64.RawURLEncoding.EncodeToString(nonce),
		ReturnTo: returnTo,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "glide",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

func ParseState(secret []byte, state string) (StateClaims, error) {
	var claims StateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("glide"),
		jwt.WithExpirationRequired(),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return StateClaims{}, ErrExpiredToken
	}
	if err != nil {
		return StateClaims{}, ErrInvalidToken
	}
	if claims.Nonce == "" {
		return StateClaims{}, ErrInvalidToken
	}
	return claims, nil
}
