// Package access issues and checks the short-lived tokens that gate camera
// streams.
package access

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"camguard-backend/internal/model"
	"camguard-backend/internal/store"
)

// TokenBytes is the amount of entropy behind every token string.
const TokenBytes = 24

// DefaultLifetime applies when Issue is called with a non-positive lifetime.
const DefaultLifetime = 300 * time.Second

var (
	ErrTokenNotFound = errors.New("access token not found")
	ErrTokenExpired  = errors.New("access token expired")
	ErrTokenUsed     = errors.New("access token already used")
)

// TokenStore is the persistence the issuer needs.
type TokenStore interface {
	CreateToken(ctx context.Context, tok *model.AccessToken) error
	FindToken(ctx context.Context, cameraID int64, token string) (model.AccessToken, error)
	MarkTokenUsed(ctx context.Context, id int64) (bool, error)
}

// Issuer mints and validates camera access tokens.
type Issuer struct {
	store     TokenStore
	now       func() time.Time
	generate  func() (string, error)
	singleUse bool
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithSingleUse controls whether Consume marks tokens as used.
func WithSingleUse(singleUse bool) Option {
	return func(i *Issuer) { i.singleUse = singleUse }
}

// NewIssuer creates an issuer that enforces single use by default.
func NewIssuer(s TokenStore, opts ...Option) *Issuer {
	i := &Issuer{
		store:     s,
		now:       time.Now,
		generate:  GenerateToken,
		singleUse: true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GenerateToken returns a URL-safe random string carrying TokenBytes of entropy.
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue creates and persists a token for cameraID valid for lifetime.
func (i *Issuer) Issue(ctx context.Context, cameraID int64, lifetime time.Duration) (model.AccessToken, error) {
	const op = "access.Issue"

	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	token, err := i.generate()
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	now := i.now().UTC()
	tok := model.AccessToken{
		CameraID:  cameraID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}
	if err := i.store.CreateToken(ctx, &tok); err != nil {
		return model.AccessToken{}, fmt.Errorf("%s: %w", op, err)
	}
	return tok, nil
}

// Validate looks up token for cameraID and classifies it. It never mutates
// the token.
func (i *Issuer) Validate(ctx context.Context, cameraID int64, token string) (model.AccessToken, error) {
	if token == "" {
		return model.AccessToken{}, ErrTokenNotFound
	}

	tok, err := i.store.FindToken(ctx, cameraID, token)
	if errors.Is(err, store.ErrNotFound) {
		return model.AccessToken{}, ErrTokenNotFound
	}
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("access.Validate: %w", err)
	}

	if !i.now().Before(tok.ExpiresAt) {
		return tok, ErrTokenExpired
	}
	if tok.Used {
		return tok, ErrTokenUsed
	}
	return tok, nil
}

// Consume validates the token and, when single use is enforced, atomically
// marks it used. Of two concurrent consumers only one succeeds.
func (i *Issuer) Consume(ctx context.Context, cameraID int64, token string) (model.AccessToken, error) {
	tok, err := i.Validate(ctx, cameraID, token)
	if err != nil || !i.singleUse {
		return tok, err
	}

	flipped, err := i.store.MarkTokenUsed(ctx, tok.ID)
	if err != nil {
		return tok, fmt.Errorf("access.Consume: %w", err)
	}
	if !flipped {
		return tok, ErrTokenUsed
	}
	tok.Used = true
	return tok, nil
}

// Reason maps a validation error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenUsed):
		return "used"
	default:
		return "error"
	}
}

// IsRejection reports whether err is one of the token rejection kinds.
func IsRejection(err error) bool {
	return errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenUsed)
}
