package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"camguard-backend/internal/logger"
	"camguard-backend/internal/model"
	"camguard-backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
)

// UserStore is the persistence the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	FindUserByUsername(ctx context.Context, username string) (model.User, error)
}

// Session is the identity carried by a valid session token.
type Session struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// Service registers users, checks passwords and signs session tokens.
type Service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// NewService creates an auth service signing HS256 sessions with secret.
func NewService(users UserStore, secret string, ttl time.Duration) *Service {
	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string) (model.User, error) {
	const op = "auth.Register"

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}

	u := model.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}

	logger.Log.Infof("registered user %q", username)
	return u, nil
}

// Login checks the password and returns a signed session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, model.User, error) {
	const op = "auth.Login"

	u, err := s.users.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", model.User{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return "", model.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", model.User{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := s.NewSessionToken(u)
	if err != nil {
		return "", model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return token, u, nil
}

// NewSessionToken signs a session for u.
func (s *Service) NewSessionToken(u model.User) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["uid"] = u.ID
	claims["username"] = u.Username
	claims["exp"] = s.now().Add(s.ttl).Unix()

	return token.SignedString(s.secret)
}

// ParseSession verifies a session token and returns its identity.
func (s *Service) ParseSession(tokenString string) (Session, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, ErrInvalidSession
	}
	uid, ok := claims["uid"].(float64)
	if !ok {
		return Session{}, ErrInvalidSession
	}
	username, _ := claims["username"].(string)

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return Session{UserID: int64(uid), Username: username, ExpiresAt: expiresAt}, nil
}

// TTL is the lifetime of new sessions.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
