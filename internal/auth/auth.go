// Package auth provides user registration, login, and JWT validation for
// the REST surface. Tokens are HS256 with the user id as subject; the
// signing secret comes from the environment only and must be at least 32
// bytes.
package auth

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/logging"
	"github.com/membank-io/membank/internal/store"
)

// TokenLifetime is how long an issued token stays valid.
const TokenLifetime = 24 * time.Hour

// MinSecretBytes is the minimum accepted JWT secret length.
const MinSecretBytes = 32

// Claims carries the token payload. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// Service issues and validates credentials against the user repository.
type Service struct {
	users  *store.UserRepo
	secret []byte
	log    *slog.Logger
}

// NewService builds an auth service. The secret must be at least
// MinSecretBytes long.
func NewService(users *store.UserRepo, secret string, logger *slog.Logger) (*Service, error) {
	if len(secret) < MinSecretBytes {
		return nil, errors.InvalidInput("jwt secret must be at least %d bytes", MinSecretBytes)
	}
	return &Service{
		users:  users,
		secret: []byte(secret),
		log:    logging.Component(logger, "auth"),
	}, nil
}

// Register creates a new user with a bcrypt-hashed password. Usernames
// and emails are unique; collisions surface as InvalidInput so the wire
// response names the conflicting field without leaking which record holds
// it.
func (s *Service) Register(ctx context.Context, username, email, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" {
		return nil, errors.InvalidInput("username is required")
	}
	if len(username) > 64 {
		return nil, errors.InvalidInput("username exceeds 64 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.InvalidInput("invalid email address")
	}
	if len(password) < 8 {
		return nil, errors.InvalidInput("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "hash password", err)
	}

	user, err := s.users.Create(ctx, username, email, string(hash))
	if err != nil {
		if stderrors.Is(err, store.ErrDuplicate) {
			return nil, errors.InvalidInput("username or email already registered")
		}
		return nil, errors.StorageFailure("create user", err)
	}

	s.log.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies the password and returns a signed token. Unknown users
// and wrong passwords produce the same AccessDenied so probing cannot
// distinguish them.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return "", nil, errors.New(errors.KindAccessDenied, "invalid credentials")
		}
		return "", nil, errors.StorageFailure("load user", err)
	}
	if !user.Active {
		return "", nil, errors.New(errors.KindAccessDenied, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, errors.New(errors.KindAccessDenied, "invalid credentials")
	}

	token, err := s.issue(user)
	if err != nil {
		return "", nil, err
	}
	s.log.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}

func (s *Service) issue(user *store.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
		Username: user.Username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(errors.KindInternal, "sign token", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, returning the user id it was
// issued for. Expired, malformed, and wrongly signed tokens all report
// AccessDenied.
func (s *Service) ValidateToken(tokenString string) (int64, error) {
	if tokenString == "" {
		return 0, errors.New(errors.KindAccessDenied, "missing token")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf(errors.KindAccessDenied, "unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, errors.Wrap(errors.KindAccessDenied, "invalid token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, errors.New(errors.KindAccessDenied, "invalid token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.New(errors.KindAccessDenied, "invalid token subject")
	}
	return userID, nil
}
