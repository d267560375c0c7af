// Package auth is the credential store of huddle: it registers users, checks
// passwords and issues and verifies the bearer tokens connections present.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/huddle/internal/chat"
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidUsername is returned when the username has the wrong shape.
	ErrInvalidUsername = fmt.Errorf("username must be %d to %d characters", chat.MinUsernameLength, chat.MaxUsernameLength)
	// ErrWeakPassword is returned when password is too short.
	ErrWeakPassword = errors.New("password must be at least 6 characters")
	// ErrPasswordTooLong is returned when password exceeds bcrypt's 72-byte limit.
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
)

// UserStore is the user persistence the credential store needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *chat.User) error
	UserByID(ctx context.Context, id uint) (*chat.User, error)
	UserByUsername(ctx context.Context, username string) (*chat.User, error)
}

// UserSummary is the public view of a user.
type UserSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

// Summarize returns the public view of u.
func Summarize(u *chat.User) UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Color: u.Color}
}

// Session is returned by a successful login or registration.
type Session struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	User        UserSummary `json:"user"`
}

// Service handles authentication business logic.
type Service struct {
	users  UserStore
	hasher *PasswordHasher
	jwt    *JWTManager
	log    zerolog.Logger
}

// NewService creates a new Service.
func NewService(users UserStore, hasher *PasswordHasher, jwt *JWTManager, log zerolog.Logger) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		jwt:    jwt,
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// ValidateUsername checks the length and encoding of a username.
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if !utf8.ValidString(username) || strings.TrimSpace(username) != username || n < chat.MinUsernameLength || n > chat.MaxUsernameLength {
		return ErrInvalidUsername
	}
	return nil
}

// Register creates a new account and logs it in.
func (s *Service) Register(ctx context.Context, username, password string) (*Session, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	if len(password) > 72 {
		return nil, ErrPasswordTooLong
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &chat.User{Username: username, PasswordHash: hash, Color: chat.DefaultColor}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, chat.ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.log.Info().Uint("user_id", u.ID).Str("username", u.Username).Msg("user registered")

	return s.issue(u)
}

// Login checks the credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

// VerifyToken returns the id of the still existing user the token was issued
// to.
func (s *Service) VerifyToken(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return 0, err
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, err
	}
	if _, err := s.users.UserByID(ctx, id); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, fmt.Errorf("failed to find user: %w", err)
	}
	return id, nil
}

func (s *Service) issue(u *chat.User) (*Session, error) {
	token, err := s.jwt.Generate(u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	return &Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   s.jwt.TTL(),
		User:        Summarize(u),
	}, nil
}
