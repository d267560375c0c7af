// Package user serves profile reads and updates and the user directory.
package user

import (
	"context"
	"errors"
	"regexp"

	"github.com/Tyrowin/huddle/internal/auth"
	"github.com/Tyrowin/huddle/internal/chat"
)

var (
	// ErrInvalidColor is returned when the color is not a #rrggbb value.
	ErrInvalidColor = errors.New("color must be a #rrggbb hex value")
	// ErrUsernameTaken is returned when renaming to a username in use.
	ErrUsernameTaken = errors.New("username already exists")
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Store is the user persistence the profile service needs.
type Store interface {
	UserByID(ctx context.Context, id uint) (*chat.User, error)
	ListUsers(ctx context.Context) ([]chat.User, error)
	UpdateProfile(ctx context.Context, id uint, username, color *string) (*chat.User, error)
}

// ProfileUpdate carries the optional fields of a profile change.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Color    *string `json:"color,omitempty"`
}

// Service exposes profile operations.
type Service struct {
	store Store
}

// NewService creates a profile service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Profile returns the summary of the user.
func (s *Service) Profile(ctx context.Context, id uint) (auth.UserSummary, error) {
	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		return auth.UserSummary{}, err
	}
	return auth.Summarize(u), nil
}

// UpdateProfile applies upd to the user and returns the new summary.
func (s *Service) UpdateProfile(ctx context.Context, id uint, upd ProfileUpdate) (auth.UserSummary, error) {
	if upd.Username != nil {
		if err := auth.ValidateUsername(*upd.Username); err != nil {
			return auth.UserSummary{}, err
		}
	}
	if upd.Color != nil && !colorPattern.MatchString(*upd.Color) {
		return auth.UserSummary{}, ErrInvalidColor
	}

	u, err := s.store.UpdateProfile(ctx, id, upd.Username, upd.Color)
	if err != nil {
		if errors.Is(err, chat.ErrUsernameTaken) {
			return auth.UserSummary{}, ErrUsernameTaken
		}
		return auth.UserSummary{}, err
	}
	return auth.Summarize(u), nil
}

// List returns every user's summary.
func (s *Service) List(ctx context.Context) ([]auth.UserSummary, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]auth.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, auth.Summarize(&users[i]))
	}
	return out, nil
}
