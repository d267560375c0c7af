package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Tyrowin/huddle/internal/chat"
)

// CreateUser stores a new user.
func (s *Store) CreateUser(ctx context.Context, u *chat.User) error {
	if u.Color == "" {
		u.Color = chat.DefaultColor
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return chat.ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UserByID finds a user by ID.
func (s *Store) UserByID(ctx context.Context, id uint) (*chat.User, error) {
	var u chat.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// UserByUsername finds a user by username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*chat.User, error) {
	var u chat.User
	if err := s.db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// ListUsers returns every user ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]chat.User, error) {
	var users []chat.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateProfile changes the username and/or color of a user. Nil fields are
// left as they are.
func (s *Store) UpdateProfile(ctx context.Context, id uint, username, color *string) (*chat.User, error) {
	changes := map[string]any{}
	if username != nil {
		changes["username"] = *username
	}
	if color != nil {
		changes["color"] = *color
	}

	if len(changes) > 0 {
		result := s.db.WithContext(ctx).Model(&chat.User{}).Where("id = ?", id).Updates(changes)
		if err := result.Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, chat.ErrUsernameTaken
			}
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		if result.RowsAffected == 0 {
			return nil, fmt.Errorf("user: %w", chat.ErrNotFound)
		}
	}
	return s.UserByID(ctx, id)
}
