package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidateMessage validates a message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" || len(content) > MaxMessageLength || !utf8.ValidString(content) {
		return ErrInvalidContent
	}
	return nil
}

// ValidateEmoji validates a reaction emoji.
func ValidateEmoji(emoji string) error {
	if emoji == "" || len(emoji) > MaxEmojiLength || !utf8.ValidString(emoji) {
		return ErrInvalidEmoji
	}
	return nil
}

// User returns the user with the given id.
func (s *Service) User(ctx context.Context, id uint) (*User, error) {
	return s.store.UserByID(ctx, id)
}

// PostMessage stores a message by userID in roomID. Membership is not
// required; the author only has to be a real user and the room has to exist.
func (s *Service) PostMessage(ctx context.Context, userID, roomID uint, content string) (*Message, error) {
	if err := ValidateMessage(content); err != nil {
		return nil, err
	}
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.store.RoomByID(ctx, roomID); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, &Message{Content: content, UserID: userID, RoomID: roomID})
	if err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	return msg, nil
}

// Message returns a message with its author and reactions.
func (s *Service) Message(ctx context.Context, id uint) (*Message, error) {
	return s.store.MessageByID(ctx, id)
}

// ToggleReaction adds emoji from userID to messageID, or removes it when the
// same reaction already exists.
func (s *Service) ToggleReaction(ctx context.Context, userID, messageID uint, emoji string) (*ReactionToggle, error) {
	if err := ValidateEmoji(emoji); err != nil {
		return nil, err
	}
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, err
	}

	toggle, err := s.store.ToggleReaction(ctx, userID, messageID, emoji)
	if err != nil {
		return nil, err
	}
	return toggle, nil
}
