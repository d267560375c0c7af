package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tyrowin/huddle/internal/chat"
)

func withMessageRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User").
		Preload("Reactions", func(db *gorm.DB) *gorm.DB { return db.Order("reactions.id ASC") }).
		Preload("Reactions.User")
}

// CreateMessage stores m and returns it with its author loaded.
func (s *Store) CreateMessage(ctx context.Context, m *chat.Message) (*chat.Message, error) {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return s.MessageByID(ctx, m.ID)
}

// MessageByID finds a message with its author and reactions.
func (s *Store) MessageByID(ctx context.Context, id uint) (*chat.Message, error) {
	var m chat.Message
	if err := withMessageRelations(s.db.WithContext(ctx)).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "message")
	}
	if m.Reactions == nil {
		m.Reactions = []chat.Reaction{}
	}
	return &m, nil
}

// RoomMessages returns the messages of roomID ordered by creation.
func (s *Store) RoomMessages(ctx context.Context, roomID uint) ([]chat.Message, error) {
	msgs := []chat.Message{}
	err := withMessageRelations(s.db.WithContext(ctx)).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list room messages: %w", err)
	}
	for i := range msgs {
		if msgs[i].Reactions == nil {
			msgs[i].Reactions = []chat.Reaction{}
		}
	}
	return msgs, nil
}

// ToggleReaction flips the (user, message, emoji) reaction inside one
// transaction. An insert rejected by the unique index means a concurrent
// toggle created the row first, so this call takes the remove branch.
func (s *Store) ToggleReaction(ctx context.Context, userID, messageID uint, emoji string) (*chat.ReactionToggle, error) {
	var toggle *chat.ReactionToggle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg chat.Message
		if err := tx.Select("id", "room_id").First(&msg, "id = ?", messageID).Error; err != nil {
			return notFound(err, "message")
		}

		removed, err := removeReaction(tx, userID, messageID, emoji)
		if err != nil {
			return err
		}
		if removed != 0 {
			toggle = &chat.ReactionToggle{RoomID: msg.RoomID, MessageID: msg.ID, Removed: true, ReactionID: removed}
			return nil
		}

		r := &chat.Reaction{Emoji: emoji, MessageID: messageID, UserID: userID}
		if err := tx.Omit(clause.Associations).Create(r).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("failed to create reaction: %w", err)
			}
			removed, err := removeReaction(tx, userID, messageID, emoji)
			if err != nil {
				return err
			}
			toggle = &chat.ReactionToggle{RoomID: msg.RoomID, MessageID: msg.ID, Removed: true, ReactionID: removed}
			return nil
		}

		if err := tx.Preload("User").First(r, "id = ?", r.ID).Error; err != nil {
			return fmt.Errorf("failed to reload reaction: %w", err)
		}
		toggle = &chat.ReactionToggle{RoomID: msg.RoomID, MessageID: msg.ID, Added: r, ReactionID: r.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toggle, nil
}

// removeReaction deletes the matching reaction and returns its id, or 0 when
// there was none.
func removeReaction(tx *gorm.DB, userID, messageID uint, emoji string) (uint, error) {
	var existing chat.Reaction
	err := tx.First(&existing, "user_id = ? AND message_id = ? AND emoji = ?", userID, messageID, emoji).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find reaction: %w", err)
	}
	if err := tx.Delete(&chat.Reaction{}, existing.ID).Error; err != nil {
		return 0, fmt.Errorf("failed to delete reaction: %w", err)
	}
	return existing.ID, nil
}
