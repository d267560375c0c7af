package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tyrowin/huddle/internal/chat"
)

// GeneralRoom returns the room of kind general.
func (s *Store) GeneralRoom(ctx context.Context) (*chat.Room, error) {
	var r chat.Room
	if err := s.db.WithContext(ctx).First(&r, "kind = ?", chat.RoomGeneral).Error; err != nil {
		return nil, notFound(err, "general room")
	}
	return &r, nil
}

// CreateGeneralRoom inserts the General room. The partial unique index turns
// a second insert into chat.ErrGeneralExists.
func (s *Store) CreateGeneralRoom(ctx context.Context, name string) (*chat.Room, error) {
	r := &chat.Room{Name: name, Kind: chat.RoomGeneral}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(r).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, chat.ErrGeneralExists
		}
		return nil, fmt.Errorf("failed to create general room: %w", err)
	}
	return r, nil
}

// RoomByID finds a room by ID.
func (s *Store) RoomByID(ctx context.Context, id uint) (*chat.Room, error) {
	var r chat.Room
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "room")
	}
	return &r, nil
}

// CreateRoom stores room and its memberships in one transaction. On success
// room.Members holds the stored memberships with their users.
func (s *Store) CreateRoom(ctx context.Context, room *chat.Room, members []chat.Membership) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(room).Error; err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		for i := range members {
			members[i].RoomID = room.ID
		}
		if len(members) > 0 {
			if err := tx.Omit(clause.Associations).Create(&members).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return chat.ErrAlreadyMember
				}
				return fmt.Errorf("failed to create memberships: %w", err)
			}
		}
		room.Members = nil
		return tx.Preload("User").Where("room_id = ?", room.ID).Order("id ASC").Find(&room.Members).Error
	})
}

// RoomsForUser returns the rooms userID has a membership in, oldest first.
func (s *Store) RoomsForUser(ctx context.Context, userID uint) ([]chat.Room, error) {
	var rooms []chat.Room
	err := s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.room_id = rooms.id").
		Where("memberships.user_id = ?", userID).
		Order("rooms.id ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms for user: %w", err)
	}
	return rooms, nil
}

// AddMembership stores m. The unique (room, user) index reports an existing
// pair as chat.ErrAlreadyMember and leaves that row unchanged.
func (s *Store) AddMembership(ctx context.Context, m *chat.Membership) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return chat.ErrAlreadyMember
		}
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// Membership returns the membership of userID in roomID.
func (s *Store) Membership(ctx context.Context, roomID, userID uint) (*chat.Membership, error) {
	var m chat.Membership
	if err := s.db.WithContext(ctx).First(&m, "room_id = ? AND user_id = ?", roomID, userID).Error; err != nil {
		return nil, notFound(err, "membership")
	}
	return &m, nil
}
