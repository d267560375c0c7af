package chat

import "context"

// Store is the persistence the chat service needs. Lookups return ErrNotFound
// when the row is absent.
type Store interface {
	UserByID(ctx context.Context, id uint) (*User, error)

	GeneralRoom(ctx context.Context) (*Room, error)
	// CreateGeneralRoom returns ErrGeneralExists when another General room
	// is already stored.
	CreateGeneralRoom(ctx context.Context, name string) (*Room, error)
	RoomByID(ctx context.Context, id uint) (*Room, error)
	// CreateRoom stores room and its memberships atomically.
	CreateRoom(ctx context.Context, room *Room, members []Membership) error
	RoomsForUser(ctx context.Context, userID uint) ([]Room, error)

	// AddMembership returns ErrAlreadyMember when the pair exists.
	AddMembership(ctx context.Context, m *Membership) error
	Membership(ctx context.Context, roomID, userID uint) (*Membership, error)

	CreateMessage(ctx context.Context, m *Message) (*Message, error)
	MessageByID(ctx context.Context, id uint) (*Message, error)
	// RoomMessages returns the room's messages oldest first.
	RoomMessages(ctx context.Context, roomID uint) ([]Message, error)

	// ToggleReaction removes the (user, message, emoji) reaction if present
	// and creates it otherwise, in one atomic step.
	ToggleReaction(ctx context.Context, userID, messageID uint, emoji string) (*ReactionToggle, error)
}
