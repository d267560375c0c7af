// Package chat holds the room, membership and message model of huddle and the
// operations that decide who may read which room.
package chat

import (
	"encoding/json"
	"errors"
	"time"
)

// Validation constants
const (
	MaxUsernameLength = 50
	MinUsernameLength = 3
	MaxRoomNameLength = 100
	MaxMessageLength  = 5000
	MaxEmojiLength    = 32

	// GeneralRoomName is the name given to the bootstrap room.
	GeneralRoomName = "General"
	// DefaultColor is assigned to users that never picked one.
	DefaultColor = "#000000"
)

var (
	// ErrNotFound is returned when a user, room or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyMember is returned when a membership for the pair exists.
	ErrAlreadyMember = errors.New("user is already a member of the room")
	// ErrGeneralRoom is returned when an operation would add an explicit
	// membership to the General room.
	ErrGeneralRoom = errors.New("general room has no explicit members")
	// ErrGeneralExists is returned by a store when a second General room
	// insert loses against the unique index.
	ErrGeneralExists = errors.New("general room already exists")
	// ErrInvalidRoomName is returned for empty or oversized room names.
	ErrInvalidRoomName = errors.New("invalid room name")
	// ErrInvalidContent is returned for empty, oversized or non UTF-8 messages.
	ErrInvalidContent = errors.New("invalid message content")
	// ErrInvalidEmoji is returned for empty or oversized reaction emoji.
	ErrInvalidEmoji = errors.New("invalid emoji")
	// ErrUsernameTaken is returned by a store when the username is in use.
	ErrUsernameTaken = errors.New("username already exists")
)

// RoomKind separates the single implicit General room from rooms created by
// users.
type RoomKind string

const (
	RoomGeneral RoomKind = "general"
	RoomNamed   RoomKind = "named"
)

// User is a registered chat participant.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Color        string    `gorm:"size:32;not null" json:"color"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// Room is a channel messages are posted to.
type Room struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"size:100;not null" json:"name"`
	Kind      RoomKind     `gorm:"size:16;not null;index" json:"kind"`
	CreatedAt time.Time    `json:"createdAt"`
	Members   []Membership `gorm:"foreignKey:RoomID" json:"members,omitempty"`
}

// IsGeneral reports whether r is the implicit all-users room.
func (r Room) IsGeneral() bool {
	return r.Kind == RoomGeneral
}

// MarshalJSON adds the isGeneral flag clients key their room list on.
func (r Room) MarshalJSON() ([]byte, error) {
	type plain Room
	return json.Marshal(struct {
		plain
		IsGeneral bool `json:"isGeneral"`
	}{plain: plain(r), IsGeneral: r.IsGeneral()})
}

// Membership grants a user access to a named room.
type Membership struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RoomID           uint      `gorm:"not null;uniqueIndex:idx_membership_room_user,priority:1" json:"roomId"`
	UserID           uint      `gorm:"not null;uniqueIndex:idx_membership_room_user,priority:2;index" json:"userId"`
	User             *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Room             *Room     `gorm:"foreignKey:RoomID" json:"-"`
	HasHistoryAccess bool      `gorm:"not null" json:"hasHistoryAccess"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Message is an immutable post in a room.
type Message struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Content   string     `gorm:"not null" json:"content"`
	CreatedAt time.Time  `gorm:"index:idx_message_room_created,priority:2" json:"createdAt"`
	UserID    uint       `gorm:"not null" json:"userId"`
	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	RoomID    uint       `gorm:"not null;index:idx_message_room_created,priority:1" json:"roomId"`
	Reactions []Reaction `gorm:"foreignKey:MessageID" json:"reactions"`
}

// Reaction is one user's emoji on one message.
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Emoji     string    `gorm:"size:32;not null;uniqueIndex:idx_reaction_user_message_emoji,priority:3" json:"emoji"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_reaction_user_message_emoji,priority:2" json:"messageId"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reaction_user_message_emoji,priority:1" json:"userId"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReactionToggle is the outcome of flipping a (user, message, emoji) reaction.
// Exactly one of Added or Removed is set.
type ReactionToggle struct {
	RoomID     uint
	MessageID  uint
	Added      *Reaction
	Removed    bool
	ReactionID uint
}

// HistoryAccess is the read level a user has on a room.
type HistoryAccess int

const (
	// HistoryNone allows following new messages but not reading the backlog.
	HistoryNone HistoryAccess = iota
	// HistoryFull allows reading the full backlog.
	HistoryFull
	// HistoryGeneral is the implicit full access everyone has on General.
	HistoryGeneral
)

func (a HistoryAccess) String() string {
	switch a {
	case HistoryFull:
		return "full"
	case HistoryGeneral:
		return "general"
	default:
		return "none"
	}
}

// AllowsHistory reports whether the backlog may be returned.
func (a HistoryAccess) AllowsHistory() bool {
	return a == HistoryFull || a == HistoryGeneral
}
