// Package server defines the realtime wire envelope, event names and payload
// types exchanged with clients, plus small shared helpers.
package server

import (
	"encoding/json"
	"strings"

	"github.com/Tyrowin/huddle/internal/chat"
)

// Client actions.
const (
	ActionSendMessage   = "sendMessage"
	ActionTyping        = "typing"
	ActionAddReaction   = "addReaction"
	ActionJoinRoom      = "joinRoom"
	ActionGetRooms      = "getRooms"
	ActionCreateRoom    = "createRoom"
	ActionAddUserToRoom = "addUserToRoom"
)

// Server events.
const (
	EventNewMessage      = "newMessage"
	EventUserTyping      = "userTyping"
	EventReactionAdded   = "reactionAdded"
	EventReactionRemoved = "reactionRemoved"
	EventRoomMessages    = "roomMessages"
	EventUserRooms       = "userRooms"
	EventRoomCreated     = "roomCreated"
)

// Envelope is the JSON frame used in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outgoing server event before encoding.
type Event struct {
	Name    string
	Payload any
}

// Encode renders the event as an envelope.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name, Data: data})
}

// SendMessagePayload is the body of sendMessage.
type SendMessagePayload struct {
	RoomID  uint   `json:"roomId"`
	Content string `json:"content"`
}

// TypingPayload is the body of typing.
type TypingPayload struct {
	RoomID   uint `json:"roomId"`
	IsTyping bool `json:"isTyping"`
}

// AddReactionPayload is the body of addReaction.
type AddReactionPayload struct {
	MessageID uint   `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// JoinRoomPayload is the body of joinRoom.
type JoinRoomPayload struct {
	RoomID uint `json:"roomId"`
}

// CreateRoomPayload is the body of createRoom. History access is keyed by
// user id; members missing from the map get access.
type CreateRoomPayload struct {
	Name          string        `json:"name"`
	UserIDs       []uint        `json:"userIds"`
	HistoryAccess map[uint]bool `json:"historyAccess"`
}

// AddUserToRoomPayload is the body of addUserToRoom.
type AddUserToRoomPayload struct {
	RoomID           uint `json:"roomId"`
	UserID           uint `json:"userId"`
	HasHistoryAccess bool `json:"hasHistoryAccess"`
}

// UserTypingEvent is broadcast to the room when someone starts or stops typing.
type UserTypingEvent struct {
	RoomID   uint   `json:"roomId"`
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// ReactionRemovedEvent tells the room which reaction disappeared.
type ReactionRemovedEvent struct {
	MessageID  uint `json:"messageId"`
	ReactionID uint `json:"reactionId"`
}

// RoomMessagesEvent answers joinRoom with the visible backlog.
type RoomMessagesEvent struct {
	RoomID   uint           `json:"roomId"`
	Messages []chat.Message `json:"messages"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
