// Package server implements the realtime actions a session can send and the
// events each successful action publishes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tyrowin/huddle/internal/chat"
)

// Drop is an action that was refused. It is logged and counted; the client
// gets no reply.
type Drop struct {
	Action string
	Reason string
}

func (d *Drop) Error() string {
	return fmt.Sprintf("%s dropped: %s", d.Action, d.Reason)
}

func drop(action, reason string) error {
	return &Drop{Action: action, Reason: reason}
}

// dropOnDomainError turns expected chat errors into drops and passes
// everything else through as a failure.
func dropOnDomainError(action string, err error) error {
	switch {
	case errors.Is(err, chat.ErrNotFound),
		errors.Is(err, chat.ErrAlreadyMember),
		errors.Is(err, chat.ErrGeneralRoom),
		errors.Is(err, chat.ErrInvalidRoomName),
		errors.Is(err, chat.ErrInvalidContent),
		errors.Is(err, chat.ErrInvalidEmoji):
		return drop(action, err.Error())
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func decode(action string, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return drop(action, "missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return drop(action, "malformed payload")
	}
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, _ *Session, userID uint, data json.RawMessage) error {
	var p SendMessagePayload
	if err := decode(ActionSendMessage, data, &p); err != nil {
		return err
	}

	msg, err := g.chat.PostMessage(ctx, userID, p.RoomID, p.Content)
	if err != nil {
		return dropOnDomainError(ActionSendMessage, err)
	}
	g.hub.Publish(msg.RoomID, Event{Name: EventNewMessage, Payload: msg}, nil)
	return nil
}

func (g *Gateway) handleTyping(ctx context.Context, s *Session, userID uint, data json.RawMessage) error {
	var p TypingPayload
	if err := decode(ActionTyping, data, &p); err != nil {
		return err
	}

	user, err := g.chat.User(ctx, userID)
	if err != nil {
		return dropOnDomainError(ActionTyping, err)
	}
	g.hub.Publish(p.RoomID, Event{Name: EventUserTyping, Payload: UserTypingEvent{
		RoomID:   p.RoomID,
		UserID:   user.ID,
		Username: user.Username,
		IsTyping: p.IsTyping,
	}}, s)
	return nil
}

func (g *Gateway) handleAddReaction(ctx context.Context, _ *Session, userID uint, data json.RawMessage) error {
	var p AddReactionPayload
	if err := decode(ActionAddReaction, data, &p); err != nil {
		return err
	}

	toggle, err := g.chat.ToggleReaction(ctx, userID, p.MessageID, p.Emoji)
	if err != nil {
		return dropOnDomainError(ActionAddReaction, err)
	}

	if toggle.Removed {
		g.hub.Publish(toggle.RoomID, Event{Name: EventReactionRemoved, Payload: ReactionRemovedEvent{
			MessageID:  toggle.MessageID,
			ReactionID: toggle.ReactionID,
		}}, nil)
		return nil
	}
	g.hub.Publish(toggle.RoomID, Event{Name: EventReactionAdded, Payload: toggle.Added}, nil)
	return nil
}

func (g *Gateway) handleJoinRoom(ctx context.Context, s *Session, userID uint, data json.RawMessage) error {
	var p JoinRoomPayload
	if err := decode(ActionJoinRoom, data, &p); err != nil {
		return err
	}

	if _, err := g.chat.Room(ctx, p.RoomID); err != nil {
		return dropOnDomainError(ActionJoinRoom, err)
	}
	if !g.hub.Subscribe(s, p.RoomID) {
		return drop(ActionJoinRoom, "session is no longer attached")
	}
	if err := s.markSubscribed(); err != nil {
		return drop(ActionJoinRoom, err.Error())
	}

	msgs, err := g.chat.History(ctx, userID, p.RoomID)
	if err != nil {
		return fmt.Errorf("%s: %w", ActionJoinRoom, err)
	}
	g.hub.Deliver(s, Event{Name: EventRoomMessages, Payload: RoomMessagesEvent{RoomID: p.RoomID, Messages: msgs}})
	return nil
}

func (g *Gateway) handleGetRooms(ctx context.Context, s *Session, userID uint, _ json.RawMessage) error {
	rooms, err := g.chat.ListRoomsFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", ActionGetRooms, err)
	}
	g.hub.Deliver(s, Event{Name: EventUserRooms, Payload: rooms})
	return nil
}

func (g *Gateway) handleCreateRoom(ctx context.Context, _ *Session, userID uint, data json.RawMessage) error {
	var p CreateRoomPayload
	if err := decode(ActionCreateRoom, data, &p); err != nil {
		return err
	}

	room, err := g.chat.CreateRoom(ctx, userID, p.Name, p.UserIDs, p.HistoryAccess)
	if err != nil {
		return dropOnDomainError(ActionCreateRoom, err)
	}
	for _, m := range room.Members {
		g.invite(m.UserID, room)
	}
	return nil
}

func (g *Gateway) handleAddUserToRoom(ctx context.Context, _ *Session, _ uint, data json.RawMessage) error {
	var p AddUserToRoomPayload
	if err := decode(ActionAddUserToRoom, data, &p); err != nil {
		return err
	}

	room, err := g.chat.AddMember(ctx, p.RoomID, p.UserID, p.HasHistoryAccess)
	if err != nil {
		return dropOnDomainError(ActionAddUserToRoom, err)
	}
	g.invite(p.UserID, room)
	return nil
}
