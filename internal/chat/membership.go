package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Service decides room access and carries out chat writes on top of a Store.
type Service struct {
	store Store
	log   zerolog.Logger
	sf    singleflight.Group
}

// NewService creates a chat service backed by store.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "chat").Logger(),
	}
}

// ValidateRoomName validates a room name.
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxRoomNameLength || !utf8.ValidString(name) {
		return ErrInvalidRoomName
	}
	return nil
}

// EnsureGeneralRoom returns the General room, creating it when absent.
// Concurrent callers share one lookup; a lost insert race re-reads the winner.
func (s *Service) EnsureGeneralRoom(ctx context.Context) (*Room, error) {
	v, err, _ := s.sf.Do("general", func() (any, error) {
		room, err := s.store.GeneralRoom(ctx)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to look up general room: %w", err)
		}

		room, err = s.store.CreateGeneralRoom(ctx, GeneralRoomName)
		if errors.Is(err, ErrGeneralExists) {
			return s.store.GeneralRoom(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create general room: %w", err)
		}
		s.log.Info().Uint("room_id", room.ID).Msg("general room created")
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

// GeneralRoom returns the General room without creating it.
func (s *Service) GeneralRoom(ctx context.Context) (*Room, error) {
	return s.store.GeneralRoom(ctx)
}

// Room returns the room with the given id.
func (s *Service) Room(ctx context.Context, id uint) (*Room, error) {
	return s.store.RoomByID(ctx, id)
}

// ListRoomsFor returns every room userID is a member of, General first.
func (s *Service) ListRoomsFor(ctx context.Context, userID uint) ([]Room, error) {
	rooms, err := s.store.RoomsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	general, err := s.store.GeneralRoom(ctx)
	if errors.Is(err, ErrNotFound) {
		return rooms, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up general room: %w", err)
	}

	for _, r := range rooms {
		if r.ID == general.ID {
			return rooms, nil
		}
	}
	return append([]Room{*general}, rooms...), nil
}

// CreateRoom creates a named room owned by creatorID with the given members.
// Members get history access unless historyAccess maps them to false; the
// creator always has it. Member ids that do not resolve to users are skipped.
func (s *Service) CreateRoom(ctx context.Context, creatorID uint, name string, memberIDs []uint, historyAccess map[uint]bool) (*Room, error) {
	if err := ValidateRoomName(name); err != nil {
		return nil, err
	}
	if _, err := s.store.UserByID(ctx, creatorID); err != nil {
		return nil, err
	}

	seen := map[uint]struct{}{creatorID: {}}
	members := []Membership{{UserID: creatorID, HasHistoryAccess: true}}
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, err := s.store.UserByID(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				s.log.Debug().Uint("user_id", id).Msg("skipping unknown room member")
				continue
			}
			return nil, err
		}
		access, set := historyAccess[id]
		members = append(members, Membership{UserID: id, HasHistoryAccess: !set || access})
	}

	room := &Room{Name: strings.TrimSpace(name), Kind: RoomNamed}
	if err := s.store.CreateRoom(ctx, room, members); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	s.log.Info().Uint("room_id", room.ID).Uint("creator_id", creatorID).Int("members", len(room.Members)).Msg("room created")
	return room, nil
}

// AddMember adds userID to roomID. An existing membership is left untouched
// and reported as ErrAlreadyMember.
func (s *Service) AddMember(ctx context.Context, roomID, userID uint, hasHistoryAccess bool) (*Room, error) {
	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsGeneral() {
		return nil, ErrGeneralRoom
	}
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, err
	}

	m := &Membership{RoomID: room.ID, UserID: userID, HasHistoryAccess: hasHistoryAccess}
	if err := s.store.AddMembership(ctx, m); err != nil {
		return nil, err
	}
	return room, nil
}

// CanRead reports the history access userID has on roomID. A missing
// membership means the backlog is hidden, not that the room is closed.
func (s *Service) CanRead(ctx context.Context, userID, roomID uint) (HistoryAccess, error) {
	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return HistoryNone, err
	}
	if room.IsGeneral() {
		return HistoryGeneral, nil
	}

	m, err := s.store.Membership(ctx, roomID, userID)
	if errors.Is(err, ErrNotFound) {
		return HistoryNone, nil
	}
	if err != nil {
		return HistoryNone, err
	}
	if m.HasHistoryAccess {
		return HistoryFull, nil
	}
	return HistoryNone, nil
}

// History returns the room backlog visible to userID, oldest first. It is
// empty when the room is missing or the user has no history access.
func (s *Service) History(ctx context.Context, userID, roomID uint) ([]Message, error) {
	access, err := s.CanRead(ctx, userID, roomID)
	if errors.Is(err, ErrNotFound) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !access.AllowsHistory() {
		return []Message{}, nil
	}

	msgs, err := s.store.RoomMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room messages: %w", err)
	}
	return msgs, nil
}
