package chat_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/huddle/internal/chat"
	"github.com/Tyrowin/huddle/internal/store"
)

func setupService(t *testing.T) (*chat.Service, *store.Store) {
	t.Helper()

	db, err := store.Open(store.MemoryPath, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return chat.NewService(db, zerolog.Nop()), db
}

func createUser(t *testing.T, db *store.Store, name string) *chat.User {
	t.Helper()

	u := &chat.User{Username: name, PasswordHash: "x"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func TestValidateRoomName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "team", false},
		{"padded", "  team  ", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"max length", strings.Repeat("a", chat.MaxRoomNameLength), false},
		{"too long", strings.Repeat("a", chat.MaxRoomNameLength+1), true},
		{"invalid utf8", "\xff\xfe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chat.ValidateRoomName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, chat.ErrInvalidRoomName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureGeneralRoomIsIdempotent(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	assert.True(t, first.IsGeneral())
	assert.Equal(t, chat.GeneralRoomName, first.Name)

	second, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestEnsureGeneralRoomConcurrent(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	const callers = 16
	ids := make([]uint, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := svc.EnsureGeneralRoom(ctx)
			if assert.NoError(t, err) {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestEnsureGeneralRoomAcrossServices(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	first, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)

	other := chat.NewService(db, zerolog.Nop())
	second, err := other.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestListRoomsForPrependsGeneral(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")

	general, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)

	rooms, err := svc.ListRoomsFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, general.ID, rooms[0].ID)

	team, err := svc.CreateRoom(ctx, alice.ID, "team", nil, nil)
	require.NoError(t, err)

	rooms, err = svc.ListRoomsFor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, general.ID, rooms[0].ID)
	assert.Equal(t, team.ID, rooms[1].ID)
}

func TestCreateRoom(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	room, err := svc.CreateRoom(ctx, alice.ID, " team ", []uint{bob.ID, carol.ID, bob.ID, alice.ID, 999}, map[uint]bool{
		alice.ID: false,
		carol.ID: false,
	})
	require.NoError(t, err)
	assert.Equal(t, "team", room.Name)
	assert.False(t, room.IsGeneral())
	require.Len(t, room.Members, 3)

	access := map[uint]bool{}
	for _, m := range room.Members {
		access[m.UserID] = m.HasHistoryAccess
	}
	assert.True(t, access[alice.ID], "creator always has history access")
	assert.True(t, access[bob.ID], "members missing from the map get access")
	assert.False(t, access[carol.ID])
}

func TestCreateRoomRejects(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")

	_, err := svc.CreateRoom(ctx, alice.ID, "", nil, nil)
	assert.ErrorIs(t, err, chat.ErrInvalidRoomName)

	_, err = svc.CreateRoom(ctx, 999, "team", nil, nil)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestAddMember(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	room, err := svc.CreateRoom(ctx, alice.ID, "team", nil, nil)
	require.NoError(t, err)

	_, err = svc.AddMember(ctx, room.ID, bob.ID, false)
	require.NoError(t, err)

	_, err = svc.AddMember(ctx, room.ID, bob.ID, true)
	assert.ErrorIs(t, err, chat.ErrAlreadyMember)

	access, err := svc.CanRead(ctx, bob.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.HistoryNone, access, "duplicate add must not change the existing membership")

	_, err = svc.AddMember(ctx, room.ID, 999, true)
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = svc.AddMember(ctx, 999, bob.ID, true)
	assert.ErrorIs(t, err, chat.ErrNotFound)

	general, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, general.ID, bob.ID, true)
	assert.ErrorIs(t, err, chat.ErrGeneralRoom)
}

func TestCanRead(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	general, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	room, err := svc.CreateRoom(ctx, alice.ID, "team", []uint{bob.ID}, map[uint]bool{bob.ID: false})
	require.NoError(t, err)

	tests := []struct {
		name   string
		userID uint
		roomID uint
		want   chat.HistoryAccess
	}{
		{"general for anyone", carol.ID, general.ID, chat.HistoryGeneral},
		{"member with access", alice.ID, room.ID, chat.HistoryFull},
		{"member without access", bob.ID, room.ID, chat.HistoryNone},
		{"non member", carol.ID, room.ID, chat.HistoryNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CanRead(ctx, tt.userID, tt.roomID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = svc.CanRead(ctx, alice.ID, 999)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestHistory(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	room, err := svc.CreateRoom(ctx, alice.ID, "team", []uint{bob.ID}, map[uint]bool{bob.ID: false})
	require.NoError(t, err)
	for _, content := range []string{"one", "two", "three"} {
		_, err := svc.PostMessage(ctx, alice.ID, room.ID, content)
		require.NoError(t, err)
	}

	msgs, err := svc.History(ctx, alice.ID, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	msgs, err = svc.History(ctx, bob.ID, room.ID)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)

	msgs, err = svc.History(ctx, carol.ID, room.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = svc.History(ctx, alice.ID, 999)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
