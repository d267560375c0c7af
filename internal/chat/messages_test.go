package chat_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/huddle/internal/chat"
)

func TestValidateMessage(t *testing.T) {
	assert.NoError(t, chat.ValidateMessage("hello"))
	assert.ErrorIs(t, chat.ValidateMessage(""), chat.ErrInvalidContent)
	assert.ErrorIs(t, chat.ValidateMessage(" \n\t"), chat.ErrInvalidContent)
	assert.ErrorIs(t, chat.ValidateMessage(strings.Repeat("a", chat.MaxMessageLength+1)), chat.ErrInvalidContent)
	assert.ErrorIs(t, chat.ValidateMessage("\xff"), chat.ErrInvalidContent)
}

func TestValidateEmoji(t *testing.T) {
	assert.NoError(t, chat.ValidateEmoji("👍"))
	assert.ErrorIs(t, chat.ValidateEmoji(""), chat.ErrInvalidEmoji)
	assert.ErrorIs(t, chat.ValidateEmoji(strings.Repeat("x", chat.MaxEmojiLength+1)), chat.ErrInvalidEmoji)
}

func TestPostMessage(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	general, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)

	msg, err := svc.PostMessage(ctx, alice.ID, general.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, general.ID, msg.RoomID)
	require.NotNil(t, msg.User)
	assert.Equal(t, "alice", msg.User.Username)

	_, err = svc.PostMessage(ctx, alice.ID, 999, "hello")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = svc.PostMessage(ctx, 999, general.ID, "hello")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = svc.PostMessage(ctx, alice.ID, general.ID, "")
	assert.ErrorIs(t, err, chat.ErrInvalidContent)
}

// TestPostMessageWithoutMembership covers a non member posting to a named
// room: the write is accepted.
func TestPostMessageWithoutMembership(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	room, err := svc.CreateRoom(ctx, alice.ID, "team", nil, nil)
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, bob.ID, room.ID, "hi")
	assert.NoError(t, err)
}

func TestToggleReactionTwice(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	general, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	msg, err := svc.PostMessage(ctx, alice.ID, general.ID, "hello")
	require.NoError(t, err)

	added, err := svc.ToggleReaction(ctx, alice.ID, msg.ID, "👍")
	require.NoError(t, err)
	require.NotNil(t, added.Added)
	assert.Equal(t, general.ID, added.RoomID)

	removed, err := svc.ToggleReaction(ctx, alice.ID, msg.ID, "👍")
	require.NoError(t, err)
	assert.True(t, removed.Removed)
	assert.Equal(t, added.Added.ID, removed.ReactionID)
	assert.Equal(t, msg.ID, removed.MessageID)

	stored, err := svc.Message(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Reactions)
}

func TestToggleReactionDistinctEmoji(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	general, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	msg, err := svc.PostMessage(ctx, alice.ID, general.ID, "hello")
	require.NoError(t, err)

	for _, step := range []struct {
		userID uint
		emoji  string
	}{
		{alice.ID, "👍"},
		{alice.ID, "🎉"},
		{bob.ID, "👍"},
	} {
		toggle, err := svc.ToggleReaction(ctx, step.userID, msg.ID, step.emoji)
		require.NoError(t, err)
		require.NotNil(t, toggle.Added)
	}

	stored, err := svc.Message(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Reactions, 3)
}

// TestToggleReactionConcurrent runs an even number of toggles of the same
// reaction at once; every one succeeds and they cancel out.
func TestToggleReactionConcurrent(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	general, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	msg, err := svc.PostMessage(ctx, alice.ID, general.ID, "hello")
	require.NoError(t, err)

	const toggles = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		added   int
		removed int
	)
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			toggle, err := svc.ToggleReaction(ctx, alice.ID, msg.ID, "👍")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if toggle.Removed {
				removed++
			} else {
				added++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, toggles/2, added)
	assert.Equal(t, toggles/2, removed)

	stored, err := svc.Message(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Reactions)
}

func TestToggleReactionRejects(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	general, err := svc.EnsureGeneralRoom(ctx)
	require.NoError(t, err)
	msg, err := svc.PostMessage(ctx, alice.ID, general.ID, "hello")
	require.NoError(t, err)

	_, err = svc.ToggleReaction(ctx, alice.ID, msg.ID, "")
	assert.ErrorIs(t, err, chat.ErrInvalidEmoji)

	_, err = svc.ToggleReaction(ctx, alice.ID, 999, "👍")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = svc.ToggleReaction(ctx, 999, msg.ID, "👍")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}
