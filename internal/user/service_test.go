package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/huddle/internal/auth"
	"github.com/Tyrowin/huddle/internal/chat"
	"github.com/Tyrowin/huddle/internal/store"
	"github.com/Tyrowin/huddle/internal/user"
)

func setupUsers(t *testing.T, names ...string) (*user.Service, []*chat.User) {
	t.Helper()

	db, err := store.Open(store.MemoryPath, store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := make([]*chat.User, 0, len(names))
	for _, name := range names {
		u := &chat.User{Username: name, PasswordHash: "x"}
		require.NoError(t, db.CreateUser(context.Background(), u))
		users = append(users, u)
	}
	return user.NewService(db), users
}

func ptr(s string) *string { return &s }

func TestProfile(t *testing.T) {
	svc, users := setupUsers(t, "alice")

	summary, err := svc.Profile(context.Background(), users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, auth.UserSummary{ID: users[0].ID, Username: "alice", Color: chat.DefaultColor}, summary)

	_, err = svc.Profile(context.Background(), 999)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	svc, users := setupUsers(t, "alice", "bob")
	ctx := context.Background()
	alice := users[0]

	summary, err := svc.UpdateProfile(ctx, alice.ID, user.ProfileUpdate{Username: ptr("alicia"), Color: ptr("#00ff00")})
	require.NoError(t, err)
	assert.Equal(t, "alicia", summary.Username)
	assert.Equal(t, "#00ff00", summary.Color)

	_, err = svc.UpdateProfile(ctx, alice.ID, user.ProfileUpdate{Username: ptr("bob")})
	assert.ErrorIs(t, err, user.ErrUsernameTaken)

	_, err = svc.UpdateProfile(ctx, alice.ID, user.ProfileUpdate{Color: ptr("green")})
	assert.ErrorIs(t, err, user.ErrInvalidColor)

	_, err = svc.UpdateProfile(ctx, alice.ID, user.ProfileUpdate{Username: ptr("x")})
	assert.ErrorIs(t, err, auth.ErrInvalidUsername)

	unchanged, err := svc.UpdateProfile(ctx, alice.ID, user.ProfileUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "alicia", unchanged.Username)
}

func TestList(t *testing.T) {
	svc, _ := setupUsers(t, "alice", "bob", "carol")

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alice", list[0].Username)
	assert.Equal(t, "carol", list[2].Username)
}
