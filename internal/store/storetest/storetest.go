// Package storetest holds behaviour every store.Store implementation must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roomwire/internal/store"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("RoomsAndGeneral", func(t *testing.T) { testRooms(t, newStore(t)) })
	t.Run("Membership", func(t *testing.T) { testMembership(t, newStore(t)) })
	t.Run("ConcurrentAddMember", func(t *testing.T) { testConcurrentAddMember(t, newStore(t)) })
	t.Run("MessagesAscending", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newStore(t)) })
	t.Run("DeleteUserCascades", func(t *testing.T) { testDeleteUser(t, newStore(t)) })
}

func mustUser(t *testing.T, st store.Store, name string) *store.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), name, "hash", store.RoleUser)
	require.NoError(t, err)
	return u
}

func mustRoom(t *testing.T, st store.Store, name string, creator int64, general bool) *store.Room {
	t.Helper()
	room := &store.Room{ID: uuid.NewString(), Name: name, CreatedBy: creator, IsGeneral: general}
	require.NoError(t, st.CreateRoom(context.Background(), room))
	return room
}

func testUsers(t *testing.T, st store.Store) {
	ctx := context.Background()

	alice := mustUser(t, st, "alice")
	require.Equal(t, store.RoleUser, alice.Role)

	byName, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, alice.ID, byName.ID)

	_, err = st.CreateUser(ctx, "alice", "hash", store.RoleUser)
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = st.GetUserByID(ctx, alice.ID+1000)
	require.ErrorIs(t, err, store.ErrNotFound)

	sys, err := st.CreateUser(ctx, store.SystemUsername, "", store.RoleSystem)
	require.NoError(t, err)
	require.Equal(t, store.RoleSystem, sys.Role)
}

func testRooms(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")

	general := mustRoom(t, st, "General", alice.ID, true)
	require.Equal(t, []int64{alice.ID}, general.Members)

	err := st.CreateRoom(ctx, &store.Room{ID: uuid.NewString(), Name: "Second General", CreatedBy: alice.ID, IsGeneral: true})
	require.ErrorIs(t, err, store.ErrConflict)

	err = st.CreateRoom(ctx, &store.Room{ID: uuid.NewString(), Name: "General", CreatedBy: alice.ID})
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := st.GetGeneralRoom(ctx)
	require.NoError(t, err)
	require.Equal(t, general.ID, got.ID)
	require.True(t, got.IsGeneral)

	anime := mustRoom(t, st, "Anime", alice.ID, false)
	byName, err := st.GetRoomByName(ctx, "Anime")
	require.NoError(t, err)
	require.Equal(t, anime.ID, byName.ID)

	rooms, err := st.ListRooms(ctx, false)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	require.Equal(t, general.ID, rooms[0].ID, "general room is listed first")
	require.Nil(t, rooms[0].Members)

	rooms, err = st.ListRooms(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []int64{alice.ID}, rooms[1].Members)

	_, err = st.GetRoom(ctx, uuid.NewString())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testMembership(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	room := mustRoom(t, st, "r1", alice.ID, false)

	member, err := st.IsMember(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, member)

	added, err := st.AddMember(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, added)

	added, err = st.AddMember(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, added, "second insert must be ignored")

	members, err := st.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{alice.ID, bob.ID}, members)

	forBob, err := st.ListRoomsForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	require.Equal(t, room.ID, forBob[0].ID)

	removed, err := st.RemoveMember(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = st.RemoveMember(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	require.False(t, removed)
}

func testConcurrentAddMember(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	room := mustRoom(t, st, "r1", alice.ID, false)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := st.AddMember(ctx, room.ID, bob.ID)
			if err != nil {
				t.Errorf("add member: %v", err)
				return
			}
			if added {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, inserted)
	members, err := st.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func testMessages(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	room := mustRoom(t, st, "r1", alice.ID, false)

	for i := range 5 {
		msg := &store.Message{RoomID: room.ID, SenderID: alice.ID, SenderName: "alice", Text: fmt.Sprintf("m%d", i)}
		require.NoError(t, st.AppendMessage(ctx, msg))
		require.NotZero(t, msg.ID)
		require.Equal(t, store.MessageTypeUser, msg.Type)
	}

	msgs, err := st.ListMessages(ctx, room.ID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "m2", msgs[0].Text)
	require.Equal(t, "m4", msgs[2].Text)
	for i := 1; i < len(msgs); i++ {
		require.Less(t, msgs[i-1].ID, msgs[i].ID)
		require.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}

	fresh := &store.Message{RoomID: room.ID, SenderID: 0, SenderName: store.SystemUsername, Text: "alice left", Type: store.MessageTypeSystem}
	require.NoError(t, st.AppendMessage(ctx, fresh))

	msgs, err = st.ListMessages(ctx, room.ID, 3)
	require.NoError(t, err)
	require.Equal(t, fresh.ID, msgs[len(msgs)-1].ID)
	require.Equal(t, store.MessageTypeSystem, msgs[len(msgs)-1].Type)

	empty, err := st.ListMessages(ctx, uuid.NewString(), 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testConcurrentAppend(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	room := mustRoom(t, st, "r1", alice.ID, false)

	var wg sync.WaitGroup
	for _, text := range []string{"from-a", "from-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := &store.Message{RoomID: room.ID, SenderID: alice.ID, SenderName: "alice", Text: text}
			if err := st.AppendMessage(ctx, msg); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs, err := st.ListMessages(ctx, room.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotEqual(t, msgs[0].ID, msgs[1].ID)
	require.ElementsMatch(t, []string{"from-a", "from-b"}, []string{msgs[0].Text, msgs[1].Text})
}

func testDeleteUser(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	room := mustRoom(t, st, "r1", alice.ID, false)
	_, err := st.AddMember(ctx, room.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, st.DeleteUser(ctx, bob.ID))
	require.ErrorIs(t, st.DeleteUser(ctx, bob.ID), store.ErrNotFound)

	members, err := st.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{alice.ID}, members)

	require.NoError(t, st.DeleteUser(ctx, alice.ID))
	got, err := st.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Zero(t, got.CreatedBy, "room survives its creator")
}
