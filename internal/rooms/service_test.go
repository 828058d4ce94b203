package rooms

import (
	"context"
	"sync"
	"testing"

	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/log"
	"github.com/vovakirdan/roomwire/internal/store"
	"github.com/vovakirdan/roomwire/internal/store/sqlite"
)

type fixture struct {
	svc   *Service
	st    *sqlite.SQLiteStore
	alice *store.User
	bob   *store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := NewService(st, log.Nop())
	if err := svc.Bootstrap(context.Background(), []string{"Anime", "Video Games"}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice", "hash", store.RoleUser)
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := st.CreateUser(ctx, "bob", "hash", store.RoleUser)
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	return &fixture{svc: svc, st: st, alice: alice, bob: bob}
}

func (f *fixture) systemMessages(t *testing.T, roomID, text string) int {
	t.Helper()
	msgs, err := f.st.ListMessages(context.Background(), roomID, 1000)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	n := 0
	for _, m := range msgs {
		if m.Type == store.MessageTypeSystem && m.Text == text {
			n++
		}
	}
	return n
}

func TestJoinRecordsMembershipAndOneNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.Create(ctx, "r1", f.alice.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.svc.Join(ctx, room.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !res.Joined || res.Notice == nil || res.Notice.Text != "bob joined" {
		t.Fatalf("unexpected join result %+v", res)
	}

	member, err := f.svc.IsMember(ctx, room.ID, f.bob.ID)
	if err != nil || !member {
		t.Fatalf("expected bob to be a member, got %v %v", member, err)
	}

	again, err := f.svc.Join(ctx, room.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("second join should succeed idempotently, got %v", err)
	}
	if again.Joined || again.Notice != nil {
		t.Fatalf("second join must not transition, got %+v", again)
	}

	if n := f.systemMessages(t, room.ID, "bob joined"); n != 1 {
		t.Fatalf("expected exactly one join notice, got %d", n)
	}
	members, _ := f.st.ListMembers(ctx, room.ID)
	if len(members) != 2 {
		t.Fatalf("expected two members, got %v", members)
	}
}

func TestConcurrentJoinsProduceOneRowAndOneNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.Create(ctx, "r1", f.alice.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Join(ctx, room.ID, f.bob.ID)
			if err != nil {
				t.Errorf("join: %v", err)
				return
			}
			if res.Joined {
				mu.Lock()
				joined++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if joined != 1 {
		t.Fatalf("expected one transition, got %d", joined)
	}
	if n := f.systemMessages(t, room.ID, "bob joined"); n != 1 {
		t.Fatalf("expected exactly one join notice, got %d", n)
	}
	if f.svc.locks.size() != 0 {
		t.Fatalf("expected room locks to be released")
	}
}

func TestJoinUnknownRoomOrUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Join(ctx, "missing", f.bob.ID); !errs.Is(err, errs.CodeRoomNotFound) {
		t.Fatalf("expected ROOM_NOT_FOUND, got %v", err)
	}

	room, _ := f.svc.Create(ctx, "r1", f.alice.ID, false)
	if _, err := f.svc.Join(ctx, room.ID, 9999); !errs.Is(err, errs.CodeUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestCreatorCannotLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.Create(ctx, "carols-room", f.alice.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Leave(ctx, room.ID, f.alice.ID)
	if errs.KindOf(err) != errs.KindForbidden || !errs.Is(err, errs.CodeCannotLeaveOwnRoom) {
		t.Fatalf("expected CANNOT_LEAVE_OWN_ROOM, got %v", err)
	}

	// Still forbidden after the membership row is gone.
	if _, err := f.st.RemoveMember(ctx, room.ID, f.alice.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := f.svc.Leave(ctx, room.ID, f.alice.ID); !errs.Is(err, errs.CodeCannotLeaveOwnRoom) {
		t.Fatalf("expected CANNOT_LEAVE_OWN_ROOM regardless of membership, got %v", err)
	}
}

func TestNobodyLeavesGeneral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	general, err := f.st.GetGeneralRoom(ctx)
	if err != nil {
		t.Fatalf("general: %v", err)
	}
	if _, err := f.svc.AddToGeneral(ctx, f.bob); err != nil {
		t.Fatalf("add to general: %v", err)
	}

	systemID, _ := f.svc.SystemPrincipal()
	for _, id := range []int64{f.bob.ID, f.alice.ID, systemID} {
		_, err := f.svc.Leave(ctx, general.ID, id)
		if !errs.Is(err, errs.CodeCannotLeaveGeneral) {
			t.Fatalf("user %d: expected CANNOT_LEAVE_GENERAL, got %v", id, err)
		}
	}
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, _ := f.svc.Create(ctx, "r1", f.alice.ID, false)

	if _, err := f.svc.Leave(ctx, room.ID, f.bob.ID); !errs.Is(err, errs.CodeNotAMember) {
		t.Fatalf("expected NOT_A_MEMBER, got %v", err)
	}

	if _, err := f.svc.Join(ctx, room.ID, f.bob.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	notice, err := f.svc.Leave(ctx, room.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if notice.Text != "bob left" || notice.Type != store.MessageTypeSystem {
		t.Fatalf("unexpected leave notice %+v", notice)
	}
	if member, _ := f.svc.IsMember(ctx, room.ID, f.bob.ID); member {
		t.Fatalf("expected bob to be gone")
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "Another General", f.alice.ID, true); !errs.Is(err, errs.CodeGeneralExists) {
		t.Fatalf("expected GENERAL_EXISTS, got %v", err)
	}
	if _, err := f.svc.Create(ctx, "Anime", f.alice.ID, false); !errs.Is(err, errs.CodeRoomExists) {
		t.Fatalf("expected ROOM_EXISTS, got %v", err)
	}
	if _, err := f.svc.Create(ctx, "   ", f.alice.ID, false); errs.KindOf(err) != errs.KindBadRequest {
		t.Fatalf("expected bad request for blank name, got %v", err)
	}
	if _, err := f.svc.Create(ctx, "ghost", 9999, false); !errs.Is(err, errs.CodeUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}

	room, err := f.svc.Create(ctx, "  r2  ", f.alice.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if room.Name != "r2" || len(room.Members) != 1 || room.Members[0] != f.alice.ID {
		t.Fatalf("expected creator as sole member, got %+v", room)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.Bootstrap(ctx, []string{"Anime", "Video Games", "Music"}); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	rooms, err := f.svc.List(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		names = append(names, r.Name)
	}
	if len(rooms) != 4 || !rooms[0].IsGeneral || rooms[0].Name != GeneralRoomName {
		t.Fatalf("unexpected rooms %v", names)
	}

	sys, err := f.st.GetUserByUsername(ctx, store.SystemUsername)
	if err != nil || sys.Role != store.RoleSystem || sys.PasswordHash != "" {
		t.Fatalf("unexpected system user %+v %v", sys, err)
	}
}

func TestAddToGeneral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	notice, err := f.svc.AddToGeneral(ctx, f.alice)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if notice == nil || notice.Text != "alice was added" {
		t.Fatalf("unexpected notice %+v", notice)
	}

	again, err := f.svc.AddToGeneral(ctx, f.alice)
	if err != nil || again != nil {
		t.Fatalf("expected no-op on second add, got %+v %v", again, err)
	}

	rooms, err := f.svc.ListForUser(ctx, f.alice.ID)
	if err != nil || len(rooms) != 1 || !rooms[0].IsGeneral {
		t.Fatalf("expected alice only in general, got %v %v", rooms, err)
	}
}

func TestWhileMemberRunsOnlyForMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.Create(ctx, "r1", f.alice.ID, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	calls := 0
	ok, err := f.svc.WhileMember(ctx, room.ID, f.bob.ID, func() { calls++ })
	if err != nil || ok || calls != 0 {
		t.Fatalf("non-member: ok=%v calls=%d err=%v", ok, calls, err)
	}

	ok, err = f.svc.WhileMember(ctx, room.ID, f.alice.ID, func() {
		calls++
		// The room lock is held, so a concurrent leave must wait for fn.
		if f.svc.locks.size() != 1 {
			t.Errorf("expected the room lock to be held")
		}
	})
	if err != nil || !ok || calls != 1 {
		t.Fatalf("member: ok=%v calls=%d err=%v", ok, calls, err)
	}
	if f.svc.locks.size() != 0 {
		t.Fatalf("room lock leaked")
	}
}
