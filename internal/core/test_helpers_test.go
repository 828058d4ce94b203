package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/log"
	"github.com/vovakirdan/roomwire/internal/presence"
	"github.com/vovakirdan/roomwire/internal/rooms"
	"github.com/vovakirdan/roomwire/internal/store"
	"github.com/vovakirdan/roomwire/internal/store/sqlite"
)

type testEnv struct {
	hub      *Hub
	rooms    *rooms.Service
	st       *sqlite.SQLiteStore
	presence *presence.Registry
	general  *store.Room
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := rooms.NewService(st, log.Nop())
	if err := svc.Bootstrap(context.Background(), nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	general, err := st.GetGeneralRoom(context.Background())
	if err != nil {
		t.Fatalf("general: %v", err)
	}

	reg := presence.NewRegistry()
	hub := NewHub(svc, st, reg, Options{HistoryLimit: 50, MaxMessageBytes: 64}, log.Nop())
	return &testEnv{hub: hub, rooms: svc, st: st, presence: reg, general: general}
}

// user creates an account enrolled in the general room.
func (e *testEnv) user(t *testing.T, name string) auth.Principal {
	t.Helper()
	ctx := context.Background()
	u, err := e.st.CreateUser(ctx, name, "hash", store.RoleUser)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	if _, err := e.rooms.AddToGeneral(ctx, u); err != nil {
		t.Fatalf("add %s to general: %v", name, err)
	}
	return auth.Principal{ID: u.ID, Username: u.Username, Role: u.Role}
}

func (e *testEnv) connect(t *testing.T, p auth.Principal, connID string) *Client {
	t.Helper()
	c := NewClient(connID, p, 64)
	e.hub.Connect(context.Background(), c)
	t.Cleanup(func() { e.hub.Disconnect(c) })
	return c
}

func (e *testEnv) messages(t *testing.T, roomID string) []*store.Message {
	t.Helper()
	msgs, err := e.st.ListMessages(context.Background(), roomID, 1000)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return msgs
}

func mustEvent(t *testing.T, c *Client, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

func mustNotice(t *testing.T, c *Client, code string) *Notice {
	t.Helper()
	ev := mustEvent(t, c, EventNotice)
	if ev.Notice == nil || ev.Notice.Code != code {
		t.Fatalf("expected notice %s, got %+v", code, ev.Notice)
	}
	return ev.Notice
}

// drain discards queued events and returns those of kind.
func drain(c *Client, kind EventKind) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}
