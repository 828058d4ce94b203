package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/roomwire/internal/auth"
)

func newClockedRegistry(start time.Time) (*Registry, func(time.Duration)) {
	r := NewRegistry()
	now := start
	r.now = func() time.Time { return now }
	return r, func(d time.Duration) { now = now.Add(d) }
}

var alice = auth.Principal{ID: 1, Username: "alice"}

func TestLastConnectionWins(t *testing.T) {
	r := NewRegistry()

	r.Register(alice, "conn1")
	r.Register(alice, "conn2")

	entries := r.List()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].ConnID != "conn2" {
		t.Fatalf("expected conn2 to win, got %s", entries[0].ConnID)
	}

	if !r.UnregisterConn(alice.ID, "conn2") {
		t.Fatalf("expected conn2 to unregister")
	}
	if r.Len() != 0 {
		t.Fatalf("expected entry removed after conn2 disconnect")
	}

	// conn1 closing later is a no-op.
	if r.UnregisterConn(alice.ID, "conn1") {
		t.Fatalf("stale connection must not report removal")
	}
}

func TestStaleUnregisterKeepsNewerEntry(t *testing.T) {
	r := NewRegistry()

	r.Register(alice, "conn1")
	r.Register(alice, "conn2")

	if r.UnregisterConn(alice.ID, "conn1") {
		t.Fatalf("stale connection must not evict the newer one")
	}
	if e, ok := r.Get(alice.ID); !ok || e.ConnID != "conn2" {
		t.Fatalf("expected conn2 entry to survive, got %+v %v", e, ok)
	}

	if !r.Unregister(alice.ID) {
		t.Fatalf("expected unconditional unregister to remove entry")
	}
	if r.Unregister(alice.ID) {
		t.Fatalf("second unregister should report nothing removed")
	}
}

func TestTouch(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r, advance := newClockedRegistry(start)

	r.Touch(alice.ID) // unknown principal, no panic, no entry
	if r.Len() != 0 {
		t.Fatalf("touch must not create entries")
	}

	r.Register(alice, "conn1")
	advance(time.Minute)
	r.Touch(alice.ID)

	e, _ := r.Get(alice.ID)
	if !e.LastActiveAt.Equal(start.Add(time.Minute)) {
		t.Fatalf("expected touched timestamp, got %v", e.LastActiveAt)
	}
}

func TestListIsSortedSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register(auth.Principal{ID: 3, Username: "carol"}, "c")
	r.Register(auth.Principal{ID: 2, Username: "bob"}, "b")
	r.Register(alice, "a")

	list := r.List()
	if list[0].Username != "alice" || list[1].Username != "bob" || list[2].Username != "carol" {
		t.Fatalf("unexpected order %+v", list)
	}

	list[0].Username = "mutated"
	if e, _ := r.Get(alice.ID); e.Username != "alice" {
		t.Fatalf("snapshot must not alias registry state")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := auth.Principal{ID: int64(i % 5), Username: fmt.Sprintf("u%d", i%5)}
			conn := fmt.Sprintf("conn-%d", i)
			r.Register(p, conn)
			r.Touch(p.ID)
			_ = r.List()
			r.UnregisterConn(p.ID, conn)
		}()
	}
	wg.Wait()

	if r.Len() > 5 {
		t.Fatalf("expected at most one entry per principal, got %d", r.Len())
	}
}
