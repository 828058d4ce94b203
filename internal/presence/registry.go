// Package presence tracks which principals currently hold a live connection.
//
// The registry is process-local and volatile: a restart drops it and clients
// re-register on their next handshake.
package presence

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/vovakirdan/roomwire/internal/auth"
)

// Entry is one online principal.
type Entry struct {
	UserID       int64
	Username     string
	ConnID       string
	LastActiveAt time.Time
}

// Registry maps principal id to its latest connection.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]Entry
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[int64]Entry),
		now:     time.Now,
	}
}

// Register records p as online through connID, replacing any earlier connection.
func (r *Registry) Register(p auth.Principal, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[p.ID] = Entry{
		UserID:       p.ID,
		Username:     p.Username,
		ConnID:       connID,
		LastActiveAt: r.now(),
	}
}

// Unregister removes the principal regardless of which connection registered it.
func (r *Registry) Unregister(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return false
	}
	delete(r.entries, userID)
	return true
}

// UnregisterConn removes the entry only while it still belongs to connID.
// A closing older tab must not evict the newer connection.
func (r *Registry) UnregisterConn(userID int64, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok || e.ConnID != connID {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Touch refreshes LastActiveAt. Unknown principals are ignored.
func (r *Registry) Touch(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.LastActiveAt = r.now()
		r.entries[userID] = e
	}
}

// Get returns the entry for userID.
func (r *Registry) Get(userID int64) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	return e, ok
}

// List returns a snapshot ordered by username, then id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Username, b.Username), cmp.Compare(a.UserID, b.UserID))
	})
	return out
}

// Len returns the number of online principals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
