// Package bus carries account lifecycle notifications from the REST surface to
// the hubs that hold live connections.
package bus

import (
	"context"
	"sync"
)

// UserDeletedHandler reacts to an account removal.
type UserDeletedHandler func(ctx context.Context, userID int64)

// Bus publishes and delivers user-deleted notifications.
type Bus interface {
	PublishUserDeleted(ctx context.Context, userID int64) error
	SubscribeUserDeleted(h UserDeletedHandler) error
	Close() error
}

// Local delivers notifications to in-process subscribers.
type Local struct {
	mu       sync.RWMutex
	handlers []UserDeletedHandler
	closed   bool
}

// NewLocal creates an in-process bus.
func NewLocal() *Local {
	return &Local{}
}

// PublishUserDeleted calls every subscriber synchronously.
func (b *Local) PublishUserDeleted(ctx context.Context, userID int64) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]UserDeletedHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, userID)
	}
	return nil
}

// SubscribeUserDeleted registers h.
func (b *Local) SubscribeUserDeleted(h UserDeletedHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.handlers = append(b.handlers, h)
	return nil
}

// Close drops every subscriber.
func (b *Local) Close() error {
	b.mu.Lock()
	b.closed = true
	b.handlers = nil
	b.mu.Unlock()
	return nil
}
