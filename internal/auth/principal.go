package auth

import (
	"context"

	"github.com/vovakirdan/roomwire/internal/store"
)

// Principal is the authenticated identity attached to a connection.
type Principal struct {
	ID       int64
	Username string
	Role     store.Role
}

// IsSystem reports whether the principal is the reserved system account.
func (p Principal) IsSystem() bool {
	return p.Role == store.RoleSystem
}

// TokenVerifier validates a raw bearer credential.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Principal, error)
}

// VerifierFunc adapts a function to TokenVerifier.
type VerifierFunc func(ctx context.Context, raw string) (Principal, error)

func (f VerifierFunc) Verify(ctx context.Context, raw string) (Principal, error) {
	return f(ctx, raw)
}
