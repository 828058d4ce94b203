package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/store"
	"github.com/vovakirdan/roomwire/internal/store/sqlite"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
}

func newTestAuthService(t *testing.T) (*Service, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return NewService(st, testJWTConfig()), st
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, err := svc.Register(ctx, " ab ", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	if _, err := svc.Register(ctx, "System", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected reserved name to be rejected, got %v", err)
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	if _, err := svc.Register(context.Background(), "abc", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_TrimsUsernameAndRunsHook(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	var hooked []string
	svc.OnRegister(func(_ context.Context, user *store.User) error {
		hooked = append(hooked, user.Username)
		return nil
	})

	session, err := svc.Register(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if session.Token == "" || session.Principal.Username != "alice" || session.Principal.Role != store.RoleUser {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(hooked) != 1 || hooked[0] != "alice" {
		t.Fatalf("expected hook for alice, got %v", hooked)
	}

	// Should collide because the stored username is trimmed.
	if _, err := svc.Register(ctx, "alice", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegister_HookFailureRollsBackAccount(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	hookErr := errors.New("general room unavailable")
	fail := true
	svc.OnRegister(func(context.Context, *store.User) error {
		if fail {
			return hookErr
		}
		return nil
	})

	if _, err := svc.Register(ctx, "dave", "password123"); !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if _, err := st.GetUserByUsername(ctx, "dave"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected account to be rolled back, got %v", err)
	}

	fail = false
	session, err := svc.Register(ctx, "dave", "password123")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if session.Principal.Username != "dave" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	session, err := svc.Login(ctx, "bob", "password123")
	if err != nil {
		t.Fatalf("expected login success, got %v", err)
	}

	p, err := svc.Verify(ctx, session.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Username != "bob" {
		t.Fatalf("unexpected principal %+v", p)
	}

	if _, err := svc.Login(ctx, "bob", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLogin_RefusesSystemAccount(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := st.CreateUser(ctx, store.SystemUsername, hash, store.RoleSystem); err != nil {
		t.Fatalf("create system user: %v", err)
	}

	if _, err := svc.Login(ctx, store.SystemUsername, "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected system login to be refused, got %v", err)
	}
}

func TestVerify_RejectsDeletedAccount(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, "carol", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := st.DeleteUser(ctx, session.Principal.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err = svc.Verify(ctx, session.Token)
	if errs.KindOf(err) != errs.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
