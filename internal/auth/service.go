package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errs.New(errs.KindUnauthorized, errs.CodeInvalidCredentials, "invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errs.Conflict(errs.CodeUserExists, "user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errs.BadRequest(errs.CodeBadRequest, "username must be 3 to 32 characters")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errs.BadRequest(errs.CodeBadRequest, "password must be at least 6 characters")
)

// Session is the result of a successful register or login.
type Session struct {
	Token     string
	Principal Principal
}

// RegistrationHook runs after a user row is created.
type RegistrationHook func(ctx context.Context, user *store.User) error

// Service provides authentication operations.
type Service struct {
	store      store.UserStore
	jwtConfig  *JWTConfig
	onRegister RegistrationHook
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// OnRegister installs a hook run for each newly registered user.
func (s *Service) OnRegister(hook RegistrationHook) {
	s.onRegister = hook
}

// Register creates a new user with hashed password and returns a session.
func (s *Service) Register(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 || strings.EqualFold(username, store.SystemUsername) {
		return Session{}, ErrInvalidUsername
	}
	if len(password) < 6 {
		return Session{}, ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword, store.RoleUser)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Session{}, ErrUserExists
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	if s.onRegister != nil {
		if err := s.onRegister(ctx, user); err != nil {
			// Roll the account back so the username stays free for a retry.
			if delErr := s.store.DeleteUser(context.WithoutCancel(ctx), user.ID); delErr != nil {
				return Session{}, fmt.Errorf("registration hook: %w (rollback: %v)", err, delErr)
			}
			return Session{}, fmt.Errorf("registration hook: %w", err)
		}
	}

	return s.issue(user)
}

// Login validates credentials and returns a session.
// The system account can never log in.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, errs.StoreFailure(err)
	}
	if user.Role == store.RoleSystem {
		return Session{}, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return Session{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Verify validates a JWT token and resolves the current account behind it.
// Tokens of deleted accounts are rejected.
func (s *Service) Verify(ctx context.Context, raw string) (Principal, error) {
	claims, err := ValidateToken(s.jwtConfig, raw)
	if err != nil {
		return Principal{}, errs.Wrap(err, errs.KindUnauthorized, errs.CodeUnauthorized, "invalid token")
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Principal{}, errs.Unauthorized("account no longer exists")
		}
		return Principal{}, errs.Wrap(err, errs.KindUnauthorized, errs.CodeUnauthorized, "cannot resolve account")
	}

	return principalOf(user), nil
}

func (s *Service) issue(user *store.User) (Session, error) {
	p := principalOf(user)
	token, err := GenerateToken(s.jwtConfig, p)
	if err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}
	return Session{Token: token, Principal: p}, nil
}

func principalOf(user *store.User) Principal {
	return Principal{ID: user.ID, Username: user.Username, Role: user.Role}
}
