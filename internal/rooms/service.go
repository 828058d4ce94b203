// Package rooms owns room membership: creation, join and leave transitions,
// and the system notices those transitions write to the message log.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/store"
)

// GeneralRoomName is the name the general room is seeded with.
const GeneralRoomName = "General"

const maxRoomNameLen = 64

// JoinResult describes the outcome of Join.
type JoinResult struct {
	Room *store.Room
	// Joined is false when the principal was already a member.
	Joined bool
	// Notice is the system message recording the join, nil when Joined is false.
	Notice *store.Message
}

// Service enforces the structural membership rules on top of a store.
type Service struct {
	st    store.Store
	locks *keyedMutex
	log   *zerolog.Logger

	mu     sync.RWMutex
	system *store.User
}

// NewService builds a membership service.
func NewService(st store.Store, logger *zerolog.Logger) *Service {
	l := logger.With().Str("component", "rooms").Logger()
	return &Service{
		st:    st,
		locks: newKeyedMutex(),
		log:   &l,
	}
}

// Bootstrap seeds the system account, the general room and the named rooms.
// It is safe to run on every start.
func (s *Service) Bootstrap(ctx context.Context, seedRooms []string) error {
	system, err := s.ensureSystemUser(ctx)
	if err != nil {
		return err
	}

	if _, err := s.st.GetGeneralRoom(ctx); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load general room: %w", err)
		}
		if _, err := s.Create(ctx, GeneralRoomName, system.ID, true); err != nil && !errs.Is(err, errs.CodeGeneralExists) {
			return fmt.Errorf("seed general room: %w", err)
		}
		s.log.Info().Str("room", GeneralRoomName).Msg("seeded general room")
	}

	for _, name := range seedRooms {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := s.st.GetRoomByName(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load room %q: %w", name, err)
		}
		if _, err := s.Create(ctx, name, system.ID, false); err != nil && !errs.Is(err, errs.CodeRoomExists) {
			return fmt.Errorf("seed room %q: %w", name, err)
		}
		s.log.Info().Str("room", name).Msg("seeded room")
	}
	return nil
}

func (s *Service) ensureSystemUser(ctx context.Context) (*store.User, error) {
	user, err := s.st.GetUserByUsername(ctx, store.SystemUsername)
	if errors.Is(err, store.ErrNotFound) {
		// Empty hash: the account can never authenticate.
		user, err = s.st.CreateUser(ctx, store.SystemUsername, "", store.RoleSystem)
		if errors.Is(err, store.ErrConflict) {
			user, err = s.st.GetUserByUsername(ctx, store.SystemUsername)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ensure system user: %w", err)
	}
	if user.Role != store.RoleSystem {
		return nil, fmt.Errorf("username %q is taken by a regular account", store.SystemUsername)
	}

	s.mu.Lock()
	s.system = user
	s.mu.Unlock()
	return user, nil
}

// Create makes a room and adds the creator as its first member.
func (s *Service) Create(ctx context.Context, name string, creatorID int64, isGeneral bool) (*store.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxRoomNameLen {
		return nil, errs.BadRequest(errs.CodeBadRequest, fmt.Sprintf("room name must be 1 to %d characters", maxRoomNameLen))
	}

	if _, err := s.st.GetUserByID(ctx, creatorID); err != nil {
		return nil, translate(err, errs.CodeUserNotFound, "user not found")
	}

	if isGeneral {
		if _, err := s.st.GetGeneralRoom(ctx); err == nil {
			return nil, errs.Conflict(errs.CodeGeneralExists, "a general room already exists")
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, errs.StoreFailure(err)
		}
	}

	room := &store.Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: creatorID,
		IsGeneral: isGeneral,
	}
	if err := s.st.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, store.ErrConflict) {
			if isGeneral {
				return nil, errs.Conflict(errs.CodeGeneralExists, "a general room already exists")
			}
			return nil, errs.Conflict(errs.CodeRoomExists, "a room with this name already exists")
		}
		return nil, errs.StoreFailure(err)
	}

	s.log.Debug().Str("room_id", room.ID).Str("name", room.Name).Int64("created_by", creatorID).Msg("room created")
	return room, nil
}

// Join makes userID a member of roomID. Joining twice is not an error.
func (s *Service) Join(ctx context.Context, roomID string, userID int64) (JoinResult, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.st.GetRoom(ctx, roomID)
	if err != nil {
		return JoinResult{}, translate(err, errs.CodeRoomNotFound, "room not found")
	}
	user, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return JoinResult{}, translate(err, errs.CodeUserNotFound, "user not found")
	}

	added, err := s.st.AddMember(ctx, roomID, userID)
	if err != nil {
		return JoinResult{}, errs.StoreFailure(err)
	}
	if !added {
		return JoinResult{Room: room}, nil
	}
	room.Members = append(room.Members, userID)

	notice, err := s.appendSystem(ctx, roomID, user.Username+" joined")
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Room: room, Joined: true, Notice: notice}, nil
}

// Leave removes userID from roomID and returns the system notice recording it.
func (s *Service) Leave(ctx context.Context, roomID string, userID int64) (*store.Message, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.st.GetRoom(ctx, roomID)
	if err != nil {
		return nil, translate(err, errs.CodeRoomNotFound, "room not found")
	}
	if room.IsGeneral {
		return nil, errs.Forbidden(errs.CodeCannotLeaveGeneral, "the general room cannot be left")
	}
	if room.CreatedBy == userID {
		return nil, errs.Forbidden(errs.CodeCannotLeaveOwnRoom, "the creator cannot leave their own room")
	}

	user, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err, errs.CodeUserNotFound, "user not found")
	}

	removed, err := s.st.RemoveMember(ctx, roomID, userID)
	if err != nil {
		return nil, errs.StoreFailure(err)
	}
	if !removed {
		return nil, errs.BadRequest(errs.CodeNotAMember, "you are not a member of this room")
	}

	return s.appendSystem(ctx, roomID, user.Username+" left")
}

// AddToGeneral enrolls a newly registered user in the general room.
func (s *Service) AddToGeneral(ctx context.Context, user *store.User) (*store.Message, error) {
	general, err := s.st.GetGeneralRoom(ctx)
	if err != nil {
		return nil, translate(err, errs.CodeRoomNotFound, "general room not found")
	}

	unlock := s.locks.Lock(general.ID)
	defer unlock()

	added, err := s.st.AddMember(ctx, general.ID, user.ID)
	if err != nil {
		return nil, errs.StoreFailure(err)
	}
	if !added {
		return nil, nil
	}
	return s.appendSystem(ctx, general.ID, user.Username+" was added")
}

// Get returns a room with its members.
func (s *Service) Get(ctx context.Context, roomID string) (*store.Room, error) {
	room, err := s.st.GetRoom(ctx, roomID)
	if err != nil {
		return nil, translate(err, errs.CodeRoomNotFound, "room not found")
	}
	return room, nil
}

// IsMember reports current membership. The answer is advisory once returned.
func (s *Service) IsMember(ctx context.Context, roomID string, userID int64) (bool, error) {
	ok, err := s.st.IsMember(ctx, roomID, userID)
	if err != nil {
		return false, errs.StoreFailure(err)
	}
	return ok, nil
}

// WhileMember runs fn under the room lock when userID is a member of roomID and
// reports the membership it saw. Join and Leave hold the same lock, so fn never
// interleaves with a membership change of that room.
func (s *Service) WhileMember(ctx context.Context, roomID string, userID int64, fn func()) (bool, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	ok, err := s.IsMember(ctx, roomID, userID)
	if err != nil || !ok {
		return false, err
	}
	fn()
	return true, nil
}

// ListForUser returns every room userID belongs to.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*store.Room, error) {
	rooms, err := s.st.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, errs.StoreFailure(err)
	}
	return rooms, nil
}

// List returns all rooms; members are loaded only when withMembers is set.
func (s *Service) List(ctx context.Context, withMembers bool) ([]*store.Room, error) {
	rooms, err := s.st.ListRooms(ctx, withMembers)
	if err != nil {
		return nil, errs.StoreFailure(err)
	}
	return rooms, nil
}

// SystemPrincipal returns the account system notices are attributed to.
func (s *Service) SystemPrincipal() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.system == nil {
		return 0, store.SystemUsername
	}
	return s.system.ID, s.system.Username
}

func (s *Service) appendSystem(ctx context.Context, roomID, text string) (*store.Message, error) {
	id, name := s.SystemPrincipal()
	msg := &store.Message{
		RoomID:     roomID,
		SenderID:   id,
		SenderName: name,
		Text:       text,
		Type:       store.MessageTypeSystem,
	}
	if err := s.st.AppendMessage(ctx, msg); err != nil {
		return nil, errs.StoreFailure(err)
	}
	return msg, nil
}

func translate(err error, notFoundCode, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return errs.NotFound(notFoundCode, msg)
	}
	return errs.StoreFailure(err)
}
