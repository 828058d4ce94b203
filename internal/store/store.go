package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// Role distinguishes regular accounts from the reserved system account.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// MessageType distinguishes user-authored messages from synthesized notices.
type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeSystem MessageType = "system"
)

// SystemUsername is the reserved account that authors system messages.
const SystemUsername = "system"

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Room represents a chat room.
type Room struct {
	ID        string
	Name      string
	CreatedBy int64
	IsGeneral bool
	CreatedAt time.Time
	// Members is filled only by calls that ask for it.
	Members []int64
}

// Message represents a persisted chat message.
type Message struct {
	ID         int64
	RoomID     string
	SenderID   int64
	SenderName string
	Text       string
	Type       MessageType
	CreatedAt  time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string, role Role) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// DeleteUser removes the user and, by cascade, their memberships.
	DeleteUser(ctx context.Context, id int64) error
}

// RoomStore handles rooms and their members.
type RoomStore interface {
	// CreateRoom inserts the room and adds the creator as its first member.
	// Returns ErrConflict when a second general room is requested.
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	GetGeneralRoom(ctx context.Context) (*Room, error)
	GetRoomByName(ctx context.Context, name string) (*Room, error)
	ListRooms(ctx context.Context, withMembers bool) ([]*Room, error)
	ListRoomsForUser(ctx context.Context, userID int64) ([]*Room, error)
	// AddMember reports whether a new membership row was inserted.
	AddMember(ctx context.Context, roomID string, userID int64) (bool, error)
	// RemoveMember reports whether a membership row was deleted.
	RemoveMember(ctx context.Context, roomID string, userID int64) (bool, error)
	IsMember(ctx context.Context, roomID string, userID int64) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]int64, error)
}

// MessageStore handles the append-only message log.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	// ListMessages returns at most limit of the most recent messages, oldest first.
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore
	Close() error
}
