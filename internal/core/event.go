package core

import (
	"github.com/vovakirdan/roomwire/internal/presence"
	"github.com/vovakirdan/roomwire/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresenceUpdated carries the online list.
	EventPresenceUpdated EventKind = iota
	// EventRoomList carries every room.
	EventRoomList
	// EventRoomHistory carries recent messages of one room.
	EventRoomHistory
	// EventRoomMessage carries one new message to room subscribers.
	EventRoomMessage
	// EventMembershipStatus tells the actor whether it belongs to a room.
	EventMembershipStatus
	// EventNotice is sender-only feedback.
	EventNotice
	// EventRoomCreated announces a new room to everyone.
	EventRoomCreated
	// EventUserRemoved announces a deleted account.
	EventUserRemoved
	// EventHeartbeatAck answers a heartbeat.
	EventHeartbeatAck
)

// NoticeType separates informational feedback from rejections.
type NoticeType string

const (
	NoticeInfo  NoticeType = "info"
	NoticeError NoticeType = "error"
)

// Notice is feedback for the actor only.
type Notice struct {
	Code string
	Text string
	Type NoticeType
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	RoomID   string
	IsMember bool
	UserID   int64
	Message  *store.Message
	Messages []*store.Message
	Room     *store.Room
	Rooms    []*store.Room
	Presence []presence.Entry
	Notice   *Notice
}
