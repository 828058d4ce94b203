package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	InboundJoinRoom        = "join-room"
	InboundLeaveRoom       = "leave-room"
	InboundSwitchRoom      = "switch-room"
	InboundSendMessage     = "send-message"
	InboundHeartbeat       = "heartbeat"
	InboundListRooms       = "list-rooms"
	InboundListPresence    = "list-presence"
	InboundRoomHistory     = "room-history"
	InboundCheckMembership = "check-membership"
	InboundCreateRoom      = "create-room"

	OutboundTypeEvent = "event"

	EventPresenceUpdated  = "presence-updated"
	EventRoomList         = "room-list"
	EventRoomHistory      = "room-history"
	EventRoomMessage      = "room-message"
	EventMembershipStatus = "membership-status"
	EventNotice           = "notice"
	EventRoomCreated      = "room-created"
	EventUserRemoved      = "user-removed"
	EventHeartbeatAck     = "heartbeat-ack"

	NoticeTypeInfo  = "info"
	NoticeTypeError = "error"
)

// RoomRef carries a room id for room-scoped requests.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// ListRoomsData asks for the room list, optionally with member ids.
type ListRoomsData struct {
	WithMembers bool `json:"withMembers"`
}

// RoomHistoryData asks for recent messages of a room.
type RoomHistoryData struct {
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit,omitempty"`
}

// CreateRoomData asks for a new room.
type CreateRoomData struct {
	Name string `json:"name"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Message is a persisted chat message as seen by clients.
type Message struct {
	ID         int64  `json:"id"`
	RoomID     string `json:"roomId"`
	SenderID   int64  `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Type       string `json:"type"`
	CreatedAt  string `json:"createdAt"`
}

// Room is a room summary. Members is present only when requested.
type Room struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	CreatedBy int64   `json:"createdBy"`
	IsGeneral bool    `json:"isGeneral"`
	CreatedAt string  `json:"createdAt"`
	Members   []int64 `json:"members,omitempty"`
}

// PresenceEntry is one online user.
type PresenceEntry struct {
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
	ConnID       string `json:"connectionId"`
	LastActiveAt string `json:"lastActiveAt"`
}

// RoomHistory delivers recent messages of a room, oldest first.
type RoomHistory struct {
	RoomID   string    `json:"roomId"`
	Messages []Message `json:"messages"`
}

// MembershipStatus answers whether the user belongs to a room.
type MembershipStatus struct {
	RoomID   string `json:"roomId"`
	IsMember bool   `json:"isMember"`
}

// Notice is sender-only feedback about a rejected or informational action.
//
// Type is the severity (NoticeTypeInfo or NoticeTypeError). Code is the
// machine-readable reason clients should branch on, e.g. NOT_A_MEMBER,
// ALREADY_MEMBER, CANNOT_LEAVE_GENERAL. A rejected send to a room the sender
// does not belong to arrives as {"type":"error","code":"NOT_A_MEMBER"}.
type Notice struct {
	Text string `json:"text"`
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// UserRemoved announces that an account was deleted.
type UserRemoved struct {
	UserID int64 `json:"userId"`
}
