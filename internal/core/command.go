package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom makes the principal a room member and subscribes the connection.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom ends membership and unsubscribes.
	CommandLeaveRoom
	// CommandSwitchRoom changes focus to a room without changing membership.
	CommandSwitchRoom
	// CommandSendMessage appends a message and fans it out to the room.
	CommandSendMessage
	// CommandHeartbeat refreshes presence activity.
	CommandHeartbeat
	// CommandListRooms returns every room.
	CommandListRooms
	// CommandListPresence returns who is online.
	CommandListPresence
	// CommandRoomHistory returns recent messages of a room the principal belongs to.
	CommandRoomHistory
	// CommandCheckMembership answers whether the principal belongs to a room.
	CommandCheckMembership
	// CommandCreateRoom creates a room owned by the principal.
	CommandCreateRoom
)

var commandNames = [...]string{
	CommandJoinRoom:        "join-room",
	CommandLeaveRoom:       "leave-room",
	CommandSwitchRoom:      "switch-room",
	CommandSendMessage:     "send-message",
	CommandHeartbeat:       "heartbeat",
	CommandListRooms:       "list-rooms",
	CommandListPresence:    "list-presence",
	CommandRoomHistory:     "room-history",
	CommandCheckMembership: "check-membership",
	CommandCreateRoom:      "create-room",
}

func (k CommandKind) String() string {
	if int(k) >= 0 && int(k) < len(commandNames) {
		return commandNames[k]
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind        CommandKind
	RoomID      string
	Text        string
	Name        string
	Limit       int
	WithMembers bool
}
