package http

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/roomwire/internal/core"
	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/presence"
	"github.com/vovakirdan/roomwire/internal/proto"
	"github.com/vovakirdan/roomwire/internal/store"
)

var errMalformed = errs.BadRequest(errs.CodeBadRequest, "malformed payload")

// inboundToCommand decodes one client envelope. The returned error is always
// a BAD_REQUEST suitable for a notice.
func inboundToCommand(inbound proto.Inbound) (core.Command, error) {
	switch inbound.Type {
	case proto.InboundJoinRoom, proto.InboundLeaveRoom, proto.InboundSwitchRoom, proto.InboundCheckMembership:
		var ref proto.RoomRef
		if err := decode(inbound.Data, &ref); err != nil {
			return core.Command{}, err
		}
		return core.Command{Kind: roomCommands[inbound.Type], RoomID: ref.RoomID}, nil
	case proto.InboundSendMessage:
		var msg proto.SendMessageData
		if err := decode(inbound.Data, &msg); err != nil {
			return core.Command{}, err
		}
		return core.Command{Kind: core.CommandSendMessage, RoomID: msg.RoomID, Text: msg.Text}, nil
	case proto.InboundHeartbeat:
		return core.Command{Kind: core.CommandHeartbeat}, nil
	case proto.InboundListRooms:
		var list proto.ListRoomsData
		if err := decode(inbound.Data, &list); err != nil {
			return core.Command{}, err
		}
		return core.Command{Kind: core.CommandListRooms, WithMembers: list.WithMembers}, nil
	case proto.InboundListPresence:
		return core.Command{Kind: core.CommandListPresence}, nil
	case proto.InboundRoomHistory:
		var hist proto.RoomHistoryData
		if err := decode(inbound.Data, &hist); err != nil {
			return core.Command{}, err
		}
		return core.Command{Kind: core.CommandRoomHistory, RoomID: hist.RoomID, Limit: hist.Limit}, nil
	case proto.InboundCreateRoom:
		var create proto.CreateRoomData
		if err := decode(inbound.Data, &create); err != nil {
			return core.Command{}, err
		}
		return core.Command{Kind: core.CommandCreateRoom, Name: create.Name}, nil
	default:
		return core.Command{}, errs.BadRequest(errs.CodeBadRequest, "unknown message type")
	}
}

var roomCommands = map[string]core.CommandKind{
	proto.InboundJoinRoom:        core.CommandJoinRoom,
	proto.InboundLeaveRoom:       core.CommandLeaveRoom,
	proto.InboundSwitchRoom:      core.CommandSwitchRoom,
	proto.InboundCheckMembership: core.CommandCheckMembership,
}

// decode treats a missing payload as empty.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errMalformed
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent}

	switch event.Kind {
	case core.EventPresenceUpdated:
		out.Event = proto.EventPresenceUpdated
		out.Data = presenceDTOs(event.Presence)
	case core.EventRoomList:
		out.Event = proto.EventRoomList
		out.Data = roomDTOs(event.Rooms)
	case core.EventRoomHistory:
		out.Event = proto.EventRoomHistory
		out.Data = proto.RoomHistory{RoomID: event.RoomID, Messages: messageDTOs(event.Messages)}
	case core.EventRoomMessage:
		out.Event = proto.EventRoomMessage
		if event.Message != nil {
			out.Data = messageDTO(event.Message)
		}
	case core.EventMembershipStatus:
		out.Event = proto.EventMembershipStatus
		out.Data = proto.MembershipStatus{RoomID: event.RoomID, IsMember: event.IsMember}
	case core.EventNotice:
		out.Event = proto.EventNotice
		if event.Notice != nil {
			out.Data = proto.Notice{Text: event.Notice.Text, Type: string(event.Notice.Type), Code: event.Notice.Code}
		}
	case core.EventRoomCreated:
		out.Event = proto.EventRoomCreated
		if event.Room != nil {
			out.Data = roomDTO(event.Room)
		}
	case core.EventUserRemoved:
		out.Event = proto.EventUserRemoved
		out.Data = proto.UserRemoved{UserID: event.UserID}
	case core.EventHeartbeatAck:
		out.Event = proto.EventHeartbeatAck
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func messageDTO(m *store.Message) proto.Message {
	return proto.Message{
		ID:         m.ID,
		RoomID:     m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		Type:       string(m.Type),
		CreatedAt:  formatTime(m.CreatedAt),
	}
}

func messageDTOs(msgs []*store.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDTO(m))
	}
	return out
}

func roomDTO(r *store.Room) proto.Room {
	return proto.Room{
		ID:        r.ID,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		IsGeneral: r.IsGeneral,
		CreatedAt: formatTime(r.CreatedAt),
		Members:   r.Members,
	}
}

func roomDTOs(rooms []*store.Room) []proto.Room {
	out := make([]proto.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomDTO(r))
	}
	return out
}

func presenceDTOs(entries []presence.Entry) []proto.PresenceEntry {
	out := make([]proto.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, proto.PresenceEntry{
			UserID:       e.UserID,
			Username:     e.Username,
			ConnID:       e.ConnID,
			LastActiveAt: formatTime(e.LastActiveAt),
		})
	}
	return out
}
