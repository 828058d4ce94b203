package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/presence"
	"github.com/vovakirdan/roomwire/internal/rooms"
	"github.com/vovakirdan/roomwire/internal/store"
)

// Membership is the room membership store the hub delegates to.
type Membership interface {
	Create(ctx context.Context, name string, creatorID int64, isGeneral bool) (*store.Room, error)
	Join(ctx context.Context, roomID string, userID int64) (rooms.JoinResult, error)
	Leave(ctx context.Context, roomID string, userID int64) (*store.Message, error)
	IsMember(ctx context.Context, roomID string, userID int64) (bool, error)
	WhileMember(ctx context.Context, roomID string, userID int64, fn func()) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]*store.Room, error)
	List(ctx context.Context, withMembers bool) ([]*store.Room, error)
}

// Options tune hub behaviour.
type Options struct {
	HistoryLimit    int
	MaxMessageBytes int
}

// Hub routes client commands to the stores and fans results out to connections.
//
// Handle is called from each connection's read goroutine, so commands of one
// connection run in receipt order while different connections run in parallel.
type Hub struct {
	members  Membership
	messages store.MessageStore
	presence *presence.Registry
	opts     Options
	log      *zerolog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	subs    map[string]*subscribers
}

// NewHub creates a hub over the given collaborators.
func NewHub(members Membership, messages store.MessageStore, reg *presence.Registry, opts Options, logger *zerolog.Logger) *Hub {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 4096
	}
	l := logger.With().Str("component", "hub").Logger()
	return &Hub{
		members:  members,
		messages: messages,
		presence: reg,
		opts:     opts,
		log:      &l,
		clients:  make(map[*Client]struct{}),
		subs:     make(map[string]*subscribers),
	}
}

// Run blocks until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close(CloseReason{Code: CloseGoingAway, Text: "server shutting down"})
	}
	h.log.Info().Int("clients", len(clients)).Msg("hub stopped")
}

// Connect registers an authenticated client, subscribes it to its rooms and
// announces the new presence list.
func (h *Hub) Connect(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.presence.Register(c.Principal, c.ID)

	joined, err := h.members.ListForUser(ctx, c.Principal.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("client_id", c.ID).Msg("load rooms on connect")
		c.deliver(noticeFor(err))
	}
	for _, room := range joined {
		if _, err := h.subscribeMember(ctx, c, room.ID); err != nil {
			h.log.Warn().Err(err).Str("client_id", c.ID).Str("room_id", room.ID).Msg("subscribe on connect")
		}
	}

	h.log.Info().
		Str("client_id", c.ID).
		Int64("user_id", c.Principal.ID).
		Int("rooms", len(joined)).
		Msg("client connected")

	h.broadcastPresence()
}

// Disconnect removes every trace of c. Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	c.disconnectOnce.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		for _, roomID := range c.clearRooms() {
			h.unsubscribeLocked(c, roomID)
		}
		h.mu.Unlock()

		c.Close(CloseReason{Code: CloseNormal, Text: "disconnected"})

		removed := h.presence.UnregisterConn(c.Principal.ID, c.ID)
		h.log.Info().
			Str("client_id", c.ID).
			Int64("user_id", c.Principal.ID).
			Bool("presence_removed", removed).
			Msg("client disconnected")

		if removed {
			h.broadcastPresence()
		}
	})
}

// Reject tells the client its request could not be processed.
func (h *Hub) Reject(c *Client, err error) {
	c.deliver(noticeFor(err))
}

// Handle runs one command for c. Failures become a notice to c; they never
// end the connection.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Interface("panic", r).
				Str("client_id", c.ID).
				Stringer("command", cmd.Kind).
				Msg("handler panic")
			c.deliver(noticeFor(errs.New(errs.KindInternal, errs.CodeInternal, "internal error")))
		}
	}()

	h.presence.Touch(c.Principal.ID)

	if err := h.dispatch(ctx, c, cmd); err != nil {
		h.log.Debug().
			Err(err).
			Str("client_id", c.ID).
			Stringer("command", cmd.Kind).
			Str("room_id", cmd.RoomID).
			Msg("command rejected")
		c.deliver(noticeFor(err))
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd Command) error {
	switch cmd.Kind {
	case CommandJoinRoom:
		return h.handleJoin(ctx, c, cmd)
	case CommandLeaveRoom:
		return h.handleLeave(ctx, c, cmd)
	case CommandSwitchRoom:
		return h.handleSwitch(ctx, c, cmd)
	case CommandSendMessage:
		return h.handleSend(ctx, c, cmd)
	case CommandHeartbeat:
		c.deliver(&Event{Kind: EventHeartbeatAck})
		return nil
	case CommandListRooms:
		list, err := h.members.List(ctx, cmd.WithMembers)
		if err != nil {
			return err
		}
		c.deliver(&Event{Kind: EventRoomList, Rooms: list})
		return nil
	case CommandListPresence:
		c.deliver(&Event{Kind: EventPresenceUpdated, Presence: h.presence.List()})
		return nil
	case CommandRoomHistory:
		return h.handleHistory(ctx, c, cmd)
	case CommandCheckMembership:
		if cmd.RoomID == "" {
			return errRoomRequired
		}
		ok, err := h.members.IsMember(ctx, cmd.RoomID, c.Principal.ID)
		if err != nil {
			return err
		}
		c.deliver(&Event{Kind: EventMembershipStatus, RoomID: cmd.RoomID, IsMember: ok})
		return nil
	case CommandCreateRoom:
		return h.handleCreate(ctx, c, cmd)
	default:
		return errs.BadRequest(errs.CodeBadRequest, fmt.Sprintf("unknown command %d", cmd.Kind))
	}
}

var errRoomRequired = errs.BadRequest(errs.CodeBadRequest, "roomId is required")

func (h *Hub) handleJoin(ctx context.Context, c *Client, cmd Command) error {
	if cmd.RoomID == "" {
		return errRoomRequired
	}

	res, err := h.members.Join(ctx, cmd.RoomID, c.Principal.ID)
	if err != nil {
		return err
	}
	member, err := h.subscribeMember(ctx, c, cmd.RoomID)
	if err != nil {
		return err
	}
	if !member {
		// Another connection of the principal left before this one subscribed.
		c.deliver(&Event{Kind: EventMembershipStatus, RoomID: cmd.RoomID, IsMember: false})
		return nil
	}

	if !res.Joined {
		c.deliver(infoNotice(errs.CodeAlreadyMember, "you are already a member of this room"))
		return nil
	}

	c.deliver(&Event{Kind: EventMembershipStatus, RoomID: cmd.RoomID, IsMember: true})
	if err := h.sendHistory(ctx, c, cmd.RoomID, h.opts.HistoryLimit); err != nil {
		return err
	}
	h.broadcastRoom(cmd.RoomID, &Event{Kind: EventRoomMessage, RoomID: cmd.RoomID, Message: res.Notice})
	return nil
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, cmd Command) error {
	if cmd.RoomID == "" {
		return errRoomRequired
	}

	notice, err := h.members.Leave(ctx, cmd.RoomID, c.Principal.ID)
	if err != nil {
		return err
	}

	// Membership is per principal, so every connection of the principal stops listening.
	h.unsubscribePrincipal(c.Principal.ID, cmd.RoomID)

	c.deliver(&Event{Kind: EventMembershipStatus, RoomID: cmd.RoomID, IsMember: false})
	h.broadcastRoom(cmd.RoomID, &Event{Kind: EventRoomMessage, RoomID: cmd.RoomID, Message: notice})
	return nil
}

func (h *Hub) handleSwitch(ctx context.Context, c *Client, cmd Command) error {
	if cmd.RoomID == "" {
		return errRoomRequired
	}

	ok, err := h.subscribeMember(ctx, c, cmd.RoomID)
	if err != nil {
		return err
	}
	if !ok {
		c.deliver(&Event{Kind: EventRoomHistory, RoomID: cmd.RoomID, Messages: []*store.Message{}})
		c.deliver(infoNotice(errs.CodeNotAMember, "you are not a member of this room"))
		return nil
	}

	if err := h.sendHistory(ctx, c, cmd.RoomID, h.opts.HistoryLimit); err != nil {
		return err
	}
	c.deliver(&Event{Kind: EventMembershipStatus, RoomID: cmd.RoomID, IsMember: true})
	return nil
}

func (h *Hub) handleSend(ctx context.Context, c *Client, cmd Command) error {
	text := strings.TrimSpace(cmd.Text)
	if cmd.RoomID == "" || text == "" {
		return errs.BadRequest(errs.CodeBadRequest, "roomId and text are required")
	}
	if len(text) > h.opts.MaxMessageBytes || !utf8.ValidString(text) {
		return errs.BadRequest(errs.CodeBadRequest, fmt.Sprintf("text must be valid UTF-8 of at most %d bytes", h.opts.MaxMessageBytes))
	}

	// A member that joined from another tab may not be subscribed here yet.
	ok, err := h.subscribeMember(ctx, c, cmd.RoomID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.BadRequest(errs.CodeNotAMember, "you are not a member of this room")
	}

	msg := &store.Message{
		RoomID:     cmd.RoomID,
		SenderID:   c.Principal.ID,
		SenderName: c.Principal.Username,
		Text:       text,
		Type:       store.MessageTypeUser,
	}
	if err := h.messages.AppendMessage(ctx, msg); err != nil {
		return errs.StoreFailure(err)
	}

	h.broadcastRoom(cmd.RoomID, &Event{Kind: EventRoomMessage, RoomID: cmd.RoomID, Message: msg})
	return nil
}

func (h *Hub) handleHistory(ctx context.Context, c *Client, cmd Command) error {
	if cmd.RoomID == "" {
		return errRoomRequired
	}
	ok, err := h.members.IsMember(ctx, cmd.RoomID, c.Principal.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.BadRequest(errs.CodeNotAMember, "you are not a member of this room")
	}

	limit := cmd.Limit
	if limit <= 0 || limit > h.opts.HistoryLimit {
		limit = h.opts.HistoryLimit
	}
	return h.sendHistory(ctx, c, cmd.RoomID, limit)
}

func (h *Hub) handleCreate(ctx context.Context, c *Client, cmd Command) error {
	room, err := h.members.Create(ctx, cmd.Name, c.Principal.ID, false)
	if err != nil {
		return err
	}
	h.RoomCreated(room)
	return nil
}

// RoomCreated subscribes the creator's connections to a new room and
// announces it to every connected client.
func (h *Hub) RoomCreated(room *store.Room) {
	h.mu.Lock()
	var owners []*Client
	for c := range h.clients {
		if c.Principal.ID == room.CreatedBy {
			owners = append(owners, c)
		}
	}
	h.mu.Unlock()
	for _, c := range owners {
		h.subscribe(c, room.ID)
	}

	h.broadcastAll(&Event{Kind: EventRoomCreated, RoomID: room.ID, Room: room})
}

// Broadcast delivers a message written outside the gateway to the room's subscribers.
func (h *Hub) Broadcast(msg *store.Message) {
	h.broadcastRoom(msg.RoomID, &Event{Kind: EventRoomMessage, RoomID: msg.RoomID, Message: msg})
}

func (h *Hub) sendHistory(ctx context.Context, c *Client, roomID string, limit int) error {
	msgs, err := h.messages.ListMessages(ctx, roomID, limit)
	if err != nil {
		return errs.StoreFailure(err)
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	c.deliver(&Event{Kind: EventRoomHistory, RoomID: roomID, Messages: msgs})
	return nil
}

// UserDeleted evicts every trace of a removed account: presence, room
// subscriptions and live connections.
func (h *Hub) UserDeleted(_ context.Context, userID int64) {
	h.presence.Unregister(userID)

	var evicted []*Client
	h.mu.Lock()
	for c := range h.clients {
		if c.Principal.ID != userID {
			continue
		}
		for _, roomID := range c.clearRooms() {
			h.unsubscribeLocked(c, roomID)
		}
		delete(h.clients, c)
		evicted = append(evicted, c)
	}
	h.mu.Unlock()

	for _, c := range evicted {
		c.Close(CloseReason{Code: CloseUserDeleted, Text: "account deleted"})
	}

	h.log.Info().Int64("user_id", userID).Int("connections", len(evicted)).Msg("user removed")

	h.broadcastAll(&Event{Kind: EventUserRemoved, UserID: userID})
	h.broadcastPresence()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// subscribeMember subscribes c to roomID only while its principal is a member,
// so a concurrent leave cannot be undone by a late subscription.
func (h *Hub) subscribeMember(ctx context.Context, c *Client, roomID string) (bool, error) {
	return h.members.WhileMember(ctx, roomID, c.Principal.ID, func() {
		h.subscribe(c, roomID)
	})
}

func (h *Hub) subscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, live := h.clients[c]; !live {
		return
	}
	s, ok := h.subs[roomID]
	if !ok {
		s = newSubscribers(roomID)
		h.subs[roomID] = s
	}
	s.add(c)
	c.addRoom(roomID)
}

func (h *Hub) unsubscribePrincipal(userID int64, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[roomID]
	if !ok {
		return
	}
	for _, c := range s.snapshot() {
		if c.Principal.ID == userID {
			c.removeRoom(roomID)
			h.unsubscribeLocked(c, roomID)
		}
	}
}

func (h *Hub) unsubscribeLocked(c *Client, roomID string) {
	s, ok := h.subs[roomID]
	if !ok {
		return
	}
	s.remove(c)
	if s.empty() {
		delete(h.subs, roomID)
	}
}

func (h *Hub) broadcastRoom(roomID string, ev *Event) {
	h.mu.Lock()
	var targets []*Client
	if s, ok := h.subs[roomID]; ok {
		targets = s.snapshot()
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.deliver(ev)
	}
}

func (h *Hub) broadcastAll(ev *Event) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.deliver(ev)
	}
}

func (h *Hub) broadcastPresence() {
	h.broadcastAll(&Event{Kind: EventPresenceUpdated, Presence: h.presence.List()})
}
