package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomwire/internal/proto"
)

type inboundEvent struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("ROOMWIRE_TOKEN"), "bearer token (see `roomwire token`)")
	room := flag.String("room", "", "room id to focus; defaults to the general room")
	flag.Parse()

	if *token == "" {
		return errors.New("a token is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c := &chat{conn: conn, room: *room}
	if c.room == "" {
		c.send(ctx, proto.InboundListRooms, proto.ListRoomsData{})
	} else {
		c.send(ctx, proto.InboundSwitchRoom, proto.RoomRef{RoomID: c.room})
	}

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type messages and press Enter to send. Commands: /join ID, /leave ID, /switch ID, /create NAME, /rooms, /who. Ctrl+C to exit.")

	go func() {
		defer cancel()
		c.readLoop(ctx)
	}()

	c.writeLoop(ctx)
	return nil
}

type chat struct {
	conn *websocket.Conn

	mu   sync.Mutex
	room string
}

func (c *chat) focus(roomID string) {
	c.mu.Lock()
	c.room = roomID
	c.mu.Unlock()
}

func (c *chat) focused() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *chat) send(ctx context.Context, typ string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("marshal %s: %v", typ, err)
		return
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		log.Printf("send %s: %v", typ, err)
	}
}

func (c *chat) readLoop(ctx context.Context) {
	for {
		var out inboundEvent
		if err := wsjson.Read(ctx, c.conn, &out); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			case 4001:
				fmt.Println("account deleted, disconnected")
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		c.print(out)
	}
}

func (c *chat) print(out inboundEvent) {
	switch out.Event {
	case proto.EventRoomMessage:
		var m proto.Message
		if json.Unmarshal(out.Data, &m) == nil {
			fmt.Printf("[%s] %s: %s\n", m.RoomID, m.SenderName, m.Text)
		}
	case proto.EventRoomHistory:
		var h proto.RoomHistory
		if json.Unmarshal(out.Data, &h) == nil {
			for _, m := range h.Messages {
				fmt.Printf("[%s] %s: %s\n", m.RoomID, m.SenderName, m.Text)
			}
		}
	case proto.EventRoomList:
		var rooms []proto.Room
		if json.Unmarshal(out.Data, &rooms) != nil {
			return
		}
		for _, r := range rooms {
			fmt.Printf("room %s %q general=%v\n", r.ID, r.Name, r.IsGeneral)
			if c.focused() == "" && r.IsGeneral {
				c.focus(r.ID)
				fmt.Printf("focused on %s\n", r.Name)
			}
		}
	case proto.EventPresenceUpdated:
		var entries []proto.PresenceEntry
		if json.Unmarshal(out.Data, &entries) == nil {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Username)
			}
			fmt.Printf("online: %s\n", strings.Join(names, ", "))
		}
	case proto.EventNotice:
		var n proto.Notice
		if json.Unmarshal(out.Data, &n) == nil {
			fmt.Printf("(%s) %s %s\n", n.Type, n.Code, n.Text)
		}
	default:
		fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
	}
}

func (c *chat) writeLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c.handleLine(ctx, strings.TrimSpace(line))
		}
	}
}

func (c *chat) handleLine(ctx context.Context, line string) {
	if line == "" {
		return
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/join":
		c.focus(arg)
		c.send(ctx, proto.InboundJoinRoom, proto.RoomRef{RoomID: arg})
	case "/leave":
		c.send(ctx, proto.InboundLeaveRoom, proto.RoomRef{RoomID: arg})
	case "/switch":
		c.focus(arg)
		c.send(ctx, proto.InboundSwitchRoom, proto.RoomRef{RoomID: arg})
	case "/create":
		c.send(ctx, proto.InboundCreateRoom, proto.CreateRoomData{Name: arg})
	case "/rooms":
		c.send(ctx, proto.InboundListRooms, proto.ListRoomsData{})
	case "/who":
		c.send(ctx, proto.InboundListPresence, struct{}{})
	default:
		c.send(ctx, proto.InboundSendMessage, proto.SendMessageData{RoomID: c.focused(), Text: line})
	}
}
