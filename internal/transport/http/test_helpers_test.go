package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/bus"
	"github.com/vovakirdan/roomwire/internal/config"
	"github.com/vovakirdan/roomwire/internal/core"
	"github.com/vovakirdan/roomwire/internal/log"
	"github.com/vovakirdan/roomwire/internal/presence"
	"github.com/vovakirdan/roomwire/internal/proto"
	"github.com/vovakirdan/roomwire/internal/rooms"
	"github.com/vovakirdan/roomwire/internal/store"
	"github.com/vovakirdan/roomwire/internal/store/sqlite"
)

type testServer struct {
	ts       *httptest.Server
	cfg      config.Config
	hub      *core.Hub
	auth     *auth.Service
	rooms    *rooms.Service
	st       store.Store
	presence *presence.Registry
	general  *store.Room
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.CookieSecret = "cookie-secret"
	cfg.AllowedOrigins = []string{"*"}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := log.Nop()
	roomSvc := rooms.NewService(st, logger)
	if err := roomSvc.Bootstrap(ctx, nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	general, err := st.GetGeneralRoom(ctx)
	if err != nil {
		t.Fatalf("general: %v", err)
	}

	reg := presence.NewRegistry()
	hub := core.NewHub(roomSvc, st, reg, core.Options{HistoryLimit: cfg.HistoryLimit, MaxMessageBytes: cfg.MaxMessageBytes}, logger)

	authSvc := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	authSvc.OnRegister(func(ctx context.Context, user *store.User) error {
		msg, err := roomSvc.AddToGeneral(ctx, user)
		if err != nil {
			return err
		}
		if msg != nil {
			hub.Broadcast(msg)
		}
		return nil
	})

	b := bus.NewLocal()
	if err := b.SubscribeUserDeleted(hub.UserDeleted); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	handler := NewHandler(Deps{
		Hub:           hub,
		Auth:          authSvc,
		Authenticator: auth.NewAuthenticator(authSvc, cfg.CookieName, []byte(cfg.CookieSecret)),
		Rooms:         roomSvc,
		Store:         st,
		Bus:           b,
	}, &cfg, logger)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return &testServer{
		ts:       ts,
		cfg:      cfg,
		hub:      hub,
		auth:     authSvc,
		rooms:    roomSvc,
		st:       st,
		presence: reg,
		general:  general,
	}
}

// register creates an account through the service and returns its session.
func (s *testServer) register(t *testing.T, username string) auth.Session {
	t.Helper()
	session, err := s.auth.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return session
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func (s *testServer) wsURL() string {
	return strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, s.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	inbound := proto.Inbound{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		inbound.Data = raw
	}
	if err := wsjson.Write(ctx, conn, inbound); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// expect reads until an event named event arrives and decodes its data into v.
func expect(t *testing.T, conn *websocket.Conn, event string, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if out.Event != event {
			continue
		}
		if out.Type != proto.OutboundTypeEvent {
			t.Fatalf("unexpected envelope type %q", out.Type)
		}
		if v != nil {
			if err := json.Unmarshal(out.Data, v); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
		}
		return
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
