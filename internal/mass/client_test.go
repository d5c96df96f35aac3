package mass

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{t: t}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		f.serve(conn)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
}

func (f *fakeServer) serve(conn *websocket.Conn) {
	for {
		var req struct {
			ID      uint64         `json:"id"`
			Command string         `json:"command"`
			Args    map[string]any `json:"args"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		switch req.Command {
		case "auth":
			if req.Args["token"] != "good-token" {
				f.reply(conn, req.ID, nil, &commandError{Code: "AUTH", Message: "invalid token"})
				continue
			}
			f.reply(conn, req.ID, ServerInfo{ServerID: "srv1", ServerName: "Test Server", BaseURL: f.srv.URL}, nil)
		case "get_players":
			f.reply(conn, req.ID, []Player{
				{PlayerID: "p1", Name: "Kitchen", Available: true, State: "playing", VolumeLevel: 40},
			}, nil)
		case "update_player_control", "register_player_control":
			f.reply(conn, req.ID, nil, nil)
		default:
			f.reply(conn, req.ID, nil, &commandError{Code: "INVALID", Message: "unknown command"})
		}
	}
}

func (f *fakeServer) reply(conn *websocket.Conn, id uint64, result any, cmdErr *commandError) {
	payload := map[string]any{"id": id}
	if result != nil {
		payload["result"] = result
	}
	if cmdErr != nil {
		payload["error"] = cmdErr
	}
	if err := conn.WriteJSON(payload); err != nil {
		f.t.Logf("server write: %v", err)
	}
}

func (f *fakeServer) push(event string, data any) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		f.t.Fatalf("no server connection")
	}
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		f.t.Fatalf("push: %v", err)
	}
}

func TestConnectDeliversConnectedEvent(t *testing.T) {
	server := newFakeServer(t)
	client := NewClient(zap.NewNop(), server.url(), "good-token")

	events := make(chan string, 4)
	client.SetEventCallback(func(kind string, _ json.RawMessage) {
		events <- kind
	}, EventConnected, EventPlayerChanged)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	select {
	case kind := <-events:
		if kind != EventConnected {
			t.Fatalf("expected connected event, got %q", kind)
		}
	case <-ctx.Done():
		t.Fatalf("no connected event")
	}

	info := client.ServerInfo()
	if info.ServerID != "srv1" || info.ServerName != "Test Server" {
		t.Fatalf("server info: %+v", info)
	}
}

func TestConnectAuthFailure(t *testing.T) {
	server := newFakeServer(t)
	client := NewClient(zap.NewNop(), server.url(), "bad-token")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.Connect(ctx)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestPlayersQuery(t *testing.T) {
	server := newFakeServer(t)
	client := NewClient(zap.NewNop(), server.url(), "good-token")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	players, err := client.Players(ctx)
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if len(players) != 1 || players[0].PlayerID != "p1" {
		t.Fatalf("players: %+v", players)
	}
}

func TestEventFiltering(t *testing.T) {
	server := newFakeServer(t)
	client := NewClient(zap.NewNop(), server.url(), "good-token")

	events := make(chan string, 4)
	client.SetEventCallback(func(kind string, _ json.RawMessage) {
		events <- kind
	}, EventPlayerChanged)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	server.push(EventQueueUpdated, Queue{QueueID: "q1"})
	server.push(EventPlayerChanged, Player{PlayerID: "p1"})

	select {
	case kind := <-events:
		// queue updated is not subscribed, so the first delivery must
		// be the player change.
		if kind != EventPlayerChanged {
			t.Fatalf("got %q", kind)
		}
	case <-ctx.Done():
		t.Fatalf("no event delivered")
	}
}

func TestControlCallbackPush(t *testing.T) {
	server := newFakeServer(t)
	client := NewClient(zap.NewNop(), server.url(), "good-token")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	states := make(chan ControlState, 1)
	ctl := PlayerControl{
		ControlType: ControlTypeVolume,
		ControlID:   "media_player.receiver_volume",
		Name:        "Receiver",
		State:       40,
	}
	if err := client.RegisterPlayerControl(ctx, ctl, func(state ControlState) {
		states <- state
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	server.push("player control set", map[string]any{
		"control_id": "media_player.receiver_volume",
		"state":      55,
	})

	select {
	case state := <-states:
		if state.Int() != 55 {
			t.Fatalf("state: %d", state.Int())
		}
	case <-ctx.Done():
		t.Fatalf("no control state pushed")
	}
}

func TestControlStateBool(t *testing.T) {
	on := ControlState{raw: json.RawMessage(`true`)}
	if !on.Bool() {
		t.Fatalf("expected true")
	}
	numeric := ControlState{raw: json.RawMessage(`1`)}
	if !numeric.Bool() {
		t.Fatalf("expected numeric truthiness")
	}
	off := ControlState{raw: json.RawMessage(`false`)}
	if off.Bool() {
		t.Fatalf("expected false")
	}
}
