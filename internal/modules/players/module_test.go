package players

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/massbridge/internal/browse"
	"github.com/mikey-austin/massbridge/internal/bus"
	"github.com/mikey-austin/massbridge/internal/mass"
	"github.com/mikey-austin/massbridge/pkg/mab"
)

type playerCommand struct {
	playerID string
	command  string
	args     map[string]any
}

type playedMedia struct {
	playerID string
	item     mass.MediaItem
	opt      string
}

type playedURI struct {
	playerID string
	uri      string
	opt      string
}

type fakeServer struct {
	mu        sync.Mutex
	info      mass.ServerInfo
	players   []mass.Player
	playlists []mass.MediaItem
	radios    []mass.MediaItem

	commands []playerCommand
	media    []playedMedia
	uris     []playedURI
	cleared  []string
	shuffled map[string]bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		info:     mass.ServerInfo{ServerID: "srv1", ServerName: "Test Server"},
		shuffled: make(map[string]bool),
	}
}

func (f *fakeServer) ServerInfo() mass.ServerInfo { return f.info }

func (f *fakeServer) Players(context.Context) ([]mass.Player, error) {
	return f.players, nil
}

func (f *fakeServer) PlayerQueue(context.Context, string) (mass.Queue, error) {
	return mass.Queue{}, nil
}

func (f *fakeServer) PlayerCommand(_ context.Context, playerID, command string, args map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, playerCommand{playerID: playerID, command: command, args: args})
	return nil
}

func (f *fakeServer) QueueSetShuffle(_ context.Context, playerID string, shuffle bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shuffled[playerID] = shuffle
	return nil
}

func (f *fakeServer) QueueClear(_ context.Context, playerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, playerID)
	return nil
}

func (f *fakeServer) PlayMedia(_ context.Context, playerID string, item mass.MediaItem, queueOpt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, playedMedia{playerID: playerID, item: item, opt: queueOpt})
	return nil
}

func (f *fakeServer) PlayURI(_ context.Context, playerID, uri, queueOpt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uris = append(f.uris, playedURI{playerID: playerID, uri: uri, opt: queueOpt})
	return nil
}

func (f *fakeServer) PlayAlert(context.Context, string, string, bool, int) error {
	return nil
}

func (f *fakeServer) LibraryPlaylists(context.Context) ([]mass.MediaItem, error) {
	return f.playlists, nil
}

func (f *fakeServer) LibraryArtists(context.Context) ([]mass.MediaItem, error) { return nil, nil }
func (f *fakeServer) LibraryAlbums(context.Context) ([]mass.MediaItem, error)  { return nil, nil }
func (f *fakeServer) LibraryTracks(context.Context) ([]mass.MediaItem, error)  { return nil, nil }

func (f *fakeServer) LibraryRadios(context.Context) ([]mass.MediaItem, error) {
	return f.radios, nil
}

func (f *fakeServer) Playlist(context.Context, string, string) (mass.MediaItem, error) {
	return mass.MediaItem{}, nil
}

func (f *fakeServer) Album(context.Context, string, string) (mass.MediaItem, error) {
	return mass.MediaItem{}, nil
}

func (f *fakeServer) Artist(context.Context, string, string) (mass.MediaItem, error) {
	return mass.MediaItem{}, nil
}

func (f *fakeServer) PlaylistTracks(context.Context, string, string) ([]mass.MediaItem, error) {
	return nil, nil
}

func (f *fakeServer) AlbumTracks(context.Context, string, string) ([]mass.MediaItem, error) {
	return nil, nil
}

func (f *fakeServer) ArtistAlbums(context.Context, string, string) ([]mass.MediaItem, error) {
	return nil, nil
}

func (f *fakeServer) MediaItemImageURL(_ context.Context, item mass.MediaItem) (string, error) {
	return "http://img/" + item.ItemID, nil
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	payload  []byte
	retained bool
}

type fakeMQTT struct {
	mu        sync.Mutex
	published map[string][]published
	handlers  map[string]paho.MessageHandler
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{
		published: make(map[string][]published),
		handlers:  make(map[string]paho.MessageHandler),
	}
}

func (f *fakeMQTT) Publish(topic string, _ byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], published{payload: payload, retained: retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler paho.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

// deliver routes a message through any matching subscription filter.
func (f *fakeMQTT) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	var matched []paho.MessageHandler
	for filter, handler := range f.handlers {
		if topicMatches(filter, topic) {
			matched = append(matched, handler)
		}
	}
	f.mu.Unlock()
	for _, handler := range matched {
		handler(nil, &fakeMessage{topic: topic, payload: payload})
	}
	return len(matched) > 0
}

func (f *fakeMQTT) lastPublished(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.published[topic]
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1].payload, true
}

func topicMatches(filter, topic string) bool {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")
	if len(fparts) != len(tparts) {
		return false
	}
	for i := range fparts {
		if fparts[i] == "+" {
			continue
		}
		if fparts[i] != tparts[i] {
			return false
		}
	}
	return true
}

func testPlayer() mass.Player {
	return mass.Player{
		PlayerID:    "p1",
		Name:        "Kitchen",
		Available:   true,
		State:       "playing",
		VolumeLevel: 40,
		ActiveQueue: "q1",
	}
}

func newTestModule(t *testing.T, server *fakeServer, client *fakeMQTT) (*Module, *bus.Bus) {
	t.Helper()
	events := bus.New()
	cfg := Config{TopicBase: mab.BaseTopic}
	m := NewModule(zap.NewNop(), client, server, browse.New(zap.NewNop()), events, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client.mu.Lock()
		n := len(client.handlers)
		client.mu.Unlock()
		if n > 0 {
			return m, events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("module did not subscribe")
	return nil, nil
}

func sendCommand(t *testing.T, client *fakeMQTT, nodeID, cmdType string, body any) mab.ReplyEnvelope {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	cmd := mab.CommandEnvelope{
		ID:      "c1",
		Type:    cmdType,
		TS:      time.Now().Unix(),
		From:    "test",
		ReplyTo: mab.TopicReply(mab.BaseTopic, "test"),
		Body:    payload,
	}
	raw, _ := json.Marshal(cmd)
	if !client.deliver(mab.TopicCommands(mab.BaseTopic, nodeID), raw) {
		t.Fatalf("no handler for node %s", nodeID)
	}

	data, ok := client.lastPublished(cmd.ReplyTo)
	if !ok {
		t.Fatalf("no reply published")
	}
	var reply mab.ReplyEnvelope
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return reply
}

func TestPlayerSnapshotPublishesRetainedState(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	_, events := newTestModule(t, server, client)

	events.PublishPlayer(testPlayer())

	stateTopic := mab.TopicState(mab.BaseTopic, mab.PlayerNodeID("srv1", "p1"))
	client.mu.Lock()
	msgs := client.published[stateTopic]
	client.mu.Unlock()
	if len(msgs) != 1 || !msgs[0].retained {
		t.Fatalf("expected one retained state publish, got %+v", msgs)
	}
	var state mab.PlayerState
	if err := json.Unmarshal(msgs[0].payload, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.PlayerID != "p1" || state.State != "playing" {
		t.Fatalf("state: %+v", state)
	}
	if state.Volume != 0.4 {
		t.Fatalf("volume: %v", state.Volume)
	}
}

func TestQueueUpdateRepublishesOwnerState(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	_, events := newTestModule(t, server, client)

	events.PublishPlayer(testPlayer())
	events.PublishQueue(mass.Queue{
		QueueID:        "q1",
		QueueName:      "Kitchen",
		ShuffleEnabled: true,
		CurItem: &mass.MediaItem{
			ItemID:    "t1",
			Provider:  "spotify",
			MediaType: "track",
			Name:      "Blue Train",
			Duration:  643,
			Artists:   []mass.ItemRef{{Name: "John Coltrane"}},
			Album:     &mass.ItemRef{Name: "Blue Train"},
		},
		CurItemTime: 42,
	})

	stateTopic := mab.TopicState(mab.BaseTopic, mab.PlayerNodeID("srv1", "p1"))
	raw, ok := client.lastPublished(stateTopic)
	if !ok {
		t.Fatalf("no state published")
	}
	var state mab.PlayerState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state.Shuffle || state.QueueName != "Kitchen" {
		t.Fatalf("queue fields: %+v", state)
	}
	if state.Media == nil {
		t.Fatalf("media missing")
	}
	if state.Media.ContentID != "spotify###t1" || state.Media.Artist != "John Coltrane" {
		t.Fatalf("media: %+v", state.Media)
	}
	if state.Media.PositionS != 42 || state.Media.ImageURL != "http://img/t1" {
		t.Fatalf("media: %+v", state.Media)
	}
}

func TestUnavailableNewPlayerNotAdded(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	_, events := newTestModule(t, server, client)

	player := testPlayer()
	player.Available = false
	events.PublishPlayer(player)

	nodeID := mab.PlayerNodeID("srv1", "p1")
	if _, ok := client.lastPublished(mab.TopicPresence(mab.BaseTopic, nodeID)); ok {
		t.Fatalf("presence published for unavailable new player")
	}
	if _, ok := client.lastPublished(mab.TopicState(mab.BaseTopic, nodeID)); ok {
		t.Fatalf("state published for unavailable new player")
	}

	// Once known, the same snapshot flips the flag instead.
	player.Available = true
	events.PublishPlayer(player)
	player.Available = false
	events.PublishPlayer(player)

	raw, ok := client.lastPublished(mab.TopicState(mab.BaseTopic, nodeID))
	if !ok {
		t.Fatalf("no state published for known player")
	}
	var state mab.PlayerState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Available {
		t.Fatalf("state should be unavailable: %+v", state)
	}
}

func TestPlayerRemovedMarksUnavailable(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	_, events := newTestModule(t, server, client)

	events.PublishPlayer(testPlayer())
	events.PublishPlayerRemoved("p1")

	nodeID := mab.PlayerNodeID("srv1", "p1")
	raw, ok := client.lastPublished(mab.TopicState(mab.BaseTopic, nodeID))
	if !ok || len(raw) == 0 {
		t.Fatalf("expected retained state after removal, got %v", raw)
	}
	var state mab.PlayerState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Available || state.PlayerID != "p1" {
		t.Fatalf("removal should mark unavailable: %+v", state)
	}

	// Presence survives removal so a returning player keeps its node.
	raw, ok = client.lastPublished(mab.TopicPresence(mab.BaseTopic, nodeID))
	if !ok || len(raw) == 0 {
		t.Fatalf("presence should stay retained: %v", raw)
	}

	// Removal of an unknown player publishes nothing.
	before := publishCount(client, mab.TopicState(mab.BaseTopic, mab.PlayerNodeID("srv1", "ghost")))
	events.PublishPlayerRemoved("ghost")
	after := publishCount(client, mab.TopicState(mab.BaseTopic, mab.PlayerNodeID("srv1", "ghost")))
	if before != after {
		t.Fatalf("unexpected publish for unknown player removal")
	}
}

func publishCount(client *fakeMQTT, topic string) int {
	client.mu.Lock()
	defer client.mu.Unlock()
	return len(client.published[topic])
}

func TestSetVolumeCommand(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	_, events := newTestModule(t, server, client)
	events.PublishPlayer(testPlayer())

	reply := sendCommand(t, client, mab.PlayerNodeID("srv1", "p1"), "player.setVolume", mab.PlayerSetVolumeBody{Volume: 55})
	if !reply.OK {
		t.Fatalf("reply: %+v", reply)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.commands) != 1 {
		t.Fatalf("expected 1 command, got %+v", server.commands)
	}
	cmd := server.commands[0]
	if cmd.command != "volume_set" || cmd.args["volume_level"] != 55 {
		t.Fatalf("command: %+v", cmd)
	}
}

func TestCommandForUnknownPlayer(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	newTestModule(t, server, client)

	reply := sendCommand(t, client, mab.PlayerNodeID("srv1", "ghost"), "player.play", struct{}{})
	if reply.OK || reply.Err == nil || reply.Err.Code != "unknown_player" {
		t.Fatalf("reply: %+v", reply)
	}
}

func TestShuffleAndClearQueue(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	_, events := newTestModule(t, server, client)
	events.PublishPlayer(testPlayer())

	nodeID := mab.PlayerNodeID("srv1", "p1")
	if reply := sendCommand(t, client, nodeID, "player.setShuffle", mab.PlayerSetShuffleBody{Shuffle: true}); !reply.OK {
		t.Fatalf("shuffle reply: %+v", reply)
	}
	if reply := sendCommand(t, client, nodeID, "player.clearQueue", struct{}{}); !reply.OK {
		t.Fatalf("clear reply: %+v", reply)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if !server.shuffled["p1"] {
		t.Fatalf("shuffle not forwarded")
	}
	if len(server.cleared) != 1 || server.cleared[0] != "p1" {
		t.Fatalf("clear not forwarded: %v", server.cleared)
	}
}

func TestPlayMediaResolution(t *testing.T) {
	server := newFakeServer()
	server.playlists = []mass.MediaItem{{ItemID: "pl1", Provider: "library", MediaType: "playlist", Name: "Dinner Jazz"}}
	client := newFakeMQTT()
	_, events := newTestModule(t, server, client)
	events.PublishPlayer(testPlayer())

	nodeID := mab.PlayerNodeID("srv1", "p1")

	// Encoded media URI.
	sendCommand(t, client, nodeID, "player.playMedia", mab.PlayerPlayMediaBody{MediaID: "mass://srv1/album/spotify###42"})
	// Provider/item pair.
	sendCommand(t, client, nodeID, "player.playMedia", mab.PlayerPlayMediaBody{MediaID: "spotify###t9", MediaType: "track", Enqueue: true})
	// Library playlist by name.
	sendCommand(t, client, nodeID, "player.playMedia", mab.PlayerPlayMediaBody{MediaID: "dinner jazz"})
	// Unresolvable name falls through to a raw URI.
	sendCommand(t, client, nodeID, "player.playMedia", mab.PlayerPlayMediaBody{MediaID: "http://stream.example/live"})

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.media) != 3 {
		t.Fatalf("expected 3 media plays, got %+v", server.media)
	}
	if server.media[0].item.MediaType != "album" || server.media[0].item.ItemID != "42" || server.media[0].item.Provider != "spotify" {
		t.Fatalf("uri play: %+v", server.media[0])
	}
	if server.media[1].item.ItemID != "t9" || server.media[1].opt != "add" {
		t.Fatalf("pair play: %+v", server.media[1])
	}
	if server.media[2].item.ItemID != "pl1" {
		t.Fatalf("name play: %+v", server.media[2])
	}
	if len(server.uris) != 1 || server.uris[0].uri != "http://stream.example/live" {
		t.Fatalf("uri fallthrough: %+v", server.uris)
	}
}

func TestLibraryBrowseCommand(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	newTestModule(t, server, client)

	reply := sendCommand(t, client, mab.LibraryNodeID("srv1"), "library.browse", mab.LibraryBrowseBody{})
	if !reply.OK {
		t.Fatalf("reply: %+v", reply)
	}
	var body mab.LibraryBrowseReply
	if err := json.Unmarshal(reply.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Root.URI != "mass://srv1/root" || len(body.Root.Children) != 5 {
		t.Fatalf("root: %+v", body.Root)
	}
}

func TestLibraryBrowseUnknownServer(t *testing.T) {
	server := newFakeServer()
	client := newFakeMQTT()
	newTestModule(t, server, client)

	reply := sendCommand(t, client, mab.LibraryNodeID("srv1"), "library.browse", mab.LibraryBrowseBody{URI: "mass://other/albums"})
	if reply.OK || reply.Err == nil || reply.Err.Code != "not_found" {
		t.Fatalf("reply: %+v", reply)
	}
}
