// Package players mirrors Music Assistant players onto retained MQTT
// state topics and forwards transport commands back to the server.
package players

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/massbridge/internal/browse"
	"github.com/mikey-austin/massbridge/internal/bus"
	"github.com/mikey-austin/massbridge/internal/mass"
	"github.com/mikey-austin/massbridge/pkg/mab"
)

// mqttClient abstracts MQTT operations.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// Server is the slice of the Music Assistant API used by the facade.
type Server interface {
	browse.Catalog
	ServerInfo() mass.ServerInfo
	Players(ctx context.Context) ([]mass.Player, error)
	PlayerQueue(ctx context.Context, playerID string) (mass.Queue, error)
	PlayerCommand(ctx context.Context, playerID, command string, args map[string]any) error
	QueueSetShuffle(ctx context.Context, playerID string, shuffle bool) error
	QueueClear(ctx context.Context, playerID string) error
	PlayMedia(ctx context.Context, playerID string, item mass.MediaItem, queueOpt string) error
	PlayURI(ctx context.Context, playerID, uri, queueOpt string) error
	PlayAlert(ctx context.Context, playerID, url string, announce bool, volume int) error
}

// Config configures the player facade module.
type Config struct {
	TopicBase string // MQTT topic base (e.g. "mab/v1")
	Name      string // Human-readable library name
}

// Module implements the player facade. It holds the latest snapshot per
// player and queue; reads never call the server, and command handlers
// never update state optimistically.
type Module struct {
	log     *zap.Logger
	client  mqttClient
	server  Server
	browser *browse.Browser
	config  Config

	mu      sync.Mutex
	players map[string]mass.Player // by player id
	queues  map[string]mass.Queue  // by queue id

	ctx    context.Context
	cancel context.CancelFunc
}

// NewModule creates the facade and wires it to the event bus.
func NewModule(log *zap.Logger, client mqttClient, server Server, browser *browse.Browser, events *bus.Bus, cfg Config) *Module {
	m := &Module{
		log:     log.With(zap.String("module", "players")),
		client:  client,
		server:  server,
		browser: browser,
		config:  cfg,
		players: make(map[string]mass.Player),
		queues:  make(map[string]mass.Queue),
	}
	events.SubscribePlayers(m.handlePlayer)
	events.SubscribeQueues(m.handleQueue)
	events.SubscribePlayerRemoved(m.handlePlayerRemoved)
	events.SubscribeConnected(m.handleConnected)
	return m
}

// Run starts the facade module.
func (m *Module) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	info := m.server.ServerInfo()
	m.log.Info("starting player facade",
		zap.String("server_id", info.ServerID),
		zap.String("server_name", info.ServerName),
	)

	// Node ids are single topic levels, so one level wildcard covers every
	// player node plus the library node; routing happens on the node id.
	cmdTopic := m.config.TopicBase + "/node/+/cmd"
	handler := func(_ paho.Client, msg paho.Message) { m.handleMessage(msg) }
	if err := m.client.Subscribe(cmdTopic, 1, handler); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	defer m.client.Unsubscribe(cmdTopic)

	if err := m.publishLibraryPresence(); err != nil {
		m.log.Warn("failed to publish library presence", zap.Error(err))
	}

	<-m.ctx.Done()
	return nil
}

func (m *Module) runCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return context.Background()
	}
	return m.ctx
}

func (m *Module) handleConnected() {
	if err := m.publishLibraryPresence(); err != nil {
		m.log.Debug("failed to publish library presence", zap.Error(err))
	}
}

// handlePlayer mirrors a pushed player snapshot. Unavailable players are
// never added; a known player that goes unavailable keeps its node and
// flips the availability flag instead.
func (m *Module) handlePlayer(player mass.Player) {
	m.mu.Lock()
	_, known := m.players[player.PlayerID]
	if !known && !player.Available {
		m.mu.Unlock()
		return
	}
	m.players[player.PlayerID] = player
	queue, hasQueue := m.queues[player.ActiveQueue]
	m.mu.Unlock()

	if err := m.publishPlayerPresence(player); err != nil {
		m.log.Debug("failed to publish player presence", zap.Error(err))
	}
	if !hasQueue {
		queue = mass.Queue{}
	}
	if err := m.publishPlayerState(player, queue); err != nil {
		m.log.Debug("failed to publish player state", zap.Error(err))
	}
}

// handleQueue republishes state for the player owning the queue.
func (m *Module) handleQueue(queue mass.Queue) {
	m.mu.Lock()
	m.queues[queue.QueueID] = queue
	var player mass.Player
	found := false
	for _, p := range m.players {
		if p.ActiveQueue == queue.QueueID {
			player = p
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return
	}
	if err := m.publishPlayerState(player, queue); err != nil {
		m.log.Debug("failed to publish player state", zap.Error(err))
	}
}

// handlePlayerRemoved drops the snapshot and marks the retained state
// unavailable. Presence stays retained: removed players may return and
// keep their node identity.
func (m *Module) handlePlayerRemoved(playerID string) {
	m.mu.Lock()
	player, known := m.players[playerID]
	delete(m.players, playerID)
	if known {
		delete(m.queues, player.ActiveQueue)
	}
	m.mu.Unlock()

	if !known {
		return
	}
	player.Available = false
	if err := m.publishPlayerState(player, mass.Queue{}); err != nil {
		m.log.Debug("failed to publish player state", zap.Error(err))
	}
	m.log.Info("player removed", zap.String("player_id", playerID))
}

func (m *Module) publishPlayerPresence(player mass.Player) error {
	nodeID := mab.PlayerNodeID(m.server.ServerInfo().ServerID, player.PlayerID)
	presence := mab.Presence{
		NodeID: nodeID,
		Kind:   "player",
		Name:   player.Name,
		Caps: map[string]any{
			"volume":    true,
			"mute":      true,
			"shuffle":   true,
			"playMedia": true,
		},
		TS: time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(mab.TopicPresence(m.config.TopicBase, nodeID), 1, true, payload)
}

func (m *Module) publishPlayerState(player mass.Player, queue mass.Queue) error {
	state := mab.PlayerState{
		PlayerID:  player.PlayerID,
		Available: player.Available,
		State:     player.State,
		Volume:    float64(player.VolumeLevel) / 100.0,
		Muted:     player.Muted,
		Shuffle:   queue.ShuffleEnabled,
		QueueName: queue.QueueName,
		TS:        time.Now().Unix(),
	}
	if queue.CurItem != nil {
		state.Media = m.mediaState(*queue.CurItem, queue.CurItemTime)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	nodeID := mab.PlayerNodeID(m.server.ServerInfo().ServerID, player.PlayerID)
	return m.client.Publish(mab.TopicState(m.config.TopicBase, nodeID), 1, true, payload)
}

func (m *Module) mediaState(item mass.MediaItem, position int64) *mab.MediaState {
	media := &mab.MediaState{
		ContentID:   mab.ContentID(item.Provider, item.ItemID),
		ContentType: item.MediaType,
		Title:       item.Name,
		DurationS:   item.Duration,
		PositionS:   position,
		PositionAt:  time.Now().Unix(),
	}
	names := make([]string, 0, len(item.Artists))
	for _, artist := range item.Artists {
		names = append(names, artist.Name)
	}
	media.Artist = strings.Join(names, "/")
	if item.Album != nil {
		media.Album = item.Album.Name
	}
	if item.AlbumArtist != nil {
		media.AlbumArtist = item.AlbumArtist.Name
	}
	if url, err := m.server.MediaItemImageURL(m.runCtx(), item); err == nil {
		media.ImageURL = url
	}
	return media
}

func (m *Module) publishLibraryPresence() error {
	info := m.server.ServerInfo()
	name := m.config.Name
	if name == "" {
		name = info.ServerName
	}
	nodeID := mab.LibraryNodeID(info.ServerID)
	presence := mab.Presence{
		NodeID: nodeID,
		Kind:   "library",
		Name:   name,
		Caps:   map[string]any{"browse": true},
		TS:     time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(mab.TopicPresence(m.config.TopicBase, nodeID), 1, true, payload)
}

// handleMessage routes an incoming command to the library or the
// addressed player node.
func (m *Module) handleMessage(msg paho.Message) {
	var cmd mab.CommandEnvelope
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return
	}

	info := m.server.ServerInfo()
	nodeID := nodeIDFromTopic(m.config.TopicBase, msg.Topic())
	if nodeID == mab.LibraryNodeID(info.ServerID) {
		m.handleLibraryCommand(cmd)
		return
	}
	playerPrefix := mab.PlayerNodeID(info.ServerID, "")
	if strings.HasPrefix(nodeID, playerPrefix) {
		m.handlePlayerCommand(strings.TrimPrefix(nodeID, playerPrefix), cmd)
	}
}

// handlePlayerCommand dispatches a transport command to the server. Every
// command maps to exactly one server call; the retained state only moves
// when the server pushes the resulting snapshot back.
func (m *Module) handlePlayerCommand(playerID string, cmd mab.CommandEnvelope) {
	m.mu.Lock()
	player, known := m.players[playerID]
	m.mu.Unlock()
	if !known {
		m.publishReply(cmd.ReplyTo, errorReply(cmd, "unknown_player", "no such player: "+playerID))
		return
	}

	ctx := m.runCtx()
	var err error
	switch cmd.Type {
	case "player.play":
		err = m.server.PlayerCommand(ctx, playerID, "play", nil)
	case "player.pause":
		err = m.server.PlayerCommand(ctx, playerID, "pause", nil)
	case "player.stop":
		err = m.server.PlayerCommand(ctx, playerID, "stop", nil)
	case "player.next":
		err = m.server.PlayerCommand(ctx, playerID, "next", nil)
	case "player.previous":
		err = m.server.PlayerCommand(ctx, playerID, "previous", nil)
	case "player.power":
		var body mab.PlayerPowerBody
		if err = json.Unmarshal(cmd.Body, &body); err == nil {
			command := "power_off"
			if body.On {
				command = "power_on"
			}
			err = m.server.PlayerCommand(ctx, playerID, command, nil)
		}
	case "player.setVolume":
		var body mab.PlayerSetVolumeBody
		if err = json.Unmarshal(cmd.Body, &body); err == nil {
			err = m.server.PlayerCommand(ctx, playerID, "volume_set", map[string]any{"volume_level": body.Volume})
		}
	case "player.setMute":
		var body mab.PlayerSetMuteBody
		if err = json.Unmarshal(cmd.Body, &body); err == nil {
			err = m.server.PlayerCommand(ctx, playerID, "volume_mute", map[string]any{"muted": body.Mute})
		}
	case "player.setShuffle":
		var body mab.PlayerSetShuffleBody
		if err = json.Unmarshal(cmd.Body, &body); err == nil {
			err = m.server.QueueSetShuffle(ctx, playerID, body.Shuffle)
		}
	case "player.clearQueue":
		err = m.server.QueueClear(ctx, playerID)
	case "player.playMedia":
		var body mab.PlayerPlayMediaBody
		if err = json.Unmarshal(cmd.Body, &body); err == nil {
			err = m.playMedia(ctx, playerID, body)
		}
	case "player.playURI":
		var body mab.PlayerPlayURIBody
		if err = json.Unmarshal(cmd.Body, &body); err == nil {
			err = m.server.PlayURI(ctx, playerID, body.URI, queueOpt(body.Enqueue))
		}
	case "player.playAlert":
		var body mab.PlayerPlayAlertBody
		if err = json.Unmarshal(cmd.Body, &body); err == nil {
			err = m.server.PlayAlert(ctx, playerID, body.URL, body.Announce, body.Volume)
		}
	default:
		return
	}

	if err != nil {
		m.log.Warn("player command failed",
			zap.String("player_id", player.PlayerID),
			zap.String("cmd_type", cmd.Type),
			zap.Error(err),
		)
		m.publishReply(cmd.ReplyTo, errorReply(cmd, "command_failed", err.Error()))
		return
	}
	m.publishReply(cmd.ReplyTo, mab.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: time.Now().Unix()})
}

// playMedia resolves a media id in order of specificity: an encoded media
// URI, a provider/item pair, a library playlist or radio name, and
// finally a raw URI passed straight through.
func (m *Module) playMedia(ctx context.Context, playerID string, body mab.PlayerPlayMediaBody) error {
	opt := queueOpt(body.Enqueue)

	if mab.IsURI(body.MediaID) {
		u := mab.DecodeURI(body.MediaID)
		if !u.HasItem() {
			return fmt.Errorf("uri %q does not name a playable item", body.MediaID)
		}
		return m.server.PlayMedia(ctx, playerID, mass.MediaItem{
			ItemID:    u.ItemID,
			Provider:  u.Provider,
			MediaType: u.Category,
		}, opt)
	}

	if provider, itemID, ok := mab.SplitContentID(body.MediaID); ok {
		return m.server.PlayMedia(ctx, playerID, mass.MediaItem{
			ItemID:    itemID,
			Provider:  provider,
			MediaType: body.MediaType,
		}, opt)
	}

	if body.MediaType == "" || body.MediaType == "playlist" {
		if items, err := m.server.LibraryPlaylists(ctx); err == nil {
			if item, ok := findByName(items, body.MediaID); ok {
				return m.server.PlayMedia(ctx, playerID, item, opt)
			}
		}
	}
	if body.MediaType == "" || body.MediaType == "radio" {
		if items, err := m.server.LibraryRadios(ctx); err == nil {
			if item, ok := findByName(items, body.MediaID); ok {
				return m.server.PlayMedia(ctx, playerID, item, opt)
			}
		}
	}

	return m.server.PlayURI(ctx, playerID, body.MediaID, opt)
}

func findByName(items []mass.MediaItem, name string) (mass.MediaItem, bool) {
	for _, item := range items {
		if strings.EqualFold(item.Name, name) {
			return item, true
		}
	}
	return mass.MediaItem{}, false
}

func queueOpt(enqueue bool) string {
	if enqueue {
		return "add"
	}
	return "play"
}

// handleLibraryCommand serves media browse requests.
func (m *Module) handleLibraryCommand(cmd mab.CommandEnvelope) {
	if cmd.Type != "library.browse" {
		return
	}

	var body mab.LibraryBrowseBody
	if len(cmd.Body) > 0 {
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			m.publishReply(cmd.ReplyTo, errorReply(cmd, "bad_request", "invalid library.browse body"))
			return
		}
	}

	info := m.server.ServerInfo()
	servers := []browse.Server{{ID: info.ServerID, Name: info.ServerName, Catalog: m.server}}
	root, err := m.browser.Browse(m.runCtx(), servers, body.URI)
	if err != nil {
		code := "command_failed"
		var browseErr *browse.Error
		if errors.As(err, &browseErr) {
			code = "not_found"
		}
		m.publishReply(cmd.ReplyTo, errorReply(cmd, code, err.Error()))
		return
	}

	payload, err := json.Marshal(mab.LibraryBrowseReply{Root: *root})
	if err != nil {
		m.publishReply(cmd.ReplyTo, errorReply(cmd, "internal", "encode reply"))
		return
	}
	m.publishReply(cmd.ReplyTo, mab.ReplyEnvelope{ID: cmd.ID, Type: "browse", OK: true, TS: time.Now().Unix(), Body: payload})
}

func nodeIDFromTopic(topicBase, topic string) string {
	prefix := topicBase + "/node/"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, "/cmd") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(topic, prefix), "/cmd")
}

func errorReply(cmd mab.CommandEnvelope, code, message string) mab.ReplyEnvelope {
	return mab.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   time.Now().Unix(),
		Err:  &mab.ReplyError{Code: code, Message: message},
	}
}

func (m *Module) publishReply(replyTo string, reply mab.ReplyEnvelope) {
	if replyTo == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	_ = m.client.Publish(replyTo, 1, false, payload)
}
