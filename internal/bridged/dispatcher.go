package bridged

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mikey-austin/massbridge/internal/bus"
	"github.com/mikey-austin/massbridge/internal/mass"
)

// playerLister enumerates the server's players on connect.
type playerLister interface {
	Players(ctx context.Context) ([]mass.Player, error)
}

// Dispatcher routes server events onto the typed event bus. Each event
// kind maps to exactly one bus topic; unrecognized kinds are dropped.
type Dispatcher struct {
	log     *zap.Logger
	bus     *bus.Bus
	players playerLister
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(log *zap.Logger, events *bus.Bus, players playerLister) *Dispatcher {
	return &Dispatcher{
		log:     log.With(zap.String("component", "dispatcher")),
		bus:     events,
		players: players,
	}
}

// HandleEvent routes one server event. It is wired as the server
// client's event callback.
func (d *Dispatcher) HandleEvent(ctx context.Context, kind string, data json.RawMessage) {
	switch kind {
	case mass.EventPlayerAdded, mass.EventPlayerChanged:
		var player mass.Player
		if err := json.Unmarshal(data, &player); err != nil {
			d.log.Debug("bad player event payload", zap.Error(err))
			return
		}
		d.bus.PublishPlayer(player)
	case mass.EventQueueUpdated, mass.EventQueueTimeUpdated:
		var queue mass.Queue
		if err := json.Unmarshal(data, &queue); err != nil {
			d.log.Debug("bad queue event payload", zap.Error(err))
			return
		}
		d.bus.PublishQueue(queue)
	case mass.EventPlayerRemoved:
		playerID, ok := decodePlayerID(data)
		if !ok {
			d.log.Debug("bad player removed payload")
			return
		}
		d.bus.PublishPlayerRemoved(playerID)
	case mass.EventConnected:
		d.handleConnected(ctx)
	default:
		d.log.Debug("ignoring event", zap.String("kind", kind))
	}
}

// handleConnected is the startup synchronization point: enumerate every
// current player, then let connected subscribers (re-)register.
func (d *Dispatcher) handleConnected(ctx context.Context) {
	players, err := d.players.Players(ctx)
	if err != nil {
		d.log.Warn("player enumeration failed", zap.Error(err))
	}
	for _, player := range players {
		d.bus.PublishPlayer(player)
	}
	d.log.Info("server connected", zap.Int("players", len(players)))
	d.bus.PublishConnected()
}

// decodePlayerID accepts both an object payload and a bare string.
func decodePlayerID(data json.RawMessage) (string, bool) {
	var payload struct {
		PlayerID string `json:"player_id"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.PlayerID != "" {
		return payload.PlayerID, true
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil && id != "" {
		return id, true
	}
	return "", false
}
