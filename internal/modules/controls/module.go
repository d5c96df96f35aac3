// Package controls bridges local Home Assistant entities to Music
// Assistant as virtual power and volume player controls, keeping state
// synchronized in both directions.
package controls

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/massbridge/internal/bus"
	"github.com/mikey-austin/massbridge/internal/hass"
	"github.com/mikey-austin/massbridge/internal/mass"
	"github.com/mikey-austin/massbridge/pkg/mab"
)

// mqttClient abstracts MQTT operations.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// Registrar is the slice of the Music Assistant API used to maintain
// virtual player controls.
type Registrar interface {
	RegisterPlayerControl(ctx context.Context, ctl mass.PlayerControl, cb mass.ControlCallback) error
	UpdatePlayerControl(ctx context.Context, controlID string, state any) error
}

// Entities is the slice of the Home Assistant client used by the bridge.
type Entities interface {
	States() []hass.State
	State(entityID string) (hass.State, bool)
	CallService(ctx context.Context, domain, service string, data map[string]any) error
	OnStateChanged(handler hass.StateHandler)
}

// Config configures the control bridge module.
type Config struct {
	NodeID       string // mab:controls:<identity>
	TopicBase    string // MQTT topic base (e.g. "mab/v1")
	ProviderName string // name shown on the server
	// Enabled control ids; only these are registered with the server.
	PowerControls  []string
	VolumeControls []string
}

// Module implements the player-control bridge.
type Module struct {
	log       *zap.Logger
	client    mqttClient
	registrar Registrar
	entities  Entities
	config    Config

	mu         sync.Mutex
	registered map[string]Control   // enabled controls by control id
	byEntity   map[string][]Control // enabled controls by bound entity id

	ctx    context.Context
	cancel context.CancelFunc
}

// NewModule creates the control bridge. It re-registers its control set
// every time the server connection is (re-)established.
func NewModule(log *zap.Logger, client mqttClient, registrar Registrar, entities Entities, events *bus.Bus, cfg Config) *Module {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "Home Assistant"
	}
	m := &Module{
		log:        log.With(zap.String("module", "controls")),
		client:     client,
		registrar:  registrar,
		entities:   entities,
		config:     cfg,
		registered: make(map[string]Control),
		byEntity:   make(map[string][]Control),
	}
	events.SubscribeConnected(func() {
		m.RegisterControls(m.runCtx())
	})
	entities.OnStateChanged(m.handleStateChanged)
	return m
}

// Run starts the control bridge module.
func (m *Module) Run(ctx context.Context) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.log.Info("starting control bridge",
		zap.String("node_id", m.config.NodeID),
		zap.Int("power_controls", len(m.config.PowerControls)),
		zap.Int("volume_controls", len(m.config.VolumeControls)),
	)

	cmdTopic := mab.TopicCommands(m.config.TopicBase, m.config.NodeID)
	handler := func(_ paho.Client, msg paho.Message) { m.handleMessage(msg) }
	if err := m.client.Subscribe(cmdTopic, 1, handler); err != nil {
		return err
	}
	defer m.client.Unsubscribe(cmdTopic)

	if err := m.publishPresence(); err != nil {
		m.log.Warn("failed to publish presence", zap.Error(err))
	}

	<-m.ctx.Done()
	return nil
}

func (m *Module) runCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		// Connected may fire before Run when the server connection is
		// established during startup.
		return context.Background()
	}
	return m.ctx
}

// RegisterControls re-registers the full enabled control set with the
// server. Registration is not incremental: the new set supersedes any
// previous one, so shrinking the enabled list shrinks the registered set.
func (m *Module) RegisterControls(ctx context.Context) {
	enabled := make(map[string]bool, len(m.config.PowerControls)+len(m.config.VolumeControls))
	for _, id := range m.config.PowerControls {
		enabled[id] = true
	}
	for _, id := range m.config.VolumeControls {
		enabled[id] = true
	}

	registered := make(map[string]Control)
	byEntity := make(map[string][]Control)
	for _, ctl := range Discover(m.entities.States()) {
		if !enabled[ctl.ControlID] {
			continue
		}
		registered[ctl.ControlID] = ctl
		byEntity[ctl.EntityID] = append(byEntity[ctl.EntityID], ctl)
	}

	m.mu.Lock()
	m.registered = registered
	m.byEntity = byEntity
	m.mu.Unlock()

	for _, ctl := range registered {
		state, ok := m.entities.State(ctl.EntityID)
		if !ok {
			continue
		}
		ctl := ctl
		err := m.registrar.RegisterPlayerControl(ctx, mass.PlayerControl{
			ControlType:  ctl.Type,
			ControlID:    ctl.ControlID,
			ProviderName: m.config.ProviderName,
			Name:         ctl.Name,
			State:        controlState(ctl, state),
		}, func(state mass.ControlState) {
			m.handleSetState(ctl, state)
		})
		if err != nil {
			// Fire and forget: no local retry, the next connection
			// re-registers everything.
			m.log.Warn("control registration failed",
				zap.String("control_id", ctl.ControlID),
				zap.Error(err),
			)
		}
	}
	m.log.Info("registered player controls", zap.Int("count", len(registered)))
}

// handleStateChanged pushes recomputed state for every control bound to
// the changed entity. State is always derived from the latest snapshot,
// never from the change delta.
func (m *Module) handleStateChanged(change hass.StateChange) {
	ctx := m.runCtx()

	m.mu.Lock()
	ctls := make([]Control, len(m.byEntity[change.EntityID]))
	copy(ctls, m.byEntity[change.EntityID])
	m.mu.Unlock()

	for _, ctl := range ctls {
		state, ok := m.entities.State(ctl.EntityID)
		if !ok {
			continue
		}
		if err := m.registrar.UpdatePlayerControl(ctx, ctl.ControlID, controlState(ctl, state)); err != nil {
			m.log.Debug("control update failed",
				zap.String("control_id", ctl.ControlID),
				zap.Error(err),
			)
		}
	}
}

// handleSetState applies a server-requested control state to the bound
// local entity with exactly one service call. Commands for entities that
// no longer exist are dropped.
func (m *Module) handleSetState(ctl Control, state mass.ControlState) {
	ctx := m.runCtx()

	entity, ok := m.entities.State(ctl.EntityID)
	if !ok {
		m.log.Debug("dropping command for missing entity", zap.String("entity_id", ctl.EntityID))
		return
	}

	var err error
	switch ctl.Type {
	case mass.ControlTypeVolume:
		err = m.entities.CallService(ctx, "media_player", "volume_set", map[string]any{
			"entity_id":    ctl.EntityID,
			"volume_level": float64(state.Int()) / 100.0,
		})
	case mass.ControlTypePower:
		on := state.Bool()
		switch {
		case ctl.Source != "" && on:
			err = m.entities.CallService(ctx, entity.Domain(), "select_source", map[string]any{
				"entity_id": ctl.EntityID,
				"source":    ctl.Source,
			})
		case ctl.Source != "":
			// Only turn off while this control's source is still the
			// selected one; a concurrent source switch wins otherwise.
			if entity.Source() != ctl.Source {
				return
			}
			err = m.entities.CallService(ctx, entity.Domain(), "turn_off", map[string]any{
				"entity_id": ctl.EntityID,
			})
		case on:
			err = m.entities.CallService(ctx, entity.Domain(), "turn_on", map[string]any{
				"entity_id": ctl.EntityID,
			})
		default:
			err = m.entities.CallService(ctx, entity.Domain(), "turn_off", map[string]any{
				"entity_id": ctl.EntityID,
			})
		}
	}
	if err != nil {
		m.log.Warn("control service call failed",
			zap.String("control_id", ctl.ControlID),
			zap.Error(err),
		)
	}
}

func (m *Module) publishPresence() error {
	presence := mab.Presence{
		NodeID: m.config.NodeID,
		Kind:   "controls",
		Name:   m.config.ProviderName,
		Caps:   map[string]any{"list": true},
		TS:     time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(mab.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

// handleMessage handles incoming MQTT commands.
func (m *Module) handleMessage(msg paho.Message) {
	var cmd mab.CommandEnvelope
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return
	}

	var reply mab.ReplyEnvelope
	switch cmd.Type {
	case "controls.list":
		reply = m.handleList(cmd)
	default:
		return
	}

	m.publishReply(cmd.ReplyTo, reply)
}

func (m *Module) handleList(cmd mab.CommandEnvelope) mab.ReplyEnvelope {
	var body mab.ControlsListBody
	if len(cmd.Body) > 0 {
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, "bad_request", "invalid controls.list body")
		}
	}

	m.mu.Lock()
	registered := m.registered
	m.mu.Unlock()

	var infos []mab.ControlInfo
	for _, ctl := range Discover(m.entities.States()) {
		enabled := false
		if _, ok := registered[ctl.ControlID]; ok {
			enabled = true
		}
		if !body.All && !enabled {
			continue
		}
		infos = append(infos, mab.ControlInfo{
			ControlID:    ctl.ControlID,
			ControlType:  ctl.TypeName(),
			Name:         ctl.Name,
			EntityID:     ctl.EntityID,
			Source:       ctl.Source,
			ProviderName: m.config.ProviderName,
			Enabled:      enabled,
		})
	}

	payload, err := json.Marshal(mab.ControlsListReply{Controls: infos})
	if err != nil {
		return errorReply(cmd, "internal", "encode reply")
	}
	return mab.ReplyEnvelope{ID: cmd.ID, Type: "controls", OK: true, TS: time.Now().Unix(), Body: payload}
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
