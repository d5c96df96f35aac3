package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrAuthFailed indicates Home Assistant rejected the access token.
var ErrAuthFailed = errors.New("home assistant authentication failed")

// StateHandler receives entity state-change notifications.
type StateHandler func(change StateChange)

// StateChange is one state_changed bus event.
type StateChange struct {
	EntityID string `json:"entity_id"`
	NewState *State `json:"new_state"`
	OldState *State `json:"old_state"`
}

// Client talks the Home Assistant websocket API and mirrors the entity
// state machine locally. Reads never hit the network; the cache is primed
// at connect and kept current by state_changed events.
type Client struct {
	log   *zap.Logger
	url   string
	token string

	mu   sync.Mutex
	conn *websocket.Conn

	reqID     atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan resultMessage

	statesMu sync.RWMutex
	states   map[string]State

	handlersMu sync.Mutex
	handlers   []StateHandler
}

type resultMessage struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("home assistant api error %s: %s", e.Code, e.Message)
}

// NewClient creates a client for the given websocket endpoint
// (ws://host:8123/api/websocket).
func NewClient(log *zap.Logger, wsURL, token string) *Client {
	return &Client{
		log:     log.With(zap.String("component", "hass")),
		url:     wsURL,
		token:   token,
		pending: make(map[uint64]chan resultMessage),
		states:  make(map[string]State),
	}
}

// OnStateChanged registers a handler for entity state changes. Handlers
// run after the local cache has been updated, so reading back the entity
// always observes the latest snapshot.
func (c *Client) OnStateChanged(handler StateHandler) {
	c.handlersMu.Lock()
	c.handlers = append(c.handlers, handler)
	c.handlersMu.Unlock()
}

// Connect dials, authenticates, subscribes to state_changed events and
// primes the entity cache.
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("home assistant dial: %w", err)
	}

	if err := c.authenticate(conn); err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)

	if _, err := c.send(ctx, map[string]any{
		"type":       "subscribe_events",
		"event_type": "state_changed",
	}); err != nil {
		_ = c.Close()
		return fmt.Errorf("subscribe state_changed: %w", err)
	}
	if err := c.Refresh(ctx); err != nil {
		_ = c.Close()
		return err
	}
	return nil
}

// authenticate performs the auth_required/auth/auth_ok exchange, which
// happens before the id-correlated phase of the protocol.
func (c *Client) authenticate(conn *websocket.Conn) error {
	var hello struct {
		Type string `json:"type"`
	}
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected handshake message %q", hello.Type)
	}
	if err := conn.WriteJSON(map[string]string{
		"type":         "auth",
		"access_token": c.token,
	}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var verdict struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := conn.ReadJSON(&verdict); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	if verdict.Type != "auth_ok" {
		return fmt.Errorf("%w: %s", ErrAuthFailed, verdict.Message)
	}
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Refresh re-fetches all entity states into the cache.
func (c *Client) Refresh(ctx context.Context) error {
	result, err := c.send(ctx, map[string]any{"type": "get_states"})
	if err != nil {
		return fmt.Errorf("get_states: %w", err)
	}
	var states []State
	if err := json.Unmarshal(result, &states); err != nil {
		return fmt.Errorf("decode states: %w", err)
	}
	c.statesMu.Lock()
	c.states = make(map[string]State, len(states))
	for _, state := range states {
		c.states[state.EntityID] = state
	}
	c.statesMu.Unlock()
	return nil
}

// States returns a snapshot of all cached entity states.
func (c *Client) States() []State {
	c.statesMu.RLock()
	defer c.statesMu.RUnlock()
	out := make([]State, 0, len(c.states))
	for _, state := range c.states {
		out = append(out, state)
	}
	return out
}

// State returns the cached state of one entity.
func (c *Client) State(entityID string) (State, bool) {
	c.statesMu.RLock()
	defer c.statesMu.RUnlock()
	state, ok := c.states[entityID]
	return state, ok
}

// CallService invokes a Home Assistant service.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	_, err := c.send(ctx, map[string]any{
		"type":         "call_service",
		"domain":       domain,
		"service":      service,
		"service_data": data,
	})
	if err != nil {
		return fmt.Errorf("call %s.%s: %w", domain, service, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, errors.New("not connected")
	}

	id := c.reqID.Add(1)
	msg["id"] = id

	respCh := make(chan resultMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	c.mu.Lock()
	err := conn.WriteJSON(msg)
	c.mu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	case resp := <-respCh:
		if !resp.Success {
			if resp.Error != nil {
				return nil, resp.Error
			}
			return nil, errors.New("request failed")
		}
		return resp.Result, nil
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("websocket read error", zap.Error(err))
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg struct {
		ID    uint64 `json:"id"`
		Type  string `json:"type"`
		Event *struct {
			EventType string      `json:"event_type"`
			Data      StateChange `json:"data"`
		} `json:"event"`
		resultMessage
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "result":
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- msg.resultMessage
		}
	case "event":
		if msg.Event == nil || msg.Event.EventType != "state_changed" {
			return
		}
		c.applyStateChange(msg.Event.Data)
	}
}

func (c *Client) applyStateChange(change StateChange) {
	c.statesMu.Lock()
	if change.NewState != nil {
		c.states[change.EntityID] = *change.NewState
	} else {
		delete(c.states, change.EntityID)
	}
	c.statesMu.Unlock()

	c.handlersMu.Lock()
	handlers := make([]StateHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.handlersMu.Unlock()
	for _, handler := range handlers {
		handler(change)
	}
}
