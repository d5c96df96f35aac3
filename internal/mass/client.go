package mass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrCannotConnect wraps any failure to reach the server. It is fatal to
// bridge startup; reconnection policy belongs to the process supervisor.
var ErrCannotConnect = errors.New("cannot connect to music assistant")

// ErrAuthFailed indicates the server rejected the configured token.
var ErrAuthFailed = errors.New("music assistant authentication failed")

// Client talks the Music Assistant websocket API: request/reply commands
// correlated by id, plus server-push events.
type Client struct {
	log   *zap.Logger
	url   string
	token string

	mu   sync.Mutex
	conn *websocket.Conn
	info ServerInfo

	reqID     atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan response

	eventCb    EventCallback
	eventKinds map[string]bool

	controlMu  sync.Mutex
	controlCbs map[string]ControlCallback
}

type response struct {
	result json.RawMessage
	err    *commandError
}

type commandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewClient creates a client for the given server endpoint.
func NewClient(log *zap.Logger, wsURL, token string) *Client {
	return &Client{
		log:        log.With(zap.String("component", "mass")),
		url:        wsURL,
		token:      token,
		pending:    make(map[uint64]chan response),
		controlCbs: make(map[string]ControlCallback),
	}
}

// SetEventCallback registers the callback invoked for server-push events.
// Only the listed kinds are delivered; must be called before Connect.
func (c *Client) SetEventCallback(cb EventCallback, kinds ...string) {
	c.eventCb = cb
	c.eventKinds = make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		c.eventKinds[kind] = true
	}
}

// ServerInfo returns the identity of the connected server.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Connect dials the server and authenticates. The synthetic "connected"
// event is delivered once authentication succeeds.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)

	result, err := c.call(ctx, "auth", map[string]any{"token": c.token})
	if err != nil {
		_ = c.Close()
		var cmdErr *commandError
		if errors.As(err, &cmdErr) {
			return fmt.Errorf("%w: %s", ErrAuthFailed, cmdErr.Message)
		}
		return fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}

	var info ServerInfo
	if err := json.Unmarshal(result, &info); err != nil {
		_ = c.Close()
		return fmt.Errorf("%w: bad server info: %v", ErrCannotConnect, err)
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	c.log.Info("connected to music assistant",
		zap.String("server_id", info.ServerID),
		zap.String("server_name", info.ServerName),
	)
	c.dispatchEvent(EventConnected, nil)
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
		ID     *uint64         `json:"id,omitempty"`
		Event  string          `json:"event,omitempty"`
		Data   json.RawMessage `json:"data,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
		Error  *commandError   `json:"error,omitempty"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.ID != nil {
		c.pendingMu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- response{result: msg.Result, err: msg.Error}
		}
		return
	}

	if msg.Event != "" {
		c.handleEvent(msg.Event, msg.Data)
	}
}

func (c *Client) handleEvent(kind string, data json.RawMessage) {
	if kind == eventControlSet {
		var payload struct {
			ControlID string          `json:"control_id"`
			State     json.RawMessage `json:"state"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		c.controlMu.Lock()
		cb := c.controlCbs[payload.ControlID]
		c.controlMu.Unlock()
		if cb != nil {
			cb(ControlState{raw: payload.State})
		}
		return
	}
	c.dispatchEvent(kind, data)
}

func (c *Client) dispatchEvent(kind string, data json.RawMessage) {
	if c.eventCb == nil || !c.eventKinds[kind] {
		return
	}
	c.eventCb(kind, data)
}

func (c *Client) call(ctx context.Context, command string, args any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, errors.New("not connected")
	}

	id := c.reqID.Add(1)
	req := map[string]any{
		"id":      id,
		"command": command,
	}
	if args != nil {
		req["args"] = args
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	respCh := make(chan response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	c.mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
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
		if resp.err != nil {
			return nil, resp.err
		}
		return resp.result, nil
	}
}

func callAs[T any](ctx context.Context, c *Client, command string, args any) (T, error) {
	var out T
	result, err := c.call(ctx, command, args)
	if err != nil {
		return out, err
	}
	if len(result) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return out, fmt.Errorf("%s: decode result: %w", command, err)
	}
	return out, nil
}

// Players returns all players known to the server.
func (c *Client) Players(ctx context.Context) ([]Player, error) {
	return callAs[[]Player](ctx, c, "get_players", nil)
}

// PlayerQueue returns the queue snapshot for a player.
func (c *Client) PlayerQueue(ctx context.Context, playerID string) (Queue, error) {
	return callAs[Queue](ctx, c, "get_player_queue", map[string]any{"player_id": playerID})
}

// MediaItemImageURL resolves the artwork URL for a media item.
func (c *Client) MediaItemImageURL(ctx context.Context, item MediaItem) (string, error) {
	return callAs[string](ctx, c, "get_media_item_image_url", map[string]any{"media_item": item})
}

// LibraryPlaylists lists library playlists.
func (c *Client) LibraryPlaylists(ctx context.Context) ([]MediaItem, error) {
	return callAs[[]MediaItem](ctx, c, "get_library_playlists", nil)
}

// LibraryArtists lists library artists.
func (c *Client) LibraryArtists(ctx context.Context) ([]MediaItem, error) {
	return callAs[[]MediaItem](ctx, c, "get_library_artists", nil)
}

// LibraryAlbums lists library albums.
func (c *Client) LibraryAlbums(ctx context.Context) ([]MediaItem, error) {
	return callAs[[]MediaItem](ctx, c, "get_library_albums", nil)
}

// LibraryTracks lists library tracks.
func (c *Client) LibraryTracks(ctx context.Context) ([]MediaItem, error) {
	return callAs[[]MediaItem](ctx, c, "get_library_tracks", nil)
}

// LibraryRadios lists library radio stations.
func (c *Client) LibraryRadios(ctx context.Context) ([]MediaItem, error) {
	return callAs[[]MediaItem](ctx, c, "get_library_radios", nil)
}

func (c *Client) getItem(ctx context.Context, command, itemID, provider string) (MediaItem, error) {
	return callAs[MediaItem](ctx, c, command, map[string]any{"item_id": itemID, "provider": provider})
}

func (c *Client) getItems(ctx context.Context, command, itemID, provider string) ([]MediaItem, error) {
	return callAs[[]MediaItem](ctx, c, command, map[string]any{"item_id": itemID, "provider": provider})
}

// Playlist fetches a single playlist.
func (c *Client) Playlist(ctx context.Context, itemID, provider string) (MediaItem, error) {
	return c.getItem(ctx, "get_playlist", itemID, provider)
}

// Album fetches a single album.
func (c *Client) Album(ctx context.Context, itemID, provider string) (MediaItem, error) {
	return c.getItem(ctx, "get_album", itemID, provider)
}

// Artist fetches a single artist.
func (c *Client) Artist(ctx context.Context, itemID, provider string) (MediaItem, error) {
	return c.getItem(ctx, "get_artist", itemID, provider)
}

// PlaylistTracks fetches the tracks of a playlist.
func (c *Client) PlaylistTracks(ctx context.Context, itemID, provider string) ([]MediaItem, error) {
	return c.getItems(ctx, "get_playlist_tracks", itemID, provider)
}

// AlbumTracks fetches the tracks of an album.
func (c *Client) AlbumTracks(ctx context.Context, itemID, provider string) ([]MediaItem, error) {
	return c.getItems(ctx, "get_album_tracks", itemID, provider)
}

// ArtistAlbums fetches the albums of an artist.
func (c *Client) ArtistAlbums(ctx context.Context, itemID, provider string) ([]MediaItem, error) {
	return c.getItems(ctx, "get_artist_albums", itemID, provider)
}

// PlayerCommand sends a transport command (play, pause, stop, next,
// previous, power_on, power_off, volume_set, volume_mute, ...).
func (c *Client) PlayerCommand(ctx context.Context, playerID, command string, args map[string]any) error {
	payload := map[string]any{"player_id": playerID, "cmd": command}
	for k, v := range args {
		payload[k] = v
	}
	_, err := c.call(ctx, "player_command", payload)
	return err
}

// QueueSetShuffle toggles shuffle on a player's queue.
func (c *Client) QueueSetShuffle(ctx context.Context, playerID string, shuffle bool) error {
	_, err := c.call(ctx, "player_queue_set_shuffle", map[string]any{"player_id": playerID, "shuffle": shuffle})
	return err
}

// QueueClear clears a player's queue.
func (c *Client) QueueClear(ctx context.Context, playerID string) error {
	_, err := c.call(ctx, "player_queue_clear", map[string]any{"player_id": playerID})
	return err
}

// PlayMedia enqueues or plays a media item on a player. queueOpt is "play"
// or "add".
func (c *Client) PlayMedia(ctx context.Context, playerID string, item MediaItem, queueOpt string) error {
	_, err := c.call(ctx, "play_media", map[string]any{
		"player_id":  playerID,
		"media_item": item,
		"queue_opt":  queueOpt,
	})
	return err
}

// PlayURI plays a raw URI on a player.
func (c *Client) PlayURI(ctx context.Context, playerID, uri, queueOpt string) error {
	_, err := c.call(ctx, "play_uri", map[string]any{
		"player_id": playerID,
		"uri":       uri,
		"queue_opt": queueOpt,
	})
	return err
}

// PlayAlert interrupts playback with an alert sound or announcement.
func (c *Client) PlayAlert(ctx context.Context, playerID, url string, announce bool, volume int) error {
	args := map[string]any{
		"player_id": playerID,
		"url":       url,
		"announce":  announce,
	}
	if volume > 0 {
		args["volume"] = volume
	}
	_, err := c.call(ctx, "play_alert", args)
	return err
}

// RegisterPlayerControl registers (or re-registers) a virtual control with
// the server. cb receives state-change requests pushed by the server;
// registration supersedes any previous state for the same control id.
func (c *Client) RegisterPlayerControl(ctx context.Context, ctl PlayerControl, cb ControlCallback) error {
	c.controlMu.Lock()
	c.controlCbs[ctl.ControlID] = cb
	c.controlMu.Unlock()
	_, err := c.call(ctx, "register_player_control", ctl)
	return err
}

// UpdatePlayerControl pushes a new state for a registered control.
func (c *Client) UpdatePlayerControl(ctx context.Context, controlID string, state any) error {
	_, err := c.call(ctx, "update_player_control", map[string]any{
		"control_id": controlID,
		"state":      state,
	})
	return err
}
