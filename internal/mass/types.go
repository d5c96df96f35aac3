package mass

import "encoding/json"

// Event kinds pushed by the Music Assistant server.
const (
	EventConnected        = "connected"
	EventPlayerAdded      = "player added"
	EventPlayerChanged    = "player changed"
	EventPlayerRemoved    = "player removed"
	EventQueueUpdated     = "queue updated"
	EventQueueTimeUpdated = "queue time updated"
	eventControlSet       = "player control set"
)

// ServerInfo identifies a Music Assistant server instance.
type ServerInfo struct {
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
	Version    string `json:"version"`
	BaseURL    string `json:"base_url"`
}

// DeviceInfo describes the hardware behind a player.
type DeviceInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// Player is the server's snapshot of a player's state.
type Player struct {
	PlayerID    string     `json:"player_id"`
	Name        string     `json:"name"`
	Available   bool       `json:"available"`
	State       string     `json:"state"`
	VolumeLevel int        `json:"volume_level"`
	Muted       bool       `json:"muted"`
	ActiveQueue string     `json:"active_queue"`
	DeviceInfo  DeviceInfo `json:"device_info"`
}

// Queue is the server's snapshot of a player queue.
type Queue struct {
	QueueID        string     `json:"queue_id"`
	QueueName      string     `json:"queue_name"`
	ShuffleEnabled bool       `json:"shuffle_enabled"`
	CurItem        *MediaItem `json:"cur_item"`
	CurItemTime    int64      `json:"cur_item_time"`
}

// ItemRef is a shallow reference to a related media item.
type ItemRef struct {
	ItemID   string `json:"item_id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

// MediaItem is a media catalog entry (track, album, artist, playlist or
// radio station).
type MediaItem struct {
	ItemID    string    `json:"item_id"`
	Provider  string    `json:"provider"`
	MediaType string    `json:"media_type"`
	Name      string    `json:"name"`
	Duration  int64     `json:"duration,omitempty"`
	Artists   []ItemRef `json:"artists,omitempty"`
	Album     *ItemRef  `json:"album,omitempty"`
	// AlbumArtist is set on album items and on tracks whose album
	// carries its own artist.
	AlbumArtist *ItemRef `json:"album_artist,omitempty"`
}

// Control types understood by the server's player-control registry.
const (
	ControlTypePower  = 0
	ControlTypeVolume = 1
)

// PlayerControl describes a virtual control registered with the server.
type PlayerControl struct {
	ControlType  int    `json:"control_type"`
	ControlID    string `json:"control_id"`
	ProviderName string `json:"provider_name"`
	Name         string `json:"name"`
	// State is a bool for power controls and a 0-100 integer for
	// volume controls.
	State any `json:"state"`
}

// ControlState is a control value pushed back by the server: a bool for
// power controls, a 0-100 number for volume controls.
type ControlState struct {
	raw json.RawMessage
}

// NewControlState wraps a raw JSON control value.
func NewControlState(raw json.RawMessage) ControlState {
	return ControlState{raw: raw}
}

// Bool interprets the pushed state as a power value.
func (s ControlState) Bool() bool {
	var v bool
	if err := json.Unmarshal(s.raw, &v); err == nil {
		return v
	}
	// Servers may send 0/1 for power as well.
	var n float64
	if err := json.Unmarshal(s.raw, &n); err == nil {
		return n != 0
	}
	return false
}

// Int interprets the pushed state as a 0-100 volume value.
func (s ControlState) Int() int {
	var n float64
	if err := json.Unmarshal(s.raw, &n); err != nil {
		return 0
	}
	return int(n)
}

// EventCallback receives server-push events together with their raw
// payload.
type EventCallback func(kind string, data json.RawMessage)

// ControlCallback receives state-change requests for a registered player
// control.
type ControlCallback func(state ControlState)
