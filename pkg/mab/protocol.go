package mab

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the bridge protocol.
const BaseTopic = "mab/v1"

// CommandEnvelope is the common controller command envelope for MQTT.
type CommandEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	From    string          `json:"from"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// ReplyEnvelope is the response envelope for commands.
type ReplyEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	OK   bool            `json:"ok"`
	TS   int64           `json:"ts"`
	Body json.RawMessage `json:"body,omitempty"`
	Err  *ReplyError     `json:"err,omitempty"`
}

// ReplyError describes an error response.
type ReplyError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

// Presence describes a node presence payload.
type Presence struct {
	NodeID string         `json:"nodeId"`
	Kind   string         `json:"kind"`
	Name   string         `json:"name"`
	Caps   map[string]any `json:"caps,omitempty"`
	TS     int64          `json:"ts"`
}

// PlayerState is the retained state payload published for a player node.
// It mirrors the latest snapshot pushed by the Music Assistant server;
// the bridge never computes state of its own.
type PlayerState struct {
	PlayerID  string      `json:"playerId"`
	Available bool        `json:"available"`
	State     string      `json:"state"`
	Volume    float64     `json:"volume"`
	Muted     bool        `json:"muted"`
	Shuffle   bool        `json:"shuffle"`
	QueueName string      `json:"queueName,omitempty"`
	Media     *MediaState `json:"media,omitempty"`
	TS        int64       `json:"ts"`
}

// MediaState describes the currently playing queue item of a player.
type MediaState struct {
	ContentID   string `json:"contentId,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"albumArtist,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	DurationS   int64  `json:"durationS,omitempty"`
	PositionS   int64  `json:"positionS,omitempty"`
	// PositionAt is the unix timestamp at which PositionS was valid.
	PositionAt int64 `json:"positionAt,omitempty"`
}

// BrowseNode is one node of a media browse tree.
type BrowseNode struct {
	URI         string       `json:"uri"`
	Title       string       `json:"title"`
	MediaClass  string       `json:"mediaClass"`
	ContentType string       `json:"contentType"`
	CanPlay     bool         `json:"canPlay"`
	CanExpand   bool         `json:"canExpand"`
	Thumbnail   string       `json:"thumbnail,omitempty"`
	Children    []BrowseNode `json:"children,omitempty"`
}

// NewCommand builds a command envelope with a JSON body.
func NewCommand(cmdType string, body any) (CommandEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return CommandEnvelope{}, fmt.Errorf("marshal body: %w", err)
	}

	return CommandEnvelope{
		Type: cmdType,
		Body: payload,
	}, nil
}

// ValidateCommandEnvelope validates required envelope fields.
func ValidateCommandEnvelope(cmd CommandEnvelope) error {
	if strings.TrimSpace(cmd.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(cmd.Type) == "" {
		return errors.New("type is required")
	}
	if cmd.TS <= 0 {
		return errors.New("ts must be a positive unix timestamp")
	}
	if strings.TrimSpace(cmd.From) == "" {
		return errors.New("from is required")
	}
	if len(cmd.Body) == 0 {
		return errors.New("body is required")
	}
	return nil
}

// TopicPresence builds the presence topic for a node.
func TopicPresence(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/presence", topicBase, nodeID)
}

// TopicState builds the state topic for a node.
func TopicState(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/state", topicBase, nodeID)
}

// TopicCommands builds the command topic for a node.
func TopicCommands(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/cmd", topicBase, nodeID)
}

// TopicReply builds the reply topic for a controller instance.
func TopicReply(topicBase, controllerID string) string {
	return fmt.Sprintf("%s/reply/%s", topicBase, controllerID)
}

// PlayerNodeID builds the bus node ID for a Music Assistant player.
func PlayerNodeID(serverID, playerID string) string {
	return fmt.Sprintf("mab:player:%s:%s", serverID, playerID)
}

// LibraryNodeID builds the bus node ID for a server's media library.
func LibraryNodeID(serverID string) string {
	return fmt.Sprintf("mab:library:%s", serverID)
}

// ControlsNodeID builds the bus node ID for the player-control bridge.
func ControlsNodeID(identity string) string {
	return fmt.Sprintf("mab:controls:%s", identity)
}
