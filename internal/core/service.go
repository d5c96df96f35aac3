package core

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mikey-austin/massbridge/internal/ports"
	"github.com/mikey-austin/massbridge/pkg/mab"
)

// Service orchestrates mab CLI use cases.
type Service struct {
	Broker   ports.Broker
	Resolver Resolver
	Clock    ports.Clock
	IDGen    ports.IDGen
	Config   Config
}

// ListNodes returns presence entries with optional filters.
func (s Service) ListNodes(ctx context.Context, kind string, onlineOnly bool) (NodesResult, error) {
	nodes, err := s.Broker.ListPresence(ctx)
	if err != nil {
		return NodesResult{}, WrapError(ExitRuntime, "list nodes", err)
	}
	if kind != "" {
		filtered := nodes[:0]
		for _, node := range nodes {
			if node.Kind == kind {
				filtered = append(filtered, node)
			}
		}
		nodes = filtered
	}
	// Online filtering relies on presence; with retained presence this is best-effort.
	if onlineOnly {
		filtered := nodes[:0]
		for _, node := range nodes {
			if node.TS > 0 {
				filtered = append(filtered, node)
			}
		}
		nodes = filtered
	}
	return NodesResult{Nodes: nodes}, nil
}

// Status returns retained player state.
func (s Service) Status(ctx context.Context, selector string) (StatusResult, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return StatusResult{}, err
	}
	state, err := s.Broker.GetPlayerState(ctx, player.NodeID)
	if err != nil {
		return StatusResult{}, WrapError(ExitRuntime, "get player state", err)
	}
	return StatusResult{Player: player, State: state}, nil
}

// WatchStatus streams retained state updates for a player.
func (s Service) WatchStatus(ctx context.Context, selector string) (<-chan mab.PlayerState, <-chan error, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return nil, nil, err
	}
	states, errs := s.Broker.WatchPlayer(ctx, player.NodeID)
	return states, errs, nil
}

// Play sends player.play.
func (s Service) Play(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, "player.play", struct{}{})
}

// Pause sends player.pause.
func (s Service) Pause(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, "player.pause", struct{}{})
}

// Stop sends player.stop.
func (s Service) Stop(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, "player.stop", struct{}{})
}

// Next sends player.next.
func (s Service) Next(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, "player.next", struct{}{})
}

// Previous sends player.previous.
func (s Service) Previous(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, "player.previous", struct{}{})
}

// Toggle plays or pauses based on retained state.
func (s Service) Toggle(ctx context.Context, selector string) error {
	status, err := s.Status(ctx, selector)
	if err != nil {
		return err
	}
	if status.State.State == "playing" {
		return s.Pause(ctx, selector)
	}
	return s.Play(ctx, selector)
}

// Power sends player.power.
func (s Service) Power(ctx context.Context, selector string, on bool) error {
	return s.simplePlayer(ctx, selector, "player.power", mab.PlayerPowerBody{On: on})
}

// SetVolume sets or adjusts volume, or toggles mute.
func (s Service) SetVolume(ctx context.Context, selector string, arg string, mute *bool) error {
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return err
	}

	if mute != nil {
		cmd, err := mab.NewCommand("player.setMute", mab.PlayerSetMuteBody{Mute: *mute})
		if err != nil {
			return WrapError(ExitRuntime, "build command", err)
		}
		return s.publishSimple(ctx, player.NodeID, s.decorateCommand(cmd))
	}

	vol, err := s.resolveVolume(ctx, player.NodeID, arg)
	if err != nil {
		return err
	}
	cmd, err := mab.NewCommand("player.setVolume", mab.PlayerSetVolumeBody{Volume: vol})
	if err != nil {
		return WrapError(ExitRuntime, "build command", err)
	}
	return s.publishSimple(ctx, player.NodeID, s.decorateCommand(cmd))
}

// SetShuffle sends player.setShuffle.
func (s Service) SetShuffle(ctx context.Context, selector string, shuffle bool) error {
	return s.simplePlayer(ctx, selector, "player.setShuffle", mab.PlayerSetShuffleBody{Shuffle: shuffle})
}

// ClearQueue sends player.clearQueue.
func (s Service) ClearQueue(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, "player.clearQueue", struct{}{})
}

// PlayMedia sends player.playMedia.
func (s Service) PlayMedia(ctx context.Context, selector string, mediaID string, mediaType string, enqueue bool) error {
	mediaID = strings.TrimSpace(mediaID)
	if mediaID == "" {
		return &CLIError{Code: ExitUsage, Msg: "media id required"}
	}
	return s.simplePlayer(ctx, selector, "player.playMedia", mab.PlayerPlayMediaBody{
		MediaID:   mediaID,
		MediaType: mediaType,
		Enqueue:   enqueue,
	})
}

// PlayURI sends player.playURI.
func (s Service) PlayURI(ctx context.Context, selector string, uri string, enqueue bool) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return &CLIError{Code: ExitUsage, Msg: "uri required"}
	}
	return s.simplePlayer(ctx, selector, "player.playURI", mab.PlayerPlayURIBody{URI: uri, Enqueue: enqueue})
}

// PlayAlert sends player.playAlert.
func (s Service) PlayAlert(ctx context.Context, selector string, url string, announce bool, volume int) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return &CLIError{Code: ExitUsage, Msg: "alert url required"}
	}
	return s.simplePlayer(ctx, selector, "player.playAlert", mab.PlayerPlayAlertBody{
		URL:      url,
		Announce: announce,
		Volume:   volume,
	})
}

// Browse requests a media browse tree from a library node.
func (s Service) Browse(ctx context.Context, librarySelector string, uri string) (BrowseResult, error) {
	library, err := s.Resolver.ResolveLibrary(ctx, librarySelector)
	if err != nil {
		return BrowseResult{}, err
	}

	cmd, err := mab.NewCommand("library.browse", mab.LibraryBrowseBody{URI: uri})
	if err != nil {
		return BrowseResult{}, WrapError(ExitRuntime, "build command", err)
	}
	reply, err := s.Broker.PublishCommand(ctx, library.NodeID, s.decorateCommand(cmd))
	if err != nil {
		return BrowseResult{}, WrapError(ExitRuntime, "publish command", err)
	}
	if reply.Err != nil {
		return BrowseResult{}, ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}

	var body mab.LibraryBrowseReply
	if err := json.Unmarshal(reply.Body, &body); err != nil {
		return BrowseResult{}, WrapError(ExitRuntime, "decode browse reply", err)
	}
	return BrowseResult{Root: body.Root}, nil
}

// ControlsList lists player control candidates from a controls node.
func (s Service) ControlsList(ctx context.Context, selector string, all bool) (ControlsResult, error) {
	node, err := s.Resolver.ResolveControls(ctx, selector)
	if err != nil {
		return ControlsResult{}, err
	}

	cmd, err := mab.NewCommand("controls.list", mab.ControlsListBody{All: all})
	if err != nil {
		return ControlsResult{}, WrapError(ExitRuntime, "build command", err)
	}
	reply, err := s.Broker.PublishCommand(ctx, node.NodeID, s.decorateCommand(cmd))
	if err != nil {
		return ControlsResult{}, WrapError(ExitRuntime, "publish command", err)
	}
	if reply.Err != nil {
		return ControlsResult{}, ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}

	var body mab.ControlsListReply
	if err := json.Unmarshal(reply.Body, &body); err != nil {
		return ControlsResult{}, WrapError(ExitRuntime, "decode controls reply", err)
	}
	return ControlsResult{Controls: body.Controls}, nil
}

func (s Service) simplePlayer(ctx context.Context, selector string, cmdType string, body any) error {
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return err
	}
	cmd, err := mab.NewCommand(cmdType, body)
	if err != nil {
		return WrapError(ExitRuntime, "build command", err)
	}
	return s.publishSimple(ctx, player.NodeID, s.decorateCommand(cmd))
}

func (s Service) publishSimple(ctx context.Context, nodeID string, cmd mab.CommandEnvelope) error {
	reply, err := s.Broker.PublishCommand(ctx, nodeID, cmd)
	if err != nil {
		return WrapError(ExitRuntime, "publish command", err)
	}
	if reply.Err != nil {
		return ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}
	return nil
}

func (s Service) decorateCommand(cmd mab.CommandEnvelope) mab.CommandEnvelope {
	cmd.ID = s.IDGen.NewID()
	cmd.TS = s.Clock.NowUnix()
	cmd.From = s.Config.Identity
	cmd.ReplyTo = s.Broker.ReplyTopic()
	return cmd
}

// resolveVolume turns an absolute value or +/- delta into a 0..100 level.
// Deltas read the retained state, so a stale snapshot moves from what the
// server last pushed.
func (s Service) resolveVolume(ctx context.Context, playerID string, arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "volume argument required"}
	}

	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		delta, err := strconv.Atoi(arg)
		if err != nil {
			return 0, &CLIError{Code: ExitUsage, Msg: "invalid volume delta"}
		}
		state, err := s.Broker.GetPlayerState(ctx, playerID)
		if err != nil {
			return 0, WrapError(ExitRuntime, "get player state", err)
		}
		current := int(state.Volume*100 + 0.5)
		return clampVolume(current + delta), nil
	}

	value, err := strconv.Atoi(arg)
	if err != nil {
		return 0, &CLIError{Code: ExitUsage, Msg: "invalid volume"}
	}
	return clampVolume(value), nil
}

func clampVolume(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
