package core

import "github.com/mikey-austin/massbridge/pkg/mab"

// NodesResult holds a list of presence records.
type NodesResult struct {
	Nodes []mab.Presence
}

// StatusResult holds player presence and state.
type StatusResult struct {
	Player mab.Presence
	State  mab.PlayerState
}

// BrowseResult holds a media browse tree.
type BrowseResult struct {
	Root mab.BrowseNode
}

// ControlsResult holds player control candidates.
type ControlsResult struct {
	Controls []mab.ControlInfo
}

// RawResult holds arbitrary JSON data for output.
type RawResult struct {
	Data any
}
