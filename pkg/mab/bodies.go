package mab

// PlayerSetVolumeBody is the payload for player.setVolume.
type PlayerSetVolumeBody struct {
	// Volume is an integer level between 0 and 100.
	Volume int `json:"volume"`
}

// PlayerPowerBody is the payload for player.power.
type PlayerPowerBody struct {
	On bool `json:"on"`
}

// PlayerSetMuteBody is the payload for player.setMute.
type PlayerSetMuteBody struct {
	Mute bool `json:"mute"`
}

// PlayerSetShuffleBody is the payload for player.setShuffle.
type PlayerSetShuffleBody struct {
	Shuffle bool `json:"shuffle"`
}

// PlayerPlayMediaBody is the payload for player.playMedia.
type PlayerPlayMediaBody struct {
	// MediaID is a mass:// URI, a provider###item pair, a library
	// playlist/radio name, or a raw playable URI.
	MediaID   string `json:"mediaId"`
	MediaType string `json:"mediaType,omitempty"`
	// Enqueue adds to the queue instead of replacing playback.
	Enqueue bool `json:"enqueue,omitempty"`
}

// PlayerPlayURIBody is the payload for player.playURI.
type PlayerPlayURIBody struct {
	URI     string `json:"uri"`
	Enqueue bool   `json:"enqueue,omitempty"`
}

// PlayerPlayAlertBody is the payload for player.playAlert.
type PlayerPlayAlertBody struct {
	URL      string `json:"url"`
	Announce bool   `json:"announce,omitempty"`
	Volume   int    `json:"volume,omitempty"`
}

// LibraryBrowseBody is the payload for library.browse.
type LibraryBrowseBody struct {
	// URI is a mass:// media URI; empty means the root listing.
	URI string `json:"uri,omitempty"`
}

// LibraryBrowseReply is the reply body for library.browse.
type LibraryBrowseReply struct {
	Root BrowseNode `json:"root"`
}

// ControlsListBody is the payload for controls.list.
type ControlsListBody struct {
	// All includes every discovered candidate, not only enabled ones.
	All bool `json:"all,omitempty"`
}

// ControlInfo describes one player control candidate.
type ControlInfo struct {
	ControlID    string `json:"controlId"`
	ControlType  string `json:"controlType"`
	Name         string `json:"name"`
	EntityID     string `json:"entityId"`
	Source       string `json:"source,omitempty"`
	ProviderName string `json:"providerName"`
	Enabled      bool   `json:"enabled"`
}

// ControlsListReply is the reply body for controls.list.
type ControlsListReply struct {
	Controls []ControlInfo `json:"controls"`
}
