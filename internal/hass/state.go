package hass

import "strings"

// State is one entity's snapshot from the Home Assistant state machine.
type State struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Domain returns the entity's domain (the part before the first dot).
func (s State) Domain() string {
	if idx := strings.Index(s.EntityID, "."); idx >= 0 {
		return s.EntityID[:idx]
	}
	return s.EntityID
}

// Name returns the friendly name, falling back to the entity id.
func (s State) Name() string {
	if name := s.stringAttr("friendly_name"); name != "" {
		return name
	}
	return s.EntityID
}

// Source returns the currently selected input source, if any.
func (s State) Source() string {
	return s.stringAttr("source")
}

// SourceList returns the entity's selectable input sources.
func (s State) SourceList() []string {
	raw, ok := s.Attributes["source_list"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if name, ok := v.(string); ok {
			out = append(out, name)
		}
	}
	return out
}

// VolumeLevel returns the normalized 0.0-1.0 volume level.
func (s State) VolumeLevel() float64 {
	raw, ok := s.Attributes["volume_level"]
	if !ok {
		return 0
	}
	level, ok := raw.(float64)
	if !ok {
		return 0
	}
	return level
}

func (s State) stringAttr(key string) string {
	raw, ok := s.Attributes[key]
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return value
}
