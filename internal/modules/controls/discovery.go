package controls

import (
	"math"
	"sort"

	"github.com/mikey-austin/massbridge/internal/hass"
	"github.com/mikey-austin/massbridge/internal/mass"
)

// offStates are local entity states treated as powered off.
var offStates = map[string]bool{
	"off":         true,
	"unavailable": true,
	"unknown":     true,
}

// Control binds a virtual Music Assistant player control to a local Home
// Assistant entity.
type Control struct {
	ControlID string
	Type      int
	EntityID  string
	Name      string
	// Source is set for sourced power controls only.
	Source string
}

// TypeName returns the wire name of the control type.
func (c Control) TypeName() string {
	if c.Type == mass.ControlTypeVolume {
		return "volume"
	}
	return "power"
}

// Discover scans the local entity states and yields every control
// candidate. Control ids derive from entity identity, control kind and
// source name only, so repeated discovery over the same entity set is
// idempotent.
func Discover(states []hass.State) []Control {
	sorted := make([]hass.State, len(states))
	copy(sorted, states)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EntityID < sorted[j].EntityID })

	var out []Control
	for _, state := range sorted {
		switch state.Domain() {
		case "media_player", "switch", "input_boolean":
		default:
			continue
		}
		// Entities the bridge itself creates from server players would
		// loop commands back; skip them.
		if _, ok := state.Attributes["mass_player_id"]; ok {
			continue
		}

		out = append(out, Control{
			ControlID: state.EntityID + "_power",
			Type:      mass.ControlTypePower,
			EntityID:  state.EntityID,
			Name:      state.Name() + " power",
		})
		for _, source := range state.SourceList() {
			out = append(out, Control{
				ControlID: state.EntityID + "_power_" + source,
				Type:      mass.ControlTypePower,
				EntityID:  state.EntityID,
				Name:      state.Name() + " power (" + source + ")",
				Source:    source,
			})
		}
		if state.Domain() == "media_player" {
			out = append(out, Control{
				ControlID: state.EntityID + "_volume",
				Type:      mass.ControlTypeVolume,
				EntityID:  state.EntityID,
				Name:      state.Name() + " volume",
			})
		}
	}
	return out
}

// powerState computes a power control's reported state from the bound
// entity's latest snapshot. A sourced control is on exactly when the
// entity's selected source matches the control's source.
func powerState(ctl Control, state hass.State) bool {
	if ctl.Source != "" {
		return state.Source() == ctl.Source
	}
	return !offStates[state.State]
}

// volumeState scales the entity's normalized 0.0-1.0 level to 0-100.
func volumeState(state hass.State) int {
	level := int(math.Round(state.VolumeLevel() * 100))
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// controlState computes the current reported state for any control kind.
func controlState(ctl Control, state hass.State) any {
	if ctl.Type == mass.ControlTypeVolume {
		return volumeState(state)
	}
	return powerState(ctl, state)
}
