package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mikey-austin/massbridge/internal/ports"
	"github.com/mikey-austin/massbridge/pkg/mab"
)

// Resolver resolves selectors to node presence.
type Resolver struct {
	Presence ports.Broker
	Config   Config
}

// ResolvePlayer resolves a player selector using config defaults.
func (r Resolver) ResolvePlayer(ctx context.Context, selector string) (mab.Presence, error) {
	return r.resolveByKind(ctx, selector, "player", r.Config.Defaults.Player)
}

// ResolveLibrary resolves a library selector using config defaults.
func (r Resolver) ResolveLibrary(ctx context.Context, selector string) (mab.Presence, error) {
	return r.resolveByKind(ctx, selector, "library", r.Config.Defaults.Library)
}

// ResolveControls resolves a controls node selector.
func (r Resolver) ResolveControls(ctx context.Context, selector string) (mab.Presence, error) {
	return r.resolveByKind(ctx, selector, "controls", "")
}

func (r Resolver) resolveByKind(ctx context.Context, selector string, kind string, def string) (mab.Presence, error) {
	if selector == "" {
		selector = def
	}

	presence, err := r.Presence.ListPresence(ctx)
	if err != nil {
		return mab.Presence{}, WrapError(ExitRuntime, "list presence", err)
	}

	filtered := filterPresenceByKind(presence, kind)
	if selector == "" {
		if len(filtered) == 1 {
			return filtered[0], nil
		}
		return mab.Presence{}, &CLIError{Code: ExitUsage, Msg: "selector required"}
	}
	return resolveSelector(selector, filtered, r.Config.Aliases)
}

func filterPresenceByKind(presence []mab.Presence, kind string) []mab.Presence {
	if kind == "" {
		return presence
	}
	out := make([]mab.Presence, 0, len(presence))
	for _, p := range presence {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func resolveSelector(selector string, presence []mab.Presence, aliases map[string]string) (mab.Presence, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return mab.Presence{}, &CLIError{Code: ExitUsage, Msg: "selector required"}
	}

	if strings.HasPrefix(selector, "mab:") {
		return resolveExact(selector, presence)
	}

	if alias, ok := aliases[selector]; ok {
		if strings.HasPrefix(alias, "mab:") {
			return resolveExact(alias, presence)
		}
		selector = alias
	}

	matches := make([]mab.Presence, 0)
	for _, p := range presence {
		if strings.EqualFold(p.Name, selector) || strings.EqualFold(p.NodeID, selector) {
			matches = append(matches, p)
		}
	}

	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) == 0 {
		return mab.Presence{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("no match for %q", selector)}
	}
	return mab.Presence{}, &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("ambiguous selector %q: %s", selector, suggestionList(matches))}
}

func resolveExact(nodeID string, presence []mab.Presence) (mab.Presence, error) {
	for _, p := range presence {
		if p.NodeID == nodeID {
			return p, nil
		}
	}
	return mab.Presence{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("node not found: %s", nodeID)}
}

func suggestionList(matches []mab.Presence) string {
	names := make([]string, 0, len(matches))
	for _, p := range matches {
		names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.NodeID))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
