package ports

import (
	"context"

	"github.com/mikey-austin/massbridge/pkg/mab"
)

// Broker publishes commands and reads retained state/presence.
type Broker interface {
	ReplyTopic() string
	PublishCommand(ctx context.Context, nodeID string, cmd mab.CommandEnvelope) (mab.ReplyEnvelope, error)
	ListPresence(ctx context.Context) ([]mab.Presence, error)
	GetPlayerState(ctx context.Context, nodeID string) (mab.PlayerState, error)
	WatchPlayer(ctx context.Context, nodeID string) (<-chan mab.PlayerState, <-chan error)
}

// Clock returns the current unix time in seconds.
type Clock interface {
	NowUnix() int64
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}
