// Package bus fans remote server events out to bridge modules over a
// closed set of typed topics.
package bus

import (
	"sync"

	"github.com/mikey-austin/massbridge/internal/mass"
)

// Bus is a typed in-process event bus. Publishing is synchronous: every
// subscriber runs in the publisher's goroutine, so handlers observe events
// in order and mirrored state needs no additional locking.
type Bus struct {
	mu            sync.Mutex
	playerSubs    []func(mass.Player)
	queueSubs     []func(mass.Queue)
	removedSubs   []func(playerID string)
	connectedSubs []func()
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// SubscribePlayers registers a handler for player add/change snapshots.
func (b *Bus) SubscribePlayers(fn func(mass.Player)) {
	b.mu.Lock()
	b.playerSubs = append(b.playerSubs, fn)
	b.mu.Unlock()
}

// SubscribeQueues registers a handler for queue snapshots.
func (b *Bus) SubscribeQueues(fn func(mass.Queue)) {
	b.mu.Lock()
	b.queueSubs = append(b.queueSubs, fn)
	b.mu.Unlock()
}

// SubscribePlayerRemoved registers a handler for player removal.
func (b *Bus) SubscribePlayerRemoved(fn func(playerID string)) {
	b.mu.Lock()
	b.removedSubs = append(b.removedSubs, fn)
	b.mu.Unlock()
}

// SubscribeConnected registers a handler for the server connection event.
func (b *Bus) SubscribeConnected(fn func()) {
	b.mu.Lock()
	b.connectedSubs = append(b.connectedSubs, fn)
	b.mu.Unlock()
}

// PublishPlayer delivers a player snapshot to all player subscribers.
func (b *Bus) PublishPlayer(player mass.Player) {
	for _, fn := range b.snapshotPlayerSubs() {
		fn(player)
	}
}

// PublishQueue delivers a queue snapshot to all queue subscribers.
func (b *Bus) PublishQueue(queue mass.Queue) {
	b.mu.Lock()
	subs := make([]func(mass.Queue), len(b.queueSubs))
	copy(subs, b.queueSubs)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(queue)
	}
}

// PublishPlayerRemoved delivers a removal to all removal subscribers.
func (b *Bus) PublishPlayerRemoved(playerID string) {
	b.mu.Lock()
	subs := make([]func(string), len(b.removedSubs))
	copy(subs, b.removedSubs)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(playerID)
	}
}

// PublishConnected delivers the connection event to all subscribers.
func (b *Bus) PublishConnected() {
	b.mu.Lock()
	subs := make([]func(), len(b.connectedSubs))
	copy(subs, b.connectedSubs)
	b.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (b *Bus) snapshotPlayerSubs() []func(mass.Player) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]func(mass.Player), len(b.playerSubs))
	copy(subs, b.playerSubs)
	return subs
}
