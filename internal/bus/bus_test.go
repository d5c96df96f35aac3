package bus

import (
	"testing"

	"github.com/mikey-austin/massbridge/internal/mass"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()

	var first, second []string
	b.SubscribePlayers(func(p mass.Player) { first = append(first, p.PlayerID) })
	b.SubscribePlayers(func(p mass.Player) { second = append(second, p.PlayerID) })

	b.PublishPlayer(mass.Player{PlayerID: "p1"})
	b.PublishPlayer(mass.Player{PlayerID: "p2"})

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected both subscribers to see 2 events, got %d and %d", len(first), len(second))
	}
	if first[0] != "p1" || first[1] != "p2" {
		t.Fatalf("events out of order: %v", first)
	}
}

func TestVariantsAreIndependent(t *testing.T) {
	b := New()

	var players, queues, removed, connected int
	b.SubscribePlayers(func(mass.Player) { players++ })
	b.SubscribeQueues(func(mass.Queue) { queues++ })
	b.SubscribePlayerRemoved(func(string) { removed++ })
	b.SubscribeConnected(func() { connected++ })

	b.PublishQueue(mass.Queue{QueueID: "q1"})
	b.PublishPlayerRemoved("p1")
	b.PublishConnected()

	if players != 0 {
		t.Fatalf("player subscriber saw %d foreign events", players)
	}
	if queues != 1 || removed != 1 || connected != 1 {
		t.Fatalf("delivery counts: queues=%d removed=%d connected=%d", queues, removed, connected)
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	b := New()
	b.PublishPlayer(mass.Player{PlayerID: "p1"})
	b.PublishQueue(mass.Queue{QueueID: "q1"})
	b.PublishPlayerRemoved("p1")
	b.PublishConnected()
}

func TestSubscribeDuringPublish(t *testing.T) {
	b := New()

	var late int
	b.SubscribePlayers(func(mass.Player) {
		// Subscribing from inside a handler must not deadlock.
		b.SubscribePlayers(func(mass.Player) { late++ })
	})

	b.PublishPlayer(mass.Player{PlayerID: "p1"})
	if late != 0 {
		t.Fatalf("late subscriber should not see the in-flight event")
	}
	b.PublishPlayer(mass.Player{PlayerID: "p2"})
	if late != 1 {
		t.Fatalf("late subscriber missed subsequent event: %d", late)
	}
}
