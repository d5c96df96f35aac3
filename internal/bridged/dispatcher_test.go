package bridged

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/massbridge/internal/bus"
	"github.com/mikey-austin/massbridge/internal/mass"
)

type fakeLister struct {
	players []mass.Player
}

func (f *fakeLister) Players(context.Context) ([]mass.Player, error) {
	return f.players, nil
}

func TestDispatcherRoutesPlayerEvents(t *testing.T) {
	events := bus.New()
	d := NewDispatcher(zap.NewNop(), events, &fakeLister{})

	var players []mass.Player
	events.SubscribePlayers(func(p mass.Player) { players = append(players, p) })

	payload, _ := json.Marshal(mass.Player{PlayerID: "p1", Name: "Kitchen"})
	d.HandleEvent(context.Background(), mass.EventPlayerAdded, payload)
	d.HandleEvent(context.Background(), mass.EventPlayerChanged, payload)

	if len(players) != 2 || players[0].PlayerID != "p1" {
		t.Fatalf("players: %+v", players)
	}
}

func TestDispatcherRoutesQueueEvents(t *testing.T) {
	events := bus.New()
	d := NewDispatcher(zap.NewNop(), events, &fakeLister{})

	var queues []mass.Queue
	events.SubscribeQueues(func(q mass.Queue) { queues = append(queues, q) })

	payload, _ := json.Marshal(mass.Queue{QueueID: "q1"})
	d.HandleEvent(context.Background(), mass.EventQueueUpdated, payload)

	if len(queues) != 1 || queues[0].QueueID != "q1" {
		t.Fatalf("queues: %+v", queues)
	}
}

func TestDispatcherRoutesRemovals(t *testing.T) {
	events := bus.New()
	d := NewDispatcher(zap.NewNop(), events, &fakeLister{})

	var removed []string
	events.SubscribePlayerRemoved(func(id string) { removed = append(removed, id) })

	d.HandleEvent(context.Background(), mass.EventPlayerRemoved, json.RawMessage(`{"player_id":"p1"}`))
	d.HandleEvent(context.Background(), mass.EventPlayerRemoved, json.RawMessage(`"p2"`))

	if len(removed) != 2 || removed[0] != "p1" || removed[1] != "p2" {
		t.Fatalf("removed: %v", removed)
	}
}

func TestDispatcherConnectedEnumeratesThenSignals(t *testing.T) {
	events := bus.New()
	lister := &fakeLister{players: []mass.Player{{PlayerID: "p1"}, {PlayerID: "p2"}}}
	d := NewDispatcher(zap.NewNop(), events, lister)

	var order []string
	events.SubscribePlayers(func(p mass.Player) { order = append(order, "player:"+p.PlayerID) })
	events.SubscribeConnected(func() { order = append(order, "connected") })

	d.HandleEvent(context.Background(), mass.EventConnected, nil)

	if len(order) != 3 {
		t.Fatalf("order: %v", order)
	}
	// Players must flow before the connected signal so subscribers see a
	// primed facade when they re-register.
	if order[2] != "connected" {
		t.Fatalf("connected fired before enumeration: %v", order)
	}
}

func TestDispatcherIgnoresUnknownKinds(t *testing.T) {
	events := bus.New()
	d := NewDispatcher(zap.NewNop(), events, &fakeLister{})

	fired := false
	events.SubscribePlayers(func(mass.Player) { fired = true })
	events.SubscribeConnected(func() { fired = true })

	d.HandleEvent(context.Background(), "provider registered", json.RawMessage(`{}`))
	if fired {
		t.Fatalf("unknown event kind should be dropped")
	}
}
