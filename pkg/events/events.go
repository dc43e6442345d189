// Package events carries committed engine state changes to observers.
// Delivery is at-most-once best-effort; collaborators that miss an update
// recover by polling game snapshots.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/clickarena/engine/pkg/model"
)

// GameUpdate describes one committed change to a game. Updates for the same
// game are published in commit order; no ordering holds across games.
type GameUpdate struct {
	GameID      string           `json:"game_id"`
	ItemName    string           `json:"item_name"`
	Status      model.GameStatus `json:"status"`
	TotalClicks int64            `json:"total_clicks"`
	EndTime     time.Time        `json:"end_time"`
	Sequence    int64            `json:"sequence,omitempty"`
	AccountID   string           `json:"account_id,omitempty"`
	Username    string           `json:"username,omitempty"`
	WinnerID    string           `json:"winner_account_id,omitempty"`
}

// Notifier fans a committed change out to observers. Implementations must
// never fail the publishing click; errors are swallowed or logged.
type Notifier interface {
	PublishGameUpdate(ctx context.Context, u GameUpdate)
}

// NopNotifier drops every update.
type NopNotifier struct{}

func (NopNotifier) PublishGameUpdate(context.Context, GameUpdate) {}

// Fanout publishes to several notifiers in order.
type Fanout []Notifier

func (f Fanout) PublishGameUpdate(ctx context.Context, u GameUpdate) {
	for _, n := range f {
		n.PublishGameUpdate(ctx, u)
	}
}

type subscriber struct {
	ch     chan GameUpdate
	gameID string // "" or "*" receives all games
}

// Bus is the in-process notifier backing the WebSocket feed and tests.
// Each subscriber has a buffered channel; a full buffer drops the update for
// that subscriber only (at-most-once).
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

var _ Notifier = (*Bus)(nil)

// Subscribe registers an observer for one game id, or "*" for every game.
// The returned cancel func must be called to release the subscription.
func (b *Bus) Subscribe(gameID string, buffer int) (<-chan GameUpdate, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan GameUpdate, buffer), gameID: gameID}
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

func (b *Bus) PublishGameUpdate(_ context.Context, u GameUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.gameID != "" && s.gameID != "*" && s.gameID != u.GameID {
			continue
		}
		select {
		case s.ch <- u:
		default: // slow subscriber, drop
		}
	}
}
