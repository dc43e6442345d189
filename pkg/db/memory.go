package db

import (
	"context"
	"sort"
	"sync"

	"github.com/clickarena/engine/pkg/model"
)

// Memory is an in-process Store used by tests and by deployments that do not
// need durability. All methods take a single lock; the engine's own per-game
// and per-account critical sections sit above this layer.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	items    map[string]*model.Item
	games    map[string]*model.Game
	clicks   map[string][]*model.Click // game id -> committed clicks in order
	seqTaken map[string]map[int64]bool // game id -> used sequence numbers
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*model.Account),
		items:    make(map[string]*model.Item),
		games:    make(map[string]*model.Game),
		clicks:   make(map[string][]*model.Click),
		seqTaken: make(map[string]map[int64]bool),
	}
}

func (m *Memory) InsertAccount(_ context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) AdjustCredits(_ context.Context, id string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, ErrNotFound
	}
	if a.Credits+delta < 0 {
		return a.Credits, ErrInsufficientCredits
	}
	a.Credits += delta
	return a.Credits, nil
}

func (m *Memory) IncrementAccountClicks(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.TotalClicks++
	return nil
}

func (m *Memory) InsertItem(_ context.Context, it *model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *Memory) GetItem(_ context.Context, id string) (*model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *Memory) ListItems(_ context.Context) ([]*model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Item, 0, len(m.items))
	for _, it := range m.items {
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) InsertGames(_ context.Context, games []*model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range games {
		cp := *g
		m.games[g.ID] = &cp
	}
	return nil
}

func (m *Memory) GetGame(_ context.Context, id string) (*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) UpdateGame(_ context.Context, g *model.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; !ok {
		return ErrNotFound
	}
	cp := *g
	m.games[g.ID] = &cp
	return nil
}

func (m *Memory) ListGamesByStatus(_ context.Context, statuses ...model.GameStatus) ([]*model.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[model.GameStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []*model.Game
	for _, g := range m.games {
		if len(want) == 0 || want[g.Status] {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteGames(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := m.games[id]; ok {
			delete(m.games, id)
			delete(m.clicks, id)
			delete(m.seqTaken, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) InsertClick(_ context.Context, c *model.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := m.seqTaken[c.GameID]
	if taken == nil {
		taken = make(map[int64]bool)
		m.seqTaken[c.GameID] = taken
	}
	if taken[c.Sequence] {
		return ErrDuplicateSequence
	}
	taken[c.Sequence] = true
	cp := *c
	m.clicks[c.GameID] = append(m.clicks[c.GameID], &cp)
	return nil
}

func (m *Memory) MaxSequence(_ context.Context, gameID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var max int64
	for seq := range m.seqTaken[gameID] {
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

func (m *Memory) RecentClicks(_ context.Context, gameID string, limit int) ([]*model.Click, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.clicks[gameID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*model.Click, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
