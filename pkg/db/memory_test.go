package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickarena/engine/pkg/model"
)

func TestMemoryAccounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.InsertAccount(ctx, &model.Account{ID: "a1", Username: "alice", Credits: 10}))

	a, err := m.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)

	// The returned copy does not alias the stored row.
	a.Credits = 999
	again, err := m.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, again.Credits)
}

func TestMemoryAdjustCredits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertAccount(ctx, &model.Account{ID: "a1", Credits: 3}))

	bal, err := m.AdjustCredits(ctx, "a1", -2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, bal)

	// Below the floor the balance is untouched and reported.
	bal, err = m.AdjustCredits(ctx, "a1", -2)
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.EqualValues(t, 1, bal)

	bal, err = m.AdjustCredits(ctx, "a1", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 6, bal)

	_, err = m.AdjustCredits(ctx, "ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryGames(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.InsertGames(ctx, []*model.Game{
		{ID: "g1", Status: model.StatusActive, CreatedAt: now},
		{ID: "g2", Status: model.StatusWaiting, CreatedAt: now.Add(time.Second)},
		{ID: "g3", Status: model.StatusEnded, CreatedAt: now.Add(2 * time.Second)},
	}))

	g, err := m.GetGame(ctx, "g1")
	require.NoError(t, err)
	g.TotalClicks = 7
	require.NoError(t, m.UpdateGame(ctx, g))

	fresh, err := m.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, fresh.TotalClicks)

	assert.ErrorIs(t, m.UpdateGame(ctx, &model.Game{ID: "nope"}), ErrNotFound)

	live, err := m.ListGamesByStatus(ctx, model.StatusActive, model.StatusWaiting)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "g1", live[0].ID, "listing is ordered by creation time")
	assert.Equal(t, "g2", live[1].ID)

	all, err := m.ListGamesByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	deleted, err := m.DeleteGames(ctx, []string{"g2", "g3", "never-existed"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	_, err = m.GetGame(ctx, "g2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryClicks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	max, err := m.MaxSequence(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, max)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, m.InsertClick(ctx, &model.Click{
			ID: string(rune('a' + i)), GameID: "g1", Sequence: i,
		}))
	}

	// Double-booking a sequence number is refused.
	err = m.InsertClick(ctx, &model.Click{ID: "dup", GameID: "g1", Sequence: 3})
	assert.ErrorIs(t, err, ErrDuplicateSequence)

	max, err = m.MaxSequence(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, max)

	recent, err := m.RecentClicks(ctx, "g1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.EqualValues(t, 5, recent[0].Sequence, "newest first")
	assert.EqualValues(t, 3, recent[2].Sequence)

	all, err := m.RecentClicks(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	// Deleting a game drops its clicks and sequence bookkeeping.
	require.NoError(t, m.InsertGames(ctx, []*model.Game{{ID: "g1"}}))
	_, err = m.DeleteGames(ctx, []string{"g1"})
	require.NoError(t, err)
	max, err = m.MaxSequence(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, max)
}

func TestMemoryItems(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.InsertItem(ctx, &model.Item{ID: "i2", Name: "Camera"}))
	require.NoError(t, m.InsertItem(ctx, &model.Item{ID: "i1", Name: "Headphones"}))

	items, err := m.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "i1", items[0].ID, "items list in id order")

	it, err := m.GetItem(ctx, "i2")
	require.NoError(t, err)
	assert.Equal(t, "Camera", it.Name)

	_, err = m.GetItem(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
