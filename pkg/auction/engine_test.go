package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clickarena/engine/pkg/audit"
	"github.com/clickarena/engine/pkg/db"
	"github.com/clickarena/engine/pkg/fraud"
	"github.com/clickarena/engine/pkg/ledger"
	"github.com/clickarena/engine/pkg/model"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	store *db.Memory
	eng   *Engine
	rec   *audit.Recorder
	clock *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := db.NewMemory()
	rec := &audit.Recorder{}
	clock := &testClock{t: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)}

	led := ledger.New(store, 2*time.Second, logger)
	det := fraud.NewDetector(fraud.DefaultConfig(), rec, logger)
	eng := NewEngine(DefaultConfig(), store, led, det, nil, rec, logger)
	eng.SetClock(clock.Now)

	return &testEnv{store: store, eng: eng, rec: rec, clock: clock}
}

func (te *testEnv) seedAccount(t *testing.T, id string, credits int64) {
	t.Helper()
	require.NoError(t, te.store.InsertAccount(context.Background(), &model.Account{
		ID: id, Username: "user-" + id, Credits: credits,
	}))
}

func (te *testEnv) seedGame(t *testing.T, id string, status model.GameStatus, endIn time.Duration) {
	t.Helper()
	now := te.clock.Now()
	require.NoError(t, te.store.InsertItem(context.Background(), &model.Item{
		ID: "item-" + id, Name: "Prize " + id,
	}))
	require.NoError(t, te.store.InsertGames(context.Background(), []*model.Game{{
		ID:             id,
		ItemID:         "item-" + id,
		Status:         status,
		ScheduledStart: now.Add(-time.Hour),
		EndTime:        now.Add(endIn),
		CreatedAt:      now,
	}}))
}

func TestProcessClick(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedAccount(t, "a1", 10)
	te.seedGame(t, "g1", model.StatusActive, 30*time.Minute)

	res, err := te.eng.ProcessClick(ctx, "a1", "g1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.EqualValues(t, 1, res.Sequence)
	assert.Nil(t, res.NewEndTime, "a click outside the final threshold must not extend")

	acct, err := te.store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 9, acct.Credits)
	assert.EqualValues(t, 1, acct.TotalClicks)

	game, err := te.store.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, game.TotalClicks)
	assert.Equal(t, "a1", game.LastClickAccountID)
	assert.Equal(t, "user-a1", game.LastClickUsername)

	clicks, err := te.store.RecentClicks(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, "Prize g1", clicks[0].ItemName)
	assert.EqualValues(t, 1, clicks[0].CreditsSpent)
	assert.False(t, clicks[0].IsBot)
}

func TestProcessClickEntersFinalPhase(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedAccount(t, "a1", 10)
	te.seedGame(t, "g1", model.StatusActive, 55*time.Second)

	res, err := te.eng.ProcessClick(ctx, "a1", "g1")
	require.NoError(t, err)
	require.NotNil(t, res.NewEndTime)
	assert.Equal(t, te.clock.Now().Add(90*time.Second), *res.NewEndTime)

	game, err := te.store.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinalPhase, game.Status)
	assert.Equal(t, te.clock.Now(), game.FinalPhaseEnteredAt)
}

func TestProcessClickInsufficientCredits(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedAccount(t, "poor", 0)
	te.seedGame(t, "g1", model.StatusActive, 30*time.Minute)

	res, err := te.eng.ProcessClick(ctx, "poor", "g1")
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.False(t, res.Success)
	assert.Equal(t, "not enough credits", res.Reason)

	// Nothing was recorded or mutated.
	game, err := te.store.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, game.TotalClicks)
	clicks, err := te.store.RecentClicks(ctx, "g1", 10)
	require.NoError(t, err)
	assert.Empty(t, clicks)
}

func TestProcessClickUnknownAccount(t *testing.T) {
	te := newTestEnv(t)
	te.seedGame(t, "g1", model.StatusActive, time.Minute)

	_, err := te.eng.ProcessClick(context.Background(), "ghost", "g1")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = te.eng.ProcessClick(context.Background(), "", "g1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestProcessClickUnknownGame(t *testing.T) {
	te := newTestEnv(t)
	te.seedAccount(t, "a1", 5)

	_, err := te.eng.ProcessClick(context.Background(), "a1", "missing")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestProcessClickRejectedStates(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedAccount(t, "a1", 5)

	te.seedGame(t, "ended", model.StatusEnded, time.Hour)
	_, err := te.eng.ProcessClick(ctx, "a1", "ended")
	assert.ErrorIs(t, err, ErrGameNotAcceptingClicks)

	// Active in the store but past its end time: effectively ended even
	// before the sweep catches up.
	te.seedGame(t, "expired", model.StatusActive, -time.Second)
	_, err = te.eng.ProcessClick(ctx, "a1", "expired")
	assert.ErrorIs(t, err, ErrGameNotAcceptingClicks)

	acct, err := te.store.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, acct.Credits, "rejected clicks must not charge")
}

func TestProcessClickWaitingGameNotYetDue(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedAccount(t, "a1", 5)

	now := te.clock.Now()
	require.NoError(t, te.store.InsertGames(ctx, []*model.Game{{
		ID:             "future",
		Status:         model.StatusWaiting,
		ScheduledStart: now.Add(time.Hour),
		EndTime:        now.Add(2 * time.Hour),
	}}))

	_, err := te.eng.ProcessClick(ctx, "a1", "future")
	assert.ErrorIs(t, err, ErrGameNotAcceptingClicks)
}

func TestProcessClickWaitingGamePromotes(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedAccount(t, "a1", 5)
	te.seedGame(t, "g1", model.StatusWaiting, 30*time.Minute)

	// Scheduled start is in the past, so the first click both promotes
	// and counts.
	res, err := te.eng.ProcessClick(ctx, "a1", "g1")
	require.NoError(t, err)
	assert.True(t, res.Success)

	game, err := te.store.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, game.Status)
	assert.EqualValues(t, 1, game.TotalClicks)
}

// failingStore wraps the memory store and fails click inserts on demand.
type failingStore struct {
	db.Store
	failInsert bool
}

var errInjected = errors.New("injected insert failure")

func (f *failingStore) InsertClick(ctx context.Context, c *model.Click) error {
	if f.failInsert {
		return errInjected
	}
	return f.Store.InsertClick(ctx, c)
}

func TestProcessClickRefundsOnInsertFailure(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mem := db.NewMemory()
	store := &failingStore{Store: mem, failInsert: true}
	rec := &audit.Recorder{}
	ctx := context.Background()

	led := ledger.New(store, 2*time.Second, logger)
	det := fraud.NewDetector(fraud.DefaultConfig(), rec, logger)
	eng := NewEngine(DefaultConfig(), store, led, det, nil, rec, logger)

	require.NoError(t, mem.InsertAccount(ctx, &model.Account{ID: "a1", Username: "alice", Credits: 5}))
	require.NoError(t, mem.InsertGames(ctx, []*model.Game{{
		ID:             "g1",
		Status:         model.StatusActive,
		ScheduledStart: time.Now().Add(-time.Hour),
		EndTime:        time.Now().Add(time.Hour),
	}}))

	_, err := eng.ProcessClick(ctx, "a1", "g1")
	require.ErrorIs(t, err, ErrPersistenceFailure)

	acct, err := mem.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, acct.Credits, "failed click must refund the debit")

	var refunded bool
	for _, ev := range rec.Events() {
		if ev.Kind == audit.KindCreditsRefund && ev.AccountID == "a1" {
			refunded = true
		}
	}
	assert.True(t, refunded, "expected a refund audit event")

	// The same account clicks fine once the store recovers.
	store.failInsert = false
	res, err := eng.ProcessClick(ctx, "a1", "g1")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestConcurrentClicksUniqueSequences(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedGame(t, "g1", model.StatusActive, 30*time.Minute)

	const clickers = 50
	for i := 0; i < clickers; i++ {
		te.seedAccount(t, fmt.Sprintf("acct-%02d", i), 1)
	}

	var wg sync.WaitGroup
	results := make([]Result, clickers)
	errs := make([]error, clickers)
	for i := 0; i < clickers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = te.eng.ProcessClick(ctx, fmt.Sprintf("acct-%02d", i), "g1")
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, clickers)
	for i := 0; i < clickers; i++ {
		require.NoError(t, errs[i], "clicker %d", i)
		require.True(t, results[i].Success)
		assert.False(t, seen[results[i].Sequence], "duplicate sequence %d", results[i].Sequence)
		seen[results[i].Sequence] = true
		assert.GreaterOrEqual(t, results[i].Sequence, int64(1))
		assert.LessOrEqual(t, results[i].Sequence, int64(clickers))
	}

	game, err := te.store.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, clickers, game.TotalClicks)
}

func TestProcessBotClick(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedGame(t, "g1", model.StatusActive, 30*time.Minute)

	res, err := te.eng.ProcessBotClick(ctx, "g1", "ShadowFox")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.EqualValues(t, 1, res.Sequence)

	clicks, err := te.store.RecentClicks(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.True(t, clicks[0].IsBot)
	assert.Empty(t, clicks[0].AccountID)
	assert.EqualValues(t, 0, clicks[0].CreditsSpent)

	game, err := te.store.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "ShadowFox", game.LastClickUsername)
	assert.Empty(t, game.LastClickAccountID, "bot clicks never hold the winner slot")

	te.seedGame(t, "done", model.StatusEnded, time.Hour)
	_, err = te.eng.ProcessBotClick(ctx, "done", "ShadowFox")
	assert.ErrorIs(t, err, ErrGameNotAcceptingClicks)
}

func TestSweepActivatesAndEnds(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedAccount(t, "a1", 10)

	te.seedGame(t, "due", model.StatusWaiting, 30*time.Minute)
	te.seedGame(t, "running", model.StatusActive, 30*time.Minute)
	te.seedGame(t, "over", model.StatusFinalPhase, 10*time.Second)

	_, err := te.eng.ProcessClick(ctx, "a1", "over")
	require.NoError(t, err)

	// First sweep: the waiting game goes live, nothing has expired yet.
	activated, ended, err := te.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, activated)
	assert.Equal(t, 0, ended)

	due, err := te.store.GetGame(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, due.Status)

	// Let the final-phase timer run out untouched.
	te.clock.Advance(2 * time.Minute)
	activated, ended, err = te.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, activated)
	assert.Equal(t, 1, ended)

	over, err := te.store.GetGame(ctx, "over")
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, over.Status)
	assert.Equal(t, "a1", over.WinnerAccountID)

	var win bool
	for _, ev := range te.rec.Events() {
		if ev.Kind == audit.KindGameWin && ev.AccountID == "a1" {
			win = true
		}
	}
	assert.True(t, win, "expected a game.win audit event")

	// Sweeping again changes nothing.
	activated, ended, err = te.eng.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, activated)
	assert.Zero(t, ended)
}

func TestGetGameSnapshotReportsEffectiveStatus(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.seedGame(t, "g1", model.StatusActive, 10*time.Second)

	view, err := te.eng.GetGameSnapshot(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, view.Status)
	require.NotNil(t, view.Item)
	assert.Equal(t, "Prize g1", view.Item.Name)

	// Stored status lags behind the clock; the snapshot must not.
	te.clock.Advance(time.Minute)
	view, err = te.eng.GetGameSnapshot(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, view.Status)

	_, err = te.eng.GetGameSnapshot(ctx, "nope")
	assert.ErrorIs(t, err, ErrGameNotFound)
}
