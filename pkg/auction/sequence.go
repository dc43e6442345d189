package auction

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/clickarena/engine/pkg/db"
)

// Sequences hands out per-game click position numbers. Counters are sharded
// per game and seeded once from the store's highest committed sequence, so
// numbers stay unique and strictly increasing across restarts. A number
// allocated for a click that later fails is simply skipped: committed
// sequences stay unique and monotonic, gaps under contention are fine.
type Sequences struct {
	store    db.Store
	counters *xsync.Map[string, *gameCounter]
}

type gameCounter struct {
	seedOnce sync.Once
	seedErr  error
	n        atomic.Int64
}

func NewSequences(store db.Store) *Sequences {
	return &Sequences{
		store:    store,
		counters: xsync.NewMap[string, *gameCounter](),
	}
}

func (s *Sequences) counter(gameID string) *gameCounter {
	if c, ok := s.counters.Load(gameID); ok {
		return c
	}
	c, _ := s.counters.Compute(gameID, func(old *gameCounter, loaded bool) (*gameCounter, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		return &gameCounter{}, xsync.UpdateOp
	})
	return c
}

// Next allocates the next sequence number for the game.
func (s *Sequences) Next(ctx context.Context, gameID string) (int64, error) {
	c := s.counter(gameID)
	c.seedOnce.Do(func() {
		max, err := s.store.MaxSequence(ctx, gameID)
		if err != nil {
			c.seedErr = err
			return
		}
		c.n.Store(max)
	})
	if c.seedErr != nil {
		// Reseed on the next call rather than poisoning the game forever.
		err := c.seedErr
		s.counters.Delete(gameID)
		return 0, err
	}
	return c.n.Add(1), nil
}

// Forget drops a game's counter. Called when the rotation deletes the game.
func (s *Sequences) Forget(gameID string) {
	s.counters.Delete(gameID)
}
