package db

import (
	"context"
	"errors"

	"github.com/clickarena/engine/pkg/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientCredits is returned by AdjustCredits when the debit
	// would take the balance below zero. The balance is left untouched.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDuplicateSequence is returned when a click with the same
	// (game, sequence) pair was already committed.
	ErrDuplicateSequence = errors.New("duplicate click sequence")

	// ErrBusy marks transient storage contention (lock timeouts, rate
	// limits). Callers may retry with backoff.
	ErrBusy = errors.New("storage busy")
)

// IsRetryable reports whether err is a transient storage error worth
// another attempt under a retry policy.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

// Store is the persistence contract of the engine. Implementations must be
// safe for concurrent use; row-level atomicity (conditional credit updates,
// unique click sequences) is the store's responsibility, cross-row ordering
// is the engine's.
type Store interface {
	// Accounts.
	InsertAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	// AdjustCredits atomically applies delta to the account balance and
	// returns the new balance. A negative delta that would cross zero
	// fails with ErrInsufficientCredits and changes nothing.
	AdjustCredits(ctx context.Context, id string, delta int64) (int64, error)
	IncrementAccountClicks(ctx context.Context, id string) error

	// Items.
	InsertItem(ctx context.Context, it *model.Item) error
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListItems(ctx context.Context) ([]*model.Item, error)

	// Games.
	InsertGames(ctx context.Context, games []*model.Game) error
	GetGame(ctx context.Context, id string) (*model.Game, error)
	UpdateGame(ctx context.Context, g *model.Game) error
	ListGamesByStatus(ctx context.Context, statuses ...model.GameStatus) ([]*model.Game, error)
	DeleteGames(ctx context.Context, ids []string) (int, error)

	// Clicks.
	InsertClick(ctx context.Context, c *model.Click) error
	MaxSequence(ctx context.Context, gameID string) (int64, error)
	RecentClicks(ctx context.Context, gameID string, limit int) ([]*model.Click, error)

	Close() error
}
