// Package ledger owns every mutation of account balances. Debits for one
// account are serialized behind a per-account critical section on top of the
// store's conditional update, so concurrent clicks can never both pass a
// balance check against a stale value.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/db"
	"github.com/clickarena/engine/pkg/utils"
)

// ErrContended is returned when the per-account section stayed locked past
// the acquisition deadline. Callers may retry with backoff.
var ErrContended = errors.New("ledger: account contended")

type Ledger struct {
	store       db.Store
	locks       *utils.KeyMutex
	lockTimeout time.Duration
	logger      *zap.Logger
}

func New(store db.Store, lockTimeout time.Duration, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:       store,
		locks:       utils.NewKeyMutex(),
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// Debit spends amount credits and returns the remaining balance.
// Fails with db.ErrInsufficientCredits below the floor, db.ErrNotFound for
// unknown accounts, and ErrContended when the account lock is unavailable.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: debit amount must be positive, got %d", amount)
	}
	if err := l.locks.Acquire(ctx, accountID, l.lockTimeout); err != nil {
		if errors.Is(err, utils.ErrAcquireTimeout) {
			return 0, ErrContended
		}
		return 0, err
	}
	defer l.locks.Release(accountID)

	return l.store.AdjustCredits(ctx, accountID, -amount)
}

// Refund returns amount credits to the account. Used as the compensating
// action when a click fails after its debit committed.
func (l *Ledger) Refund(ctx context.Context, accountID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: refund amount must be positive, got %d", amount)
	}
	// A refund must not be lost to lock contention; wait on the section
	// without the debit path's deadline.
	if err := l.locks.Acquire(ctx, accountID, l.lockTimeout*10); err != nil {
		l.logger.Error("refund could not acquire account lock",
			zap.String("account_id", accountID), zap.Error(err))
		return err
	}
	defer l.locks.Release(accountID)

	_, err := l.store.AdjustCredits(ctx, accountID, amount)
	return err
}

// Balance reads the current spendable balance.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return a.Credits, nil
}
