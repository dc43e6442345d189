// Package progress runs downstream achievement/progress evaluation after a
// successful click. Evaluation is decoupled from the click path: a failure
// here is logged and never rolls back or fails the click.
package progress

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

// Evaluator is the collaborator-side hook. Implementations typically check
// badge thresholds against the account's lifetime counters.
type Evaluator interface {
	EvaluateAccount(ctx context.Context, accountID string) error
}

// NopEvaluator does nothing.
type NopEvaluator struct{}

func (NopEvaluator) EvaluateAccount(context.Context, string) error { return nil }

// Async fans evaluations out to a bounded worker pool so a slow evaluator
// cannot back-pressure click handlers.
type Async struct {
	pool    pond.Pool
	eval    Evaluator
	logger  *zap.Logger
	timeout time.Duration
}

func NewAsync(eval Evaluator, workers int, logger *zap.Logger) *Async {
	if workers <= 0 {
		workers = 4
	}
	return &Async{
		pool:    pond.NewPool(workers, pond.WithQueueSize(workers*32)),
		eval:    eval,
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// Submit enqueues one evaluation. Never blocks the caller; when the queue is
// full the task is dropped and logged, which is acceptable for a best-effort
// side effect.
func (a *Async) Submit(accountID string) {
	_, ok := a.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.eval.EvaluateAccount(ctx, accountID); err != nil {
			a.logger.Warn("progress evaluation failed",
				zap.String("account_id", accountID),
				zap.Error(err))
		}
	})
	if !ok {
		a.logger.Warn("progress evaluation queue full, dropping",
			zap.String("account_id", accountID))
	}
}

// Close drains the pool. Called on shutdown.
func (a *Async) Close() {
	a.pool.StopAndWait()
}
