package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type recordingEvaluator struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (r *recordingEvaluator) EvaluateAccount(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, accountID)
	return r.err
}

func TestAsyncEvaluatesEverySubmission(t *testing.T) {
	eval := &recordingEvaluator{}
	a := NewAsync(eval, 2, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		a.Submit("acct-1")
	}
	a.Close()

	eval.mu.Lock()
	defer eval.mu.Unlock()
	assert.Len(t, eval.seen, 5)
}

type blockingEvaluator struct {
	gate chan struct{}
	mu   sync.Mutex
	seen int
}

func (b *blockingEvaluator) EvaluateAccount(context.Context, string) error {
	<-b.gate
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen++
	return nil
}

func TestAsyncDropsWhenSaturated(t *testing.T) {
	eval := &blockingEvaluator{gate: make(chan struct{})}
	a := NewAsync(eval, 1, zaptest.NewLogger(t))

	// One worker stuck on the gate plus a bounded queue: far more
	// submissions than capacity, so the overflow must be dropped rather
	// than block this goroutine.
	const submissions = 500
	for i := 0; i < submissions; i++ {
		a.Submit("acct-1")
	}
	close(eval.gate)
	a.Close()

	eval.mu.Lock()
	defer eval.mu.Unlock()
	assert.Greater(t, eval.seen, 0, "accepted tasks still run")
	assert.Less(t, eval.seen, submissions, "overflow submissions are dropped")
}

func TestAsyncSwallowsEvaluatorErrors(t *testing.T) {
	eval := &recordingEvaluator{err: errors.New("badge service down")}
	a := NewAsync(eval, 1, zaptest.NewLogger(t))

	a.Submit("acct-1")
	a.Close()

	eval.mu.Lock()
	defer eval.mu.Unlock()
	assert.Len(t, eval.seen, 1, "errors are logged, never retried or surfaced")
}
