package utils

import (
	"context"
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// ErrAcquireTimeout is returned when a key's critical section could not be
// entered within the caller's deadline.
var ErrAcquireTimeout = errors.New("key lock acquisition timed out")

// KeyMutex provides one mutex per string key. Locks are created on first use
// and kept for the life of the map; contention on one key never blocks
// holders of other keys.
type KeyMutex struct {
	slots *xsync.Map[string, chan struct{}]
}

func NewKeyMutex() *KeyMutex {
	return &KeyMutex{slots: xsync.NewMap[string, chan struct{}]()}
}

func (m *KeyMutex) slot(key string) chan struct{} {
	if s, ok := m.slots.Load(key); ok {
		return s
	}
	s, _ := m.slots.Compute(key, func(old chan struct{}, loaded bool) (chan struct{}, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		return make(chan struct{}, 1), xsync.UpdateOp
	})
	return s
}

// Acquire enters the critical section for key, waiting at most timeout.
// Returns ErrAcquireTimeout when the section stays contended past the
// deadline, or the context error when ctx is cancelled first.
func (m *KeyMutex) Acquire(ctx context.Context, key string, timeout time.Duration) error {
	slot := m.slot(key)
	select {
	case slot <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrAcquireTimeout
	}
}

// Release leaves the critical section for key. Callers must only Release
// after their own successful Acquire: an unpaired Release while another
// goroutine holds the key would free that holder's section. With no holder
// at all it does nothing.
func (m *KeyMutex) Release(key string) {
	if slot, ok := m.slots.Load(key); ok {
		select {
		case <-slot:
		default:
		}
	}
}
