package auction

import "time"

// Config holds the engine's timing and cost tunables.
type Config struct {
	// CreditCost is the fixed number of credits one click spends.
	CreditCost int64

	// FinalPhaseThreshold is the remaining time at or under which a click
	// moves the game into final_phase.
	FinalPhaseThreshold time.Duration

	// ResetWindow is what the countdown is reset to by a final-phase click.
	ResetWindow time.Duration

	// LockTimeout bounds how long a click waits for its per-game or
	// per-account critical section before failing as contended.
	LockTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		CreditCost:          1,
		FinalPhaseThreshold: 60 * time.Second,
		ResetWindow:         90 * time.Second,
		LockTimeout:         2 * time.Second,
	}
}
