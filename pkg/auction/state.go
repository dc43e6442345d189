package auction

import (
	"time"

	"github.com/clickarena/engine/pkg/model"
)

// The state machine is a set of pure timestamp comparisons over stored
// fields. There is no background countdown: any number of concurrent
// evaluators reach the same decision from the same scheduled_start/end_time
// values, and an extension is just a larger end_time.

// EffectiveStatus is the status a game is in at instant now, regardless of
// what the stored status field still says. Stored status lags behind until
// a click or a sweep writes it.
func EffectiveStatus(g *model.Game, now time.Time) model.GameStatus {
	switch g.Status {
	case model.StatusEnded:
		return model.StatusEnded
	case model.StatusWaiting:
		if now.Before(g.ScheduledStart) {
			return model.StatusWaiting
		}
	}
	if !now.Before(g.EndTime) {
		return model.StatusEnded
	}
	if g.Status == model.StatusFinalPhase {
		return model.StatusFinalPhase
	}
	return model.StatusActive
}

// Accepting reports whether a click at instant now may be applied.
func Accepting(g *model.Game, now time.Time) bool {
	s := EffectiveStatus(g, now)
	return s == model.StatusActive || s == model.StatusFinalPhase
}

// applyClick mutates g for one qualifying click at instant now and reports
// whether the countdown was extended. Callers hold the game's critical
// section.
func applyClick(g *model.Game, accountID, username string, now time.Time, cfg Config) (extended bool) {
	if g.Status == model.StatusWaiting {
		g.Status = model.StatusActive
	}

	remaining := g.EndTime.Sub(now)
	if remaining <= cfg.FinalPhaseThreshold {
		newEnd := now.Add(cfg.ResetWindow)
		// end_time never decreases
		if newEnd.After(g.EndTime) {
			g.EndTime = newEnd
		}
		g.Status = model.StatusFinalPhase
		if g.FinalPhaseEnteredAt.IsZero() {
			g.FinalPhaseEnteredAt = now
		}
		extended = true
	}

	g.TotalClicks++
	g.LastClickAccountID = accountID
	g.LastClickUsername = username
	g.LastClickAt = now
	return extended
}

// finalize moves an expired game to ended and crowns the last clicker, if
// any. Returns false when the game has not expired yet or already ended.
// Callers hold the game's critical section.
func finalize(g *model.Game, now time.Time) bool {
	if g.Status == model.StatusEnded || now.Before(g.EndTime) {
		return false
	}
	g.Status = model.StatusEnded
	if g.WinnerAccountID == "" {
		g.WinnerAccountID = g.LastClickAccountID
	}
	return true
}
