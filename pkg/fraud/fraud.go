// Package fraud scores click traffic per account over a sliding window.
// Profiles live only in memory; losing them just resets an account's recent
// history, which recent click rows can rebuild.
package fraud

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/audit"
)

// Flags attached to a verdict.
const (
	FlagExcessiveRate = "excessive_rate"
	FlagTooManyGames  = "too_many_games"
	FlagInhumanSpeed  = "inhuman_speed"
	FlagBotPattern    = "bot_pattern"
)

// Config holds the scoring thresholds.
type Config struct {
	Window      time.Duration // observation window
	RateCeiling int           // clicks per window before excessive_rate
	GameCeiling int           // distinct games per window before too_many_games
	MinHumanGap time.Duration // minimum believable gap between two clicks
	BotStdDev   time.Duration // inter-click stddev below this is suspicious
	BotMeanGap  time.Duration // ...when the mean gap is also below this
	BlockScore  int           // risk at or above this blocks the click
	WarnScore   int           // risk at or above this emits an audit warning
}

func DefaultConfig() Config {
	return Config{
		Window:      60 * time.Second,
		RateCeiling: 30,
		GameCeiling: 10,
		MinHumanGap: 200 * time.Millisecond,
		BotStdDev:   50 * time.Millisecond,
		BotMeanGap:  1000 * time.Millisecond,
		BlockScore:  70,
		WarnScore:   30,
	}
}

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Score   int
	Flags   []string
	Blocked bool
}

type stamp struct {
	at   time.Time
	game string
}

type profile struct {
	mu     sync.Mutex
	stamps []stamp
}

// Detector keeps one rolling profile per account in a sharded map so that
// evaluations for different accounts never contend.
type Detector struct {
	cfg      Config
	profiles *xsync.Map[string, *profile]
	sink     audit.Sink
	logger   *zap.Logger
}

func NewDetector(cfg Config, sink audit.Sink, logger *zap.Logger) *Detector {
	return &Detector{
		cfg:      cfg,
		profiles: xsync.NewMap[string, *profile](),
		sink:     sink,
		logger:   logger,
	}
}

func (d *Detector) profileFor(accountID string) *profile {
	if p, ok := d.profiles.Load(accountID); ok {
		return p
	}
	p, _ := d.profiles.Compute(accountID, func(old *profile, loaded bool) (*profile, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		return &profile{}, xsync.UpdateOp
	})
	return p
}

// Evaluate records the click attempt and scores the account's window.
// Scoring is additive; the flags name which heuristics fired.
func (d *Detector) Evaluate(ctx context.Context, accountID, gameID string, now time.Time) Verdict {
	p := d.profileFor(accountID)

	p.mu.Lock()
	p.stamps = append(p.stamps, stamp{at: now, game: gameID})
	cutoff := now.Add(-d.cfg.Window)
	keep := p.stamps[:0]
	for _, s := range p.stamps {
		if s.at.After(cutoff) {
			keep = append(keep, s)
		}
	}
	p.stamps = keep

	recent := make([]time.Time, len(p.stamps))
	games := make(map[string]struct{}, len(p.stamps))
	for i, s := range p.stamps {
		recent[i] = s.at
		games[s.game] = struct{}{}
	}
	p.mu.Unlock()

	score := 0
	var flags []string

	if len(recent) > d.cfg.RateCeiling {
		flags = append(flags, FlagExcessiveRate)
		score += 40
	}

	if len(games) > d.cfg.GameCeiling {
		flags = append(flags, FlagTooManyGames)
		score += 30
	}

	if len(recent) >= 2 {
		gap := recent[len(recent)-1].Sub(recent[len(recent)-2])
		if gap < d.cfg.MinHumanGap {
			flags = append(flags, FlagInhumanSpeed)
			score += 50
		}
	}

	// Near-perfectly periodic clicking is machine traffic even when the
	// rate itself stays under the ceiling.
	if len(recent) >= 5 {
		mean, stddev := gapStats(recent)
		if stddev < d.cfg.BotStdDev && mean < d.cfg.BotMeanGap {
			flags = append(flags, FlagBotPattern)
			score += 60
		}
	}

	blocked := score >= d.cfg.BlockScore
	if blocked {
		d.logger.Debug("click blocked by fraud heuristics",
			zap.String("account_id", accountID),
			zap.String("game_id", gameID),
			zap.Int("risk_score", score),
			zap.Strings("flags", flags))
	}
	if score >= d.cfg.WarnScore {
		kind := audit.KindSuspiciousActivity
		severity := audit.SeverityWarning
		if blocked {
			kind = audit.KindFraudDetected
			severity = audit.SeverityCritical
		}
		d.sink.Emit(ctx, audit.Event{
			Kind:      kind,
			Severity:  severity,
			AccountID: accountID,
			Details: map[string]any{
				"risk_score":    score,
				"flags":         flags,
				"recent_clicks": len(recent),
				"games_touched": len(games),
				"game_id":       gameID,
			},
		})
	}

	return Verdict{Score: score, Flags: flags, Blocked: blocked}
}

// Forget drops an account's profile.
func (d *Detector) Forget(accountID string) {
	d.profiles.Delete(accountID)
}

func gapStats(clicks []time.Time) (mean, stddev time.Duration) {
	gaps := make([]float64, 0, len(clicks)-1)
	for i := 1; i < len(clicks); i++ {
		gaps = append(gaps, float64(clicks[i].Sub(clicks[i-1])))
	}
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	avg := sum / float64(len(gaps))

	var variance float64
	for _, g := range gaps {
		variance += (g - avg) * (g - avg)
	}
	variance /= float64(len(gaps))

	return time.Duration(avg), time.Duration(math.Sqrt(variance))
}
