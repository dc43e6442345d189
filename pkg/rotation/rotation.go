// Package rotation creates and retires batches of games on a fixed cadence,
// independent of live click traffic. It only ever touches games that are
// ended or stale in waiting; live games belong to the click pipeline.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/db"
	"github.com/clickarena/engine/pkg/model"
	"github.com/clickarena/engine/pkg/retry"
)

var (
	// ErrNoEligibleItems is returned when every catalog item already has
	// a live game.
	ErrNoEligibleItems = errors.New("rotation: no eligible items")

	// ErrPartial marks a run that completed some steps before failing.
	// The report still carries the counts of what did happen.
	ErrPartial = errors.New("rotation: partial failure")
)

// Config tunes a rotation run.
type Config struct {
	// BatchSize is the number of games a rotation tries to create.
	BatchSize int

	// InitialDuration is each new game's countdown at start.
	InitialDuration time.Duration

	// Hours are the rotation start hours in Timezone.
	Hours []int

	// Timezone is the IANA name the rotation hours are aligned to.
	Timezone string

	// StaleAfter is how far past its scheduled start a waiting game may be
	// before a run retires it. A batch that is merely due (start just
	// passed, the activation sweep has not caught it yet) must survive;
	// only leftovers from a window the engine slept through are stale.
	StaleAfter time.Duration

	// Retry wraps every storage call; only transient errors re-attempt.
	Retry retry.Config
}

func DefaultConfig() Config {
	return Config{
		BatchSize:       18,
		InitialDuration: time.Hour,
		Hours:           []int{0, 3, 6, 9, 12, 15, 18, 21},
		Timezone:        "Europe/Paris",
		StaleAfter:      5 * time.Minute,
		Retry:           retry.RotationConfig(db.IsRetryable),
	}
}

// Report is what a run accomplished. Cleanup and creation are independently
// useful, so both counts are reported even when one half fails.
type Report struct {
	Created        int       `json:"created"`
	CleanedEnded   int       `json:"cleaned_ended"`
	CleanedWaiting int       `json:"cleaned_waiting"`
	StartTime      time.Time `json:"start_time"`
}

// SequenceOwner lets the scheduler drop per-game counters for games it
// hard-deletes.
type SequenceOwner interface {
	Forget(gameID string)
}

type Scheduler struct {
	cfg    Config
	store  db.Store
	seq    SequenceOwner
	logger *zap.Logger
	now    func() time.Time
	randFn func(n int) int
}

func NewScheduler(cfg Config, store db.Store, seq SequenceOwner, logger *zap.Logger) *Scheduler {
	sort.Ints(cfg.Hours)
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		seq:    seq,
		logger: logger,
		now:    time.Now,
		randFn: rand.Intn,
	}
}

// SetClock overrides the scheduler's clock. Tests only.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run performs one rotation batch: retire ended games, drop stale waiting
// leftovers, then create the next batch of waiting games on unoccupied
// items. With immediate set, the batch starts now instead of at the next
// aligned rotation hour.
//
// Invoking Run again within the same rotation window is harmless: items
// occupied by the games just created are excluded from selection.
func (s *Scheduler) Run(ctx context.Context, immediate bool) (Report, error) {
	var report Report

	cleanedEnded, err := s.cleanup(ctx, "delete ended games", func(g *model.Game) bool {
		return g.Status == model.StatusEnded
	})
	report.CleanedEnded = cleanedEnded
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrPartial, err)
	}

	// A waiting game is stale only when its start passed longer ago than
	// the grace window. The rotation cron fires at the same instant the
	// previous batch comes due, before the activation sweep has promoted
	// it; that batch is due, not stale, and must not be retired.
	staleBefore := s.now().Add(-s.cfg.StaleAfter)
	cleanedWaiting, err := s.cleanup(ctx, "delete stale waiting games", func(g *model.Game) bool {
		return g.Status == model.StatusWaiting && g.ScheduledStart.Before(staleBefore)
	})
	report.CleanedWaiting = cleanedWaiting
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrPartial, err)
	}

	start, err := s.nextStart(immediate)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrPartial, err)
	}
	report.StartTime = start

	created, err := s.createBatch(ctx, start)
	report.Created = created
	if err != nil {
		if errors.Is(err, ErrNoEligibleItems) {
			return report, err
		}
		return report, fmt.Errorf("%w: %v", ErrPartial, err)
	}

	s.logger.Info("rotation complete",
		zap.Int("created", report.Created),
		zap.Int("cleaned_ended", report.CleanedEnded),
		zap.Int("cleaned_waiting", report.CleanedWaiting),
		zap.Time("start_time", report.StartTime))
	return report, nil
}

func (s *Scheduler) cleanup(ctx context.Context, op string, match func(*model.Game) bool) (int, error) {
	var doomed []string
	err := retry.WithBackoff(ctx, s.cfg.Retry, s.logger, op+": list", func() error {
		games, lerr := s.store.ListGamesByStatus(ctx, model.StatusEnded, model.StatusWaiting)
		if lerr != nil {
			return lerr
		}
		doomed = doomed[:0]
		for _, g := range games {
			if match(g) {
				doomed = append(doomed, g.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	deleted := 0
	err = retry.WithBackoff(ctx, s.cfg.Retry, s.logger, op, func() error {
		n, derr := s.store.DeleteGames(ctx, doomed)
		deleted += n
		return derr
	})
	if err != nil {
		return deleted, err
	}
	for _, id := range doomed {
		s.seq.Forget(id)
	}
	return deleted, nil
}

func (s *Scheduler) createBatch(ctx context.Context, start time.Time) (int, error) {
	var items []*model.Item
	err := retry.WithBackoff(ctx, s.cfg.Retry, s.logger, "list items", func() error {
		var lerr error
		items, lerr = s.store.ListItems(ctx)
		return lerr
	})
	if err != nil {
		return 0, err
	}

	var live []*model.Game
	err = retry.WithBackoff(ctx, s.cfg.Retry, s.logger, "list live games", func() error {
		var lerr error
		live, lerr = s.store.ListGamesByStatus(ctx,
			model.StatusWaiting, model.StatusActive, model.StatusFinalPhase)
		return lerr
	})
	if err != nil {
		return 0, err
	}

	occupied := make(map[string]bool, len(live))
	for _, g := range live {
		occupied[g.ItemID] = true
	}
	eligible := make([]*model.Item, 0, len(items))
	for _, it := range items {
		if !occupied[it.ID] {
			eligible = append(eligible, it)
		}
	}
	if len(eligible) == 0 {
		return 0, ErrNoEligibleItems
	}

	// Fisher-Yates; selection among eligible items is randomized.
	for i := len(eligible) - 1; i > 0; i-- {
		j := s.randFn(i + 1)
		eligible[i], eligible[j] = eligible[j], eligible[i]
	}
	if len(eligible) > s.cfg.BatchSize {
		eligible = eligible[:s.cfg.BatchSize]
	}

	now := s.now()
	games := make([]*model.Game, 0, len(eligible))
	for _, it := range eligible {
		games = append(games, &model.Game{
			ID:              uuid.NewString(),
			ItemID:          it.ID,
			Status:          model.StatusWaiting,
			ScheduledStart:  start,
			EndTime:         start.Add(s.cfg.InitialDuration),
			InitialDuration: s.cfg.InitialDuration,
			CreatedAt:       now,
		})
	}

	err = retry.WithBackoff(ctx, s.cfg.Retry, s.logger, "insert rotation batch", func() error {
		return s.store.InsertGames(ctx, games)
	})
	if err != nil {
		return 0, err
	}
	return len(games), nil
}

// nextStart aligns the batch start to the next configured rotation hour in
// the reference timezone, or returns now in immediate mode.
func (s *Scheduler) nextStart(immediate bool) (time.Time, error) {
	now := s.now()
	if immediate || len(s.cfg.Hours) == 0 {
		return now, nil
	}

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", s.cfg.Timezone, err)
	}
	local := now.In(loc)

	for _, h := range s.cfg.Hours {
		candidate := time.Date(local.Year(), local.Month(), local.Day(), h, 0, 0, 0, loc)
		if candidate.After(local) {
			return candidate.UTC(), nil
		}
	}
	// First rotation hour of tomorrow.
	next := time.Date(local.Year(), local.Month(), local.Day()+1, s.cfg.Hours[0], 0, 0, 0, loc)
	return next.UTC(), nil
}
