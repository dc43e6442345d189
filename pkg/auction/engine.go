package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/audit"
	"github.com/clickarena/engine/pkg/db"
	"github.com/clickarena/engine/pkg/events"
	"github.com/clickarena/engine/pkg/fraud"
	"github.com/clickarena/engine/pkg/ledger"
	"github.com/clickarena/engine/pkg/model"
	"github.com/clickarena/engine/pkg/utils"
)

// ProgressSubmitter is the fire-and-forget downstream hook invoked after a
// successful click.
type ProgressSubmitter interface {
	Submit(accountID string)
}

type nopProgress struct{}

func (nopProgress) Submit(string) {}

// Result is the outcome of a processed click.
type Result struct {
	Success    bool       `json:"success"`
	Sequence   int64      `json:"sequence,omitempty"`
	NewEndTime *time.Time `json:"new_end_time,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Engine owns the click pipeline and the per-game state machines. All
// mutation of a game's fields goes through here (or through the rotation
// scheduler's delete/insert); there are no ad-hoc partial updates.
type Engine struct {
	cfg      Config
	store    db.Store
	ledger   *ledger.Ledger
	fraud    *fraud.Detector
	seq      *Sequences
	notifier events.Notifier
	progress ProgressSubmitter
	sink     audit.Sink
	logger   *zap.Logger

	// gameLocks scopes the atomic click unit to one game; clicks on
	// different games proceed fully in parallel.
	gameLocks *utils.KeyMutex

	now func() time.Time
}

func NewEngine(cfg Config, store db.Store, led *ledger.Ledger, det *fraud.Detector,
	notifier events.Notifier, sink audit.Sink, logger *zap.Logger) *Engine {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		ledger:    led,
		fraud:     det,
		seq:       NewSequences(store),
		notifier:  notifier,
		progress:  nopProgress{},
		sink:      sink,
		logger:    logger,
		gameLocks: utils.NewKeyMutex(),
		now:       time.Now,
	}
}

// SetProgress wires the downstream achievement hook.
func (e *Engine) SetProgress(p ProgressSubmitter) {
	if p != nil {
		e.progress = p
	}
}

// SetClock overrides the engine's clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Sequences exposes the allocator so the rotation can drop counters of
// deleted games.
func (e *Engine) Sequences() *Sequences { return e.seq }

// ProcessClick runs the full pipeline for one authenticated click.
//
// Precondition failures (credits, fraud, game state) charge nothing and
// record nothing. Once the debit commits, any later failure refunds it
// before the error surfaces; the account never ends a failed click poorer.
func (e *Engine) ProcessClick(ctx context.Context, accountID, gameID string) (Result, error) {
	if accountID == "" {
		return failure(ErrUnauthenticated)
	}

	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return failure(ErrUnauthenticated)
		}
		return failure(fmt.Errorf("%w: load account: %v", ErrPersistenceFailure, err))
	}
	if acct.Credits < e.cfg.CreditCost {
		return failure(ErrInsufficientCredits)
	}

	verdict := e.fraud.Evaluate(ctx, accountID, gameID, e.now())
	if verdict.Blocked {
		return failure(ErrFraudBlocked)
	}

	if err := e.gameLocks.Acquire(ctx, gameID, e.cfg.LockTimeout); err != nil {
		if errors.Is(err, utils.ErrAcquireTimeout) {
			return failure(ErrContended)
		}
		return failure(err)
	}
	defer e.gameLocks.Release(gameID)

	// Re-read under the lock; a concurrent click may have extended the game.
	game, err := e.store.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return failure(ErrGameNotFound)
		}
		return failure(fmt.Errorf("%w: load game: %v", ErrPersistenceFailure, err))
	}

	now := e.now()
	if !Accepting(game, now) {
		return failure(ErrGameNotAcceptingClicks)
	}

	item, err := e.store.GetItem(ctx, game.ItemID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return failure(fmt.Errorf("%w: load item: %v", ErrPersistenceFailure, err))
	}
	itemName := ""
	if item != nil {
		itemName = item.Name
	}

	// Debit first; everything after this point must refund on failure.
	if _, err := e.ledger.Debit(ctx, accountID, e.cfg.CreditCost); err != nil {
		switch {
		case errors.Is(err, db.ErrInsufficientCredits):
			return failure(ErrInsufficientCredits)
		case errors.Is(err, ledger.ErrContended):
			return failure(ErrContended)
		default:
			return failure(fmt.Errorf("%w: debit: %v", ErrPersistenceFailure, err))
		}
	}

	res, err := e.commitClick(ctx, game, click{
		accountID: accountID,
		username:  acct.Username,
		itemName:  itemName,
		spent:     e.cfg.CreditCost,
	}, now)
	if err != nil {
		e.refund(ctx, accountID)
		return failure(err)
	}

	if err := e.store.IncrementAccountClicks(ctx, accountID); err != nil {
		// Lifetime counter drift is tolerable; the click itself committed.
		e.logger.Warn("failed to bump account click counter",
			zap.String("account_id", accountID), zap.Error(err))
	}
	e.progress.Submit(accountID)

	return res, nil
}

// ProcessBotClick applies an automated click: no account, no credit spend,
// no fraud gate, same sequencing and timer rules.
func (e *Engine) ProcessBotClick(ctx context.Context, gameID, username string) (Result, error) {
	if err := e.gameLocks.Acquire(ctx, gameID, e.cfg.LockTimeout); err != nil {
		if errors.Is(err, utils.ErrAcquireTimeout) {
			return failure(ErrContended)
		}
		return failure(err)
	}
	defer e.gameLocks.Release(gameID)

	game, err := e.store.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return failure(ErrGameNotFound)
		}
		return failure(fmt.Errorf("%w: load game: %v", ErrPersistenceFailure, err))
	}

	now := e.now()
	if !Accepting(game, now) {
		return failure(ErrGameNotAcceptingClicks)
	}

	itemName := ""
	if item, err := e.store.GetItem(ctx, game.ItemID); err == nil {
		itemName = item.Name
	}

	return e.commitClick(ctx, game, click{
		username: username,
		itemName: itemName,
		isBot:    true,
	}, now)
}

type click struct {
	accountID string
	username  string
	itemName  string
	isBot     bool
	spent     int64
}

// commitClick performs sequence allocation, click insert, game update and
// event publication. Callers hold the game lock and have already debited.
func (e *Engine) commitClick(ctx context.Context, game *model.Game, c click, now time.Time) (Result, error) {
	seq, err := e.seq.Next(ctx, game.ID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: allocate sequence: %v", ErrPersistenceFailure, err)
	}

	record := &model.Click{
		ID:           uuid.NewString(),
		GameID:       game.ID,
		AccountID:    c.accountID,
		Username:     c.username,
		ItemName:     c.itemName,
		IsBot:        c.isBot,
		Sequence:     seq,
		CreditsSpent: c.spent,
		CreatedAt:    now,
	}
	if err := e.store.InsertClick(ctx, record); err != nil {
		return Result{}, fmt.Errorf("%w: insert click: %v", ErrPersistenceFailure, err)
	}

	extended := applyClick(game, c.accountID, c.username, now, e.cfg)
	if err := e.store.UpdateGame(ctx, game); err != nil {
		return Result{}, fmt.Errorf("%w: update game: %v", ErrPersistenceFailure, err)
	}

	// Published while still holding the game lock so subscribers observe
	// updates for one game in commit order.
	e.notifier.PublishGameUpdate(ctx, events.GameUpdate{
		GameID:      game.ID,
		ItemName:    c.itemName,
		Status:      game.Status,
		TotalClicks: game.TotalClicks,
		EndTime:     game.EndTime,
		Sequence:    seq,
		AccountID:   c.accountID,
		Username:    c.username,
	})

	res := Result{Success: true, Sequence: seq}
	if extended {
		end := game.EndTime
		res.NewEndTime = &end
	}
	return res, nil
}

func (e *Engine) refund(ctx context.Context, accountID string) {
	if err := e.ledger.Refund(ctx, accountID, e.cfg.CreditCost); err != nil {
		// Should not happen; surfaced loudly because the account is now short.
		e.logger.Error("compensating refund failed",
			zap.String("account_id", accountID), zap.Error(err))
		return
	}
	e.sink.Emit(ctx, audit.Event{
		Kind:      audit.KindCreditsRefund,
		Severity:  audit.SeverityInfo,
		AccountID: accountID,
		Details:   map[string]any{"amount": e.cfg.CreditCost},
	})
}

func failure(err error) (Result, error) {
	return Result{Success: false, Reason: Reason(err)}, err
}

// GetGameSnapshot returns the read-only current state of one game. Status is
// reported as of now, even when a lagging stored status has not been swept
// yet.
func (e *Engine) GetGameSnapshot(ctx context.Context, gameID string) (*model.GameView, error) {
	game, err := e.store.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return e.view(ctx, game), nil
}

// ListLiveGames returns snapshots of games in the given statuses; all games
// when statuses is empty.
func (e *Engine) ListLiveGames(ctx context.Context, statuses ...model.GameStatus) ([]*model.GameView, error) {
	games, err := e.store.ListGamesByStatus(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	out := make([]*model.GameView, 0, len(games))
	for _, g := range games {
		out = append(out, e.view(ctx, g))
	}
	return out, nil
}

func (e *Engine) view(ctx context.Context, g *model.Game) *model.GameView {
	v := &model.GameView{
		ID:                g.ID,
		Status:            EffectiveStatus(g, e.now()),
		ScheduledStart:    g.ScheduledStart,
		EndTime:           g.EndTime,
		TotalClicks:       g.TotalClicks,
		LastClickUsername: g.LastClickUsername,
		LastClickAt:       g.LastClickAt,
		WinnerAccountID:   g.WinnerAccountID,
	}
	if item, err := e.store.GetItem(ctx, g.ItemID); err == nil {
		v.Item = item
	}
	return v
}

// Sweep advances lagging state machines: waiting games whose start passed
// become active, and expired games are closed with their winner crowned.
// Runs on a short cron cadence so a game whose traffic died still
// terminates without a final click.
func (e *Engine) Sweep(ctx context.Context) (activated, ended int, err error) {
	games, err := e.store.ListGamesByStatus(ctx,
		model.StatusWaiting, model.StatusActive, model.StatusFinalPhase)
	if err != nil {
		return 0, 0, fmt.Errorf("sweep: list games: %w", err)
	}

	for _, g := range games {
		now := e.now()
		if g.Status == model.StatusWaiting {
			if now.Before(g.ScheduledStart) {
				continue
			}
			if lockErr := e.gameLocks.Acquire(ctx, g.ID, e.cfg.LockTimeout); lockErr != nil {
				continue // contended games get swept next tick
			}
			fresh, gerr := e.store.GetGame(ctx, g.ID)
			if gerr == nil && fresh.Status == model.StatusWaiting {
				fresh.Status = model.StatusActive
				if uerr := e.store.UpdateGame(ctx, fresh); uerr == nil {
					activated++
					e.logger.Info("game activated",
						zap.String("game_id", fresh.ID),
						zap.Time("scheduled_start", fresh.ScheduledStart))
				}
			}
			e.gameLocks.Release(g.ID)
			continue
		}

		if now.Before(g.EndTime) {
			continue
		}
		if lockErr := e.gameLocks.Acquire(ctx, g.ID, e.cfg.LockTimeout); lockErr != nil {
			continue
		}
		fresh, gerr := e.store.GetGame(ctx, g.ID)
		if gerr == nil && finalize(fresh, e.now()) {
			if uerr := e.store.UpdateGame(ctx, fresh); uerr == nil {
				ended++
				e.logger.Info("game ended",
					zap.String("game_id", fresh.ID),
					zap.String("winner_account_id", fresh.WinnerAccountID),
					zap.Int64("total_clicks", fresh.TotalClicks))
				if fresh.WinnerAccountID != "" {
					e.sink.Emit(ctx, audit.Event{
						Kind:      audit.KindGameWin,
						Severity:  audit.SeverityInfo,
						AccountID: fresh.WinnerAccountID,
						Details:   map[string]any{"game_id": fresh.ID},
					})
				}
				itemName := ""
				if item, ierr := e.store.GetItem(ctx, fresh.ItemID); ierr == nil {
					itemName = item.Name
				}
				e.notifier.PublishGameUpdate(ctx, events.GameUpdate{
					GameID:      fresh.ID,
					ItemName:    itemName,
					Status:      fresh.Status,
					TotalClicks: fresh.TotalClicks,
					EndTime:     fresh.EndTime,
					Username:    fresh.LastClickUsername,
					WinnerID:    fresh.WinnerAccountID,
				})
			}
		}
		e.gameLocks.Release(g.ID)
	}
	return activated, ended, nil
}
