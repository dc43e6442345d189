package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/clickarena/engine/pkg/model"
)

// SQLite is the durable Store implementation. One writer at a time is fine
// for the engine: the per-game and per-account critical sections already
// serialize the hot path, and WAL keeps readers unblocked.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	logger.Info("Opening SQLite database", zap.String("file", path))
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &SQLite{db: conn, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
		total_clicks INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		retail_cents INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id),
		status TEXT NOT NULL,
		scheduled_start INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		initial_duration_ms INTEGER NOT NULL,
		total_clicks INTEGER NOT NULL DEFAULT 0,
		last_click_account_id TEXT NOT NULL DEFAULT '',
		last_click_username TEXT NOT NULL DEFAULT '',
		last_click_at INTEGER NOT NULL DEFAULT 0,
		final_phase_entered_at INTEGER NOT NULL DEFAULT 0,
		winner_account_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_games_status ON games(status);

	CREATE TABLE IF NOT EXISTS clicks (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		account_id TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL,
		item_name TEXT NOT NULL,
		is_bot INTEGER NOT NULL DEFAULT 0,
		sequence INTEGER NOT NULL,
		credits_spent INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (game_id, sequence)
	);
	CREATE INDEX IF NOT EXISTS idx_clicks_game ON clicks(game_id, sequence);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// classify maps driver errors onto the store's sentinel taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrBusy, err)
		case se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrDuplicateSequence, err)
		}
	}
	return err
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func timeToMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (s *SQLite) InsertAccount(ctx context.Context, a *model.Account) error {
	_, err := s.db.ExecContext(ctx, queryInsertAccount,
		a.ID, a.Username, a.Credits, a.TotalClicks, timeToMs(a.CreatedAt))
	return classify(err)
}

func (s *SQLite) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	var createdMs int64
	err := s.db.QueryRowContext(ctx, queryGetAccount, id).
		Scan(&a.ID, &a.Username, &a.Credits, &a.TotalClicks, &createdMs)
	if err != nil {
		return nil, classify(err)
	}
	a.CreatedAt = msToTime(createdMs)
	return &a, nil
}

func (s *SQLite) AdjustCredits(ctx context.Context, id string, delta int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, queryAdjustCredits, delta, id, delta)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	var balance int64
	scanErr := s.db.QueryRowContext(ctx, queryGetCredits, id).Scan(&balance)
	if scanErr != nil {
		return 0, classify(scanErr)
	}
	if n == 0 {
		return balance, ErrInsufficientCredits
	}
	return balance, nil
}

func (s *SQLite) IncrementAccountClicks(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, queryBumpAccountClicks, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) InsertItem(ctx context.Context, it *model.Item) error {
	_, err := s.db.ExecContext(ctx, queryInsertItem, it.ID, it.Name, it.RetailCents)
	return classify(err)
}

func (s *SQLite) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var it model.Item
	err := s.db.QueryRowContext(ctx, queryGetItem, id).Scan(&it.ID, &it.Name, &it.RetailCents)
	if err != nil {
		return nil, classify(err)
	}
	return &it, nil
}

func (s *SQLite) ListItems(ctx context.Context) ([]*model.Item, error) {
	rows, err := s.db.QueryContext(ctx, queryListItems)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.RetailCents); err != nil {
			return nil, err
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (s *SQLite) InsertGames(ctx context.Context, games []*model.Game) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	for _, g := range games {
		_, err := tx.ExecContext(ctx, queryInsertGame,
			g.ID, g.ItemID, string(g.Status),
			timeToMs(g.ScheduledStart), timeToMs(g.EndTime), g.InitialDuration.Milliseconds(),
			g.TotalClicks, g.LastClickAccountID, g.LastClickUsername, timeToMs(g.LastClickAt),
			timeToMs(g.FinalPhaseEnteredAt), g.WinnerAccountID, timeToMs(g.CreatedAt))
		if err != nil {
			_ = tx.Rollback()
			return classify(err)
		}
	}
	return classify(tx.Commit())
}

func scanGame(scan func(dest ...any) error) (*model.Game, error) {
	var g model.Game
	var status string
	var startMs, endMs, durMs, lastMs, finalMs, createdMs int64
	err := scan(&g.ID, &g.ItemID, &status, &startMs, &endMs, &durMs,
		&g.TotalClicks, &g.LastClickAccountID, &g.LastClickUsername, &lastMs,
		&finalMs, &g.WinnerAccountID, &createdMs)
	if err != nil {
		return nil, err
	}
	g.Status = model.GameStatus(status)
	g.ScheduledStart = msToTime(startMs)
	g.EndTime = msToTime(endMs)
	g.InitialDuration = time.Duration(durMs) * time.Millisecond
	g.LastClickAt = msToTime(lastMs)
	g.FinalPhaseEnteredAt = msToTime(finalMs)
	g.CreatedAt = msToTime(createdMs)
	return &g, nil
}

func (s *SQLite) GetGame(ctx context.Context, id string) (*model.Game, error) {
	row := s.db.QueryRowContext(ctx, queryGetGame, id)
	g, err := scanGame(row.Scan)
	if err != nil {
		return nil, classify(err)
	}
	return g, nil
}

func (s *SQLite) UpdateGame(ctx context.Context, g *model.Game) error {
	res, err := s.db.ExecContext(ctx, queryUpdateGame,
		string(g.Status), timeToMs(g.EndTime), g.TotalClicks,
		g.LastClickAccountID, g.LastClickUsername, timeToMs(g.LastClickAt),
		timeToMs(g.FinalPhaseEnteredAt), g.WinnerAccountID, g.ID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ListGamesByStatus(ctx context.Context, statuses ...model.GameStatus) ([]*model.Game, error) {
	query := queryListGames
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
		query = strings.Replace(queryListGames, "ORDER BY",
			fmt.Sprintf("WHERE status IN (%s) ORDER BY", placeholders), 1)
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Game
	for rows.Next() {
		g, err := scanGame(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteGames(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(err)
	}
	deleted := 0
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, queryDeleteClicksForGame, id); err != nil {
			_ = tx.Rollback()
			return deleted, classify(err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
		if err != nil {
			_ = tx.Rollback()
			return deleted, classify(err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(err)
	}
	return deleted, nil
}

func (s *SQLite) InsertClick(ctx context.Context, c *model.Click) error {
	_, err := s.db.ExecContext(ctx, queryInsertClick,
		c.ID, c.GameID, c.AccountID, c.Username, c.ItemName, c.IsBot,
		c.Sequence, c.CreditsSpent, timeToMs(c.CreatedAt))
	return classify(err)
}

func (s *SQLite) MaxSequence(ctx context.Context, gameID string) (int64, error) {
	var max int64
	err := s.db.QueryRowContext(ctx, queryMaxSequence, gameID).Scan(&max)
	return max, classify(err)
}

func (s *SQLite) RecentClicks(ctx context.Context, gameID string, limit int) ([]*model.Click, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, queryRecentClicks, gameID, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Click
	for rows.Next() {
		var c model.Click
		var createdMs int64
		if err := rows.Scan(&c.ID, &c.GameID, &c.AccountID, &c.Username, &c.ItemName,
			&c.IsBot, &c.Sequence, &c.CreditsSpent, &createdMs); err != nil {
			return nil, err
		}
		c.CreatedAt = msToTime(createdMs)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Failed to close database connection", zap.Error(err))
		return err
	}
	return nil
}
