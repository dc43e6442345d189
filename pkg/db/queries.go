package db

const (
	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (id, username, credits, total_clicks, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username`

	queryGetAccount = `
		SELECT id, username, credits, total_clicks, created_at
		FROM accounts WHERE id = ?`

	queryAdjustCredits = `
		UPDATE accounts SET credits = credits + ?
		WHERE id = ? AND credits + ? >= 0`

	queryGetCredits = `
		SELECT credits FROM accounts WHERE id = ?`

	queryBumpAccountClicks = `
		UPDATE accounts SET total_clicks = total_clicks + 1 WHERE id = ?`

	// Item queries
	queryInsertItem = `
		INSERT OR IGNORE INTO items (id, name, retail_cents) VALUES (?, ?, ?)`

	queryGetItem = `
		SELECT id, name, retail_cents FROM items WHERE id = ?`

	queryListItems = `
		SELECT id, name, retail_cents FROM items ORDER BY id`

	// Game queries
	queryInsertGame = `
		INSERT INTO games (
			id, item_id, status, scheduled_start, end_time, initial_duration_ms,
			total_clicks, last_click_account_id, last_click_username, last_click_at,
			final_phase_entered_at, winner_account_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetGame = `
		SELECT id, item_id, status, scheduled_start, end_time, initial_duration_ms,
		       total_clicks, last_click_account_id, last_click_username, last_click_at,
		       final_phase_entered_at, winner_account_id, created_at
		FROM games WHERE id = ?`

	queryUpdateGame = `
		UPDATE games SET
			status = ?, end_time = ?, total_clicks = ?,
			last_click_account_id = ?, last_click_username = ?, last_click_at = ?,
			final_phase_entered_at = ?, winner_account_id = ?
		WHERE id = ?`

	queryListGames = `
		SELECT id, item_id, status, scheduled_start, end_time, initial_duration_ms,
		       total_clicks, last_click_account_id, last_click_username, last_click_at,
		       final_phase_entered_at, winner_account_id, created_at
		FROM games ORDER BY created_at`

	// Click queries
	queryInsertClick = `
		INSERT INTO clicks (
			id, game_id, account_id, username, item_name, is_bot,
			sequence, credits_spent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryMaxSequence = `
		SELECT COALESCE(MAX(sequence), 0) FROM clicks WHERE game_id = ?`

	queryRecentClicks = `
		SELECT id, game_id, account_id, username, item_name, is_bot,
		       sequence, credits_spent, created_at
		FROM clicks WHERE game_id = ?
		ORDER BY sequence DESC LIMIT ?`

	queryDeleteClicksForGame = `
		DELETE FROM clicks WHERE game_id = ?`
)
