package model

import "time"

// GameStatus is the lifecycle state of an auction.
type GameStatus string

const (
	StatusWaiting    GameStatus = "waiting"
	StatusActive     GameStatus = "active"
	StatusFinalPhase GameStatus = "final_phase"
	StatusEnded      GameStatus = "ended"
)

// Live reports whether a game in this status still occupies its item.
func (s GameStatus) Live() bool {
	return s == StatusWaiting || s == StatusActive || s == StatusFinalPhase
}

// Account is a player identity with a spendable credit balance.
// Balance changes go through the ledger only.
type Account struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Credits     int64     `json:"credits"`
	TotalClicks int64     `json:"total_clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

// Item is a static reward descriptor. Immutable once referenced by a game.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RetailCents int64  `json:"retail_cents"`
}

// Game is one auction instance.
//
// EndTime only ever moves forward, FinalPhaseEnteredAt is stamped once on
// first entry into final_phase, and WinnerAccountID is written exactly once
// at the transition into ended.
type Game struct {
	ID                  string        `json:"id"`
	ItemID              string        `json:"item_id"`
	Status              GameStatus    `json:"status"`
	ScheduledStart      time.Time     `json:"scheduled_start"`
	EndTime             time.Time     `json:"end_time"`
	InitialDuration     time.Duration `json:"initial_duration"`
	TotalClicks         int64         `json:"total_clicks"`
	LastClickAccountID  string        `json:"last_click_account_id,omitempty"`
	LastClickUsername   string        `json:"last_click_username,omitempty"`
	LastClickAt         time.Time     `json:"last_click_at,omitzero"`
	FinalPhaseEnteredAt time.Time     `json:"final_phase_entered_at,omitzero"`
	WinnerAccountID     string        `json:"winner_account_id,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Click is an immutable record of one credit-spending action.
// AccountID is empty for automated clicks. Sequence numbers are unique and
// strictly increasing per game.
type Click struct {
	ID           string    `json:"id"`
	GameID       string    `json:"game_id"`
	AccountID    string    `json:"account_id,omitempty"`
	Username     string    `json:"username"`
	ItemName     string    `json:"item_name"`
	IsBot        bool      `json:"is_bot"`
	Sequence     int64     `json:"sequence"`
	CreditsSpent int64     `json:"credits_spent"`
	CreatedAt    time.Time `json:"created_at"`
}

// GameView is the read-only snapshot handed to collaborators.
type GameView struct {
	ID                string     `json:"id"`
	Item              *Item      `json:"item,omitempty"`
	Status            GameStatus `json:"status"`
	ScheduledStart    time.Time  `json:"scheduled_start"`
	EndTime           time.Time  `json:"end_time"`
	TotalClicks       int64      `json:"total_clicks"`
	LastClickUsername string     `json:"last_click_username,omitempty"`
	LastClickAt       time.Time  `json:"last_click_at,omitzero"`
	WinnerAccountID   string     `json:"winner_account_id,omitempty"`
}
