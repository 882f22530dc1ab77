package storage

import (
	"context"
	"time"
)

// GameResult is one finished game. WinnerIndex is 0, 1, or -1 for a tie.
// OwnerUserID is the authenticated user who opened the table, or empty.
type GameResult struct {
	ID           string    `json:"id"`
	PlayedAt     time.Time `json:"played_at"`
	TableID      string    `json:"table_id"`
	OwnerUserID  string    `json:"owner_user_id,omitempty"`
	Deal         uint64    `json:"deal"`
	Player0Name  string    `json:"player0_name"`
	Player1Name  string    `json:"player1_name"`
	Player0Score int       `json:"player0_score"`
	Player1Score int       `json:"player1_score"`
	WinnerIndex  int       `json:"winner_index"`
	Message      string    `json:"message"`
	Moves        int       `json:"moves"`
}

// Standing is the win/loss/tie tally for one player name across all results.
type Standing struct {
	Name   string `json:"name"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Draws  int    `json:"draws"`
}

// ResultStore abstracts persistence of finished games. Only completed games
// are stored; a game in progress is never persisted.
type ResultStore interface {
	InsertGameResult(ctx context.Context, r GameResult) error
	ListRecent(ctx context.Context, limit, offset int) ([]GameResult, error)
	ListByUserID(ctx context.Context, userID string, limit int) ([]GameResult, error)
	Standings(ctx context.Context, limit int) ([]Standing, error)

	// Lifecycle
	Close()
}

// Ensure both backends implement ResultStore at compile time.
var (
	_ ResultStore = (*PostgresStore)(nil)
	_ ResultStore = (*SQLiteStore)(nil)
)

// clampLimit bounds page sizes for list queries.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
