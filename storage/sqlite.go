package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createSQLiteSQL = `
CREATE TABLE IF NOT EXISTS game_results (
	id            TEXT PRIMARY KEY,
	played_at     TEXT NOT NULL,
	table_id      TEXT NOT NULL,
	owner_user_id TEXT NOT NULL DEFAULT '',
	deal          INTEGER NOT NULL,
	player0_name  TEXT NOT NULL,
	player1_name  TEXT NOT NULL,
	player0_score INTEGER NOT NULL,
	player1_score INTEGER NOT NULL,
	winner_index  INTEGER NOT NULL,
	message       TEXT NOT NULL,
	moves         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_game_results_played_at ON game_results(played_at DESC);
CREATE INDEX IF NOT EXISTS idx_game_results_owner ON game_results(owner_user_id);
`

// sqliteTimeFormat is fixed width so played_at sorts correctly as text.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteResultColumns = `id, played_at, table_id, owner_user_id, deal, player0_name, player1_name, player0_score, player1_score, winner_index, message, moves`

// SQLiteStore persists game results in a local SQLite file. Used when the
// server runs on a single machine without Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if missing) the database file at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// One writer at a time; avoids SQLITE_BUSY under concurrent inserts.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createSQLiteSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	slog.Info("opened SQLite results database", "tag", "storage", "path", path)
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	if s != nil && s.db != nil {
		s.db.Close()
	}
}

// InsertGameResult records a finished game.
func (s *SQLiteStore) InsertGameResult(ctx context.Context, r GameResult) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_results (`+sqliteResultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PlayedAt.UTC().Format(sqliteTimeFormat), r.TableID, r.OwnerUserID, int64(r.Deal), r.Player0Name, r.Player1Name, r.Player0Score, r.Player1Score, r.WinnerIndex, r.Message, r.Moves)
	return err
}

// ListRecent returns results ordered by played_at DESC.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit, offset int) ([]GameResult, error) {
	if s == nil || s.db == nil {
		return []GameResult{}, nil
	}
	limit = clampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteResultColumns+`
		FROM game_results
		ORDER BY played_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	return scanSQLiteResults(rows)
}

// ListByUserID returns the results of tables opened by userID, newest first.
func (s *SQLiteStore) ListByUserID(ctx context.Context, userID string, limit int) ([]GameResult, error) {
	if s == nil || s.db == nil || userID == "" {
		return []GameResult{}, nil
	}
	limit = clampLimit(limit, 50, 200)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteResultColumns+`
		FROM game_results
		WHERE owner_user_id = ?
		ORDER BY played_at DESC
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	return scanSQLiteResults(rows)
}

// Standings returns per-name win/loss/tie counts ordered by wins.
func (s *SQLiteStore) Standings(ctx context.Context, limit int) ([]Standing, error) {
	if s == nil || s.db == nil {
		return []Standing{}, nil
	}
	limit = clampLimit(limit, 20, 200)
	rows, err := s.db.QueryContext(ctx, standingsSQL+`?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Standing{}
	for rows.Next() {
		var st Standing
		if err := rows.Scan(&st.Name, &st.Wins, &st.Losses, &st.Draws); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanSQLiteResults(rows *sql.Rows) ([]GameResult, error) {
	defer rows.Close()
	out := []GameResult{}
	for rows.Next() {
		var r GameResult
		var deal int64
		var playedAt string
		if err := rows.Scan(&r.ID, &playedAt, &r.TableID, &r.OwnerUserID, &deal, &r.Player0Name, &r.Player1Name, &r.Player0Score, &r.Player1Score, &r.WinnerIndex, &r.Message, &r.Moves); err != nil {
			return nil, err
		}
		t, err := time.Parse(sqliteTimeFormat, playedAt)
		if err != nil {
			return nil, fmt.Errorf("parse played_at %q: %w", playedAt, err)
		}
		r.PlayedAt = t
		r.Deal = uint64(deal)
		out = append(out, r)
	}
	return out, rows.Err()
}
