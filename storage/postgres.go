package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createPostgresSQL = `
CREATE TABLE IF NOT EXISTS game_results (
	id            UUID PRIMARY KEY,
	played_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	table_id      TEXT NOT NULL,
	owner_user_id TEXT NOT NULL DEFAULT '',
	deal          BIGINT NOT NULL,
	player0_name  TEXT NOT NULL,
	player1_name  TEXT NOT NULL,
	player0_score INT NOT NULL,
	player1_score INT NOT NULL,
	winner_index  SMALLINT NOT NULL,
	message       TEXT NOT NULL,
	moves         INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_game_results_played_at ON game_results(played_at DESC);
CREATE INDEX IF NOT EXISTS idx_game_results_owner ON game_results(owner_user_id);
`

// standingsSQL tallies results per player name. Shared by both backends;
// only the limit placeholder differs.
const standingsSQL = `
SELECT name, SUM(win) AS wins, SUM(loss) AS losses, SUM(draw) AS draws
FROM (
	SELECT player0_name AS name,
		CASE WHEN winner_index = 0 THEN 1 ELSE 0 END AS win,
		CASE WHEN winner_index = 1 THEN 1 ELSE 0 END AS loss,
		CASE WHEN winner_index = -1 THEN 1 ELSE 0 END AS draw
	FROM game_results
	UNION ALL
	SELECT player1_name AS name,
		CASE WHEN winner_index = 1 THEN 1 ELSE 0 END AS win,
		CASE WHEN winner_index = 0 THEN 1 ELSE 0 END AS loss,
		CASE WHEN winner_index = -1 THEN 1 ELSE 0 END AS draw
	FROM game_results
) t
GROUP BY name
ORDER BY wins DESC, draws DESC, name ASC
LIMIT `

const selectResultColumns = `id::text, played_at, table_id, owner_user_id, deal, player0_name, player1_name, player0_score, player1_score, winner_index, message, moves`

// PostgresStore persists game results in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the game_results table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createPostgresSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// InsertGameResult records a finished game.
func (s *PostgresStore) InsertGameResult(ctx context.Context, r GameResult) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO game_results (id, played_at, table_id, owner_user_id, deal, player0_name, player1_name, player0_score, player1_score, winner_index, message, moves)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.PlayedAt, r.TableID, r.OwnerUserID, int64(r.Deal), r.Player0Name, r.Player1Name, r.Player0Score, r.Player1Score, r.WinnerIndex, r.Message, r.Moves)
	return err
}

// ListRecent returns results ordered by played_at DESC.
func (s *PostgresStore) ListRecent(ctx context.Context, limit, offset int) ([]GameResult, error) {
	if s == nil || s.pool == nil {
		return []GameResult{}, nil
	}
	limit = clampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectResultColumns+`
		FROM game_results
		ORDER BY played_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	return scanPostgresResults(rows)
}

// ListByUserID returns the results of tables opened by userID, newest first.
func (s *PostgresStore) ListByUserID(ctx context.Context, userID string, limit int) ([]GameResult, error) {
	if s == nil || s.pool == nil || userID == "" {
		return []GameResult{}, nil
	}
	limit = clampLimit(limit, 50, 200)
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectResultColumns+`
		FROM game_results
		WHERE owner_user_id = $1
		ORDER BY played_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	return scanPostgresResults(rows)
}

// Standings returns per-name win/loss/tie counts ordered by wins.
func (s *PostgresStore) Standings(ctx context.Context, limit int) ([]Standing, error) {
	if s == nil || s.pool == nil {
		return []Standing{}, nil
	}
	limit = clampLimit(limit, 20, 200)
	rows, err := s.pool.Query(ctx, standingsSQL+`$1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Standing{}
	for rows.Next() {
		var st Standing
		var wins, losses, draws int64
		if err := rows.Scan(&st.Name, &wins, &losses, &draws); err != nil {
			return nil, err
		}
		st.Wins, st.Losses, st.Draws = int(wins), int(losses), int(draws)
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanPostgresResults(rows pgx.Rows) ([]GameResult, error) {
	defer rows.Close()
	out := []GameResult{}
	for rows.Next() {
		var r GameResult
		var deal int64
		var winner int16
		var playedAt time.Time
		if err := rows.Scan(&r.ID, &playedAt, &r.TableID, &r.OwnerUserID, &deal, &r.Player0Name, &r.Player1Name, &r.Player0Score, &r.Player1Score, &winner, &r.Message, &r.Moves); err != nil {
			return nil, err
		}
		r.PlayedAt = playedAt.UTC()
		r.Deal = uint64(deal)
		r.WinnerIndex = int(winner)
		out = append(out, r)
	}
	return out, rows.Err()
}
