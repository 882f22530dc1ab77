package storage

import (
	"context"
	"log/slog"
)

// Open returns a Postgres store when databaseURL is set, otherwise a SQLite
// store when sqlitePath is set. With neither, it returns (nil, nil) and no
// results are recorded.
func Open(ctx context.Context, databaseURL, sqlitePath string) (ResultStore, error) {
	switch {
	case databaseURL != "":
		s, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case sqlitePath != "":
		s, err := NewSQLiteStore(ctx, sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		slog.Info("no DATABASE_URL or SQLITE_PATH; game results will not be recorded", "tag", "storage")
		return nil, nil
	}
}
