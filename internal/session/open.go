package session

import (
	"context"
	"fmt"
	"log/slog"
)

// Open opens the store named by kind: memory, badger, postgres, or sqlite.
// Path locates badger and sqlite stores; dsn locates postgres.
func Open(ctx context.Context, kind, path, dsn string, log *slog.Logger) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemory(), nil
	case "badger":
		return OpenBadger(path, log)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	case "sqlite":
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown session store %q", kind)
	}
}
