package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// SQL is a Store backed by a Postgres or SQLite database.
type SQL struct {
	db      *sql.DB
	dialect string
}

const schema = `CREATE TABLE IF NOT EXISTS scribble_sessions (
	id TEXT PRIMARY KEY,
	vars TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// OpenPostgres connects to Postgres through pgx.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return newSQL(ctx, db, "postgres")
}

// OpenSQLite opens or creates a SQLite database file. The special path
// ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSQL(ctx, db, "sqlite")
}

func newSQL(ctx context.Context, db *sql.DB, dialect string) (*SQL, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sessions table: %w", err)
	}
	return &SQL{db: db, dialect: dialect}, nil
}

// q rewrites $n placeholders for the dialect.
func (s *SQL) q(query string) string {
	if s.dialect == "postgres" {
		return query
	}
	for i := 9; i > 0; i-- {
		query = strings.ReplaceAll(query, "$"+strconv.Itoa(i), "?")
	}
	return query
}

func (s *SQL) Load(ctx context.Context, id string) (map[string]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT vars FROM scribble_sessions WHERE id = $1`), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var vars map[string]string
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return vars, nil
}

func (s *SQL) Save(ctx context.Context, id string, vars map[string]string) error {
	b, err := json.Marshal(vars)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO scribble_sessions (id, vars, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET vars = excluded.vars, updated_at = excluded.updated_at
	`), id, string(b), time.Now().UTC())
	return err
}

func (s *SQL) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM scribble_sessions WHERE id = $1`), id)
	return err
}

func (s *SQL) Close() error {
	return s.db.Close()
}
