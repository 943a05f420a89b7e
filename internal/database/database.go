package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
	log  *zap.Logger
}

// Open creates or opens a SQLite database at the given path and brings
// its schema up to date.
func Open(dbPath string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Serialize writers from background tasks.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath, log: log}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	queries := []struct {
		dst   *int
		query string
	}{
		{&s.TotalPosts, "SELECT COUNT(*) FROM posts"},
		{&s.PostsWithBody, "SELECT COUNT(*) FROM posts WHERE body IS NOT NULL AND body != ''"},
		{&s.Tasks, "SELECT COUNT(*) FROM tasks"},
		{&s.FailedTasks, "SELECT COUNT(*) FROM tasks WHERE status = 'failed'"},
		{&s.HistoryRows, "SELECT COUNT(*) FROM sentiment_history"},
		{&s.HistoryDays, "SELECT COUNT(DISTINCT date) FROM sentiment_history"},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	return &s, nil
}
