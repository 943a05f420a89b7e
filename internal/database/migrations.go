package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "posts and tasks",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    body TEXT,
    source TEXT,
    author TEXT,
    published_at TEXT,
    votes INTEGER,
    comments INTEGER,
    body_fetched INTEGER DEFAULT 0,
    collected_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL CHECK(status IN ('processing', 'completed', 'failed')),
    result TEXT,
    error TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "sentiment history",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sentiment_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    category TEXT NOT NULL,
    sentiment REAL NOT NULL,
    task_id TEXT,
    recorded_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_history_date ON sentiment_history(date);
CREATE INDEX IF NOT EXISTS idx_history_category ON sentiment_history(category);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "history keyed by post",
		Up: func(tx *sql.Tx) error {
			has, err := hasColumn(tx, "sentiment_history", "post_key")
			if err != nil {
				return err
			}
			if !has {
				if _, err := tx.Exec("ALTER TABLE sentiment_history ADD COLUMN post_key TEXT"); err != nil {
					return err
				}
			}
			_, err = tx.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_history_post ON sentiment_history(post_key)")
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
