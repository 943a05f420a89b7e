package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate applies every migration newer than the stored user_version.
func migrate(conn *sql.DB, log *zap.Logger) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	target := latestVersion()
	if current >= target {
		return nil
	}
	log.Info("upgrading schema", zap.Int("from", current), zap.Int("to", target))

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		log.Debug("applying migration", zap.Int("version", m.Version), zap.String("description", m.Description))
		if err := applyMigration(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// modernc/sqlite ignores user_version set inside a transaction; the DDL
	// is idempotent so a crash before this line re-runs the migration.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
