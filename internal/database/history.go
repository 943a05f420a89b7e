package database

import (
	"database/sql"
	"fmt"
)

// AppendHistory stores one run's sentiment observations. An observation
// whose post is already recorded replaces the stored one, so re-analysing
// overlapping periods does not count a post twice.
func (db *DB) AppendHistory(taskID string, rows []HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO sentiment_history (date, category, sentiment, task_id, post_key)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(post_key) DO UPDATE SET
			date = excluded.date,
			category = excluded.category,
			sentiment = excluded.sentiment,
			task_id = excluded.task_id,
			recorded_at = datetime('now')`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	var task *string
	if taskID != "" {
		task = &taskID
	}
	for _, r := range rows {
		var key *string
		if r.PostKey != "" {
			key = &r.PostKey
		}
		if _, err := stmt.Exec(r.Date, r.Category, r.Sentiment, task, key); err != nil {
			tx.Rollback()
			return fmt.Errorf("appending history: %w", err)
		}
	}
	return tx.Commit()
}

// GetHistory returns observations on or after since (YYYY-MM-DD, empty for
// all), ordered by date.
func (db *DB) GetHistory(since string) ([]HistoryRow, error) {
	rows, err := db.conn.Query(
		"SELECT date, category, sentiment, post_key FROM sentiment_history WHERE date >= ? ORDER BY date, id",
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var key sql.NullString
		if err := rows.Scan(&r.Date, &r.Category, &r.Sentiment, &key); err != nil {
			return nil, err
		}
		r.PostKey = key.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// CategoryTrend is the mean sentiment of one category on one day.
type CategoryTrend struct {
	Date     string
	Category string
	Mean     float64
	Count    int
}

// GetDailyTrend aggregates history per day and category for the history
// command.
func (db *DB) GetDailyTrend(since string) ([]CategoryTrend, error) {
	rows, err := db.conn.Query(
		`SELECT date, category, AVG(sentiment), COUNT(*) FROM sentiment_history
		WHERE date >= ? GROUP BY date, category ORDER BY date, category`, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryTrend
	for rows.Next() {
		var c CategoryTrend
		if err := rows.Scan(&c.Date, &c.Category, &c.Mean, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
