package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// CreateTask records a new task in the processing state.
func (db *DB) CreateTask(id string) error {
	_, err := db.conn.Exec("INSERT INTO tasks (id, status) VALUES (?, ?)", id, TaskProcessing)
	return err
}

// CompleteTask stores the task's result blob.
func (db *DB) CompleteTask(id string, result any) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding task result: %w", err)
	}
	return db.finishTask(id, TaskCompleted, string(blob), nil)
}

// FailTask stores the task's error blob.
func (db *DB) FailTask(id string, taskErr TaskError) error {
	blob, err := json.Marshal(taskErr)
	if err != nil {
		return fmt.Errorf("encoding task error: %w", err)
	}
	s := string(blob)
	return db.finishTask(id, TaskFailed, "", &s)
}

func (db *DB) finishTask(id, status, result string, errBlob *string) error {
	var res *string
	if result != "" {
		res = &result
	}
	r, err := db.conn.Exec(
		`UPDATE tasks SET status = ?, result = ?, error = ?, updated_at = datetime('now')
		WHERE id = ?`, status, res, errBlob, id,
	)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

// GetTask returns a task by id, or nil when it does not exist.
func (db *DB) GetTask(id string) (*Task, error) {
	var t Task
	var result, errBlob sql.NullString
	err := db.conn.QueryRow(
		"SELECT id, status, result, error, created_at, updated_at FROM tasks WHERE id = ?", id,
	).Scan(&t.ID, &t.Status, &result, &errBlob, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	if errBlob.Valid {
		var te TaskError
		if err := json.Unmarshal([]byte(errBlob.String), &te); err != nil {
			return nil, fmt.Errorf("decoding task error: %w", err)
		}
		t.Error = &te
	}
	return &t, nil
}
