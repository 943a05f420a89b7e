package database

import "encoding/json"

// Post is a collected social-media post.
type Post struct {
	ID          int64
	URL         string
	Title       string
	Body        *string
	Source      *string
	Author      *string
	PublishedAt *string
	Votes       *int
	Comments    *int
	BodyFetched bool
	CollectedAt *string
}

// Task status values.
const (
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// Task is the persisted state of a background analysis run.
type Task struct {
	ID        string          `json:"task_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *TaskError      `json:"error,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// TaskError is the failure payload of a task.
type TaskError struct {
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// HistoryRow is one day/category sentiment observation. Rows with a
// PostKey replace any earlier observation of the same post.
type HistoryRow struct {
	Date      string
	Category  string
	Sentiment float64
	PostKey   string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalPosts    int
	PostsWithBody int
	Tasks         int
	FailedTasks   int
	HistoryRows   int
	HistoryDays   int
}
