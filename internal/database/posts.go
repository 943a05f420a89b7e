package database

import (
	"database/sql"
	"strings"
)

const postColumns = `id, url, title, body, source, author, published_at, votes, comments, body_fetched, collected_at`

// InsertPost inserts a post. Returns the ID on success, 0 if the URL is
// already stored.
func (db *DB) InsertPost(p Post) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO posts (url, title, body, source, author, published_at, votes, comments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		p.URL, p.Title, p.Body, p.Source, p.Author, p.PublishedAt, p.Votes, p.Comments,
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// GetPostsBetween returns posts published within [start, end] (inclusive
// calendar days, YYYY-MM-DD), oldest first. Empty bounds are open.
func (db *DB) GetPostsBetween(start, end string) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE 1=1`
	var args []any
	if start != "" {
		query += " AND substr(published_at, 1, 10) >= ?"
		args = append(args, start)
	}
	if end != "" {
		query += " AND substr(published_at, 1, 10) <= ?"
		args = append(args, end)
	}
	query += " ORDER BY published_at, id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostsNeedingFetch returns posts with an empty body that haven't been
// fetched yet.
func (db *DB) GetPostsNeedingFetch() ([]Post, error) {
	rows, err := db.conn.Query(
		`SELECT ` + postColumns + ` FROM posts
		WHERE (body IS NULL OR body = '') AND body_fetched = 0
		ORDER BY collected_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// UpdatePostBody stores an extracted body and marks the post fetched.
func (db *DB) UpdatePostBody(postID int64, body *string) error {
	_, err := db.conn.Exec(
		"UPDATE posts SET body = ?, body_fetched = 1 WHERE id = ?",
		body, postID,
	)
	return err
}

// MarkFetchAttempted marks that we tried to fetch a body.
func (db *DB) MarkFetchAttempted(postID int64) error {
	_, err := db.conn.Exec("UPDATE posts SET body_fetched = 1 WHERE id = ?", postID)
	return err
}

// GetPostByID returns a single post, or nil when it does not exist.
func (db *DB) GetPostByID(postID int64) (*Post, error) {
	rows, err := db.conn.Query(`SELECT `+postColumns+` FROM posts WHERE id = ?`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	posts, err := scanPosts(rows)
	if err != nil || len(posts) == 0 {
		return nil, err
	}
	return &posts[0], nil
}

// Sources returns the distinct post sources, sorted.
func (db *DB) Sources() ([]string, error) {
	rows, err := db.conn.Query("SELECT DISTINCT source FROM posts WHERE source IS NOT NULL ORDER BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, rows.Err()
}

func scanPosts(rows *sql.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		var p Post
		var fetched int
		var votes, comments sql.NullInt64
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Body, &p.Source, &p.Author,
			&p.PublishedAt, &votes, &comments, &fetched, &p.CollectedAt); err != nil {
			return nil, err
		}
		p.BodyFetched = fetched != 0
		if votes.Valid {
			v := int(votes.Int64)
			p.Votes = &v
		}
		if comments.Valid {
			c := int(comments.Int64)
			p.Comments = &c
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
