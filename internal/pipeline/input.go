package pipeline

import (
	"strings"
	"time"

	"github.com/TobiSchelling/ComplaintRadar/internal/database"
	"github.com/TobiSchelling/ComplaintRadar/internal/dataset"
	"github.com/TobiSchelling/ComplaintRadar/internal/insight"
)

// PostInput is one post as accepted over the HTTP boundary or from a JSON
// file.
type PostInput struct {
	ID        any    `json:"id,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Votes     *int   `json:"votes,omitempty"`
	Comments  *int   `json:"comments,omitempty"`
}

// FromInputs builds the raw dataset for an analysis run. Absent bodies are
// stored as empty strings so joining never sees a missing value.
func FromInputs(posts []PostInput) *dataset.Dataset {
	d := dataset.New(dataset.ColID, dataset.ColTitle, dataset.ColBody, dataset.ColURL,
		dataset.ColTimestamp, dataset.ColVotes, dataset.ColComments)
	for i, p := range posts {
		id := p.ID
		if id == nil {
			id = i
		}
		d.AppendRow(dataset.Record{
			dataset.ColID:        id,
			dataset.ColTitle:     p.Title,
			dataset.ColBody:      p.Body,
			dataset.ColURL:       nilIfEmpty(p.URL),
			dataset.ColTimestamp: nilIfEmpty(p.Timestamp),
			dataset.ColVotes:     intOrNil(p.Votes),
			dataset.ColComments:  intOrNil(p.Comments),
		})
	}
	return d
}

// FromPosts converts stored posts into analysis input.
func FromPosts(posts []database.Post) []PostInput {
	out := make([]PostInput, len(posts))
	for i, p := range posts {
		out[i] = PostInput{
			ID:        p.ID,
			Title:     p.Title,
			Body:      deref(p.Body),
			URL:       p.URL,
			Timestamp: deref(p.PublishedAt),
			Votes:     p.Votes,
			Comments:  p.Comments,
		}
	}
	return out
}

// historyDataset turns stored history rows into the insight chain's
// History input.
func historyDataset(rows []database.HistoryRow) *dataset.Dataset {
	d := dataset.New(insight.ColDate, insight.ColCategory, insight.ColSentiment)
	for _, r := range rows {
		d.AppendRow(dataset.Record{
			insight.ColDate:      r.Date,
			insight.ColCategory:  r.Category,
			insight.ColSentiment: r.Sentiment,
		})
	}
	return d
}

// historyRows extracts one (day, domain, sentiment) observation per
// confirmed complaint, keyed by post URL. Posts without a usable timestamp
// count for today.
func historyRows(complaints *dataset.Dataset, today string) []database.HistoryRow {
	var rows []database.HistoryRow
	for i := 0; i < complaints.Len(); i++ {
		category, ok := complaints.String(i, dataset.ColDomain)
		if !ok {
			continue
		}
		s, ok := complaints.Float(i, dataset.ColSentiment)
		if !ok {
			continue
		}
		date := today
		if ts, ok := complaints.String(i, dataset.ColTimestamp); ok {
			if d, ok := dayOf(ts); ok {
				date = d
			}
		}
		key, _ := complaints.String(i, dataset.ColURL)
		rows = append(rows, database.HistoryRow{Date: date, Category: category, Sentiment: s, PostKey: key})
	}
	return rows
}

func dayOf(ts string) (string, bool) {
	ts = strings.TrimSpace(ts)
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC().Format(time.DateOnly), true
	}
	if len(ts) >= 10 {
		if _, err := time.Parse(time.DateOnly, ts[:10]); err == nil {
			return ts[:10], true
		}
	}
	return "", false
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
