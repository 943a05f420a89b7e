package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RedditClient reads subreddit listings, which carry the vote and comment
// counts that feeds leave out.
type RedditClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
	log       *zap.Logger
}

// NewRedditClient creates a listing client rooted at baseURL.
func NewRedditClient(baseURL, userAgent string, log *zap.Logger) *RedditClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedditClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string  `json:"title"`
				SelfText    string  `json:"selftext"`
				Author      string  `json:"author"`
				Permalink   string  `json:"permalink"`
				URL         string  `json:"url"`
				CreatedUTC  float64 `json:"created_utc"`
				Ups         int     `json:"ups"`
				NumComments int     `json:"num_comments"`
				Stickied    bool    `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Listing fetches the newest posts of a subreddit published after cutoff.
func (c *RedditClient) Listing(ctx context.Context, subreddit string, cutoff time.Time, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	params := url.Values{"limit": {fmt.Sprintf("%d", limit)}, "raw_json": {"1"}}
	endpoint := fmt.Sprintf("%s/r/%s/new.json?%s", c.baseURL, url.PathEscape(subreddit), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s: HTTP %d", subreddit, resp.StatusCode)
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("decoding reddit listing: %w", err)
	}

	source := "r/" + subreddit
	var entries []Entry
	for _, child := range l.Data.Children {
		p := child.Data
		if p.Stickied || strings.TrimSpace(p.Title) == "" {
			continue
		}
		if p.SelfText == "[removed]" || p.SelfText == "[deleted]" {
			p.SelfText = ""
		}
		created := time.Unix(int64(p.CreatedUTC), 0).UTC()
		if created.Before(cutoff) {
			continue
		}
		link := p.URL
		if p.Permalink != "" {
			link = c.baseURL + p.Permalink
		}
		if link == "" {
			continue
		}
		votes, comments := p.Ups, p.NumComments
		entries = append(entries, Entry{
			URL:         link,
			Title:       strings.TrimSpace(p.Title),
			Body:        strings.TrimSpace(p.SelfText),
			Author:      p.Author,
			PublishedAt: created.Format(time.RFC3339),
			Source:      source,
			Votes:       &votes,
			Comments:    &comments,
		})
	}

	c.log.Info("fetched subreddit listing", zap.String("source", source), zap.Int("posts", len(entries)))
	return entries, nil
}
