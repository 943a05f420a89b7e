// Package collect gathers posts from feeds and subreddit listings into the
// posts table.
package collect

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/config"
	"github.com/TobiSchelling/ComplaintRadar/internal/database"
)

// Store persists collected posts. InsertPost returns 0 for a duplicate URL.
type Store interface {
	InsertPost(p database.Post) (int64, error)
}

// Result holds the results of a collection run.
type Result struct {
	TotalFound int            `json:"total_found"`
	NewPosts   int            `json:"new_posts"`
	Duplicates int            `json:"duplicates"`
	Failed     int            `json:"failed"`
	Sources    map[string]int `json:"sources"`
}

// Collector orchestrates post collection from feeds and subreddits.
type Collector struct {
	store      Store
	feedParser *FeedParser
	reddit     *RedditClient
	subreddits []string
	daysBack   int
	log        *zap.Logger
}

// NewCollector creates a collector for the configured sources.
func NewCollector(cfg *config.Config, store Store, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Collector{
		store:    store,
		daysBack: cfg.Sources.DaysBack,
		log:      log,
	}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name}
		}
		c.feedParser = NewFeedParser(feeds, cfg.Sources.UserAgent, log)
	}

	if len(cfg.Sources.Subreddits) > 0 {
		c.reddit = NewRedditClient(cfg.Sources.RedditURL, cfg.Sources.UserAgent, log)
		c.subreddits = cfg.Sources.Subreddits
	}

	return c
}

// Collect collects posts from all configured sources. Failing sources are
// logged and skipped; only a cancelled context aborts the run.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	r := &Result{Sources: make(map[string]int)}
	cutoff := time.Now().AddDate(0, 0, -c.daysBack)

	var entries []Entry
	if c.feedParser != nil {
		c.log.Info("collecting from feeds")
		entries = append(entries, c.feedParser.ParseAll(ctx, cutoff)...)
	}
	for _, sub := range c.subreddits {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		found, err := c.reddit.Listing(ctx, sub, cutoff, 100)
		if err != nil {
			c.log.Warn("subreddit listing failed", zap.String("subreddit", sub), zap.Error(err))
			continue
		}
		entries = append(entries, found...)
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}

	r.TotalFound = len(entries)
	for _, e := range entries {
		id, err := c.store.InsertPost(toPost(e))
		switch {
		case err != nil:
			c.log.Warn("storing post failed", zap.String("url", e.URL), zap.Error(err))
			r.Failed++
		case id > 0:
			r.NewPosts++
			r.Sources[e.Source]++
		default:
			r.Duplicates++
		}
	}

	c.log.Info("collection complete",
		zap.Int("found", r.TotalFound),
		zap.Int("new", r.NewPosts),
		zap.Int("duplicates", r.Duplicates))
	return r, nil
}

func toPost(e Entry) database.Post {
	return database.Post{
		URL:         e.URL,
		Title:       e.Title,
		Body:        optional(e.Body),
		Source:      optional(e.Source),
		Author:      optional(e.Author),
		PublishedAt: optional(e.PublishedAt),
		Votes:       e.Votes,
		Comments:    e.Comments,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
