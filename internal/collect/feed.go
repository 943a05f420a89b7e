package collect

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const maxPerFeed = 50

// Entry is one post found at a source.
type Entry struct {
	URL         string
	Title       string
	Body        string
	Author      string
	PublishedAt string // RFC3339 or empty
	Source      string
	Votes       *int
	Comments    *int
}

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
	log    *zap.Logger
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(feeds []FeedConfig, userAgent string, log *zap.Logger) *FeedParser {
	p := gofeed.NewParser()
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedParser{feeds: feeds, parser: p, log: log}
}

// ParseAll parses all configured feeds and returns entries published after
// cutoff. A feed that fails is logged and skipped.
func (fp *FeedParser) ParseAll(ctx context.Context, cutoff time.Time) []Entry {
	var all []Entry
	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		entries, err := fp.parseFeed(ctx, fc.URL, name, cutoff)
		if err != nil {
			fp.log.Warn("failed to parse feed", zap.String("url", fc.URL), zap.Error(err))
			continue
		}
		all = append(all, entries...)
		fp.log.Info("parsed feed", zap.String("source", name), zap.Int("entries", len(entries)))
	}
	return all
}

func (fp *FeedParser) parseFeed(ctx context.Context, feedURL, sourceName string, cutoff time.Time) ([]Entry, error) {
	feed, err := fp.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, item := range feed.Items {
		if len(entries) >= maxPerFeed {
			break
		}
		entry := parseItem(item, sourceName)
		if entry == nil {
			continue
		}
		if isWithinWindow(entry.PublishedAt, cutoff) {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

func parseItem(item *gofeed.Item, source string) *Entry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	var published string
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC().Format(time.RFC3339)
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC().Format(time.RFC3339)
	}

	var body string
	if item.Content != "" {
		body = stripHTML(item.Content)
	} else if item.Description != "" {
		body = stripHTML(item.Description)
	}

	var author string
	if item.Author != nil {
		author = strings.TrimPrefix(item.Author.Name, "/u/")
	}

	return &Entry{
		URL:         itemURL,
		Title:       title,
		Body:        body,
		Author:      author,
		PublishedAt: published,
		Source:      source,
	}
}

func isWithinWindow(published string, cutoff time.Time) bool {
	if published == "" {
		return true // benefit of the doubt
	}
	pub, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return true
	}
	return !pub.Before(cutoff)
}

// stripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Reddit feed bodies also carry a "submitted by" footer, which
// is dropped.
func stripHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if i := strings.Index(text, "submitted by /u/"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	if parts := strings.Split(strings.Trim(u.Path, "/"), "/"); len(parts) >= 2 && parts[0] == "r" {
		return "r/" + parts[1]
	}

	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "old.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
