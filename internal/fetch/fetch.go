// Package fetch fills in the bodies of link posts by extracting the
// readable text of the page they point to.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/TobiSchelling/ComplaintRadar/internal/database"
)

const (
	minBodyChars = 100
	maxPageBytes = 4 << 20
)

// Store is the subset of the database the fetcher needs.
type Store interface {
	GetPostsNeedingFetch() ([]database.Post, error)
	UpdatePostBody(postID int64, body *string) error
	MarkFetchAttempted(postID int64) error
}

// Result holds the results of a body fetch run.
type Result struct {
	Fetched int `json:"fetched"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// BodyFetcher fetches post bodies via HTTP + readability extraction.
type BodyFetcher struct {
	store     Store
	client    *http.Client
	userAgent string
	log       *zap.Logger
}

// NewBodyFetcher creates a new body fetcher.
func NewBodyFetcher(store Store, timeout time.Duration, userAgent string, log *zap.Logger) *BodyFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BodyFetcher{
		store:     store,
		userAgent: userAgent,
		log:       log,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchMissingBodies fetches bodies for posts stored without one. After an
// HTTP error status the remaining posts of that host are skipped.
func (f *BodyFetcher) FetchMissingBodies(ctx context.Context) (*Result, error) {
	posts, err := f.store.GetPostsNeedingFetch()
	if err != nil {
		return nil, fmt.Errorf("listing posts needing fetch: %w", err)
	}

	result := &Result{}
	if len(posts) == 0 {
		f.log.Info("no posts need body fetching")
		return result, nil
	}

	failedHosts := make(map[string]struct{})
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		host := ""
		if u, err := url.Parse(post.URL); err == nil {
			host = strings.ToLower(u.Host)
		}

		if _, failed := failedHosts[host]; failed {
			f.store.MarkFetchAttempted(post.ID)
			result.Skipped++
			continue
		}

		body, err := f.fetchBody(ctx, post.URL)
		if err != nil {
			f.store.MarkFetchAttempted(post.ID)
			result.Failed++
			var he *httpError
			if errors.As(err, &he) && host != "" {
				failedHosts[host] = struct{}{}
				f.log.Warn("HTTP error, skipping remaining posts from host",
					zap.String("url", post.URL), zap.String("host", host), zap.Int("status", he.code))
			} else {
				f.log.Debug("body fetch failed", zap.String("url", post.URL), zap.Error(err))
			}
			continue
		}

		if body == "" {
			f.store.MarkFetchAttempted(post.ID)
			result.Failed++
			f.log.Debug("no extractable body", zap.String("url", post.URL))
			continue
		}

		if err := f.store.UpdatePostBody(post.ID, &body); err != nil {
			return result, fmt.Errorf("storing body for post %d: %w", post.ID, err)
		}
		result.Fetched++
	}

	f.log.Info("body fetch complete",
		zap.Int("fetched", result.Fetched),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (f *BodyFetcher) fetchBody(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), parsedURL)
	if err != nil {
		return "", err
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) > minBodyChars {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
