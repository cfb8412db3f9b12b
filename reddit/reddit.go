// Package reddit talks to Reddit's public JSON API and a SERP proxy to
// discover communities and fetch their recent posts.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/hazyhaar/redveille/discovery"
	"github.com/hazyhaar/redveille/safeurl"
)

// Config configures the JSON API client.
type Config struct {
	BaseURL   string        // Default: https://www.reddit.com
	UserAgent string        // Sent with every request.
	Timeout   time.Duration // HTTP timeout. Default: 15s.
	MaxPosts  int           // Listing page size. Default: 25.
	Attempts  uint          // Retry attempts per request. Default: 4.
	Delay     time.Duration // Initial retry delay. Default: 500ms.
	MaxDelay  time.Duration // Retry delay ceiling. Default: 15s.
	MaxBytes  int64         // Max response body size. Default: 2MB.
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.reddit.com"
	}
	if c.UserAgent == "" {
		c.UserAgent = "redveille/1.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxPosts <= 0 {
		c.MaxPosts = 25
	}
	if c.Attempts == 0 {
		c.Attempts = 4
	}
	if c.Delay <= 0 {
		c.Delay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 * 1024 * 1024
	}
}

// Client fetches community metadata and post listings from the Reddit JSON
// API. It implements discovery.PostFetcher.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// About holds the subset of r/<name>/about.json used for candidate
// enrichment.
type About struct {
	Subscribers       int64
	PublicDescription string
}

// statusError marks HTTP statuses that should not be retried.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("http %d", e.code) }

func permanent(code int) bool {
	return code == http.StatusNotFound || code == http.StatusForbidden || code == http.StatusGone
}

// NormalizeCommunity strips the r/ prefix and surrounding junk from a
// community name, returning the bare subreddit name.
func NormalizeCommunity(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return strings.TrimSuffix(name, "/")
}

// CommunityAbout fetches r/<name>/about.json. Callers enriching candidates
// should degrade to zero values on error rather than fail discovery.
func (c *Client) CommunityAbout(ctx context.Context, name string) (*About, error) {
	var out struct {
		Data struct {
			Subscribers       int64  `json:"subscribers"`
			PublicDescription string `json:"public_description"`
		} `json:"data"`
	}
	url := fmt.Sprintf("%s/r/%s/about.json", c.config.BaseURL, NormalizeCommunity(name))
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("community about: %w", err)
	}
	return &About{
		Subscribers:       out.Data.Subscribers,
		PublicDescription: out.Data.PublicDescription,
	}, nil
}

// FetchPosts retrieves the newest posts for a community from
// r/<name>/new.json. Posts missing an id or title are dropped.
func (c *Client) FetchPosts(ctx context.Context, communityName string) ([]discovery.RawPost, error) {
	name := NormalizeCommunity(communityName)
	if name == "" {
		return nil, fmt.Errorf("fetch posts: empty community name")
	}

	var out listing
	url := fmt.Sprintf("%s/r/%s/new.json?limit=%d", c.config.BaseURL, name, c.config.MaxPosts)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("fetch posts r/%s: %w", name, err)
	}

	posts := make([]discovery.RawPost, 0, len(out.Data.Children))
	for _, child := range out.Data.Children {
		p, ok := parsePost(&child.Data)
		if !ok {
			continue
		}
		posts = append(posts, p)
	}
	c.logger.Debug("reddit: fetched posts",
		"community", name, "listed", len(out.Data.Children), "valid", len(posts))
	return posts, nil
}

// getJSON performs a GET with retry and decodes the response body into v.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("new request: %w", err))
			}
			req.Header.Set("User-Agent", c.config.UserAgent)
			req.Header.Set("Accept", "application/json")

			resp, err := c.client.Do(req)
			if err != nil {
				return fmt.Errorf("http get: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				serr := &statusError{code: resp.StatusCode}
				if permanent(resp.StatusCode) {
					return retry.Unrecoverable(serr)
				}
				return serr
			}

			body, err := safeurl.LimitedReadAll(resp.Body, c.config.MaxBytes)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			if err := json.Unmarshal(body, v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Attempts(c.config.Attempts),
		retry.Delay(c.config.Delay),
		retry.MaxDelay(c.config.MaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("reddit: retrying request", "attempt", n, "url", url, "error", err)
		}),
	)
}
