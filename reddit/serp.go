package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/hazyhaar/redveille/discovery"
	"github.com/hazyhaar/redveille/safeurl"
)

// SERPConfig configures the search-engine-results proxy used for community
// discovery.
type SERPConfig struct {
	Endpoint     string        // Proxy API endpoint. Default: Bright Data SERP API.
	APIKey       string        // Bearer token for the proxy.
	Provider     string        // Default: bright_data.
	SearchEngine string        // Default: google.
	Country      string        // Default: us.
	Language     string        // Default: en.
	Parse        bool          // Request parsed JSON results. Always forced on.
	MaxResults   int           // Candidate cap per search. Default: 20.
	Timeout      time.Duration // HTTP timeout. Default: 30s.
	Attempts     uint          // Retry attempts. Default: 3.
	Delay        time.Duration // Initial retry delay. Default: 1s.
	MaxDelay     time.Duration // Retry delay ceiling. Default: 10s.
	MaxBytes     int64         // Max response body size. Default: 2MB.
}

func (c *SERPConfig) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://api.brightdata.com/serp/req"
	}
	if c.Provider == "" {
		c.Provider = "bright_data"
	}
	if c.SearchEngine == "" {
		c.SearchEngine = "google"
	}
	if c.Country == "" {
		c.Country = "us"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	c.Parse = true
	if c.MaxResults <= 0 {
		c.MaxResults = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.Delay <= 0 {
		c.Delay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 2 * 1024 * 1024
	}
}

// Searcher finds candidate communities by running a site-restricted web
// search through a SERP proxy. It implements discovery.CommunitySearcher.
type Searcher struct {
	config SERPConfig
	client *http.Client
	api    *Client // optional about.json enrichment
	logger *slog.Logger
}

// NewSearcher creates a Searcher. api may be nil, in which case candidates
// are returned with zero subscriber counts and the SERP snippet as
// description.
func NewSearcher(cfg SERPConfig, api *Client, logger *slog.Logger) *Searcher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		api:    api,
		logger: logger,
	}
}

// serpRequest is the body sent to the SERP proxy.
type serpRequest struct {
	Query        string `json:"query"`
	SearchEngine string `json:"search_engine"`
	Country      string `json:"country"`
	Language     string `json:"language"`
	Parse        bool   `json:"parse"`
}

// serpResponse is the subset of a parsed SERP result we consume.
type serpResponse struct {
	Organic []struct {
		Link        string `json:"link"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"organic"`
}

var subredditURLRe = regexp.MustCompile(`reddit\.com/r/([A-Za-z0-9_]+)`)

// SearchCommunities searches for subreddits relevant to the topics.
// Duplicate subreddits across results collapse to the first occurrence.
func (s *Searcher) SearchCommunities(ctx context.Context, topics []string) ([]discovery.Candidate, error) {
	query := buildQuery(topics)
	if query == "" {
		return nil, fmt.Errorf("search communities: no topics")
	}

	res, err := s.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search communities: %w", err)
	}

	seen := make(map[string]bool)
	var out []discovery.Candidate
	for _, r := range res.Organic {
		m := subredditURLRe.FindStringSubmatch(r.Link)
		if m == nil {
			continue
		}
		name := strings.ToLower(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true

		cand := discovery.Candidate{
			Name:        "r/" + name,
			Description: r.Description,
			URL:         "https://www.reddit.com/r/" + name,
		}
		s.enrich(ctx, &cand, name)
		out = append(out, cand)
		if len(out) >= s.config.MaxResults {
			break
		}
	}
	s.logger.Info("serp: community search done",
		"query", query, "results", len(res.Organic), "candidates", len(out))
	return out, nil
}

// enrich fills subscriber count and description from about.json. Failures
// leave the candidate with SERP-derived values only.
func (s *Searcher) enrich(ctx context.Context, cand *discovery.Candidate, name string) {
	if s.api == nil {
		return
	}
	about, err := s.api.CommunityAbout(ctx, name)
	if err != nil {
		s.logger.Warn("serp: candidate enrichment failed", "community", name, "error", err)
		return
	}
	cand.MembersCount = about.Subscribers
	if about.PublicDescription != "" {
		cand.Description = about.PublicDescription
	}
}

// buildQuery joins topics into one site-restricted search query.
func buildQuery(topics []string) string {
	var kept []string
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return "site:reddit.com " + strings.Join(kept, " ")
}

func (s *Searcher) search(ctx context.Context, query string) (*serpResponse, error) {
	body, err := json.Marshal(serpRequest{
		Query:        query,
		SearchEngine: s.config.SearchEngine,
		Country:      s.config.Country,
		Language:     s.config.Language,
		Parse:        s.config.Parse,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out serpResponse
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("new request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			if s.config.APIKey != "" {
				req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
			}

			resp, err := s.client.Do(req)
			if err != nil {
				return fmt.Errorf("http post: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return retry.Unrecoverable(&statusError{code: resp.StatusCode})
			}
			if resp.StatusCode != http.StatusOK {
				return &statusError{code: resp.StatusCode}
			}

			raw, err := safeurl.LimitedReadAll(resp.Body, s.config.MaxBytes)
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			if err := json.Unmarshal(raw, &out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			return nil
		},
		retry.Attempts(s.config.Attempts),
		retry.Delay(s.config.Delay),
		retry.MaxDelay(s.config.MaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("serp: retrying search", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
