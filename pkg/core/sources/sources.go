// Package sources fetches what Poppy can learn about a reference link: page title and
// description, YouTube transcripts and display titles.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/poppy/pkg/core/types"
)

const (
	// BotUserAgent is sent when scraping links for reply context.
	BotUserAgent = "Mozilla/5.0 (compatible; PoppyAI-OnboardingBot/1.0; +https://example.com)"

	// MetaUserAgent is sent when resolving display titles.
	MetaUserAgent = "Mozilla/5.0 (compatible; PoppyAI-LinkMeta/1.0; +https://poppy.ai)"

	DefaultNoEmbedURL   = "https://noembed.com/embed"
	DefaultTimedTextURL = "https://video.google.com/timedtext"

	// TranscriptLimit caps transcript length in runes.
	TranscriptLimit = 6000

	maxPageBytes  = 2 << 20
	maxFetchers   = 4
	summaryPrefix = "summary:"
	titlePrefix   = "title:"
)

// Cache stores fetched metadata between requests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Config struct {
	Timeout      time.Duration
	CacheTTL     time.Duration
	NoEmbedURL   string
	TimedTextURL string
}

type Dependencies struct {
	HTTPClient *http.Client
	Cache      Cache
	Logger     *slog.Logger
}

// Client fetches link metadata.
type Client struct {
	cfg    Config
	http   *http.Client
	cache  Cache
	logger *slog.Logger
}

func New(cfg Config, deps Dependencies) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.NoEmbedURL == "" {
		cfg.NoEmbedURL = DefaultNoEmbedURL
	}
	if cfg.TimedTextURL == "" {
		cfg.TimedTextURL = DefaultTimedTextURL
	}
	hc := deps.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: hc, cache: deps.Cache, logger: logger}
}

// Summarize fetches summaries for urls concurrently, adding transcripts for YouTube links.
// The result has one entry per url, in order; failed fetches carry only the URL.
func (c *Client) Summarize(ctx context.Context, urls []string) []types.LinkSummary {
	out := make([]types.LinkSummary, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetchers)
	for i, u := range urls {
		g.Go(func() error {
			s := c.FetchLinkSummary(gctx, u)
			if IsYouTubeURL(u) && s.Transcript == "" {
				transcript, err := c.FetchTranscript(gctx, u)
				if err != nil {
					c.logger.Warn("youtube transcript unavailable", "url", u, "error", err)
				}
				s.Transcript = transcript
			}
			out[i] = s
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// FetchLinkSummary returns the page title (og:title, else <title>) and description
// (og:description, else meta description). It never fails; errors leave only the URL set.
func (c *Client) FetchLinkSummary(ctx context.Context, rawURL string) types.LinkSummary {
	if s, ok := c.cachedSummary(ctx, rawURL); ok {
		return s
	}

	s := types.LinkSummary{URL: rawURL}
	body, err := c.get(ctx, rawURL, BotUserAgent)
	if err != nil {
		c.logger.Warn("link summary fetch failed", "url", rawURL, "error", err)
		return s
	}
	defer body.Close()

	meta := parsePage(io.LimitReader(body, maxPageBytes))
	s.Title = firstNonEmpty(meta.ogTitle, meta.title)
	s.Description = firstNonEmpty(meta.ogDescription, meta.description)
	c.store(ctx, summaryPrefix+rawURL, s)
	return s
}

// ResolveTitle returns a display title for a link: the noembed title when available, else
// og:title, twitter:title or <title>. An empty string means no title was found.
func (c *Client) ResolveTitle(ctx context.Context, rawURL string) (string, error) {
	if c.cache != nil {
		if b, ok, err := c.cache.Get(ctx, titlePrefix+rawURL); err == nil && ok {
			return string(b), nil
		}
	}

	title := c.noEmbedTitle(ctx, rawURL)
	if title == "" {
		body, err := c.get(ctx, rawURL, MetaUserAgent)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Debug("title fetch failed", "url", rawURL, "error", err)
			return "", nil
		}
		meta := parsePage(io.LimitReader(body, maxPageBytes))
		body.Close()
		title = firstNonEmpty(meta.ogTitle, meta.twitterTitle, meta.title)
	}

	if title != "" && c.cache != nil {
		if err := c.cache.Set(ctx, titlePrefix+rawURL, []byte(title), c.cfg.CacheTTL); err != nil {
			c.logger.Warn("link cache write failed", "error", err)
		}
	}
	return title, nil
}

type noEmbedResponse struct {
	Title string `json:"title"`
}

func (c *Client) noEmbedTitle(ctx context.Context, rawURL string) string {
	endpoint := c.cfg.NoEmbedURL + "?url=" + url.QueryEscape(rawURL)
	body, err := c.get(ctx, endpoint, MetaUserAgent)
	if err != nil {
		return ""
	}
	defer body.Close()

	var resp noEmbedResponse
	if err := json.NewDecoder(io.LimitReader(body, maxPageBytes)).Decode(&resp); err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Title)
}

func (c *Client) get(ctx context.Context, rawURL, userAgent string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) cachedSummary(ctx context.Context, rawURL string) (types.LinkSummary, bool) {
	if c.cache == nil {
		return types.LinkSummary{}, false
	}
	b, ok, err := c.cache.Get(ctx, summaryPrefix+rawURL)
	if err != nil {
		c.logger.Warn("link cache read failed", "error", err)
		return types.LinkSummary{}, false
	}
	if !ok {
		return types.LinkSummary{}, false
	}
	var s types.LinkSummary
	if err := json.Unmarshal(b, &s); err != nil {
		return types.LinkSummary{}, false
	}
	return s, true
}

func (c *Client) store(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, b, c.cfg.CacheTTL); err != nil {
		c.logger.Warn("link cache write failed", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
