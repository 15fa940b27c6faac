// Package fetch pulls items from configured sources. RSS and Atom feeds are
// parsed directly; HTML index sources are crawled one level deep. All traffic
// goes through robots.txt checks, per-domain rate limits and the layered
// fetch cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkravets/tectonic/internal/cache"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/util"
	"github.com/mkravets/tectonic/internal/worker"
)

// Fetcher retrieves and normalizes source content
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxItems   int

	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	store      cache.Cache // nil disables caching
	cacheTTL   time.Duration
	classifier *CredibilityClassifier
}

// Options configures a Fetcher
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	MaxItems     int

	// Per-domain politeness
	RequestsPerSecond float64
	Burst             int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string

	Cache    cache.Cache
	CacheTTL time.Duration

	Classifier *CredibilityClassifier
}

// New creates a fetcher
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2_000_000
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 20
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.Classifier == nil {
		opts.Classifier = NewCredibilityClassifier(nil, nil)
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent:  opts.UserAgent,
		maxBytes:   opts.MaxBodyBytes,
		maxItems:   opts.MaxItems,
		robots:     util.NewRobotsChecker(opts.UserAgent, opts.Timeout),
		limiter:    worker.NewLimiter(opts.RequestsPerSecond, opts.Burst),
		store:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		classifier: opts.Classifier,
	}
}

// Classifier exposes the credibility classifier for source registration
func (f *Fetcher) Classifier() *CredibilityClassifier {
	return f.classifier
}

// FetchSource retrieves the source's items according to its kind
func (f *Fetcher) FetchSource(ctx context.Context, source model.Source) ([]model.FetchedItem, error) {
	switch source.Kind {
	case model.SourceKindRSS:
		return f.fetchFeed(ctx, source)
	case model.SourceKindHTML:
		return f.fetchIndex(ctx, source)
	default:
		return nil, fmt.Errorf("unknown source kind %q for %s", source.Kind, source.Name)
	}
}

func (f *Fetcher) fetchFeed(ctx context.Context, source model.Source) ([]model.FetchedItem, error) {
	data, err := f.get(ctx, source.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", source.Name, err)
	}

	items, err := ParseFeed(data, f.maxItems)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", source.Name, err)
	}
	return items, nil
}

// fetchIndex crawls an HTML index page one level deep: collect same-host
// article links, then fetch each article. Individual article failures are
// skipped; the source fails only when the index itself cannot be read.
func (f *Fetcher) fetchIndex(ctx context.Context, source model.Source) ([]model.FetchedItem, error) {
	data, err := f.get(ctx, source.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", source.Name, err)
	}

	links, err := IndexLinks(data, source.URL, f.maxItems)
	if err != nil {
		return nil, fmt.Errorf("parse index %s: %w", source.Name, err)
	}

	var items []model.FetchedItem
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		body, err := f.get(ctx, link)
		if err != nil {
			continue
		}
		item, err := ParseArticle(body, link)
		if err != nil || item.Title == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

const fetchMaxRetries = 3

// fetchSleepFunc is the sleep used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// get performs one polite, cached GET with retries on transient failures
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	key := cache.Key(rawURL)
	if f.store != nil {
		if data, ok := f.store.Get(key); ok {
			return data, nil
		}
	}

	allowed, crawlDelay, err := f.robots.CanFetch(ctx, rawURL)
	if err == nil && !allowed {
		return nil, fmt.Errorf("disallowed by robots.txt: %s", rawURL)
	}

	if err := f.limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
		return nil, err
	}

	var body []byte
	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		body, err = f.getOnce(ctx, rawURL)
		if err == nil || !isRetryableFetchError(err) {
			break
		}
		if attempt < fetchMaxRetries-1 {
			fetchSleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	if err != nil {
		return nil, err
	}

	if f.store != nil {
		_ = f.store.Set(key, body, f.cacheTTL)
	}
	return body, nil
}

func (f *Fetcher) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml,application/atom+xml,text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// isRetryableFetchError reports whether the failure is worth another attempt:
// 5xx, 429, and transient network errors
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, code := range []string{"status: 500", "status: 502", "status: 503", "status: 504", "status: 429"} {
		if strings.Contains(s, code) {
			return true
		}
	}
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout")
}
