// Package fetcher implements the process-wide rate-gated HTTP dispatcher
// that backs graph.Fetcher. One Fetcher instance serves every project:
// the rate-gate table is shared process-wide, not per engine.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pixlieai/graphengine/pkg/graph"
)

// userAgent is the fixed identification string sent with every request.
const userAgent = "graphengine bot (+https://github.com/pixlieai/graphengine)"

// requestTimeout bounds total request time, including connection setup.
const requestTimeout = 2 * time.Second

// minInterval is the minimum gap enforced between two dispatches to the
// same domain, and separately between two dispatches to the same URL.
const minInterval = 2 * time.Second

// ErrRateLimited is returned when a request is rejected by the domain or
// URL gate instead of being dispatched.
var ErrRateLimited = errors.New("fetcher: rate limited")

// Fetcher dispatches HTTP requests on behalf of every project's engine,
// enforcing a 2-second minimum gap per domain and per URL.
type Fetcher struct {
	client *http.Client
	log    *log.Logger

	mu            sync.Mutex
	domainLimiter map[string]*rate.Limiter
	urlLimiter    map[string]*rate.Limiter
}

// New constructs a Fetcher with its own http.Client bounded by
// requestTimeout and configured to follow redirects (the default
// net/http policy already does this).
func New() *Fetcher {
	return &Fetcher{
		client:        &http.Client{Timeout: requestTimeout},
		log:           log.New(os.Stderr, "[fetcher] ", log.LstdFlags),
		domainLimiter: make(map[string]*rate.Limiter),
		urlLimiter:    make(map[string]*rate.Limiter),
	}
}

// limiterFor lazily creates a one-permit-per-minInterval limiter for key
// within the given map, seeded so the first request for a brand new
// domain or URL is always allowed immediately.
func limiterFor(m map[string]*rate.Limiter, key string) *rate.Limiter {
	l, ok := m[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(minInterval), 1)
		m[key] = l
	}
	return l
}

// Fetch implements graph.Fetcher. It checks the domain and URL gates
// before making any network call, updates both timestamps on permit (not
// after the response, so a slow response cannot let a second request
// slip through), and dispatches the request.
func (f *Fetcher) Fetch(ctx context.Context, req graph.FetchRequest) (graph.FetchResult, error) {
	domain, err := domainOf(req.URL)
	if err != nil {
		return graph.FetchResult{}, fmt.Errorf("fetcher: %w", err)
	}

	if err := f.gate(domain, req.URL); err != nil {
		return graph.FetchResult{}, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return graph.FetchResult{}, fmt.Errorf("fetcher: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return graph.FetchResult{}, fmt.Errorf("fetcher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return graph.FetchResult{}, fmt.Errorf("fetcher: non-2xx status %d for %s", resp.StatusCode, req.URL)
	}

	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return graph.FetchResult{}, fmt.Errorf("fetcher: read body: %w", err)
	}
	return graph.FetchResult{URL: req.URL, Contents: string(contents)}, nil
}

// gate enforces the domain and URL rate windows. Both limiters' tokens
// are consumed in the same call so a domain permit never leaks past a URL
// rejection: reserve both, then dispatch.
func (f *Fetcher) gate(domain, urlStr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	domainLimiter := limiterFor(f.domainLimiter, domain)
	urlLimiter := limiterFor(f.urlLimiter, urlStr)

	if !domainLimiter.Allow() {
		f.log.Printf("domain %s was recently fetched from, rejecting", domain)
		return fmt.Errorf("%w: domain %s", ErrRateLimited, domain)
	}
	if !urlLimiter.Allow() {
		f.log.Printf("url %s was recently fetched from, rejecting", urlStr)
		return fmt.Errorf("%w: url %s", ErrRateLimited, urlStr)
	}
	return nil
}

var _ graph.Fetcher = (*Fetcher)(nil)

func domainOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.Host, nil
}
