// Package collyfetcher implements the thread Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/threadwatch/internal/watch"
)

// DefaultUserAgent identifies as a desktop browser to pass trivial bot filters.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	MaxRedirects int
	Timeout      time.Duration
	// Transport overrides the HTTP transport (tests inject httptest's).
	Transport http.RoundTripper
}

// Fetcher implements watch.Fetcher. The collector never follows redirects
// itself; Fetch walks the chain hop by hop so the budget is explicit.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// hop is the response to one request in a redirect chain.
type hop struct {
	status   int
	location string
	body     string
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.DetectCharset(),
		// The newest reply sits at the end of the page; never truncate.
		colly.MaxBodySize(0),
	)
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch retrieves rawURL, following at most MaxRedirects redirects.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (watch.FetchResult, error) {
	start, err := parseHTTPS(rawURL)
	if err != nil {
		return watch.FetchResult{}, err
	}
	return f.follow(ctx, start, f.cfg.MaxRedirects, 0)
}

// follow requests target and recurses on redirects until remaining is spent.
func (f *Fetcher) follow(ctx context.Context, target *url.URL, remaining, followed int) (watch.FetchResult, error) {
	resp, err := f.fetchOnce(ctx, target.String())
	if err != nil {
		return watch.FetchResult{}, err
	}
	if !isRedirect(resp.status) || resp.location == "" {
		return watch.FetchResult{
			StatusCode: resp.status,
			FinalURL:   target.String(),
			Body:       resp.body,
			Redirects:  followed,
		}, nil
	}
	if remaining <= 0 {
		return watch.FetchResult{}, fmt.Errorf("%w: gave up after %d at %s", watch.ErrTooManyRedirects, followed, target)
	}
	next, err := target.Parse(resp.location)
	if err != nil {
		return watch.FetchResult{}, fmt.Errorf("%w: parse redirect location %q: %v", watch.ErrFetchFailed, resp.location, err)
	}
	if next.Scheme != "https" {
		return watch.FetchResult{}, fmt.Errorf("redirect to %s: %w", next, watch.ErrInsecureURL)
	}
	return f.follow(ctx, next, remaining-1, followed+1)
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string) (hop, error) {
	var (
		result   hop
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	configureCollectorHooks(collector, &result, &fetchErr)

	if err := runCollector(ctx, collector, target, &fetchErr); err != nil {
		return hop{}, &watch.TransportError{Op: "fetch", URL: target, Err: err}
	}
	return result, nil
}

func configureCollectorHooks(hooks collectorHooks, result *hop, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		location := ""
		if r.Headers != nil {
			location = r.Headers.Get("Location")
		}
		*result = hop{
			status:   r.StatusCode,
			location: location,
			body:     string(r.Body),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func parseHTTPS(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%q: %w", rawURL, watch.ErrInsecureURL)
	}
	return u, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     true,
	}
}
