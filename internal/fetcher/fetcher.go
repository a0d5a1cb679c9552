// Package fetcher retrieves AUR pages with gocolly and parses them into goquery documents.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/aur-crawler/internal/metrics"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	// Name labels fetch metrics, e.g. "content" or "comment".
	Name      string
	UserAgent string
	Timeout   time.Duration
	// Limiter paces requests when set. Fetchers may share one.
	Limiter Limiter
}

// Limiter blocks until rawURL may be requested.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Document fetches one URL as a parsed HTML document.
type Document interface {
	Fetch(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// Fetcher implements Document using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	body   []byte
	status int
	err    error
}

// New builds a Fetcher on top of transport. A nil transport gets a fresh pooled one.
// Fetchers built from the same transport share its connection pool.
func New(cfg Config, transport http.RoundTripper) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "content"
	}
	if transport == nil {
		transport = NewTransport()
	}

	// One fetcher serves every page of a run, so the same URL may come up again.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Transport returns the round tripper shared by this fetcher.
func (f *Fetcher) Transport() http.RoundTripper {
	return f.transport
}

// Timeout returns the per-request timeout.
func (f *Fetcher) Timeout() time.Duration {
	return f.cfg.Timeout
}

// Fetch executes a single HTTP GET and parses the body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, rawURL); err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
	}

	start := time.Now()
	body, err := f.get(ctx, rawURL)
	if err != nil {
		metrics.ObserveFetch(f.cfg.Name, "error", time.Since(start))
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		metrics.ObserveFetch(f.cfg.Name, "parse_error", time.Since(start))
		return nil, &ParseError{URL: rawURL, Err: err}
	}
	if u, parseErr := url.Parse(rawURL); parseErr == nil {
		doc.Url = u
	}
	metrics.ObserveFetch(f.cfg.Name, "ok", time.Since(start))
	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	var result fetchResult
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &result)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, &FetchError{URL: rawURL, Err: ctx.Err()}
	case err := <-done:
		if result.err != nil {
			return nil, &FetchError{URL: rawURL, StatusCode: result.status, Err: result.err}
		}
		if err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
		if result.body == nil {
			return nil, &FetchError{URL: rawURL, Err: errors.New("no response received")}
		}
		return result.body, nil
	}
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		// Row labels on detail pages are matched in English.
		r.Headers.Set("Accept-Language", "en")
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte{}, r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

// NewTransport returns a pooled transport suitable for sharing between fetchers.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}

var _ Document = (*Fetcher)(nil)

// String describes the fetcher for logs.
func (f *Fetcher) String() string {
	return fmt.Sprintf("%s fetcher (timeout %s)", f.cfg.Name, f.cfg.Timeout)
}
