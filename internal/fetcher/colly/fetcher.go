// Package collyfetcher implements recall.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/recall-ingest/internal/metrics"
	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// DefaultUserAgent identifies the ingestion job to upstream hosts.
const DefaultUserAgent = "recall-ingest-bot/0.1"

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Waiter spaces requests to the same host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements recall.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Waiter
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil limiter disables request spacing.
func New(cfg Config, limiter Waiter) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.UserAgent = cfg.UserAgent
	// Upstream error bodies are inspected by the adapters, not swallowed by colly.
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
	}
}

// Fetch executes a single upstream request using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request recall.FetchRequest) (recall.FetchResponse, error) {
	if request.URL == "" {
		return recall.FetchResponse{}, fmt.Errorf("fetch: url is required")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return recall.FetchResponse{}, err
		}
	}

	var (
		result   recall.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request, &fetchErr); err != nil {
		metrics.ObserveUpstreamRequest(request.URL, 0)
		return recall.FetchResponse{}, err
	}
	metrics.ObserveUpstreamRequest(request.URL, result.StatusCode)
	return result, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *recall.FetchResponse,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = recall.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	request recall.FetchRequest,
	fetchErr *error,
) error {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	headers := request.Headers
	if headers == nil {
		headers = http.Header{}
	}

	done := make(chan error, 1)
	go func() {
		var body *bytes.Reader
		if len(request.Body) > 0 {
			body = bytes.NewReader(request.Body)
		}
		if body == nil {
			done <- collector.Request(method, request.URL, nil, nil, headers)
			return
		}
		done <- collector.Request(method, request.URL, body, nil, headers)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
