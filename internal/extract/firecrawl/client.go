// Package firecrawl is a small client for the Firecrawl scrape API, used as the
// last-resort content source when an agency exposes no structured feed.
package firecrawl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/recall"
	"github.com/JakeFAU/recall-ingest/internal/retry"
)

// DefaultBaseURL is the public Firecrawl endpoint.
const DefaultBaseURL = "https://api.firecrawl.dev"

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
}

// Document is the extracted page content.
type Document struct {
	Content  string `json:"content"`
	Markdown string `json:"markdown"`
}

// Text returns the plain content, falling back to markdown.
func (d Document) Text() string {
	if d.Content != "" {
		return d.Content
	}
	return d.Markdown
}

type scrapeRequest struct {
	URL         string      `json:"url"`
	PageOptions pageOptions `json:"pageOptions"`
}

type pageOptions struct {
	OnlyMainContent bool `json:"onlyMainContent"`
	IncludeHTML     bool `json:"includeHtml"`
}

type scrapeResponse struct {
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
	Data    *Document `json:"data"`
}

// Client calls the scrape endpoint through a recall.Fetcher.
type Client struct {
	cfg     Config
	fetcher recall.Fetcher
	policy  *retry.Policy
	logger  *zap.Logger
}

// New builds a Client. A nil policy uses retry defaults.
func New(cfg Config, fetcher recall.Fetcher, policy *retry.Policy, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if policy == nil {
		policy = retry.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, fetcher: fetcher, policy: policy, logger: logger.Named("firecrawl")}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Scrape fetches pageURL's main content, retrying transient failures.
func (c *Client) Scrape(ctx context.Context, pageURL string) (Document, error) {
	if !c.Enabled() {
		return Document{}, recall.ErrExtractorDisabled
	}
	body, err := json.Marshal(scrapeRequest{
		URL:         pageURL,
		PageOptions: pageOptions{OnlyMainContent: true, IncludeHTML: false},
	})
	if err != nil {
		return Document{}, fmt.Errorf("encode scrape request: %w", err)
	}
	req := recall.FetchRequest{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + "/v0/scrape",
		Headers: http.Header{
			"Authorization": {"Bearer " + c.cfg.APIKey},
			"Content-Type":  {"application/json"},
		},
		Body: body,
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) (Document, error) {
		return c.scrapeOnce(ctx, req)
	})
}

func (c *Client) scrapeOnce(ctx context.Context, req recall.FetchRequest) (Document, error) {
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return Document{}, fmt.Errorf("firecrawl scrape: %w: %w", recall.ErrSourceUnavailable, err)
	}
	if !resp.OK() {
		c.logger.Warn("scrape returned error status", zap.Int("status", resp.StatusCode))
		return Document{}, &recall.HTTPStatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}
	var decoded scrapeResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return Document{}, fmt.Errorf("decode scrape response: %w: %w", recall.ErrSourceUnavailable, err)
	}
	if !decoded.Success || decoded.Data == nil {
		msg := decoded.Error
		if msg == "" {
			msg = "no data"
		}
		return Document{}, fmt.Errorf("firecrawl scrape unsuccessful: %s: %w", msg, recall.ErrSourceUnavailable)
	}
	return *decoded.Data, nil
}
