// Package cpsc adapts the CPSC newsroom RSS feed into recall candidates.
package cpsc

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/category"
	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// Defaults for the public CPSC feed.
const (
	DefaultFeedURL  = "https://www.cpsc.gov/Newsroom/rss"
	DefaultMaxItems = 10
	RecallsPageURL  = "https://www.cpsc.gov/Recalls"
	maxDescription  = 500
	remedy          = "Stop using immediately. Contact manufacturer."
)

// Config points the adapter at a feed.
type Config struct {
	FeedURL  string
	MaxItems int
}

// Adapter turns feed items into candidates.
type Adapter struct {
	cfg     Config
	fetcher recall.Fetcher
	clock   recall.Clock
	logger  *zap.Logger
}

// New builds a CPSC adapter.
func New(cfg Config, fetcher recall.Fetcher, clock recall.Clock, logger *zap.Logger) *Adapter {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, clock: clock, logger: logger.Named("cpsc")}
}

// Source implements recall.Adapter.
func (a *Adapter) Source() recall.Source {
	return recall.SourceCPSC
}

// Fetch implements recall.Adapter.
func (a *Adapter) Fetch(ctx context.Context) (recall.Batch, error) {
	resp, err := a.fetcher.Fetch(ctx, recall.FetchRequest{URL: a.cfg.FeedURL})
	if err != nil {
		return recall.Batch{}, fmt.Errorf("cpsc request: %w: %w", recall.ErrSourceUnavailable, err)
	}
	if !resp.OK() {
		return recall.Batch{}, &recall.HTTPStatusError{URL: a.cfg.FeedURL, StatusCode: resp.StatusCode}
	}

	items := ParseItems(string(resp.Body))
	if len(items) > a.cfg.MaxItems {
		items = items[:a.cfg.MaxItems]
	}
	now := a.clock.Now()
	batch := recall.Batch{Candidates: make([]recall.Candidate, 0, len(items))}
	for i, item := range items {
		batch.Candidates = append(batch.Candidates, toCandidate(i, item, now))
	}
	a.logger.Info("parsed feed", zap.Int("count", len(batch.Candidates)))
	return batch, nil
}

// Item is one raw feed entry.
type Item struct {
	Title       string
	Description string
	Link        string
	PubDate     string
}

var (
	itemPattern        = regexp.MustCompile(`(?s)<item>.*?</item>`)
	titlePattern       = regexp.MustCompile(`(?s)<title>(.*?)</title>`)
	descriptionPattern = regexp.MustCompile(`(?s)<description>(.*?)</description>`)
	linkPattern        = regexp.MustCompile(`(?s)<link>(.*?)</link>`)
	pubDatePattern     = regexp.MustCompile(`(?s)<pubDate>(.*?)</pubDate>`)
)

// ParseItems extracts every <item> block from a feed body.
func ParseItems(feed string) []Item {
	blocks := itemPattern.FindAllString(feed, -1)
	items := make([]Item, 0, len(blocks))
	for _, block := range blocks {
		items = append(items, Item{
			Title:       field(titlePattern, block),
			Description: field(descriptionPattern, block),
			Link:        field(linkPattern, block),
			PubDate:     field(pubDatePattern, block),
		})
	}
	return items
}

// field returns the element text, unwrapping CDATA or unescaping plain text.
func field(pattern *regexp.Regexp, block string) string {
	m := pattern.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	value := strings.TrimSpace(m[1])
	if inner, ok := strings.CutPrefix(value, "<![CDATA["); ok {
		return strings.TrimSuffix(inner, "]]>")
	}
	return html.UnescapeString(value)
}

func toCandidate(index int, item Item, now time.Time) recall.Candidate {
	title := item.Title
	if title == "" {
		title = "CPSC Recall " + strconv.Itoa(index+1)
	}
	clean := CleanTitle(title)
	link := item.Link
	if link == "" {
		link = RecallsPageURL
	}
	return recall.Candidate{
		Title:              clean,
		Description:        StripMarkup(item.Description, maxDescription),
		ProductName:        clean,
		Category:           category.Categorize(title, item.Description),
		RecallDate:         ParseDate(item.PubDate, now),
		RiskLevel:          recall.RiskMedium,
		Source:             recall.SourceCPSC,
		RemedyInstructions: recall.StringPtr(remedy),
		SourceURL:          recall.StringPtr(link),
	}
}

// CleanTitle drops the press-release boilerplate around a product name.
func CleanTitle(title string) string {
	title = strings.Replace(title, "CPSC Announces ", "", 1)
	return strings.Replace(title, " Recall", "", 1)
}

// StripMarkup returns the text content of an HTML fragment cut to limit runes.
func StripMarkup(fragment string, limit int) string {
	text := fragment
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment)); err == nil {
		text = doc.Text()
	}
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > limit {
		text = string(runes[:limit])
	}
	return text
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	recall.DateLayout,
}

// ParseDate converts a feed pubDate to an ISO date in UTC, defaulting to today.
func ParseDate(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(recall.DateLayout)
		}
	}
	return recall.Today(now)
}
