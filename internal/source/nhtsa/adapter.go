// Package nhtsa adapts NHTSA vehicle recalls using a three tier fallback:
// the recalls API, the vPIC manufacturer endpoint, then a scrape of the
// public recalls page through an extraction API.
package nhtsa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/category"
	"github.com/JakeFAU/recall-ingest/internal/extract/firecrawl"
	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// Defaults for the public NHTSA endpoints.
const (
	DefaultAPIURL       = "https://api.nhtsa.gov"
	DefaultVPICURL      = "https://vpic.nhtsa.dot.gov"
	DefaultManufacturer = "Honda"
	DefaultPageURL      = "https://www.nhtsa.gov/recalls"

	apiItemLimit    = 5
	scrapeItemLimit = 3
	maxScrapeTitle  = 100
	remedy          = "Contact authorized dealer for inspection and repair."
)

// Tier names the stage of the fallback chain.
type Tier string

// Tiers in fallback order.
const (
	TierPrimary      Tier = "primary"
	TierManufacturer Tier = "manufacturer"
	TierScrape       Tier = "scrape"
	TierExhausted    Tier = "exhausted"
)

// next returns the tier tried after t fails or comes back empty.
func (t Tier) next() Tier {
	switch t {
	case TierPrimary:
		return TierManufacturer
	case TierManufacturer:
		return TierScrape
	default:
		return TierExhausted
	}
}

// Extractor scrapes a page into text.
type Extractor interface {
	Scrape(ctx context.Context, pageURL string) (firecrawl.Document, error)
}

// Config points the adapter at the NHTSA endpoints.
type Config struct {
	APIURL       string
	VPICURL      string
	Manufacturer string
	PageURL      string
}

// Adapter walks the tiers until one yields candidates.
type Adapter struct {
	cfg       Config
	fetcher   recall.Fetcher
	extractor Extractor
	clock     recall.Clock
	logger    *zap.Logger
}

// New builds an NHTSA adapter. A nil extractor disables the scrape tier.
func New(cfg Config, fetcher recall.Fetcher, extractor Extractor, clock recall.Clock, logger *zap.Logger) *Adapter {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.VPICURL == "" {
		cfg.VPICURL = DefaultVPICURL
	}
	if cfg.Manufacturer == "" {
		cfg.Manufacturer = DefaultManufacturer
	}
	if cfg.PageURL == "" {
		cfg.PageURL = DefaultPageURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.VPICURL = strings.TrimRight(cfg.VPICURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, extractor: extractor, clock: clock, logger: logger.Named("nhtsa")}
}

// Source implements recall.Adapter.
func (a *Adapter) Source() recall.Source {
	return recall.SourceNHTSA
}

var errEmpty = errors.New("no results")

// Fetch implements recall.Adapter. It stops at the first tier that yields candidates.
func (a *Adapter) Fetch(ctx context.Context) (recall.Batch, error) {
	now := a.clock.Now()
	var failures []error
	for tier := TierPrimary; tier != TierExhausted; tier = tier.next() {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		candidates, skipped, err := a.fetchTier(ctx, tier, now)
		if err == nil && len(candidates) == 0 {
			err = errEmpty
		}
		if err != nil {
			a.logger.Warn("tier yielded nothing", zap.String("tier", string(tier)), zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", tier, err))
			continue
		}
		a.logger.Info("tier succeeded", zap.String("tier", string(tier)), zap.Int("count", len(candidates)))
		return recall.Batch{Candidates: candidates, Tier: string(tier), Skipped: skipped}, nil
	}
	return recall.Batch{Tier: string(TierExhausted)},
		fmt.Errorf("all nhtsa tiers failed: %w: %w", recall.ErrSourceUnavailable, errors.Join(failures...))
}

// fetchTier returns the tier's candidates and the number of upstream items it
// could not parse.
func (a *Adapter) fetchTier(ctx context.Context, tier Tier, now time.Time) ([]recall.Candidate, int, error) {
	switch tier {
	case TierPrimary:
		return a.fetchAPI(ctx, a.PrimaryURL(now), func(r apiResponse) *[]json.RawMessage { return r.Lower }, subjectTitle, now)
	case TierManufacturer:
		return a.fetchAPI(ctx, a.ManufacturerURL(), func(r apiResponse) *[]json.RawMessage { return r.Upper }, componentTitle, now)
	case TierScrape:
		candidates, err := a.scrape(ctx, now)
		return candidates, 0, err
	default:
		return nil, 0, fmt.Errorf("unknown tier %q", tier)
	}
}

// PrimaryURL queries recalls reported over the previous and current model year.
func (a *Adapter) PrimaryURL(now time.Time) string {
	year := now.Year()
	return fmt.Sprintf("%s/recalls/recallsByVehicle?make=&model=&year=%d&to=%d", a.cfg.APIURL, year-1, year)
}

// ManufacturerURL queries the vPIC recall list for the configured manufacturer.
func (a *Adapter) ManufacturerURL() string {
	return fmt.Sprintf("%s/api/vehicles/getrecallsbymanufacturer/%s?format=json", a.cfg.VPICURL, a.cfg.Manufacturer)
}

// apiResponse covers both endpoints; each spells the results key differently.
type apiResponse struct {
	Lower *[]json.RawMessage `json:"results"`
	Upper *[]json.RawMessage `json:"Results"`
}

type vehicleRecall struct {
	Subject             string `json:"Subject"`
	Component           string `json:"Component"`
	Summary             string `json:"Summary"`
	Make                string `json:"Make"`
	Model               string `json:"Model"`
	NHTSACampaignNumber string `json:"NHTSACampaignNumber"`
	ReportReceivedDate  string `json:"ReportReceivedDate"`
}

func subjectTitle(r vehicleRecall) string   { return r.Subject }
func componentTitle(r vehicleRecall) string { return r.Component }

func (a *Adapter) fetchAPI(
	ctx context.Context,
	url string,
	results func(apiResponse) *[]json.RawMessage,
	title func(vehicleRecall) string,
	now time.Time,
) ([]recall.Candidate, int, error) {
	resp, err := a.fetcher.Fetch(ctx, recall.FetchRequest{URL: url})
	if err != nil {
		return nil, 0, fmt.Errorf("request: %w: %w", recall.ErrSourceUnavailable, err)
	}
	if !resp.OK() {
		return nil, 0, &recall.HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}
	var decoded apiResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, 0, fmt.Errorf("decode: %w: %w", recall.ErrSourceUnavailable, err)
	}
	list := results(decoded)
	if list == nil {
		return nil, 0, errEmpty
	}
	items := *list
	if len(items) > apiItemLimit {
		items = items[:apiItemLimit]
	}
	out := make([]recall.Candidate, 0, len(items))
	skipped := 0
	for i, raw := range items {
		var item vehicleRecall
		if err := json.Unmarshal(raw, &item); err != nil {
			skipped++
			a.logger.Warn("skipping vehicle recall", zap.Error(&recall.ParseError{Index: i, Err: err}))
			continue
		}
		out = append(out, vehicleCandidate(i, item, title(item), now))
	}
	return out, skipped, nil
}

func vehicleCandidate(index int, r vehicleRecall, title string, now time.Time) recall.Candidate {
	if title == "" {
		title = "Vehicle Recall " + strconv.Itoa(index+1)
	}
	description := r.Summary
	if description == "" {
		description = "No description available"
	}
	product := strings.TrimSpace(r.Make + " " + r.Model)
	if product == "" {
		product = "Vehicle"
	}
	return recall.Candidate{
		Title:              title,
		Description:        description,
		ProductName:        product,
		Brand:              recall.StringPtr(r.Make),
		Category:           category.Vehicles,
		RecallNumber:       recall.StringPtr(r.NHTSACampaignNumber),
		RecallDate:         ParseDate(r.ReportReceivedDate, now),
		RiskLevel:          recall.RiskHigh,
		Source:             recall.SourceNHTSA,
		RemedyInstructions: recall.StringPtr(remedy),
		SourceURL:          recall.StringPtr(DefaultPageURL),
	}
}

var recallLine = regexp.MustCompile(`(?i)recall[^\n]*\n`)

func (a *Adapter) scrape(ctx context.Context, now time.Time) ([]recall.Candidate, error) {
	if a.extractor == nil {
		return nil, recall.ErrExtractorDisabled
	}
	doc, err := a.extractor.Scrape(ctx, a.cfg.PageURL)
	if err != nil {
		return nil, err
	}
	return ScrapedCandidates(doc.Text(), now), nil
}

// ScrapedCandidates turns page text into candidates, one per line fragment
// starting at the word "recall".
func ScrapedCandidates(content string, now time.Time) []recall.Candidate {
	matches := recallLine.FindAllString(content, scrapeItemLimit)
	out := make([]recall.Candidate, 0, len(matches))
	for i, match := range matches {
		title := strings.TrimSpace(match)
		if runes := []rune(title); len(runes) > maxScrapeTitle {
			title = string(runes[:maxScrapeTitle])
		}
		if title == "" {
			title = "NHTSA Recall " + strconv.Itoa(i+1)
		}
		out = append(out, recall.Candidate{
			Title:              title,
			Description:        "Recall information from NHTSA website",
			ProductName:        "Vehicle",
			Category:           category.Vehicles,
			RecallDate:         recall.Today(now),
			RiskLevel:          recall.RiskMedium,
			Source:             recall.SourceNHTSA,
			RemedyInstructions: recall.StringPtr(remedy),
			SourceURL:          recall.StringPtr(DefaultPageURL),
		})
	}
	return out
}

var msDate = regexp.MustCompile(`^/Date\((-?\d+)`)

// ParseDate normalizes the date shapes NHTSA endpoints emit, defaulting to today.
func ParseDate(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return recall.Today(now)
	}
	if m := msDate.FindStringSubmatch(raw); m != nil {
		if ms, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return time.UnixMilli(ms).UTC().Format(recall.DateLayout)
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", recall.DateLayout, "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(recall.DateLayout)
		}
	}
	return recall.Today(now)
}
