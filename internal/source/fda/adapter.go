// Package fda adapts the openFDA food enforcement API into recall candidates.
package fda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/category"
	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// Defaults for the public openFDA endpoint.
const (
	DefaultBaseURL = "https://api.fda.gov"
	DefaultLimit   = 20
	RecallsPageURL = "https://www.fda.gov/safety/recalls-market-withdrawals-safety-alerts"
	remedy         = "Do not consume. Return to place of purchase."
	compactLayout  = "20060102"
)

// Config points the adapter at an openFDA deployment.
type Config struct {
	BaseURL string
	Limit   int
}

// Adapter fetches the last month of food enforcement reports.
type Adapter struct {
	cfg     Config
	fetcher recall.Fetcher
	clock   recall.Clock
	logger  *zap.Logger
}

// New builds an FDA adapter.
func New(cfg Config, fetcher recall.Fetcher, clock recall.Clock, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, clock: clock, logger: logger.Named("fda")}
}

// Source implements recall.Adapter.
func (a *Adapter) Source() recall.Source {
	return recall.SourceFDA
}

type enforcementResponse struct {
	Results *[]json.RawMessage `json:"results"`
}

type enforcementReport struct {
	ProductDescription   string `json:"product_description"`
	ReasonForRecall      string `json:"reason_for_recall"`
	RecallingFirm        string `json:"recalling_firm"`
	RecallNumber         string `json:"recall_number"`
	RecallInitiationDate string `json:"recall_initiation_date"`
	Classification       string `json:"classification"`
}

// URL returns the enforcement query covering one calendar month back from now.
func (a *Adapter) URL(now time.Time) string {
	from := now.AddDate(0, -1, 0).Format(compactLayout)
	to := now.Format(compactLayout)
	return fmt.Sprintf("%s/food/enforcement.json?search=recall_initiation_date:[%s+TO+%s]&limit=%d",
		a.cfg.BaseURL, from, to, a.cfg.Limit)
}

// Fetch implements recall.Adapter.
func (a *Adapter) Fetch(ctx context.Context) (recall.Batch, error) {
	now := a.clock.Now()
	url := a.URL(now)
	resp, err := a.fetcher.Fetch(ctx, recall.FetchRequest{URL: url})
	if err != nil {
		return recall.Batch{}, fmt.Errorf("fda request: %w: %w", recall.ErrSourceUnavailable, err)
	}
	if !resp.OK() {
		return recall.Batch{}, &recall.HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	var decoded enforcementResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return recall.Batch{}, fmt.Errorf("fda decode: %w: %w", recall.ErrSourceUnavailable, err)
	}
	if decoded.Results == nil {
		return recall.Batch{}, fmt.Errorf("fda response has no results array: %w", recall.ErrSourceUnavailable)
	}

	batch := recall.Batch{Candidates: make([]recall.Candidate, 0, len(*decoded.Results))}
	for i, raw := range *decoded.Results {
		candidate, err := toCandidate(i, raw, now)
		if err != nil {
			batch.Skipped++
			a.logger.Warn("skipping enforcement report", zap.Error(err))
			continue
		}
		batch.Candidates = append(batch.Candidates, candidate)
	}
	a.logger.Info("fetched enforcement reports",
		zap.Int("count", len(batch.Candidates)),
		zap.Int("skipped", batch.Skipped))
	return batch, nil
}

// toCandidate decodes one enforcement report. A report whose fields have the
// wrong JSON types is rejected on its own without failing the batch.
func toCandidate(index int, raw json.RawMessage, now time.Time) (recall.Candidate, error) {
	var r enforcementReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return recall.Candidate{}, &recall.ParseError{Index: index, Err: err}
	}
	date, err := parseDate(r.RecallInitiationDate, now)
	if err != nil {
		return recall.Candidate{}, &recall.ParseError{Index: index, Field: "recall_initiation_date", Err: err}
	}
	title := r.ProductDescription
	if title == "" {
		title = "FDA Food Recall " + strconv.Itoa(index+1)
	}
	product := r.ProductDescription
	if product == "" {
		product = "Unknown Product"
	}
	description := r.ReasonForRecall
	if description == "" {
		description = "No description available"
	}
	return recall.Candidate{
		Title:              title,
		Description:        description,
		ProductName:        product,
		Brand:              recall.StringPtr(r.RecallingFirm),
		Category:           category.FoodAndBeverages,
		RecallNumber:       recall.StringPtr(r.RecallNumber),
		RecallDate:         date,
		RiskLevel:          RiskFromClassification(r.Classification),
		Source:             recall.SourceFDA,
		RemedyInstructions: recall.StringPtr(remedy),
		SourceURL:          recall.StringPtr(RecallsPageURL),
	}, nil
}

var errBadDate = errors.New("unrecognized date")

// parseDate accepts YYYYMMDD or ISO dates; an empty value means today.
func parseDate(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return recall.Today(now), nil
	}
	for _, layout := range []string{compactLayout, recall.DateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(recall.DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", errBadDate, raw)
}

// RiskFromClassification maps FDA hazard classes onto risk levels.
func RiskFromClassification(classification string) recall.RiskLevel {
	switch strings.TrimSpace(classification) {
	case "Class I":
		return recall.RiskHigh
	case "Class II":
		return recall.RiskMedium
	default:
		return recall.RiskLow
	}
}
