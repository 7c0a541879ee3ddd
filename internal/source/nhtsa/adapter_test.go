package nhtsa

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recall-ingest/internal/category"
	"github.com/JakeFAU/recall-ingest/internal/extract/firecrawl"
	"github.com/JakeFAU/recall-ingest/internal/recall"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type reply struct {
	resp recall.FetchResponse
	err  error
}

// routeFetcher answers by URL prefix and records every URL requested.
type routeFetcher struct {
	routes map[string]reply
	calls  []string
}

func (f *routeFetcher) Fetch(_ context.Context, req recall.FetchRequest) (recall.FetchResponse, error) {
	f.calls = append(f.calls, req.URL)
	for prefix, r := range f.routes {
		if strings.HasPrefix(req.URL, prefix) {
			return r.resp, r.err
		}
	}
	return recall.FetchResponse{StatusCode: http.StatusNotFound}, nil
}

type stubExtractor struct {
	doc   firecrawl.Document
	err   error
	calls int
}

func (s *stubExtractor) Scrape(context.Context, string) (firecrawl.Document, error) {
	s.calls++
	return s.doc, s.err
}

var now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

const (
	primaryPrefix      = DefaultAPIURL + "/recalls/recallsByVehicle"
	manufacturerPrefix = DefaultVPICURL + "/api/vehicles/getrecallsbymanufacturer/"
)

func ok(body string) reply {
	return reply{resp: recall.FetchResponse{StatusCode: http.StatusOK, Body: []byte(body)}}
}

func TestURLs(t *testing.T) {
	t.Parallel()

	a := New(Config{}, &routeFetcher{}, nil, fixedClock{now}, nil)
	require.Equal(t, "https://api.nhtsa.gov/recalls/recallsByVehicle?make=&model=&year=2024&to=2025", a.PrimaryURL(now))
	require.Equal(t, "https://vpic.nhtsa.dot.gov/api/vehicles/getrecallsbymanufacturer/Honda?format=json", a.ManufacturerURL())
}

func TestPrimaryTierWins(t *testing.T) {
	t.Parallel()

	fetcher := &routeFetcher{routes: map[string]reply{
		primaryPrefix: ok(`{"results":[
			{"Subject":"Brake failure","Summary":"Brakes may fail","Make":"Ford","Model":"F-150",
			 "NHTSACampaignNumber":"24V001","ReportReceivedDate":"2024-12-01"},
			{},{},{},{},{},{}
		]}`),
	}}
	extractor := &stubExtractor{}
	batch, err := New(Config{}, fetcher, extractor, fixedClock{now}, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(TierPrimary), batch.Tier)
	require.Len(t, batch.Candidates, apiItemLimit)
	require.Len(t, fetcher.calls, 1)
	require.Zero(t, extractor.calls)

	c := batch.Candidates[0]
	require.Equal(t, "Brake failure", c.Title)
	require.Equal(t, "Ford F-150", c.ProductName)
	require.Equal(t, "Ford", *c.Brand)
	require.Equal(t, "24V001", *c.RecallNumber)
	require.Equal(t, "2024-12-01", c.RecallDate)
	require.Equal(t, recall.RiskHigh, c.RiskLevel)
	require.Equal(t, category.Vehicles, c.Category)
	require.NoError(t, c.Validate())

	fallback := batch.Candidates[1]
	require.Equal(t, "Vehicle Recall 2", fallback.Title)
	require.Equal(t, "Vehicle", fallback.ProductName)
	require.Equal(t, "No description available", fallback.Description)
	require.Equal(t, "2025-06-01", fallback.RecallDate)
}

func TestManufacturerTierAfterPrimaryFailure(t *testing.T) {
	t.Parallel()

	fetcher := &routeFetcher{routes: map[string]reply{
		primaryPrefix:      {resp: recall.FetchResponse{StatusCode: http.StatusBadRequest}},
		manufacturerPrefix: ok(`{"Count":1,"Results":[{"Component":"AIR BAGS","Make":"HONDA","Model":"CIVIC"}]}`),
	}}
	extractor := &stubExtractor{}
	batch, err := New(Config{}, fetcher, extractor, fixedClock{now}, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(TierManufacturer), batch.Tier)
	require.Len(t, batch.Candidates, 1)
	require.Equal(t, "AIR BAGS", batch.Candidates[0].Title)
	require.Len(t, fetcher.calls, 2)
	require.Zero(t, extractor.calls)
}

func TestManufacturerTierAfterEmptyPrimary(t *testing.T) {
	t.Parallel()

	fetcher := &routeFetcher{routes: map[string]reply{
		primaryPrefix:      ok(`{"results":[]}`),
		manufacturerPrefix: ok(`{"Results":[{"Component":"ENGINE"}]}`),
	}}
	batch, err := New(Config{}, fetcher, nil, fixedClock{now}, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(TierManufacturer), batch.Tier)
}

func TestScrapeTierLastResort(t *testing.T) {
	t.Parallel()

	fetcher := &routeFetcher{routes: map[string]reply{
		primaryPrefix:      {err: errors.New("timeout")},
		manufacturerPrefix: ok(`{"Results":[]}`),
	}}
	extractor := &stubExtractor{doc: firecrawl.Document{Content: strings.Join([]string{
		"Welcome",
		"Recall 24V-100: Airbag inflator",
		"Search by VIN for open recalls",
		"recall three",
		"Recall four",
		"",
	}, "\n")}}

	batch, err := New(Config{}, fetcher, extractor, fixedClock{now}, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(TierScrape), batch.Tier)
	require.Equal(t, 1, extractor.calls)
	require.Len(t, batch.Candidates, 3)
	require.Equal(t, "Recall 24V-100: Airbag inflator", batch.Candidates[0].Title)
	require.Equal(t, "recalls", batch.Candidates[1].Title)
	require.Equal(t, "recall three", batch.Candidates[2].Title)
	for _, c := range batch.Candidates {
		require.Equal(t, recall.RiskMedium, c.RiskLevel)
		require.Equal(t, "Vehicle", c.ProductName)
		require.Equal(t, "2025-06-01", c.RecallDate)
		require.NoError(t, c.Validate())
	}
}

func TestExhaustedJoinsTierFailures(t *testing.T) {
	t.Parallel()

	fetcher := &routeFetcher{routes: map[string]reply{
		primaryPrefix:      {resp: recall.FetchResponse{StatusCode: http.StatusServiceUnavailable}},
		manufacturerPrefix: ok(`not json`),
	}}
	batch, err := New(Config{}, fetcher, nil, fixedClock{now}, nil).Fetch(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, recall.ErrSourceUnavailable)
	require.ErrorIs(t, err, recall.ErrExtractorDisabled)
	require.Equal(t, string(TierExhausted), batch.Tier)
	require.Empty(t, batch.Candidates)
	require.ErrorContains(t, err, "primary")
	require.ErrorContains(t, err, "manufacturer")
	require.ErrorContains(t, err, "scrape")
}

func TestScrapedTitleTruncated(t *testing.T) {
	t.Parallel()

	got := ScrapedCandidates("recall "+strings.Repeat("x", 200)+"\n", now)
	require.Len(t, got, 1)
	require.Len(t, []rune(got[0].Title), maxScrapeTitle)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2024-03-18", ParseDate("/Date(1710720000000-0400)/", now))
	require.Equal(t, "2024-03-18", ParseDate("2024-03-18T00:00:00Z", now))
	require.Equal(t, "2024-03-18", ParseDate("18/03/2024", now))
	require.Equal(t, "2025-06-01", ParseDate("garbage", now))
}

func TestPrimaryTierSkipsMistypedItem(t *testing.T) {
	t.Parallel()

	fetcher := &routeFetcher{routes: map[string]reply{
		primaryPrefix: ok(`{"results":[
			{"Subject":"Brake failure","Make":"Ford","Model":"F-150","ReportReceivedDate":"2024-12-01"},
			{"Subject":"Airbag","NHTSACampaignNumber":24001}
		]}`),
	}}
	batch, err := New(Config{}, fetcher, nil, fixedClock{now}, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(TierPrimary), batch.Tier)
	require.Len(t, batch.Candidates, 1)
	require.Equal(t, 1, batch.Skipped)
	require.Equal(t, "Brake failure", batch.Candidates[0].Title)
}

func TestAllMistypedItemsFallThrough(t *testing.T) {
	t.Parallel()

	fetcher := &routeFetcher{routes: map[string]reply{
		primaryPrefix:      ok(`{"results":[{"Subject":42}]}`),
		manufacturerPrefix: ok(`{"Results":[{"Component":"ENGINE"}]}`),
	}}
	batch, err := New(Config{}, fetcher, nil, fixedClock{now}, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, string(TierManufacturer), batch.Tier)
	require.Zero(t, batch.Skipped)
}
