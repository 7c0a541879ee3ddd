// Package recall defines core types shared across the ingestion subsystems.
package recall

import (
	"net/http"
	"time"
)

// Source identifies the upstream agency a recall came from.
type Source string

// Source values persisted in the recalls table.
const (
	SourceFDA   Source = "FDA"
	SourceCPSC  Source = "CPSC"
	SourceNHTSA Source = "NHTSA"
	SourceOther Source = "OTHER"
)

// RiskLevel is the normalized severity of a recall.
type RiskLevel string

// Risk levels persisted in the recalls table.
const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// DateLayout is the ISO calendar date layout used for RecallDate.
const DateLayout = "2006-01-02"

// Candidate is the canonical recall shape produced by a source adapter.
type Candidate struct {
	Title              string    `json:"title" validate:"required"`
	Description        string    `json:"description"`
	ProductName        string    `json:"product_name" validate:"required"`
	Brand              *string   `json:"brand"`
	Category           string    `json:"category"`
	RecallNumber       *string   `json:"recall_number"`
	RecallDate         string    `json:"recall_date" validate:"required,datetime=2006-01-02"`
	RiskLevel          RiskLevel `json:"risk_level" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Source             Source    `json:"source" validate:"required,oneof=FDA CPSC NHTSA OTHER"`
	RemedyInstructions *string   `json:"remedy_instructions"`
	SourceURL          *string   `json:"source_url"`
}

// StoredRecall is a persisted Candidate plus store-generated metadata.
type StoredRecall struct {
	ID string `json:"id"`
	Candidate
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Batch is the output of a single adapter fetch.
type Batch struct {
	Candidates []Candidate
	// Tier names the fallback tier that produced the candidates, empty for single-tier sources.
	Tier string
	// Skipped counts upstream items rejected while parsing.
	Skipped int
}

// SourceRunResult summarizes one adapter's outcome for a run.
type SourceRunResult struct {
	Source  Source `json:"-"`
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
	Tier    string `json:"tier,omitempty"`
	// Skipped counts upstream items the adapter could not parse.
	Skipped int    `json:"skipped,omitempty"`
}

// Report is returned to the caller of an ingestion run. It is never persisted.
type Report struct {
	Success      bool                       `json:"success"`
	Message      string                     `json:"message"`
	RunID        string                     `json:"run_id,omitempty"`
	TotalFound   int                        `json:"total_found"`
	Inserted     int                        `json:"inserted"`
	Duplicates   int                        `json:"duplicates"`
	Errors       int                        `json:"errors"`
	Invalid      int                        `json:"-"`
	PerSource    map[Source]SourceRunResult `json:"source_results"`
	ErrorDetails []string                   `json:"error_details,omitempty"`
}

// PersistResult tallies the Writer's work over a batch of valid candidates.
type PersistResult struct {
	Inserted     int
	Duplicates   int
	Errors       int
	ErrorDetails []string
}

// AlertPreference is a newsletter subscription keyed by email.
type AlertPreference struct {
	ID         string    `json:"id,omitempty"`
	Email      string    `json:"email" validate:"required,email"`
	Categories []string  `json:"categories"`
	Brands     []string  `json:"brands,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Filters narrow a recall query. Empty fields do not filter.
type Filters struct {
	Search    string
	Category  string
	RiskLevel RiskLevel
	Source    Source
}

// Ordering selects the sort column and direction of a query.
type Ordering struct {
	Field      string
	Descending bool
}

// DefaultOrdering sorts newest recalls first.
var DefaultOrdering = Ordering{Field: "recall_date", Descending: true}

// FetchRequest captures everything needed to call an upstream.
type FetchRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// FetchResponse is the raw upstream reply returned by a Fetcher.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the upstream answered with a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Today formats now as an ISO calendar date.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}
