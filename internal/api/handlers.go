package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxAlertBodyBytes  = 64 << 10
)

// trigger runs one ingestion pass and answers with the run report. Any
// method reaches it; preflight requests stop at the CORS middleware.
func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusInternalServerError, "ingestion not configured")
		return
	}
	report, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("ingestion run failed",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type searchResponse struct {
	Recalls []recall.StoredRecall `json:"recalls"`
	Count   int                   `json:"count"`
}

// searchRecalls handles GET /v1/recalls?q=&category=&risk_level=&source=&limit=.
// The value "all" disables a filter.
func (s *Server) searchRecalls(w http.ResponseWriter, r *http.Request) {
	if s.recalls == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r, defaultSearchLimit, maxSearchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.recalls.Query(r.Context(), filters, recall.DefaultOrdering, limit)
	if err != nil {
		s.logger.Error("recall search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if rows == nil {
		rows = []recall.StoredRecall{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Recalls: rows, Count: len(rows)})
}

// latestRecall handles GET /v1/recalls/latest.
func (s *Server) latestRecall(w http.ResponseWriter, r *http.Request) {
	if s.recalls == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	rows, err := s.recalls.Query(r.Context(), recall.Filters{}, recall.DefaultOrdering, 1)
	if err != nil {
		s.logger.Error("latest recall lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "no recalls")
		return
	}
	writeJSON(w, http.StatusOK, rows[0])
}

type alertRequest struct {
	Email      string   `json:"email"`
	Categories []string `json:"categories"`
}

// createAlert handles POST /v1/alerts. Re-subscribing an email replaces its
// categories and reactivates it.
func (s *Server) createAlert(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	var req alertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAlertBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	pref := recall.AlertPreference{
		Email:      strings.TrimSpace(req.Email),
		Categories: compactCategories(req.Categories),
		IsActive:   true,
	}
	if err := pref.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if err := s.alerts.UpsertAlertPreference(r.Context(), pref); err != nil {
		s.logger.Error("alert signup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "signup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "email": pref.Email})
}

func parseFilters(r *http.Request) (recall.Filters, error) {
	q := r.URL.Query()
	filters := recall.Filters{
		Search:   strings.TrimSpace(q.Get("q")),
		Category: filterValue(q.Get("category")),
	}
	if risk := filterValue(q.Get("risk_level")); risk != "" {
		level := recall.RiskLevel(strings.ToUpper(risk))
		switch level {
		case recall.RiskLow, recall.RiskMedium, recall.RiskHigh, recall.RiskCritical:
			filters.RiskLevel = level
		default:
			return recall.Filters{}, errors.New("invalid risk_level")
		}
	}
	if src := filterValue(q.Get("source")); src != "" {
		source := recall.Source(strings.ToUpper(src))
		switch source {
		case recall.SourceFDA, recall.SourceCPSC, recall.SourceNHTSA, recall.SourceOther:
			filters.Source = source
		default:
			return recall.Filters{}, errors.New("invalid source")
		}
	}
	return filters, nil
}

func filterValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxLimit), nil
}

func compactCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
