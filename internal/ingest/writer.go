package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/metrics"
	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// InsertedEvent is published after a recall is stored.
type InsertedEvent struct {
	RecallID   string           `json:"recall_id"`
	Title      string           `json:"title"`
	Source     recall.Source    `json:"source"`
	Category   string           `json:"category"`
	RiskLevel  recall.RiskLevel `json:"risk_level"`
	RecallDate string           `json:"recall_date"`
	RunID      string           `json:"run_id"`
}

// Attributes lets subscribers filter events without decoding them.
func (e InsertedEvent) Attributes() map[string]string {
	return map[string]string{
		"source":     string(e.Source),
		"category":   e.Category,
		"risk_level": string(e.RiskLevel),
	}
}

// Writer deduplicates candidates against the store and inserts the new ones.
type Writer struct {
	store     recall.Store
	publisher recall.Publisher
	topic     string
	logger    *zap.Logger
}

// NewWriter builds a Writer. A nil publisher disables insert events.
func NewWriter(store recall.Store, publisher recall.Publisher, topic string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, publisher: publisher, topic: topic, logger: logger.Named("writer")}
}

// Persist processes candidates in order. Every candidate lands in exactly one
// of Inserted, Duplicates or Errors.
func (w *Writer) Persist(ctx context.Context, runID string, candidates []recall.Candidate) recall.PersistResult {
	var result recall.PersistResult
	for _, c := range candidates {
		_, found, err := w.store.FindByTitleAndSource(ctx, c.Title, c.Source)
		if err != nil {
			w.fail(&result, c, fmt.Sprintf("Duplicate check failed for: %s", c.Title), err)
			continue
		}
		if found {
			result.Duplicates++
			metrics.ObserveCandidate("duplicate")
			w.logger.Debug("duplicate recall", zap.String("title", c.Title), zap.String("source", string(c.Source)))
			continue
		}

		id, err := w.store.Insert(ctx, c)
		switch {
		case errors.Is(err, recall.ErrDuplicate):
			// Another writer stored it between the lookup and the insert.
			result.Duplicates++
			metrics.ObserveCandidate("duplicate")
		case err != nil:
			w.fail(&result, c, fmt.Sprintf("Insert failed for: %s - %v", c.Title, err), err)
		default:
			result.Inserted++
			metrics.ObserveCandidate("inserted")
			w.publish(ctx, runID, id, c)
		}
	}
	return result
}

func (w *Writer) fail(result *recall.PersistResult, c recall.Candidate, detail string, err error) {
	result.Errors++
	result.ErrorDetails = append(result.ErrorDetails, detail)
	metrics.ObserveCandidate("error")
	w.logger.Error("persist failed",
		zap.String("title", c.Title),
		zap.String("source", string(c.Source)),
		zap.Error(err))
}

func (w *Writer) publish(ctx context.Context, runID, id string, c recall.Candidate) {
	if w.publisher == nil || w.topic == "" {
		return
	}
	event := InsertedEvent{
		RecallID:   id,
		Title:      c.Title,
		Source:     c.Source,
		Category:   c.Category,
		RiskLevel:  c.RiskLevel,
		RecallDate: c.RecallDate,
		RunID:      runID,
	}
	if _, err := w.publisher.Publish(ctx, w.topic, event); err != nil {
		w.logger.Warn("publish recall event", zap.String("recall_id", id), zap.Error(err))
	}
}
