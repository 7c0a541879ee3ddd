package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/recall-ingest/internal/metrics"
	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// ServiceDeps are the collaborators of a Service.
type ServiceDeps struct {
	// ConfigCheck reports missing store configuration before any work starts.
	ConfigCheck  func() error
	Store        recall.Store
	Orchestrator *Orchestrator
	Writer       *Writer
	IDs          recall.IDGenerator
	Logger       *zap.Logger
	RunTimeout   time.Duration
}

// Service executes one ingestion run end to end.
type Service struct {
	deps   ServiceDeps
	logger *zap.Logger
}

// NewService builds a Service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{deps: deps, logger: logger.Named("ingest")}
}

// Run validates configuration, collects from every source and persists the
// valid candidates. The store is only contacted when there is something to
// write. A returned error means nothing was written.
func (s *Service) Run(ctx context.Context) (recall.Report, error) {
	start := time.Now()
	report, err := s.run(ctx)
	outcome := "success"
	if err != nil {
		outcome = "failure"
		s.logger.Error("ingestion run failed", zap.Error(err))
	}
	metrics.ObserveRun(outcome, time.Since(start))
	return report, err
}

func (s *Service) run(ctx context.Context) (recall.Report, error) {
	if s.deps.ConfigCheck != nil {
		if err := s.deps.ConfigCheck(); err != nil {
			return recall.Report{}, err
		}
	}
	if s.deps.Store == nil {
		return recall.Report{}, fmt.Errorf("%w: no recall store configured", recall.ErrFatalConfiguration)
	}
	if s.deps.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.RunTimeout)
		defer cancel()
	}
	runID := s.newRunID()
	ctx = recall.WithRunID(ctx, runID)
	logger := s.logger.With(zap.String("run_id", runID))
	logger.Info("ingestion run started")

	col := s.deps.Orchestrator.Collect(ctx)
	report := recall.Report{
		Success:    true,
		RunID:      runID,
		TotalFound: len(col.Candidates),
		Invalid:    col.Invalid,
		PerSource:  col.Results,
	}
	if len(col.Candidates) == 0 {
		report.Message = "No new recalls found from any source"
		logger.Info("no candidates, skipping store")
		return report, nil
	}

	if err := s.deps.Store.Ping(ctx); err != nil {
		return recall.Report{}, fmt.Errorf("database connection failed: %w", err)
	}
	persisted := s.deps.Writer.Persist(ctx, runID, col.Candidates)
	report.Inserted = persisted.Inserted
	report.Duplicates = persisted.Duplicates
	report.Errors = persisted.Errors
	report.ErrorDetails = persisted.ErrorDetails
	report.Message = fmt.Sprintf("Successfully processed %d recalls. Inserted: %d, Duplicates: %d, Errors: %d",
		report.TotalFound, report.Inserted, report.Duplicates, report.Errors)

	logger.Info("ingestion run complete",
		zap.Int("total_found", report.TotalFound),
		zap.Int("inserted", report.Inserted),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("errors", report.Errors))
	return report, nil
}

func (s *Service) newRunID() string {
	if s.deps.IDs == nil {
		return ""
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Warn("generate run id", zap.Error(err))
		return ""
	}
	return id
}
