// Package ingest runs source adapters, validates their candidates, and
// persists the survivors.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/recall-ingest/internal/metrics"
	"github.com/JakeFAU/recall-ingest/internal/recall"
)

// OrchestratorOptions controls how adapters are scheduled.
type OrchestratorOptions struct {
	// Parallel fans adapters out concurrently. When false they run in order
	// with SourcePause between them.
	Parallel    bool
	SourcePause time.Duration
}

// Collection is everything the adapters produced in one run.
type Collection struct {
	Candidates []recall.Candidate
	Results    map[recall.Source]recall.SourceRunResult
	// Invalid counts candidates dropped by validation.
	Invalid int
	// Skipped counts upstream items the adapters could not parse.
	Skipped int
}

// Orchestrator runs every adapter and merges their output.
type Orchestrator struct {
	adapters []recall.Adapter
	opts     OrchestratorOptions
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator builds an Orchestrator over adapters.
func NewOrchestrator(adapters []recall.Adapter, opts OrchestratorOptions, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		adapters: adapters,
		opts:     opts,
		logger:   logger.Named("orchestrator"),
		sleep:    pause,
	}
}

type outcome struct {
	batch recall.Batch
	err   error
}

// Collect runs the adapters and returns the validated candidates in adapter order.
// Adapter failures are recorded per source and never abort the others.
func (o *Orchestrator) Collect(ctx context.Context) Collection {
	outcomes := make([]outcome, len(o.adapters))
	if o.opts.Parallel {
		o.runParallel(ctx, outcomes)
	} else {
		o.runSequential(ctx, outcomes)
	}

	col := Collection{Results: make(map[recall.Source]recall.SourceRunResult, len(o.adapters))}
	for i, adapter := range o.adapters {
		src := adapter.Source()
		res := outcomes[i]
		result := recall.SourceRunResult{
			Source:  src,
			Success: res.err == nil,
			Count:   len(res.batch.Candidates),
			Tier:    res.batch.Tier,
			Skipped: res.batch.Skipped,
		}
		if res.err != nil {
			result.Error = res.err.Error()
			o.logger.Warn("source failed", zap.String("source", string(src)), zap.Error(res.err))
		}
		col.Results[src] = result
		col.Skipped += result.Skipped
		if result.Skipped > 0 {
			o.logger.Warn("source skipped unparseable items",
				zap.String("source", string(src)),
				zap.Int("skipped", result.Skipped))
		}
		metrics.ObserveSourceFetch(string(src), result.Success, result.Count)

		for _, candidate := range res.batch.Candidates {
			if err := candidate.Validate(); err != nil {
				col.Invalid++
				metrics.ObserveCandidate("invalid")
				o.logger.Warn("dropping invalid candidate",
					zap.String("source", string(src)),
					zap.String("title", candidate.Title),
					zap.Error(err))
				continue
			}
			col.Candidates = append(col.Candidates, candidate)
		}
	}
	o.logger.Info("collection complete",
		zap.Int("valid", len(col.Candidates)),
		zap.Int("invalid", col.Invalid),
		zap.Int("skipped", col.Skipped))
	return col
}

func (o *Orchestrator) runParallel(ctx context.Context, outcomes []outcome) {
	var g errgroup.Group
	for i, adapter := range o.adapters {
		g.Go(func() error {
			outcomes[i] = o.fetch(ctx, adapter)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) runSequential(ctx context.Context, outcomes []outcome) {
	for i, adapter := range o.adapters {
		if i > 0 && o.opts.SourcePause > 0 {
			if err := o.sleep(ctx, o.opts.SourcePause); err != nil {
				for j := i; j < len(o.adapters); j++ {
					outcomes[j] = outcome{err: err}
				}
				return
			}
		}
		outcomes[i] = o.fetch(ctx, adapter)
	}
}

// fetch runs one adapter, converting a panic into a failed outcome.
func (o *Orchestrator) fetch(ctx context.Context, adapter recall.Adapter) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("adapter panicked", zap.String("source", string(adapter.Source())), zap.Any("panic", r))
			out = outcome{err: fmt.Errorf("adapter panic: %v", r)}
		}
	}()
	batch, err := adapter.Fetch(ctx)
	if err != nil {
		// A failed adapter contributes nothing, even if it returned partial data.
		return outcome{batch: recall.Batch{Tier: batch.Tier}, err: err}
	}
	return outcome{batch: batch}
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("source pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
