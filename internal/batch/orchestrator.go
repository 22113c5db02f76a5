// Package batch runs the full intents x models cross-product: budget
// gate, bounded-concurrency dispatch, extraction and idempotent
// persistence, ending in exactly one RunSummary.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mindshare-cli/internal/budget"
	"github.com/sells-group/mindshare-cli/internal/extract"
	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/pricing"
	"github.com/sells-group/mindshare-cli/internal/store"
)

// DefaultConcurrency bounds in-flight provider calls across the batch.
const DefaultConcurrency = 10

// Executor runs one work item to its terminal outcome.
type Executor interface {
	Execute(ctx context.Context, item model.WorkItem) model.ExecutionOutcome
}

// Orchestrator coordinates one batch run end to end.
type Orchestrator struct {
	executor    Executor
	parser      extract.Parser
	store       store.Store
	estimator   budget.Estimator
	pricing     *pricing.Cache
	brands      model.BrandSet
	concurrency int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency overrides the dispatch concurrency bound.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithParser overrides the default pattern-ranking parser.
func WithParser(p extract.Parser) Option {
	return func(o *Orchestrator) { o.parser = p }
}

// New creates an Orchestrator.
func New(exec Executor, st store.Store, est budget.Estimator, pc *pricing.Cache, brands model.BrandSet, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor:    exec,
		parser:      extract.NewParser(),
		store:       st,
		estimator:   est,
		pricing:     pc,
		brands:      brands,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BuildItems expands intents x targets into work items, intents outer,
// targets inner. Deterministic: the same config always yields the same
// item order.
func BuildItems(intents []model.Intent, targets []model.Target) []model.WorkItem {
	items := make([]model.WorkItem, 0, len(intents)*len(targets))
	for _, intent := range intents {
		for _, target := range targets {
			items = append(items, model.WorkItem{
				Intent:   intent,
				Provider: target.Provider,
				Model:    target.Model,
			})
		}
	}
	return items
}

// RunAll executes the whole cross-product and returns its summary. The
// budget gate runs strictly first: an abort means zero provider calls
// and a persisted aborted run. Individual item failures never abort
// sibling items; the summary carries every terminal state.
func (o *Orchestrator) RunAll(ctx context.Context, intents []model.Intent, targets []model.Target) (*model.RunSummary, error) {
	items := BuildItems(intents, targets)
	startedAt := time.Now().UTC()

	estimate := o.estimator.Estimate(items, o.pricing.Snapshot())
	decision := o.estimator.Check(estimate)

	run, err := o.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "batch: create run")
	}

	log := zap.L().With(zap.String("run_id", run.ID))

	switch decision.Kind {
	case budget.Abort:
		log.Warn("budget gate aborted run",
			zap.Float64("estimated_usd", estimate.TotalUSD),
			zap.String("reason", decision.Reason),
		)
		summary := &model.RunSummary{
			RunID:       run.ID,
			Status:      model.RunStatusAborted,
			Attempted:   0,
			AbortReason: decision.Reason,
			StartedAt:   startedAt,
			FinishedAt:  time.Now().UTC(),
		}
		if err := o.store.FinalizeRun(ctx, run.ID, summary); err != nil {
			return nil, eris.Wrap(err, "batch: finalize aborted run")
		}
		return summary, nil
	case budget.ProceedWithWarning:
		log.Warn("budget warning",
			zap.Float64("estimated_usd", estimate.TotalUSD),
			zap.String("reason", decision.Reason),
		)
	}

	log.Info("dispatching batch",
		zap.Int("items", len(items)),
		zap.Int("intents", len(intents)),
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", o.concurrency),
		zap.Float64("estimated_usd", estimate.TotalUSD),
	)

	results := make([]model.ItemResult, len(items))
	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, item := range items {
		i, item := i, item // per-iteration copies for the Go 1.21 toolchain
		g.Go(func() error {
			results[i] = o.runItem(gctx, run.ID, item, &succeeded, &failed)
			return nil // individual failures never abort the batch
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch: dispatch")
	}

	var totalCost float64
	for _, r := range results {
		totalCost += r.Outcome.ActualCost
	}

	summary := &model.RunSummary{
		RunID:      run.ID,
		Status:     model.RunStatusComplete,
		Attempted:  len(items),
		Succeeded:  int(succeeded.Load()),
		Failed:     int(failed.Load()),
		TotalCost:  totalCost,
		Items:      results,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if err := o.store.FinalizeRun(ctx, run.ID, summary); err != nil {
		return nil, eris.Wrap(err, "batch: finalize run")
	}

	log.Info("batch complete",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Float64("total_cost_usd", summary.TotalCost),
	)
	return summary, nil
}

// runItem takes one work item to a terminal, persisted state. Store
// errors degrade to logs: a persistence hiccup on one item must not
// poison the rest of the run.
func (o *Orchestrator) runItem(ctx context.Context, runID string, item model.WorkItem, succeeded, failed *atomic.Int64) model.ItemResult {
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("intent", item.Intent.ID),
		zap.String("provider", item.Provider),
		zap.String("model", item.Model),
	)

	outcome := o.executor.Execute(ctx, item)
	result := model.ItemResult{Item: item, Outcome: outcome}

	if outcome.OK {
		extraction := o.parser.Parse(ctx, outcome.RawText, o.brands, item.Intent.ID, item.Provider, item.Model, time.Now().UTC())
		result.Extraction = &extraction
		succeeded.Add(1)

		if err := o.store.InsertOutcome(ctx, runID, item, outcome, &extraction); err != nil {
			log.Error("persist outcome failed", zap.Error(err))
		}
		if err := o.store.InsertMentions(ctx, runID, extraction); err != nil {
			log.Error("persist mentions failed", zap.Error(err))
		}

		log.Info("item complete",
			zap.Bool("appeared_mine", extraction.AppearedMine),
			zap.Int("competitors", len(extraction.CompetitorMentions)),
			zap.String("rank_method", string(extraction.RankMethod)),
			zap.Float64("cost_usd", outcome.ActualCost),
		)
		return result
	}

	failed.Add(1)
	if err := o.store.InsertOutcome(ctx, runID, item, outcome, nil); err != nil {
		log.Error("persist outcome failed", zap.Error(err))
	}
	log.Warn("item failed",
		zap.String("kind", string(outcome.FailureKind)),
		zap.Int("attempts", outcome.Attempts),
		zap.String("error", outcome.ErrorMessage),
	)
	return result
}
