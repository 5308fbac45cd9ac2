package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// RunStatus is the lifecycle state of one pipeline run. A run starts in
// StatusRunning and makes exactly one terminal transition.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusWarning RunStatus = "warning"
	StatusError   RunStatus = "error"
)

// Store is the persistence surface the pipeline depends on. The concrete
// Postgres implementation lives in internal/store.
type Store interface {
	// UpsertSecurities inserts stub rows for unknown symbols, leaving any
	// existing descriptive fields untouched. Returns the batch size.
	UpsertSecurities(ctx context.Context, symbols []string) (int, error)
	// UpsertPrices bulk-upserts rows keyed by (symbol, trade_date),
	// overwriting every value field on conflict. Returns the batch size.
	UpsertPrices(ctx context.Context, rows []EnrichedPrice) (int, error)
	// StartRun opens a run record in the running state and returns its id.
	StartRun(ctx context.Context) (int64, error)
	// FinishRun performs the terminal transition for a running run.
	FinishRun(ctx context.Context, runID int64, status RunStatus, message string) error
}

// Pipeline sequences one batch execution: open a run record, extract,
// transform, load, and finalize the run from the outcome.
type Pipeline struct {
	extractor *Extractor
	loader    *Loader
	store     Store
}

// NewPipeline wires the pipeline stages.
func NewPipeline(extractor *Extractor, loader *Loader, store Store) *Pipeline {
	return &Pipeline{extractor: extractor, loader: loader, store: store}
}

// Run executes one batch for the given symbols and date range.
//
// Exactly one finalize happens per run regardless of where a failure occurs,
// including panics, and the failure that finalized the run is still returned
// to the caller. An extraction that yields nothing is a designed outcome, not
// an error: the run finalizes as warning and the later stages never execute.
func (p *Pipeline) Run(ctx context.Context, symbols []string, start, end time.Time) (err error) {
	runID, err := p.store.StartRun(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: start run: %w", err)
	}
	logx.WithContext(ctx).Infof("pipeline: run %d started, symbols=%d range=%s..%s",
		runID, len(symbols), start.Format("2006-01-02"), end.Format("2006-01-02"))

	finalized := false
	finish := func(status RunStatus, message string) {
		if finalized {
			return
		}
		finalized = true
		if ferr := p.store.FinishRun(ctx, runID, status, message); ferr != nil {
			logx.WithContext(ctx).Errorf("pipeline: finalize run %d as %s: %v", runID, status, ferr)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			finish(StatusError, fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	raw := p.extractor.FetchPrices(ctx, symbols, start, end)
	if len(raw) == 0 {
		msg := fmt.Sprintf("no data extracted for any of %d symbols", len(symbols))
		logx.WithContext(ctx).Infof("pipeline: run %d finished with warning: %s", runID, msg)
		finish(StatusWarning, msg)
		return nil
	}

	enriched, err := ApplyTransformations(raw)
	if err != nil {
		finish(StatusError, fmt.Sprintf("transform failed: %v", err))
		return fmt.Errorf("pipeline: transform: %w", err)
	}

	result, err := p.loader.LoadPrices(ctx, enriched)
	if err != nil {
		finish(StatusError, fmt.Sprintf("load failed: %v", err))
		return fmt.Errorf("pipeline: %w", err)
	}

	msg := runSummary(len(raw), len(enriched), result, MissingCounts(enriched))
	logx.WithContext(ctx).Infof("pipeline: run %d finished: %s", runID, msg)
	finish(StatusSuccess, msg)
	return nil
}

func runSummary(extracted, enriched int, result LoadResult, nulls map[string]int) string {
	msg := fmt.Sprintf("extracted=%d enriched=%d securities_upserts=%d price_upserts=%d nulls[",
		extracted, enriched, result.SecurityUpserts, result.PriceUpserts)
	for i, field := range indicatorFields {
		if i > 0 {
			msg += " "
		}
		msg += fmt.Sprintf("%s=%d", field, nulls[field])
	}
	return msg + "]"
}
