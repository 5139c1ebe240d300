package somnia

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Inputs carries the raw tables for one pipeline run. Activity is always
// required. Sleep may be provided pre-aggregated (DailySleep) or as
// minute-level observations (SleepObservations); when both are present the
// daily table wins and the observations are ignored.
type Inputs struct {
	Activity          []ActivityRecord
	DailySleep        []DailySleepSummary
	SleepObservations []SleepObservation
}

// RunStats aggregates per-stage statistics and data-quality warnings for a
// single run.
type RunStats struct {
	Aggregate *AggregateStats  `json:"aggregate,omitempty"`
	Merge     MergeStats       `json:"merge"`
	Finalize  FinalizeStats    `json:"finalize"`
	Warnings  []QualityWarning `json:"warnings,omitempty"`
}

// RunResult is the outcome of a pipeline run.
type RunResult struct {
	RunID    string        `json:"run_id"`
	Table    FeatureTable  `json:"-"`
	Stats    RunStats      `json:"stats"`
	Duration time.Duration `json:"duration"`
}

// Pipeline runs the aggregate → merge → synthesize → finalize stages over
// in-memory tables. Each stage is pure; the pipeline itself only tracks run
// counters and optional metric push state, so a Pipeline is safe for
// concurrent Run calls.
type Pipeline struct {
	config  PipelineConfig
	metrics *RemoteWriter

	totalRuns   atomic.Uint64
	failedRuns  atomic.Uint64
	rowsEmitted atomic.Uint64
}

// NewPipeline creates a pipeline with the given configuration. Zero-valued
// config fields fall back to DefaultPipelineConfig values.
func NewPipeline(config PipelineConfig) *Pipeline {
	config.normalize()
	p := &Pipeline{config: config}
	if config.Metrics != nil && config.Metrics.Enabled {
		p.metrics = NewRemoteWriter(*config.Metrics)
	}
	return p
}

// Config returns the normalized pipeline configuration.
func (p *Pipeline) Config() PipelineConfig {
	return p.config
}

// RemoteWriterRef exposes the metric writer so callers can swap the HTTP
// client (tests) or inspect push stats. Nil when metrics are disabled.
func (p *Pipeline) RemoteWriterRef() *RemoteWriter {
	return p.metrics
}

// Run executes the full pipeline over the given inputs.
//
// Structural problems (missing activity table, no sleep source at all) abort
// with an error wrapping ErrMissingInput. Data-quality findings — an empty
// join, zero-in-bed days, users removed wholesale at finalization — degrade
// gracefully and are reported in RunStats.Warnings.
func (p *Pipeline) Run(ctx context.Context, inputs Inputs) (*RunResult, error) {
	start := time.Now()
	p.totalRuns.Add(1)

	result := &RunResult{RunID: uuid.NewString()}

	if len(inputs.Activity) == 0 {
		p.failedRuns.Add(1)
		return nil, &InputError{Input: "activity"}
	}

	daily := inputs.DailySleep
	if len(daily) == 0 {
		if len(inputs.SleepObservations) == 0 {
			p.failedRuns.Add(1)
			return nil, &InputError{Input: "sleep", Message: "neither daily summaries nor observations provided"}
		}
		aggregated, aggStats := AggregateSleep(inputs.SleepObservations)
		daily = aggregated
		result.Stats.Aggregate = &aggStats
	}

	if err := ctx.Err(); err != nil {
		p.failedRuns.Add(1)
		return nil, err
	}

	merged, mergeStats := MergeActivitySleep(inputs.Activity, daily)
	result.Stats.Merge = mergeStats
	if mergeStats.MergedRows == 0 {
		result.Stats.Warnings = append(result.Stats.Warnings, QualityWarning{
			Code:    QualityEmptyJoin,
			Message: "activity/sleep join produced zero rows",
		})
	}
	if mergeStats.ZeroInBed > 0 {
		result.Stats.Warnings = append(result.Stats.Warnings, QualityWarning{
			Code:    QualityZeroInBed,
			Message: "days with zero minutes in bed yield a non-finite efficiency",
			Count:   mergeStats.ZeroInBed,
		})
	}

	features, err := p.synthesize(ctx, merged)
	if err != nil {
		p.failedRuns.Add(1)
		return nil, err
	}

	table, finStats := Finalize(features, p.config.Features, p.config.Finalize)
	result.Stats.Finalize = finStats
	if len(finStats.DroppedUsers) > 0 {
		result.Stats.Warnings = append(result.Stats.Warnings, QualityWarning{
			Code:    QualityUserDropped,
			Message: fmt.Sprintf("users with too few records for lag coverage: %v", finStats.DroppedUsers),
			Count:   len(finStats.DroppedUsers),
		})
	}

	result.Table = table
	result.Duration = time.Since(start)
	p.rowsEmitted.Add(uint64(len(table.Rows)))

	if p.metrics != nil {
		// Metric push is best effort; a run never fails on it.
		_ = p.metrics.PushRun(ctx, result)
	}

	return result, nil
}

// synthesize runs per-user feature synthesis, fanning out across a worker
// pool when configured. Results are assembled in sorted-user order so the
// output is identical to the sequential path regardless of scheduling.
func (p *Pipeline) synthesize(ctx context.Context, merged []MergedRecord) ([]FeatureRecord, error) {
	byUser := partitionByUser(merged)
	users := sortedUserIDs(byUser)

	if p.config.Workers <= 1 || len(users) < 2 {
		out := make([]FeatureRecord, 0, len(merged))
		for _, userID := range users {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out = append(out, SynthesizeUserFeatures(byUser[userID], p.config.Features)...)
		}
		return out, nil
	}

	results := make([][]FeatureRecord, len(users))
	sem := make(chan struct{}, p.config.Workers)
	var wg sync.WaitGroup

	for idx, userID := range users {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(idx int, timeline []MergedRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = SynthesizeUserFeatures(timeline, p.config.Features)
		}(idx, byUser[userID])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]FeatureRecord, 0, len(merged))
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

// PipelineStats holds lifetime pipeline counters.
type PipelineStats struct {
	TotalRuns   uint64 `json:"total_runs"`
	FailedRuns  uint64 `json:"failed_runs"`
	RowsEmitted uint64 `json:"rows_emitted"`
}

// Stats returns lifetime counters for this pipeline instance.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		TotalRuns:   p.totalRuns.Load(),
		FailedRuns:  p.failedRuns.Load(),
		RowsEmitted: p.rowsEmitted.Load(),
	}
}
