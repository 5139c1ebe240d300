package somnia

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func pipelineInputs(days int) Inputs {
	start := NewDay(2024, time.April, 1)
	var inputs Inputs
	for _, user := range []string{"u1", "u2"} {
		for i := 0; i < days; i++ {
			day := start.AddDays(i)
			inputs.Activity = append(inputs.Activity, testActivity(user, day, 5000+1000*i))
			inputs.DailySleep = append(inputs.DailySleep, testSleep(user, day, 380+10*i, 450))
		}
	}
	return inputs
}

func TestPipelineRun(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())

	result, err := p.Run(context.Background(), pipelineInputs(6))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.RunID == "" {
		t.Error("RunID is empty")
	}
	// 6 days per user, lag 3 drops the first 3: 3 rows per user.
	if result.Stats.Finalize.RowsOut != 6 {
		t.Errorf("RowsOut = %d, want 6", result.Stats.Finalize.RowsOut)
	}
	if result.Stats.Merge.MergedRows != 12 {
		t.Errorf("MergedRows = %d, want 12", result.Stats.Merge.MergedRows)
	}
	if result.Stats.Aggregate != nil {
		t.Error("Aggregate stats set despite daily sleep input")
	}
	if len(result.Stats.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Stats.Warnings)
	}

	stats := p.Stats()
	if stats.TotalRuns != 1 || stats.FailedRuns != 0 || stats.RowsEmitted != 6 {
		t.Errorf("pipeline stats = %+v", stats)
	}
}

func TestPipelineMissingActivity(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())

	_, err := p.Run(context.Background(), Inputs{})
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("Run() error = %v, want ErrMissingInput", err)
	}
	if p.Stats().FailedRuns != 1 {
		t.Errorf("FailedRuns = %d, want 1", p.Stats().FailedRuns)
	}
}

func TestPipelineMissingSleep(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())

	inputs := pipelineInputs(4)
	inputs.DailySleep = nil

	_, err := p.Run(context.Background(), inputs)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("Run() error = %v, want ErrMissingInput", err)
	}
}

func TestPipelineMinuteSleepFallback(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	start := NewDay(2024, time.April, 1)

	inputs := Inputs{}
	for i := 0; i < 5; i++ {
		day := start.AddDays(i)
		inputs.Activity = append(inputs.Activity, testActivity("u1", day, 5000))
		for m := 0; m < 60; m++ {
			stage := StageAsleep
			if m%10 == 0 {
				stage = StageRestless
			}
			inputs.SleepObservations = append(inputs.SleepObservations,
				minuteObs("u1", day, int64(i), stage, m))
		}
	}

	result, err := p.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stats.Aggregate == nil {
		t.Fatal("Aggregate stats missing for minute-sleep input")
	}
	if result.Stats.Aggregate.Days != 5 {
		t.Errorf("aggregated days = %d, want 5", result.Stats.Aggregate.Days)
	}
	if result.Stats.Merge.MergedRows != 5 {
		t.Errorf("MergedRows = %d, want 5", result.Stats.Merge.MergedRows)
	}
}

func TestPipelineParallelMatchesSequential(t *testing.T) {
	inputs := pipelineInputs(8)

	seq := NewPipeline(DefaultPipelineConfig())
	seqResult, err := seq.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("sequential Run() error = %v", err)
	}

	cfg := DefaultPipelineConfig()
	cfg.Workers = 4
	par := NewPipeline(cfg)
	parResult, err := par.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("parallel Run() error = %v", err)
	}

	if len(seqResult.Table.Rows) != len(parResult.Table.Rows) {
		t.Fatalf("row counts differ: %d vs %d", len(seqResult.Table.Rows), len(parResult.Table.Rows))
	}
	columns := seqResult.Table.Columns()
	for i := range seqResult.Table.Rows {
		a, b := seqResult.Table.Rows[i], parResult.Table.Rows[i]
		if a.UserID != b.UserID || a.Date != b.Date {
			t.Fatalf("row %d identity differs: %s/%s vs %s/%s", i, a.UserID, a.Date, b.UserID, b.Date)
		}
		for _, col := range columns {
			if col == "Id" || col == "Date" {
				continue
			}
			x, y := seqResult.Table.Value(i, col), parResult.Table.Value(i, col)
			if x != y && !(math.IsNaN(x) && math.IsNaN(y)) {
				t.Errorf("row %d column %s differs: %v vs %v", i, col, x, y)
			}
		}
	}
}

func TestPipelineWarnings(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	start := NewDay(2024, time.April, 1)

	inputs := Inputs{
		Activity: []ActivityRecord{
			testActivity("short", start, 5000),
			testActivity("short", start.AddDays(1), 6000),
		},
		DailySleep: []DailySleepSummary{
			testSleep("short", start, 400, 450),
			testSleep("short", start.AddDays(1), 0, 0),
		},
	}

	result, err := p.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	codes := make(map[QualityCode]bool)
	for _, w := range result.Stats.Warnings {
		codes[w.Code] = true
	}
	if !codes[QualityZeroInBed] {
		t.Error("missing zero-in-bed warning")
	}
	if !codes[QualityUserDropped] {
		t.Error("missing user-dropped warning")
	}
	if result.Stats.Finalize.RowsOut != 0 {
		t.Errorf("RowsOut = %d, want 0", result.Stats.Finalize.RowsOut)
	}
}

func TestPipelineEmptyJoinWarning(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	start := NewDay(2024, time.April, 1)

	// Activity and sleep never overlap on (user, day).
	inputs := Inputs{
		Activity:   []ActivityRecord{testActivity("u1", start, 5000)},
		DailySleep: []DailySleepSummary{testSleep("u2", start, 400, 450)},
	}

	result, err := p.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Stats.Warnings) == 0 || result.Stats.Warnings[0].Code != QualityEmptyJoin {
		t.Errorf("expected empty-join warning, got %v", result.Stats.Warnings)
	}
}

func TestPipelineContextCancelled(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, pipelineInputs(4))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestPipelineConfigNormalized(t *testing.T) {
	p := NewPipeline(PipelineConfig{})

	cfg := p.Config()
	if len(cfg.Features.LagOffsets) != 3 || cfg.Features.LagOffsets[0] != 1 {
		t.Errorf("LagOffsets = %v, want [1 2 3]", cfg.Features.LagOffsets)
	}
	if cfg.Features.RestThresholdMinutes != 30 {
		t.Errorf("RestThresholdMinutes = %d, want 30", cfg.Features.RestThresholdMinutes)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
}
