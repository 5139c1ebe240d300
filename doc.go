// Package somnia builds sleep-efficiency feature tables from wearable-device
// activity and sleep exports.
//
// The pipeline merges daily activity with daily sleep per (user, day),
// derives a SleepEfficiency target and a per-user engineered feature set
// (lags, rolling means, personal baselines, sleep debt, training load,
// calendar encodings), then finalizes a model-ready table with incomplete
// rows removed.
//
// # Basic Usage
//
// Run the pipeline over in-memory tables:
//
//	p := somnia.NewPipeline(somnia.DefaultPipelineConfig())
//	result, err := p.Run(ctx, somnia.Inputs{
//	    Activity:   activity,
//	    DailySleep: sleep,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = somnia.WriteCSV(os.Stdout, result.Table)
//
// Minute-level sleep logs are aggregated automatically when no daily sleep
// table is provided:
//
//	result, err := p.Run(ctx, somnia.Inputs{
//	    Activity:          activity,
//	    SleepObservations: observations,
//	})
//
// # Features
//
// Pipeline:
//   - Minute-level sleep aggregation into daily summaries
//   - Inner join of activity and sleep on (user, day)
//   - Per-user lags, rolling means, baselines and deviations
//   - Sleep debt, acute/chronic training load, rest-day streaks
//   - Deterministic output, optional per-user worker fan-out
//
// Input & Output:
//   - Header-driven CSV loaders with tolerant date parsing
//   - CSV, JSON and snappy-compressed table exports
//   - SQLite run store queryable with standard SQL tools
//   - Pluggable blob stores (file, memory, S3)
//   - Sealed exports with AES-256-GCM
//
// Operations:
//   - Declarative YAML run specs
//   - Per-stage statistics and data-quality warnings
//   - Prometheus remote-write metric push per run
//
// # Configuration
//
// Use [PipelineConfig] to customize behavior:
//
//	cfg := somnia.PipelineConfig{
//	    Features: somnia.FeatureConfig{
//	        LagOffsets:     []int{1, 2},
//	        RollingWindows: []int{3, 7},
//	    },
//	    Workers: 4,
//	}
//
// Or use [DefaultPipelineConfig] for sensible defaults.
package somnia
