package somnia

// PipelineConfig defines the full pipeline configuration.
type PipelineConfig struct {
	// Features configures the feature synthesis stage.
	Features FeatureConfig `json:"features" yaml:"features"`

	// Finalize configures the finalization stage.
	Finalize FinalizeConfig `json:"finalize" yaml:"finalize"`

	// Workers is the number of concurrent per-user feature workers.
	// Values <= 1 run sequentially. Output is identical either way.
	Workers int `json:"workers" yaml:"workers"`

	// Metrics configures optional remote-write metric push after each run.
	// If nil or Enabled is false, no metrics are pushed.
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// FeatureConfig groups feature-synthesis settings.
type FeatureConfig struct {
	// LagOffsets are the positional lag offsets, in records, applied per user.
	// Default: [1, 2, 3].
	LagOffsets []int `json:"lag_offsets" yaml:"lag_offsets"`

	// RollingWindows are the rolling-mean window sizes, in records.
	// Default: [3, 7]. The windows also drive AcuteLoad (smallest window)
	// and ChronicLoad (largest window).
	RollingWindows []int `json:"rolling_windows" yaml:"rolling_windows"`

	// RestThresholdMinutes is the ActiveMinutesTotal value below which a day
	// counts as a rest day and resets the DaysSinceRest streak. Default: 30.
	RestThresholdMinutes int `json:"rest_threshold_minutes" yaml:"rest_threshold_minutes"`

	// CausalBaselines switches per-user baseline means (and the sleep-debt
	// reference mean) from full-history to strictly-prior-records. The
	// default false matches the exploratory personalization behavior; true
	// gives strict causal ordering at the cost of dropping each user's first
	// record at finalization.
	CausalBaselines bool `json:"causal_baselines" yaml:"causal_baselines"`
}

// FinalizeConfig groups finalization settings.
type FinalizeConfig struct {
	// KeepIncomplete, if true, skips the row-dropping pass and emits rows
	// with undefined engineered values. Default: false.
	KeepIncomplete bool `json:"keep_incomplete" yaml:"keep_incomplete"`
}

// MetricsConfig configures the Prometheus remote-write metric push.
type MetricsConfig struct {
	// Enabled turns on metric push after each run.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Endpoint is the remote-write URL (e.g. http://prom:9090/api/v1/write).
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Job is the job label attached to every pushed series. Default: "somnia".
	Job string `json:"job" yaml:"job"`

	// MaxAttempts bounds push retries. Default: 3.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// DefaultPipelineConfig returns a configuration with sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Features: FeatureConfig{
			LagOffsets:           []int{1, 2, 3},
			RollingWindows:       []int{3, 7},
			RestThresholdMinutes: 30,
			CausalBaselines:      false,
		},
		Finalize: FinalizeConfig{
			KeepIncomplete: false,
		},
		Workers: 1,
	}
}

// normalize fills zero-valued fields with defaults.
func (c *PipelineConfig) normalize() {
	def := DefaultPipelineConfig()
	if len(c.Features.LagOffsets) == 0 {
		c.Features.LagOffsets = def.Features.LagOffsets
	}
	if len(c.Features.RollingWindows) == 0 {
		c.Features.RollingWindows = def.Features.RollingWindows
	}
	if c.Features.RestThresholdMinutes == 0 {
		c.Features.RestThresholdMinutes = def.Features.RestThresholdMinutes
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Metrics != nil {
		if c.Metrics.Job == "" {
			c.Metrics.Job = "somnia"
		}
		if c.Metrics.MaxAttempts <= 0 {
			c.Metrics.MaxAttempts = 3
		}
	}
}

// NormalizedCopy returns a copy of the configuration with defaults applied.
func (c PipelineConfig) NormalizedCopy() PipelineConfig {
	c.normalize()
	return c
}
