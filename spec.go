package somnia

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PipelineSpec is a declarative YAML pipeline definition. It names the input
// files, the feature settings and the output destinations, so a run is fully
// described by one document.
type PipelineSpec struct {
	Version string            `yaml:"version"`
	Name    string            `yaml:"name"`
	Inputs  InputSpec         `yaml:"inputs"`
	Config  PipelineConfig    `yaml:"config,omitempty"`
	Outputs []OutputSpec      `yaml:"outputs,omitempty"`
	Vars    map[string]string `yaml:"vars,omitempty"`
}

// InputSpec names the source CSV files. Activity is required; exactly one of
// DailySleep or MinuteSleep must be set.
type InputSpec struct {
	Activity    string `yaml:"activity"`
	DailySleep  string `yaml:"daily_sleep,omitempty"`
	MinuteSleep string `yaml:"minute_sleep,omitempty"`
}

// OutputSpec defines one output destination for the finalized table.
type OutputSpec struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"` // csv, json, snappy, sqlite
	Path    string            `yaml:"path"`
	Options map[string]string `yaml:"options,omitempty"`
}

// ParsePipelineSpec parses and validates a YAML pipeline definition.
func ParsePipelineSpec(data []byte) (*PipelineSpec, error) {
	var s PipelineSpec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("spec: invalid YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParsePipelineSpecFile parses a YAML pipeline definition from a file path.
func ParsePipelineSpecFile(path string) (*PipelineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spec: cannot read %s: %w", path, err)
	}
	return ParsePipelineSpec(data)
}

// Validate checks the spec for structural correctness.
func (s *PipelineSpec) Validate() error {
	if s.Version == "" {
		return fmt.Errorf("spec: version is required")
	}
	if s.Name == "" {
		return fmt.Errorf("spec: name is required")
	}
	if s.Inputs.Activity == "" {
		return fmt.Errorf("spec: inputs.activity is required")
	}
	if s.Inputs.DailySleep == "" && s.Inputs.MinuteSleep == "" {
		return fmt.Errorf("spec: one of inputs.daily_sleep or inputs.minute_sleep is required")
	}
	if s.Inputs.DailySleep != "" && s.Inputs.MinuteSleep != "" {
		return fmt.Errorf("spec: inputs.daily_sleep and inputs.minute_sleep are mutually exclusive")
	}

	for _, lag := range s.Config.Features.LagOffsets {
		if lag < 1 {
			return fmt.Errorf("spec: config.features.lag_offsets must be positive, got %d", lag)
		}
	}
	for _, window := range s.Config.Features.RollingWindows {
		if window < 1 {
			return fmt.Errorf("spec: config.features.rolling_windows must be positive, got %d", window)
		}
	}

	outputNames := make(map[string]bool)
	validTypes := map[string]bool{"csv": true, "json": true, "snappy": true, "sqlite": true}
	for i, out := range s.Outputs {
		if out.Name == "" {
			return fmt.Errorf("spec: outputs[%d].name is required", i)
		}
		if !validTypes[out.Type] {
			return fmt.Errorf("spec: outputs[%d].type %q is not supported (valid: csv, json, snappy, sqlite)", i, out.Type)
		}
		if out.Path == "" {
			return fmt.Errorf("spec: outputs[%d].path is required", i)
		}
		if outputNames[out.Name] {
			return fmt.Errorf("spec: duplicate output name %q", out.Name)
		}
		outputNames[out.Name] = true
	}
	return nil
}

// BuildConfig returns the pipeline configuration with defaults applied.
func (s *PipelineSpec) BuildConfig() PipelineConfig {
	return s.Config.NormalizedCopy()
}

// ExpandVars replaces ${VAR} references with values from s.Vars, then from
// the process environment.
func (s *PipelineSpec) ExpandVars(v string) string {
	for k, val := range s.Vars {
		v = strings.ReplaceAll(v, "${"+k+"}", val)
	}
	return os.Expand(v, os.Getenv)
}

// MarshalYAML serializes the spec back to YAML bytes.
func (s *PipelineSpec) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(s)
}
