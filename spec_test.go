package somnia

import (
	"strings"
	"testing"
)

const validSpecYAML = `
version: "1"
name: fitbit-april
inputs:
  activity: testdata/daily_activity.csv
  daily_sleep: testdata/daily_sleep.csv
config:
  features:
    lag_offsets: [1, 2]
    rolling_windows: [3, 7]
  workers: 4
outputs:
  - name: table
    type: csv
    path: ${OUT_DIR}/features.csv
vars:
  OUT_DIR: /tmp/somnia
`

func TestParsePipelineSpec(t *testing.T) {
	spec, err := ParsePipelineSpec([]byte(validSpecYAML))
	if err != nil {
		t.Fatalf("ParsePipelineSpec() error = %v", err)
	}

	if spec.Name != "fitbit-april" {
		t.Errorf("Name = %q", spec.Name)
	}
	if spec.Inputs.Activity != "testdata/daily_activity.csv" {
		t.Errorf("Activity = %q", spec.Inputs.Activity)
	}

	cfg := spec.BuildConfig()
	if len(cfg.Features.LagOffsets) != 2 || cfg.Features.LagOffsets[1] != 2 {
		t.Errorf("LagOffsets = %v", cfg.Features.LagOffsets)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	// Unset fields fall back to defaults.
	if cfg.Features.RestThresholdMinutes != 30 {
		t.Errorf("RestThresholdMinutes = %d, want 30", cfg.Features.RestThresholdMinutes)
	}
}

func TestSpecExpandVars(t *testing.T) {
	spec, err := ParsePipelineSpec([]byte(validSpecYAML))
	if err != nil {
		t.Fatal(err)
	}

	got := spec.ExpandVars(spec.Outputs[0].Path)
	if got != "/tmp/somnia/features.csv" {
		t.Errorf("ExpandVars() = %q", got)
	}
}

func TestSpecValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PipelineSpec)
		wantErr string
	}{
		{"missing version", func(s *PipelineSpec) { s.Version = "" }, "version"},
		{"missing name", func(s *PipelineSpec) { s.Name = "" }, "name"},
		{"missing activity", func(s *PipelineSpec) { s.Inputs.Activity = "" }, "activity"},
		{"no sleep source", func(s *PipelineSpec) { s.Inputs.DailySleep = "" }, "daily_sleep"},
		{"both sleep sources", func(s *PipelineSpec) { s.Inputs.MinuteSleep = "x.csv" }, "mutually exclusive"},
		{"bad lag", func(s *PipelineSpec) { s.Config.Features.LagOffsets = []int{0} }, "lag_offsets"},
		{"bad window", func(s *PipelineSpec) { s.Config.Features.RollingWindows = []int{-1} }, "rolling_windows"},
		{"bad output type", func(s *PipelineSpec) { s.Outputs[0].Type = "parquet" }, "not supported"},
		{"missing output path", func(s *PipelineSpec) { s.Outputs[0].Path = "" }, "path"},
		{"duplicate output", func(s *PipelineSpec) { s.Outputs = append(s.Outputs, s.Outputs[0]) }, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParsePipelineSpec([]byte(validSpecYAML))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(spec)
			err = spec.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSpecInvalidYAML(t *testing.T) {
	if _, err := ParsePipelineSpec([]byte("version: [")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestSpecMarshalRoundTrip(t *testing.T) {
	spec, err := ParsePipelineSpec([]byte(validSpecYAML))
	if err != nil {
		t.Fatal(err)
	}

	out, err := spec.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error = %v", err)
	}
	reparsed, err := ParsePipelineSpec(out)
	if err != nil {
		t.Fatalf("reparse error = %v", err)
	}
	if reparsed.Name != spec.Name || reparsed.Inputs.Activity != spec.Inputs.Activity {
		t.Errorf("round trip changed spec: %+v", reparsed)
	}
}
