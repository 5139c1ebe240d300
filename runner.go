package somnia

import (
	"context"
	"fmt"
	"os"
)

// ExecuteSpec runs a full pipeline as described by a YAML spec: load the
// input CSVs, run the stages, then write every declared output.
func ExecuteSpec(ctx context.Context, spec *PipelineSpec) (*RunResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	inputs, err := loadSpecInputs(spec)
	if err != nil {
		return nil, err
	}

	pipeline := NewPipeline(spec.BuildConfig())
	result, err := pipeline.Run(ctx, inputs)
	if err != nil {
		return nil, err
	}

	for _, out := range spec.Outputs {
		if err := writeSpecOutput(ctx, spec, out, result); err != nil {
			return result, fmt.Errorf("output %s: %w", out.Name, err)
		}
	}
	return result, nil
}

func loadSpecInputs(spec *PipelineSpec) (Inputs, error) {
	var inputs Inputs

	activityFile, err := os.Open(spec.ExpandVars(spec.Inputs.Activity))
	if err != nil {
		return inputs, fmt.Errorf("open activity: %w", err)
	}
	defer func() { _ = activityFile.Close() }()
	if inputs.Activity, err = LoadActivityCSV(activityFile); err != nil {
		return inputs, err
	}

	if spec.Inputs.DailySleep != "" {
		sleepFile, err := os.Open(spec.ExpandVars(spec.Inputs.DailySleep))
		if err != nil {
			return inputs, fmt.Errorf("open daily sleep: %w", err)
		}
		defer func() { _ = sleepFile.Close() }()
		if inputs.DailySleep, err = LoadDailySleepCSV(sleepFile); err != nil {
			return inputs, err
		}
		return inputs, nil
	}

	minuteFile, err := os.Open(spec.ExpandVars(spec.Inputs.MinuteSleep))
	if err != nil {
		return inputs, fmt.Errorf("open minute sleep: %w", err)
	}
	defer func() { _ = minuteFile.Close() }()
	if inputs.SleepObservations, err = LoadMinuteSleepCSV(minuteFile); err != nil {
		return inputs, err
	}
	return inputs, nil
}

func writeSpecOutput(ctx context.Context, spec *PipelineSpec, out OutputSpec, result *RunResult) error {
	path := spec.ExpandVars(out.Path)

	switch out.Type {
	case "csv", "json":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if out.Type == "csv" {
			if err := WriteCSV(f, result.Table); err != nil {
				return err
			}
		} else if err := WriteJSON(f, result.Table); err != nil {
			return err
		}
		return f.Close()

	case "snappy":
		block, err := EncodeTableSnappy(result.Table)
		if err != nil {
			return err
		}
		if password := out.Options["seal_password"]; password != "" {
			sealer, err := NewTableSealer(spec.ExpandVars(password))
			if err != nil {
				return err
			}
			if block, err = sealer.Seal(block); err != nil {
				return err
			}
		}
		return os.WriteFile(path, block, 0o644)

	case "sqlite":
		store, err := NewSQLiteStore(SQLiteStoreConfig{Path: path})
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.SaveRun(ctx, result); err != nil {
			return err
		}
		return store.Close()

	default:
		return fmt.Errorf("unsupported output type %q", out.Type)
	}
}
