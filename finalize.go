package somnia

import (
	"math"
	"sort"
)

// TargetColumn is the regression target emitted by the pipeline.
const TargetColumn = "SleepEfficiency"

// baseColumns are the raw columns carried ahead of the engineered set.
var baseColumns = []string{
	"Id",
	"Date",
	"TotalSteps",
	"TotalDistance",
	"Calories",
	"VeryActiveMinutes",
	"FairlyActiveMinutes",
	"LightlyActiveMinutes",
	"SedentaryMinutes",
	"TotalMinutesAsleep",
	"TotalTimeInBed",
	"TotalSleepRecords",
	TargetColumn,
}

// excludedColumns never enter the model feature vector: identifiers, dates,
// raw sleep totals, session counts and the target itself.
var excludedColumns = map[string]bool{
	"Id":                 true,
	"Date":               true,
	"TotalMinutesAsleep": true,
	"TotalTimeInBed":     true,
	"TotalSleepRecords":  true,
	TargetColumn:         true,
}

// FeatureTable is the finalized feature matrix: one row per retained
// (user, day) with a fixed, reproducible column set.
type FeatureTable struct {
	Rows    []FeatureRecord
	columns []string // cached full column order
}

// NewFeatureTable builds a table over finalized rows for a feature config.
func NewFeatureTable(rows []FeatureRecord, cfg FeatureConfig) FeatureTable {
	columns := make([]string, 0, len(baseColumns)+48)
	columns = append(columns, baseColumns...)
	for _, col := range FeatureColumns(cfg) {
		columns = append(columns, col)
	}
	return FeatureTable{Rows: rows, columns: columns}
}

// Columns returns the full ordered column set, raw columns first.
func (t FeatureTable) Columns() []string {
	return append([]string(nil), t.columns...)
}

// ModelColumns returns the ordered model input columns: the full column set
// minus identifiers, dates, raw sleep totals, session counts and the target.
func (t FeatureTable) ModelColumns() []string {
	cols := make([]string, 0, len(t.columns))
	for _, col := range t.columns {
		if !excludedColumns[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// Value returns a numeric cell by column name. Identifier and date columns
// are not numeric; use the row's UserID and Date fields directly.
func (t FeatureTable) Value(row int, column string) float64 {
	rec := t.Rows[row]
	switch column {
	case "TotalSteps":
		return float64(rec.TotalSteps)
	case "TotalDistance":
		return rec.TotalDistance
	case "Calories":
		return float64(rec.Calories)
	case "VeryActiveMinutes":
		return float64(rec.VeryActiveMinutes)
	case "FairlyActiveMinutes":
		return float64(rec.FairlyActiveMinutes)
	case "LightlyActiveMinutes":
		return float64(rec.LightlyActiveMinutes)
	case "SedentaryMinutes":
		return float64(rec.SedentaryMinutes)
	case "TotalMinutesAsleep":
		return float64(rec.MinutesAsleep)
	case "TotalTimeInBed":
		return float64(rec.MinutesInBed)
	case "TotalSleepRecords":
		return float64(rec.SleepRecords)
	case TargetColumn:
		return rec.SleepEfficiency
	default:
		return rec.Feature(column)
	}
}

// FinalizeStats reports what finalization removed.
type FinalizeStats struct {
	RowsIn       int      `json:"rows_in"`
	RowsOut      int      `json:"rows_out"`
	RowsDropped  int      `json:"rows_dropped"`
	DroppedUsers []string `json:"dropped_users,omitempty"`
}

// Finalize removes every record with an undefined (NaN) value in any
// engineered column — each user's earliest rows, introduced by lags and
// causal baselines — and emits the final feature table.
//
// Only NaN counts as missing. Non-finite infinities (a zero minutes-in-bed
// day, or lags of its efficiency) pass through untouched.
func Finalize(records []FeatureRecord, featureCfg FeatureConfig, cfg FinalizeConfig) (FeatureTable, FinalizeStats) {
	stats := FinalizeStats{RowsIn: len(records)}
	columns := FeatureColumns(featureCfg)

	if cfg.KeepIncomplete {
		stats.RowsOut = len(records)
		return NewFeatureTable(records, featureCfg), stats
	}

	usersIn := make(map[string]bool)
	usersOut := make(map[string]bool)
	kept := make([]FeatureRecord, 0, len(records))

	for _, rec := range records {
		usersIn[rec.UserID] = true
		if rowComplete(rec, columns) {
			kept = append(kept, rec)
			usersOut[rec.UserID] = true
		}
	}

	for userID := range usersIn {
		if !usersOut[userID] {
			stats.DroppedUsers = append(stats.DroppedUsers, userID)
		}
	}
	sort.Strings(stats.DroppedUsers)
	stats.RowsOut = len(kept)
	stats.RowsDropped = stats.RowsIn - stats.RowsOut

	return NewFeatureTable(kept, featureCfg), stats
}

func rowComplete(rec FeatureRecord, columns []string) bool {
	for _, col := range columns {
		if math.IsNaN(rec.Feature(col)) {
			return false
		}
	}
	return true
}
