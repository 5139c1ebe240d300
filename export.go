package somnia

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/golang/snappy"
)

// WriteCSV writes the feature table as CSV with a header row. Column order is
// the table's canonical order, so output is byte-stable for identical inputs.
// Undefined (NaN) cells are written empty; infinities print as +Inf/-Inf.
func WriteCSV(w io.Writer, table FeatureTable) error {
	writer := csv.NewWriter(w)
	columns := table.Columns()

	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	cells := make([]string, len(columns))
	for i := range table.Rows {
		for j, col := range columns {
			cells[j] = cellString(table, i, col)
		}
		if err := writer.Write(cells); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the feature table as a JSON array of row objects.
// Non-finite values serialize as null since JSON has no NaN literal.
func WriteJSON(w io.Writer, table FeatureTable) error {
	columns := table.Columns()
	rows := make([]map[string]any, len(table.Rows))

	for i, rec := range table.Rows {
		row := make(map[string]any, len(columns))
		for _, col := range columns {
			switch col {
			case "Id":
				row[col] = rec.UserID
			case "Date":
				row[col] = rec.Date.String()
			default:
				v := table.Value(i, col)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					row[col] = nil
				} else {
					row[col] = v
				}
			}
		}
		rows[i] = row
	}

	enc := json.NewEncoder(w)
	return enc.Encode(rows)
}

func cellString(table FeatureTable, row int, column string) string {
	rec := table.Rows[row]
	switch column {
	case "Id":
		return rec.UserID
	case "Date":
		return rec.Date.String()
	default:
		v := table.Value(row, column)
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// tablePayload is the serialized form of a feature table inside a compressed
// block. Cells are formatted strings so non-finite values survive the trip
// through JSON.
type tablePayload struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// EncodeTableSnappy serializes a feature table into a snappy-compressed block
// suitable for a TableStore or object storage.
func EncodeTableSnappy(table FeatureTable) ([]byte, error) {
	columns := table.Columns()
	payload := tablePayload{Columns: columns, Rows: make([][]string, len(table.Rows))}

	for i := range table.Rows {
		cells := make([]string, len(columns))
		for j, col := range columns {
			if col != "Id" && col != "Date" {
				v := table.Value(i, col)
				cells[j] = strconv.FormatFloat(v, 'g', -1, 64)
				continue
			}
			cells[j] = cellString(table, i, col)
		}
		payload.Rows[i] = cells
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal table: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeTableSnappy reverses EncodeTableSnappy. The reconstructed table
// carries the encoded column order; engineered values round-trip exactly,
// NaN included.
func DecodeTableSnappy(block []byte) (FeatureTable, error) {
	raw, err := snappy.Decode(nil, block)
	if err != nil {
		return FeatureTable{}, fmt.Errorf("decompress table: %w", err)
	}

	var payload tablePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return FeatureTable{}, fmt.Errorf("unmarshal table: %w", err)
	}

	rows := make([]FeatureRecord, len(payload.Rows))
	for i, cells := range payload.Rows {
		if len(cells) != len(payload.Columns) {
			return FeatureTable{}, fmt.Errorf("row %d: %d cells, want %d", i, len(cells), len(payload.Columns))
		}
		rec := FeatureRecord{Features: make(map[string]float64, len(cells))}
		for j, col := range payload.Columns {
			cell := cells[j]
			switch col {
			case "Id":
				rec.UserID = cell
				continue
			case "Date":
				parsed, err := parseDate(cell)
				if err != nil {
					return FeatureTable{}, fmt.Errorf("row %d: %w", i, err)
				}
				rec.Date = DayOf(parsed)
				continue
			}

			v := nan
			if cell != "" {
				v, err = strconv.ParseFloat(cell, 64)
				if err != nil {
					return FeatureTable{}, fmt.Errorf("row %d: column %s: %w", i, col, err)
				}
			}
			if !setBaseColumn(&rec, col, v) {
				rec.Features[col] = v
			}
		}
		rows[i] = rec
	}

	return FeatureTable{Rows: rows, columns: payload.Columns}, nil
}

// setBaseColumn routes a decoded cell into its raw-record field; engineered
// columns return false and land in the feature map instead.
func setBaseColumn(rec *FeatureRecord, column string, v float64) bool {
	switch column {
	case "TotalSteps":
		rec.TotalSteps = int(v)
	case "TotalDistance":
		rec.TotalDistance = v
	case "Calories":
		rec.Calories = int(v)
	case "VeryActiveMinutes":
		rec.VeryActiveMinutes = int(v)
	case "FairlyActiveMinutes":
		rec.FairlyActiveMinutes = int(v)
	case "LightlyActiveMinutes":
		rec.LightlyActiveMinutes = int(v)
	case "SedentaryMinutes":
		rec.SedentaryMinutes = int(v)
	case "TotalMinutesAsleep":
		rec.MinutesAsleep = int(v)
	case "TotalTimeInBed":
		rec.MinutesInBed = int(v)
	case "TotalSleepRecords":
		rec.SleepRecords = int(v)
	case TargetColumn:
		rec.SleepEfficiency = v
	default:
		return false
	}
	return true
}
