package somnia

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the accepted input date formats, tried in order: ISO dates,
// US-style dates and US-style timestamps as exported by consumer wearables.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"1/2/2006",
	"1/2/2006 3:04:05 PM",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// csvTable wraps a parsed CSV with header-driven column lookup. Input files in
// the wild reorder columns and add extras, so position is never trusted.
type csvTable struct {
	name    string
	columns map[string]int
	rows    [][]string
}

func readCSVTable(name string, r io.Reader) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &SchemaError{Table: name, Cause: fmt.Errorf("empty file")}
	}
	if err != nil {
		return nil, &SchemaError{Table: name, Cause: err}
	}

	columns := make(map[string]int, len(header))
	for i, col := range header {
		columns[strings.TrimSpace(col)] = i
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &SchemaError{Table: name, Cause: err}
	}
	return &csvTable{name: name, columns: columns, rows: rows}, nil
}

// require resolves column indexes, failing with a SchemaError naming the
// first missing column.
func (t *csvTable) require(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		pos, ok := t.columns[name]
		if !ok {
			return nil, newSchemaError(t.name, name)
		}
		idx[i] = pos
	}
	return idx, nil
}

func (t *csvTable) intField(row []string, idx, rowNum int, column string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(row[idx]))
	if err != nil {
		return 0, &SchemaError{Table: t.name, Cause: fmt.Errorf("row %d: column %s: %w", rowNum, column, err)}
	}
	return v, nil
}

func (t *csvTable) floatField(row []string, idx, rowNum int, column string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return 0, &SchemaError{Table: t.name, Cause: fmt.Errorf("row %d: column %s: %w", rowNum, column, err)}
	}
	return v, nil
}

func (t *csvTable) dayField(row []string, idx, rowNum int, column string) (Day, error) {
	parsed, err := parseDate(row[idx])
	if err != nil {
		return Day{}, &SchemaError{Table: t.name, Cause: fmt.Errorf("row %d: column %s: %w", rowNum, column, err)}
	}
	return DayOf(parsed), nil
}

// LoadActivityCSV reads a daily activity export. Columns are located by
// header name; extra columns are ignored.
func LoadActivityCSV(r io.Reader) ([]ActivityRecord, error) {
	table, err := readCSVTable("activity", r)
	if err != nil {
		return nil, err
	}

	idx, err := table.require(
		"Id", "ActivityDate", "TotalSteps", "TotalDistance", "Calories",
		"VeryActiveMinutes", "FairlyActiveMinutes", "LightlyActiveMinutes",
		"SedentaryMinutes",
	)
	if err != nil {
		return nil, err
	}

	records := make([]ActivityRecord, 0, len(table.rows))
	for n, row := range table.rows {
		rowNum := n + 2 // header is line 1
		rec := ActivityRecord{UserID: strings.TrimSpace(row[idx[0]])}
		if rec.Date, err = table.dayField(row, idx[1], rowNum, "ActivityDate"); err != nil {
			return nil, err
		}
		if rec.TotalSteps, err = table.intField(row, idx[2], rowNum, "TotalSteps"); err != nil {
			return nil, err
		}
		if rec.TotalDistance, err = table.floatField(row, idx[3], rowNum, "TotalDistance"); err != nil {
			return nil, err
		}
		if rec.Calories, err = table.intField(row, idx[4], rowNum, "Calories"); err != nil {
			return nil, err
		}
		if rec.VeryActiveMinutes, err = table.intField(row, idx[5], rowNum, "VeryActiveMinutes"); err != nil {
			return nil, err
		}
		if rec.FairlyActiveMinutes, err = table.intField(row, idx[6], rowNum, "FairlyActiveMinutes"); err != nil {
			return nil, err
		}
		if rec.LightlyActiveMinutes, err = table.intField(row, idx[7], rowNum, "LightlyActiveMinutes"); err != nil {
			return nil, err
		}
		if rec.SedentaryMinutes, err = table.intField(row, idx[8], rowNum, "SedentaryMinutes"); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadDailySleepCSV reads a pre-aggregated daily sleep export.
func LoadDailySleepCSV(r io.Reader) ([]DailySleepSummary, error) {
	table, err := readCSVTable("daily_sleep", r)
	if err != nil {
		return nil, err
	}

	idx, err := table.require(
		"Id", "SleepDay", "TotalSleepRecords", "TotalMinutesAsleep", "TotalTimeInBed",
	)
	if err != nil {
		return nil, err
	}

	summaries := make([]DailySleepSummary, 0, len(table.rows))
	for n, row := range table.rows {
		rowNum := n + 2
		s := DailySleepSummary{UserID: strings.TrimSpace(row[idx[0]])}
		if s.Date, err = table.dayField(row, idx[1], rowNum, "SleepDay"); err != nil {
			return nil, err
		}
		if s.SleepRecords, err = table.intField(row, idx[2], rowNum, "TotalSleepRecords"); err != nil {
			return nil, err
		}
		if s.MinutesAsleep, err = table.intField(row, idx[3], rowNum, "TotalMinutesAsleep"); err != nil {
			return nil, err
		}
		if s.MinutesInBed, err = table.intField(row, idx[4], rowNum, "TotalTimeInBed"); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// LoadMinuteSleepCSV reads a minute-level sleep log export, one observation
// per row, for AggregateSleep.
func LoadMinuteSleepCSV(r io.Reader) ([]SleepObservation, error) {
	table, err := readCSVTable("minute_sleep", r)
	if err != nil {
		return nil, err
	}

	idx, err := table.require("Id", "date", "value", "logId")
	if err != nil {
		return nil, err
	}

	observations := make([]SleepObservation, 0, len(table.rows))
	for n, row := range table.rows {
		rowNum := n + 2
		obs := SleepObservation{UserID: strings.TrimSpace(row[idx[0]])}

		parsed, err := parseDate(row[idx[1]])
		if err != nil {
			return nil, &SchemaError{Table: table.name, Cause: fmt.Errorf("row %d: column date: %w", rowNum, err)}
		}
		obs.Timestamp = parsed

		stage, err := table.intField(row, idx[2], rowNum, "value")
		if err != nil {
			return nil, err
		}
		obs.Stage = SleepStage(stage)

		session, err := strconv.ParseInt(strings.TrimSpace(row[idx[3]]), 10, 64)
		if err != nil {
			return nil, &SchemaError{Table: table.name, Cause: fmt.Errorf("row %d: column logId: %w", rowNum, err)}
		}
		obs.SessionID = session

		observations = append(observations, obs)
	}
	return observations, nil
}
