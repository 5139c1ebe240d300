package somnia

import (
	"fmt"
	"time"
)

// Day represents a calendar day with no time-of-day component.
// Days are stored as UTC midnight so they compare and hash consistently
// regardless of the timezone the source timestamps carried.
type Day struct {
	t time.Time
}

// NewDay creates a Day from a year, month and day.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf truncates a timestamp to its calendar day.
func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

// Time returns the day as UTC midnight.
func (d Day) Time() time.Time { return d.t }

// Weekday returns the day of week with Monday = 0 and Sunday = 6.
func (d Day) Weekday() int {
	return (int(d.t.Weekday()) + 6) % 7
}

// DayOfMonth returns the day-of-month component (1..31).
func (d Day) DayOfMonth() int { return d.t.Day() }

// Before reports whether d is chronologically before other.
func (d Day) Before(other Day) bool { return d.t.Before(other.t) }

// AddDays returns the day n calendar days later.
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool { return d.t.IsZero() }

// String returns the day in ISO format (YYYY-MM-DD).
func (d Day) String() string { return d.t.Format("2006-01-02") }

// ActivityRecord is one day of wearable activity for one user.
// Records are immutable once loaded; every pipeline stage returns new tables.
type ActivityRecord struct {
	UserID string
	Date   Day

	TotalSteps    int
	TotalDistance float64 // kilometers
	Calories      int

	VeryActiveMinutes    int
	FairlyActiveMinutes  int
	LightlyActiveMinutes int
	SedentaryMinutes     int
}

// SleepStage classifies a single minute-level sleep observation.
type SleepStage int

const (
	// StageAsleep is a minute spent asleep.
	StageAsleep SleepStage = 1
	// StageRestless is a minute in bed but restless.
	StageRestless SleepStage = 2
	// StageAwake is a minute in bed but awake.
	StageAwake SleepStage = 3
)

// SleepObservation is one minute-level sleep log entry. It is only used when
// a pre-aggregated daily sleep table is unavailable.
type SleepObservation struct {
	UserID    string
	Timestamp time.Time
	SessionID int64
	Stage     SleepStage
}

// DailySleepSummary is one day of sleep for one user, either loaded directly
// or produced by AggregateSleep from minute-level observations.
//
// MinutesAsleep <= MinutesInBed is expected but not enforced; out-of-range
// rows pass through unchanged and show up downstream as efficiency > 1.
type DailySleepSummary struct {
	UserID        string
	Date          Day
	MinutesAsleep int
	MinutesInBed  int
	SleepRecords  int // number of sleep sessions that day
}

// MergedRecord joins one day of activity with that day's sleep summary and
// carries the derived regression target.
//
// SleepEfficiency is deliberately an unguarded division: a zero MinutesInBed
// propagates as a non-finite value instead of being clamped, and the
// engineered ratios downstream keep their own small denominator guards. The
// asymmetry is part of the data contract.
type MergedRecord struct {
	UserID string
	Date   Day

	TotalSteps    int
	TotalDistance float64
	Calories      int

	VeryActiveMinutes    int
	FairlyActiveMinutes  int
	LightlyActiveMinutes int
	SedentaryMinutes     int

	MinutesAsleep int
	MinutesInBed  int
	SleepRecords  int

	SleepEfficiency float64
}

// ActiveMinutesTotal is the sum of very, fairly and lightly active minutes.
func (m MergedRecord) ActiveMinutesTotal() int {
	return m.VeryActiveMinutes + m.FairlyActiveMinutes + m.LightlyActiveMinutes
}

// FeatureRecord is a MergedRecord extended with engineered feature values.
// Undefined values (a lag before enough history exists, a causal baseline on
// a user's first day) are NaN and are removed at finalization.
type FeatureRecord struct {
	MergedRecord

	// Features maps engineered column names to values. The canonical column
	// order is defined by FeatureColumns; the map never contains keys outside
	// that set.
	Features map[string]float64
}

// Feature returns a named engineered value, or NaN if absent.
func (f FeatureRecord) Feature(name string) float64 {
	if v, ok := f.Features[name]; ok {
		return v
	}
	return nan
}

// dayKey identifies a (user, day) pair for joins and grouping.
type dayKey struct {
	userID string
	day    Day
}

func (k dayKey) String() string {
	return fmt.Sprintf("%s|%s", k.userID, k.day)
}
