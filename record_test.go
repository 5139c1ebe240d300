package somnia

import (
	"math"
	"testing"
	"time"
)

func TestDayOfTruncates(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	ts := time.Date(2024, time.April, 12, 23, 47, 30, 0, loc)

	day := DayOf(ts)
	if day != NewDay(2024, time.April, 12) {
		t.Errorf("DayOf() = %s, want 2024-04-12", day)
	}
	if day.Time() != time.Date(2024, time.April, 12, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Time() = %v, want UTC midnight", day.Time())
	}
}

func TestDayWeekdayMondayZero(t *testing.T) {
	tests := []struct {
		day  Day
		want int
	}{
		{NewDay(2024, time.April, 1), 0}, // Monday
		{NewDay(2024, time.April, 5), 4}, // Friday
		{NewDay(2024, time.April, 6), 5}, // Saturday
		{NewDay(2024, time.April, 7), 6}, // Sunday
	}
	for _, tt := range tests {
		if got := tt.day.Weekday(); got != tt.want {
			t.Errorf("%s Weekday() = %d, want %d", tt.day, got, tt.want)
		}
	}
}

func TestDayArithmetic(t *testing.T) {
	day := NewDay(2024, time.April, 29)

	next := day.AddDays(2)
	if next != NewDay(2024, time.May, 1) {
		t.Errorf("AddDays(2) = %s, want 2024-05-01", next)
	}
	if !day.Before(next) || next.Before(day) {
		t.Error("Before() ordering wrong")
	}
	if day.DayOfMonth() != 29 {
		t.Errorf("DayOfMonth() = %d, want 29", day.DayOfMonth())
	}
}

func TestFeatureLookupDefaultsToNaN(t *testing.T) {
	rec := FeatureRecord{Features: map[string]float64{"present": 1.5}}

	if got := rec.Feature("present"); got != 1.5 {
		t.Errorf("Feature(present) = %v", got)
	}
	if got := rec.Feature("absent"); !math.IsNaN(got) {
		t.Errorf("Feature(absent) = %v, want NaN", got)
	}
}
