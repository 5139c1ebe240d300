package somnia

import (
	"math"
	"testing"
	"time"
)

func testActivity(userID string, day Day, steps int) ActivityRecord {
	return ActivityRecord{
		UserID:               userID,
		Date:                 day,
		TotalSteps:           steps,
		TotalDistance:        float64(steps) / 1400,
		Calories:             2000,
		VeryActiveMinutes:    20,
		FairlyActiveMinutes:  10,
		LightlyActiveMinutes: 150,
		SedentaryMinutes:     720,
	}
}

func testSleep(userID string, day Day, asleep, inBed int) DailySleepSummary {
	return DailySleepSummary{
		UserID:        userID,
		Date:          day,
		MinutesAsleep: asleep,
		MinutesInBed:  inBed,
		SleepRecords:  1,
	}
}

func TestMergeActivitySleep(t *testing.T) {
	day := NewDay(2024, time.April, 1)

	activity := []ActivityRecord{
		testActivity("u1", day, 8000),
		testActivity("u1", day.AddDays(1), 9000),
		testActivity("u1", day.AddDays(2), 7000), // no sleep for this day
		testActivity("u2", day, 5000),
	}
	sleep := []DailySleepSummary{
		testSleep("u1", day, 400, 450),
		testSleep("u1", day.AddDays(1), 420, 480),
		testSleep("u2", day, 380, 400),
		testSleep("u3", day, 300, 330), // no activity for this user
	}

	merged, stats := MergeActivitySleep(activity, sleep)

	if stats.MergedRows != 3 {
		t.Fatalf("MergedRows = %d, want 3", stats.MergedRows)
	}
	if stats.ActivityOnly != 1 {
		t.Errorf("ActivityOnly = %d, want 1", stats.ActivityOnly)
	}
	if stats.SleepOnly != 1 {
		t.Errorf("SleepOnly = %d, want 1", stats.SleepOnly)
	}

	first := merged[0]
	if first.UserID != "u1" || first.Date != day {
		t.Fatalf("unexpected first row: %s %s", first.UserID, first.Date)
	}
	want := 400.0 / 450.0
	if math.Abs(first.SleepEfficiency-want) > 1e-12 {
		t.Errorf("SleepEfficiency = %v, want %v", first.SleepEfficiency, want)
	}
	if first.TotalSteps != 8000 || first.MinutesInBed != 450 {
		t.Errorf("merged fields wrong: %+v", first)
	}

	// Output sorted by (user, day).
	for i := 1; i < len(merged); i++ {
		a, b := merged[i-1], merged[i]
		if a.UserID > b.UserID || (a.UserID == b.UserID && !a.Date.Before(b.Date)) {
			t.Errorf("output not sorted at %d: %s/%s after %s/%s", i, b.UserID, b.Date, a.UserID, a.Date)
		}
	}
}

func TestMergeZeroInBed(t *testing.T) {
	day := NewDay(2024, time.April, 1)

	merged, stats := MergeActivitySleep(
		[]ActivityRecord{testActivity("u1", day, 8000)},
		[]DailySleepSummary{testSleep("u1", day, 0, 0)},
	)

	if stats.ZeroInBed != 1 {
		t.Fatalf("ZeroInBed = %d, want 1", stats.ZeroInBed)
	}
	// 0/0 yields NaN; the value passes through without clamping.
	if !math.IsNaN(merged[0].SleepEfficiency) {
		t.Errorf("SleepEfficiency = %v, want NaN", merged[0].SleepEfficiency)
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	merged, stats := MergeActivitySleep(nil, nil)
	if len(merged) != 0 || stats.MergedRows != 0 {
		t.Errorf("expected empty result, got %d rows", len(merged))
	}
}

func TestMergeEfficiencyAboveOne(t *testing.T) {
	day := NewDay(2024, time.April, 1)

	// Out-of-range sleep rows pass through; efficiency > 1 is preserved.
	merged, _ := MergeActivitySleep(
		[]ActivityRecord{testActivity("u1", day, 8000)},
		[]DailySleepSummary{testSleep("u1", day, 500, 450)},
	)
	if merged[0].SleepEfficiency <= 1 {
		t.Errorf("SleepEfficiency = %v, want > 1", merged[0].SleepEfficiency)
	}
}
