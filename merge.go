package somnia

import "sort"

// MergeStats reports join bookkeeping for data-quality visibility.
// ActivityOnly and SleepOnly count (user, day) pairs present in exactly one
// input; they are informational and do not affect the merged output.
type MergeStats struct {
	MergedRows   int `json:"merged_rows"`
	ActivityOnly int `json:"activity_only"`
	SleepOnly    int `json:"sleep_only"`
	ZeroInBed    int `json:"zero_in_bed"`
}

// MergeActivitySleep inner-joins activity and sleep tables on (user, day) and
// derives the SleepEfficiency target. Only days present in both tables
// survive. Empty inputs yield an empty result, not an error.
//
// SleepEfficiency is asleep/in-bed with no denominator guard; zero
// minutes-in-bed propagates as a non-finite value and is counted in
// MergeStats.ZeroInBed.
//
// Output is sorted by (user, day). Duplicate (user, day) rows are collapsed:
// the last sleep row and the first matching activity row win.
func MergeActivitySleep(activity []ActivityRecord, sleep []DailySleepSummary) ([]MergedRecord, MergeStats) {
	sleepByDay := make(map[dayKey]DailySleepSummary, len(sleep))
	for _, s := range sleep {
		sleepByDay[dayKey{userID: s.UserID, day: s.Date}] = s
	}

	var stats MergeStats
	matched := make(map[dayKey]bool, len(activity))
	merged := make([]MergedRecord, 0, len(activity))

	for _, a := range activity {
		key := dayKey{userID: a.UserID, day: a.Date}
		s, ok := sleepByDay[key]
		if !ok {
			stats.ActivityOnly++
			continue
		}
		if matched[key] {
			continue
		}
		matched[key] = true

		rec := MergedRecord{
			UserID:               a.UserID,
			Date:                 a.Date,
			TotalSteps:           a.TotalSteps,
			TotalDistance:        a.TotalDistance,
			Calories:             a.Calories,
			VeryActiveMinutes:    a.VeryActiveMinutes,
			FairlyActiveMinutes:  a.FairlyActiveMinutes,
			LightlyActiveMinutes: a.LightlyActiveMinutes,
			SedentaryMinutes:     a.SedentaryMinutes,
			MinutesAsleep:        s.MinutesAsleep,
			MinutesInBed:         s.MinutesInBed,
			SleepRecords:         s.SleepRecords,
			SleepEfficiency:      float64(s.MinutesAsleep) / float64(s.MinutesInBed),
		}
		if s.MinutesInBed == 0 {
			stats.ZeroInBed++
		}
		merged = append(merged, rec)
	}

	for key := range sleepByDay {
		if !matched[key] {
			stats.SleepOnly++
		}
	}
	stats.MergedRows = len(merged)

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].UserID != merged[j].UserID {
			return merged[i].UserID < merged[j].UserID
		}
		return merged[i].Date.Before(merged[j].Date)
	})

	return merged, stats
}
