package somnia

import "sort"

// AggregateStats summarizes a sleep aggregation pass.
type AggregateStats struct {
	Observations int `json:"observations"`
	Sessions     int `json:"sessions"`
	Days         int `json:"days"`
	Users        int `json:"users"`
}

// AggregateSleep converts minute-level sleep observations into one
// DailySleepSummary per (user, day).
//
// Observations are grouped by (user, day, session): minutes-in-bed is the
// observation count in the session, minutes-asleep the count with
// StageAsleep. Session summaries are then summed per day, with the session
// count carried as SleepRecords. A day with no observations produces no row.
//
// Output is sorted by (user, day) and is identical for any input row order.
func AggregateSleep(observations []SleepObservation) ([]DailySleepSummary, AggregateStats) {
	type sessionKey struct {
		userID    string
		day       Day
		sessionID int64
	}
	type sessionTotals struct {
		inBed  int
		asleep int
	}

	sessions := make(map[sessionKey]*sessionTotals)
	for _, obs := range observations {
		key := sessionKey{
			userID:    obs.UserID,
			day:       DayOf(obs.Timestamp),
			sessionID: obs.SessionID,
		}
		totals := sessions[key]
		if totals == nil {
			totals = &sessionTotals{}
			sessions[key] = totals
		}
		totals.inBed++
		if obs.Stage == StageAsleep {
			totals.asleep++
		}
	}

	days := make(map[dayKey]*DailySleepSummary)
	for key, totals := range sessions {
		dk := dayKey{userID: key.userID, day: key.day}
		summary := days[dk]
		if summary == nil {
			summary = &DailySleepSummary{UserID: key.userID, Date: key.day}
			days[dk] = summary
		}
		summary.MinutesInBed += totals.inBed
		summary.MinutesAsleep += totals.asleep
		summary.SleepRecords++
	}

	result := make([]DailySleepSummary, 0, len(days))
	users := make(map[string]struct{})
	for _, summary := range days {
		result = append(result, *summary)
		users[summary.UserID] = struct{}{}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UserID != result[j].UserID {
			return result[i].UserID < result[j].UserID
		}
		return result[i].Date.Before(result[j].Date)
	})

	return result, AggregateStats{
		Observations: len(observations),
		Sessions:     len(sessions),
		Days:         len(days),
		Users:        len(users),
	}
}
