package somnia

import (
	"fmt"
	"math"
	"sort"
)

var nan = math.NaN()

// lagSignals are the base signals lagged per user. Column names follow the
// serialized table contract, so they keep the raw-export spellings.
var lagSignals = []struct {
	name  string
	value func(MergedRecord) float64
}{
	{"TotalSteps", func(m MergedRecord) float64 { return float64(m.TotalSteps) }},
	{"Calories", func(m MergedRecord) float64 { return float64(m.Calories) }},
	{"ActiveMinutesTotal", func(m MergedRecord) float64 { return float64(m.ActiveMinutesTotal()) }},
	{"SleepEfficiency", func(m MergedRecord) float64 { return m.SleepEfficiency }},
	{"TotalMinutesAsleep", func(m MergedRecord) float64 { return float64(m.MinutesAsleep) }},
}

// rollingSignals are the base signals smoothed with rolling means.
var rollingSignals = []struct {
	name  string
	value func(MergedRecord) float64
}{
	{"TotalSteps", func(m MergedRecord) float64 { return float64(m.TotalSteps) }},
	{"Calories", func(m MergedRecord) float64 { return float64(m.Calories) }},
	{"ActiveMinutesTotal", func(m MergedRecord) float64 { return float64(m.ActiveMinutesTotal()) }},
}

// baselineSignals get per-user mean baselines and, for the first three,
// deviation-from-baseline columns.
var baselineSignals = []struct {
	name      string
	deviation string // deviation column name, empty for none
	value     func(MergedRecord) float64
}{
	{"TotalSteps", "Steps_deviation", func(m MergedRecord) float64 { return float64(m.TotalSteps) }},
	{"Calories", "Calories_deviation", func(m MergedRecord) float64 { return float64(m.Calories) }},
	{"ActiveMinutesTotal", "Activity_deviation", func(m MergedRecord) float64 { return float64(m.ActiveMinutesTotal()) }},
	{"SleepEfficiency", "", func(m MergedRecord) float64 { return m.SleepEfficiency }},
}

// FeatureColumns returns the canonical ordered engineered column names for a
// feature configuration. Every FeatureRecord produced with the same config
// has exactly this key set.
func FeatureColumns(cfg FeatureConfig) []string {
	cols := []string{
		"ActiveMinutesTotal",
		"IntenseActivityRatio",
		"SedentaryHours",
		"StepsPerKm",
		"ActivityIntensityScore",
	}
	for _, sig := range lagSignals {
		for _, lag := range cfg.LagOffsets {
			cols = append(cols, fmt.Sprintf("%s_lag%d", sig.name, lag))
		}
	}
	for _, sig := range rollingSignals {
		for _, window := range cfg.RollingWindows {
			cols = append(cols, fmt.Sprintf("%s_rolling%dd", sig.name, window))
		}
	}
	for _, sig := range baselineSignals {
		cols = append(cols, sig.name+"_user_avg")
	}
	for _, sig := range baselineSignals {
		if sig.deviation != "" {
			cols = append(cols, sig.deviation)
		}
	}
	cols = append(cols,
		"SleepDebt",
		"DayOfWeek",
		"IsWeekend",
		"DayOfMonth",
		"DayOfWeek_sin",
		"DayOfWeek_cos",
		"AcuteLoad",
		"ChronicLoad",
		"TrainingStrain",
		"DaysSinceRest",
	)
	return cols
}

// SynthesizeFeatures derives the full engineered feature set for a merged
// table. Records are partitioned by user and each user's timeline is sorted
// by date ascending before any historical feature is computed; users are
// fully independent of each other.
//
// Every lag, rolling and recovery feature at a row depends only on that row
// and earlier rows in the same user's timeline. The one exception is the
// default full-history baseline mean (see FeatureConfig.CausalBaselines).
func SynthesizeFeatures(records []MergedRecord, cfg FeatureConfig) []FeatureRecord {
	byUser := partitionByUser(records)
	users := sortedUserIDs(byUser)

	out := make([]FeatureRecord, 0, len(records))
	for _, userID := range users {
		out = append(out, SynthesizeUserFeatures(byUser[userID], cfg)...)
	}
	return out
}

// partitionByUser splits records into per-user slices sorted by date.
func partitionByUser(records []MergedRecord) map[string][]MergedRecord {
	byUser := make(map[string][]MergedRecord)
	for _, rec := range records {
		byUser[rec.UserID] = append(byUser[rec.UserID], rec)
	}
	for _, timeline := range byUser {
		sort.Slice(timeline, func(i, j int) bool {
			return timeline[i].Date.Before(timeline[j].Date)
		})
	}
	return byUser
}

func sortedUserIDs(byUser map[string][]MergedRecord) []string {
	users := make([]string, 0, len(byUser))
	for userID := range byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// SynthesizeUserFeatures is the pure per-user synthesis function: one user's
// records, sorted by date ascending, in; that user's feature rows, same
// order, out. It reads nothing outside the given slice, so users can be
// processed in parallel without coordination.
func SynthesizeUserFeatures(timeline []MergedRecord, cfg FeatureConfig) []FeatureRecord {
	n := len(timeline)
	out := make([]FeatureRecord, n)

	asleep := make([]float64, n)
	for i, rec := range timeline {
		asleep[i] = float64(rec.MinutesAsleep)
	}

	acuteWindow, chronicWindow := loadWindows(cfg.RollingWindows)
	restThreshold := float64(cfg.RestThresholdMinutes)

	streak := 0
	debtPrefix := 0.0

	for i, rec := range timeline {
		f := make(map[string]float64, 48)

		// Same-day derived values.
		active := float64(rec.ActiveMinutesTotal())
		f["ActiveMinutesTotal"] = active
		f["IntenseActivityRatio"] = float64(rec.VeryActiveMinutes) / (active + 1)
		f["SedentaryHours"] = float64(rec.SedentaryMinutes) / 60
		f["StepsPerKm"] = float64(rec.TotalSteps) / (rec.TotalDistance + 0.1)
		f["ActivityIntensityScore"] = float64(3*rec.VeryActiveMinutes + 2*rec.FairlyActiveMinutes + rec.LightlyActiveMinutes)

		// Positional lags: strictly prior records only, NaN before enough
		// history. Gaps in calendar dates are tolerated by design.
		for _, sig := range lagSignals {
			for _, lag := range cfg.LagOffsets {
				name := fmt.Sprintf("%s_lag%d", sig.name, lag)
				if i-lag < 0 {
					f[name] = nan
				} else {
					f[name] = sig.value(timeline[i-lag])
				}
			}
		}

		// Rolling means ending at the current record, truncated at the start
		// of the timeline (minimum window of one).
		for _, sig := range rollingSignals {
			for _, window := range cfg.RollingWindows {
				name := fmt.Sprintf("%s_rolling%dd", sig.name, window)
				f[name] = rollingMean(timeline, i, window, sig.value)
			}
		}

		// Baselines and deviations.
		for _, sig := range baselineSignals {
			baseline := baselineMean(timeline, i, cfg.CausalBaselines, sig.value)
			f[sig.name+"_user_avg"] = baseline
			if sig.deviation != "" {
				f[sig.deviation] = (sig.value(rec) - baseline) / (baseline + 1)
			}
		}

		// Sleep debt: running signed deficit against the reference mean.
		debtPrefix += asleep[i]
		refMean := baselineMean(timeline, i, cfg.CausalBaselines,
			func(m MergedRecord) float64 { return float64(m.MinutesAsleep) })
		f["SleepDebt"] = debtPrefix - float64(i+1)*refMean

		// Calendar encoding. Day-of-week is cyclic, so Sunday and Monday stay
		// adjacent in (sin, cos) space.
		dow := float64(rec.Date.Weekday())
		f["DayOfWeek"] = dow
		f["IsWeekend"] = boolToFloat(dow >= 5)
		f["DayOfMonth"] = float64(rec.Date.DayOfMonth())
		f["DayOfWeek_sin"] = math.Sin(2 * math.Pi * dow / 7)
		f["DayOfWeek_cos"] = math.Cos(2 * math.Pi * dow / 7)

		// Acute:chronic training load.
		acuteLoad := rollingMean(timeline, i, acuteWindow, rollingSignals[2].value)
		chronicLoad := rollingMean(timeline, i, chronicWindow, rollingSignals[2].value)
		f["AcuteLoad"] = acuteLoad
		f["ChronicLoad"] = chronicLoad
		f["TrainingStrain"] = acuteLoad / (chronicLoad + 1)

		// Recovery streak: a rest day resets the counter, an active day
		// extends it.
		if active < restThreshold {
			streak = 0
		} else {
			streak++
		}
		f["DaysSinceRest"] = float64(streak)

		out[i] = FeatureRecord{MergedRecord: rec, Features: f}
	}

	return out
}

// rollingMean computes the mean of a signal over the window of up to `window`
// records ending at index i (inclusive).
func rollingMean(timeline []MergedRecord, i, window int, value func(MergedRecord) float64) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for j := start; j <= i; j++ {
		sum += value(timeline[j])
	}
	return sum / float64(i-start+1)
}

// baselineMean returns the per-user reference mean for a signal. In the
// default mode it covers the user's entire timeline; in causal mode it covers
// records strictly before index i and is NaN on the first record.
func baselineMean(timeline []MergedRecord, i int, causal bool, value func(MergedRecord) float64) float64 {
	if !causal {
		sum := 0.0
		for _, rec := range timeline {
			sum += value(rec)
		}
		return sum / float64(len(timeline))
	}
	if i == 0 {
		return nan
	}
	sum := 0.0
	for j := 0; j < i; j++ {
		sum += value(timeline[j])
	}
	return sum / float64(i)
}

// loadWindows picks the acute (smallest) and chronic (largest) windows from
// the configured rolling windows.
func loadWindows(windows []int) (acute, chronic int) {
	if len(windows) == 0 {
		return 3, 7
	}
	acute, chronic = windows[0], windows[0]
	for _, w := range windows[1:] {
		if w < acute {
			acute = w
		}
		if w > chronic {
			chronic = w
		}
	}
	return acute, chronic
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
