package tracker

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday
var refNow = time.Date(2026, 10, 21, 15, 30, 0, 0, time.UTC)

func habitAt(freq Frequency, target int, completions map[string]int) Habit {
	return Habit{
		ID:          "h1",
		OwnerID:     "u1",
		Name:        "read",
		Frequency:   freq,
		TargetCount: target,
		Completions: completions,
		IsActive:    true,
	}
}

func TestPeriodFor(t *testing.T) {
	daily := PeriodFor(Daily, refNow)
	assert.Equal(t, time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC), daily.Start)
	assert.Equal(t, time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC), daily.End)

	weekly := PeriodFor(Weekly, refNow)
	assert.Equal(t, time.Monday, weekly.Start.Weekday())
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), weekly.Start)
	assert.Equal(t, time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC), weekly.End)

	sunday := time.Date(2026, 10, 25, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, weekly, PeriodFor(Weekly, sunday))

	unknown := PeriodFor(Frequency("monthly"), refNow)
	assert.Equal(t, daily.Start, unknown.Start)
	assert.Equal(t, daily.End, unknown.End)
}

func TestPeriodNavigation(t *testing.T) {
	p := PeriodFor(Weekly, refNow)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), p.Prev().Start)
	assert.Equal(t, p.End, p.Next().Start)
	assert.True(t, p.Contains(p.Start))
	assert.False(t, p.Contains(p.End))
}

func TestPeriodForRespectsLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 02:00 UTC on the 22nd is still the 21st five hours west.
	now := time.Date(2026, 10, 22, 2, 0, 0, 0, time.UTC).In(loc)
	assert.Equal(t, "2026-10-21", DateKey(now))
	assert.Equal(t, 21, PeriodFor(Daily, now).Start.Day())
}

func TestRecordCompletionMonotonic(t *testing.T) {
	h := habitAt(Daily, 1, nil)
	t1 := time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 10, 21, 20, 0, 0, 0, time.UTC)

	h = RecordCompletion(h, t1).Apply(h)
	h = RecordCompletion(h, t2).Apply(h)

	assert.Equal(t, 2, h.Completions["2026-10-21"])
	require.NotNil(t, h.LastCompleted)
	assert.Equal(t, 2, h.LastCompleted.Count)
	assert.Equal(t, "2026-10-21", h.LastCompleted.Date)
	assert.Equal(t, "2026-10-21T00:00:00.000Z", h.LastCompleted.PeriodStart)
	assert.Equal(t, "2026-10-22T00:00:00.000Z", h.LastCompleted.PeriodEnd)
	assert.Equal(t, t2, h.UpdatedAt)
}

func TestRecordCompletionDoesNotMutateInput(t *testing.T) {
	original := map[string]int{"2026-10-20": 1}
	h := habitAt(Daily, 1, original)

	u := RecordCompletion(h, refNow)

	assert.Equal(t, map[string]int{"2026-10-20": 1}, original)
	assert.Nil(t, h.LastCompleted)
	assert.Equal(t, map[string]int{"2026-10-20": 1, "2026-10-21": 1}, u.Completions)
}

func TestRecordCompletionWeeklyPeriod(t *testing.T) {
	u := RecordCompletion(habitAt(Weekly, 3, nil), refNow)
	assert.Equal(t, "2026-10-19T00:00:00.000Z", u.LastCompleted.PeriodStart)
	assert.Equal(t, "2026-10-26T00:00:00.000Z", u.LastCompleted.PeriodEnd)
}

func TestPeriodGating(t *testing.T) {
	h := habitAt(Daily, 3, map[string]int{"2026-10-21": 2})
	h.LastCompleted = &LastCompleted{
		Date:        "2026-10-21",
		Count:       2,
		PeriodStart: "2026-10-21T00:00:00.000Z",
		PeriodEnd:   "2026-10-22T00:00:00.000Z",
	}
	assert.False(t, IsPeriodComplete(h, refNow))

	h = RecordCompletion(h, refNow).Apply(h)
	assert.True(t, IsPeriodComplete(h, refNow))
}

func TestStalePeriodInvalidation(t *testing.T) {
	yesterday := refNow.AddDate(0, 0, -1)
	h := habitAt(Daily, 1, nil)
	h = RecordCompletion(h, yesterday).Apply(h)
	require.True(t, IsPeriodComplete(h, yesterday))

	assert.False(t, IsPeriodComplete(h, refNow))
}

func TestWeeklyCompletionSumsWholeWeek(t *testing.T) {
	h := habitAt(Weekly, 3, map[string]int{
		"2026-10-18": 5, // previous week
		"2026-10-19": 1,
		"2026-10-20": 1,
	})
	h = RecordCompletion(h, refNow).Apply(h)
	assert.True(t, IsPeriodComplete(h, refNow))

	h.TargetCount = 4
	assert.False(t, IsPeriodComplete(h, refNow))
	assert.Equal(t, 3, CountInPeriod(h, PeriodFor(Weekly, refNow)))
	assert.Equal(t, 5, CountInPeriod(h, PeriodFor(Weekly, refNow).Prev()))
}

func TestIsPeriodCompleteEmptyCases(t *testing.T) {
	assert.False(t, IsPeriodComplete(habitAt(Daily, 1, nil), refNow))

	h := habitAt(Daily, 1, map[string]int{"2026-10-21": 3})
	h.LastCompleted = &LastCompleted{Date: "2026-10-21", Count: 3, PeriodStart: "garbage"}
	assert.False(t, IsPeriodComplete(h, refNow))
}

func TestIsPeriodCompleteIdempotent(t *testing.T) {
	h := habitAt(Daily, 1, nil)
	h = RecordCompletion(h, refNow).Apply(h)
	before := maps.Clone(h.Completions)
	lc := *h.LastCompleted

	first := IsPeriodComplete(h, refNow)
	second := IsPeriodComplete(h, refNow)

	assert.Equal(t, first, second)
	assert.Equal(t, before, h.Completions)
	assert.Equal(t, lc, *h.LastCompleted)
}

func TestSortByCompletionThenName(t *testing.T) {
	done := func(name string) Habit {
		h := habitAt(Daily, 1, nil)
		h.Name = name
		return RecordCompletion(h, refNow).Apply(h)
	}
	open := habitAt(Daily, 1, nil)
	open.Name = "alpha"

	in := []Habit{done("zeta"), open, done("Beta")}
	out := SortByCompletionThenName(in, refNow)

	names := make([]string, len(out))
	for i, h := range out {
		names[i] = h.Name
	}
	assert.Equal(t, []string{"Beta", "zeta", "alpha"}, names)
	assert.Equal(t, "zeta", in[0].Name)
}

func TestSortIsStableOnEqualNames(t *testing.T) {
	a := habitAt(Daily, 1, nil)
	a.ID, a.Name = "first", "Run"
	b := habitAt(Daily, 1, nil)
	b.ID, b.Name = "second", "run"

	out := SortByCompletionThenName([]Habit{a, b}, refNow)
	assert.Equal(t, "first", out[0].ID)
	assert.Equal(t, "second", out[1].ID)
}

func TestStreakForLog(t *testing.T) {
	assert.Equal(t, 0, StreakForLog(nil, refNow))

	recent := refNow.Add(-20 * time.Hour)
	assert.Equal(t, 1, StreakForLog(&recent, refNow))

	old := refNow.Add(-49 * time.Hour)
	assert.Equal(t, 0, StreakForLog(&old, refNow))
}

func TestAveragePerWeek(t *testing.T) {
	assert.Equal(t, 0.0, AveragePerWeek(nil))
	assert.Equal(t, 2.0, AveragePerWeek([]time.Time{refNow, refNow}))

	logs := []time.Time{
		refNow.AddDate(0, 0, -10),
		refNow.AddDate(0, 0, -3),
		refNow,
	}
	// 10 days span two weeks.
	assert.Equal(t, 1.5, AveragePerWeek(logs))

	logs = []time.Time{refNow, refNow.AddDate(0, 0, -15), refNow.AddDate(0, 0, -1)}
	assert.Equal(t, 1.0, AveragePerWeek(logs))
}

func TestCompletionRate(t *testing.T) {
	logs := []time.Time{
		refNow.AddDate(0, 0, -1),
		refNow.AddDate(0, 0, -2),
		refNow.AddDate(0, 0, -40),
	}
	assert.Equal(t, 6.67, CompletionRate(logs, 30, refNow))
	assert.Equal(t, 0.0, CompletionRate(logs, 0, refNow))
}

func TestStreaksDaily(t *testing.T) {
	h := habitAt(Daily, 1, map[string]int{
		"2026-10-10": 1,
		"2026-10-11": 1,
		"2026-10-12": 1,
		"2026-10-13": 1,
		"2026-10-19": 1,
		"2026-10-20": 2,
	})

	s := Streaks(h, refNow)
	assert.Equal(t, 2, s.CurrentStreak, "today still open, yesterday's run counts")
	assert.Equal(t, 4, s.LongestStreak)

	h.Completions["2026-10-21"] = 1
	assert.Equal(t, 3, Streaks(h, refNow).CurrentStreak)

	assert.Equal(t, 0, Streaks(h, refNow.AddDate(0, 0, 3)).CurrentStreak)
}

func TestStreaksIgnoresZeroCounts(t *testing.T) {
	h := habitAt(Daily, 1, map[string]int{"2026-10-20": 0, "bogus": 4})
	assert.Equal(t, Streak{}, Streaks(h, refNow))
}

func TestStreaksWeekly(t *testing.T) {
	h := habitAt(Weekly, 2, map[string]int{
		"2026-10-01": 1, // week of Sep 28
		"2026-10-06": 1, // week of Oct 5
		"2026-10-14": 1, // week of Oct 12
		"2026-10-15": 1,
		"2026-10-20": 1, // this week
	})
	s := Streaks(h, refNow)
	assert.Equal(t, 4, s.CurrentStreak)
	assert.Equal(t, 4, s.LongestStreak)
}

func TestStreaksAcrossSkippedMidnight(t *testing.T) {
	// Clocks in Santiago jump from 00:00 to 01:00 on 2026-09-06.
	loc, err := time.LoadLocation("America/Santiago")
	if err != nil {
		t.Skipf("zone data unavailable: %v", err)
	}
	now := time.Date(2026, 9, 7, 12, 0, 0, 0, loc)
	h := habitAt(Daily, 1, map[string]int{
		"2026-09-05": 1,
		"2026-09-06": 1,
		"2026-09-07": 1,
	})

	s := Streaks(h, now)
	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak)

	gap := PeriodFor(Daily, time.Date(2026, 9, 6, 12, 0, 0, 0, loc))
	assert.Equal(t, gap.Start, PeriodFor(Daily, now).Prev().Start)
	assert.Equal(t, gap.End, gap.Next().Start)
	assert.Equal(t, 1, CountInPeriod(h, gap))

	day, err := ParseDateKey("2026-09-06", loc)
	require.NoError(t, err)
	assert.Equal(t, "2026-09-06", DateKey(day))
}

func TestCompletedTodayAndTotals(t *testing.T) {
	a := habitAt(Daily, 1, map[string]int{"2026-10-21": 1, "2026-10-20": 3})
	b := habitAt(Daily, 1, map[string]int{"2026-10-20": 1})
	c := habitAt(Daily, 1, map[string]int{"2026-10-21": 0})

	assert.Equal(t, 1, CompletedToday([]Habit{a, b, c}, refNow))
	assert.Equal(t, 4, TotalCompletions(a))
}

func TestFrequencyValid(t *testing.T) {
	assert.True(t, Daily.Valid())
	assert.True(t, Weekly.Valid())
	assert.False(t, Frequency("hourly").Valid())
}
