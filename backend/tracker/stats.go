package tracker

import (
	"math"
	"slices"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Streak is the cached streak projection of a habit.
type Streak struct {
	CurrentStreak  int        `json:"currentStreak"`
	LongestStreak  int        `json:"longestStreak"`
	LastLoggedDate *time.Time `json:"lastLoggedDate,omitempty"`
}

// Statistics is the cached statistics projection of a habit.
type Statistics struct {
	TotalCompletions int       `json:"totalCompletions"`
	AveragePerWeek   float64   `json:"averagePerWeek"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// StreakForLog is the minimal streak rule: 1 when the last log is at most a
// day away from now, otherwise 0. No log means no streak.
func StreakForLog(lastLogDate *time.Time, now time.Time) int {
	if lastLogDate == nil {
		return 0
	}
	diff := now.Sub(*lastLogDate)
	if diff < 0 {
		diff = -diff
	}
	if diff <= day {
		return 1
	}
	return 0
}

// AveragePerWeek divides the number of logs by the whole weeks spanned
// between the earliest and latest log, rounded to two decimals. A span of
// zero weeks returns the raw count.
func AveragePerWeek(logDates []time.Time) float64 {
	if len(logDates) == 0 {
		return 0
	}

	first, last := logDates[0], logDates[0]
	for _, t := range logDates[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}

	weeks := math.Ceil(float64(last.Sub(first)) / float64(week))
	if weeks == 0 {
		return float64(len(logDates))
	}
	return round2(float64(len(logDates)) / weeks)
}

// CompletionRate is the percentage of logs per day over the trailing window
// of the given number of days ending at now.
func CompletionRate(logDates []time.Time, days int, now time.Time) float64 {
	if days <= 0 {
		return 0
	}
	start := now.Add(-time.Duration(days) * day)

	n := 0
	for _, t := range logDates {
		if !t.Before(start) && !t.After(now) {
			n++
		}
	}
	return round2(float64(n) / float64(days) * 100)
}

// Streaks counts consecutive qualifying periods, a period qualifying when it
// holds at least one completion. The current streak ends at the period
// containing now, or at the previous one while the current period is still
// empty. The longest streak is the longest run anywhere in the history.
func Streaks(h Habit, now time.Time) Streak {
	loc := now.Location()
	qualifying := make(map[int64]bool)
	var periods []Period

	for key, count := range h.Completions {
		if count <= 0 {
			continue
		}
		d, err := ParseDateKey(key, loc)
		if err != nil {
			continue
		}
		p := PeriodFor(h.Frequency, d)
		if !qualifying[p.Start.Unix()] {
			qualifying[p.Start.Unix()] = true
			periods = append(periods, p)
		}
	}

	var s Streak
	if len(periods) == 0 {
		return s
	}

	slices.SortFunc(periods, func(a, b Period) int { return a.Start.Compare(b.Start) })
	run := 0
	for i, p := range periods {
		if i > 0 && periods[i-1].Next().Start.Equal(p.Start) {
			run++
		} else {
			run = 1
		}
		s.LongestStreak = max(s.LongestStreak, run)
	}

	cur := PeriodFor(h.Frequency, now)
	if !qualifying[cur.Start.Unix()] {
		cur = cur.Prev()
	}
	for qualifying[cur.Start.Unix()] {
		s.CurrentStreak++
		cur = cur.Prev()
	}

	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
