package tracker

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Habit is the strongly typed habit entity the tracker works on.
type Habit struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"ownerId"`
	Name          string         `json:"name"`
	Frequency     Frequency      `json:"frequency"`
	TargetCount   int            `json:"targetCount"`
	Completions   map[string]int `json:"completions"`
	LastCompleted *LastCompleted `json:"lastCompleted"`
	IsActive      bool           `json:"isActive"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// LastCompleted describes the most recent completion event.
// Count is the per-date count at the time of the event.
type LastCompleted struct {
	Date        string `json:"date" bson:"date"`
	Count       int    `json:"count" bson:"count"`
	PeriodStart string `json:"periodStart" bson:"periodStart"`
	PeriodEnd   string `json:"periodEnd" bson:"periodEnd"`
}

// Update holds the fields a completion event changes.
type Update struct {
	Completions   map[string]int `json:"completions"`
	LastCompleted LastCompleted  `json:"lastCompleted"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Apply returns a copy of h with the update merged in.
func (u Update) Apply(h Habit) Habit {
	h.Completions = maps.Clone(u.Completions)
	lc := u.LastCompleted
	h.LastCompleted = &lc
	h.UpdatedAt = u.UpdatedAt
	return h
}

// IsPeriodComplete reports whether the habit's target is met for the period
// containing now. A last completion from an earlier period means the current
// period has not been touched yet.
func IsPeriodComplete(h Habit, now time.Time) bool {
	if h.LastCompleted == nil {
		return false
	}

	period := PeriodFor(h.Frequency, now)

	lastStart, err := time.Parse(time.RFC3339, h.LastCompleted.PeriodStart)
	if err != nil || !period.Contains(lastStart) {
		return false
	}

	return CountInPeriod(h, period) >= h.TargetCount
}

// CountInPeriod sums the completions dated inside p.
func CountInPeriod(h Habit, p Period) int {
	sum := 0
	for key, count := range h.Completions {
		day, err := ParseDateKey(key, p.Start.Location())
		if err != nil {
			continue
		}
		if p.Contains(day) {
			sum += count
		}
	}
	return sum
}

// CompletionEvent builds the lastCompleted record for a completion at now
// that brought today's count to count.
func CompletionEvent(f Frequency, now time.Time, count int) LastCompleted {
	period := PeriodFor(f, now)
	return LastCompleted{
		Date:        DateKey(now),
		Count:       count,
		PeriodStart: formatInstant(period.Start),
		PeriodEnd:   formatInstant(period.End),
	}
}

// RecordCompletion returns the fields to persist for one more completion
// at now. The input habit is not modified.
func RecordCompletion(h Habit, now time.Time) Update {
	today := DateKey(now)
	count := h.Completions[today] + 1

	completions := make(map[string]int, len(h.Completions)+1)
	maps.Copy(completions, h.Completions)
	completions[today] = count

	return Update{
		Completions:   completions,
		LastCompleted: CompletionEvent(h.Frequency, now, count),
		UpdatedAt:     now,
	}
}

// SortByCompletionThenName orders completed habits first, then by name
// ignoring case. The input slice is left untouched.
func SortByCompletionThenName(habits []Habit, now time.Time) []Habit {
	type ranked struct {
		habit Habit
		done  bool
		name  string
	}

	rs := make([]ranked, len(habits))
	for i, h := range habits {
		rs[i] = ranked{habit: h, done: IsPeriodComplete(h, now), name: strings.ToLower(h.Name)}
	}

	slices.SortStableFunc(rs, func(a, b ranked) int {
		if a.done != b.done {
			if a.done {
				return -1
			}
			return 1
		}
		return strings.Compare(a.name, b.name)
	})

	out := make([]Habit, len(rs))
	for i, r := range rs {
		out[i] = r.habit
	}
	return out
}

// CompletedToday counts habits with at least one completion on now's date.
func CompletedToday(habits []Habit, now time.Time) int {
	today := DateKey(now)
	n := 0
	for _, h := range habits {
		if h.Completions[today] > 0 {
			n++
		}
	}
	return n
}

// TotalCompletions sums every count in the habit's history.
func TotalCompletions(h Habit) int {
	total := 0
	for _, count := range h.Completions {
		total += count
	}
	return total
}
