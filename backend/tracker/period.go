// Package tracker decides whether a habit has met its target for the current
// period and how a new completion event changes a habit.
//
// Every calendar computation uses the location carried by the reference
// instant. Weeks start on Monday.
package tracker

import "time"

// DateLayout is the format of completion map keys.
const DateLayout = "2006-01-02"

// InstantLayout is used when period boundaries are serialized.
const InstantLayout = "2006-01-02T15:04:05.000Z07:00"

type Frequency string

const (
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	return f == Daily || f == Weekly
}

// Period is the half-open window [Start, End) a target must be met in.
type Period struct {
	Frequency Frequency
	Start     time.Time
	End       time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Prev returns the period immediately before p.
func (p Period) Prev() Period {
	return p.shift(-1)
}

// Next returns the period immediately after p.
func (p Period) Next() Period {
	return p.shift(1)
}

// shift steps whole periods on the calendar. Start may sit before local
// midnight when a zone skips it, so the step starts from noon of the first day.
func (p Period) shift(n int) Period {
	days := n
	if p.Frequency == Weekly {
		days = 7 * n
	}
	y, m, d := p.Start.Add(12 * time.Hour).Date()
	return PeriodFor(p.Frequency, noon(y, m, d+days, p.Start.Location()))
}

// PeriodFor returns the period of the given frequency containing t.
// Unknown frequencies fall back to daily.
func PeriodFor(f Frequency, t time.Time) Period {
	y, m, d := t.Date()
	loc := t.Location()

	if f == Weekly {
		offset := (int(t.Weekday()) + 6) % 7
		start := time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		return Period{
			Frequency: Weekly,
			Start:     start,
			End:       time.Date(y, m, d-offset+7, 0, 0, 0, 0, loc),
		}
	}

	return Period{
		Frequency: Daily,
		Start:     time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:       time.Date(y, m, d+1, 0, 0, 0, 0, loc),
	}
}

// DateKey returns the completion map key for t.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateKey parses a completion map key as noon of that date in loc.
// Noon always exists and always falls on the named date, which local midnight
// does not in zones whose DST change skips it.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(DateLayout, key)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return noon(y, m, d, loc), nil
}

func noon(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, loc)
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}
