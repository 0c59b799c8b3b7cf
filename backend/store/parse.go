package store

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"habithop/backend/tracker"
)

// RawHabit is a habit as it comes out of storage, before any checks.
type RawHabit struct {
	ID            string
	OwnerID       string
	Name          string
	Frequency     string
	TargetCount   int
	Completions   map[string]int
	LastCompleted *tracker.LastCompleted
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ParseHabit maps a stored record onto the tracker's Habit. A missing
// frequency defaults to daily and missing completions to an empty map;
// anything else that breaks a habit invariant is rejected.
func ParseHabit(raw RawHabit) (tracker.Habit, error) {
	if raw.ID == "" {
		return tracker.Habit{}, fmt.Errorf("%w: empty id", ErrMalformedRecord)
	}
	if raw.OwnerID == "" {
		return tracker.Habit{}, fmt.Errorf("%w: habit %s has no owner", ErrMalformedRecord, raw.ID)
	}

	freq := tracker.Frequency(raw.Frequency)
	if freq == "" {
		freq = tracker.Daily
	}
	if !freq.Valid() {
		return tracker.Habit{}, fmt.Errorf("%w: habit %s has unknown frequency %q", ErrMalformedRecord, raw.ID, raw.Frequency)
	}
	if raw.TargetCount < 1 {
		return tracker.Habit{}, fmt.Errorf("%w: habit %s has target count %d", ErrMalformedRecord, raw.ID, raw.TargetCount)
	}

	completions := make(map[string]int, len(raw.Completions))
	for key, count := range raw.Completions {
		if _, err := time.Parse(tracker.DateLayout, key); err != nil {
			return tracker.Habit{}, fmt.Errorf("%w: habit %s has completion key %q", ErrMalformedRecord, raw.ID, key)
		}
		if count < 0 {
			return tracker.Habit{}, fmt.Errorf("%w: habit %s has negative count on %s", ErrMalformedRecord, raw.ID, key)
		}
		completions[key] = count
	}

	if lc := raw.LastCompleted; lc != nil {
		if _, err := time.Parse(tracker.DateLayout, lc.Date); err != nil {
			return tracker.Habit{}, fmt.Errorf("%w: habit %s has lastCompleted date %q", ErrMalformedRecord, raw.ID, lc.Date)
		}
	}

	return tracker.Habit{
		ID:            raw.ID,
		OwnerID:       raw.OwnerID,
		Name:          raw.Name,
		Frequency:     freq,
		TargetCount:   raw.TargetCount,
		Completions:   completions,
		LastCompleted: raw.LastCompleted,
		IsActive:      raw.IsActive,
		CreatedAt:     raw.CreatedAt,
		UpdatedAt:     raw.UpdatedAt,
	}, nil
}

func decodeCompletions(id string, data []byte) (map[string]int, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var completions map[string]int
	if err := json.Unmarshal(data, &completions); err != nil {
		return nil, fmt.Errorf("%w: habit %s completions: %v", ErrMalformedRecord, id, err)
	}
	return completions, nil
}

func decodeLastCompleted(id string, data []byte) (*tracker.LastCompleted, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var lc *tracker.LastCompleted
	if err := json.Unmarshal(data, &lc); err != nil {
		return nil, fmt.Errorf("%w: habit %s lastCompleted: %v", ErrMalformedRecord, id, err)
	}
	return lc, nil
}
