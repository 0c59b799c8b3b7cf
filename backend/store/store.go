// Package store persists habits and their derived documents. Every method
// is scoped to an owner; a habit belonging to someone else is reported as
// not found.
package store

import (
	"context"
	"errors"
	"time"

	"habithop/backend/tracker"
)

var (
	ErrNotFound         = errors.New("habit not found")
	ErrMalformedRecord  = errors.New("malformed habit record")
	ErrReminderNotFound = errors.New("reminder not found")
)

// HabitChanges holds owner edits. Nil fields are left untouched.
type HabitChanges struct {
	Name        *string
	Frequency   *tracker.Frequency
	TargetCount *int
}

type Log struct {
	ID       string    `json:"id"`
	HabitID  string    `json:"habitId"`
	LogDate  time.Time `json:"logDate"`
	Notes    string    `json:"notes,omitempty"`
	LoggedAt time.Time `json:"loggedAt"`
}

type Reminder struct {
	ID           string    `json:"id"`
	HabitID      string    `json:"habitId"`
	ReminderTime string    `json:"reminderTime"`
	ReminderDays []string  `json:"reminderDays"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type HabitStore interface {
	CreateHabit(ctx context.Context, h tracker.Habit) (tracker.Habit, error)
	// ListHabits skips records that fail to parse.
	ListHabits(ctx context.Context, ownerID string, includeInactive bool) ([]tracker.Habit, error)
	GetHabit(ctx context.Context, ownerID, id string) (tracker.Habit, error)
	UpdateHabit(ctx context.Context, ownerID, id string, changes HabitChanges) (tracker.Habit, error)
	SetActive(ctx context.Context, ownerID, id string, active bool) error
	// DeleteHabit removes the habit with its logs, reminders, streak and statistics.
	DeleteHabit(ctx context.Context, ownerID, id string) error
	// RecordCompletion applies one completion at now without losing
	// concurrent increments to the same habit.
	RecordCompletion(ctx context.Context, ownerID, id string, now time.Time) (tracker.Habit, error)

	AddLog(ctx context.Context, l Log) (Log, error)
	ListLogs(ctx context.Context, habitID string) ([]Log, error)
	LastLog(ctx context.Context, habitID string) (*Log, error)

	SaveStreak(ctx context.Context, habitID string, s tracker.Streak) error
	GetStreak(ctx context.Context, habitID string) (tracker.Streak, error)
	SaveStatistics(ctx context.Context, habitID string, s tracker.Statistics) error
	GetStatistics(ctx context.Context, habitID string) (tracker.Statistics, error)

	CreateReminder(ctx context.Context, r Reminder) (Reminder, error)
	ListReminders(ctx context.Context, habitID string) ([]Reminder, error)
	DeleteReminder(ctx context.Context, habitID, reminderID string) error

	Close(ctx context.Context) error
}
