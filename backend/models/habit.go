package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Habit is the stored shape of a habit. Completions and LastCompleted are
// kept as raw JSON and validated when read back.
type Habit struct {
	ID            string         `gorm:"type:varchar(36);primaryKey"`
	OwnerID       string         `gorm:"type:varchar(36);index;not null"`
	Name          string         `gorm:"size:50;not null"`
	Frequency     string         `gorm:"size:16;not null"`
	TargetCount   int            `gorm:"not null"`
	Completions   datatypes.JSON `gorm:"type:jsonb"`
	LastCompleted datatypes.JSON `gorm:"type:jsonb"`
	IsActive      bool           `gorm:"not null;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (h *Habit) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}

type HabitLog struct {
	ID       string    `gorm:"type:varchar(36);primaryKey"`
	HabitID  string    `gorm:"type:varchar(36);index;not null"`
	LogDate  time.Time `gorm:"index"`
	Notes    string
	LoggedAt time.Time `gorm:"autoCreateTime"`
}

func (l *HabitLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

type HabitStreak struct {
	HabitID        string `gorm:"type:varchar(36);primaryKey"`
	CurrentStreak  int
	LongestStreak  int
	LastLoggedDate *time.Time
}

type HabitStatistics struct {
	HabitID          string `gorm:"type:varchar(36);primaryKey"`
	TotalCompletions int
	AveragePerWeek   float64
	LastUpdated      time.Time
}

type Reminder struct {
	ID           string         `gorm:"type:varchar(36);primaryKey"`
	HabitID      string         `gorm:"type:varchar(36);index;not null"`
	ReminderTime string         `gorm:"size:5;not null"` // HH:MM
	ReminderDays datatypes.JSON `gorm:"type:jsonb"`      // ["mon", "wed"]
	IsActive     bool           `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Reminder) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
