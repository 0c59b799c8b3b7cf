package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"habithop/backend/models"
	"habithop/backend/tracker"
)

// SQLStore keeps habits in a relational database through GORM.
type SQLStore struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewSQLStore(db *gorm.DB, logger *log.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

func (s *SQLStore) CreateHabit(ctx context.Context, h tracker.Habit) (tracker.Habit, error) {
	completions, err := encodeJSON(nonNil(h.Completions))
	if err != nil {
		return tracker.Habit{}, err
	}
	lastCompleted, err := encodeJSON(h.LastCompleted)
	if err != nil {
		return tracker.Habit{}, err
	}

	rec := models.Habit{
		ID:            h.ID,
		OwnerID:       h.OwnerID,
		Name:          h.Name,
		Frequency:     string(h.Frequency),
		TargetCount:   h.TargetCount,
		Completions:   completions,
		LastCompleted: lastCompleted,
		IsActive:      true,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return tracker.Habit{}, fmt.Errorf("create habit: %w", err)
	}
	return habitFromRecord(rec)
}

func (s *SQLStore) ListHabits(ctx context.Context, ownerID string, includeInactive bool) ([]tracker.Habit, error) {
	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}

	var recs []models.Habit
	if err := q.Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	habits := make([]tracker.Habit, 0, len(recs))
	for _, rec := range recs {
		h, err := habitFromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping habit record", "id", rec.ID, "error", err)
			continue
		}
		habits = append(habits, h)
	}
	return habits, nil
}

func (s *SQLStore) GetHabit(ctx context.Context, ownerID, id string) (tracker.Habit, error) {
	rec, err := s.findHabit(s.db.WithContext(ctx), ownerID, id)
	if err != nil {
		return tracker.Habit{}, err
	}
	return habitFromRecord(rec)
}

func (s *SQLStore) UpdateHabit(ctx context.Context, ownerID, id string, changes HabitChanges) (tracker.Habit, error) {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if changes.Name != nil {
		updates["name"] = *changes.Name
	}
	if changes.Frequency != nil {
		updates["frequency"] = string(*changes.Frequency)
	}
	if changes.TargetCount != nil {
		updates["target_count"] = *changes.TargetCount
	}

	result := s.db.WithContext(ctx).Model(&models.Habit{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(updates)
	if result.Error != nil {
		return tracker.Habit{}, fmt.Errorf("update habit: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return tracker.Habit{}, ErrNotFound
	}
	return s.GetHabit(ctx, ownerID, id)
}

func (s *SQLStore) SetActive(ctx context.Context, ownerID, id string, active bool) error {
	result := s.db.WithContext(ctx).Model(&models.Habit{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("set habit active=%t: %w", active, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteHabit(ctx context.Context, ownerID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Habit{})
		if result.Error != nil {
			return fmt.Errorf("delete habit: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		for _, dependent := range []interface{}{
			&models.HabitLog{},
			&models.Reminder{},
			&models.HabitStreak{},
			&models.HabitStatistics{},
		} {
			if err := tx.Where("habit_id = ?", id).Delete(dependent).Error; err != nil {
				return fmt.Errorf("delete habit dependents: %w", err)
			}
		}
		return nil
	})
}

// RecordCompletion locks the habit row for the read-modify-write and only
// writes the fields a completion touches.
func (s *SQLStore) RecordCompletion(ctx context.Context, ownerID, id string, now time.Time) (tracker.Habit, error) {
	var updated tracker.Habit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("is_active = ?", true)
		// SQLite has no row locks; its writer lock already serializes this.
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		rec, err := s.findHabit(q, ownerID, id)
		if err != nil {
			return err
		}
		h, err := habitFromRecord(rec)
		if err != nil {
			return err
		}

		u := tracker.RecordCompletion(h, now)
		completions, err := encodeJSON(u.Completions)
		if err != nil {
			return err
		}
		lastCompleted, err := encodeJSON(u.LastCompleted)
		if err != nil {
			return err
		}

		if err := tx.Model(&rec).Updates(map[string]interface{}{
			"completions":    completions,
			"last_completed": lastCompleted,
			"updated_at":     u.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("record completion: %w", err)
		}

		updated = u.Apply(h)
		return nil
	})
	return updated, err
}

func (s *SQLStore) AddLog(ctx context.Context, l Log) (Log, error) {
	rec := models.HabitLog{
		ID:      l.ID,
		HabitID: l.HabitID,
		LogDate: l.LogDate,
		Notes:   l.Notes,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Log{}, fmt.Errorf("add habit log: %w", err)
	}
	return logFromRecord(rec), nil
}

func (s *SQLStore) ListLogs(ctx context.Context, habitID string) ([]Log, error) {
	var recs []models.HabitLog
	if err := s.db.WithContext(ctx).Where("habit_id = ?", habitID).Order("log_date").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list habit logs: %w", err)
	}
	logs := make([]Log, len(recs))
	for i, rec := range recs {
		logs[i] = logFromRecord(rec)
	}
	return logs, nil
}

func (s *SQLStore) LastLog(ctx context.Context, habitID string) (*Log, error) {
	var rec models.HabitLog
	err := s.db.WithContext(ctx).Where("habit_id = ?", habitID).Order("log_date DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last habit log: %w", err)
	}
	l := logFromRecord(rec)
	return &l, nil
}

func (s *SQLStore) SaveStreak(ctx context.Context, habitID string, st tracker.Streak) error {
	rec := models.HabitStreak{
		HabitID:        habitID,
		CurrentStreak:  st.CurrentStreak,
		LongestStreak:  st.LongestStreak,
		LastLoggedDate: st.LastLoggedDate,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

func (s *SQLStore) GetStreak(ctx context.Context, habitID string) (tracker.Streak, error) {
	var rec models.HabitStreak
	err := s.db.WithContext(ctx).Where("habit_id = ?", habitID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tracker.Streak{}, nil
	}
	if err != nil {
		return tracker.Streak{}, fmt.Errorf("get streak: %w", err)
	}
	return tracker.Streak{
		CurrentStreak:  rec.CurrentStreak,
		LongestStreak:  rec.LongestStreak,
		LastLoggedDate: rec.LastLoggedDate,
	}, nil
}

func (s *SQLStore) SaveStatistics(ctx context.Context, habitID string, st tracker.Statistics) error {
	rec := models.HabitStatistics{
		HabitID:          habitID,
		TotalCompletions: st.TotalCompletions,
		AveragePerWeek:   st.AveragePerWeek,
		LastUpdated:      st.LastUpdated,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("save statistics: %w", err)
	}
	return nil
}

func (s *SQLStore) GetStatistics(ctx context.Context, habitID string) (tracker.Statistics, error) {
	var rec models.HabitStatistics
	err := s.db.WithContext(ctx).Where("habit_id = ?", habitID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tracker.Statistics{}, nil
	}
	if err != nil {
		return tracker.Statistics{}, fmt.Errorf("get statistics: %w", err)
	}
	return tracker.Statistics{
		TotalCompletions: rec.TotalCompletions,
		AveragePerWeek:   rec.AveragePerWeek,
		LastUpdated:      rec.LastUpdated,
	}, nil
}

func (s *SQLStore) CreateReminder(ctx context.Context, r Reminder) (Reminder, error) {
	days, err := encodeJSON(nonNilDays(r.ReminderDays))
	if err != nil {
		return Reminder{}, err
	}
	rec := models.Reminder{
		ID:           r.ID,
		HabitID:      r.HabitID,
		ReminderTime: r.ReminderTime,
		ReminderDays: days,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	return reminderFromRecord(rec)
}

func (s *SQLStore) ListReminders(ctx context.Context, habitID string) ([]Reminder, error) {
	var recs []models.Reminder
	if err := s.db.WithContext(ctx).Where("habit_id = ?", habitID).Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	reminders := make([]Reminder, 0, len(recs))
	for _, rec := range recs {
		r, err := reminderFromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping reminder record", "id", rec.ID, "error", err)
			continue
		}
		reminders = append(reminders, r)
	}
	return reminders, nil
}

func (s *SQLStore) DeleteReminder(ctx context.Context, habitID, reminderID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND habit_id = ?", reminderID, habitID).Delete(&models.Reminder{})
	if result.Error != nil {
		return fmt.Errorf("delete reminder: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func (s *SQLStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) findHabit(q *gorm.DB, ownerID, id string) (models.Habit, error) {
	var rec models.Habit
	err := q.Where("id = ? AND owner_id = ?", id, ownerID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Habit{}, ErrNotFound
	}
	if err != nil {
		return models.Habit{}, fmt.Errorf("find habit: %w", err)
	}
	return rec, nil
}

func habitFromRecord(rec models.Habit) (tracker.Habit, error) {
	completions, err := decodeCompletions(rec.ID, rec.Completions)
	if err != nil {
		return tracker.Habit{}, err
	}
	lastCompleted, err := decodeLastCompleted(rec.ID, rec.LastCompleted)
	if err != nil {
		return tracker.Habit{}, err
	}
	return ParseHabit(RawHabit{
		ID:            rec.ID,
		OwnerID:       rec.OwnerID,
		Name:          rec.Name,
		Frequency:     rec.Frequency,
		TargetCount:   rec.TargetCount,
		Completions:   completions,
		LastCompleted: lastCompleted,
		IsActive:      rec.IsActive,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	})
}

func logFromRecord(rec models.HabitLog) Log {
	return Log{
		ID:       rec.ID,
		HabitID:  rec.HabitID,
		LogDate:  rec.LogDate,
		Notes:    rec.Notes,
		LoggedAt: rec.LoggedAt,
	}
}

func reminderFromRecord(rec models.Reminder) (Reminder, error) {
	var days []string
	if len(rec.ReminderDays) > 0 {
		if err := json.Unmarshal(rec.ReminderDays, &days); err != nil {
			return Reminder{}, fmt.Errorf("reminder %s days: %w", rec.ID, err)
		}
	}
	return Reminder{
		ID:           rec.ID,
		HabitID:      rec.HabitID,
		ReminderTime: rec.ReminderTime,
		ReminderDays: nonNilDays(days),
		IsActive:     rec.IsActive,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}

func encodeJSON(v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return datatypes.JSON(data), nil
}

func nonNil(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func nonNilDays(days []string) []string {
	if days == nil {
		return []string{}
	}
	return days
}
