package store

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"habithop/backend/models"
	"habithop/backend/tracker"
)

var now = time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*SQLStore, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "habits.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	s := NewSQLStore(db, log.New(io.Discard))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, db
}

func createHabit(t *testing.T, s *SQLStore, owner, name string) tracker.Habit {
	t.Helper()
	h, err := s.CreateHabit(context.Background(), tracker.Habit{
		OwnerID:     owner,
		Name:        name,
		Frequency:   tracker.Daily,
		TargetCount: 2,
	})
	require.NoError(t, err)
	return h
}

func TestSQLStoreCreateAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created := createHabit(t, s, "owner-1", "Stretch")
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)
	assert.Empty(t, created.Completions)
	assert.Nil(t, created.LastCompleted)

	got, err := s.GetHabit(ctx, "owner-1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stretch", got.Name)
	assert.Equal(t, tracker.Daily, got.Frequency)
	assert.Equal(t, 2, got.TargetCount)
	assert.NotNil(t, got.Completions)

	_, err = s.GetHabit(ctx, "owner-2", created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreRecordCompletion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	h := createHabit(t, s, "owner-1", "Stretch")

	_, err := s.RecordCompletion(ctx, "owner-1", h.ID, now)
	require.NoError(t, err)
	updated, err := s.RecordCompletion(ctx, "owner-1", h.ID, now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Completions["2026-10-21"])
	require.NotNil(t, updated.LastCompleted)
	assert.Equal(t, 2, updated.LastCompleted.Count)

	reloaded, err := s.GetHabit(ctx, "owner-1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Completions, reloaded.Completions)
	assert.Equal(t, *updated.LastCompleted, *reloaded.LastCompleted)
	assert.True(t, tracker.IsPeriodComplete(reloaded, now))

	_, err = s.RecordCompletion(ctx, "owner-2", h.ID, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreConcurrentCompletions(t *testing.T) {
	s, db := newTestStore(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	ctx := context.Background()
	h := createHabit(t, s, "owner-1", "Water")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordCompletion(ctx, "owner-1", h.ID, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetHabit(ctx, "owner-1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Completions["2026-10-21"])
}

func TestSQLStoreSoftDeleteAndRestore(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := createHabit(t, s, "owner-1", "A")
	createHabit(t, s, "owner-1", "B")
	createHabit(t, s, "owner-2", "C")

	require.NoError(t, s.SetActive(ctx, "owner-1", a.ID, false))

	active, err := s.ListHabits(ctx, "owner-1", false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "B", active[0].Name)

	all, err := s.ListHabits(ctx, "owner-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.RecordCompletion(ctx, "owner-1", a.ID, now)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetActive(ctx, "owner-1", a.ID, true))
	active, err = s.ListHabits(ctx, "owner-1", false)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	assert.ErrorIs(t, s.SetActive(ctx, "owner-2", a.ID, false), ErrNotFound)
}

func TestSQLStoreUpdateHabit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	h := createHabit(t, s, "owner-1", "Read")

	name := "Read more"
	freq := tracker.Weekly
	target := 5
	updated, err := s.UpdateHabit(ctx, "owner-1", h.ID, HabitChanges{Name: &name, Frequency: &freq, TargetCount: &target})
	require.NoError(t, err)
	assert.Equal(t, "Read more", updated.Name)
	assert.Equal(t, tracker.Weekly, updated.Frequency)
	assert.Equal(t, 5, updated.TargetCount)

	_, err = s.UpdateHabit(ctx, "owner-2", h.ID, HabitChanges{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreHardDeleteRemovesDependents(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	h := createHabit(t, s, "owner-1", "Run")

	_, err := s.AddLog(ctx, Log{HabitID: h.ID, LogDate: now})
	require.NoError(t, err)
	require.NoError(t, s.SaveStreak(ctx, h.ID, tracker.Streak{CurrentStreak: 1, LongestStreak: 1}))
	require.NoError(t, s.SaveStatistics(ctx, h.ID, tracker.Statistics{TotalCompletions: 1, LastUpdated: now}))
	_, err = s.CreateReminder(ctx, Reminder{HabitID: h.ID, ReminderTime: "07:30", ReminderDays: []string{"mon"}})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteHabit(ctx, "owner-2", h.ID), ErrNotFound)
	require.NoError(t, s.DeleteHabit(ctx, "owner-1", h.ID))

	_, err = s.GetHabit(ctx, "owner-1", h.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, table := range []interface{}{&models.HabitLog{}, &models.Reminder{}, &models.HabitStreak{}, &models.HabitStatistics{}} {
		var count int64
		require.NoError(t, db.Model(table).Where("habit_id = ?", h.ID).Count(&count).Error)
		assert.Zero(t, count)
	}
}

func TestSQLStoreLogs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastLog(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = s.AddLog(ctx, Log{HabitID: "h", LogDate: now.Add(-48 * time.Hour), Notes: "first"})
	require.NoError(t, err)
	_, err = s.AddLog(ctx, Log{HabitID: "h", LogDate: now})
	require.NoError(t, err)

	logs, err := s.ListLogs(ctx, "h")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "first", logs[0].Notes)

	last, err = s.LastLog(ctx, "h")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.LogDate.Equal(now))
}

func TestSQLStoreAggregatesUpsert(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st, err := s.GetStreak(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, tracker.Streak{}, st)

	require.NoError(t, s.SaveStreak(ctx, "h", tracker.Streak{CurrentStreak: 1, LongestStreak: 3}))
	require.NoError(t, s.SaveStreak(ctx, "h", tracker.Streak{CurrentStreak: 2, LongestStreak: 3}))
	st, err = s.GetStreak(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentStreak)
	assert.Equal(t, 3, st.LongestStreak)

	require.NoError(t, s.SaveStatistics(ctx, "h", tracker.Statistics{TotalCompletions: 4, AveragePerWeek: 1.5, LastUpdated: now}))
	stats, err := s.GetStatistics(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalCompletions)
	assert.Equal(t, 1.5, stats.AveragePerWeek)
}

func TestSQLStoreReminders(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, err := s.CreateReminder(ctx, Reminder{HabitID: "h", ReminderTime: "08:00", ReminderDays: []string{"mon", "fri"}})
	require.NoError(t, err)
	assert.True(t, r.IsActive)

	list, err := s.ListReminders(ctx, "h")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"mon", "fri"}, list[0].ReminderDays)

	assert.ErrorIs(t, s.DeleteReminder(ctx, "other", r.ID), ErrReminderNotFound)
	require.NoError(t, s.DeleteReminder(ctx, "h", r.ID))
	list, err = s.ListReminders(ctx, "h")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLStoreSkipsMalformedRecords(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	good := createHabit(t, s, "owner-1", "Good")

	bad := models.Habit{
		OwnerID:       "owner-1",
		Name:          "Bad",
		Frequency:     "fortnightly",
		TargetCount:   1,
		Completions:   datatypes.JSON(`{}`),
		LastCompleted: datatypes.JSON(`null`),
		IsActive:      true,
	}
	require.NoError(t, db.Create(&bad).Error)

	habits, err := s.ListHabits(ctx, "owner-1", false)
	require.NoError(t, err)
	require.Len(t, habits, 1)
	assert.Equal(t, good.ID, habits[0].ID)

	_, err = s.GetHabit(ctx, "owner-1", bad.ID)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
