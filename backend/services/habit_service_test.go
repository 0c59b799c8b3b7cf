package services

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"habithop/backend/models"
	"habithop/backend/store"
	"habithop/backend/tracker"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time          { return c.t }
func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*HabitService, *fixedClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "svc.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	quiet := log.New(io.Discard)
	st := store.NewSQLStore(db, quiet)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	clock := &fixedClock{t: time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC)}
	svc := NewHabitService(st, time.UTC, time.Second, quiet)
	svc.Clock = clock.Now
	return svc, clock
}

func mustCreate(t *testing.T, svc *HabitService, owner, name string, freq tracker.Frequency, target int) HabitView {
	t.Helper()
	h, err := svc.Create(context.Background(), owner, NewHabit{Name: name, Frequency: freq, TargetCount: target})
	require.NoError(t, err)
	return h
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", NewHabit{Name: "  ab ", Frequency: "hourly", TargetCount: 0})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "frequency")
	assert.Contains(t, verr.Fields, "targetCount")

	_, err = svc.Create(ctx, "u1", NewHabit{Name: "Walk", Frequency: tracker.Daily, TargetCount: 100})
	require.ErrorAs(t, err, &verr)

	h := mustCreate(t, svc, "u1", "  Walk the dog ", tracker.Daily, 1)
	assert.Equal(t, "Walk the dog", h.Name)
	assert.False(t, h.Completed)
	assert.Equal(t, "2026-10-21T00:00:00.000Z", h.Period.Start)
}

func TestCompleteUpdatesHabitAndAggregates(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "u1", "Pushups", tracker.Daily, 2)

	res, err := svc.Complete(ctx, "u1", h.ID, " morning ")
	require.NoError(t, err)
	assert.False(t, res.Habit.Completed)
	assert.Equal(t, "morning", res.Log.Notes)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, 1, res.Statistics.TotalCompletions)

	clock.Advance(time.Hour)
	res, err = svc.Complete(ctx, "u1", h.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Habit.Completed)
	assert.Equal(t, 2, res.Habit.Completions["2026-10-21"])
	assert.Equal(t, 2, res.Habit.Period.Count)
	assert.Equal(t, 2, res.Statistics.TotalCompletions)
	assert.Equal(t, 2.0, res.Statistics.AveragePerWeek)

	clock.Advance(24 * time.Hour)
	res, err = svc.Complete(ctx, "u1", h.ID, "")
	require.NoError(t, err)
	assert.False(t, res.Habit.Completed)
	assert.Equal(t, 2, res.Streak.CurrentStreak)
	assert.Equal(t, 2, res.Streak.LongestStreak)
	require.NotNil(t, res.Streak.LastLoggedDate)
}

func TestCompleteForeignOrArchivedHabit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "u1", "Floss", tracker.Daily, 1)

	_, err := svc.Complete(ctx, "u2", h.ID, "")
	assert.True(t, IsNotFound(err))

	require.NoError(t, svc.Delete(ctx, "u1", h.ID))
	_, err = svc.Complete(ctx, "u1", h.ID, "")
	assert.True(t, IsNotFound(err))
}

func TestListSortsCompletedFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	zeta := mustCreate(t, svc, "u1", "zeta", tracker.Daily, 1)
	mustCreate(t, svc, "u1", "alpha", tracker.Daily, 1)
	beta := mustCreate(t, svc, "u1", "Beta", tracker.Weekly, 1)
	mustCreate(t, svc, "u2", "other", tracker.Daily, 1)

	_, err := svc.Complete(ctx, "u1", zeta.ID, "")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, "u1", beta.ID, "")
	require.NoError(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)

	names := []string{list[0].Name, list[1].Name, list[2].Name}
	assert.Equal(t, []string{"Beta", "zeta", "alpha"}, names)
	assert.True(t, list[0].Completed)
	assert.False(t, list[2].Completed)
}

func TestSoftDeleteRestorePurge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "u1", "Journal", tracker.Daily, 1)
	_, err := svc.Complete(ctx, "u1", h.ID, "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "u1", h.ID))

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	archived, err := svc.Archived(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, 1, archived[0].Completions["2026-10-21"])

	_, err = svc.Stats(ctx, "u1", h.ID)
	assert.True(t, IsNotFound(err))

	restored, err := svc.Restore(ctx, "u1", h.ID)
	require.NoError(t, err)
	assert.True(t, restored.IsActive)
	assert.True(t, restored.Completed)

	require.NoError(t, svc.Purge(ctx, "u1", h.ID))
	_, err = svc.Get(ctx, "u1", h.ID)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(svc.Purge(ctx, "u1", h.ID)))
}

func TestUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "u1", "Meditate", tracker.Daily, 1)

	zero := 0
	_, err := svc.Update(ctx, "u1", h.ID, HabitEdit{TargetCount: &zero})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "targetCount")

	weekly := tracker.Weekly
	three := 3
	updated, err := svc.Update(ctx, "u1", h.ID, HabitEdit{Frequency: &weekly, TargetCount: &three})
	require.NoError(t, err)
	assert.Equal(t, "Meditate", updated.Name)
	assert.Equal(t, tracker.Weekly, updated.Frequency)
	assert.Equal(t, "2026-10-19T00:00:00.000Z", updated.Period.Start)

	_, err = svc.Update(ctx, "u2", h.ID, HabitEdit{TargetCount: &three})
	assert.True(t, IsNotFound(err))
}

func TestStats(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "u1", "Run", tracker.Weekly, 2)

	stats, err := svc.Stats(ctx, "u1", h.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.RecentStreak)
	assert.Zero(t, stats.CompletionRate)
	assert.False(t, stats.IsPeriodComplete)

	_, err = svc.Complete(ctx, "u1", h.ID, "")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, err = svc.Complete(ctx, "u1", h.ID, "second lap")
	require.NoError(t, err)

	stats, err = svc.Stats(ctx, "u1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecentStreak)
	assert.Equal(t, 6.67, stats.CompletionRate)
	assert.True(t, stats.IsPeriodComplete)
	assert.Equal(t, 2, stats.Statistics.TotalCompletions)
	assert.Equal(t, 1, stats.Streak.CurrentStreak)
	assert.Equal(t, 2, stats.Period.Count)

	logs, err := svc.Logs(ctx, "u1", h.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second lap", logs[0].Notes)
	assert.True(t, logs[0].LogDate.After(logs[1].LogDate))

	clock.Advance(7 * 24 * time.Hour)
	stats, err = svc.Stats(ctx, "u1", h.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.RecentStreak)
	assert.False(t, stats.IsPeriodComplete)
}

func TestOverview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "u1", "Water", tracker.Daily, 2)
	b := mustCreate(t, svc, "u1", "Stretch", tracker.Daily, 1)
	mustCreate(t, svc, "u1", "Read", tracker.Weekly, 1)

	for _, id := range []string{a.ID, a.ID, b.ID} {
		_, err := svc.Complete(ctx, "u1", id, "")
		require.NoError(t, err)
	}

	o, err := svc.Overview(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Overview{
		ActiveHabits:     3,
		CompletedToday:   2,
		PeriodsComplete:  2,
		BestStreak:       1,
		TotalCompletions: 3,
	}, o)
}

func TestReminders(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	h := mustCreate(t, svc, "u1", "Vitamins", tracker.Daily, 1)

	_, err := svc.AddReminder(ctx, "u1", h.ID, NewReminder{ReminderTime: "7:00", ReminderDays: []string{"mon", "mon", "funday"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "reminderTime")
	assert.Contains(t, verr.Fields, "reminderDays")

	_, err = svc.AddReminder(ctx, "u2", h.ID, NewReminder{ReminderTime: "07:00", ReminderDays: []string{"mon"}})
	assert.True(t, IsNotFound(err))

	r, err := svc.AddReminder(ctx, "u1", h.ID, NewReminder{ReminderTime: "07:00", ReminderDays: []string{" MON ", "thu"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"mon", "thu"}, r.ReminderDays)

	list, err := svc.Reminders(ctx, "u1", h.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.True(t, IsNotFound(svc.DeleteReminder(ctx, "u2", h.ID, r.ID)))
	require.NoError(t, svc.DeleteReminder(ctx, "u1", h.ID, r.ID))
	assert.True(t, IsNotFound(svc.DeleteReminder(ctx, "u1", h.ID, r.ID)))
}

func TestServiceUsesConfiguredLocation(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	svc.loc = tokyo
	// 20:00 UTC on the 21st is already the 22nd in Tokyo
	clock.t = time.Date(2026, 10, 21, 20, 0, 0, 0, time.UTC)

	h := mustCreate(t, svc, "u1", "Sleep early", tracker.Daily, 1)
	res, err := svc.Complete(ctx, "u1", h.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Habit.Completions["2026-10-22"])
	assert.Equal(t, "2026-10-21T15:00:00.000Z", res.Habit.Period.Start)
}
