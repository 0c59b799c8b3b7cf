// Package services combines the completion tracker with a habit store. All
// calendar math happens in the service's configured location.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"habithop/backend/store"
	"habithop/backend/tracker"
	"habithop/backend/utils"
)

// CompletionRateWindow is the trailing number of days the completion rate covers.
const CompletionRateWindow = 30

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

type NewHabit struct {
	Name        string            `json:"name" validate:"required,min=3,max=50"`
	Frequency   tracker.Frequency `json:"frequency" validate:"required,oneof=daily weekly"`
	TargetCount int               `json:"targetCount" validate:"min=1,max=99"`
}

type HabitEdit struct {
	Name        *string            `json:"name" validate:"omitnil,min=3,max=50"`
	Frequency   *tracker.Frequency `json:"frequency" validate:"omitnil,oneof=daily weekly"`
	TargetCount *int               `json:"targetCount" validate:"omitnil,min=1,max=99"`
}

type NewReminder struct {
	ReminderTime string   `json:"reminderTime" validate:"required,clock"`
	ReminderDays []string `json:"reminderDays" validate:"required,min=1,max=7,unique,dive,oneof=mon tue wed thu fri sat sun"`
}

type PeriodView struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Count int    `json:"count"`
}

// HabitView is a habit as the API shows it, with its state for the current period.
type HabitView struct {
	tracker.Habit
	Completed bool       `json:"completed"`
	Period    PeriodView `json:"period"`
}

type CompletionResult struct {
	Habit      HabitView          `json:"habit"`
	Log        store.Log          `json:"log"`
	Streak     tracker.Streak     `json:"streak"`
	Statistics tracker.Statistics `json:"statistics"`
}

type HabitStats struct {
	HabitID          string             `json:"habitId"`
	Streak           tracker.Streak     `json:"streak"`
	Statistics       tracker.Statistics `json:"statistics"`
	RecentStreak     int                `json:"recentStreak"`
	CompletionRate   float64            `json:"completionRate"`
	IsPeriodComplete bool               `json:"isPeriodComplete"`
	Period           PeriodView         `json:"period"`
}

type Overview struct {
	ActiveHabits     int `json:"activeHabits"`
	CompletedToday   int `json:"completedToday"`
	PeriodsComplete  int `json:"periodsComplete"`
	BestStreak       int `json:"bestStreak"`
	TotalCompletions int `json:"totalCompletions"`
}

type HabitService struct {
	store   store.HabitStore
	loc     *time.Location
	timeout time.Duration
	logger  *log.Logger

	// Clock returns the current instant; tests replace it.
	Clock func() time.Time
}

func NewHabitService(s store.HabitStore, loc *time.Location, timeout time.Duration, logger *log.Logger) *HabitService {
	if loc == nil {
		loc = time.UTC
	}
	return &HabitService{
		store:   s,
		loc:     loc,
		timeout: timeout,
		logger:  logger,
		Clock:   time.Now,
	}
}

func (s *HabitService) now() time.Time {
	return s.Clock().In(s.loc)
}

func (s *HabitService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func validate(v interface{}) error {
	if fields := utils.ValidateStruct(v); fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *HabitService) view(h tracker.Habit, now time.Time) HabitView {
	p := tracker.PeriodFor(h.Frequency, now)
	return HabitView{
		Habit:     h,
		Completed: tracker.IsPeriodComplete(h, now),
		Period:    periodView(h, p),
	}
}

func periodView(h tracker.Habit, p tracker.Period) PeriodView {
	return PeriodView{
		Start: p.Start.UTC().Format(tracker.InstantLayout),
		End:   p.End.UTC().Format(tracker.InstantLayout),
		Count: tracker.CountInPeriod(h, p),
	}
}

func (s *HabitService) Create(ctx context.Context, ownerID string, in NewHabit) (HabitView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate(in); err != nil {
		return HabitView{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	h, err := s.store.CreateHabit(ctx, tracker.Habit{
		OwnerID:     ownerID,
		Name:        in.Name,
		Frequency:   in.Frequency,
		TargetCount: in.TargetCount,
		Completions: map[string]int{},
	})
	if err != nil {
		return HabitView{}, err
	}

	s.logger.Info("habit created", "owner", ownerID, "habit", h.ID, "frequency", h.Frequency)
	return s.view(h, s.now()), nil
}

// List returns the owner's active habits, completed ones first.
func (s *HabitService) List(ctx context.Context, ownerID string) ([]HabitView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := s.store.ListHabits(ctx, ownerID, false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sorted := tracker.SortByCompletionThenName(habits, now)
	views := make([]HabitView, len(sorted))
	for i, h := range sorted {
		views[i] = s.view(h, now)
	}
	return views, nil
}

// Archived returns the owner's soft-deleted habits so they can be restored.
func (s *HabitService) Archived(ctx context.Context, ownerID string) ([]tracker.Habit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := s.store.ListHabits(ctx, ownerID, true)
	if err != nil {
		return nil, err
	}

	archived := make([]tracker.Habit, 0)
	for _, h := range habits {
		if !h.IsActive {
			archived = append(archived, h)
		}
	}
	return archived, nil
}

func (s *HabitService) Get(ctx context.Context, ownerID, id string) (HabitView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	h, err := s.store.GetHabit(ctx, ownerID, id)
	if err != nil {
		return HabitView{}, err
	}
	return s.view(h, s.now()), nil
}

func (s *HabitService) Update(ctx context.Context, ownerID, id string, in HabitEdit) (HabitView, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := validate(in); err != nil {
		return HabitView{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	h, err := s.store.UpdateHabit(ctx, ownerID, id, store.HabitChanges{
		Name:        in.Name,
		Frequency:   in.Frequency,
		TargetCount: in.TargetCount,
	})
	if err != nil {
		return HabitView{}, err
	}
	return s.view(h, s.now()), nil
}

// Delete soft-deletes the habit; its history is kept for Restore.
func (s *HabitService) Delete(ctx context.Context, ownerID, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.SetActive(ctx, ownerID, id, false); err != nil {
		return err
	}
	s.logger.Info("habit archived", "owner", ownerID, "habit", id)
	return nil
}

func (s *HabitService) Restore(ctx context.Context, ownerID, id string) (HabitView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.SetActive(ctx, ownerID, id, true); err != nil {
		return HabitView{}, err
	}
	h, err := s.store.GetHabit(ctx, ownerID, id)
	if err != nil {
		return HabitView{}, err
	}
	s.logger.Info("habit restored", "owner", ownerID, "habit", id)
	return s.view(h, s.now()), nil
}

// Purge removes the habit and everything derived from it.
func (s *HabitService) Purge(ctx context.Context, ownerID, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.DeleteHabit(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("habit purged", "owner", ownerID, "habit", id)
	return nil
}

// Complete records one completion now. The streak and statistics caches
// are refreshed afterwards; a failure there is logged and does not undo
// the completion.
func (s *HabitService) Complete(ctx context.Context, ownerID, id, notes string) (CompletionResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	h, err := s.store.RecordCompletion(ctx, ownerID, id, now)
	if err != nil {
		return CompletionResult{}, err
	}

	entry, err := s.store.AddLog(ctx, store.Log{HabitID: h.ID, LogDate: now, Notes: strings.TrimSpace(notes)})
	if err != nil {
		s.logger.Warn("completion log not written", "habit", h.ID, "error", err)
	}

	result := CompletionResult{Habit: s.view(h, now), Log: entry}
	result.Streak, result.Statistics, err = s.refreshAggregates(ctx, h, now)
	if err != nil {
		s.logger.Warn("habit aggregates not refreshed", "habit", h.ID, "error", err)
	}

	s.logger.Debug("habit completed",
		"owner", ownerID,
		"habit", h.ID,
		"date", h.LastCompleted.Date,
		"count", h.LastCompleted.Count,
		"periodComplete", result.Habit.Completed,
	)
	return result, nil
}

func (s *HabitService) refreshAggregates(ctx context.Context, h tracker.Habit, now time.Time) (tracker.Streak, tracker.Statistics, error) {
	stored, err := s.store.GetStreak(ctx, h.ID)
	if err != nil {
		return tracker.Streak{}, tracker.Statistics{}, err
	}

	streak := tracker.Streaks(h, now)
	streak.LongestStreak = max(streak.LongestStreak, stored.LongestStreak, streak.CurrentStreak)
	logged := now
	streak.LastLoggedDate = &logged
	if err := s.store.SaveStreak(ctx, h.ID, streak); err != nil {
		return streak, tracker.Statistics{}, err
	}

	logs, err := s.store.ListLogs(ctx, h.ID)
	if err != nil {
		return streak, tracker.Statistics{}, err
	}
	dates := logDates(logs)

	stats := tracker.Statistics{
		TotalCompletions: len(dates),
		AveragePerWeek:   tracker.AveragePerWeek(dates),
		LastUpdated:      now,
	}
	if err := s.store.SaveStatistics(ctx, h.ID, stats); err != nil {
		return streak, stats, err
	}
	return streak, stats, nil
}

// Stats reports the cached aggregates together with values derived live
// from the log history. Archived habits have no statistics.
func (s *HabitService) Stats(ctx context.Context, ownerID, id string) (HabitStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	h, err := s.store.GetHabit(ctx, ownerID, id)
	if err != nil {
		return HabitStats{}, err
	}
	if !h.IsActive {
		return HabitStats{}, store.ErrNotFound
	}

	streak, err := s.store.GetStreak(ctx, h.ID)
	if err != nil {
		return HabitStats{}, err
	}
	stats, err := s.store.GetStatistics(ctx, h.ID)
	if err != nil {
		return HabitStats{}, err
	}
	logs, err := s.store.ListLogs(ctx, h.ID)
	if err != nil {
		return HabitStats{}, err
	}
	lastLog, err := s.store.LastLog(ctx, h.ID)
	if err != nil {
		return HabitStats{}, err
	}

	now := s.now()
	var last *time.Time
	if lastLog != nil {
		last = &lastLog.LogDate
	}

	return HabitStats{
		HabitID:          h.ID,
		Streak:           streak,
		Statistics:       stats,
		RecentStreak:     tracker.StreakForLog(last, now),
		CompletionRate:   tracker.CompletionRate(logDates(logs), CompletionRateWindow, now),
		IsPeriodComplete: tracker.IsPeriodComplete(h, now),
		Period:           periodView(h, tracker.PeriodFor(h.Frequency, now)),
	}, nil
}

// Logs returns the completion history of one habit, newest first.
func (s *HabitService) Logs(ctx context.Context, ownerID, id string) ([]store.Log, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.store.GetHabit(ctx, ownerID, id); err != nil {
		return nil, err
	}
	logs, err := s.store.ListLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	slices.Reverse(logs)
	return logs, nil
}

func (s *HabitService) Overview(ctx context.Context, ownerID string) (Overview, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	habits, err := s.store.ListHabits(ctx, ownerID, false)
	if err != nil {
		return Overview{}, err
	}

	now := s.now()
	o := Overview{
		ActiveHabits:   len(habits),
		CompletedToday: tracker.CompletedToday(habits, now),
	}
	for _, h := range habits {
		if tracker.IsPeriodComplete(h, now) {
			o.PeriodsComplete++
		}
		o.TotalCompletions += tracker.TotalCompletions(h)
		o.BestStreak = max(o.BestStreak, tracker.Streaks(h, now).CurrentStreak)
	}
	return o, nil
}

func (s *HabitService) AddReminder(ctx context.Context, ownerID, habitID string, in NewReminder) (store.Reminder, error) {
	in.ReminderTime = strings.TrimSpace(in.ReminderTime)
	for i, d := range in.ReminderDays {
		in.ReminderDays[i] = strings.ToLower(strings.TrimSpace(d))
	}
	if err := validate(in); err != nil {
		return store.Reminder{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.activeHabit(ctx, ownerID, habitID); err != nil {
		return store.Reminder{}, err
	}
	return s.store.CreateReminder(ctx, store.Reminder{
		HabitID:      habitID,
		ReminderTime: in.ReminderTime,
		ReminderDays: in.ReminderDays,
	})
}

func (s *HabitService) Reminders(ctx context.Context, ownerID, habitID string) ([]store.Reminder, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.store.GetHabit(ctx, ownerID, habitID); err != nil {
		return nil, err
	}
	return s.store.ListReminders(ctx, habitID)
}

func (s *HabitService) DeleteReminder(ctx context.Context, ownerID, habitID, reminderID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.store.GetHabit(ctx, ownerID, habitID); err != nil {
		return err
	}
	return s.store.DeleteReminder(ctx, habitID, reminderID)
}

func (s *HabitService) activeHabit(ctx context.Context, ownerID, id string) (tracker.Habit, error) {
	h, err := s.store.GetHabit(ctx, ownerID, id)
	if err != nil {
		return tracker.Habit{}, err
	}
	if !h.IsActive {
		return tracker.Habit{}, fmt.Errorf("habit %s is archived: %w", id, store.ErrNotFound)
	}
	return h, nil
}

// IsNotFound reports whether err means the habit or reminder does not
// exist for this owner.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrReminderNotFound)
}

func logDates(logs []store.Log) []time.Time {
	dates := make([]time.Time, len(logs))
	for i, l := range logs {
		dates[i] = l.LogDate
	}
	return dates
}
