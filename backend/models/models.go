package models

// All lists every table the application migrates.
func All() []interface{} {
	return []interface{}{
		&User{},
		&LoginHistory{},
		&Habit{},
		&HabitLog{},
		&HabitStreak{},
		&HabitStatistics{},
		&Reminder{},
	}
}
