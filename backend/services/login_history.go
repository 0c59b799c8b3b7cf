package services

import (
	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"habithop/backend/models"
	"habithop/backend/session"
)

// RecordLoginHistory stores every session event until events is closed.
// It is meant to run in its own goroutine; done is closed on return.
func RecordLoginHistory(db *gorm.DB, events <-chan session.Event, logger *log.Logger, done chan<- struct{}) {
	defer close(done)

	for e := range events {
		entry := models.LoginHistory{UserID: e.UserID, Event: string(e.Kind), OccurredAt: e.At}
		if err := db.Create(&entry).Error; err != nil {
			logger.Error("login history not saved", "user", e.UserID, "event", e.Kind, "error", err)
			continue
		}
		logger.Info("session event", "user", e.UserID, "event", e.Kind)
	}
}
