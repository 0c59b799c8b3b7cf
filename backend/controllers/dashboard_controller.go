package controllers

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"habithop/backend/services"
	"habithop/backend/utils"
)

type DashboardController struct {
	Habits *services.HabitService
	Logger *log.Logger
	hc     *HabitController
}

func NewDashboardController(habits *services.HabitService, logger *log.Logger) *DashboardController {
	return &DashboardController{
		Habits: habits,
		Logger: logger,
		hc:     NewHabitController(habits, logger),
	}
}

// GetDashboard godoc
// @Summary Dashboard
// @Description Overview counters plus the sorted list of active habits
// @Tags dashboard
// @Produce json
// @Success 200 {object} utils.SuccessResponse
// @Failure 401 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /dashboard [get]
func (dc *DashboardController) GetDashboard(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	overview, err := dc.Habits.Overview(c.UserContext(), owner)
	if err != nil {
		return dc.hc.respond(c, err)
	}
	habits, err := dc.Habits.List(c.UserContext(), owner)
	if err != nil {
		return dc.hc.respond(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"overview": overview,
		"habits":   habits,
	})
}

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SQLPinger checks the GORM connection pool.
type SQLPinger struct{ DB *gorm.DB }

func (p SQLPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type HealthController struct {
	Checks map[string]Pinger
	Logger *log.Logger
}

func NewHealthController(checks map[string]Pinger, logger *log.Logger) *HealthController {
	return &HealthController{Checks: checks, Logger: logger}
}

// Health godoc
// @Summary Liveness and dependency check
// @Tags health
// @Produce json
// @Success 200 {object} utils.SuccessResponse
// @Failure 503 {object} utils.ErrorResponse
// @Router /healthz [get]
func (hc *HealthController) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.Map{}
	healthy := true
	for name, check := range hc.Checks {
		if err := check.Ping(ctx); err != nil {
			hc.Logger.Warn("health check failed", "dependency", name, "error", err)
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	if !healthy {
		return utils.Error(c, fiber.StatusServiceUnavailable, fiber.ErrServiceUnavailable, status)
	}
	return utils.Success(c, fiber.StatusOK, status)
}
