package controllers

import (
	"errors"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"

	"habithop/backend/middleware"
	"habithop/backend/services"
	"habithop/backend/store"
	"habithop/backend/utils"
)

type HabitController struct {
	Habits *services.HabitService
	Logger *log.Logger
}

func NewHabitController(habits *services.HabitService, logger *log.Logger) *HabitController {
	return &HabitController{Habits: habits, Logger: logger}
}

type CompleteRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

// respond maps service errors onto the response envelope.
func (hc *HabitController) respond(c *fiber.Ctx, err error) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return utils.ValidationError(c, verr.Fields)
	case errors.Is(err, store.ErrReminderNotFound):
		return utils.NotFound(c, "Reminder not found")
	case services.IsNotFound(err):
		return utils.NotFound(c, "Habit not found")
	default:
		hc.Logger.Error("habit request failed",
			"method", c.Method(),
			"path", c.Path(),
			"malformed", errors.Is(err, store.ErrMalformedRecord),
			"error", err,
		)
		return utils.InternalServerError(c, utils.RetryMessage)
	}
}

func ownerID(c *fiber.Ctx) (string, bool) {
	s, ok := middleware.CurrentSession(c)
	return s.UserID, ok
}

// ListHabits godoc
// @Summary List habits
// @Description Active habits, those complete for their current period first, then by name
// @Tags habits
// @Produce json
// @Success 200 {object} utils.SuccessResponse
// @Failure 401 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits [get]
func (hc *HabitController) ListHabits(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	habits, err := hc.Habits.List(c.UserContext(), owner)
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, habits, fiber.Map{"total": len(habits)})
}

// ListArchived godoc
// @Summary List archived habits
// @Tags habits
// @Produce json
// @Success 200 {object} utils.SuccessResponse
// @Security ApiKeyAuth
// @Router /habits/archived [get]
func (hc *HabitController) ListArchived(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	habits, err := hc.Habits.Archived(c.UserContext(), owner)
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, habits)
}

// CreateHabit godoc
// @Summary Create habit
// @Tags habits
// @Accept json
// @Produce json
// @Param habit body services.NewHabit true "Habit"
// @Success 201 {object} utils.SuccessResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits [post]
func (hc *HabitController) CreateHabit(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input services.NewHabit
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}

	habit, err := hc.Habits.Create(c.UserContext(), owner, input)
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Created(c, habit)
}

// GetHabit godoc
// @Summary Get habit
// @Tags habits
// @Produce json
// @Param id path string true "Habit ID"
// @Success 200 {object} utils.SuccessResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id} [get]
func (hc *HabitController) GetHabit(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	habit, err := hc.Habits.Get(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, habit)
}

// UpdateHabit godoc
// @Summary Edit habit
// @Description Only the supplied fields change
// @Tags habits
// @Accept json
// @Produce json
// @Param id path string true "Habit ID"
// @Param habit body services.HabitEdit true "Changes"
// @Success 200 {object} utils.SuccessResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id} [put]
func (hc *HabitController) UpdateHabit(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input services.HabitEdit
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}

	habit, err := hc.Habits.Update(c.UserContext(), owner, c.Params("id"), input)
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, habit)
}

// DeleteHabit godoc
// @Summary Archive habit
// @Description Soft delete; history is kept and the habit can be restored
// @Tags habits
// @Param id path string true "Habit ID"
// @Success 204
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id} [delete]
func (hc *HabitController) DeleteHabit(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	if err := hc.Habits.Delete(c.UserContext(), owner, c.Params("id")); err != nil {
		return hc.respond(c, err)
	}
	return utils.NoContent(c)
}

// RestoreHabit godoc
// @Summary Restore archived habit
// @Tags habits
// @Produce json
// @Param id path string true "Habit ID"
// @Success 200 {object} utils.SuccessResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id}/restore [post]
func (hc *HabitController) RestoreHabit(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	habit, err := hc.Habits.Restore(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, habit)
}

// PurgeHabit godoc
// @Summary Delete habit permanently
// @Description Removes the habit with its logs, reminders, streak and statistics
// @Tags habits
// @Param id path string true "Habit ID"
// @Success 204
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id}/purge [delete]
func (hc *HabitController) PurgeHabit(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	if err := hc.Habits.Purge(c.UserContext(), owner, c.Params("id")); err != nil {
		return hc.respond(c, err)
	}
	return utils.NoContent(c)
}

// CompleteHabit godoc
// @Summary Record a completion
// @Description Adds one completion for today; there is no undo
// @Tags habits
// @Accept json
// @Produce json
// @Param id path string true "Habit ID"
// @Param body body CompleteRequest false "Optional notes"
// @Success 200 {object} utils.SuccessResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id}/complete [post]
func (hc *HabitController) CompleteHabit(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input CompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.BadRequest(c, "Cannot parse JSON")
		}
		if errs := utils.ValidateStruct(input); errs != nil {
			return utils.ValidationError(c, errs)
		}
	}

	result, err := hc.Habits.Complete(c.UserContext(), owner, c.Params("id"), input.Notes)
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, result)
}

// GetStats godoc
// @Summary Habit statistics
// @Tags habits
// @Produce json
// @Param id path string true "Habit ID"
// @Success 200 {object} utils.SuccessResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id}/stats [get]
func (hc *HabitController) GetStats(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	stats, err := hc.Habits.Stats(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, stats)
}

// GetLogs godoc
// @Summary Completion history
// @Tags habits
// @Produce json
// @Param id path string true "Habit ID"
// @Success 200 {object} utils.SuccessResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id}/logs [get]
func (hc *HabitController) GetLogs(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	logs, err := hc.Habits.Logs(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, logs)
}

// ListReminders godoc
// @Summary List reminders of a habit
// @Tags reminders
// @Produce json
// @Param id path string true "Habit ID"
// @Success 200 {object} utils.SuccessResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id}/reminders [get]
func (hc *HabitController) ListReminders(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	reminders, err := hc.Habits.Reminders(c.UserContext(), owner, c.Params("id"))
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Success(c, fiber.StatusOK, reminders)
}

// CreateReminder godoc
// @Summary Add reminder
// @Tags reminders
// @Accept json
// @Produce json
// @Param id path string true "Habit ID"
// @Param reminder body services.NewReminder true "Reminder"
// @Success 201 {object} utils.SuccessResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id}/reminders [post]
func (hc *HabitController) CreateReminder(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input services.NewReminder
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}

	reminder, err := hc.Habits.AddReminder(c.UserContext(), owner, c.Params("id"), input)
	if err != nil {
		return hc.respond(c, err)
	}
	return utils.Created(c, reminder)
}

// DeleteReminder godoc
// @Summary Remove reminder
// @Tags reminders
// @Param id path string true "Habit ID"
// @Param reminderId path string true "Reminder ID"
// @Success 204
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /habits/{id}/reminders/{reminderId} [delete]
func (hc *HabitController) DeleteReminder(c *fiber.Ctx) error {
	owner, ok := ownerID(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	if err := hc.Habits.DeleteReminder(c.UserContext(), owner, c.Params("id"), c.Params("reminderId")); err != nil {
		return hc.respond(c, err)
	}
	return utils.NoContent(c)
}
