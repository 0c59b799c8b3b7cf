package controllers

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"habithop/backend/config"
	"habithop/backend/middleware"
	"habithop/backend/models"
	"habithop/backend/utils"
)

// ActivityDays is the default look-back window of the activity feed.
const ActivityDays = 30

type UserController struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Logger *log.Logger
}

func NewUserController(db *gorm.DB, cfg *config.Config, logger *log.Logger) *UserController {
	return &UserController{DB: db, Cfg: cfg, Logger: logger}
}

type UpdateUserRequest struct {
	Username    string `json:"username" validate:"omitempty,min=3,max=30,alphanum" example:"johndoe"`
	Email       string `json:"email" validate:"omitempty,email" example:"user@example.com"`
	OldPassword string `json:"old_password" example:"oldPassword123"`
	NewPassword string `json:"new_password" validate:"omitempty,min=8,max=72" example:"newPassword123"`
}

// GetProfile godoc
// @Summary Get user profile
// @Description Returns authenticated user's profile data
// @Tags users
// @Produce json
// @Success 200 {object} utils.SuccessResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/profile [get]
func (uc *UserController) GetProfile(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var user models.User
	if err := uc.DB.Where("id = ?", s.UserID).First(&user).Error; err != nil {
		return utils.NotFound(c, "User not found")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

// UpdateProfile godoc
// @Summary Update user profile
// @Description Updates authenticated user's profile data
// @Tags users
// @Accept json
// @Produce json
// @Param input body UpdateUserRequest true "Profile update data"
// @Success 200 {object} utils.SuccessResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/profile [put]
func (uc *UserController) UpdateProfile(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input UpdateUserRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if errs := utils.ValidateStruct(input); errs != nil {
		return utils.ValidationError(c, errs)
	}

	var user models.User
	if err := uc.DB.Where("id = ?", s.UserID).First(&user).Error; err != nil {
		return utils.NotFound(c, "User not found")
	}

	if input.Username != "" && input.Username != user.Username {
		taken, err := uc.taken("username", input.Username, user.ID)
		if err != nil {
			uc.Logger.Error("uniqueness check failed", "user", user.ID, "field", "username", "error", err)
			return utils.InternalServerError(c, utils.RetryMessage)
		}
		if taken {
			return utils.Conflict(c, "Username already taken")
		}
		user.Username = input.Username
	}

	if input.Email != "" && input.Email != user.Email {
		taken, err := uc.taken("email", input.Email, user.ID)
		if err != nil {
			uc.Logger.Error("uniqueness check failed", "user", user.ID, "field", "email", "error", err)
			return utils.InternalServerError(c, utils.RetryMessage)
		}
		if taken {
			return utils.Conflict(c, "Email already taken")
		}
		user.Email = input.Email
	}

	if input.NewPassword != "" {
		if input.OldPassword == "" {
			return utils.ValidationError(c, map[string]string{"old_password": "is required to set a new password"})
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.OldPassword)); err != nil {
			return utils.Unauthorized(c, "Invalid old password")
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return utils.InternalServerError(c, "Could not hash password")
		}
		user.PasswordHash = string(hashedPassword)
	}

	if err := uc.DB.Save(&user).Error; err != nil {
		uc.Logger.Error("update user failed", "user", user.ID, "error", err)
		return utils.InternalServerError(c, utils.RetryMessage)
	}

	return utils.Success(c, fiber.StatusOK, user)
}

// GetActivity godoc
// @Summary Get sign-in activity
// @Description Returns the user's sign-in and sign-out events
// @Tags users
// @Produce json
// @Param days query int false "Number of days to look back" default(30)
// @Success 200 {object} utils.SuccessResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /user/activity [get]
func (uc *UserController) GetActivity(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	days, err := strconv.Atoi(c.Query("days", strconv.Itoa(ActivityDays)))
	if err != nil || days < 1 {
		days = ActivityDays
	}

	var events []models.LoginHistory
	if err := uc.DB.Where("user_id = ? AND occurred_at >= ?", s.UserID, time.Now().AddDate(0, 0, -days)).
		Order("occurred_at DESC").
		Find(&events).Error; err != nil {
		uc.Logger.Error("fetch login history failed", "user", s.UserID, "error", err)
		return utils.InternalServerError(c, utils.RetryMessage)
	}

	type activity struct {
		Event string    `json:"event"`
		At    time.Time `json:"at"`
	}
	out := make([]activity, len(events))
	for i, e := range events {
		out[i] = activity{Event: e.Event, At: e.OccurredAt}
	}

	return utils.Success(c, fiber.StatusOK, out, fiber.Map{"period_days": days})
}

func (uc *UserController) taken(column, value, selfID string) (bool, error) {
	var count int64
	err := uc.DB.Model(&models.User{}).Where(column+" = ? AND id <> ?", value, selfID).Count(&count).Error
	return count > 0, err
}
