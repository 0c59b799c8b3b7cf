package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"habithop/backend/config"
	"habithop/backend/middleware"
	"habithop/backend/models"
	"habithop/backend/session"
	"habithop/backend/utils"
)

type AuthController struct {
	DB      *gorm.DB
	Cfg     *config.Config
	Broker  *session.Broker
	Revoker session.Revoker
	Logger  *log.Logger
}

func NewAuthController(db *gorm.DB, cfg *config.Config, broker *session.Broker, revoker session.Revoker, logger *log.Logger) *AuthController {
	return &AuthController{DB: db, Cfg: cfg, Broker: broker, Revoker: revoker, Logger: logger}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30,alphanum" example:"habitfan"`
	Email    string `json:"email" validate:"required,email" example:"user@example.com"`
	Password string `json:"password" validate:"required,min=8,max=72" example:"s3cretPass"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      fiber.Map `json:"user"`
}

// Register godoc
// @Summary Register a new user
// @Description Creates a new user account and signs it in
// @Tags auth
// @Accept json
// @Produce json
// @Param user body RegisterRequest true "User registration data"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /auth/register [post]
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var input RegisterRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if errs := utils.ValidateStruct(input); errs != nil {
		return utils.ValidationError(c, errs)
	}

	var count int64
	if err := ac.DB.Model(&models.User{}).
		Where("username = ? OR email = ?", input.Username, input.Email).
		Count(&count).Error; err != nil {
		ac.Logger.Error("user lookup failed", "error", err)
		return utils.InternalServerError(c, utils.RetryMessage)
	}
	if count > 0 {
		return utils.Conflict(c, "Username or email already taken")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.InternalServerError(c, "Could not hash password")
	}

	user := models.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
	}
	if err := ac.DB.Create(&user).Error; err != nil {
		ac.Logger.Error("create user failed", "error", err)
		return utils.InternalServerError(c, utils.RetryMessage)
	}

	resp, err := ac.signIn(user)
	if err != nil {
		return utils.InternalServerError(c, "Could not generate token")
	}
	return utils.Created(c, resp)
}

// Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Router /auth/login [post]
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var input LoginRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if errs := utils.ValidateStruct(input); errs != nil {
		return utils.ValidationError(c, errs)
	}

	// Find user
	var user models.User
	if err := ac.DB.Where("username = ?", strings.TrimSpace(input.Username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Unauthorized(c, "Invalid credentials")
		}
		ac.Logger.Error("user lookup failed", "error", err)
		return utils.InternalServerError(c, utils.RetryMessage)
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return utils.Unauthorized(c, "Invalid credentials")
	}

	resp, err := ac.signIn(user)
	if err != nil {
		return utils.InternalServerError(c, "Could not generate token")
	}
	return utils.Success(c, fiber.StatusOK, resp)
}

// Logout godoc
// @Summary User logout
// @Description Revokes the current token
// @Tags auth
// @Produce json
// @Success 204
// @Failure 401 {object} utils.ErrorResponse
// @Failure 500 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /auth/logout [post]
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		return utils.Unauthorized(c, "Unauthorized")
	}

	if err := ac.Revoker.Revoke(c.UserContext(), s.TokenID, s.ExpiresAt); err != nil {
		ac.Logger.Error("revoke token failed", "user", s.UserID, "error", err)
		return utils.InternalServerError(c, utils.RetryMessage)
	}

	ac.Broker.Publish(session.Event{Kind: session.SignedOut, UserID: s.UserID, At: time.Now()})
	return utils.NoContent(c)
}

func (ac *AuthController) signIn(user models.User) (AuthResponse, error) {
	token, claims, err := utils.GenerateJWTToken(user.ID, ac.Cfg)
	if err != nil {
		ac.Logger.Error("sign token failed", "user", user.ID, "error", err)
		return AuthResponse{}, err
	}

	ac.Broker.Publish(session.Event{Kind: session.SignedIn, UserID: user.ID, At: time.Now()})

	return AuthResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User: fiber.Map{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	}, nil
}
