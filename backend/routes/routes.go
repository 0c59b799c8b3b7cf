package routes

import (
	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"habithop/backend/config"
	"habithop/backend/controllers"
	"habithop/backend/middleware"
	"habithop/backend/services"
	"habithop/backend/session"
	"habithop/backend/utils"
)

type Dependencies struct {
	DB      *gorm.DB
	Cfg     *config.Config
	Habits  *services.HabitService
	Broker  *session.Broker
	Revoker session.Revoker
	Logger  *log.Logger
	Checks  map[string]controllers.Pinger
}

func SetupRoutes(app *fiber.App, d Dependencies) {
	healthController := controllers.NewHealthController(d.Checks, d.Logger)
	app.Get("/healthz", healthController.Health)

	// Auth routes
	authMiddleware := middleware.AuthMiddleware(d.Cfg, d.Revoker, d.Logger)
	authController := controllers.NewAuthController(d.DB, d.Cfg, d.Broker, d.Revoker, d.Logger)
	app.Post("/api/auth/register", authController.Register)
	app.Post("/api/auth/login", authController.Login)
	app.Post("/api/auth/logout", authMiddleware, authController.Logout)

	// User routes
	userController := controllers.NewUserController(d.DB, d.Cfg, d.Logger)
	app.Get("/api/user/profile", authMiddleware, userController.GetProfile)
	app.Put("/api/user/profile", authMiddleware, userController.UpdateProfile)
	app.Get("/api/user/activity", authMiddleware, userController.GetActivity)

	// Dashboard
	dashboardController := controllers.NewDashboardController(d.Habits, d.Logger)
	app.Get("/api/dashboard", authMiddleware, dashboardController.GetDashboard)

	// Habit routes
	habitController := controllers.NewHabitController(d.Habits, d.Logger)
	habits := app.Group("/api/habits", authMiddleware)
	habits.Get("/", habitController.ListHabits)
	habits.Post("/", habitController.CreateHabit)
	habits.Get("/archived", habitController.ListArchived)
	habits.Get("/:id", habitController.GetHabit)
	habits.Put("/:id", habitController.UpdateHabit)
	habits.Delete("/:id", habitController.DeleteHabit)
	habits.Post("/:id/restore", habitController.RestoreHabit)
	habits.Delete("/:id/purge", habitController.PurgeHabit)
	habits.Post("/:id/complete", habitController.CompleteHabit)
	habits.Get("/:id/stats", habitController.GetStats)
	habits.Get("/:id/logs", habitController.GetLogs)

	// Reminder routes
	habits.Get("/:id/reminders", habitController.ListReminders)
	habits.Post("/:id/reminders", habitController.CreateReminder)
	habits.Delete("/:id/reminders/:reminderId", habitController.DeleteReminder)
}

// NewApp builds the Fiber application with the shared middleware stack and
// every route registered.
func NewApp(d Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "habithop",
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: utils.ErrorHandler(d.Logger),
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.LoggingMiddleware(d.Logger))

	SetupRoutes(app, d)
	return app
}
