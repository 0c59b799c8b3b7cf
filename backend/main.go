package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"habithop/backend/config"
	"habithop/backend/controllers"
	"habithop/backend/routes"
	"habithop/backend/services"
	"habithop/backend/session"
	"habithop/backend/store"
	"habithop/backend/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config", "error", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(utils.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		log.Fatal("Error initializing logger", "error", err)
	}

	// Initialize database
	db, err := utils.InitDB(cfg)
	if err != nil {
		logger.Fatal("Error initializing database", "driver", cfg.DBDriver, "error", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()

	checks := map[string]controllers.Pinger{"sql": controllers.SQLPinger{DB: db}}

	var habitStore store.HabitStore
	switch cfg.HabitStore {
	case "mongo":
		mongoStore, err := store.ConnectMongo(startCtx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("Error connecting to mongo", "error", err)
		}
		checks["mongo"] = mongoStore
		habitStore = mongoStore
	default:
		habitStore = store.NewSQLStore(db, logger)
	}

	var revoker session.Revoker = session.NewMemoryRevoker()
	if cfg.RedisURL != "" {
		client, err := session.ConnectRedis(startCtx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("Error connecting to redis", "error", err)
		}
		defer client.Close()
		redisRevoker := session.NewRedisRevoker(client)
		checks["redis"] = redisRevoker
		revoker = redisRevoker
	}

	// Session events are written to the login history
	broker := session.NewBroker()
	events, unsubscribe := broker.Subscribe(64)
	recorderDone := make(chan struct{})
	go services.RecordLoginHistory(db, events, logger, recorderDone)

	habits := services.NewHabitService(habitStore, cfg.Location(), cfg.StoreTimeout, logger)

	app := routes.NewApp(routes.Dependencies{
		DB:      db,
		Cfg:     cfg,
		Habits:  habits,
		Broker:  broker,
		Revoker: revoker,
		Logger:  logger,
		Checks:  checks,
	})

	go func() {
		logger.Info("server starting",
			"port", cfg.ServerPort,
			"store", cfg.HabitStore,
			"db", cfg.DBDriver,
			"timezone", cfg.Location().String(),
		)
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logger.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", "error", err)
	}

	unsubscribe()
	<-recorderDone
	broker.Close()

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelClose()
	if err := habitStore.Close(closeCtx); err != nil {
		logger.Warn("closing habit store", "error", err)
	}
	if cfg.HabitStore == "mongo" {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
