package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tallyboard/tallyboard/internal/config"
	"github.com/tallyboard/tallyboard/internal/db"
	"github.com/tallyboard/tallyboard/internal/logging"
	"github.com/tallyboard/tallyboard/internal/service"
	"github.com/tallyboard/tallyboard/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatal("Failed to init logger:", err)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	eventStore := store.NewEventStore(database)
	teamStore := store.NewTeamStore(database)
	scoreStore := store.NewScoreStore(database)
	snapshotStore := store.NewSnapshotStore(database)

	deps := &routerDeps{
		events:   eventStore,
		eventSvc: service.NewEventService(database, eventStore, teamStore, logger),
		scoreSvc: service.NewScoreService(database, eventStore, teamStore, scoreStore, logger),
		recapSvc: service.NewRecapService(eventStore, teamStore, scoreStore, snapshotStore, logger),
		log:      logger,
	}

	router := newRouter(deps)

	logger.Info("server starting", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
