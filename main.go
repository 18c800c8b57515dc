package main

import (
	"github.com/gin-gonic/gin"

	"signagecontrol/api"
	"signagecontrol/auth"
	"signagecontrol/config"
	"signagecontrol/logging"
	"signagecontrol/service"
	"signagecontrol/store"
)

func main() {
	cfg := config.Load()
	log := logging.New(logging.Config{Level: cfg.LogLevel, Debug: cfg.Debug})

	log.Info().Msg("starting signage control backend")

	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer db.Close()
	log.Info().Str("path", cfg.DatabasePath).Msg("database ready")

	displayStore := store.NewDisplayStore(db)

	registry := service.NewConnectionRegistry(service.RegistryConfig{
		MaxConnections:  cfg.MaxConnections,
		InactiveTimeout: cfg.InactiveTimeout,
	}, logging.Component(log, "registry"))

	hub := api.NewWebSocketHub(logging.Component(log, "hub"))
	go hub.Run()

	resolver := service.NewWindowResolver()
	dispatcher := service.NewDispatcher(registry, hub, displayStore, resolver, logging.Component(log, "dispatcher"))
	lifecycle := service.NewLifecycleHandler(registry, displayStore, hub, logging.Component(log, "lifecycle"))
	telemetry := service.NewTelemetryIngestor(registry, displayStore, logging.Component(log, "telemetry"))

	registry.SetEvictionHandler(lifecycle.HandleEviction)
	registry.StartSweeper(cfg.SweepInterval)
	defer registry.Stop()

	gate := auth.NewJWTGate([]byte(cfg.AuthSecret))

	router := gin.Default()
	handlers := &api.Handlers{
		Store:      displayStore,
		Registry:   registry,
		Dispatcher: dispatcher,
		Lifecycle:  lifecycle,
		Log:        logging.Component(log, "http"),
	}
	ws := api.WebSocketHandlers{
		Registry:  registry,
		Lifecycle: lifecycle,
		Telemetry: telemetry,
		Gate:      gate,
	}
	api.SetupRoutes(router, hub, handlers, ws, logging.Component(log, "ws"))

	log.Info().Str("addr", cfg.Addr).Msg("server listening")
	if err := router.Run(cfg.Addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
