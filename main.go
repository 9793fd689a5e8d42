package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ideaforge/bidtheater/api"
	"github.com/ideaforge/bidtheater/config"
	"github.com/ideaforge/bidtheater/engine"
	"github.com/ideaforge/bidtheater/hub"
	"github.com/ideaforge/bidtheater/logger"
	"github.com/ideaforge/bidtheater/persona"
	"github.com/ideaforge/bidtheater/store"
	"github.com/ideaforge/bidtheater/strategy"
	"github.com/ideaforge/bidtheater/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting bidtheater on port %d", cfg.Server.HTTPPort)

	db, err := store.NewSQLiteStore(cfg.Storage.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize store: %v", err)
	}
	defer db.Close()

	catalog, err := persona.Load(cfg.Personas.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load persona catalog: %v", err)
	}
	logger.Info("loaded %d personas", catalog.Len())

	observerHub := hub.NewHub()
	pricing := strategy.NewEngine(cfg.StrategyEngineConfig())
	registry := engine.NewRegistry(cfg.EngineConfig(), cfg.BufferEngineConfig(),
		pricing, observerHub.Deliver, db)

	h := api.NewHandler(registry, catalog, db, observerHub)
	wsServer := ws.NewServer(cfg.Server, observerHub, registry)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)
	e.GET("/ws", wsServer.HandleWebSocket)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed: %v", err)
		}
	}()
	logger.Info("api started on port %d", cfg.Server.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Stop the sessions first so no broadcast lands on a closed server.
	registry.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown: %v", err)
	}
}
