package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/adapters/gemini"
	mongodb "github.com/grovesolutions/sapling-live/adapters/mongo"
	"github.com/grovesolutions/sapling-live/internal/api"
	"github.com/grovesolutions/sapling-live/internal/auth"
	"github.com/grovesolutions/sapling-live/internal/config"
	"github.com/grovesolutions/sapling-live/internal/websocket"
	"github.com/grovesolutions/sapling-live/usecase"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize adapters
	mongoClient, err := mongodb.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoClient.Close(ctx)
	}()

	tokens, err := gemini.NewTokenService(cfg.GeminiAPIKey, cfg.LiveModel, cfg.TokenTTL, logger)
	if err != nil {
		logger.Fatal("Failed to create token service", zap.Error(err))
	}
	dialer := gemini.NewDialer(logger)

	// Initialize usecase services
	transcripts := usecase.NewTranscriptService(
		mongodb.NewTranscriptRepository(mongoClient.Database), logger)

	// Initialize WebSocket voice gateway
	hub := websocket.NewHub(tokens, dialer, transcripts, logger)
	go hub.Run()

	cleanup := websocket.NewCleanupService(hub, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Deps{
		Hub:          hub,
		Tokens:       tokens,
		Transcripts:  transcripts,
		Auth:         auth.NewAuthenticator(cfg.JWTSecret),
		ClientSecret: cfg.ClientSecret,
		Logger:       logger,
	})

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
