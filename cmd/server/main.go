package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/converse-live/backend/api/handlers"
	"github.com/converse-live/backend/internal/config"
	"github.com/converse-live/backend/internal/db"
	"github.com/converse-live/backend/internal/llm"
	"github.com/converse-live/backend/internal/logger"
	"github.com/converse-live/backend/internal/relay"
	"github.com/converse-live/backend/internal/repository"
	"github.com/converse-live/backend/internal/session"
	"github.com/converse-live/backend/internal/ws"
)

func main() {
	cfg := config.Load()

	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	zlog := logger.New(cfg.LogFilePath, cfg.Environment == "production")
	defer zlog.Sync()

	// Initialize database
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.CloseDB()

	// Initialize repositories
	sessionRepo := repository.NewSessionRepository(database)
	transcriptRepo := repository.NewTranscriptRepository(database)

	// Initialize session manager
	sessionManager := session.NewManager(sessionRepo, transcriptRepo, session.Config{
		IdleTTL:       cfg.SessionIdleTTL,
		SweepInterval: cfg.SessionSweep,
		TranscriptDir: cfg.TranscriptDir,
	}, zlog)
	defer sessionManager.Close()

	// Initialize the language model provider and conversation relay
	provider := llm.NewGroqClient(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GroqModel)
	registry := ws.NewRegistry(zlog)
	relayService := relay.NewService(sessionManager, provider, registry, zlog)

	// Initialize WebSocket service
	wsService := ws.NewService(registry, relayService, zlog)
	defer wsService.Close()

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionManager)
	wsHandler := handlers.NewWebSocketHandler(wsService.Handler())

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.GET("/health", sessionHandler.Health)

	api := r.Group("/api")
	{
		sessionHandler.RegisterRoutes(api)
	}

	wsHandler.RegisterRoutes(r)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		zlog.Info("shutting down server")
		wsService.Close()
		sessionManager.Close()
		db.CloseDB()
		zlog.Sync()
		os.Exit(0)
	}()

	zlog.Info("starting server", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}

// corsMiddleware allows the configured frontend origins. "*" allows any.
func corsMiddleware(origins string) gin.HandlerFunc {
	allowed := strings.Split(origins, ",")
	for i := range allowed {
		allowed[i] = strings.TrimSpace(allowed[i])
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, a := range allowed {
			if a == "*" || a == origin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", a)
				break
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
