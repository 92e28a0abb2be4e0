package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geminichat-backend/internal/config"
	"geminichat-backend/internal/database"
	"geminichat-backend/internal/handlers"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
	"geminichat-backend/internal/repository"
	"geminichat-backend/internal/router"
	"geminichat-backend/internal/services"
	"geminichat-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting geminichat backend", "env", cfg.Env)

	ctx := context.Background()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("PostgreSQL connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("PostgreSQL connected")

	// ──── Step 3: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("database migration failed", "error", err)
	}

	// ──── Step 4: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("Redis connected")

	// ──── Step 5: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModels, cfg.GeminiTemperature, log)
	if err != nil {
		log.Fatal("Gemini client initialization failed", "error", err)
	}
	defer geminiService.Close()
	log.Info("Gemini client initialized", "models", cfg.GeminiModels)

	// ──── Initialize Repositories & Services ────
	userRepo := repository.NewUserRepo(pool)
	conversationRepo := repository.NewConversationRepo(pool)
	tokenStore := repository.NewTokenStore(redisClients.Tokens)

	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService, err := services.NewAuthService(userRepo, tokenStore, jwtAuth, cfg.BcryptCost, log)
	if err != nil {
		log.Fatal("auth service initialization failed", "error", err)
	}
	publisher := websocket.NewPublisher(redisClients.Tokens)
	chatService := services.NewChatService(conversationRepo, geminiService, publisher, log)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.CORSOrigins, log)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		handlers.NewAuthHandler(authService, log),
		handlers.NewChatHandler(chatService, log),
		handlers.NewStatusHandler(geminiService, log),
		wsHub.HandleWebSocket,
		cfg.CORSOrigins,
		log,
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Sends wait on the model twice for a first message.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan

		log.Info("shutting down", "signal", sig.String())
		wsHub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	}()

	log.Info("geminichat backend ready",
		"api", fmt.Sprintf("http://localhost:%s/api", cfg.Port),
		"ws", fmt.Sprintf("ws://localhost:%s/api/ws", cfg.Port),
	)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", "error", err)
	}
	<-shutdownDone
	log.Info("server stopped")
}
