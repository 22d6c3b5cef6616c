package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/quricedev/alice-ai/internal/bot"
	"github.com/quricedev/alice-ai/internal/config"
	"github.com/quricedev/alice-ai/internal/middleware"
	"github.com/quricedev/alice-ai/internal/repository"
	"github.com/quricedev/alice-ai/internal/server"
	"github.com/quricedev/alice-ai/internal/service"
	"github.com/quricedev/alice-ai/internal/storage"
	"github.com/quricedev/alice-ai/internal/upstream"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	postgres, err := storage.NewPostgres(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Connected to postgres successfully")

	redis, err := storage.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	log.Println("Connected to redis successfully")

	// Shared collaborators, constructed once and passed explicitly.
	keyRepo := repository.NewKeyRepository(postgres)
	keyService := service.NewKeyService(keyRepo, redis)

	completer := upstream.NewClient(cfg.Upstream.URL, cfg.Upstream.APIKey, cfg.Server.BaseURL, cfg.Upstream.Timeout)

	aliceBot := bot.New(cfg.Telegram.Token, cfg.Telegram.AdminID, cfg.Server.BaseURL, keyService, completer)

	middleware.InitRequestLogger(repository.NewRequestLogRepository(postgres), 1000)

	srv := server.New(cfg, postgres, redis, keyService, completer, aliceBot)

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
