package main

import (
	"context"
	"log"

	"classline/config"
	"classline/internal/handler"
	"classline/internal/redis"
	"classline/internal/repository"
	"classline/internal/server"
	"classline/internal/services"
	"classline/pkg/database"
	"classline/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	logMode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		logMode = logger.ProductionMode
	}
	l := logger.New(logMode)
	logger.SetGlobalLogger(l)
	defer l.Logger.Sync()

	var (
		userRepo repository.UserRepository
		convRepo repository.ConversationRepository
		msgRepo  repository.MessageRepository
	)

	if cfg.DBDriver == "memory" {
		l.Infof("Running with in-memory storage (DB_DRIVER=memory)")
		userRepo = repository.NewMemoryUserRepository()
		convRepo = repository.NewMemoryConversationRepository()
		msgRepo = repository.NewMemoryMessageRepository()
	} else {
		if err := database.Connect(context.Background(), cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		userRepo = repository.NewUserRepository(database.Pool)
		convRepo = repository.NewConversationRepository(database.Pool)
		msgRepo = repository.NewMessageRepository(database.Pool)
	}

	var cache *redis.CacheStore
	var limiter *redis.RateLimiter
	if cfg.RedisEnabled {
		client := redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err := redis.Ping(context.Background(), client); err != nil {
			l.Errorf("Redis unreachable, continuing without cache/rate limits: %s", err)
		} else {
			cache = redis.NewCacheStore(client, redis.DefaultCacheConfig())
			limiter = redis.NewRateLimiter(client, redis.DefaultRateLimitConfig())
		}
	}

	authService := services.NewAuthService(userRepo, cfg)
	userService := services.NewUserService(userRepo, cache, l)
	conversationService := services.NewConversationService(convRepo)
	messageService := services.NewMessageService(userService, conversationService, msgRepo, convRepo)

	hub := server.NewHub(messageService)

	srv := server.New(cfg, l, hub)
	srv.SetupRoutes(&server.Handlers{
		Auth: handler.NewAuthHandler(authService),
		Chat: handler.NewChatHandler(messageService),
		User: handler.NewUserHandler(userService),
	}, authService, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
