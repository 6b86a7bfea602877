package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/iierror404/messenger-backend/internal/config"
	"github.com/iierror404/messenger-backend/internal/events"
	"github.com/iierror404/messenger-backend/internal/handlers"
	"github.com/iierror404/messenger-backend/internal/ingest"
	"github.com/iierror404/messenger-backend/internal/logger"
	"github.com/iierror404/messenger-backend/internal/middleware"
	"github.com/iierror404/messenger-backend/internal/presence"
	"github.com/iierror404/messenger-backend/internal/repository"
	"github.com/iierror404/messenger-backend/internal/service"
	"github.com/iierror404/messenger-backend/internal/storage"
	"github.com/iierror404/messenger-backend/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.App.JWTSecret == "" {
		log.Fatal("APP_JWT_SECRET is required")
	}

	zlog, err := logger.New(logger.Config{Development: cfg.App.Env == "development"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	mongoClient, err := storage.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo connect", "err", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.Mongo.Database)

	convRepo := repository.NewMongoConversationRepository(db.Collection("conversations"))
	msgRepo := repository.NewMongoMessageRepository(db.Collection("messages"))
	userRepo := repository.NewMongoUserRepository(db.Collection("users"))
	if err := convRepo.EnsureIndexes(ctx); err != nil {
		zlog.Fatalw("conversation indexes", "err", err)
	}
	if err := msgRepo.EnsureIndexes(ctx); err != nil {
		zlog.Fatalw("message indexes", "err", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent, zlog)
		defer kp.Close()
		publisher = kp
	}

	chatSvc := service.NewChatService(convRepo, msgRepo, userRepo, zlog)
	hub := ws.NewHub()
	pipeline := ingest.NewPipeline(convRepo, msgRepo, chatSvc, hub, publisher, zlog)
	defer pipeline.Close()

	pres := presence.NewStore(redisClient, cfg.Redis.Prefix, 24*time.Hour)
	wsHandler := ws.NewHandler(hub, chatSvc, pipeline, pres, cfg.App.JWTSecret,
		cfg.PingInterval, cfg.WriteDeadline, cfg.WS.MaxMessageSizeBytes, zlog)

	limiter := middleware.NewRateLimiter(redisClient, cfg.Redis.Prefix, cfg.RateLimit.Requests, cfg.RateLimitWindow)
	chatHandler := handlers.NewChatHandler(chatSvc, zlog)
	app := handlers.NewServer(chatHandler, wsHandler, cfg.App.JWTSecret, limiter, zlog)

	errs := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.App.Port)
		zlog.Infow("starting server", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		zlog.Fatalw("server error", "err", e)
	case s := <-sig:
		zlog.Infow("signal received", "signal", s.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zlog.Warnw("shutdown", "err", err)
	}
	zlog.Info("shut down")
}
