package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/api"
	"github.com/tradeloop/notification-service/internal/config"
	"github.com/tradeloop/notification-service/internal/domain"
	"github.com/tradeloop/notification-service/internal/fcm"
	"github.com/tradeloop/notification-service/internal/queue"
	"github.com/tradeloop/notification-service/internal/realtime"
	"github.com/tradeloop/notification-service/internal/repository"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting notification service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	ctx := context.Background()
	dbClient, err := initMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer dbClient.Disconnect(ctx)

	logger.Info("Connected to MongoDB")

	repo := repository.NewMongoRepository(dbClient.Database(cfg.Mongo.Database))

	// Firebase is optional; without credentials the mirror push is disabled.
	fcmClient, err := fcm.NewClient(ctx, logger, cfg.FCM.CredentialsFile)
	if err != nil {
		logger.Warn("Failed to initialize Firebase client - mobile mirror pushes will be disabled", zap.Error(err))
		fcmClient = nil
	} else {
		logger.Info("Firebase client initialized")
	}

	hub := realtime.NewHub(logger)
	go hub.Run()

	unread := domain.NewUnreadService(repo)
	service := domain.NewNotificationService(repo, repo, unread, hub, fcmClient, logger)
	hub.SetCoordinator(service)

	// Queue consumers
	conn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()

	consumer, err := queue.NewConsumer(conn, service, logger)
	if err != nil {
		logger.Fatal("Failed to set up queue consumer", zap.Error(err))
	}
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal("Failed to start queue workers", zap.Error(err))
	}
	defer consumer.Close()

	logger.Info("Queue workers running")

	// HTTP surface
	notificationHandler := api.NewNotificationHandler(service, logger)
	wsHandler := api.NewWSHandler(hub, logger)
	healthHandler := api.NewHealthHandler(dbClient)

	router := api.NewRouter(notificationHandler, wsHandler, healthHandler, cfg.Server.AllowedOrigins, logger)
	r := router.Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func initLogger() (*zap.Logger, error) {
	if os.Getenv("ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	return client, nil
}
