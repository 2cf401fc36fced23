package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Revanth264/storefront/internal/gateway"
	"github.com/Revanth264/storefront/internal/repository"
	"github.com/Revanth264/storefront/internal/service"
	transporthttp "github.com/Revanth264/storefront/internal/transport/http"
	"github.com/Revanth264/storefront/internal/transport/http/handler"
	transportkafka "github.com/Revanth264/storefront/internal/transport/kafka"
	"github.com/Revanth264/storefront/internal/worker"
	"github.com/Revanth264/storefront/pkg/config"
	"github.com/Revanth264/storefront/pkg/db"
	"github.com/Revanth264/storefront/pkg/kafka"
	outboxRepository "github.com/Revanth264/storefront/pkg/outbox/repository"
	outboxWorker "github.com/Revanth264/storefront/pkg/outbox/worker"
	"github.com/Revanth264/storefront/pkg/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := telemetry.InitTracer(ctx, "storefront")
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	logger, err := config.NewLogger(cfg.Log, cfg.Env)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("failed to sync logger: %v", err)
		}
	}()

	pool, err := db.NewPostgresPool(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	inventoryRepo := repository.NewInventoryRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	mirrorRepo := repository.NewMirrorRepository(redisClient, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	gatewayClient := gateway.NewClient(cfg.Gateway, logger)

	inventoryService := service.NewInventoryService(pool, inventoryRepo, orderRepo, logger)
	checkoutService := service.NewCheckoutService(
		pool,
		orderRepo,
		mirrorRepo,
		outboxRepo,
		inventoryService,
		gatewayClient,
		cfg.Gateway,
		cfg.Kafka.OrderTopic,
		logger,
	)
	queryService := service.NewOrderQueryService(mirrorRepo, logger)

	outboxProcessor := outboxWorker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	sweeper := worker.NewExpirySweeper(orderRepo, checkoutService, cfg.Checkout, logger)
	go sweeper.Start(ctx)

	mirrorConsumer := transportkafka.NewConsumer(
		orderRepo,
		mirrorRepo,
		cfg.Kafka.Brokers,
		cfg.Kafka.MirrorGroup,
		cfg.Kafka.OrderTopic,
		logger,
	)
	go mirrorConsumer.Start(ctx)

	app := fiber.New(fiber.Config{
		ReadTimeout: cfg.HTTP.Timeout,
	})

	app.Use(otelfiber.Middleware())

	handlers := &transporthttp.Handlers{
		Checkout: handler.NewCheckoutHandler(checkoutService, logger),
		Webhook:  handler.NewWebhookHandler(checkoutService, logger),
		Orders:   handler.NewOrdersHandler(queryService, logger),
	}

	transporthttp.RegisterRoutes(app, handlers)

	go func() {
		log.Println("HTTP service listening on: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	logger.Info("Storefront service started!")

	<-ctx.Done()

	log.Println("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP app: %v\n", err)
	}

	if err := kafkaProducer.Close(); err != nil {
		log.Printf("Error closing kafka producer: %v\n", err)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing redis client: %v\n", err)
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down telemetry: %v\n", err)
	}

	pool.Close()
}
