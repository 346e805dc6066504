package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"shop-svc/cache"
	"shop-svc/config"
	"shop-svc/database"
	"shop-svc/handlers"
	"shop-svc/kafka"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/repository"
	"shop-svc/service"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// productStore is what the HTTP layer and the checkout core need from the catalog.
type productStore interface {
	service.Catalog
	service.StockLedger
	handlers.ProductStore
}

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.LoadConfig()

	var (
		db          *sql.DB
		redisClient *redis.Client
		products    productStore
		orders      service.OrderStore
	)

	switch cfg.StorageBackend {
	case config.StorageBackendMemory:
		logger.Warn("Using in-memory storage; data is lost on restart")
		products = repository.NewMemoryProductStore(demoCatalog()...)
		orders = repository.NewMemoryOrderStore()
	case config.StorageBackendPostgres:
		db, err = database.InitDB(cfg.Database, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}

		if cfg.Redis.Enabled {
			redisClient, err = cache.InitRedis(cfg.Redis, logger)
			if err != nil {
				logger.Warn("Redis unavailable, product cache disabled", zap.Error(err))
			}
		}

		products = repository.NewProductRepository(db, cache.NewProductCache(redisClient, cfg.ProductCacheTTL), logger)
		orders = repository.NewOrderRepository(db)
	default:
		logger.Fatal("Unknown storage backend", zap.String("backend", cfg.StorageBackend))
	}

	// Initialize OpenTelemetry
	shutdownTracing := func() {}
	if cfg.TracingEnabled {
		shutdownTracing, err = middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint, logger)
		if err != nil {
			logger.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	// Initialize Kafka
	var (
		producer     sarama.SyncProducer
		consumer     sarama.Consumer
		events       service.EventPublisher
		consumerDone = make(chan struct{})
	)
	if cfg.Kafka.Enabled {
		producer, err = kafka.InitProducer(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
		}
		events = kafka.NewPublisher(producer, cfg.Kafka.OrderTopic, logger)

		consumer, err = kafka.InitConsumer(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
		}
	}

	checkout := service.NewCheckoutService(products, products, orders, events, logger)
	lifecycle := service.NewLifecycleService(orders, events, logger, service.WithUpdateRetries(cfg.OrderUpdateRetries))

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	if consumer != nil {
		paymentConsumer := kafka.NewPaymentConsumer(consumer, cfg.Kafka.PaymentTopic, lifecycle, logger)
		go func() {
			defer close(consumerDone)
			if err := paymentConsumer.Start(consumerCtx); err != nil {
				logger.Error("Kafka consumer error", zap.Error(err))
			}
		}()
	} else {
		close(consumerDone)
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.NewHealthHandler(cfg.ServiceName, db).HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	handlers.RegisterRoutes(router,
		[]byte(cfg.JWTSecret),
		handlers.NewOrderHandler(checkout, lifecycle, logger),
		handlers.NewProductHandler(products, logger),
	)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Shop Service started",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("storage", cfg.StorageBackend),
		zap.Bool("kafka", cfg.Kafka.Enabled),
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("Server stopped gracefully")
	}

	stopConsumer()
	<-consumerDone
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("Failed to close Kafka producer", zap.Error(err))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis cache", zap.Error(err))
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", zap.Error(err))
		} else {
			logger.Info("Database connection closed gracefully")
		}
	}

	shutdownTracing()
	logger.Info("Shop Service exited gracefully")
}

func demoCatalog() []models.Product {
	return []models.Product{
		{ID: 1, Name: "Ceramic Mug", Price: decimal.RequireFromString("10.00"), Stock: 25, Images: []string{"/images/mug.jpg"}},
		{ID: 2, Name: "Desk Lamp", Price: decimal.RequireFromString("34.50"), Stock: 8, Images: []string{"/images/lamp.jpg"}},
		{ID: 3, Name: "Notebook", Price: decimal.RequireFromString("4.99"), Stock: 100},
	}
}
