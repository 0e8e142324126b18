package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/wms-platform/transfer-service/internal/api"
	"github.com/wms-platform/transfer-service/internal/app"
	"github.com/wms-platform/transfer-service/internal/application"
	"github.com/wms-platform/transfer-service/internal/config"
	temporalQueue "github.com/wms-platform/transfer-service/internal/infrastructure/temporal"
	"github.com/wms-platform/transfer-service/pkg/kafka"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/metrics"
	"github.com/wms-platform/transfer-service/pkg/middleware"
	"github.com/wms-platform/transfer-service/pkg/mongodb"
	"github.com/wms-platform/transfer-service/pkg/outbox"
	"github.com/wms-platform/transfer-service/pkg/temporal"
	"github.com/wms-platform/transfer-service/pkg/tracing"
)

const serviceName = "transfer-service"

func main() {
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting transfer-service API")

	cfg := loadConfig()
	ctx := context.Background()

	settings, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("Failed to load site settings")
		os.Exit(1)
	}
	logger.Info("Site settings loaded", "domain", settings.Domain, "currency", settings.Currency, "sandbox", settings.Sandbox)

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		// Continue without tracing
		logger.WithError(err).Error("Failed to initialize tracing")
		tracingConfig.Enabled = false
		tracerProvider, _ = tracing.Initialize(ctx, tracingConfig)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown tracer")
		}
	}()

	m := metrics.New(metrics.DefaultConfig(serviceName))
	cfg.MongoDB.Monitor = mongodb.NewCommandMonitor(m)

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	kafkaProducer := kafka.NewProducer(cfg.Kafka)
	instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)
	defer instrumentedProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)

	readiness := map[string]middleware.Check{"mongodb": mongoClient.HealthCheck}

	// Sandbox runs jobs inline; otherwise each job is a workflow
	var queue application.JobQueue
	if !settings.Sandbox {
		temporalClient, err := temporal.NewClient(ctx, cfg.Temporal)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Temporal")
			os.Exit(1)
		}
		defer temporalClient.Close()
		logger.Info("Connected to Temporal", "namespace", cfg.Temporal.Namespace)

		queue = temporalQueue.NewQueue(temporalClient, temporal.TaskQueues.Transfer, logger)
		readiness["temporal"] = temporalClient.HealthCheck
	}

	container := app.New(app.Options{
		Database:      mongoClient.Database(),
		CostLedgerURL: cfg.CostLedgerURL,
		Settings:      settings,
		Metrics:       m,
		Logger:        logger,
		Tracer:        tracerProvider.Tracer(),
	}, queue)

	outboxPublisher := outbox.NewPublisher(
		container.Outbox,
		instrumentedProducer,
		logger,
		m,
		&outbox.PublisherConfig{
			PollInterval: 1 * time.Second,
			BatchSize:    100,
		},
	)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middlewareConfig.Metrics = m
	middlewareConfig.EnableTracing = tracingConfig.Enabled
	middlewareConfig.CORSOrigins = cfg.CORSOrigins
	middleware.Setup(router, middlewareConfig)

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readiness))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	v1 := router.Group("/api/v1")
	api.NewHandler(container.Service, logger).RegisterRoutes(v1)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr    string
	CostLedgerURL string
	CORSOrigins   []string
	MongoDB       *mongodb.Config
	Kafka         *kafka.Config
	Temporal      *temporal.Config
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8030"),
		CostLedgerURL: getEnv("COST_LEDGER_URL", "http://localhost:8040"),
		CORSOrigins:   middleware.ParseOrigins(getEnv("CORS_ALLOWED_ORIGINS", "")),
		MongoDB: &mongodb.Config{
			AppName:        serviceName,
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "transfers_db"),
			ReplicaSet:     getEnv("MONGODB_REPLICA_SET", ""),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:      kafka.ParseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092")),
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
		Temporal: &temporal.Config{
			HostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			Identity:  serviceName,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
