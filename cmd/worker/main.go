package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/transfer-service/internal/activities"
	"github.com/wms-platform/transfer-service/internal/app"
	"github.com/wms-platform/transfer-service/internal/config"
	temporalQueue "github.com/wms-platform/transfer-service/internal/infrastructure/temporal"
	"github.com/wms-platform/transfer-service/internal/workflows"
	"github.com/wms-platform/transfer-service/pkg/kafka"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/metrics"
	"github.com/wms-platform/transfer-service/pkg/mongodb"
	"github.com/wms-platform/transfer-service/pkg/outbox"
	"github.com/wms-platform/transfer-service/pkg/temporal"
	"github.com/wms-platform/transfer-service/pkg/tracing"
)

const serviceName = "transfer-worker"

func main() {
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting transfer-service worker")

	cfg := loadConfig()
	ctx := context.Background()

	settings, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("Failed to load site settings")
		os.Exit(1)
	}

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		tracingConfig.Enabled = false
		tracerProvider, _ = tracing.Initialize(ctx, tracingConfig)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
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

	temporalClient, err := temporal.NewClient(ctx, cfg.Temporal)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", cfg.Temporal.HostPort)

	// Jobs chained from a job go back through Temporal
	queue := temporalQueue.NewQueue(temporalClient, temporal.TaskQueues.Transfer, logger)

	container := app.New(app.Options{
		Database:      mongoClient.Database(),
		CostLedgerURL: cfg.CostLedgerURL,
		Settings:      settings,
		Metrics:       m,
		Logger:        logger,
		Tracer:        tracerProvider.Tracer(),
	}, queue)

	if cfg.OutboxRelay {
		kafkaProducer := kafka.NewProducer(cfg.Kafka)
		instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)
		defer instrumentedProducer.Close()

		outboxPublisher := outbox.NewPublisher(container.Outbox, instrumentedProducer, logger, m, outbox.DefaultPublisherConfig())
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer outboxPublisher.Stop()
		logger.Info("Outbox publisher started", "brokers", cfg.Kafka.Brokers)
	}

	jobActivities := activities.NewJobActivities(container.Runner)
	sweepActivities := activities.NewSweepActivities(container.Service, container.Movements)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Transfer))

	w.RegisterWorkflowWithOptions(workflows.OrderJobWorkflow, workflow.RegisterOptions{Name: temporal.WorkflowNames.OrderJob})
	w.RegisterWorkflowWithOptions(workflows.TimeoutSweepWorkflow, workflow.RegisterOptions{Name: temporal.WorkflowNames.Sweep})
	logger.Info("Registered workflows")

	for _, names := range []map[string]interface{}{jobActivities.Names(), sweepActivities.Names()} {
		for name, fn := range names {
			w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
		}
	}
	logger.Info("Registered activities")

	if err := temporalClient.EnsureCronWorkflow(ctx,
		workflows.SweepWorkflowID,
		temporal.TaskQueues.Transfer,
		cfg.SweepSchedule,
		temporal.WorkflowNames.Sweep,
	); err != nil {
		logger.WithError(err).Error("Failed to schedule timeout sweep")
	} else {
		logger.Info("Timeout sweep scheduled", "schedule", cfg.SweepSchedule)
	}

	go func() {
		if err := w.Run(nil); err != nil {
			logger.WithError(err).Error("Worker failed")
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Transfer)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}

// Config holds worker configuration
type Config struct {
	CostLedgerURL string
	SweepSchedule string
	OutboxRelay   bool
	MongoDB       *mongodb.Config
	Kafka         *kafka.Config
	Temporal      *temporal.Config
}

func loadConfig() *Config {
	return &Config{
		CostLedgerURL: getEnv("COST_LEDGER_URL", "http://localhost:8040"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", workflows.SweepSchedule),
		OutboxRelay:   getEnv("OUTBOX_RELAY_ENABLED", "false") == "true",
		MongoDB: &mongodb.Config{
			AppName:        serviceName,
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "transfers_db"),
			ReplicaSet:     getEnv("MONGODB_REPLICA_SET", ""),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    50,
			MinPoolSize:    5,
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
