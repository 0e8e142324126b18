package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/wms-platform/transfer-service/internal/app"
	"github.com/wms-platform/transfer-service/internal/application"
	"github.com/wms-platform/transfer-service/internal/config"
	"github.com/wms-platform/transfer-service/internal/workflows"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/metrics"
	"github.com/wms-platform/transfer-service/pkg/mongodb"
)

// One-shot maintenance run: times out idle orders and reports movement log
// entries left pending by a crashed job.

const serviceName = "transfer-sweep"

var (
	dryRun   = flag.Bool("dry-run", false, "Only report stuck movements, do not time out orders")
	stuckAge = flag.Duration("stuck-age", workflows.StuckMovementAge, "Age after which a pending movement is reported")
	timeout  = flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()
	os.Exit(run())
}

func run() int {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	settings, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("Failed to load site settings")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", mongoConfig.URI)
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "transfers_db")
	mongoConfig.ReplicaSet = getEnv("MONGODB_REPLICA_SET", "")
	mongoConfig.MinPoolSize = 1
	mongoConfig.AppName = serviceName

	mongoClient, err := mongodb.NewClient(ctx, mongoConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return 1
	}
	defer mongoClient.Close(context.Background())

	container := app.New(app.Options{
		Database:      mongoClient.Database(),
		CostLedgerURL: getEnv("COST_LEDGER_URL", "http://localhost:8040"),
		Settings:      settings,
		Metrics:       metrics.New(metrics.DefaultConfig(serviceName)),
		Logger:        logger,
		Tracer:        otel.Tracer(serviceName),
	}, nil)

	exitCode := 0

	if !*dryRun {
		result, err := container.Service.Sweep(ctx, application.SweepCommand{})
		if err != nil {
			logger.WithError(err).Error("Timeout sweep failed")
			exitCode = 1
		} else {
			logger.Info("Timeout sweep done", "timedOut", result.TimedOut, "before", result.Before)
		}
	}

	olderThan := time.Now().UTC().Add(-*stuckAge)
	stuck, err := container.Movements.FindStuck(ctx, olderThan)
	if err != nil {
		logger.WithError(err).Error("Failed to list stuck movements")
		return 1
	}
	for _, e := range stuck {
		logger.Warn("Stuck movement",
			"movementId", e.ID.Hex(),
			"orderId", e.Order,
			"job", e.Job,
			"station", e.Station,
			"sku", e.SKU,
			"createdAt", e.CreatedAt,
		)
	}
	logger.Info("Stuck movement report", "count", len(stuck), "olderThan", olderThan)

	if len(stuck) > 0 && exitCode == 0 {
		exitCode = 2
	}
	return exitCode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
