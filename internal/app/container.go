// Package app assembles the transfer service object graph shared by the
// API, the worker and the sweep command.
package app

import (
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/transfer-service/internal/application"
	"github.com/wms-platform/transfer-service/internal/infrastructure/costledger"
	mongoRepo "github.com/wms-platform/transfer-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/transfer-service/internal/infrastructure/notify"
	"github.com/wms-platform/transfer-service/pkg/cloudevents"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/metrics"
	outboxMongo "github.com/wms-platform/transfer-service/pkg/outbox/mongodb"
	"github.com/wms-platform/transfer-service/pkg/resilience"
)

// Options holds what the container needs from the command
type Options struct {
	Database      *mongo.Database
	CostLedgerURL string
	Settings      application.Settings
	Metrics       *metrics.Metrics
	Logger        *logging.Logger
	Tracer        trace.Tracer
}

// Container holds the wired repositories and services
type Container struct {
	Orders      *mongoRepo.OrderRepository
	Inventory   *mongoRepo.InventoryRepository
	Stations    *mongoRepo.StationRepository
	Serials     *mongoRepo.SerialRepository
	Assets      *mongoRepo.AssetRepository
	Variances   *mongoRepo.VarianceRepository
	Movements   *mongoRepo.MovementRepository
	Outbox      *outboxMongo.OutboxRepository
	CostLedger  *costledger.Client
	Ledger      *application.Ledger
	Service     *application.OrderApplicationService
	Runner      *application.JobRunner
	InlineQueue *application.InlineQueue
}

// New wires the object graph. A nil queue selects the inline queue, which
// runs jobs in the caller.
func New(opts Options, queue application.JobQueue) *Container {
	db := opts.Database
	logger := opts.Logger
	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceTransfer)

	c := &Container{
		Orders:    mongoRepo.NewOrderRepository(db, eventFactory),
		Inventory: mongoRepo.NewInventoryRepository(db),
		Stations:  mongoRepo.NewStationRepository(db),
		Serials:   mongoRepo.NewSerialRepository(db),
		Assets:    mongoRepo.NewAssetRepository(db),
		Variances: mongoRepo.NewVarianceRepository(db),
		Movements: mongoRepo.NewMovementRepository(db),
	}
	c.Outbox = c.Orders.GetOutboxRepository()

	breaker := resilience.DefaultCircuitBreakerConfig("cost-ledger")
	if opts.Metrics != nil {
		breaker.Observer = opts.Metrics
	}
	c.CostLedger = costledger.NewClient(costledger.Config{
		BaseURL:      opts.CostLedgerURL,
		SiteCurrency: opts.Settings.Currency,
		Breaker:      breaker,
	}, logger)

	bus := notify.NewBus(c.Outbox, eventFactory, logger)
	stock := notify.NewStockNotifier(c.Outbox, eventFactory, logger)

	c.Ledger = application.NewLedger(c.Inventory, c.Movements, stock, opts.Metrics, logger)
	serials := application.NewSerialTracker(c.Stations, c.Serials, c.Assets, c.Inventory, c.Ledger, logger)
	costs := application.NewCostCalculator(c.CostLedger, c.Inventory, opts.Settings, logger)

	if queue == nil {
		c.InlineQueue = application.NewInlineQueue(logger)
		queue = c.InlineQueue
	}

	c.Service = application.NewOrderApplicationService(
		c.Orders,
		c.Variances,
		c.Stations,
		c.Ledger,
		costs,
		queue,
		opts.Settings,
		opts.Metrics,
		logger,
	)

	c.Runner = application.NewJobRunner(application.JobRunnerConfig{
		Orders:     c.Orders,
		Variances:  c.Variances,
		Movements:  c.Movements,
		Stations:   c.Stations,
		Ledger:     c.Ledger,
		Serials:    serials,
		Costs:      costs,
		CostLedger: c.CostLedger,
		Bus:        bus,
		Queue:      queue,
		Settings:   opts.Settings,
		Metrics:    opts.Metrics,
		Logger:     logger,
		Tracer:     opts.Tracer,
	})

	if c.InlineQueue != nil {
		c.InlineQueue.Bind(c.Runner)
	}
	return c
}
