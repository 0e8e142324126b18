package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/cloudevents"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/metrics"
	"github.com/wms-platform/transfer-service/pkg/tracing"
)

// Job names
const (
	JobMoveTemp             = "move-temp"
	JobMoveComplete         = "move-complete"
	JobMoveCompleteExternal = "move-complete-external"
	JobRevert               = "revert"
	JobInvoice              = "invoice"
	JobChangeBroadcast      = "change-broadcast"
)

// JobPayload identifies the order a job runs against
type JobPayload struct {
	OrderID int64  `json:"orderId"`
	Actor   string `json:"actor,omitempty"`
}

// EnqueueOptions tunes a single enqueue
type EnqueueOptions struct {
	Delay time.Duration
}

// EnqueueOption configures EnqueueOptions
type EnqueueOption func(*EnqueueOptions)

// WithDelay postpones the job
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.Delay = d }
}

// ApplyEnqueueOptions folds options into EnqueueOptions
func ApplyEnqueueOptions(opts ...EnqueueOption) EnqueueOptions {
	var o EnqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// JobQueue dispatches background jobs keyed by order id
type JobQueue interface {
	Enqueue(ctx context.Context, job string, payload JobPayload, opts ...EnqueueOption) error
}

// InlineQueue runs jobs synchronously in the calling goroutine
type InlineQueue struct {
	runner *JobRunner
	logger *logging.Logger
}

// NewInlineQueue creates an InlineQueue. Bind must be called before use.
func NewInlineQueue(logger *logging.Logger) *InlineQueue {
	return &InlineQueue{logger: logger.WithComponent("inline-queue")}
}

// Bind attaches the runner that executes jobs
func (q *InlineQueue) Bind(runner *JobRunner) {
	q.runner = runner
}

// Enqueue runs the job now. Job errors are logged, not returned.
func (q *InlineQueue) Enqueue(ctx context.Context, job string, payload JobPayload, opts ...EnqueueOption) error {
	if q.runner == nil {
		return fmt.Errorf("inline queue has no runner for job %s", job)
	}
	if err := q.runner.Run(ctx, job, payload); err != nil {
		q.logger.WithError(err).Warn("Inline job failed", "job", job, "orderId", payload.OrderID)
	}
	return nil
}

// JobRunnerConfig wires the runner collaborators
type JobRunnerConfig struct {
	Orders     domain.OrderRepository
	Variances  domain.VarianceRepository
	Movements  domain.MovementRepository
	Stations   domain.StationDirectory
	Ledger     *Ledger
	Serials    *SerialTracker
	Costs      *CostCalculator
	CostLedger CostLedger
	Bus        NotificationBus
	Queue      JobQueue
	Settings   Settings
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
	Tracer     trace.Tracer
}

// JobRunner executes the named background jobs
type JobRunner struct {
	cfg      JobRunnerConfig
	logger   *logging.Logger
	handlers map[string]func(context.Context, JobPayload) error
}

// NewJobRunner creates a new JobRunner
func NewJobRunner(cfg JobRunnerConfig) *JobRunner {
	r := &JobRunner{
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("job-runner"),
	}
	r.handlers = map[string]func(context.Context, JobPayload) error{
		JobMoveTemp:             r.moveTemp,
		JobMoveComplete:         func(ctx context.Context, p JobPayload) error { return r.moveComplete(ctx, JobMoveComplete, p) },
		JobMoveCompleteExternal: func(ctx context.Context, p JobPayload) error { return r.moveComplete(ctx, JobMoveCompleteExternal, p) },
		JobRevert:               r.revert,
		JobInvoice:              r.invoice,
		JobChangeBroadcast:      r.changeBroadcast,
	}
	return r
}

// Run executes one job inside a span
func (r *JobRunner) Run(ctx context.Context, job string, payload JobPayload) error {
	handler, ok := r.handlers[job]
	if !ok {
		return fmt.Errorf("unknown job %q", job)
	}

	ctx = logging.ContextWithUserID(ctx, payload.Actor)
	start := time.Now()
	r.cfg.Logger.JobStart(ctx, job, payload.OrderID)

	err := tracing.WithSpan(ctx, r.cfg.Tracer, "job."+job, func(ctx context.Context) error {
		return handler(ctx, payload)
	}, tracing.JobSpanAttributes(job, payload.OrderID)...)

	duration := time.Since(start)
	r.cfg.Metrics.RecordJobExecuted(job, err == nil, duration)
	r.cfg.Logger.JobComplete(ctx, job, payload.OrderID, duration, err)

	return err
}

func (r *JobRunner) load(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := r.cfg.Orders.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}
	if !order.Scope.IsImplemented() {
		return nil, domain.ErrScopeNotImplemented
	}
	return order, nil
}

func (r *JobRunner) alreadyRan(ctx context.Context, order *domain.Order, job string) (bool, error) {
	ran, err := r.cfg.Movements.HasJob(ctx, order.ID, job)
	if err != nil {
		return false, fmt.Errorf("failed to check movement log: %w", err)
	}
	if ran {
		r.logger.Warn("Skipping job with recorded movements", "job", job, "orderId", order.ID)
	}
	return ran, nil
}

func (r *JobRunner) moveTemp(ctx context.Context, p JobPayload) error {
	order, err := r.load(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if ran, err := r.alreadyRan(ctx, order, JobMoveTemp); err != nil || ran {
		return err
	}
	return r.cfg.Ledger.TempMove(ctx, order)
}

func (r *JobRunner) moveComplete(ctx context.Context, job string, p JobPayload) error {
	order, err := r.load(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if !order.Locked {
		return fmt.Errorf("%w: order %d is not locked", domain.ErrInvalidTransition, order.ID)
	}
	if ran, err := r.alreadyRan(ctx, order, job); err != nil || ran {
		return err
	}

	receipt := order.Receipt()
	nodes, moveErr := r.cfg.Ledger.CompleteMove(ctx, order, receipt)
	errs := []error{moveErr}

	for _, sku := range order.SKUs() {
		node := nodes[sku]
		if node == nil {
			continue
		}
		incoming, ok, err := r.cfg.Costs.ReceiptUnitCost(ctx, order, receipt, sku)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if _, err := r.cfg.Costs.ApplyRetailLift(ctx, node, incoming); err != nil {
			r.logger.WithError(err).Error("Retail lift failed", "orderId", order.ID, "sku", sku)
			errs = append(errs, err)
		}
	}

	if dest, err := r.cfg.Stations.Resolve(ctx, order.To); err != nil {
		errs = append(errs, fmt.Errorf("failed to resolve destination %s: %w", order.To, err))
	} else if dest == nil {
		errs = append(errs, fmt.Errorf("%w: %s", domain.ErrStationNotFound, order.To))
	} else {
		cache, err := r.cfg.Serials.BuildCache(ctx, order, receipt, dest)
		if err != nil {
			errs = append(errs, err)
		} else {
			refs, err := r.cfg.Serials.ManageSerials(ctx, order, cache)
			order.AddSerialReferences(refs...)
			errs = append(errs, err)
		}
	}

	if order.IsInternal() {
		errs = append(errs, r.recordVariances(ctx, order, receipt, nodes))
	}

	patch := domain.MetaPatch{Variances: order.Meta.Variances}
	if len(order.Meta.SerialReferences) > 0 {
		patch.SerialReferences = order.Meta.SerialReferences
	}
	if err := r.cfg.Orders.UpdateMeta(ctx, order.ID, patch); err != nil {
		errs = append(errs, fmt.Errorf("failed to update order meta: %w", err))
	}

	if err := r.cfg.Queue.Enqueue(ctx, JobInvoice, JobPayload{OrderID: order.ID, Actor: p.Actor}); err != nil {
		r.logger.WithError(err).Error("Failed to enqueue invoice", "orderId", order.ID)
	} else {
		r.cfg.Metrics.RecordJobEnqueued(JobInvoice)
	}

	return errors.Join(errs...)
}

func (r *JobRunner) recordVariances(ctx context.Context, order *domain.Order, receipt *domain.Receipt, nodes map[string]*domain.InventoryNode) error {
	exists, err := r.cfg.Variances.ExistsForOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to check variances: %w", err)
	}
	if exists {
		return nil
	}

	variances, err := r.cfg.Costs.Variances(ctx, order, receipt, nodes)
	if err != nil {
		return err
	}

	summaries := make([]domain.Variance, 0, len(variances))
	var errs []error
	for _, v := range variances {
		if err := r.cfg.Variances.Create(ctx, v); err != nil {
			errs = append(errs, fmt.Errorf("failed to create variance for %s: %w", v.SKU, err))
			continue
		}
		r.cfg.Metrics.RecordVariance(v.Quantity)
		r.logger.Warn("Item variance recorded",
			"orderId", order.ID,
			"sku", v.SKU,
			"station", v.Station,
			"quantity", v.Quantity,
			"value", v.Value.String(),
		)
		summaries = append(summaries, v.Summary())
	}

	if len(summaries) > 0 {
		order.RecordVariances(summaries)
	}

	return errors.Join(errs...)
}

func (r *JobRunner) invoice(ctx context.Context, p JobPayload) error {
	order, err := r.load(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if d := order.Meta.FinalCostDetails; d != nil && d.Invoiced {
		r.logger.Info("Order already invoiced", "orderId", order.ID)
		return nil
	}

	nodes, err := r.cfg.Ledger.NodesAt(ctx, order, order.To)
	if err != nil {
		return err
	}

	total, details, err := r.cfg.Costs.FinalCost(ctx, order, order.Receipt(), nodes)
	if err != nil {
		details = &domain.FinalCostDetails{Currency: r.cfg.Settings.Currency, InvoiceError: err.Error()}
		r.cfg.Metrics.RecordInvoiceFailure()
		r.logger.WithError(err).Error("Final cost computation failed", "orderId", order.ID)
	} else {
		invoice := Invoice{
			From:     order.From,
			To:       order.To,
			Amount:   total,
			Currency: r.cfg.Settings.Currency,
			Domain:   r.cfg.Settings.Domain,
		}
		if err := r.cfg.CostLedger.Invoice(ctx, invoice); err != nil {
			details.InvoiceError = err.Error()
			r.cfg.Metrics.RecordInvoiceFailure()
			r.logger.WithError(err).Error("Invoice rejected by cost ledger", "orderId", order.ID, "amount", total.String())
		} else {
			details.Invoiced = true
		}
	}

	order.RecordFinalCost(total, details)
	patch := domain.MetaPatch{FinalCost: order.Meta.FinalCost, FinalCostDetails: order.Meta.FinalCostDetails}
	if err := r.cfg.Orders.UpdateMeta(ctx, order.ID, patch); err != nil {
		return fmt.Errorf("failed to update order meta: %w", err)
	}

	return nil
}

func (r *JobRunner) revert(ctx context.Context, p JobPayload) error {
	order, err := r.load(ctx, p.OrderID)
	if err != nil {
		return err
	}

	errs := []error{
		r.cfg.Ledger.Revert(ctx, order),
		r.cfg.Serials.Revert(ctx, order),
	}

	order.MarkRemoved()
	if err := r.cfg.Orders.Delete(ctx, order); err != nil {
		return errors.Join(append(errs, fmt.Errorf("failed to delete order: %w", err))...)
	}

	r.cfg.Logger.Audit(ctx, "delete", "transfer-order", fmt.Sprint(order.ID), p.Actor, map[string]any{
		"state": string(order.State),
	})

	errs = append(errs, r.broadcast(ctx, order))
	return errors.Join(errs...)
}

func (r *JobRunner) changeBroadcast(ctx context.Context, p JobPayload) error {
	order, err := r.cfg.Orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order %d: %w", p.OrderID, err)
	}
	if order == nil {
		r.logger.Debug("Skipping broadcast for missing order", "orderId", p.OrderID)
		return nil
	}
	return r.broadcast(ctx, order)
}

func (r *JobRunner) channels(ctx context.Context, order *domain.Order) []string {
	channels := []string{"station/" + order.From, "station/" + order.To}

	children, err := r.cfg.Stations.ChildrenOf(ctx, order.To)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to list destination children", "station", order.To)
		return channels
	}
	for _, child := range children {
		channels = append(channels, child.Channel())
	}
	return channels
}

func (r *JobRunner) broadcast(ctx context.Context, order *domain.Order) error {
	payload := cloudevents.OrderChangedData{
		OrderID:       order.ID,
		TransactionID: order.TransactionID,
		State:         string(order.State),
		LastState:     string(order.Meta.LastState),
		Scope:         string(order.Scope),
		From:          order.From,
		To:            order.To,
		ChangedAt:     order.UpdatedAt,
	}

	var errs []error
	for _, channel := range r.channels(ctx, order) {
		if err := r.cfg.Bus.Broadcast(ctx, channel, payload); err != nil {
			errs = append(errs, fmt.Errorf("failed to broadcast to %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}
