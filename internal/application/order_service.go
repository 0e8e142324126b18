package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/errors"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/metrics"
)

// OrderApplicationService handles transfer order use cases
type OrderApplicationService struct {
	orders    domain.OrderRepository
	variances domain.VarianceRepository
	stations  domain.StationDirectory
	ledger    *Ledger
	costs     *CostCalculator
	queue     JobQueue
	settings  Settings
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewOrderApplicationService creates a new OrderApplicationService
func NewOrderApplicationService(
	orders domain.OrderRepository,
	variances domain.VarianceRepository,
	stations domain.StationDirectory,
	ledger *Ledger,
	costs *CostCalculator,
	queue JobQueue,
	settings Settings,
	m *metrics.Metrics,
	logger *logging.Logger,
) *OrderApplicationService {
	return &OrderApplicationService{
		orders:    orders,
		variances: variances,
		stations:  stations,
		ledger:    ledger,
		costs:     costs,
		queue:     queue,
		settings:  settings,
		metrics:   m,
		logger:    logger.WithComponent("transfer-orders"),
	}
}

var domainErrorMappings = []errors.Mapping{
	{Target: domain.ErrScopeNotImplemented, Build: func(string) *errors.AppError { return errors.ErrNotImplemented("onward scope") }},
	{Target: domain.ErrOrderNotFound, Build: notFound},
	{Target: domain.ErrStationNotFound, Build: notFound},
	{Target: domain.ErrNodeNotFound, Build: notFound},
	{Target: domain.ErrInvalidTransition, Build: errors.ErrStateConflict},
	{Target: domain.ErrOrderLocked, Build: errors.ErrStateConflict},
	{Target: domain.ErrDeleteRestricted, Build: errors.ErrStateConflict},
	{Target: domain.ErrDeleteTooRecent, Build: errors.ErrStateConflict},
	{Target: domain.ErrNoItems, Build: errors.ErrValidation},
	{Target: domain.ErrInvalidQuantity, Build: errors.ErrValidation},
	{Target: domain.ErrMissingSKU, Build: errors.ErrValidation},
	{Target: domain.ErrMissingStation, Build: errors.ErrValidation},
	{Target: domain.ErrSameStation, Build: errors.ErrValidation},
	{Target: domain.ErrInvalidScope, Build: errors.ErrValidation},
	{Target: domain.ErrInvalidState, Build: errors.ErrValidation},
	{Target: domain.ErrMissingID, Build: errors.ErrValidation},
	{Target: domain.ErrMissingTracking, Build: errors.ErrValidation},
	{Target: domain.ErrInvalidReturn, Build: errors.ErrValidation},
	{Target: domain.ErrInvalidReceipt, Build: errors.ErrValidation},
	{Target: domain.ErrInvalidMeta, Build: errors.ErrValidation},
	{Target: domain.ErrMissingCarrier, Build: errors.ErrValidation},
	{Target: domain.ErrMissingRequester, Build: errors.ErrValidation},
}

func notFound(msg string) *errors.AppError {
	return errors.NewAppError(errors.CodeNotFound, msg, 404)
}

// MapError converts domain errors into AppErrors
func MapError(err error) *errors.AppError {
	return errors.MapDomainError(err, domainErrorMappings...)
}

// costError surfaces pricing failures. Missing nodes stay not-found, the
// rest are cost ledger failures.
func costError(err error) *errors.AppError {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}
	if stderrors.Is(err, domain.ErrNodeNotFound) {
		return MapError(err)
	}
	return errors.ErrIntegration("cost ledger").Wrap(err)
}

// CreateOrder creates a PENDING transfer order
func (s *OrderApplicationService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*OrderDTO, error) {
	scope := domain.Scope(cmd.Scope)
	if !scope.IsValid() {
		return nil, errors.ErrValidation(domain.ErrInvalidScope.Error()).WithDetail("scope", cmd.Scope)
	}
	if !scope.IsImplemented() {
		return nil, MapError(domain.ErrScopeNotImplemented)
	}

	dest, err := s.stations.Resolve(ctx, cmd.To)
	if err != nil {
		s.logger.WithError(err).Error("Failed to resolve station", "station", cmd.To)
		return nil, fmt.Errorf("failed to resolve station: %w", err)
	}
	if dest == nil {
		return nil, errors.ErrNotFoundWithID("station", cmd.To)
	}
	if scope == domain.ScopeInternal {
		source, err := s.stations.Resolve(ctx, cmd.From)
		if err != nil {
			s.logger.WithError(err).Error("Failed to resolve station", "station", cmd.From)
			return nil, fmt.Errorf("failed to resolve station: %w", err)
		}
		if source == nil {
			return nil, errors.ErrNotFoundWithID("station", cmd.From)
		}
	}

	schema := cmd.Schema
	if schema == "" {
		schema = dest.Schema
	}

	if err := domain.ValidateItems(cmd.ToDomainItems()); err != nil {
		return nil, MapError(err)
	}

	id := cmd.ID
	if id == 0 {
		id, err = s.orders.NextID(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Failed to allocate order id")
			return nil, fmt.Errorf("failed to allocate order id: %w", err)
		}
	}

	order, err := domain.NewOrder(domain.NewOrderParams{
		ID:            id,
		TransactionID: cmd.TransactionID,
		Scope:         scope,
		From:          cmd.From,
		To:            cmd.To,
		Schema:        schema,
		Items:         cmd.ToDomainItems(),
		Requester:     cmd.Requester,
		Currency:      s.settings.Currency,
		Fees:          cmd.ToDomainFees(),
	})
	if err != nil {
		return nil, MapError(err)
	}

	projected, err := s.costs.ProjectedCost(ctx, order)
	if err != nil {
		s.logger.WithError(err).Error("Failed to compute projected cost", "orderId", id)
		return nil, costError(err)
	}
	order.SetProjectedCost(projected)

	if !order.IsInternal() {
		nodes := make(map[string]*domain.InventoryNode)
		for _, sku := range order.SKUs() {
			node, err := s.ledger.EnsureNode(ctx, sku, order.Schema, order.To, nil)
			if err != nil {
				s.logger.WithError(err).Error("Failed to bind vendor node", "orderId", id, "sku", sku)
				return nil, MapError(err)
			}
			nodes[sku] = node
		}
		order.BindVendorNodes(nodes)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.metrics.RecordOrderCreated(string(order.Scope))
	s.logger.Event(ctx, "transfer.order-created", map[string]any{
		"orderId":       order.ID,
		"transactionId": order.TransactionID,
		"scope":         string(order.Scope),
		"from":          order.From,
		"to":            order.To,
		"itemsCount":    order.Meta.ItemsCount,
	})
	s.enqueue(ctx, JobChangeBroadcast, order.ID, cmd.Requester)

	return ToOrderDTO(order), nil
}

// GetOrder retrieves an order by ID
func (s *OrderApplicationService) GetOrder(ctx context.Context, query GetOrderQuery) (*OrderDTO, error) {
	order, err := s.load(ctx, query.OrderID)
	if err != nil {
		return nil, err
	}
	return ToOrderDTO(order), nil
}

// RequestEvaluation moves a pending order into cost evaluation
func (s *OrderApplicationService) RequestEvaluation(ctx context.Context, cmd RequestEvaluationCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	if err := order.RequestEvaluation(cmd.Requester); err != nil {
		return nil, MapError(err)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, order, from, "request-evaluation", cmd.Requester)

	return ToOrderDTO(order), nil
}

// ApproveCost signs off an evaluated order and returns it to PENDING
func (s *OrderApplicationService) ApproveCost(ctx context.Context, cmd ApproveCostCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	approval := domain.CostApproval{
		Approver: cmd.Approver,
		Amount:   cmd.Amount,
		Memo:     cmd.Memo,
	}
	if err := order.ApproveCost(approval); err != nil {
		return nil, MapError(err)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, order, from, "approve-cost", cmd.Approver)

	return ToOrderDTO(order), nil
}

// ApproveOrder approves a pending order and reserves its stock
func (s *OrderApplicationService) ApproveOrder(ctx context.Context, cmd ApproveOrderCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	costs, measurements, err := s.approvalSnapshot(ctx, order)
	if err != nil {
		return nil, err
	}

	applied, err := order.Approve(cmd.Approver, costs, measurements)
	if err != nil {
		return nil, MapError(err)
	}
	if !applied {
		s.logger.Info("Order already approved", "orderId", order.ID)
		return ToOrderDTO(order), nil
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, order, from, "approve", cmd.Approver)
	s.enqueue(ctx, JobMoveTemp, order.ID, cmd.Approver)

	return ToOrderDTO(s.refresh(ctx, order)), nil
}

// approvalSnapshot prices the items and measures the shipment. Orders past
// PENDING skip it so a repeated approval stays a no-op.
func (s *OrderApplicationService) approvalSnapshot(ctx context.Context, order *domain.Order) (map[string]decimal.Decimal, *domain.Measurements, error) {
	if order.Meta.LastState != domain.StatePending || !order.Scope.IsImplemented() {
		return nil, nil, nil
	}

	costs, err := s.costs.ItemCosts(ctx, order)
	if err != nil {
		s.logger.WithError(err).Error("Failed to snapshot item costs", "orderId", order.ID)
		return nil, nil, costError(err)
	}

	measurements, err := s.ledger.Measure(ctx, order)
	if err != nil {
		s.logger.WithError(err).Error("Failed to measure order", "orderId", order.ID)
		return nil, nil, fmt.Errorf("failed to measure order: %w", err)
	}

	return costs, measurements, nil
}

// ShipOrder moves an approved order to PROCESSING. Repeats are no-ops.
func (s *OrderApplicationService) ShipOrder(ctx context.Context, cmd ShipOrderCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	applied, err := order.Ship(cmd.Actor)
	if err != nil {
		return nil, MapError(err)
	}
	if !applied {
		s.logger.Info("Order already shipped", "orderId", order.ID, "state", string(order.State))
		return ToOrderDTO(order), nil
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, order, from, "ship", cmd.Actor)

	return ToOrderDTO(order), nil
}

// DispatchOrder records the carrier hand-off
func (s *OrderApplicationService) DispatchOrder(ctx context.Context, cmd DispatchOrderCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	if err := order.Dispatch(cmd.Carrier, cmd.TrackingNumber, cmd.Actor); err != nil {
		return nil, MapError(err)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, order, from, "dispatch", cmd.Actor)

	return ToOrderDTO(order), nil
}

// RecordReceipt appends a package sub-receipt
func (s *OrderApplicationService) RecordReceipt(ctx context.Context, cmd RecordReceiptCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if err := order.RecordReceipt(cmd.ToDomainPackage(), cmd.BackupSerials); err != nil {
		return nil, MapError(err)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Event(ctx, "transfer.receipt-recorded", map[string]any{
		"orderId": order.ID,
		"package": cmd.Package,
		"lines":   len(cmd.Items) + len(cmd.CountedItems),
	})

	return ToOrderDTO(order), nil
}

// RequestReturn declares returned goods on an in-transit order
func (s *OrderApplicationService) RequestReturn(ctx context.Context, cmd RequestReturnCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if err := order.RequestReturn(cmd.ToDomainDetails()); err != nil {
		return nil, MapError(err)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Audit(ctx, "request-return", "transfer-order", strconv.FormatInt(order.ID, 10), cmd.Requester, map[string]any{
		"total":       order.Meta.ReturnDetails.Total,
		"replacement": order.Meta.ReturnDetails.Replacement,
	})
	s.enqueue(ctx, JobChangeBroadcast, order.ID, cmd.Requester)

	return ToOrderDTO(order), nil
}

// CompleteOrder receives and locks an in-transit order. A locked order is
// returned unchanged with Applied false.
func (s *OrderApplicationService) CompleteOrder(ctx context.Context, cmd CompleteOrderCommand) (*OrderCompletedResponse, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	applied, err := order.Complete(cmd.Actor)
	if err != nil {
		return nil, MapError(err)
	}
	if !applied {
		s.logger.Info("Order already completed", "orderId", order.ID)
		return &OrderCompletedResponse{Order: *ToOrderDTO(order)}, nil
	}

	var child *domain.Order
	if order.WantsReplacement() {
		childID, err := s.orders.NextID(ctx)
		if err != nil {
			s.logger.WithError(err).Error("Failed to allocate replacement id", "orderId", order.ID)
			return nil, fmt.Errorf("failed to allocate replacement id: %w", err)
		}
		child, err = domain.BuildReplacement(order, childID)
		if err != nil {
			return nil, MapError(err)
		}
		if err := s.priceReplacement(ctx, child); err != nil {
			return nil, err
		}
		order.LinkReplacement(child.ID)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, order, from, "complete", cmd.Actor)

	job := JobMoveComplete
	if !order.IsInternal() {
		job = JobMoveCompleteExternal
	}
	s.enqueue(ctx, job, order.ID, cmd.Actor)

	response := &OrderCompletedResponse{Applied: true}

	if child != nil {
		if err := s.save(ctx, child); err != nil {
			return nil, err
		}
		s.metrics.RecordOrderCreated(string(child.Scope))
		s.logger.Event(ctx, "transfer.replacement-created", map[string]any{
			"orderId":       child.ID,
			"parent":        order.ID,
			"transactionId": child.TransactionID,
			"itemsCount":    child.Meta.ItemsCount,
		})
		s.enqueue(ctx, JobMoveTemp, child.ID, cmd.Actor)
		s.enqueue(ctx, JobChangeBroadcast, child.ID, cmd.Actor)
		response.Replacement = ToOrderDTO(s.refresh(ctx, child))
	}

	response.Order = *ToOrderDTO(s.refresh(ctx, order))
	return response, nil
}

// priceReplacement runs the cost pipeline a replacement skips by being
// created already approved
func (s *OrderApplicationService) priceReplacement(ctx context.Context, child *domain.Order) error {
	projected, err := s.costs.ProjectedCost(ctx, child)
	if err != nil {
		s.logger.WithError(err).Error("Failed to price replacement", "parent", child.Parent)
		return costError(err)
	}
	child.SetProjectedCost(projected)

	costs, err := s.costs.ItemCosts(ctx, child)
	if err != nil {
		s.logger.WithError(err).Error("Failed to snapshot replacement item costs", "parent", child.Parent)
		return costError(err)
	}
	child.SetItemCosts(costs)
	return nil
}

// CloseOrder archives a received order
func (s *OrderApplicationService) CloseOrder(ctx context.Context, cmd CloseOrderCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	if err := order.Close(cmd.Actor); err != nil {
		return nil, MapError(err)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, order, from, "close", cmd.Actor)

	return ToOrderDTO(order), nil
}

// RejectOrder locks a non-terminal order with a memo
func (s *OrderApplicationService) RejectOrder(ctx context.Context, cmd RejectOrderCommand) (*OrderDTO, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	if err := order.Reject(cmd.Actor, cmd.Memo); err != nil {
		return nil, MapError(err)
	}

	if err := s.save(ctx, order); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, order, from, "reject", cmd.Actor)

	return ToOrderDTO(order), nil
}

// DeleteOrder checks the delete guards and enqueues the revert job
func (s *OrderApplicationService) DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return err
	}

	if err := order.CanDelete(time.Now().UTC(), s.settings.StalenessWindow, s.settings.Sandbox); err != nil {
		return MapError(err)
	}

	if err := s.queue.Enqueue(ctx, JobRevert, JobPayload{OrderID: order.ID, Actor: cmd.Actor}); err != nil {
		s.logger.WithError(err).Error("Failed to enqueue revert", "orderId", order.ID)
		return fmt.Errorf("failed to enqueue revert: %w", err)
	}
	s.metrics.RecordJobEnqueued(JobRevert)

	s.logger.Audit(ctx, "request-delete", "transfer-order", strconv.FormatInt(order.ID, 10), cmd.Actor, map[string]any{
		"state": string(order.State),
	})

	return nil
}

// Sweep moves idle orders to TIMEOUT
func (s *OrderApplicationService) Sweep(ctx context.Context, cmd SweepCommand) (*SweepResult, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	before := now.Add(-s.settings.TimeoutWindow)

	count, err := s.orders.SweepTimeouts(ctx, domain.SweepableStates(), before)
	if err != nil {
		s.logger.WithError(err).Error("Timeout sweep failed", "before", before)
		return nil, fmt.Errorf("failed to sweep timeouts: %w", err)
	}

	s.metrics.RecordOrdersTimedOut(count)
	s.logger.Info("Timeout sweep finished", "timedOut", count, "before", before)

	return &SweepResult{TimedOut: count, Before: before}, nil
}

// ListVariances returns the variance rows recorded for an order
func (s *OrderApplicationService) ListVariances(ctx context.Context, query ListVariancesQuery) ([]VarianceDTO, error) {
	if _, err := s.load(ctx, query.OrderID); err != nil {
		return nil, err
	}

	rows, err := s.variances.FindByOrder(ctx, query.OrderID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list variances", "orderId", query.OrderID)
		return nil, fmt.Errorf("failed to list variances: %w", err)
	}

	dtos := make([]VarianceDTO, len(rows))
	for i, row := range rows {
		dtos[i] = ToVarianceDTO(row)
	}
	return dtos, nil
}

func (s *OrderApplicationService) load(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		s.logger.WithOrder(id).WithError(err).Error("Failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("order", strconv.FormatInt(id, 10))
	}
	return order, nil
}

// refresh reloads an order after inline jobs may have changed it
func (s *OrderApplicationService) refresh(ctx context.Context, order *domain.Order) *domain.Order {
	fresh, err := s.orders.FindByID(ctx, order.ID)
	if err != nil || fresh == nil {
		return order
	}
	return fresh
}

func (s *OrderApplicationService) save(ctx context.Context, order *domain.Order) error {
	if err := s.orders.Save(ctx, order); err != nil {
		s.logger.WithOrder(order.ID).WithError(err).Error("Failed to save order")
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (s *OrderApplicationService) afterTransition(ctx context.Context, order *domain.Order, from domain.State, action, actor string) {
	s.metrics.RecordTransition(string(from), string(order.State))
	s.logger.Audit(ctx, action, "transfer-order", strconv.FormatInt(order.ID, 10), actor, map[string]any{
		"from": string(from),
		"to":   string(order.State),
	})
	s.enqueue(ctx, JobChangeBroadcast, order.ID, actor)
}

// enqueue logs enqueue failures; the order is already persisted
func (s *OrderApplicationService) enqueue(ctx context.Context, job string, orderID int64, actor string, opts ...EnqueueOption) {
	if err := s.queue.Enqueue(ctx, job, JobPayload{OrderID: orderID, Actor: actor}, opts...); err != nil {
		s.logger.WithError(err).Error("Failed to enqueue job", "job", job, "orderId", orderID)
		return
	}
	s.metrics.RecordJobEnqueued(job)
}
