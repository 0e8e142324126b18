package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/metrics"
)

// Ledger moves quantities between inventory nodes through the movement log
type Ledger struct {
	inventory domain.InventoryRepository
	movements domain.MovementRepository
	stock     StockNotifier
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewLedger creates a new Ledger
func NewLedger(
	inventory domain.InventoryRepository,
	movements domain.MovementRepository,
	stock StockNotifier,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Ledger {
	return &Ledger{
		inventory: inventory,
		movements: movements,
		stock:     stock,
		metrics:   m,
		logger:    logger.WithComponent("ledger"),
	}
}

// EnsureNode returns the node for sku at station, cloning source or the
// catalog root when the station has never held the SKU.
func (l *Ledger) EnsureNode(ctx context.Context, sku, schema, station string, source *domain.InventoryNode) (*domain.InventoryNode, error) {
	node, err := l.inventory.FindBySKU(ctx, sku, schema, station)
	if err != nil {
		return nil, fmt.Errorf("failed to find node %s at %s: %w", sku, station, err)
	}
	if node != nil {
		return node, nil
	}

	if source == nil {
		source, err = l.inventory.FindCatalog(ctx, sku, schema)
		if err != nil {
			return nil, fmt.Errorf("failed to find catalog node %s: %w", sku, err)
		}
		if source == nil {
			return nil, fmt.Errorf("%w: %s in schema %s", domain.ErrNodeNotFound, sku, schema)
		}
	}

	clone, err := l.inventory.Clone(ctx, source, station)
	if err != nil {
		return nil, fmt.Errorf("failed to clone node %s to %s: %w", sku, station, err)
	}

	l.logger.Info("Cloned inventory node",
		"sku", sku,
		"schema", schema,
		"station", station,
		"nodeId", clone.ID.Hex(),
	)

	return clone, nil
}

// Measure computes the shipping weight and volume from the source nodes
func (l *Ledger) Measure(ctx context.Context, order *domain.Order) (*domain.Measurements, error) {
	m := &domain.Measurements{}
	for _, item := range order.Items {
		node, err := l.sourceNode(ctx, order, item.SKU)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue
		}
		m.Weight += node.UnitWeight * float64(item.Quantity)
		m.Volume += node.UnitVolume * float64(item.Quantity)
	}
	return m, nil
}

func (l *Ledger) sourceNode(ctx context.Context, order *domain.Order, sku string) (*domain.InventoryNode, error) {
	if order.IsInternal() {
		node, err := l.inventory.FindBySKU(ctx, sku, order.Schema, order.From)
		if err != nil {
			return nil, fmt.Errorf("failed to find node %s at %s: %w", sku, order.From, err)
		}
		return node, nil
	}
	node, err := l.inventory.FindCatalog(ctx, sku, order.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to find catalog node %s: %w", sku, err)
	}
	return node, nil
}

func (l *Ledger) destinationNode(ctx context.Context, order *domain.Order, sku string, source *domain.InventoryNode) (*domain.InventoryNode, error) {
	if id, ok := order.Meta.VendorNodes[sku]; ok {
		node, err := l.inventory.FindByID(ctx, id, order.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to load vendor node %s: %w", id.Hex(), err)
		}
		if node != nil {
			return node, nil
		}
	}
	return l.EnsureNode(ctx, sku, order.Schema, order.To, source)
}

// NodesAt loads the nodes holding the order SKUs at station
func (l *Ledger) NodesAt(ctx context.Context, order *domain.Order, station string) (map[string]*domain.InventoryNode, error) {
	nodes := make(map[string]*domain.InventoryNode)
	for _, sku := range order.SKUs() {
		node, err := l.inventory.FindBySKU(ctx, sku, order.Schema, station)
		if err != nil {
			return nil, fmt.Errorf("failed to find node %s at %s: %w", sku, station, err)
		}
		if node != nil {
			nodes[sku] = node
		}
	}
	return nodes, nil
}

// apply records the delta, mutates the node and marks the outcome
func (l *Ledger) apply(ctx context.Context, order *domain.Order, job string, node *domain.InventoryNode, delta domain.Delta) error {
	if delta.IsZero() {
		return nil
	}

	entry := domain.NewMovementEntry(order.ID, job, node, delta)
	if err := l.movements.Record(ctx, entry); err != nil {
		l.metrics.RecordMovement(job, false)
		return fmt.Errorf("failed to record movement for %s at %s: %w", node.SKU, node.Station, err)
	}

	node.Apply(delta)
	if err := l.inventory.Save(ctx, node); err != nil {
		l.metrics.RecordMovement(job, false)
		if markErr := l.movements.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
			l.logger.WithError(markErr).Error("Failed to mark movement failed", "movementId", entry.ID.Hex())
		}
		return fmt.Errorf("failed to save node %s at %s: %w", node.SKU, node.Station, err)
	}

	if err := l.movements.MarkApplied(ctx, entry.ID); err != nil {
		l.logger.WithError(err).Error("Failed to mark movement applied", "movementId", entry.ID.Hex())
	}
	l.metrics.RecordMovement(job, true)

	if delta.Quantity != 0 && l.stock != nil {
		if err := l.stock.Evaluate(ctx, node, delta.Quantity); err != nil {
			l.logger.WithError(err).Warn("Stock notification failed",
				"sku", node.SKU,
				"station", node.Station,
			)
		}
	}

	return nil
}

// TempMove reserves the ordered quantities at approval
func (l *Ledger) TempMove(ctx context.Context, order *domain.Order) error {
	var errs []error

	for _, item := range order.Items {
		var source *domain.InventoryNode
		if order.IsInternal() {
			node, err := l.inventory.FindBySKU(ctx, item.SKU, order.Schema, order.From)
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to find node %s at %s: %w", item.SKU, order.From, err))
				continue
			}
			if node == nil {
				errs = append(errs, fmt.Errorf("%w: %s at %s", domain.ErrNodeNotFound, item.SKU, order.From))
				continue
			}
			source = node

			if err := l.apply(ctx, order, JobMoveTemp, source, domain.Delta{Quantity: -item.Quantity, Outgoing: item.Quantity}); err != nil {
				l.logger.WithError(err).Error("Temp move failed at source", "orderId", order.ID, "sku", item.SKU)
				errs = append(errs, err)
			}
		}

		dest, err := l.destinationNode(ctx, order, item.SKU, source)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := l.apply(ctx, order, JobMoveTemp, dest, domain.Delta{Incoming: item.Quantity}); err != nil {
			l.logger.WithError(err).Error("Temp move failed at destination", "orderId", order.ID, "sku", item.SKU)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// CompleteMove converts the held incoming and outgoing quantities into
// stock using the receipt. It returns the destination nodes by SKU.
func (l *Ledger) CompleteMove(ctx context.Context, order *domain.Order, receipt *domain.Receipt) (map[string]*domain.InventoryNode, error) {
	nodes := make(map[string]*domain.InventoryNode)
	var errs []error

	for _, sku := range order.SKUs() {
		returned := receipt.Returned[sku]
		counted := receipt.CountedQuantity(sku)
		shippedNet := receipt.ShippedNet(sku)

		var source *domain.InventoryNode
		if order.IsInternal() {
			node, err := l.inventory.FindBySKU(ctx, sku, order.Schema, order.From)
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to find node %s at %s: %w", sku, order.From, err))
			} else if node == nil {
				errs = append(errs, fmt.Errorf("%w: %s at %s", domain.ErrNodeNotFound, sku, order.From))
			} else {
				source = node
				delta := domain.Delta{Outgoing: -(returned + shippedNet), Quantity: shippedNet - counted}
				if err := l.apply(ctx, order, JobMoveComplete, source, delta); err != nil {
					l.logger.WithError(err).Error("Complete move failed at source", "orderId", order.ID, "sku", sku)
					errs = append(errs, err)
				}
			}
		}

		dest, err := l.destinationNode(ctx, order, sku, source)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		job := JobMoveComplete
		if !order.IsInternal() {
			job = JobMoveCompleteExternal
		}
		if err := l.apply(ctx, order, job, dest, domain.Delta{Incoming: -(returned + counted), Quantity: counted}); err != nil {
			l.logger.WithError(err).Error("Complete move failed at destination", "orderId", order.ID, "sku", sku)
			errs = append(errs, err)
			continue
		}
		nodes[sku] = dest
	}

	return nodes, errors.Join(errs...)
}

// Revert inverts every applied movement of the order, newest first
func (l *Ledger) Revert(ctx context.Context, order *domain.Order) error {
	entries, err := l.movements.FindApplied(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load movements: %w", err)
	}

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		node, err := l.inventory.FindByID(ctx, entry.Node, entry.Schema)
		if err != nil || node == nil {
			if err == nil {
				err = fmt.Errorf("%w: %s", domain.ErrNodeNotFound, entry.Node.Hex())
			}
			l.logger.WithError(err).Error("Revert could not load node", "orderId", order.ID, "movementId", entry.ID.Hex())
			errs = append(errs, err)
			continue
		}

		node.Apply(entry.Delta.Invert())
		if err := l.inventory.Save(ctx, node); err != nil {
			l.metrics.RecordMovement(JobRevert, false)
			errs = append(errs, fmt.Errorf("failed to revert node %s at %s: %w", node.SKU, node.Station, err))
			continue
		}
		if err := l.movements.MarkReverted(ctx, entry.ID); err != nil {
			l.logger.WithError(err).Error("Failed to mark movement reverted", "movementId", entry.ID.Hex())
		}
		l.metrics.RecordMovement(JobRevert, true)
	}

	return errors.Join(errs...)
}
