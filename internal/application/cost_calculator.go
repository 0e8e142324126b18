package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/logging"
)

var hundred = decimal.NewFromInt(100)

// CostCalculator prices orders in the site currency
type CostCalculator struct {
	ledger    CostLedger
	inventory domain.InventoryRepository
	settings  Settings
	logger    *logging.Logger
}

// NewCostCalculator creates a new CostCalculator
func NewCostCalculator(ledger CostLedger, inventory domain.InventoryRepository, settings Settings, logger *logging.Logger) *CostCalculator {
	return &CostCalculator{
		ledger:    ledger,
		inventory: inventory,
		settings:  settings,
		logger:    logger.WithComponent("cost-calculator"),
	}
}

func (c *CostCalculator) convert(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" || currency == c.settings.Currency || amount.IsZero() {
		return amount, nil
	}
	converted, err := c.ledger.ConvertCurrency(ctx, amount, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to convert %s %s: %w", amount, currency, err)
	}
	return converted, nil
}

func (c *CostCalculator) priceNode(ctx context.Context, order *domain.Order, sku string) (*domain.InventoryNode, error) {
	var node *domain.InventoryNode
	var err error
	if order.IsInternal() {
		node, err = c.inventory.FindBySKU(ctx, sku, order.Schema, order.From)
	} else {
		node, err = c.inventory.FindCatalog(ctx, sku, order.Schema)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find node %s: %w", sku, err)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, sku)
	}
	return node, nil
}

// ProjectedCost sums the converted unit cost of every item
func (c *CostCalculator) ProjectedCost(ctx context.Context, order *domain.Order) (*domain.ProjectedCost, error) {
	cost := &domain.ProjectedCost{
		Total:    decimal.Zero,
		Currency: c.settings.Currency,
		PerUnit:  make(map[string]decimal.Decimal),
	}

	for _, item := range order.Items {
		unit, ok := cost.PerUnit[item.SKU]
		if !ok {
			node, err := c.priceNode(ctx, order, item.SKU)
			if err != nil {
				return nil, err
			}
			unit, err = c.convert(ctx, node.UnitCost, node.Currency)
			if err != nil {
				return nil, err
			}
			cost.PerUnit[item.SKU] = unit
		}
		cost.Total = cost.Total.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return cost, nil
}

// ItemCosts snapshots the converted unit cost per SKU at approval
func (c *CostCalculator) ItemCosts(ctx context.Context, order *domain.Order) (map[string]decimal.Decimal, error) {
	costs := make(map[string]decimal.Decimal)
	for _, sku := range order.SKUs() {
		if pc := order.Meta.ProjectedCost; pc != nil {
			if unit, ok := pc.PerUnit[sku]; ok {
				costs[sku] = unit
				continue
			}
		}
		node, err := c.priceNode(ctx, order, sku)
		if err != nil {
			return nil, err
		}
		unit, err := c.convert(ctx, node.UnitCost, node.Currency)
		if err != nil {
			return nil, err
		}
		costs[sku] = unit
	}
	return costs, nil
}

// invoiceUnitCost prefers the receipt, then the approval snapshot, then the node
func (c *CostCalculator) invoiceUnitCost(ctx context.Context, order *domain.Order, receipt *domain.Receipt, sku string, node *domain.InventoryNode) (decimal.Decimal, error) {
	if cost, ok := receipt.UnitCost(sku); ok {
		return c.convert(ctx, cost, c.feeCurrency(order))
	}
	if cost, ok := order.Meta.ItemCosts[sku]; ok {
		return cost, nil
	}
	if node == nil {
		return decimal.Zero, nil
	}
	return c.convert(ctx, node.UnitCost, node.Currency)
}

// ReceiptUnitCost returns the receipt unit cost of sku in the site currency
func (c *CostCalculator) ReceiptUnitCost(ctx context.Context, order *domain.Order, receipt *domain.Receipt, sku string) (decimal.Decimal, bool, error) {
	cost, ok := receipt.UnitCost(sku)
	if !ok {
		return decimal.Zero, false, nil
	}
	converted, err := c.convert(ctx, cost, c.feeCurrency(order))
	if err != nil {
		return decimal.Zero, false, err
	}
	return converted, true, nil
}

func (c *CostCalculator) feeCurrency(order *domain.Order) string {
	if order.Meta.Fees != nil && order.Meta.Fees.Currency != "" {
		return order.Meta.Fees.Currency
	}
	return c.settings.Currency
}

// FinalCost sums item invoice costs times received quantities plus all fees
func (c *CostCalculator) FinalCost(ctx context.Context, order *domain.Order, receipt *domain.Receipt, nodes map[string]*domain.InventoryNode) (decimal.Decimal, *domain.FinalCostDetails, error) {
	details := &domain.FinalCostDetails{Currency: c.settings.Currency}

	items := decimal.Zero
	for _, sku := range order.SKUs() {
		unit, err := c.invoiceUnitCost(ctx, order, receipt, sku, nodes[sku])
		if err != nil {
			return decimal.Zero, nil, err
		}
		items = items.Add(unit.Mul(decimal.NewFromInt(int64(receipt.CountedQuantity(sku)))))
	}
	details.Items = items

	if fees := order.Meta.Fees; fees != nil {
		parts := []*decimal.Decimal{&details.Taxes, &details.ServiceFees, &details.CustomsFees, &details.AdditionalFees}
		for i, amount := range []decimal.Decimal{fees.Taxes, fees.ServiceFees, fees.CustomsFees, fees.AdditionalFees} {
			converted, err := c.convert(ctx, amount, fees.Currency)
			if err != nil {
				return decimal.Zero, nil, err
			}
			*parts[i] = converted
		}
	}

	total := details.Items.Add(details.Taxes).Add(details.ServiceFees).Add(details.CustomsFees).Add(details.AdditionalFees)
	return total, details, nil
}

// RetailPrice returns cost lifted by the site percentage, rounded up
func (c *CostCalculator) RetailPrice(cost decimal.Decimal, currency string) decimal.Decimal {
	lift := cost.Mul(c.settings.RetailLiftPercent).Div(hundred).Ceil()
	return cost.Add(lift).RoundCeil(c.settings.Precision(currency))
}

// ApplyRetailLift propagates a higher incoming unit cost from a clone to its
// catalog parent and lifts retail cost on both when cost overtakes it.
func (c *CostCalculator) ApplyRetailLift(ctx context.Context, node *domain.InventoryNode, incoming decimal.Decimal) (bool, error) {
	if !incoming.GreaterThan(node.UnitCost) || !node.IsClone() {
		return false, nil
	}

	parent, err := c.inventory.FindByID(ctx, *node.CopyOf, node.Schema)
	if err != nil {
		return false, fmt.Errorf("failed to load parent node %s: %w", node.CopyOf.Hex(), err)
	}
	if parent == nil {
		return false, fmt.Errorf("%w: parent %s", domain.ErrNodeNotFound, node.CopyOf.Hex())
	}

	node.UnitCost = incoming
	parent.UnitCost = incoming

	if incoming.GreaterThan(node.RetailCost) {
		retail := c.RetailPrice(incoming, node.Currency)
		node.RetailCost = retail
		parent.RetailCost = retail
	}

	if err := c.inventory.Save(ctx, node); err != nil {
		return false, fmt.Errorf("failed to save node %s: %w", node.ID.Hex(), err)
	}
	if err := c.inventory.Save(ctx, parent); err != nil {
		return false, fmt.Errorf("failed to save parent node %s: %w", parent.ID.Hex(), err)
	}

	c.logger.Info("Applied retail lift",
		"sku", node.SKU,
		"nodeId", node.ID.Hex(),
		"parentId", parent.ID.Hex(),
		"unitCost", incoming.String(),
		"retailCost", node.RetailCost.String(),
	)

	return true, nil
}

// Variances computes one row per SKU where counted differs from shipped net
// of returns. Only internal orders carry variance.
func (c *CostCalculator) Variances(ctx context.Context, order *domain.Order, receipt *domain.Receipt, nodes map[string]*domain.InventoryNode) ([]*domain.ItemVariance, error) {
	if !order.IsInternal() {
		return nil, nil
	}

	var variances []*domain.ItemVariance
	for _, sku := range order.SKUs() {
		delta := receipt.Variance(sku)
		if delta == 0 {
			continue
		}
		node := nodes[sku]
		if node == nil {
			continue
		}

		unit, err := c.invoiceUnitCost(ctx, order, receipt, sku, node)
		if err != nil {
			return nil, err
		}

		initial := decimal.Zero
		if pc := order.Meta.ProjectedCost; pc != nil {
			initial = pc.PerUnit[sku]
		}

		variances = append(variances, domain.NewItemVariance(order, node, delta, unit, initial, c.settings.Currency))
	}

	return variances, nil
}
