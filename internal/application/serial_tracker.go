package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/logging"
)

// SerialTracker reconciles serial links and asset bindings on receipt
type SerialTracker struct {
	serializers domain.SerializerRepository
	serials     domain.SerialRepository
	assets      domain.AssetRepository
	inventory   domain.InventoryRepository
	ledger      *Ledger
	logger      *logging.Logger
}

// NewSerialTracker creates a new SerialTracker
func NewSerialTracker(
	serializers domain.SerializerRepository,
	serials domain.SerialRepository,
	assets domain.AssetRepository,
	inventory domain.InventoryRepository,
	ledger *Ledger,
	logger *logging.Logger,
) *SerialTracker {
	return &SerialTracker{
		serializers: serializers,
		serials:     serials,
		assets:      assets,
		inventory:   inventory,
		ledger:      ledger,
		logger:      logger.WithComponent("serial-tracker"),
	}
}

// BuildCache groups the counted SKUs of the receipt by serializer
func (t *SerialTracker) BuildCache(ctx context.Context, order *domain.Order, receipt *domain.Receipt, dest *domain.Station) ([]*domain.SerialCacheItem, error) {
	serializers, err := t.serializers.ForSchema(ctx, order.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load serializers for %s: %w", order.Schema, err)
	}

	items := make([]*domain.SerialCacheItem, 0, len(serializers))
	for _, serializer := range serializers {
		item := domain.NewSerialCacheItem(order.Schema, serializer, dest.ID)

		for _, sku := range order.SKUs() {
			count := receipt.CountedQuantity(sku)
			if count <= 0 {
				continue
			}

			entry := item.Scan(sku, count, receipt.Serials[sku])
			if id, ok := order.Meta.VendorNodes[sku]; ok {
				entry.AddNode(id)
			}

			if item.Unique && len(entry.Nodes) == 0 {
				node, err := t.inventory.FindBySKU(ctx, sku, order.Schema, order.To)
				if err != nil {
					return nil, fmt.Errorf("failed to backfill node for %s: %w", sku, err)
				}
				if node != nil {
					entry.AddNode(node.ID)
				}
			}
		}

		items = append(items, item)
	}

	return items, nil
}

// ManageSerials applies the cache. Per-SKU failures are logged and do not
// undo earlier steps. The returned references describe every applied effect.
func (t *SerialTracker) ManageSerials(ctx context.Context, order *domain.Order, items []*domain.SerialCacheItem) ([]domain.SerialReference, error) {
	var refs []domain.SerialReference
	var errs []error

	for _, item := range items {
		skus := make([]string, 0, len(item.SKUs))
		for sku := range item.SKUs {
			skus = append(skus, sku)
		}
		sort.Strings(skus)

		for _, sku := range skus {
			entry := item.SKUs[sku]

			var applied []domain.SerialReference
			var err error
			if item.Unique {
				applied, err = t.manageUnique(ctx, order, item, sku, entry)
			} else {
				applied, err = t.managePooled(ctx, order, item, sku, entry)
			}
			refs = append(refs, applied...)

			if err != nil {
				t.logger.WithError(err).Error("Serial reconciliation failed",
					"orderId", order.ID,
					"serializer", item.Serializer,
					"sku", sku,
				)
				errs = append(errs, err)
			}
		}
	}

	return refs, errors.Join(errs...)
}

func (t *SerialTracker) resolveNode(ctx context.Context, order *domain.Order, item *domain.SerialCacheItem, sku string, entry *domain.SerialSKUEntry) (*domain.InventoryNode, error) {
	if len(entry.Nodes) > 0 {
		node, err := t.inventory.FindByID(ctx, entry.Nodes[0], item.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to load node %s: %w", entry.Nodes[0].Hex(), err)
		}
		if node != nil {
			return node, nil
		}
	}
	return t.ledger.EnsureNode(ctx, sku, item.Schema, order.To, nil)
}

func (t *SerialTracker) newLink(order *domain.Order, item *domain.SerialCacheItem, node *domain.InventoryNode, sku string, entry *domain.SerialSKUEntry) *domain.NodeSerial {
	return &domain.NodeSerial{
		ID:                primitive.NewObjectID(),
		PossessedByNode:   node.ID,
		OwnedByNode:       item.OwnedByNode,
		OwnedBySchema:     item.OwnedBySchema,
		PossessedBySchema: item.Schema,
		Quantity:          entry.Count,
		ViaParam:          item.ViaParam,
		SKU:               sku,
		Serials:           entry.Serials,
		Order:             order.ID,
	}
}

func (t *SerialTracker) manageUnique(ctx context.Context, order *domain.Order, item *domain.SerialCacheItem, sku string, entry *domain.SerialSKUEntry) ([]domain.SerialReference, error) {
	node, err := t.resolveNode(ctx, order, item, sku, entry)
	if err != nil {
		return nil, err
	}

	link := t.newLink(order, item, node, sku, entry)
	link.Serial = uuid.New().String()
	if err := t.serials.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to create unique serial for %s: %w", sku, err)
	}

	refs := []domain.SerialReference{{
		Kind:     domain.SerialReferenceLink,
		ID:       link.ID,
		SKU:      sku,
		ViaParam: item.ViaParam,
		Node:     node.ID,
	}}

	if !node.IsAsset {
		return refs, nil
	}

	assets, err := t.findAssets(ctx, order, sku, entry)
	if err != nil {
		return refs, err
	}

	var errs []error
	for _, asset := range assets {
		if err := t.assets.Rebind(ctx, asset.ID, order.To, node.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to rebind asset %s: %w", asset.ID.Hex(), err))
			continue
		}
		refs = append(refs, domain.SerialReference{
			Kind:    domain.SerialReferenceAsset,
			ID:      asset.ID,
			SKU:     sku,
			Station: asset.Station,
			Node:    asset.Node,
		})
	}

	return refs, errors.Join(errs...)
}

// findAssets matches assets by serial, falling back to the SKU at the source
func (t *SerialTracker) findAssets(ctx context.Context, order *domain.Order, sku string, entry *domain.SerialSKUEntry) ([]*domain.StationAsset, error) {
	var assets []*domain.StationAsset
	for _, serial := range entry.Serials {
		asset, err := t.assets.FindBySerial(ctx, serial)
		if err != nil {
			return nil, fmt.Errorf("failed to find asset %s: %w", serial, err)
		}
		if asset != nil {
			assets = append(assets, asset)
		}
	}
	if len(assets) > 0 {
		return assets, nil
	}

	bySKU, err := t.assets.FindBySKU(ctx, sku, order.From)
	if err != nil {
		return nil, fmt.Errorf("failed to find assets for %s at %s: %w", sku, order.From, err)
	}
	if len(bySKU) > entry.Count {
		bySKU = bySKU[:entry.Count]
	}
	return bySKU, nil
}

func (t *SerialTracker) managePooled(ctx context.Context, order *domain.Order, item *domain.SerialCacheItem, sku string, entry *domain.SerialSKUEntry) ([]domain.SerialReference, error) {
	if len(entry.Nodes) == 0 {
		node, err := t.resolveNode(ctx, order, item, sku, entry)
		if err != nil {
			return nil, err
		}
		link := t.newLink(order, item, node, sku, entry)
		if err := t.serials.Create(ctx, link); err != nil {
			return nil, fmt.Errorf("failed to create serial link for %s: %w", sku, err)
		}
		return []domain.SerialReference{{
			Kind:     domain.SerialReferenceLink,
			ID:       link.ID,
			SKU:      sku,
			ViaParam: item.ViaParam,
			Node:     node.ID,
		}}, nil
	}

	var refs []domain.SerialReference
	var errs []error
	for _, nodeID := range entry.Nodes {
		link, created, err := t.serials.FindOrCreate(ctx, domain.SerialCriteria{
			PossessedByNode:   nodeID,
			OwnedByNode:       item.OwnedByNode,
			OwnedBySchema:     item.OwnedBySchema,
			PossessedBySchema: item.Schema,
			ViaParam:          item.ViaParam,
			SKU:               sku,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to find or create serial link for %s: %w", sku, err))
			continue
		}
		if created {
			refs = append(refs, domain.SerialReference{
				Kind:     domain.SerialReferenceLink,
				ID:       link.ID,
				SKU:      sku,
				ViaParam: item.ViaParam,
				Node:     nodeID,
			})
		}

		rows, err := t.serials.AtomicIncrementQuantity(ctx, nodeID, item.ViaParam, entry.Count)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to increment serial quantity for %s: %w", sku, err))
			continue
		}
		if rows == 0 {
			errs = append(errs, fmt.Errorf("serial increment for %s matched no rows", sku))
			continue
		}
		refs = append(refs, domain.SerialReference{
			Kind:     domain.SerialReferenceIncrement,
			ID:       link.ID,
			SKU:      sku,
			ViaParam: item.ViaParam,
			Delta:    entry.Count,
			Node:     nodeID,
		})
	}

	return refs, errors.Join(errs...)
}

// Revert undoes recorded serial effects, newest first
func (t *SerialTracker) Revert(ctx context.Context, order *domain.Order) error {
	var errs []error
	refs := order.Meta.SerialReferences

	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		var err error
		switch ref.Kind {
		case domain.SerialReferenceLink:
			err = t.serials.Delete(ctx, ref.ID)
		case domain.SerialReferenceIncrement:
			_, err = t.serials.AtomicIncrementQuantity(ctx, ref.Node, ref.ViaParam, -ref.Delta)
		case domain.SerialReferenceAsset:
			err = t.assets.Rebind(ctx, ref.ID, ref.Station, ref.Node)
		}
		if err != nil {
			t.logger.WithError(err).Error("Failed to revert serial reference",
				"orderId", order.ID,
				"kind", string(ref.Kind),
				"id", ref.ID.Hex(),
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
