package domain

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// NextID allocates the next numeric order id
	NextID(ctx context.Context) (int64, error)

	// Save upserts the order and writes its domain events to the outbox
	Save(ctx context.Context, order *Order) error

	// FindByID returns nil, nil when the order does not exist
	FindByID(ctx context.Context, id int64) (*Order, error)

	// UpdateMeta sets the non-nil fields of patch and leaves state and items untouched
	UpdateMeta(ctx context.Context, id int64, patch MetaPatch) error

	// Delete removes the order and writes its pending events to the outbox
	Delete(ctx context.Context, order *Order) error

	// SweepTimeouts moves orders in states idle since before to TIMEOUT
	SweepTimeouts(ctx context.Context, states []State, before time.Time) (int64, error)
}

// InventoryRepository reads and writes inventory nodes per schema
type InventoryRepository interface {
	// FindBySKU returns nil, nil when the station does not hold the SKU
	FindBySKU(ctx context.Context, sku, schema, station string) (*InventoryNode, error)
	FindByID(ctx context.Context, id primitive.ObjectID, schema string) (*InventoryNode, error)
	// FindCatalog returns the catalog root node of a SKU
	FindCatalog(ctx context.Context, sku, schema string) (*InventoryNode, error)
	Save(ctx context.Context, node *InventoryNode) error
	// Clone persists a copy of source at station with zero stock
	Clone(ctx context.Context, source *InventoryNode, station string) (*InventoryNode, error)
}

// StationDirectory resolves station codes
type StationDirectory interface {
	Resolve(ctx context.Context, code string) (*Station, error)
	ChildrenOf(ctx context.Context, code string) ([]*Station, error)
}

// SerializerRepository lists the serializers attached to a schema
type SerializerRepository interface {
	ForSchema(ctx context.Context, schema string) ([]*Serializer, error)
}

// SerialRepository persists node serial links
type SerialRepository interface {
	FindOrCreate(ctx context.Context, criteria SerialCriteria) (*NodeSerial, bool, error)
	Create(ctx context.Context, serial *NodeSerial) error
	// AtomicIncrementQuantity adds delta to the links of node for field
	AtomicIncrementQuantity(ctx context.Context, node primitive.ObjectID, field string, delta int) (int64, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// AssetRepository finds and rebinds station assets
type AssetRepository interface {
	FindBySerial(ctx context.Context, serial string) (*StationAsset, error)
	FindBySKU(ctx context.Context, sku, station string) ([]*StationAsset, error)
	Rebind(ctx context.Context, id primitive.ObjectID, station string, node primitive.ObjectID) error
}

// VarianceRepository stores immutable variance rows
type VarianceRepository interface {
	Create(ctx context.Context, variance *ItemVariance) error
	ExistsForOrder(ctx context.Context, orderID int64) (bool, error)
	FindByOrder(ctx context.Context, orderID int64) ([]*ItemVariance, error)
}

// MovementRepository is the compensating-action log of node deltas
type MovementRepository interface {
	Record(ctx context.Context, entry *MovementEntry) error
	MarkApplied(ctx context.Context, id primitive.ObjectID) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error
	MarkReverted(ctx context.Context, id primitive.ObjectID) error
	FindApplied(ctx context.Context, orderID int64) ([]*MovementEntry, error)
	HasJob(ctx context.Context, orderID int64, job string) (bool, error)
	FindStuck(ctx context.Context, olderThan time.Time) ([]*MovementEntry, error)
}
