package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MovementStatus tracks a ledger delta through the movement log
type MovementStatus string

const (
	MovementPending  MovementStatus = "pending"
	MovementApplied  MovementStatus = "applied"
	MovementFailed   MovementStatus = "failed"
	MovementReverted MovementStatus = "reverted"
)

// MovementEntry is one intended node delta, written before the node changes
type MovementEntry struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Order     int64              `bson:"order" json:"order"`
	Job       string             `bson:"job" json:"job"`
	Schema    string             `bson:"schema" json:"schema"`
	Station   string             `bson:"station" json:"station"`
	Node      primitive.ObjectID `bson:"node" json:"node"`
	SKU       string             `bson:"sku" json:"sku"`
	Delta     Delta              `bson:"delta" json:"delta"`
	Status    MovementStatus     `bson:"status" json:"status"`
	Error     string             `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewMovementEntry creates a pending entry for a node delta
func NewMovementEntry(orderID int64, job string, node *InventoryNode, delta Delta) *MovementEntry {
	now := time.Now().UTC()
	return &MovementEntry{
		ID:        primitive.NewObjectID(),
		Order:     orderID,
		Job:       job,
		Schema:    node.Schema,
		Station:   node.Station,
		Node:      node.ID,
		SKU:       node.SKU,
		Delta:     delta,
		Status:    MovementPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
