package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InventoryNode is one SKU held at one station within an inventory schema
type InventoryNode struct {
	ID               primitive.ObjectID  `bson:"_id" json:"id"`
	Schema           string              `bson:"schema" json:"schema"`
	Station          string              `bson:"station" json:"station"`
	SKU              string              `bson:"sku" json:"sku"`
	Name             string              `bson:"name" json:"name"`
	Quantity         int                 `bson:"quantity" json:"quantity"`
	QuantityIncoming int                 `bson:"quantity_incoming" json:"quantity_incoming"`
	QuantityOutgoing int                 `bson:"quantity_outgoing" json:"quantity_outgoing"`
	UnitCost         decimal.Decimal     `bson:"unit_cost" json:"unit_cost"`
	RetailCost       decimal.Decimal     `bson:"retail_cost" json:"retail_cost"`
	Currency         string              `bson:"currency,omitempty" json:"currency,omitempty"`
	CopyOf           *primitive.ObjectID `bson:"copy_of,omitempty" json:"copy_of,omitempty"`
	IsAsset          bool                `bson:"is_asset" json:"is_asset"`
	AlarmThreshold   int                 `bson:"alarm_threshold" json:"alarm_threshold"`
	UnitWeight       float64             `bson:"unit_weight" json:"unit_weight"`
	UnitVolume       float64             `bson:"unit_volume" json:"unit_volume"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Delta is a signed change to the three quantity columns of a node
type Delta struct {
	Quantity int `bson:"quantity" json:"quantity"`
	Incoming int `bson:"incoming" json:"incoming"`
	Outgoing int `bson:"outgoing" json:"outgoing"`
}

// IsZero reports whether the delta changes nothing
func (d Delta) IsZero() bool {
	return d.Quantity == 0 && d.Incoming == 0 && d.Outgoing == 0
}

// Invert returns the compensating delta
func (d Delta) Invert() Delta {
	return Delta{Quantity: -d.Quantity, Incoming: -d.Incoming, Outgoing: -d.Outgoing}
}

// Add combines two deltas
func (d Delta) Add(other Delta) Delta {
	return Delta{
		Quantity: d.Quantity + other.Quantity,
		Incoming: d.Incoming + other.Incoming,
		Outgoing: d.Outgoing + other.Outgoing,
	}
}

// Apply adds the delta to the node quantities
func (n *InventoryNode) Apply(d Delta) {
	n.Quantity += d.Quantity
	n.QuantityIncoming += d.Incoming
	n.QuantityOutgoing += d.Outgoing
	n.UpdatedAt = time.Now().UTC()
}

// IsClone reports whether the node was copied from a catalog node
func (n *InventoryNode) IsClone() bool {
	return n.CopyOf != nil && !n.CopyOf.IsZero()
}

// CatalogRoot returns the id of the catalog node this node descends from
func (n *InventoryNode) CatalogRoot() primitive.ObjectID {
	if n.IsClone() {
		return *n.CopyOf
	}
	return n.ID
}

// Clone copies the non-mutable fields for a new station with zero stock
func (n *InventoryNode) Clone(station string) *InventoryNode {
	root := n.CatalogRoot()
	now := time.Now().UTC()
	return &InventoryNode{
		ID:             primitive.NewObjectID(),
		Schema:         n.Schema,
		Station:        station,
		SKU:            n.SKU,
		Name:           n.Name,
		UnitCost:       n.UnitCost,
		RetailCost:     n.RetailCost,
		Currency:       n.Currency,
		CopyOf:         &root,
		IsAsset:        n.IsAsset,
		AlarmThreshold: n.AlarmThreshold,
		UnitWeight:     n.UnitWeight,
		UnitVolume:     n.UnitVolume,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AtOrBelowAlarm reports whether the node has hit its alarm threshold
func (n *InventoryNode) AtOrBelowAlarm() bool {
	return n.AlarmThreshold > 0 && n.Quantity <= n.AlarmThreshold
}
