package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ItemVariance is the immutable ledger row for a counted-vs-shipped gap
type ItemVariance struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	Station      string             `bson:"station" json:"station"`
	Order        int64              `bson:"order" json:"order"`
	Node         primitive.ObjectID `bson:"node" json:"node"`
	SKU          string             `bson:"sku" json:"sku"`
	Quantity     int                `bson:"quantity" json:"quantity"`
	Value        decimal.Decimal    `bson:"value" json:"value"`
	InitialValue decimal.Decimal    `bson:"initial_value" json:"initial_value"`
	Currency     string             `bson:"currency" json:"currency"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// NewItemVariance computes value as quantity times the converted unit cost
func NewItemVariance(order *Order, node *InventoryNode, quantity int, unitCost, initial decimal.Decimal, currency string) *ItemVariance {
	return &ItemVariance{
		ID:           primitive.NewObjectID(),
		Station:      node.Station,
		Order:        order.ID,
		Node:         node.ID,
		SKU:          node.SKU,
		Quantity:     quantity,
		Value:        unitCost.Mul(decimal.NewFromInt(int64(quantity))),
		InitialValue: initial,
		Currency:     currency,
		CreatedAt:    time.Now().UTC(),
	}
}

// Summary returns the compact form stored on the order
func (v *ItemVariance) Summary() Variance {
	return Variance{SKU: v.SKU, Node: v.Node, Quantity: v.Quantity, Value: v.Value}
}
