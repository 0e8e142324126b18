package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MetaPatch holds the meta fields written by background jobs.
// Nil fields are left as stored.
type MetaPatch struct {
	FinalCost        *decimal.Decimal
	FinalCostDetails *FinalCostDetails
	Variances        []Variance
	SerialReferences []SerialReference
}

// IsEmpty reports whether the patch carries no field
func (p MetaPatch) IsEmpty() bool {
	return p.FinalCost == nil && p.FinalCostDetails == nil && p.Variances == nil && p.SerialReferences == nil
}

// Meta is the typed side-record of an order
type Meta struct {
	LastState        State                         `bson:"last_state" json:"last_state"`
	ItemsCount       int                           `bson:"itemsCount" json:"itemsCount"`
	Currency         string                        `bson:"currency,omitempty" json:"currency,omitempty"`
	ProjectedCost    *ProjectedCost                `bson:"projected_cost,omitempty" json:"projected_cost,omitempty"`
	ItemCosts        map[string]decimal.Decimal    `bson:"item_costs,omitempty" json:"item_costs,omitempty"`
	FinalCost        *decimal.Decimal              `bson:"final_cost,omitempty" json:"final_cost,omitempty"`
	FinalCostDetails *FinalCostDetails             `bson:"final_cost_details,omitempty" json:"final_cost_details,omitempty"`
	Fees             *Fees                         `bson:"fees,omitempty" json:"fees,omitempty"`
	Variances        []Variance                    `bson:"variances,omitempty" json:"variances,omitempty"`
	TrackingReceipt  *TrackingReceipt              `bson:"trackingReceipt,omitempty" json:"trackingReceipt,omitempty"`
	ReturnDetails    *ReturnDetails                `bson:"return_details,omitempty" json:"return_details,omitempty"`
	SerialReferences []SerialReference             `bson:"serial_references,omitempty" json:"serial_references,omitempty"`
	CostApprovals    []CostApproval                `bson:"cost_approvals,omitempty" json:"cost_approvals,omitempty"`
	Measurements     *Measurements                 `bson:"measurements,omitempty" json:"measurements,omitempty"`
	VendorNodes      map[string]primitive.ObjectID `bson:"vendor_nodes,omitempty" json:"vendor_nodes,omitempty"`
	Tracking         *Tracking                     `bson:"tracking,omitempty" json:"tracking,omitempty"`
	RejectionMemo    string                        `bson:"rejection_memo,omitempty" json:"rejection_memo,omitempty"`
	ApprovedAt       *time.Time                    `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	CompletedAt      *time.Time                    `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// ProjectedCost is the cost snapshot taken at creation
type ProjectedCost struct {
	Total    decimal.Decimal            `bson:"total" json:"total"`
	Currency string                     `bson:"currency" json:"currency"`
	PerUnit  map[string]decimal.Decimal `bson:"per_unit" json:"per_unit"`
}

// Fees are the extra charges declared on an order, in their own currency
type Fees struct {
	Taxes          decimal.Decimal `bson:"taxes" json:"taxes"`
	ServiceFees    decimal.Decimal `bson:"service_fees" json:"service_fees"`
	CustomsFees    decimal.Decimal `bson:"customs_fees" json:"customs_fees"`
	AdditionalFees decimal.Decimal `bson:"additional_fees" json:"additional_fees"`
	Currency       string          `bson:"currency" json:"currency"`
}

// Total sums all fee components
func (f *Fees) Total() decimal.Decimal {
	if f == nil {
		return decimal.Zero
	}
	return f.Taxes.Add(f.ServiceFees).Add(f.CustomsFees).Add(f.AdditionalFees)
}

// FinalCostDetails breaks down the final cost after conversion
type FinalCostDetails struct {
	Items          decimal.Decimal `bson:"items" json:"items"`
	Taxes          decimal.Decimal `bson:"taxes" json:"taxes"`
	ServiceFees    decimal.Decimal `bson:"service_fees" json:"service_fees"`
	CustomsFees    decimal.Decimal `bson:"customs_fees" json:"customs_fees"`
	AdditionalFees decimal.Decimal `bson:"additional_fees" json:"additional_fees"`
	Currency       string          `bson:"currency" json:"currency"`
	Invoiced       bool            `bson:"invoiced" json:"invoiced"`
	InvoiceError   string          `bson:"invoice_error,omitempty" json:"invoice_error,omitempty"`
}

// Variance is the per-SKU summary kept on the order
type Variance struct {
	SKU      string             `bson:"sku" json:"sku"`
	Node     primitive.ObjectID `bson:"node" json:"node"`
	Quantity int                `bson:"quantity" json:"quantity"`
	Value    decimal.Decimal    `bson:"value" json:"value"`
}

// ReceiptLine is one SKU line of a package receipt
type ReceiptLine struct {
	SKU      string           `bson:"sku" json:"sku"`
	Quantity int              `bson:"quantity" json:"quantity"`
	Serials  []string         `bson:"serials,omitempty" json:"serials,omitempty"`
	UnitCost *decimal.Decimal `bson:"unit_cost,omitempty" json:"unit_cost,omitempty"`
}

// PackageReceipt is the sub-receipt of one package
type PackageReceipt struct {
	Package      string        `bson:"package" json:"package"`
	Items        []ReceiptLine `bson:"items,omitempty" json:"items,omitempty"`
	CountedItems []ReceiptLine `bson:"countedItems,omitempty" json:"countedItems,omitempty"`
}

// TrackingReceipt accumulates package receipts until completion
type TrackingReceipt struct {
	Packages      []PackageReceipt    `bson:"packages" json:"packages"`
	BackupSerials map[string][]string `bson:"backup_serials,omitempty" json:"backup_serials,omitempty"`
}

// ReturnDetails is the declared return and replacement request
type ReturnDetails struct {
	Items            []OrderItem `bson:"items" json:"items"`
	Total            int         `bson:"total" json:"total"`
	Replacement      bool        `bson:"replacement" json:"replacement"`
	TrackingSlug     string      `bson:"tracking_slug" json:"tracking_slug"`
	TrackingNumber   string      `bson:"tracking_number" json:"tracking_number"`
	Requester        string      `bson:"requester,omitempty" json:"requester,omitempty"`
	Approver         string      `bson:"approver,omitempty" json:"approver,omitempty"`
	RequestedAt      time.Time   `bson:"requested_at" json:"requested_at"`
	ReplacementOrder int64       `bson:"replacement_order,omitempty" json:"replacement_order,omitempty"`
}

// ReturnedQuantity returns the declared return quantity for a SKU
func (r *ReturnDetails) ReturnedQuantity(sku string) int {
	if r == nil {
		return 0
	}
	total := 0
	for _, item := range r.Items {
		if item.SKU == sku {
			total += item.Quantity
		}
	}
	return total
}

// SerialReferenceKind identifies how a serial effect is undone
type SerialReferenceKind string

const (
	SerialReferenceLink      SerialReferenceKind = "link"
	SerialReferenceIncrement SerialReferenceKind = "increment"
	SerialReferenceAsset     SerialReferenceKind = "asset"
)

// SerialReference records one serial side effect applied by a completion
type SerialReference struct {
	Kind     SerialReferenceKind `bson:"kind" json:"kind"`
	ID       primitive.ObjectID  `bson:"id" json:"id"`
	SKU      string              `bson:"sku" json:"sku"`
	ViaParam string              `bson:"via_param,omitempty" json:"via_param,omitempty"`
	Delta    int                 `bson:"delta,omitempty" json:"delta,omitempty"`
	Station  string              `bson:"station,omitempty" json:"station,omitempty"`
	Node     primitive.ObjectID  `bson:"node,omitempty" json:"node,omitempty"`
}

// CostApproval records a sign-off during evaluation
type CostApproval struct {
	Approver   string           `bson:"approver" json:"approver"`
	Amount     *decimal.Decimal `bson:"amount,omitempty" json:"amount,omitempty"`
	Memo       string           `bson:"memo,omitempty" json:"memo,omitempty"`
	ApprovedAt time.Time        `bson:"approved_at" json:"approved_at"`
}

// Measurements is the shipping volume and weight computed at approve
type Measurements struct {
	Volume float64 `bson:"volume" json:"volume"`
	Weight float64 `bson:"weight" json:"weight"`
}

// Tracking holds carrier details recorded at dispatch
type Tracking struct {
	Carrier        string    `bson:"carrier" json:"carrier"`
	TrackingNumber string    `bson:"tracking_number" json:"tracking_number"`
	DispatchedAt   time.Time `bson:"dispatched_at" json:"dispatched_at"`
}

// Validate checks the meta invariants against the order items
func (m *Meta) Validate(items []OrderItem) error {
	if m.LastState != "" && !m.LastState.IsValid() {
		return fmt.Errorf("%w: unknown last_state %q", ErrInvalidMeta, m.LastState)
	}

	if m.ItemsCount != TotalQuantity(items) {
		return fmt.Errorf("%w: itemsCount %d does not match items total %d", ErrInvalidMeta, m.ItemsCount, TotalQuantity(items))
	}

	if m.TrackingReceipt != nil {
		for _, pkg := range m.TrackingReceipt.Packages {
			if err := validateLines(pkg.Items); err != nil {
				return err
			}
			if err := validateLines(pkg.CountedItems); err != nil {
				return err
			}
		}
	}

	if r := m.ReturnDetails; r != nil {
		if r.Total != TotalQuantity(r.Items) {
			return fmt.Errorf("%w: return total %d does not match returned items", ErrInvalidMeta, r.Total)
		}
	}

	return nil
}

func validateLines(lines []ReceiptLine) error {
	for _, line := range lines {
		if line.SKU == "" {
			return fmt.Errorf("%w: %v", ErrInvalidReceipt, ErrMissingSKU)
		}
		if line.Quantity < 0 {
			return fmt.Errorf("%w: negative quantity for %s", ErrInvalidReceipt, line.SKU)
		}
		if line.UnitCost != nil && line.UnitCost.IsNegative() {
			return fmt.Errorf("%w: negative unit cost for %s", ErrInvalidReceipt, line.SKU)
		}
	}
	return nil
}
