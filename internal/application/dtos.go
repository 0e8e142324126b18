package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderDTO represents a transfer order in application responses
type OrderDTO struct {
	ID            int64            `json:"id"`
	TransactionID string           `json:"transactionId"`
	Scope         string           `json:"scope"`
	State         string           `json:"state"`
	LastState     string           `json:"lastState"`
	From          string           `json:"from"`
	To            string           `json:"to"`
	Schema        string           `json:"schema"`
	Items         []OrderItemDTO   `json:"items"`
	ItemsCount    int              `json:"itemsCount"`
	Locked        bool             `json:"locked"`
	Parent        int64            `json:"parent,omitempty"`
	Requester     string           `json:"requester,omitempty"`
	Approver      string           `json:"approver,omitempty"`
	ProjectedCost *decimal.Decimal `json:"projectedCost,omitempty"`
	FinalCost     *decimal.Decimal `json:"finalCost,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Invoiced      bool             `json:"invoiced"`
	InvoiceError  string           `json:"invoiceError,omitempty"`
	Tracking      *TrackingDTO     `json:"tracking,omitempty"`
	Return        *ReturnDTO       `json:"return,omitempty"`
	Variances     []VarianceDTO    `json:"variances,omitempty"`
	RejectionMemo string           `json:"rejectionMemo,omitempty"`
	ApprovedAt    *time.Time       `json:"approvedAt,omitempty"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// OrderItemDTO represents an order item in responses
type OrderItemDTO struct {
	ItemID   int64  `json:"itemId,omitempty"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// TrackingDTO represents the carrier hand-off
type TrackingDTO struct {
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"trackingNumber"`
	DispatchedAt   time.Time `json:"dispatchedAt"`
}

// ReturnDTO represents declared returns
type ReturnDTO struct {
	Items            []OrderItemDTO `json:"items"`
	Total            int            `json:"total"`
	Replacement      bool           `json:"replacement"`
	TrackingSlug     string         `json:"trackingSlug"`
	TrackingNumber   string         `json:"trackingNumber"`
	ReplacementOrder int64          `json:"replacementOrder,omitempty"`
}

// VarianceDTO represents a counted-versus-shipped gap
type VarianceDTO struct {
	SKU          string           `json:"sku"`
	Node         string           `json:"node"`
	Station      string           `json:"station,omitempty"`
	Quantity     int              `json:"quantity"`
	Value        decimal.Decimal  `json:"value"`
	InitialValue *decimal.Decimal `json:"initialValue,omitempty"`
	Currency     string           `json:"currency,omitempty"`
}

// OrderCompletedResponse is returned by complete
type OrderCompletedResponse struct {
	Order       OrderDTO  `json:"order"`
	Applied     bool      `json:"applied"`
	Replacement *OrderDTO `json:"replacement,omitempty"`
}

// SweepResult reports a timeout sweep
type SweepResult struct {
	TimedOut int64     `json:"timedOut"`
	Before   time.Time `json:"before"`
}
