package api

import (
	"github.com/shopspring/decimal"

	"github.com/wms-platform/transfer-service/internal/application"
)

// OrderItemRequest is one ordered line
type OrderItemRequest struct {
	ItemID   int64  `json:"itemId"`
	SKU      string `json:"sku" binding:"required,sku"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

// FeesRequest declares the fees carried by an order
type FeesRequest struct {
	Taxes          decimal.Decimal `json:"taxes"`
	ServiceFees    decimal.Decimal `json:"serviceFees"`
	CustomsFees    decimal.Decimal `json:"customsFees"`
	AdditionalFees decimal.Decimal `json:"additionalFees"`
	Currency       string          `json:"currency" binding:"omitempty,len=3"`
}

// CreateOrderRequest is the request body for creating a transfer order
type CreateOrderRequest struct {
	ID            int64              `json:"id" binding:"gte=0"`
	TransactionID string             `json:"transactionId"`
	Scope         string             `json:"scope" binding:"required,scope"`
	From          string             `json:"from" binding:"required,station_code"`
	To            string             `json:"to" binding:"required,station_code,nefield=From"`
	Schema        string             `json:"schema"`
	Items         []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Fees          *FeesRequest       `json:"fees"`
}

// ApproveCostRequest signs off an evaluated cost
type ApproveCostRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Memo   string           `json:"memo" binding:"max=500"`
}

// DispatchRequest records the carrier hand-off
type DispatchRequest struct {
	Carrier        string `json:"carrier" binding:"required"`
	TrackingNumber string `json:"trackingNumber" binding:"required"`
}

// ReceiptLineRequest is one scanned line of a package
type ReceiptLineRequest struct {
	SKU      string           `json:"sku" binding:"required,sku"`
	Quantity int              `json:"quantity" binding:"gte=0"`
	Serials  []string         `json:"serials" binding:"omitempty,dive,serial"`
	UnitCost *decimal.Decimal `json:"unitCost"`
}

// ReceiptRequest appends a package sub-receipt
type ReceiptRequest struct {
	Package       string               `json:"package" binding:"required"`
	Items         []ReceiptLineRequest `json:"items" binding:"omitempty,dive"`
	CountedItems  []ReceiptLineRequest `json:"countedItems" binding:"omitempty,dive"`
	BackupSerials map[string][]string  `json:"backupSerials"`
}

// ReturnRequest declares returned goods
type ReturnRequest struct {
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Replacement    bool               `json:"replacement"`
	TrackingSlug   string             `json:"trackingSlug"`
	TrackingNumber string             `json:"trackingNumber"`
	Approver       string             `json:"approver"`
}

// RejectRequest rejects an order
type RejectRequest struct {
	Memo string `json:"memo" binding:"max=500"`
}

func toItemInputs(items []OrderItemRequest) []application.OrderItemInput {
	inputs := make([]application.OrderItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, application.OrderItemInput{
			ItemID:   item.ItemID,
			SKU:      item.SKU,
			Quantity: item.Quantity,
		})
	}
	return inputs
}

func toReceiptInputs(lines []ReceiptLineRequest) []application.ReceiptLineInput {
	inputs := make([]application.ReceiptLineInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, application.ReceiptLineInput{
			SKU:      line.SKU,
			Quantity: line.Quantity,
			Serials:  line.Serials,
			UnitCost: line.UnitCost,
		})
	}
	return inputs
}

func (r *FeesRequest) toInput() *application.FeesInput {
	if r == nil {
		return nil
	}
	return &application.FeesInput{
		Taxes:          r.Taxes,
		ServiceFees:    r.ServiceFees,
		CustomsFees:    r.CustomsFees,
		AdditionalFees: r.AdditionalFees,
		Currency:       r.Currency,
	}
}
