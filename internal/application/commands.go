package application

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/transfer-service/internal/domain"
)

// CreateOrderCommand represents the command to create a new transfer order
type CreateOrderCommand struct {
	ID            int64
	TransactionID string
	Scope         string
	From          string
	To            string
	Schema        string
	Items         []OrderItemInput
	Requester     string
	Fees          *FeesInput
}

// OrderItemInput represents an order item in a command
type OrderItemInput struct {
	ItemID   int64
	SKU      string
	Quantity int
}

// FeesInput carries the fee amounts declared on an order
type FeesInput struct {
	Taxes          decimal.Decimal
	ServiceFees    decimal.Decimal
	CustomsFees    decimal.Decimal
	AdditionalFees decimal.Decimal
	Currency       string
}

// RequestEvaluationCommand sends a pending order to cost evaluation
type RequestEvaluationCommand struct {
	OrderID   int64
	Requester string
}

// ApproveCostCommand signs off the evaluated cost
type ApproveCostCommand struct {
	OrderID  int64
	Approver string
	Amount   *decimal.Decimal
	Memo     string
}

// ApproveOrderCommand approves a pending order
type ApproveOrderCommand struct {
	OrderID  int64
	Approver string
}

// ShipOrderCommand marks an approved order as picked up
type ShipOrderCommand struct {
	OrderID int64
	Actor   string
}

// DispatchOrderCommand records the carrier hand-off
type DispatchOrderCommand struct {
	OrderID        int64
	Carrier        string
	TrackingNumber string
	Actor          string
}

// ReceiptLineInput is one scanned receipt line
type ReceiptLineInput struct {
	SKU      string
	Quantity int
	Serials  []string
	UnitCost *decimal.Decimal
}

// RecordReceiptCommand appends a package sub-receipt
type RecordReceiptCommand struct {
	OrderID       int64
	Package       string
	Items         []ReceiptLineInput
	CountedItems  []ReceiptLineInput
	BackupSerials map[string][]string
}

// RequestReturnCommand declares returned goods
type RequestReturnCommand struct {
	OrderID        int64
	Items          []OrderItemInput
	Replacement    bool
	TrackingSlug   string
	TrackingNumber string
	Requester      string
	Approver       string
}

// CompleteOrderCommand receives and locks an in-transit order
type CompleteOrderCommand struct {
	OrderID int64
	Actor   string
}

// CloseOrderCommand archives a received order
type CloseOrderCommand struct {
	OrderID int64
	Actor   string
}

// RejectOrderCommand rejects a non-terminal order
type RejectOrderCommand struct {
	OrderID int64
	Actor   string
	Memo    string
}

// DeleteOrderCommand reverts and removes an order
type DeleteOrderCommand struct {
	OrderID int64
	Actor   string
}

// SweepCommand times out idle orders. A zero Now means the current time.
type SweepCommand struct {
	Now time.Time
}

// GetOrderQuery represents the query to get an order by ID
type GetOrderQuery struct {
	OrderID int64
}

// ListVariancesQuery lists the variance rows of an order
type ListVariancesQuery struct {
	OrderID int64
}

// ToDomainItems converts command items to domain items
func (cmd CreateOrderCommand) ToDomainItems() []domain.OrderItem {
	return toDomainItems(cmd.Items)
}

// ToDomainFees converts the fee input, if any
func (cmd CreateOrderCommand) ToDomainFees() *domain.Fees {
	if cmd.Fees == nil {
		return nil
	}
	return &domain.Fees{
		Taxes:          cmd.Fees.Taxes,
		ServiceFees:    cmd.Fees.ServiceFees,
		CustomsFees:    cmd.Fees.CustomsFees,
		AdditionalFees: cmd.Fees.AdditionalFees,
		Currency:       cmd.Fees.Currency,
	}
}

// ToDomainPackage converts the receipt command to a package receipt
func (cmd RecordReceiptCommand) ToDomainPackage() domain.PackageReceipt {
	return domain.PackageReceipt{
		Package:      cmd.Package,
		Items:        toReceiptLines(cmd.Items),
		CountedItems: toReceiptLines(cmd.CountedItems),
	}
}

// ToDomainDetails converts the return command to return details
func (cmd RequestReturnCommand) ToDomainDetails() domain.ReturnDetails {
	return domain.ReturnDetails{
		Items:          toDomainItems(cmd.Items),
		Replacement:    cmd.Replacement,
		TrackingSlug:   cmd.TrackingSlug,
		TrackingNumber: cmd.TrackingNumber,
		Requester:      cmd.Requester,
		Approver:       cmd.Approver,
	}
}

func toDomainItems(items []OrderItemInput) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	for i, item := range items {
		out[i] = domain.OrderItem{
			ItemID:   item.ItemID,
			SKU:      item.SKU,
			Quantity: item.Quantity,
		}
	}
	return out
}

func toReceiptLines(lines []ReceiptLineInput) []domain.ReceiptLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]domain.ReceiptLine, len(lines))
	for i, line := range lines {
		out[i] = domain.ReceiptLine{
			SKU:      line.SKU,
			Quantity: line.Quantity,
			Serials:  line.Serials,
			UnitCost: line.UnitCost,
		}
	}
	return out
}
