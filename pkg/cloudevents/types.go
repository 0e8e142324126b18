package cloudevents

import (
	"time"
)

// EventType constants for transfer domain events
const (
	// Order lifecycle events
	TransferOrderCreated     = "wms.transfer.order-created"
	TransferOrderApproved    = "wms.transfer.order-approved"
	TransferOrderShipped     = "wms.transfer.order-shipped"
	TransferOrderDispatched  = "wms.transfer.order-dispatched"
	TransferOrderReceived    = "wms.transfer.order-received"
	TransferOrderClosed      = "wms.transfer.order-closed"
	TransferOrderRejected    = "wms.transfer.order-rejected"
	TransferOrderReturned    = "wms.transfer.return-requested"
	TransferOrderEvaluation  = "wms.transfer.evaluation-requested"
	TransferOrderCostApprove = "wms.transfer.cost-approved"
	TransferOrderRemoved     = "wms.transfer.order-removed"

	// Broadcast to station channels
	TransferOrderChanged = "wms.transfer.order-changed"

	// Inventory events
	LowStockAlert = "wms.inventory.low-stock-alert"
)

// Source constants for event sources
const (
	SourceTransfer = "/wms/transfer-service"
)

// Extension attribute names
const (
	ExtCorrelationID = "wmscorrelationid"
	ExtOrderID       = "wmsorderid"
	ExtChannel       = "wmschannel"
)

// WMSCloudEvent represents a CloudEvents v1.0 compliant event
type WMSCloudEvent struct {
	SpecVersion     string                 `json:"specversion"`
	Type            string                 `json:"type"`
	Source          string                 `json:"source"`
	Subject         string                 `json:"subject,omitempty"`
	ID              string                 `json:"id"`
	Time            time.Time              `json:"time"`
	DataContentType string                 `json:"datacontenttype"`
	Data            interface{}            `json:"data"`
	Extensions      map[string]interface{} `json:"-"`

	CorrelationID string `json:"wmscorrelationid,omitempty"`
	OrderID       string `json:"wmsorderid,omitempty"`
	Channel       string `json:"wmschannel,omitempty"`
}

// OrderChangedData is the payload broadcast to station channels after a transition
type OrderChangedData struct {
	OrderID       int64     `json:"orderId"`
	TransactionID string    `json:"transactionId"`
	State         string    `json:"state"`
	LastState     string    `json:"lastState,omitempty"`
	Scope         string    `json:"scope"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ChangedAt     time.Time `json:"changedAt"`
}

// LowStockAlertData is emitted when a node drops to its alarm threshold
type LowStockAlertData struct {
	NodeID         string `json:"nodeId"`
	Schema         string `json:"schema"`
	Station        string `json:"station"`
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	AlarmThreshold int    `json:"alarmThreshold"`
	Delta          int    `json:"delta"`
}
