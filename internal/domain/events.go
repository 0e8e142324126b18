package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents a domain event
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// BaseDomainEvent contains common event fields
type BaseDomainEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateId string    `json:"aggregateId"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseDomainEvent) EventType() string     { return e.Type }
func (e BaseDomainEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseDomainEvent) AggregateID() string   { return e.AggregateId }

func newBaseEvent(eventType string, orderID int64) BaseDomainEvent {
	return BaseDomainEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		AggregateId: strconv.FormatInt(orderID, 10),
		Timestamp:   time.Now().UTC(),
	}
}

// OrderCreatedEvent is raised when a transfer order is created
type OrderCreatedEvent struct {
	BaseDomainEvent
	OrderID       int64       `json:"orderId"`
	TransactionID string      `json:"transactionId"`
	Scope         Scope       `json:"scope"`
	From          string      `json:"from"`
	To            string      `json:"to"`
	Items         []OrderItem `json:"items"`
	Parent        int64       `json:"parent,omitempty"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(order *Order) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent: newBaseEvent("wms.transfer.order-created", order.ID),
		OrderID:         order.ID,
		TransactionID:   order.TransactionID,
		Scope:           order.Scope,
		From:            order.From,
		To:              order.To,
		Items:           order.Items,
		Parent:          order.Parent,
	}
}

var transitionEventTypes = map[State]string{
	StatePending:    "wms.transfer.cost-approved",
	StateEvaluating: "wms.transfer.evaluation-requested",
	StateApproved:   "wms.transfer.order-approved",
	StateProcessing: "wms.transfer.order-shipped",
	StateShipped:    "wms.transfer.order-dispatched",
	StateReceived:   "wms.transfer.order-received",
	StateComplete:   "wms.transfer.order-closed",
	StateRejected:   "wms.transfer.order-rejected",
}

// OrderTransitionedEvent is raised on every genuine state change
type OrderTransitionedEvent struct {
	BaseDomainEvent
	OrderID       int64  `json:"orderId"`
	TransactionID string `json:"transactionId"`
	From          State  `json:"fromState"`
	To            State  `json:"toState"`
	Actor         string `json:"actor,omitempty"`
	Memo          string `json:"memo,omitempty"`
}

// NewOrderTransitionedEvent creates the event for a from -> to change
func NewOrderTransitionedEvent(order *Order, from State, actor, memo string) *OrderTransitionedEvent {
	return &OrderTransitionedEvent{
		BaseDomainEvent: newBaseEvent(transitionEventTypes[order.State], order.ID),
		OrderID:         order.ID,
		TransactionID:   order.TransactionID,
		From:            from,
		To:              order.State,
		Actor:           actor,
		Memo:            memo,
	}
}

// ReturnRequestedEvent is raised when a return is declared
type ReturnRequestedEvent struct {
	BaseDomainEvent
	OrderID        int64       `json:"orderId"`
	Items          []OrderItem `json:"items"`
	Total          int         `json:"total"`
	Replacement    bool        `json:"replacement"`
	TrackingSlug   string      `json:"trackingSlug"`
	TrackingNumber string      `json:"trackingNumber"`
}

// NewReturnRequestedEvent creates a new ReturnRequestedEvent
func NewReturnRequestedEvent(order *Order) *ReturnRequestedEvent {
	r := order.Meta.ReturnDetails
	return &ReturnRequestedEvent{
		BaseDomainEvent: newBaseEvent("wms.transfer.return-requested", order.ID),
		OrderID:         order.ID,
		Items:           r.Items,
		Total:           r.Total,
		Replacement:     r.Replacement,
		TrackingSlug:    r.TrackingSlug,
		TrackingNumber:  r.TrackingNumber,
	}
}

// OrderRemovedEvent is raised once a deleted order has been reverted
type OrderRemovedEvent struct {
	BaseDomainEvent
	OrderID       int64  `json:"orderId"`
	TransactionID string `json:"transactionId"`
	State         State  `json:"state"`
}

// NewOrderRemovedEvent creates a new OrderRemovedEvent
func NewOrderRemovedEvent(order *Order) *OrderRemovedEvent {
	return &OrderRemovedEvent{
		BaseDomainEvent: newBaseEvent("wms.transfer.order-removed", order.ID),
		OrderID:         order.ID,
		TransactionID:   order.TransactionID,
		State:           order.State,
	}
}
