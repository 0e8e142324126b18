// Package notify writes station broadcasts and stock alerts to the outbox.
// The outbox publisher relays them to Kafka.
package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/cloudevents"
	"github.com/wms-platform/transfer-service/pkg/kafka"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/outbox"
)

// Bus implements the station notification bus
type Bus struct {
	outbox       outbox.Writer
	eventFactory *cloudevents.EventFactory
	logger       *logging.Logger
}

// NewBus creates a new Bus
func NewBus(writer outbox.Writer, eventFactory *cloudevents.EventFactory, logger *logging.Logger) *Bus {
	return &Bus{
		outbox:       writer,
		eventFactory: eventFactory,
		logger:       logger.WithComponent("notification-bus"),
	}
}

// Broadcast queues one order-changed event for a station channel
func (b *Bus) Broadcast(ctx context.Context, channel string, payload cloudevents.OrderChangedData) error {
	event := b.eventFactory.CreateOrderChangedEvent(ctx, channel, payload)

	outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(
		strconv.FormatInt(payload.OrderID, 10),
		"TransferOrder",
		kafka.Topics.TransferChanges,
		event,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	if err := b.outbox.SaveAll(ctx, []*outbox.OutboxEvent{outboxEvent}); err != nil {
		return fmt.Errorf("failed to queue broadcast for %s: %w", channel, err)
	}

	b.logger.Debug("Broadcast queued",
		"channel", channel,
		"orderId", payload.OrderID,
		"state", payload.State,
	)
	return nil
}

// StockNotifier raises low-stock alerts
type StockNotifier struct {
	outbox       outbox.Writer
	eventFactory *cloudevents.EventFactory
	logger       *logging.Logger
}

// NewStockNotifier creates a new StockNotifier
func NewStockNotifier(writer outbox.Writer, eventFactory *cloudevents.EventFactory, logger *logging.Logger) *StockNotifier {
	return &StockNotifier{
		outbox:       writer,
		eventFactory: eventFactory,
		logger:       logger.WithComponent("stock-notifier"),
	}
}

// Evaluate queues an alert when the node sits at or under its alarm threshold
func (n *StockNotifier) Evaluate(ctx context.Context, node *domain.InventoryNode, delta int) error {
	if !node.AtOrBelowAlarm() {
		return nil
	}

	event := n.eventFactory.CreateLowStockAlertEvent(ctx, cloudevents.LowStockAlertData{
		NodeID:         node.ID.Hex(),
		Schema:         node.Schema,
		Station:        node.Station,
		SKU:            node.SKU,
		Quantity:       node.Quantity,
		AlarmThreshold: node.AlarmThreshold,
		Delta:          delta,
	})

	outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(node.ID.Hex(), "InventoryNode", kafka.Topics.InventoryEvents, event)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	if err := n.outbox.SaveAll(ctx, []*outbox.OutboxEvent{outboxEvent}); err != nil {
		return fmt.Errorf("failed to queue low stock alert: %w", err)
	}

	n.logger.Warn("Low stock",
		"sku", node.SKU,
		"station", node.Station,
		"quantity", node.Quantity,
		"alarmThreshold", node.AlarmThreshold,
	)
	return nil
}
