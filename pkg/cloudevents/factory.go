package cloudevents

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/transfer-service/pkg/logging"
)

// EventFactory creates CloudEvents for transfer domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new WMSCloudEvent with the given parameters.
// The correlation id is taken from the context when present.
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *WMSCloudEvent {
	event := &WMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]interface{}),
	}

	if ctx != nil {
		if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
			event.CorrelationID = v
		}
	}

	return event
}

// CreateOrderChangedEvent creates the broadcast event for one station channel
func (f *EventFactory) CreateOrderChangedEvent(
	ctx context.Context,
	channel string,
	data OrderChangedData,
) *WMSCloudEvent {
	id := strconv.FormatInt(data.OrderID, 10)
	event := f.CreateEvent(ctx, TransferOrderChanged, "transfer-order/"+id, data)
	event.OrderID = id
	event.Channel = channel
	return event
}

// CreateLowStockAlertEvent creates a LowStockAlert event
func (f *EventFactory) CreateLowStockAlertEvent(
	ctx context.Context,
	data LowStockAlertData,
) *WMSCloudEvent {
	return f.CreateEvent(ctx, LowStockAlert, "inventory/"+data.Schema+"/"+data.SKU, data)
}
