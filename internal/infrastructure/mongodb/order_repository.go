package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/cloudevents"
	"github.com/wms-platform/transfer-service/pkg/kafka"
	pkgmongo "github.com/wms-platform/transfer-service/pkg/mongodb"
	"github.com/wms-platform/transfer-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/transfer-service/pkg/outbox/mongodb"
)

const (
	ordersCollection = "transfer_orders"
	orderAggregate   = "TransferOrder"
)

// OrderRepository implements domain.OrderRepository using MongoDB
type OrderRepository struct {
	collection   *mongo.Collection
	db           *mongo.Database
	outboxRepo   *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *mongo.Database, eventFactory *cloudevents.EventFactory) *OrderRepository {
	collection := db.Collection(ordersCollection)
	outboxRepo := outboxMongo.NewOutboxRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "transaction_id", Value: 1}},
		},
		{
			Keys: bson.D{
				{Key: "state", Value: 1},
				{Key: "updatedAt", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "from", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "to", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "parent", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, _ = collection.Indexes().CreateMany(ctx, indexes)
	_ = outboxRepo.EnsureIndexes(ctx)

	return &OrderRepository{
		collection:   collection,
		db:           db,
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
	}
}

// GetOutboxRepository returns the outbox repository written alongside orders
func (r *OrderRepository) GetOutboxRepository() *outboxMongo.OutboxRepository {
	return r.outboxRepo
}

// NextID allocates the next order id from the counters collection
func (r *OrderRepository) NextID(ctx context.Context) (int64, error) {
	return pkgmongo.NextSequence(ctx, r.db, ordersCollection)
}

// Save persists an order with its domain events in a single transaction
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	if err := order.Meta.Validate(order.Items); err != nil {
		return fmt.Errorf("refusing to save order %d: %w", order.ID, err)
	}
	order.UpdatedAt = time.Now().UTC()

	err := r.withOutbox(ctx, order, func(sessCtx mongo.SessionContext) error {
		opts := options.Replace().SetUpsert(true)
		if _, err := r.collection.ReplaceOne(sessCtx, bson.M{"_id": order.ID}, order, opts); err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	order.ClearDomainEvents()
	return nil
}

// FindByID finds an order by its id
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	var order domain.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := order.Meta.Validate(order.Items); err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	return &order, nil
}

// UpdateMeta writes the job-owned meta fields with $set so concurrent
// transitions on state and items are not overwritten
func (r *OrderRepository) UpdateMeta(ctx context.Context, id int64, patch domain.MetaPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.FinalCost != nil {
		set["meta.final_cost"] = patch.FinalCost
	}
	if patch.FinalCostDetails != nil {
		set["meta.final_cost_details"] = patch.FinalCostDetails
	}
	if patch.Variances != nil {
		set["meta.variances"] = patch.Variances
	}
	if patch.SerialReferences != nil {
		set["meta.serial_references"] = patch.SerialReferences
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update order meta: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}
	return nil
}

// Delete removes an order and writes its pending events to the outbox
func (r *OrderRepository) Delete(ctx context.Context, order *domain.Order) error {
	err := r.withOutbox(ctx, order, func(sessCtx mongo.SessionContext) error {
		if _, err := r.collection.DeleteOne(sessCtx, bson.M{"_id": order.ID}); err != nil {
			return fmt.Errorf("failed to delete order: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	order.ClearDomainEvents()
	return nil
}

// SweepTimeouts moves orders idle since before into TIMEOUT
func (r *OrderRepository) SweepTimeouts(ctx context.Context, states []domain.State, before time.Time) (int64, error) {
	if len(states) == 0 {
		return 0, nil
	}

	filter := bson.M{
		"state":     bson.M{"$in": states},
		"updatedAt": bson.M{"$lt": before},
	}
	update := pkgmongo.BuildUpdateWithTimestamp(bson.M{
		"state":           domain.StateTimeout,
		"meta.last_state": domain.StateTimeout,
	})

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep timed out orders: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *OrderRepository) withOutbox(ctx context.Context, order *domain.Order, write func(sessCtx mongo.SessionContext) error) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if err := write(sessCtx); err != nil {
			return nil, err
		}

		outboxEvents, err := r.toOutboxEvents(sessCtx, order)
		if err != nil {
			return nil, err
		}
		if len(outboxEvents) > 0 {
			if err := r.outboxRepo.SaveAll(sessCtx, outboxEvents); err != nil {
				return nil, fmt.Errorf("failed to save outbox events: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

func (r *OrderRepository) toOutboxEvents(ctx context.Context, order *domain.Order) ([]*outbox.OutboxEvent, error) {
	domainEvents := order.DomainEvents()
	if len(domainEvents) == 0 {
		return nil, nil
	}

	aggregateID := strconv.FormatInt(order.ID, 10)
	events := make([]*outbox.OutboxEvent, 0, len(domainEvents))
	for _, event := range domainEvents {
		cloudEvent := r.eventFactory.CreateEvent(ctx, event.EventType(), "transfer-order/"+aggregateID, event)
		cloudEvent.OrderID = aggregateID

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(
			aggregateID,
			orderAggregate,
			kafka.Topics.TransferEvents,
			cloudEvent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		events = append(events, outboxEvent)
	}
	return events, nil
}
