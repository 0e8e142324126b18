package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/transfer-service/internal/domain"
	pkgmongo "github.com/wms-platform/transfer-service/pkg/mongodb"
)

// VarianceRepository implements domain.VarianceRepository.
// Rows are insert-only and unique per (order, node).
type VarianceRepository struct {
	collection *mongo.Collection
}

// NewVarianceRepository creates a new VarianceRepository
func NewVarianceRepository(db *mongo.Database) *VarianceRepository {
	collection := db.Collection("item_variances")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "order", Value: 1},
				{Key: "node", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "station", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
	})

	return &VarianceRepository{collection: collection}
}

// Create inserts a variance row. A duplicate (order, node) is ignored.
func (r *VarianceRepository) Create(ctx context.Context, variance *domain.ItemVariance) error {
	if _, err := r.collection.InsertOne(ctx, variance); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to create variance: %w", err)
	}
	return nil
}

// ExistsForOrder reports whether any variance row was written for the order
func (r *VarianceRepository) ExistsForOrder(ctx context.Context, orderID int64) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"order": orderID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count variances: %w", err)
	}
	return count > 0, nil
}

// FindByOrder lists the variance rows of an order
func (r *VarianceRepository) FindByOrder(ctx context.Context, orderID int64) ([]*domain.ItemVariance, error) {
	opts := options.Find().SetSort(pkgmongo.SortAscending("createdAt"))
	cursor, err := r.collection.Find(ctx, bson.M{"order": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list variances: %w", err)
	}
	defer cursor.Close(ctx)

	var variances []*domain.ItemVariance
	if err := cursor.All(ctx, &variances); err != nil {
		return nil, fmt.Errorf("failed to decode variances: %w", err)
	}
	return variances, nil
}

// MovementRepository implements domain.MovementRepository over inventory_movements
type MovementRepository struct {
	collection *mongo.Collection
}

// NewMovementRepository creates a new MovementRepository
func NewMovementRepository(db *mongo.Database) *MovementRepository {
	collection := db.Collection("inventory_movements")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "order", Value: 1},
				{Key: "job", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: 1},
			},
		},
	})

	return &MovementRepository{collection: collection}
}

// Record writes an intended delta before it is applied
func (r *MovementRepository) Record(ctx context.Context, entry *domain.MovementEntry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to record movement: %w", err)
	}
	return nil
}

// MarkApplied marks a movement as applied
func (r *MovementRepository) MarkApplied(ctx context.Context, id primitive.ObjectID) error {
	return r.mark(ctx, id, domain.MovementApplied, "")
}

// MarkFailed marks a movement as failed with a reason
func (r *MovementRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error {
	return r.mark(ctx, id, domain.MovementFailed, reason)
}

// MarkReverted marks a movement as compensated
func (r *MovementRepository) MarkReverted(ctx context.Context, id primitive.ObjectID) error {
	return r.mark(ctx, id, domain.MovementReverted, "")
}

func (r *MovementRepository) mark(ctx context.Context, id primitive.ObjectID, status domain.MovementStatus, reason string) error {
	set := bson.M{"status": status}
	if reason != "" {
		set["error"] = reason
	}
	result, err := r.collection.UpdateByID(ctx, id, pkgmongo.BuildUpdateWithTimestamp(set))
	if err != nil {
		return fmt.Errorf("failed to mark movement %s: %w", status, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("movement %s not found", id.Hex())
	}
	return nil
}

// FindApplied lists the applied movements of an order in write order
func (r *MovementRepository) FindApplied(ctx context.Context, orderID int64) ([]*domain.MovementEntry, error) {
	return r.find(ctx, bson.M{"order": orderID, "status": domain.MovementApplied})
}

// HasJob reports whether a job already recorded movements for the order
func (r *MovementRepository) HasJob(ctx context.Context, orderID int64, job string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"order": orderID, "job": job}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count movements: %w", err)
	}
	return count > 0, nil
}

// FindStuck lists movements still pending since before olderThan
func (r *MovementRepository) FindStuck(ctx context.Context, olderThan time.Time) ([]*domain.MovementEntry, error) {
	return r.find(ctx, bson.M{"status": domain.MovementPending, "createdAt": bson.M{"$lt": olderThan}})
}

func (r *MovementRepository) find(ctx context.Context, filter bson.M) ([]*domain.MovementEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*domain.MovementEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode movements: %w", err)
	}
	return entries, nil
}
