package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/transfer-service/internal/domain"
	pkgmongo "github.com/wms-platform/transfer-service/pkg/mongodb"
)

// SerialRepository implements domain.SerialRepository over node_serials
type SerialRepository struct {
	collection *mongo.Collection
}

// NewSerialRepository creates a new SerialRepository
func NewSerialRepository(db *mongo.Database) *SerialRepository {
	collection := db.Collection("node_serials")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "possessed_by_node", Value: 1},
				{Key: "via_param", Value: 1},
			},
		},
		{
			Keys:    bson.D{{Key: "serial", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})

	return &SerialRepository{collection: collection}
}

// FindOrCreate upserts the pooled link matching criteria and reports
// whether this call inserted it
func (r *SerialRepository) FindOrCreate(ctx context.Context, c domain.SerialCriteria) (*domain.NodeSerial, bool, error) {
	filter := bson.M{
		"possessed_by_node":   c.PossessedByNode,
		"owned_by_node":       c.OwnedByNode,
		"owned_by_schema":     c.OwnedBySchema,
		"possessed_by_schema": c.PossessedBySchema,
		"via_param":           c.ViaParam,
		"sku":                 c.SKU,
	}
	id := primitive.NewObjectID()
	update := bson.M{"$setOnInsert": bson.M{"_id": id, "quantity": 0}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var serial domain.NodeSerial
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&serial); err != nil {
		return nil, false, fmt.Errorf("failed to find or create serial: %w", err)
	}
	return &serial, serial.ID == id, nil
}

// Create inserts a unique serial link
func (r *SerialRepository) Create(ctx context.Context, serial *domain.NodeSerial) error {
	if serial.ID.IsZero() {
		serial.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, serial); err != nil {
		return fmt.Errorf("failed to create serial: %w", err)
	}
	return nil
}

// AtomicIncrementQuantity applies delta in a single $inc so concurrent
// receipts against the same node never lose an update
func (r *SerialRepository) AtomicIncrementQuantity(ctx context.Context, node primitive.ObjectID, field string, delta int) (int64, error) {
	filter := bson.M{"possessed_by_node": node, "via_param": field}
	result, err := r.collection.UpdateMany(ctx, filter, pkgmongo.BuildIncrementUpdate("quantity", delta))
	if err != nil {
		return 0, fmt.Errorf("failed to increment serial quantity: %w", err)
	}
	return result.MatchedCount, nil
}

// Delete removes a serial link
func (r *SerialRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete serial: %w", err)
	}
	return nil
}

// FindByNode lists the links possessed by a node
func (r *SerialRepository) FindByNode(ctx context.Context, node primitive.ObjectID) ([]*domain.NodeSerial, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"possessed_by_node": node})
	if err != nil {
		return nil, fmt.Errorf("failed to list serials: %w", err)
	}
	defer cursor.Close(ctx)

	var serials []*domain.NodeSerial
	if err := cursor.All(ctx, &serials); err != nil {
		return nil, fmt.Errorf("failed to decode serials: %w", err)
	}
	return serials, nil
}

// AssetRepository implements domain.AssetRepository over station_assets
type AssetRepository struct {
	collection *mongo.Collection
}

// NewAssetRepository creates a new AssetRepository
func NewAssetRepository(db *mongo.Database) *AssetRepository {
	collection := db.Collection("station_assets")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "serial", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys: bson.D{
				{Key: "sku", Value: 1},
				{Key: "station", Value: 1},
			},
		},
	})

	return &AssetRepository{collection: collection}
}

// FindBySerial returns nil, nil when no asset carries the serial
func (r *AssetRepository) FindBySerial(ctx context.Context, serial string) (*domain.StationAsset, error) {
	var asset domain.StationAsset
	err := r.collection.FindOne(ctx, bson.M{"serial": serial}).Decode(&asset)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find asset: %w", err)
	}
	return &asset, nil
}

// FindBySKU lists the assets of a SKU at a station
func (r *AssetRepository) FindBySKU(ctx context.Context, sku, station string) ([]*domain.StationAsset, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"sku": sku, "station": station})
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer cursor.Close(ctx)

	var assets []*domain.StationAsset
	if err := cursor.All(ctx, &assets); err != nil {
		return nil, fmt.Errorf("failed to decode assets: %w", err)
	}
	return assets, nil
}

// Rebind moves an asset to a new station and node
func (r *AssetRepository) Rebind(ctx context.Context, id primitive.ObjectID, station string, node primitive.ObjectID) error {
	result, err := r.collection.UpdateByID(ctx, id, bson.M{"$set": bson.M{"station": station, "node": node}})
	if err != nil {
		return fmt.Errorf("failed to rebind asset: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("asset %s not found", id.Hex())
	}
	return nil
}

// Save upserts an asset
func (r *AssetRepository) Save(ctx context.Context, asset *domain.StationAsset) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": asset.ID}, asset, opts); err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}
