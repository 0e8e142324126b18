package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/transfer-service/internal/domain"
	pkgmongo "github.com/wms-platform/transfer-service/pkg/mongodb"
)

// InventoryRepository implements domain.InventoryRepository.
// Each schema lives in its own inventory_<schema> collection.
type InventoryRepository struct {
	db      *mongo.Database
	indexed sync.Map
}

// NewInventoryRepository creates a new InventoryRepository
func NewInventoryRepository(db *mongo.Database) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) collection(ctx context.Context, schema string) *mongo.Collection {
	collection := r.db.Collection("inventory_" + schema)
	if _, loaded := r.indexed.LoadOrStore(schema, struct{}{}); !loaded {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		indexes := []mongo.IndexModel{
			{
				Keys: bson.D{
					{Key: "sku", Value: 1},
					{Key: "station", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "copy_of", Value: 1}},
			},
		}
		_, _ = collection.Indexes().CreateMany(ctx, indexes)
	}
	return collection
}

// FindBySKU finds the node holding a SKU at a station
func (r *InventoryRepository) FindBySKU(ctx context.Context, sku, schema, station string) (*domain.InventoryNode, error) {
	return r.findOne(ctx, schema, bson.M{"sku": sku, "station": station})
}

// FindByID finds a node by id
func (r *InventoryRepository) FindByID(ctx context.Context, id primitive.ObjectID, schema string) (*domain.InventoryNode, error) {
	return r.findOne(ctx, schema, bson.M{"_id": id})
}

// FindCatalog finds the oldest non-clone node of a SKU
func (r *InventoryRepository) FindCatalog(ctx context.Context, sku, schema string) (*domain.InventoryNode, error) {
	filter := bson.M{
		"sku": sku,
		"$or": bson.A{
			bson.M{"copy_of": bson.M{"$exists": false}},
			bson.M{"copy_of": nil},
		},
	}
	opts := options.FindOne().SetSort(pkgmongo.SortAscending("createdAt"))
	return r.findOne(ctx, schema, filter, opts)
}

// Save upserts a node
func (r *InventoryRepository) Save(ctx context.Context, node *domain.InventoryNode) error {
	node.UpdatedAt = time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = node.UpdatedAt
	}

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection(ctx, node.Schema).ReplaceOne(ctx, bson.M{"_id": node.ID}, node, opts)
	if err != nil {
		return fmt.Errorf("failed to save inventory node: %w", err)
	}
	return nil
}

// Clone inserts a zero-stock copy of source at station. A concurrent clone
// of the same SKU loses the unique index race and reads the winner back.
func (r *InventoryRepository) Clone(ctx context.Context, source *domain.InventoryNode, station string) (*domain.InventoryNode, error) {
	clone := source.Clone(station)
	_, err := r.collection(ctx, clone.Schema).InsertOne(ctx, clone)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, findErr := r.FindBySKU(ctx, clone.SKU, clone.Schema, station)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to clone inventory node: %w", err)
	}
	return clone, nil
}

func (r *InventoryRepository) findOne(ctx context.Context, schema string, filter bson.M, opts ...*options.FindOneOptions) (*domain.InventoryNode, error) {
	var node domain.InventoryNode
	err := r.collection(ctx, schema).FindOne(ctx, filter, opts...).Decode(&node)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find inventory node: %w", err)
	}
	return &node, nil
}
