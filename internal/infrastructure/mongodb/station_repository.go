package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/transfer-service/internal/domain"
	pkgmongo "github.com/wms-platform/transfer-service/pkg/mongodb"
)

// StationRepository implements domain.StationDirectory and
// domain.SerializerRepository over the stations and serializers collections
type StationRepository struct {
	stations    *mongo.Collection
	serializers *mongo.Collection
}

// NewStationRepository creates a new StationRepository
func NewStationRepository(db *mongo.Database) *StationRepository {
	stations := db.Collection("stations")
	serializers := db.Collection("serializers")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = stations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "parent", Value: 1}},
		},
	})
	_, _ = serializers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "schema", Value: 1}},
	})

	return &StationRepository{stations: stations, serializers: serializers}
}

// Resolve finds a station by code, returning nil, nil when unknown
func (r *StationRepository) Resolve(ctx context.Context, code string) (*domain.Station, error) {
	var station domain.Station
	err := r.stations.FindOne(ctx, bson.M{"code": code}).Decode(&station)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve station: %w", err)
	}
	return &station, nil
}

// ChildrenOf lists the stations whose parent is code
func (r *StationRepository) ChildrenOf(ctx context.Context, code string) ([]*domain.Station, error) {
	opts := options.Find().SetSort(pkgmongo.SortAscending("code"))
	cursor, err := r.stations.Find(ctx, bson.M{"parent": code}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list child stations: %w", err)
	}
	defer cursor.Close(ctx)

	var stations []*domain.Station
	if err := cursor.All(ctx, &stations); err != nil {
		return nil, fmt.Errorf("failed to decode stations: %w", err)
	}
	return stations, nil
}

// Save upserts a station
func (r *StationRepository) Save(ctx context.Context, station *domain.Station) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.stations.ReplaceOne(ctx, bson.M{"_id": station.ID}, station, opts); err != nil {
		return fmt.Errorf("failed to save station: %w", err)
	}
	return nil
}

// ForSchema lists the serializers attached to a schema
func (r *StationRepository) ForSchema(ctx context.Context, schema string) ([]*domain.Serializer, error) {
	cursor, err := r.serializers.Find(ctx, bson.M{"schema": schema})
	if err != nil {
		return nil, fmt.Errorf("failed to list serializers: %w", err)
	}
	defer cursor.Close(ctx)

	var serializers []*domain.Serializer
	if err := cursor.All(ctx, &serializers); err != nil {
		return nil, fmt.Errorf("failed to decode serializers: %w", err)
	}
	return serializers, nil
}

// SaveSerializer upserts a serializer definition
func (r *StationRepository) SaveSerializer(ctx context.Context, serializer *domain.Serializer) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.serializers.ReplaceOne(ctx, bson.M{"_id": serializer.ID}, serializer, opts); err != nil {
		return fmt.Errorf("failed to save serializer: %w", err)
	}
	return nil
}
