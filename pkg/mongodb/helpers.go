package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CountersCollection holds the numeric sequences used for legacy ids
const CountersCollection = "counters"

// Now returns the current time in UTC, truncated to the millisecond precision BSON keeps
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// BuildUpdateWithTimestamp builds a $set document with automatic updatedAt
func BuildUpdateWithTimestamp(set bson.M) bson.M {
	set["updatedAt"] = Now()
	return bson.M{"$set": set}
}

// BuildIncrementUpdate builds a BSON increment update
func BuildIncrementUpdate(field string, value interface{}) bson.M {
	return bson.M{
		"$inc": bson.M{field: value},
		"$set": bson.M{"updatedAt": Now()},
	}
}

// SortAscending creates an ascending sort option
func SortAscending(field string) bson.D {
	return bson.D{{Key: field, Value: 1}}
}

// NextSequence atomically allocates the next value of a named counter
func NextSequence(ctx context.Context, db *mongo.Database, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}

	err := db.Collection(CountersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s sequence: %w", name, err)
	}

	return doc.Seq, nil
}
