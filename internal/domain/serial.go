package domain

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Serializer is a serial schema attached to an inventory schema
type Serializer struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Schema        string             `bson:"schema" json:"schema"`
	OwnedBySchema string             `bson:"owned_by_schema" json:"owned_by_schema"`
	ViaParam      string             `bson:"via_param" json:"via_param"`
	Unique        bool               `bson:"unique" json:"unique"`
}

// NodeSerial links a serial record to the inventory node possessing it
type NodeSerial struct {
	ID                primitive.ObjectID `bson:"_id" json:"id"`
	PossessedByNode   primitive.ObjectID `bson:"possessed_by_node" json:"possessed_by_node"`
	OwnedByNode       int64              `bson:"owned_by_node" json:"owned_by_node"`
	OwnedBySchema     string             `bson:"owned_by_schema" json:"owned_by_schema"`
	PossessedBySchema string             `bson:"possessed_by_schema" json:"possessed_by_schema"`
	Quantity          int                `bson:"quantity" json:"quantity"`
	ViaParam          string             `bson:"via_param" json:"via_param"`
	Serial            string             `bson:"serial,omitempty" json:"serial,omitempty"`
	SKU               string             `bson:"sku" json:"sku"`
	Serials           []string           `bson:"serials,omitempty" json:"serials,omitempty"`
	Order             int64              `bson:"order,omitempty" json:"order,omitempty"`
}

// SerialCriteria selects a NodeSerial for find-or-create
type SerialCriteria struct {
	PossessedByNode   primitive.ObjectID
	OwnedByNode       int64
	OwnedBySchema     string
	PossessedBySchema string
	ViaParam          string
	SKU               string
}

// StationAsset is an individually tracked asset bound to a station
type StationAsset struct {
	ID      primitive.ObjectID `bson:"_id" json:"id"`
	SKU     string             `bson:"sku" json:"sku"`
	Serial  string             `bson:"serial,omitempty" json:"serial,omitempty"`
	Station string             `bson:"station" json:"station"`
	Node    primitive.ObjectID `bson:"node,omitempty" json:"node,omitempty"`
}

// SerialSKUEntry accumulates the scans of one SKU within a cache item
type SerialSKUEntry struct {
	Count   int
	Nodes   []primitive.ObjectID
	Serials []string
}

// SerialCacheItem groups scanned SKUs under one serializer
type SerialCacheItem struct {
	Schema        string
	Serializer    string
	ViaParam      string
	OwnedBySchema string
	OwnedByNode   int64
	Unique        bool
	SKUs          map[string]*SerialSKUEntry
}

// NewSerialCacheItem creates an empty cache item for a serializer
func NewSerialCacheItem(schema string, serializer *Serializer, ownedByNode int64) *SerialCacheItem {
	return &SerialCacheItem{
		Schema:        schema,
		Serializer:    serializer.Name,
		ViaParam:      serializer.ViaParam,
		OwnedBySchema: serializer.OwnedBySchema,
		OwnedByNode:   ownedByNode,
		Unique:        serializer.Unique,
		SKUs:          make(map[string]*SerialSKUEntry),
	}
}

// Scan records count units of sku with their serials
func (c *SerialCacheItem) Scan(sku string, count int, serials []string) *SerialSKUEntry {
	entry, ok := c.SKUs[sku]
	if !ok {
		entry = &SerialSKUEntry{}
		c.SKUs[sku] = entry
	}
	entry.Count += count
	entry.Serials = append(entry.Serials, serials...)
	return entry
}

// AddNode records a candidate node once
func (e *SerialSKUEntry) AddNode(id primitive.ObjectID) {
	for _, existing := range e.Nodes {
		if existing == id {
			return
		}
	}
	e.Nodes = append(e.Nodes, id)
}
