package testing

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	mongoclient "github.com/wms-platform/transfer-service/pkg/mongodb"
)

const mongoImage = "mongo:6"

// MongoDBContainer is a single-node replica set, so transactions work
type MongoDBContainer struct {
	Container *mongodb.MongoDBContainer
	URI       string
}

// NewMongoDBContainer starts the container and resolves its connection string
func NewMongoDBContainer(ctx context.Context) (*MongoDBContainer, error) {
	container, err := mongodb.Run(ctx, mongoImage, mongodb.WithReplicaSet("rs0"))
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &MongoDBContainer{Container: container, URI: uri}, nil
}

// Close terminates the container
func (m *MongoDBContainer) Close(ctx context.Context) error {
	if m.Container == nil {
		return nil
	}
	return testcontainers.TerminateContainer(m.Container, testcontainers.StopContext(ctx))
}

// Database connects with the service client options to the named database
func (m *MongoDBContainer) Database(ctx context.Context, name string) (*mongoclient.Client, error) {
	cfg := mongoclient.DefaultConfig()
	cfg.URI = m.URI
	cfg.Database = name
	cfg.Direct = true
	cfg.MinPoolSize = 0

	return mongoclient.NewClient(ctx, cfg)
}
