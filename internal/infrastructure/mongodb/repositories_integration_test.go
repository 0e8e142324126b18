package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/cloudevents"
	"github.com/wms-platform/transfer-service/pkg/kafka"
	pkgmongo "github.com/wms-platform/transfer-service/pkg/mongodb"
	outboxMongo "github.com/wms-platform/transfer-service/pkg/outbox/mongodb"
	testutil "github.com/wms-platform/transfer-service/pkg/testing"
)

type RepositoriesIntegrationTestSuite struct {
	suite.Suite
	container *testutil.MongoDBContainer
	client    *pkgmongo.Client
	db        *mongo.Database
	ctx       context.Context

	orders     *OrderRepository
	inventory  *InventoryRepository
	stations   *StationRepository
	serials    *SerialRepository
	assets     *AssetRepository
	variances  *VarianceRepository
	movements  *MovementRepository
	outboxRepo *outboxMongo.OutboxRepository
}

func TestRepositoriesIntegrationTestSuite(t *testing.T) {
	testutil.SkipIfShort(t)
	suite.Run(t, new(RepositoriesIntegrationTestSuite))
}

func (s *RepositoriesIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testutil.NewMongoDBContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	client, err := container.Database(s.ctx, "transfer_test")
	s.Require().NoError(err)
	s.client = client
	s.db = client.Database()
}

func (s *RepositoriesIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close(s.ctx)
	}
	if s.container != nil {
		s.Require().NoError(s.container.Close(s.ctx))
	}
}

func (s *RepositoriesIntegrationTestSuite) SetupTest() {
	s.orders = NewOrderRepository(s.db, cloudevents.NewEventFactory(cloudevents.SourceTransfer))
	s.inventory = NewInventoryRepository(s.db)
	s.stations = NewStationRepository(s.db)
	s.serials = NewSerialRepository(s.db)
	s.assets = NewAssetRepository(s.db)
	s.variances = NewVarianceRepository(s.db)
	s.movements = NewMovementRepository(s.db)
	s.outboxRepo = outboxMongo.NewOutboxRepository(s.db)
}

func (s *RepositoriesIntegrationTestSuite) TearDownTest() {
	s.Require().NoError(s.db.Drop(s.ctx))
}

func (s *RepositoriesIntegrationTestSuite) newOrder(id int64) *domain.Order {
	order, err := domain.NewOrder(domain.NewOrderParams{
		ID:       id,
		Scope:    domain.ScopeInternal,
		From:     "WH-1",
		To:       "WH-2",
		Schema:   "default",
		Items:    []domain.OrderItem{{SKU: "SKU-A", Quantity: 3}},
		Currency: "USD",
	})
	s.Require().NoError(err)
	return order
}

func (s *RepositoriesIntegrationTestSuite) TestOrderRepository_SaveWritesOutbox() {
	id, err := s.orders.NextID(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), id)

	order := s.newOrder(id)
	s.Require().NoError(s.orders.Save(s.ctx, order))
	s.Empty(order.DomainEvents())

	found, err := s.orders.FindByID(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(order.TransactionID, found.TransactionID)
	s.Equal(domain.StatePending, found.State)
	s.Equal(3, found.Meta.ItemsCount)

	events, err := s.outboxRepo.FindByAggregateID(s.ctx, "1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(cloudevents.TransferOrderCreated, events[0].EventType)
	s.Equal(kafka.Topics.TransferEvents, events[0].Topic)

	next, err := s.orders.NextID(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), next)
}

func (s *RepositoriesIntegrationTestSuite) TestOrderRepository_FindByIDMissing() {
	found, err := s.orders.FindByID(s.ctx, 404)
	s.NoError(err)
	s.Nil(found)
}

func (s *RepositoriesIntegrationTestSuite) TestOrderRepository_SweepTimeouts() {
	idle := s.newOrder(10)
	fresh := s.newOrder(11)
	s.Require().NoError(s.orders.Save(s.ctx, idle))
	s.Require().NoError(s.orders.Save(s.ctx, fresh))

	_, err := s.db.Collection(ordersCollection).UpdateByID(s.ctx, idle.ID,
		bson.M{"$set": bson.M{"updatedAt": time.Now().UTC().AddDate(0, 0, -40)}})
	s.Require().NoError(err)

	swept, err := s.orders.SweepTimeouts(s.ctx, []domain.State{domain.StatePending}, time.Now().UTC().AddDate(0, 0, -30))
	s.Require().NoError(err)
	s.Equal(int64(1), swept)

	found, err := s.orders.FindByID(s.ctx, idle.ID)
	s.Require().NoError(err)
	s.Equal(domain.StateTimeout, found.State)
	s.Equal(domain.StateTimeout, found.Meta.LastState)

	found, err = s.orders.FindByID(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatePending, found.State)
}

func (s *RepositoriesIntegrationTestSuite) TestOrderRepository_UpdateMetaKeepsState() {
	order := s.newOrder(30)
	s.Require().NoError(s.orders.Save(s.ctx, order))

	_, err := s.db.Collection(ordersCollection).UpdateByID(s.ctx, order.ID,
		bson.M{"$set": bson.M{"state": domain.StateApproved, "meta.last_state": domain.StateApproved}})
	s.Require().NoError(err)

	total := decimal.RequireFromString("12.50")
	s.Require().NoError(s.orders.UpdateMeta(s.ctx, order.ID, domain.MetaPatch{
		FinalCost:        &total,
		FinalCostDetails: &domain.FinalCostDetails{Items: total, Currency: "USD", Invoiced: true},
		Variances:        []domain.Variance{{SKU: "SKU-A", Quantity: -1, Value: decimal.NewFromInt(-4)}},
	}))

	found, err := s.orders.FindByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.StateApproved, found.State)
	s.Equal(domain.StateApproved, found.Meta.LastState)
	s.Require().NotNil(found.Meta.FinalCost)
	s.True(total.Equal(*found.Meta.FinalCost))
	s.True(found.Meta.FinalCostDetails.Invoiced)
	s.Require().Len(found.Meta.Variances, 1)
	s.Equal(-1, found.Meta.Variances[0].Quantity)
	s.Equal(3, found.Meta.ItemsCount)

	err = s.orders.UpdateMeta(s.ctx, 404, domain.MetaPatch{FinalCost: &total})
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *RepositoriesIntegrationTestSuite) TestOrderRepository_Delete() {
	order := s.newOrder(20)
	s.Require().NoError(s.orders.Save(s.ctx, order))

	order.MarkRemoved()
	s.Require().NoError(s.orders.Delete(s.ctx, order))

	found, err := s.orders.FindByID(s.ctx, order.ID)
	s.NoError(err)
	s.Nil(found)

	events, err := s.outboxRepo.FindByAggregateID(s.ctx, "20")
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *RepositoriesIntegrationTestSuite) TestInventoryRepository_CatalogAndClone() {
	catalog := &domain.InventoryNode{
		ID:         primitive.NewObjectID(),
		Schema:     "default",
		Station:    "WH-1",
		SKU:        "SKU-A",
		Quantity:   20,
		UnitCost:   decimal.RequireFromString("4.25"),
		RetailCost: decimal.RequireFromString("5.10"),
	}
	s.Require().NoError(s.inventory.Save(s.ctx, catalog))

	found, err := s.inventory.FindCatalog(s.ctx, "SKU-A", "default")
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(catalog.ID, found.ID)
	s.True(catalog.UnitCost.Equal(found.UnitCost))

	clone, err := s.inventory.Clone(s.ctx, found, "WH-2")
	s.Require().NoError(err)
	s.Equal(0, clone.Quantity)
	s.Require().NotNil(clone.CopyOf)
	s.Equal(catalog.ID, *clone.CopyOf)

	again, err := s.inventory.Clone(s.ctx, found, "WH-2")
	s.Require().NoError(err)
	s.Equal(clone.ID, again.ID)

	found, err = s.inventory.FindCatalog(s.ctx, "SKU-A", "default")
	s.Require().NoError(err)
	s.Equal(catalog.ID, found.ID)

	atDest, err := s.inventory.FindBySKU(s.ctx, "SKU-A", "default", "WH-2")
	s.Require().NoError(err)
	s.Require().NotNil(atDest)
	s.True(atDest.IsClone())

	missing, err := s.inventory.FindBySKU(s.ctx, "SKU-A", "default", "WH-9")
	s.NoError(err)
	s.Nil(missing)
}

func (s *RepositoriesIntegrationTestSuite) TestStationRepository_ResolveAndChildren() {
	for _, st := range []*domain.Station{
		{ID: 1, Code: "WH-2", Schema: "default"},
		{ID: 2, Code: "WH-2B", Parent: "WH-2", Schema: "default"},
		{ID: 3, Code: "WH-2A", Parent: "WH-2", Schema: "default"},
	} {
		s.Require().NoError(s.stations.Save(s.ctx, st))
	}

	station, err := s.stations.Resolve(s.ctx, "WH-2")
	s.Require().NoError(err)
	s.Equal(int64(1), station.ID)

	children, err := s.stations.ChildrenOf(s.ctx, "WH-2")
	s.Require().NoError(err)
	s.Require().Len(children, 2)
	s.Equal("WH-2A", children[0].Code)

	unknown, err := s.stations.Resolve(s.ctx, "NOPE")
	s.NoError(err)
	s.Nil(unknown)

	s.Require().NoError(s.stations.SaveSerializer(s.ctx, &domain.Serializer{
		ID: primitive.NewObjectID(), Name: "lot", Schema: "default", OwnedBySchema: "lots", ViaParam: "lot",
	}))
	serializers, err := s.stations.ForSchema(s.ctx, "default")
	s.Require().NoError(err)
	s.Len(serializers, 1)
}

func (s *RepositoriesIntegrationTestSuite) TestSerialRepository_FindOrCreateAndIncrement() {
	node := primitive.NewObjectID()
	criteria := domain.SerialCriteria{
		PossessedByNode:   node,
		OwnedByNode:       2,
		OwnedBySchema:     "lots",
		PossessedBySchema: "default",
		ViaParam:          "lot",
		SKU:               "SKU-A",
	}

	first, created, err := s.serials.FindOrCreate(s.ctx, criteria)
	s.Require().NoError(err)
	s.True(created)
	s.Equal(0, first.Quantity)

	second, created, err := s.serials.FindOrCreate(s.ctx, criteria)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)

	rows, err := s.serials.AtomicIncrementQuantity(s.ctx, node, "lot", 7)
	s.Require().NoError(err)
	s.Equal(int64(1), rows)
	_, err = s.serials.AtomicIncrementQuantity(s.ctx, node, "lot", -2)
	s.Require().NoError(err)

	links, err := s.serials.FindByNode(s.ctx, node)
	s.Require().NoError(err)
	s.Require().Len(links, 1)
	s.Equal(5, links[0].Quantity)

	s.Require().NoError(s.serials.Delete(s.ctx, first.ID))
	links, err = s.serials.FindByNode(s.ctx, node)
	s.Require().NoError(err)
	s.Empty(links)
}

func (s *RepositoriesIntegrationTestSuite) TestAssetRepository_Rebind() {
	asset := &domain.StationAsset{ID: primitive.NewObjectID(), SKU: "SKU-A", Serial: "S1", Station: "WH-1"}
	s.Require().NoError(s.assets.Save(s.ctx, asset))

	node := primitive.NewObjectID()
	s.Require().NoError(s.assets.Rebind(s.ctx, asset.ID, "WH-2", node))

	found, err := s.assets.FindBySerial(s.ctx, "S1")
	s.Require().NoError(err)
	s.Equal("WH-2", found.Station)
	s.Equal(node, found.Node)

	atDest, err := s.assets.FindBySKU(s.ctx, "SKU-A", "WH-2")
	s.Require().NoError(err)
	s.Len(atDest, 1)

	s.Error(s.assets.Rebind(s.ctx, primitive.NewObjectID(), "WH-2", node))
}

func (s *RepositoriesIntegrationTestSuite) TestVarianceRepository_UniquePerNode() {
	order := s.newOrder(30)
	node := &domain.InventoryNode{ID: primitive.NewObjectID(), Station: "WH-2", SKU: "SKU-A"}
	row := domain.NewItemVariance(order, node, -2, decimal.NewFromInt(4), decimal.NewFromInt(4), "USD")

	s.Require().NoError(s.variances.Create(s.ctx, row))
	duplicate := domain.NewItemVariance(order, node, -2, decimal.NewFromInt(4), decimal.NewFromInt(4), "USD")
	s.Require().NoError(s.variances.Create(s.ctx, duplicate))

	exists, err := s.variances.ExistsForOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.True(exists)

	rows, err := s.variances.FindByOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.True(decimal.NewFromInt(-8).Equal(rows[0].Value))
}

func (s *RepositoriesIntegrationTestSuite) TestMovementRepository_Lifecycle() {
	old := &domain.MovementEntry{
		Order: 40, Job: "move-temp", Schema: "default", Station: "WH-1", SKU: "SKU-A",
		Delta: domain.Delta{Outgoing: 3}, Status: domain.MovementPending,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	applied := &domain.MovementEntry{
		Order: 40, Job: "move-temp", Schema: "default", Station: "WH-2", SKU: "SKU-A",
		Delta: domain.Delta{Incoming: 3}, Status: domain.MovementPending,
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.movements.Record(s.ctx, old))
	s.Require().NoError(s.movements.Record(s.ctx, applied))
	s.Require().NoError(s.movements.MarkApplied(s.ctx, applied.ID))

	has, err := s.movements.HasJob(s.ctx, 40, "move-temp")
	s.Require().NoError(err)
	s.True(has)
	has, err = s.movements.HasJob(s.ctx, 40, "move-complete")
	s.Require().NoError(err)
	s.False(has)

	entries, err := s.movements.FindApplied(s.ctx, 40)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(applied.ID, entries[0].ID)

	stuck, err := s.movements.FindStuck(s.ctx, time.Now().UTC().Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().Len(stuck, 1)
	s.Equal(old.ID, stuck[0].ID)

	s.Require().NoError(s.movements.MarkFailed(s.ctx, old.ID, "node missing"))
	s.Require().NoError(s.movements.MarkReverted(s.ctx, applied.ID))
	entries, err = s.movements.FindApplied(s.ctx, 40)
	s.Require().NoError(err)
	s.Empty(entries)
}
