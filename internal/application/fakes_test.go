package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/pkg/cloudevents"
	"github.com/wms-platform/transfer-service/pkg/logging"
	"github.com/wms-platform/transfer-service/pkg/metrics"
)

// deepCopy round-trips through JSON so stored aggregates never alias callers
func deepCopy[T any](t *testing.T, v *T) *T {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return &out
}

type fakeOrders struct {
	t           *testing.T
	mu          sync.Mutex
	orders      map[int64]*domain.Order
	events      []domain.DomainEvent
	nextID      int64
	saves       int
	metaUpdates int
	saveErr     error
}

func newFakeOrders(t *testing.T) *fakeOrders {
	return &fakeOrders{t: t, orders: make(map[int64]*domain.Order), nextID: 1000}
}

func (f *fakeOrders) NextID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeOrders) Save(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if err := order.Meta.Validate(order.Items); err != nil {
		return err
	}
	f.events = append(f.events, order.DomainEvents()...)
	order.ClearDomainEvents()
	f.orders[order.ID] = deepCopy(f.t, order)
	f.saves++
	return nil
}

func (f *fakeOrders) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return deepCopy(f.t, order), nil
}

func (f *fakeOrders) UpdateMeta(ctx context.Context, id int64, patch domain.MetaPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	order, ok := f.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}
	if patch.FinalCost != nil {
		order.Meta.FinalCost = patch.FinalCost
	}
	if patch.FinalCostDetails != nil {
		order.Meta.FinalCostDetails = patch.FinalCostDetails
	}
	if patch.Variances != nil {
		order.Meta.Variances = patch.Variances
	}
	if patch.SerialReferences != nil {
		order.Meta.SerialReferences = patch.SerialReferences
	}
	f.metaUpdates++
	return nil
}

func (f *fakeOrders) Delete(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, order.DomainEvents()...)
	order.ClearDomainEvents()
	delete(f.orders, order.ID)
	return nil
}

func (f *fakeOrders) SweepTimeouts(ctx context.Context, states []domain.State, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, order := range f.orders {
		for _, s := range states {
			if order.State == s && order.UpdatedAt.Before(before) {
				order.State = domain.StateTimeout
				order.Meta.LastState = domain.StateTimeout
				order.UpdatedAt = time.Now().UTC()
				count++
				break
			}
		}
	}
	return count, nil
}

// put stores an order bypassing Save, for fixtures with old timestamps
func (f *fakeOrders) put(order *domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order.ClearDomainEvents()
	f.orders[order.ID] = deepCopy(f.t, order)
}

func (f *fakeOrders) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.events))
	for i, e := range f.events {
		types[i] = e.EventType()
	}
	return types
}

type fakeInventory struct {
	t       *testing.T
	mu      sync.Mutex
	order   []primitive.ObjectID
	nodes   map[primitive.ObjectID]*domain.InventoryNode
	saveErr map[string]error
}

func newFakeInventory(t *testing.T) *fakeInventory {
	return &fakeInventory{t: t, nodes: make(map[primitive.ObjectID]*domain.InventoryNode), saveErr: make(map[string]error)}
}

func (f *fakeInventory) add(node *domain.InventoryNode) *domain.InventoryNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if node.ID.IsZero() {
		node.ID = primitive.NewObjectID()
	}
	if node.Schema == "" {
		node.Schema = "default"
	}
	if _, ok := f.nodes[node.ID]; !ok {
		f.order = append(f.order, node.ID)
	}
	f.nodes[node.ID] = deepCopy(f.t, node)
	return node
}

func (f *fakeInventory) get(id primitive.ObjectID) *domain.InventoryNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return deepCopy(f.t, f.nodes[id])
}

func (f *fakeInventory) at(sku, station string) *domain.InventoryNode {
	node, _ := f.FindBySKU(context.Background(), sku, "default", station)
	return node
}

func (f *fakeInventory) FindBySKU(ctx context.Context, sku, schema, station string) (*domain.InventoryNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		n := f.nodes[id]
		if n.SKU == sku && n.Schema == schema && n.Station == station {
			return deepCopy(f.t, n), nil
		}
	}
	return nil, nil
}

func (f *fakeInventory) FindByID(ctx context.Context, id primitive.ObjectID, schema string) (*domain.InventoryNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok || n.Schema != schema {
		return nil, nil
	}
	return deepCopy(f.t, n), nil
}

func (f *fakeInventory) FindCatalog(ctx context.Context, sku, schema string) (*domain.InventoryNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		n := f.nodes[id]
		if n.SKU == sku && n.Schema == schema && !n.IsClone() {
			return deepCopy(f.t, n), nil
		}
	}
	return nil, nil
}

func (f *fakeInventory) Save(ctx context.Context, node *domain.InventoryNode) error {
	if err := f.saveErr[node.Station+"/"+node.SKU]; err != nil {
		return err
	}
	f.add(node)
	return nil
}

func (f *fakeInventory) Clone(ctx context.Context, source *domain.InventoryNode, station string) (*domain.InventoryNode, error) {
	clone := source.Clone(station)
	f.add(clone)
	return clone, nil
}

type fakeStations struct {
	stations map[string]*domain.Station
}

func newFakeStations(stations ...*domain.Station) *fakeStations {
	f := &fakeStations{stations: make(map[string]*domain.Station)}
	for _, s := range stations {
		f.stations[s.Code] = s
	}
	return f
}

func (f *fakeStations) Resolve(ctx context.Context, code string) (*domain.Station, error) {
	return f.stations[code], nil
}

func (f *fakeStations) ChildrenOf(ctx context.Context, code string) ([]*domain.Station, error) {
	var children []*domain.Station
	for _, s := range f.stations {
		if s.Parent == code {
			children = append(children, s)
		}
	}
	return children, nil
}

type fakeSerializers struct {
	serializers []*domain.Serializer
}

func (f *fakeSerializers) ForSchema(ctx context.Context, schema string) ([]*domain.Serializer, error) {
	var out []*domain.Serializer
	for _, s := range f.serializers {
		if s.Schema == schema {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeSerials struct {
	mu      sync.Mutex
	serials map[primitive.ObjectID]*domain.NodeSerial
	created int
}

func newFakeSerials() *fakeSerials {
	return &fakeSerials{serials: make(map[primitive.ObjectID]*domain.NodeSerial)}
}

func (f *fakeSerials) FindOrCreate(ctx context.Context, c domain.SerialCriteria) (*domain.NodeSerial, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.serials {
		if s.PossessedByNode == c.PossessedByNode && s.OwnedByNode == c.OwnedByNode &&
			s.OwnedBySchema == c.OwnedBySchema && s.PossessedBySchema == c.PossessedBySchema &&
			s.ViaParam == c.ViaParam && s.SKU == c.SKU {
			copied := *s
			return &copied, false, nil
		}
	}
	s := &domain.NodeSerial{
		ID:                primitive.NewObjectID(),
		PossessedByNode:   c.PossessedByNode,
		OwnedByNode:       c.OwnedByNode,
		OwnedBySchema:     c.OwnedBySchema,
		PossessedBySchema: c.PossessedBySchema,
		ViaParam:          c.ViaParam,
		SKU:               c.SKU,
	}
	f.serials[s.ID] = s
	f.created++
	copied := *s
	return &copied, true, nil
}

func (f *fakeSerials) Create(ctx context.Context, serial *domain.NodeSerial) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *serial
	f.serials[serial.ID] = &copied
	f.created++
	return nil
}

func (f *fakeSerials) AtomicIncrementQuantity(ctx context.Context, node primitive.ObjectID, field string, delta int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows int64
	for _, s := range f.serials {
		if s.PossessedByNode == node && s.ViaParam == field {
			s.Quantity += delta
			rows++
		}
	}
	return rows, nil
}

func (f *fakeSerials) Delete(ctx context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.serials, id)
	return nil
}

func (f *fakeSerials) all() []*domain.NodeSerial {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.NodeSerial, 0, len(f.serials))
	for _, s := range f.serials {
		copied := *s
		out = append(out, &copied)
	}
	return out
}

type fakeAssets struct {
	mu     sync.Mutex
	assets map[primitive.ObjectID]*domain.StationAsset
}

func newFakeAssets(assets ...*domain.StationAsset) *fakeAssets {
	f := &fakeAssets{assets: make(map[primitive.ObjectID]*domain.StationAsset)}
	for _, a := range assets {
		f.assets[a.ID] = a
	}
	return f
}

func (f *fakeAssets) FindBySerial(ctx context.Context, serial string) (*domain.StationAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.Serial == serial {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAssets) FindBySKU(ctx context.Context, sku, station string) ([]*domain.StationAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.StationAsset
	for _, a := range f.assets {
		if a.SKU == sku && a.Station == station {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAssets) Rebind(ctx context.Context, id primitive.ObjectID, station string, node primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return errors.New("asset not found")
	}
	a.Station = station
	a.Node = node
	return nil
}

type fakeVariances struct {
	mu   sync.Mutex
	rows []*domain.ItemVariance
}

func (f *fakeVariances) Create(ctx context.Context, v *domain.ItemVariance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, v)
	return nil
}

func (f *fakeVariances) ExistsForOrder(ctx context.Context, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.rows {
		if v.Order == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeVariances) FindByOrder(ctx context.Context, orderID int64) ([]*domain.ItemVariance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ItemVariance
	for _, v := range f.rows {
		if v.Order == orderID {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeMovements struct {
	mu      sync.Mutex
	entries []*domain.MovementEntry
}

func (f *fakeMovements) find(id primitive.ObjectID) *domain.MovementEntry {
	for _, e := range f.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (f *fakeMovements) Record(ctx context.Context, entry *domain.MovementEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *entry
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeMovements) mark(id primitive.ObjectID, status domain.MovementStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.find(id)
	if e == nil {
		return errors.New("movement not found")
	}
	e.Status = status
	e.Error = reason
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeMovements) MarkApplied(ctx context.Context, id primitive.ObjectID) error {
	return f.mark(id, domain.MovementApplied, "")
}

func (f *fakeMovements) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error {
	return f.mark(id, domain.MovementFailed, reason)
}

func (f *fakeMovements) MarkReverted(ctx context.Context, id primitive.ObjectID) error {
	return f.mark(id, domain.MovementReverted, "")
}

func (f *fakeMovements) FindApplied(ctx context.Context, orderID int64) ([]*domain.MovementEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.MovementEntry
	for _, e := range f.entries {
		if e.Order == orderID && e.Status == domain.MovementApplied {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMovements) HasJob(ctx context.Context, orderID int64, job string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Order == orderID && e.Job == job {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMovements) FindStuck(ctx context.Context, olderThan time.Time) ([]*domain.MovementEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.MovementEntry
	for _, e := range f.entries {
		if e.Status == domain.MovementPending && e.CreatedAt.Before(olderThan) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeMovements) count(orderID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Order == orderID {
			n++
		}
	}
	return n
}

type fakeCostLedger struct {
	mu         sync.Mutex
	rates      map[string]decimal.Decimal
	invoices   []Invoice
	invoiceErr error
	// onInvoice runs before the invoice is accepted
	onInvoice func()
}

func (f *fakeCostLedger) ConvertCurrency(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, ok := f.rates[currency]
	if !ok {
		return decimal.Zero, errors.New("no rate for " + currency)
	}
	return amount.Mul(rate), nil
}

func (f *fakeCostLedger) Invoice(ctx context.Context, invoice Invoice) error {
	if f.onInvoice != nil {
		f.onInvoice()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invoiceErr != nil {
		return f.invoiceErr
	}
	f.invoices = append(f.invoices, invoice)
	return nil
}

type broadcast struct {
	channel string
	payload cloudevents.OrderChangedData
}

type fakeBus struct {
	mu   sync.Mutex
	sent []broadcast
}

func (f *fakeBus) Broadcast(ctx context.Context, channel string, payload cloudevents.OrderChangedData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, broadcast{channel: channel, payload: payload})
	return nil
}

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeStock struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeStock) Evaluate(ctx context.Context, node *domain.InventoryNode, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

// harness wires the service and runner over in-memory collaborators
type harness struct {
	orders      *fakeOrders
	inventory   *fakeInventory
	stations    *fakeStations
	serializers *fakeSerializers
	serials     *fakeSerials
	assets      *fakeAssets
	variances   *fakeVariances
	movements   *fakeMovements
	costLedger  *fakeCostLedger
	bus         *fakeBus
	stock       *fakeStock
	settings    Settings

	ledger  *Ledger
	costs   *CostCalculator
	tracker *SerialTracker
	runner  *JobRunner
	service *OrderApplicationService
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()

	h := &harness{
		orders:    newFakeOrders(t),
		inventory: newFakeInventory(t),
		stations: newFakeStations(
			&domain.Station{ID: 1, Code: "WH-1", Name: "Main", Schema: "default"},
			&domain.Station{ID: 2, Code: "WH-2", Name: "North", Schema: "default"},
			&domain.Station{ID: 3, Code: "WH-2A", Name: "North Annex", Parent: "WH-2", Schema: "default"},
		),
		serializers: &fakeSerializers{},
		serials:     newFakeSerials(),
		assets:      newFakeAssets(),
		variances:   &fakeVariances{},
		movements:   &fakeMovements{},
		costLedger:  &fakeCostLedger{rates: map[string]decimal.Decimal{"EUR": decimal.RequireFromString("1.10")}},
		bus:         &fakeBus{},
		stock:       &fakeStock{},
		settings:    DefaultSettings(),
	}
	for _, opt := range opts {
		opt(h)
	}

	logger := logging.NewNop()
	m := metrics.New(metrics.DefaultConfig("transfer-test"))
	tracer := noop.NewTracerProvider().Tracer("transfer-test")

	h.ledger = NewLedger(h.inventory, h.movements, h.stock, m, logger)
	h.costs = NewCostCalculator(h.costLedger, h.inventory, h.settings, logger)
	h.tracker = NewSerialTracker(h.serializers, h.serials, h.assets, h.inventory, h.ledger, logger)

	queue := NewInlineQueue(logger)
	h.runner = NewJobRunner(JobRunnerConfig{
		Orders:     h.orders,
		Variances:  h.variances,
		Movements:  h.movements,
		Stations:   h.stations,
		Ledger:     h.ledger,
		Serials:    h.tracker,
		Costs:      h.costs,
		CostLedger: h.costLedger,
		Bus:        h.bus,
		Queue:      queue,
		Settings:   h.settings,
		Metrics:    m,
		Logger:     logger,
		Tracer:     tracer,
	})
	queue.Bind(h.runner)

	h.service = NewOrderApplicationService(h.orders, h.variances, h.stations, h.ledger, h.costs, queue, h.settings, m, logger)

	return h
}

// seedStock puts SKU-A (20 @ 4.00) and SKU-B (10 @ 2.50) at WH-1
func (h *harness) seedStock() {
	h.inventory.add(&domain.InventoryNode{Station: "WH-1", SKU: "SKU-A", Name: "Widget", Quantity: 20, UnitCost: decimal.NewFromInt(4), RetailCost: decimal.NewFromInt(6), Currency: "USD", UnitWeight: 0.5, UnitVolume: 1})
	h.inventory.add(&domain.InventoryNode{Station: "WH-1", SKU: "SKU-B", Name: "Gadget", Quantity: 10, UnitCost: decimal.RequireFromString("2.50"), RetailCost: decimal.NewFromInt(4), Currency: "USD", UnitWeight: 1, UnitVolume: 2})
}

func internalOrderCommand() CreateOrderCommand {
	return CreateOrderCommand{
		Scope:     "internal",
		From:      "WH-1",
		To:        "WH-2",
		Requester: "requester",
		Items: []OrderItemInput{
			{ItemID: 1, SKU: "SKU-A", Quantity: 10},
			{ItemID: 2, SKU: "SKU-B", Quantity: 4},
		},
	}
}
