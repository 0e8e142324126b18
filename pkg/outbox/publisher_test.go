package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/transfer-service/pkg/cloudevents"
	"github.com/wms-platform/transfer-service/pkg/logging"
	testutil "github.com/wms-platform/transfer-service/pkg/testing"
)

type memoryRepository struct {
	mu        sync.Mutex
	events    []*OutboxEvent
	published map[string]bool
	retries   map[string]string
}

func newMemoryRepository(events ...*OutboxEvent) *memoryRepository {
	return &memoryRepository{events: events, published: map[string]bool{}, retries: map[string]string{}}
}

func (r *memoryRepository) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *memoryRepository) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range r.events {
		if !r.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepository) MarkPublished(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[eventID] = true
	return nil
}

func (r *memoryRepository) RecordFailure(ctx context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[eventID] = errorMsg
	return nil
}

type recordingProducer struct {
	fail   map[string]bool
	topics []string
}

func (p *recordingProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	if p.fail[event.Subject] {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

func newEvent(t *testing.T, subject, topic string) *OutboxEvent {
	t.Helper()
	ce := cloudevents.NewEventFactory(cloudevents.SourceTransfer).
		CreateEvent(context.Background(), cloudevents.TransferOrderCreated, subject, map[string]string{"k": "v"})
	event, err := NewOutboxEventFromCloudEvent(subject, "TransferOrder", topic, ce)
	require.NoError(t, err)
	return event
}

func TestPublisher_ProcessOnce(t *testing.T) {
	ok := newEvent(t, "transfer-order/1", "wms.transfer.events")
	bad := newEvent(t, "transfer-order/2", "wms.transfer.events")
	repo := newMemoryRepository(ok, bad)
	producer := &recordingProducer{fail: map[string]bool{"transfer-order/2": true}}

	p := NewPublisher(repo, producer, logging.NewNop(), nil, &PublisherConfig{BatchSize: 10})
	p.ProcessOnce(context.Background())

	assert.True(t, repo.published[ok.ID])
	assert.False(t, repo.published[bad.ID])
	assert.Contains(t, repo.retries[bad.ID], "broker unavailable")
	assert.Equal(t, []string{"wms.transfer.events"}, producer.topics)
	assert.Equal(t, map[string]int{"published": 1, "failed": 1}, p.Stats())
}

func TestPublisher_BatchSize(t *testing.T) {
	repo := newMemoryRepository(
		newEvent(t, "transfer-order/1", "a"),
		newEvent(t, "transfer-order/2", "b"),
		newEvent(t, "transfer-order/3", "c"),
	)
	producer := &recordingProducer{}

	p := NewPublisher(repo, producer, logging.NewNop(), nil, &PublisherConfig{BatchSize: 2})
	p.ProcessOnce(context.Background())
	assert.Len(t, producer.topics, 2)

	p.ProcessOnce(context.Background())
	assert.Equal(t, []string{"a", "b", "c"}, producer.topics)
}

func TestPublisher_StartStop(t *testing.T) {
	p := NewPublisher(newMemoryRepository(), &recordingProducer{}, logging.NewNop(), nil, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	require.NoError(t, p.Stop())
	assert.Error(t, p.Stop())
}

func TestPublisher_PollsInBackground(t *testing.T) {
	event := newEvent(t, "transfer-order/5", "wms.transfer.changes")
	repo := newMemoryRepository(event)

	p := NewPublisher(repo, &recordingProducer{}, logging.NewNop(), nil, &PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})

	ctx, cancel := testutil.CreateTestContext(5 * time.Second)
	defer cancel()

	require.NoError(t, p.Start(ctx))
	testutil.AssertEventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.published[event.ID]
	}, 2*time.Second, "event was not relayed")
	require.NoError(t, p.Stop())
}

func TestOutboxEvent_RoundTrip(t *testing.T) {
	event := newEvent(t, "transfer-order/9", "wms.transfer.events")

	assert.False(t, event.IsPublished())
	assert.False(t, event.Parked())

	ce, err := event.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, event.ID, ce.ID)
	assert.Equal(t, "transfer-order/9", ce.Subject)
	assert.Equal(t, cloudevents.TransferOrderCreated, ce.Type)

	event.RetryCount = event.MaxRetries
	assert.True(t, event.Parked())
}

func TestNewOutboxEventFromCloudEvent_RequiresID(t *testing.T) {
	_, err := NewOutboxEventFromCloudEvent("1", "TransferOrder", "t", &cloudevents.WMSCloudEvent{Type: "x"})
	assert.Error(t, err)
}
