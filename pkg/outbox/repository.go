package outbox

import "context"

// Writer appends events to the outbox, usually inside the caller's transaction
type Writer interface {
	SaveAll(ctx context.Context, events []*OutboxEvent) error
}

// Store is the relay side of the outbox
type Store interface {
	Writer
	// FindUnpublished returns up to limit events that still have retries left, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	// RecordFailure counts a failed publish attempt
	RecordFailure(ctx context.Context, eventID string, reason string) error
}
