package mongodb

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

// OperationRecorder receives one sample per driver command.
// *metrics.Metrics satisfies it.
type OperationRecorder interface {
	RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration)
}

// NewCommandMonitor records every driver command against the recorder,
// labelled by collection and command name.
func NewCommandMonitor(recorder OperationRecorder) *event.CommandMonitor {
	var collections sync.Map

	finish := func(requestID int64, command string, success bool, duration time.Duration) {
		collection := ""
		if v, ok := collections.LoadAndDelete(requestID); ok {
			collection = v.(string)
		}
		if collection == "" {
			// handshake, ping and session commands
			return
		}
		recorder.RecordMongoDBOperation(collection, command, success, duration)
	}

	return &event.CommandMonitor{
		Started: func(_ context.Context, evt *event.CommandStartedEvent) {
			if coll, ok := evt.Command.Lookup(evt.CommandName).StringValueOK(); ok {
				collections.Store(evt.RequestID, coll)
			}
		},
		Succeeded: func(_ context.Context, evt *event.CommandSucceededEvent) {
			finish(evt.RequestID, evt.CommandName, true, evt.Duration)
		},
		Failed: func(_ context.Context, evt *event.CommandFailedEvent) {
			finish(evt.RequestID, evt.CommandName, false, evt.Duration)
		},
	}
}
