package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/wms-platform/transfer-service/internal/application"
	"github.com/wms-platform/transfer-service/internal/workflows"
	"github.com/wms-platform/transfer-service/pkg/logging"
	pkgtemporal "github.com/wms-platform/transfer-service/pkg/temporal"
)

// WorkflowStarter is the subset of the Temporal client the queue needs
type WorkflowStarter interface {
	StartWorkflowWithOptions(ctx context.Context, options client.StartWorkflowOptions, workflowName string, args ...interface{}) (client.WorkflowRun, error)
}

// Queue enqueues jobs as OrderJobWorkflow executions
type Queue struct {
	starter   WorkflowStarter
	taskQueue string
	logger    *logging.Logger
}

// NewQueue creates a new Queue
func NewQueue(starter WorkflowStarter, taskQueue string, logger *logging.Logger) *Queue {
	if taskQueue == "" {
		taskQueue = pkgtemporal.TaskQueues.Transfer
	}
	return &Queue{
		starter:   starter,
		taskQueue: taskQueue,
		logger:    logger.WithComponent("job-queue"),
	}
}

var _ application.JobQueue = (*Queue)(nil)

// WorkflowID returns the workflow id of a job for an order
func WorkflowID(job string, orderID int64) string {
	return fmt.Sprintf("%s-%d", job, orderID)
}

// Enqueue starts the job workflow. A job already running for the same
// order is left alone.
func (q *Queue) Enqueue(ctx context.Context, job string, payload application.JobPayload, opts ...application.EnqueueOption) error {
	o := application.ApplyEnqueueOptions(opts...)
	workflowID := WorkflowID(job, payload.OrderID)

	options := client.StartWorkflowOptions{
		ID:         workflowID,
		TaskQueue:  q.taskQueue,
		StartDelay: o.Delay,
	}

	run, err := q.starter.StartWorkflowWithOptions(ctx, options, pkgtemporal.WorkflowNames.OrderJob, workflows.JobInput{
		Job:     job,
		Payload: payload,
	})
	if err != nil {
		if sdktemporal.IsWorkflowExecutionAlreadyStartedError(err) {
			q.logger.Warn("Job already running", "job", job, "orderId", payload.OrderID, "workflowId", workflowID)
			return nil
		}
		return fmt.Errorf("failed to enqueue %s for order %d: %w", job, payload.OrderID, err)
	}

	q.logger.Debug("Job enqueued",
		"job", job,
		"orderId", payload.OrderID,
		"workflowId", run.GetID(),
		"runId", run.GetRunID(),
		"delay", o.Delay,
	)
	return nil
}
