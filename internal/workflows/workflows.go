package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/transfer-service/internal/application"
	"github.com/wms-platform/transfer-service/pkg/temporal"
)

// Activity names registered by the worker
const (
	RunJobActivity               = "RunJob"
	SweepTimeoutsActivity        = "SweepTimeouts"
	ReportStuckMovementsActivity = "ReportStuckMovements"
)

// SweepSchedule runs the timeout sweep daily at 03:00
const SweepSchedule = "0 3 * * *"

// SweepWorkflowID is the fixed id of the cron sweep
const SweepWorkflowID = "transfer-timeout-sweep"

// StuckMovementAge is how long a pending movement may sit before it is reported
const StuckMovementAge = time.Hour

// JobInput is the input of one background job run
type JobInput struct {
	Job     string                 `json:"job"`
	Payload application.JobPayload `json:"payload"`
}

// SweepReport summarises one sweep run
type SweepReport struct {
	TimedOut       int64     `json:"timedOut"`
	Before         time.Time `json:"before"`
	StuckMovements int       `json:"stuckMovements"`
}

// OrderJobWorkflow runs a single ledger job for an order. The job runs at
// most once: a failed job is not retried.
func OrderJobWorkflow(ctx workflow.Context, input JobInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting order job", "job", input.Job, "orderId", input.Payload.OrderID)

	opts := temporal.JobActivityOptions()
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: opts.StartToCloseTimeout,
		RetryPolicy:         opts.RetryPolicy.ToTemporal(),
	})

	if err := workflow.ExecuteActivity(ctx, RunJobActivity, input).Get(ctx, nil); err != nil {
		logger.Error("Order job failed", "job", input.Job, "orderId", input.Payload.OrderID, "error", err)
		return err
	}

	logger.Info("Order job completed", "job", input.Job, "orderId", input.Payload.OrderID)
	return nil
}

// TimeoutSweepWorkflow times out idle orders and reports stuck movements
func TimeoutSweepWorkflow(ctx workflow.Context) (*SweepReport, error) {
	logger := workflow.GetLogger(ctx)

	opts := temporal.DefaultActivityOptions()
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: opts.StartToCloseTimeout,
		RetryPolicy:         opts.RetryPolicy.ToTemporal(),
	})

	var result application.SweepResult
	if err := workflow.ExecuteActivity(ctx, SweepTimeoutsActivity).Get(ctx, &result); err != nil {
		return nil, err
	}

	report := &SweepReport{TimedOut: result.TimedOut, Before: result.Before}

	olderThan := workflow.Now(ctx).Add(-StuckMovementAge)
	var stuck int
	if err := workflow.ExecuteActivity(ctx, ReportStuckMovementsActivity, olderThan).Get(ctx, &stuck); err != nil {
		logger.Warn("Stuck movement report failed", "error", err)
	} else {
		report.StuckMovements = stuck
	}

	logger.Info("Timeout sweep completed",
		"timedOut", report.TimedOut,
		"stuckMovements", report.StuckMovements,
	)
	return report, nil
}
