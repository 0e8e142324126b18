package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/wms-platform/transfer-service/internal/application"
	"github.com/wms-platform/transfer-service/internal/domain"
	"github.com/wms-platform/transfer-service/internal/workflows"
)

// JobActivities runs ledger jobs on the worker
type JobActivities struct {
	runner *application.JobRunner
}

// NewJobActivities creates a new JobActivities instance
func NewJobActivities(runner *application.JobRunner) *JobActivities {
	return &JobActivities{runner: runner}
}

// RunJob executes one named job. Failures are non-retryable.
func (a *JobActivities) RunJob(ctx context.Context, input workflows.JobInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Running job", "job", input.Job, "orderId", input.Payload.OrderID)

	if err := a.runner.Run(ctx, input.Job, input.Payload); err != nil {
		logger.Error("Job failed", "job", input.Job, "orderId", input.Payload.OrderID, "error", err)
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("job %s failed for order %d", input.Job, input.Payload.OrderID),
			"JobFailed",
			err,
		)
	}
	return nil
}

// SweepActivities runs the daily maintenance sweep
type SweepActivities struct {
	service   *application.OrderApplicationService
	movements domain.MovementRepository
}

// NewSweepActivities creates a new SweepActivities instance
func NewSweepActivities(service *application.OrderApplicationService, movements domain.MovementRepository) *SweepActivities {
	return &SweepActivities{service: service, movements: movements}
}

// SweepTimeouts moves idle orders into TIMEOUT
func (a *SweepActivities) SweepTimeouts(ctx context.Context) (*application.SweepResult, error) {
	logger := activity.GetLogger(ctx)

	result, err := a.service.Sweep(ctx, application.SweepCommand{})
	if err != nil {
		logger.Error("Timeout sweep failed", "error", err)
		return nil, fmt.Errorf("failed to sweep timeouts: %w", err)
	}

	logger.Info("Timeout sweep done", "timedOut", result.TimedOut, "before", result.Before)
	return result, nil
}

// ReportStuckMovements logs pending movements older than olderThan
func (a *SweepActivities) ReportStuckMovements(ctx context.Context, olderThan time.Time) (int, error) {
	logger := activity.GetLogger(ctx)

	entries, err := a.movements.FindStuck(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to find stuck movements: %w", err)
	}

	for _, e := range entries {
		logger.Warn("Stuck movement",
			"movementId", e.ID.Hex(),
			"orderId", e.Order,
			"job", e.Job,
			"station", e.Station,
			"sku", e.SKU,
			"createdAt", e.CreatedAt,
		)
	}
	return len(entries), nil
}

// Names maps each registered activity to its workflow-side name
func (a *JobActivities) Names() map[string]interface{} {
	return map[string]interface{}{workflows.RunJobActivity: a.RunJob}
}

// Names maps each registered activity to its workflow-side name
func (a *SweepActivities) Names() map[string]interface{} {
	return map[string]interface{}{
		workflows.SweepTimeoutsActivity:        a.SweepTimeouts,
		workflows.ReportStuckMovementsActivity: a.ReportStuckMovements,
	}
}
