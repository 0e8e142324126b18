package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/wms-platform/transfer-service/internal/application"
)

// Stand-ins with the worker-side signatures, registered under the workflow names
func runJob(ctx context.Context, input JobInput) error { return nil }

func sweepTimeouts(ctx context.Context) (*application.SweepResult, error) { return nil, nil }

func reportStuckMovements(ctx context.Context, olderThan time.Time) (int, error) { return 0, nil }

func newJobEnv() *testsuite.TestWorkflowEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(OrderJobWorkflow)
	env.RegisterActivityWithOptions(runJob, activity.RegisterOptions{Name: RunJobActivity})
	return env
}

func newSweepEnv() *testsuite.TestWorkflowEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(TimeoutSweepWorkflow)
	env.RegisterActivityWithOptions(sweepTimeouts, activity.RegisterOptions{Name: SweepTimeoutsActivity})
	env.RegisterActivityWithOptions(reportStuckMovements, activity.RegisterOptions{Name: ReportStuckMovementsActivity})
	return env
}

func TestOrderJobWorkflow_RunsJob(t *testing.T) {
	env := newJobEnv()

	input := JobInput{
		Job:     application.JobMoveTemp,
		Payload: application.JobPayload{OrderID: 42, Actor: "alice"},
	}
	env.OnActivity(RunJobActivity, mock.Anything, input).Return(nil).Once()

	env.ExecuteWorkflow(OrderJobWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestOrderJobWorkflow_FailedJobIsNotRetried(t *testing.T) {
	env := newJobEnv()

	input := JobInput{Job: application.JobRevert, Payload: application.JobPayload{OrderID: 7}}
	env.OnActivity(RunJobActivity, mock.Anything, input).Return(errors.New("node missing")).Once()

	env.ExecuteWorkflow(OrderJobWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertNumberOfCalls(t, RunJobActivity, 1)
}

func TestTimeoutSweepWorkflow(t *testing.T) {
	env := newSweepEnv()

	before := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	env.OnActivity(SweepTimeoutsActivity, mock.Anything).
		Return(&application.SweepResult{TimedOut: 4, Before: before}, nil)
	env.OnActivity(ReportStuckMovementsActivity, mock.Anything, mock.Anything).Return(2, nil)

	env.ExecuteWorkflow(TimeoutSweepWorkflow)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var report SweepReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.Equal(t, int64(4), report.TimedOut)
	assert.True(t, before.Equal(report.Before))
	assert.Equal(t, 2, report.StuckMovements)
}

func TestTimeoutSweepWorkflow_StuckReportFailureIsNotFatal(t *testing.T) {
	env := newSweepEnv()

	env.OnActivity(SweepTimeoutsActivity, mock.Anything).
		Return(&application.SweepResult{TimedOut: 1}, nil)
	env.OnActivity(ReportStuckMovementsActivity, mock.Anything, mock.Anything).
		Return(0, errors.New("mongo unavailable"))

	env.ExecuteWorkflow(TimeoutSweepWorkflow)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var report SweepReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.Equal(t, int64(1), report.TimedOut)
	assert.Zero(t, report.StuckMovements)
}
