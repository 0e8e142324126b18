package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/wms-platform/transfer-service/internal/application"
	"github.com/wms-platform/transfer-service/internal/workflows"
	"github.com/wms-platform/transfer-service/pkg/logging"
	pkgtemporal "github.com/wms-platform/transfer-service/pkg/temporal"
)

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) StartWorkflowWithOptions(ctx context.Context, options client.StartWorkflowOptions, workflowName string, args ...interface{}) (client.WorkflowRun, error) {
	called := m.Called(options, workflowName, args)
	run, _ := called.Get(0).(client.WorkflowRun)
	return run, called.Error(1)
}

func TestQueue_Enqueue(t *testing.T) {
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("move-temp-42")
	run.On("GetRunID").Return("run-1")

	starter := &mockStarter{}
	starter.On("StartWorkflowWithOptions",
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "move-temp-42" && o.TaskQueue == pkgtemporal.TaskQueues.Transfer && o.StartDelay == 5*time.Second
		}),
		pkgtemporal.WorkflowNames.OrderJob,
		[]interface{}{workflows.JobInput{Job: application.JobMoveTemp, Payload: application.JobPayload{OrderID: 42, Actor: "bob"}}},
	).Return(run, nil).Once()

	queue := NewQueue(starter, "", logging.NewNop())
	err := queue.Enqueue(context.Background(), application.JobMoveTemp,
		application.JobPayload{OrderID: 42, Actor: "bob"}, application.WithDelay(5*time.Second))
	require.NoError(t, err)
	starter.AssertExpectations(t)
}

func TestQueue_EnqueueAlreadyRunning(t *testing.T) {
	starter := &mockStarter{}
	starter.On("StartWorkflowWithOptions", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("running", "req", "run")).Once()

	queue := NewQueue(starter, "custom-queue", logging.NewNop())
	err := queue.Enqueue(context.Background(), application.JobRevert, application.JobPayload{OrderID: 3})
	assert.NoError(t, err)
}

func TestQueue_EnqueueFailure(t *testing.T) {
	starter := &mockStarter{}
	starter.On("StartWorkflowWithOptions", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("frontend unavailable")).Once()

	queue := NewQueue(starter, "", logging.NewNop())
	err := queue.Enqueue(context.Background(), application.JobInvoice, application.JobPayload{OrderID: 3})
	assert.ErrorContains(t, err, "invoice")
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "change-broadcast-17", WorkflowID(application.JobChangeBroadcast, 17))
}
