package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javalianxisheng-shenglaogou/bs-sub001/internal/models"
)

func startPublishReview(t *testing.T, env *testEnv) *models.WorkflowInstance {
	t.Helper()
	env.createWorkflow(t, "publish-review",
		approvalNode("review", models.ApprovalModeAll, "7", "9"))

	instance, err := env.engine.Start(context.Background(), StartRequest{
		WorkflowCode:  "publish-review",
		BusinessType:  "content",
		BusinessID:    "42",
		BusinessTitle: "draft article",
		InitiatorID:   "1",
		InitiatorName: "editor",
	})
	require.NoError(t, err)
	return instance
}

func TestStartCreatesRunningInstanceWithTasks(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)

	assert.Equal(t, models.InstanceStatusRunning, instance.Status)
	assert.NotEmpty(t, instance.InstanceNo)
	assert.NotZero(t, instance.CurrentNodeID)

	tasks, err := env.tasks.ListByInstance(nil, instance.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusPending, task.Status)
	}

	records, err := env.history.ListByInstance(instance.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ActionCreate, records[0].Action)
}

func TestStartUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Start(context.Background(), StartRequest{
		WorkflowCode: "nope",
		BusinessType: "content",
		BusinessID:   "1",
		InitiatorID:  "1",
	})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestStartInactiveWorkflow(t *testing.T) {
	env := newTestEnv(t)
	def := env.createWorkflow(t, "draft-flow",
		approvalNode("review", models.ApprovalModeAny, "7"))
	require.NoError(t, env.definitions.UpdateStatus(nil, def.ID, models.DefinitionStatusInactive))

	_, err := env.engine.Start(context.Background(), StartRequest{
		WorkflowCode: "draft-flow",
		BusinessType: "content",
		BusinessID:   "1",
		InitiatorID:  "1",
	})
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestDuplicateStartConflicts(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)

	_, err := env.engine.Start(context.Background(), StartRequest{
		WorkflowCode: "publish-review",
		BusinessType: "content",
		BusinessID:   "42",
		InitiatorID:  "2",
	})
	assert.ErrorIs(t, err, ErrConflict)

	// After the instance terminates, starting again succeeds.
	require.NoError(t, env.engine.Cancel(context.Background(), instance.ID, "1", "editor", "reprioritized"))

	again, err := env.engine.Start(context.Background(), StartRequest{
		WorkflowCode: "publish-review",
		BusinessType: "content",
		BusinessID:   "42",
		InitiatorID:  "2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusRunning, again.Status)
}

func TestAllModeBothApprove(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)
	ctx := context.Background()

	first, err := env.engine.Decide(ctx, DecideRequest{
		TaskID:  env.taskFor(t, instance.ID, "7").ID,
		ActorID: "7", ActorName: "alice",
		Action: models.ActionApprove, Comment: "lgtm",
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomePending, first.NodeOutcome)
	assert.Equal(t, models.InstanceStatusRunning, first.InstanceStatus)

	second, err := env.engine.Decide(ctx, DecideRequest{
		TaskID:  env.taskFor(t, instance.ID, "9").ID,
		ActorID: "9", ActorName: "bob",
		Action: models.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomeApproved, second.NodeOutcome)
	assert.Equal(t, models.InstanceStatusApproved, second.InstanceStatus)

	final := env.instanceByID(t, instance.ID)
	assert.Equal(t, models.InstanceStatusApproved, final.Status)
	assert.NotNil(t, final.CompletedAt)

	tasks, err := env.tasks.ListByInstance(nil, instance.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusApproved, task.Status)
	}

	records, err := env.history.ListByInstance(instance.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, models.ActionCreate, records[0].Action)
	assert.Equal(t, models.ActionApprove, records[1].Action)
	assert.Equal(t, models.ActionApprove, records[2].Action)
}

func TestAllModeRejectFailsFast(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)
	ctx := context.Background()

	nineTask := env.taskFor(t, instance.ID, "9")

	result, err := env.engine.Decide(ctx, DecideRequest{
		TaskID:  env.taskFor(t, instance.ID, "7").ID,
		ActorID: "7",
		Action:  models.ActionReject, Comment: "needs work",
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomeRejected, result.NodeOutcome)
	assert.Equal(t, models.InstanceStatusRejected, result.InstanceStatus)

	final := env.instanceByID(t, instance.ID)
	assert.Equal(t, models.InstanceStatusRejected, final.Status)

	cancelled, err := env.tasks.GetByID(nil, nineTask.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, cancelled.Status)

	// The sibling's decision after termination is a conflict.
	_, err = env.engine.Decide(ctx, DecideRequest{
		TaskID:  nineTask.ID,
		ActorID: "9",
		Action:  models.ActionApprove,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAnyModeOneApprovalResolves(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t, "any-flow",
		approvalNode("review", models.ApprovalModeAny, "7", "9", "11"))
	ctx := context.Background()

	instance, err := env.engine.Start(ctx, StartRequest{
		WorkflowCode: "any-flow",
		BusinessType: "content", BusinessID: "5",
		InitiatorID: "1",
	})
	require.NoError(t, err)

	result, err := env.engine.Decide(ctx, DecideRequest{
		TaskID:  env.taskFor(t, instance.ID, "9").ID,
		ActorID: "9",
		Action:  models.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomeApproved, result.NodeOutcome)
	assert.Equal(t, models.InstanceStatusApproved, result.InstanceStatus)

	// Unactioned siblings are cancelled, never reopened.
	tasks, err := env.tasks.ListByInstance(nil, instance.ID)
	require.NoError(t, err)
	cancelled := 0
	for _, task := range tasks {
		if task.Status == models.TaskStatusCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 2, cancelled)
}

func TestAnyModeRejectsOnlyWhenAllReject(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t, "any-flow",
		approvalNode("review", models.ApprovalModeAny, "7", "9"))
	ctx := context.Background()

	instance, err := env.engine.Start(ctx, StartRequest{
		WorkflowCode: "any-flow",
		BusinessType: "content", BusinessID: "6",
		InitiatorID: "1",
	})
	require.NoError(t, err)

	first, err := env.engine.Decide(ctx, DecideRequest{
		TaskID:  env.taskFor(t, instance.ID, "7").ID,
		ActorID: "7",
		Action:  models.ActionReject,
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomePending, first.NodeOutcome)
	assert.Equal(t, models.InstanceStatusRunning, first.InstanceStatus)

	second, err := env.engine.Decide(ctx, DecideRequest{
		TaskID:  env.taskFor(t, instance.ID, "9").ID,
		ActorID: "9",
		Action:  models.ActionReject,
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomeRejected, second.NodeOutcome)
	assert.Equal(t, models.InstanceStatusRejected, second.InstanceStatus)
}

func TestSequentialMaterializesLazily(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t, "seq-flow",
		approvalNode("chain", models.ApprovalModeSequential, "a", "b", "c"))
	ctx := context.Background()

	instance, err := env.engine.Start(ctx, StartRequest{
		WorkflowCode: "seq-flow",
		BusinessType: "content", BusinessID: "7",
		InitiatorID: "1",
	})
	require.NoError(t, err)

	// Only the first assignee's task exists.
	tasks, err := env.tasks.ListByInstance(nil, instance.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].AssigneeID)

	result, err := env.engine.Decide(ctx, DecideRequest{
		TaskID: tasks[0].ID, ActorID: "a", Action: models.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomePending, result.NodeOutcome)

	tasks, err = env.tasks.ListByInstance(nil, instance.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "b", tasks[1].AssigneeID)

	// A mid-chain rejection terminates without materializing "c".
	result, err = env.engine.Decide(ctx, DecideRequest{
		TaskID: tasks[1].ID, ActorID: "b", Action: models.ActionReject,
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomeRejected, result.NodeOutcome)
	assert.Equal(t, models.InstanceStatusRejected, result.InstanceStatus)

	tasks, err = env.tasks.ListByInstance(nil, instance.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestSequentialFullChainApproves(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t, "seq-flow",
		approvalNode("chain", models.ApprovalModeSequential, "a", "b"))
	ctx := context.Background()

	instance, err := env.engine.Start(ctx, StartRequest{
		WorkflowCode: "seq-flow",
		BusinessType: "content", BusinessID: "8",
		InitiatorID: "1",
	})
	require.NoError(t, err)

	_, err = env.engine.Decide(ctx, DecideRequest{
		TaskID: env.taskFor(t, instance.ID, "a").ID, ActorID: "a", Action: models.ActionApprove,
	})
	require.NoError(t, err)

	result, err := env.engine.Decide(ctx, DecideRequest{
		TaskID: env.taskFor(t, instance.ID, "b").ID, ActorID: "b", Action: models.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomeApproved, result.NodeOutcome)
	assert.Equal(t, models.InstanceStatusApproved, result.InstanceStatus)
}

func TestMultiNodeAdvance(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t, "two-step",
		approvalNode("first", models.ApprovalModeAny, "7"),
		approvalNode("second", models.ApprovalModeAll, "8", "9"))
	ctx := context.Background()

	instance, err := env.engine.Start(ctx, StartRequest{
		WorkflowCode: "two-step",
		BusinessType: "content", BusinessID: "9",
		InitiatorID: "1",
	})
	require.NoError(t, err)

	result, err := env.engine.Decide(ctx, DecideRequest{
		TaskID: env.taskFor(t, instance.ID, "7").ID, ActorID: "7", Action: models.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, NodeOutcomeApproved, result.NodeOutcome)
	assert.True(t, result.NodeAdvanced)
	assert.Equal(t, models.InstanceStatusRunning, result.InstanceStatus)

	advanced := env.instanceByID(t, instance.ID)
	assert.NotEqual(t, instance.CurrentNodeID, advanced.CurrentNodeID)

	// Second node's tasks materialized; deciding both completes the run.
	_, err = env.engine.Decide(ctx, DecideRequest{
		TaskID: env.taskFor(t, instance.ID, "8").ID, ActorID: "8", Action: models.ActionApprove,
	})
	require.NoError(t, err)
	result, err = env.engine.Decide(ctx, DecideRequest{
		TaskID: env.taskFor(t, instance.ID, "9").ID, ActorID: "9", Action: models.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, result.InstanceStatus)
}

func TestConditionNodePassesThrough(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t, "with-condition",
		approvalNode("first", models.ApprovalModeAny, "7"),
		&models.WorkflowNode{
			Name: "gate", Type: models.NodeTypeCondition,
			ConditionExpression: "amount > 1000",
		},
		approvalNode("second", models.ApprovalModeAny, "8"))
	ctx := context.Background()

	instance, err := env.engine.Start(ctx, StartRequest{
		WorkflowCode: "with-condition",
		BusinessType: "content", BusinessID: "10",
		InitiatorID: "1",
	})
	require.NoError(t, err)

	result, err := env.engine.Decide(ctx, DecideRequest{
		TaskID: env.taskFor(t, instance.ID, "7").ID, ActorID: "7", Action: models.ActionApprove,
	})
	require.NoError(t, err)
	assert.True(t, result.NodeAdvanced)

	// The condition node was skipped; user 8's task is live.
	task := env.taskFor(t, instance.ID, "8")
	assert.Equal(t, models.TaskStatusPending, task.Status)
}

func TestVacuousWorkflowImmediatelyApproved(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t, "no-approvals")

	instance, err := env.engine.Start(context.Background(), StartRequest{
		WorkflowCode: "no-approvals",
		BusinessType: "content", BusinessID: "11",
		InitiatorID: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, instance.Status)
	assert.NotNil(t, instance.CompletedAt)

	tasks, err := env.tasks.ListByInstance(nil, instance.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDecideTwiceAlreadyProcessed(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)
	ctx := context.Background()

	task := env.taskFor(t, instance.ID, "7")
	_, err := env.engine.Decide(ctx, DecideRequest{
		TaskID: task.ID, ActorID: "7", Action: models.ActionApprove,
	})
	require.NoError(t, err)

	_, err = env.engine.Decide(ctx, DecideRequest{
		TaskID: task.ID, ActorID: "7", Action: models.ActionApprove,
	})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	// Instance state was not mutated by the failed decision.
	assert.Equal(t, models.InstanceStatusRunning, env.instanceByID(t, instance.ID).Status)
}

func TestDecideByWrongActor(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)

	task := env.taskFor(t, instance.ID, "7")
	_, err := env.engine.Decide(context.Background(), DecideRequest{
		TaskID: task.ID, ActorID: "999", Action: models.ActionApprove,
	})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestDecideUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)

	task := env.taskFor(t, instance.ID, "7")
	_, err := env.engine.Decide(context.Background(), DecideRequest{
		TaskID: task.ID, ActorID: "7", Action: "ESCALATE",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTransferReassignsWithoutResolving(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)
	ctx := context.Background()

	task := env.taskFor(t, instance.ID, "7")
	err := env.engine.Transfer(ctx, TransferRequest{
		TaskID:       task.ID,
		ActorID:      "7",
		TargetUserID: "13", TargetName: "carol",
		Reason: "on leave",
	})
	require.NoError(t, err)

	// The original assignee lost the task.
	_, err = env.engine.Decide(ctx, DecideRequest{
		TaskID: task.ID, ActorID: "7", Action: models.ActionApprove,
	})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	moved, err := env.tasks.GetByID(nil, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "13", moved.AssigneeID)
	assert.Equal(t, models.TaskStatusPending, moved.Status)
	assert.Equal(t, "13", moved.TransferredTo)
	assert.NotNil(t, moved.TransferredAt)

	// The new assignee can decide.
	_, err = env.engine.Decide(ctx, DecideRequest{
		TaskID: task.ID, ActorID: "13", Action: models.ActionApprove,
	})
	require.NoError(t, err)

	records, err := env.history.ListByInstance(instance.ID)
	require.NoError(t, err)
	var actions []string
	for _, record := range records {
		actions = append(actions, record.Action)
	}
	assert.Contains(t, actions, models.ActionTransfer)
}

func TestTransferTerminalTaskFails(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)
	ctx := context.Background()

	task := env.taskFor(t, instance.ID, "7")
	_, err := env.engine.Decide(ctx, DecideRequest{
		TaskID: task.ID, ActorID: "7", Action: models.ActionApprove,
	})
	require.NoError(t, err)

	err = env.engine.Transfer(ctx, TransferRequest{
		TaskID: task.ID, ActorID: "7", TargetUserID: "13",
	})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestCancelTerminatesAndIsNotRepeatable(t *testing.T) {
	env := newTestEnv(t)
	instance := startPublishReview(t, env)
	ctx := context.Background()

	require.NoError(t, env.engine.Cancel(ctx, instance.ID, "1", "editor", "withdrawn"))

	final := env.instanceByID(t, instance.ID)
	assert.Equal(t, models.InstanceStatusCancelled, final.Status)

	tasks, err := env.tasks.ListByInstance(nil, instance.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, models.TaskStatusCancelled, task.Status)
	}

	err = env.engine.Cancel(ctx, instance.ID, "1", "editor", "again")
	assert.ErrorIs(t, err, ErrConflict)
}

type recordingListener struct {
	completed []*models.WorkflowInstance
}

func (l *recordingListener) OnWorkflowCompleted(_ context.Context, instance *models.WorkflowInstance) {
	l.completed = append(l.completed, instance)
}

func TestCompletionListenerNotified(t *testing.T) {
	env := newTestEnv(t)
	listener := &recordingListener{}
	env.engine.SetCompletionListener(listener)

	instance := startPublishReview(t, env)
	ctx := context.Background()

	_, err := env.engine.Decide(ctx, DecideRequest{
		TaskID: env.taskFor(t, instance.ID, "7").ID, ActorID: "7", Action: models.ActionApprove,
	})
	require.NoError(t, err)
	assert.Empty(t, listener.completed)

	_, err = env.engine.Decide(ctx, DecideRequest{
		TaskID: env.taskFor(t, instance.ID, "9").ID, ActorID: "9", Action: models.ActionApprove,
	})
	require.NoError(t, err)

	require.Len(t, listener.completed, 1)
	assert.Equal(t, models.InstanceStatusApproved, listener.completed[0].Status)
	assert.Equal(t, instance.ID, listener.completed[0].ID)
}

func TestHistoryReplayMatchesFinalState(t *testing.T) {
	env := newTestEnv(t)
	env.createWorkflow(t, "two-step",
		approvalNode("first", models.ApprovalModeAny, "7"),
		approvalNode("second", models.ApprovalModeSequential, "8", "9"))
	ctx := context.Background()

	instance, err := env.engine.Start(ctx, StartRequest{
		WorkflowCode: "two-step",
		BusinessType: "content", BusinessID: "12",
		InitiatorID: "1", Comment: "please review",
	})
	require.NoError(t, err)

	for _, actor := range []string{"7", "8", "9"} {
		_, err := env.engine.Decide(ctx, DecideRequest{
			TaskID: env.taskFor(t, instance.ID, actor).ID, ActorID: actor, Action: models.ActionApprove,
		})
		require.NoError(t, err)
	}

	records, err := env.history.ListByInstance(instance.ID)
	require.NoError(t, err)
	require.Len(t, records, 4)

	// Strictly append-only, ordered by creation: CREATE then the three
	// approvals on the critical path.
	assert.Equal(t, models.ActionCreate, records[0].Action)
	for i, record := range records[1:] {
		assert.Equal(t, models.ActionApprove, record.Action, "record %d", i+1)
	}
	assert.Equal(t, []string{"1", "7", "8", "9"},
		[]string{records[0].ActorID, records[1].ActorID, records[2].ActorID, records[3].ActorID})

	assert.Equal(t, models.InstanceStatusApproved, env.instanceByID(t, instance.ID).Status)
}
