package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
)

type mockPlanner struct {
	mock.Mock
}

func (m *mockPlanner) Plan(ctx context.Context, goal string, state *schemas.RunState) (*schemas.Plan, error) {
	args := m.Called(ctx, goal, state)
	if p, ok := args.Get(0).(*schemas.Plan); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlanner) Replan(ctx context.Context, goal string, state *schemas.RunState, failed schemas.SubTask) (*schemas.Plan, error) {
	args := m.Called(ctx, goal, state, failed)
	if p, ok := args.Get(0).(*schemas.Plan); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, goal string, st schemas.SubTask, sess schemas.Session) *schemas.ExecutionOutcome {
	args := m.Called(ctx, goal, st, sess)
	return args.Get(0).(*schemas.ExecutionOutcome)
}

type mockEnv struct {
	mock.Mock
}

func (m *mockEnv) Reset(ctx context.Context, task schemas.TaskConfig) (schemas.Session, error) {
	args := m.Called(ctx, task)
	if s, ok := args.Get(0).(schemas.Session); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Observe(ctx context.Context) (*schemas.Observation, error) {
	args := m.Called(ctx)
	if obs, ok := args.Get(0).(*schemas.Observation); ok {
		return obs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSession) Act(ctx context.Context, action schemas.Action) (*schemas.ActResult, error) {
	args := m.Called(ctx, action)
	if res, ok := args.Get(0).(*schemas.ActResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func testBudgets() config.BudgetsConfig {
	return config.BudgetsConfig{MaxTotalSteps: 120, MaxReplans: 3, MaxWallClock: 30 * time.Minute}
}

func testTask() schemas.TaskConfig {
	return schemas.TaskConfig{TaskID: 7, Intent: "buy a blue mug", StartURL: "http://shop.test"}
}

func subTaskByDescription(desc string) interface{} {
	return mock.MatchedBy(func(st schemas.SubTask) bool { return st.Description == desc })
}

func outcome(status schemas.OutcomeStatus, subTaskID string, steps int, answer string) *schemas.ExecutionOutcome {
	return &schemas.ExecutionOutcome{
		Status:     status,
		Answer:     answer,
		Summary:    fmt.Sprintf("%s after %d steps", status, steps),
		Trajectory: schemas.Trajectory{SubTaskID: subTaskID, Steps: make([]schemas.Step, steps)},
	}
}

func newOrchestrator(t *testing.T, budgets config.BudgetsConfig, pl *mockPlanner, ex *mockExecutor, env *mockEnv) *Orchestrator {
	t.Helper()
	o, err := New(budgets, pl, ex, env, zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

func newReadySession(env *mockEnv) *mockSession {
	sess := new(mockSession)
	sess.On("Close", mock.Anything).Return(nil).Once()
	env.On("Reset", mock.Anything, mock.Anything).Return(sess, nil).Once()
	return sess
}

func TestRunRejectsNilDependencies(t *testing.T) {
	_, err := New(testBudgets(), nil, new(mockExecutor), new(mockEnv), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRunHappyPath(t *testing.T) {
	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)

	plan := &schemas.Plan{SubTasks: []schemas.SubTask{
		{ID: "t1", Description: "search for mugs", Status: schemas.StatusPending},
		{ID: "t2", Description: "read the price", Status: schemas.StatusPending},
	}}
	pl.On("Plan", mock.Anything, "buy a blue mug", mock.Anything).Return(plan, nil).Once()
	ex.On("Execute", mock.Anything, mock.Anything, subTaskByDescription("search for mugs"), sess).
		Return(outcome(schemas.OutcomeSucceeded, "t1", 4, "")).Once()
	ex.On("Execute", mock.Anything, mock.Anything, subTaskByDescription("read the price"), sess).
		Return(outcome(schemas.OutcomeSucceeded, "t2", 2, "$24.99")).Once()

	state, err := newOrchestrator(t, testBudgets(), pl, ex, env).Run(context.Background(), testTask())
	require.NoError(t, err)

	require.True(t, state.Finalized())
	require.NotNil(t, state.Verdict)
	assert.Equal(t, schemas.VerdictCompleted, state.Verdict.Kind)
	assert.Equal(t, "$24.99", state.Verdict.Answer)
	assert.Equal(t, 6, state.StepCount)
	assert.Zero(t, state.ReplanCount)

	// Sub-tasks ran strictly in order, one attempt each.
	require.Len(t, state.History, 2)
	assert.Equal(t, "t1", state.History[0].SubTaskID)
	assert.Equal(t, "t2", state.History[1].SubTaskID)
	for _, st := range state.Plan.SubTasks {
		assert.Equal(t, schemas.StatusSucceeded, st.Status)
		assert.Equal(t, 1, st.Attempts)
	}
	sess.AssertExpectations(t)
	ex.AssertExpectations(t)
}

func TestRunReplansOnFailure(t *testing.T) {
	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)

	initial := &schemas.Plan{SubTasks: []schemas.SubTask{
		{ID: "t1", Description: "open the catalog", Status: schemas.StatusPending},
		{ID: "t2", Description: "pick a blue mug", Status: schemas.StatusPending},
	}}
	pl.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(initial, nil).Once()

	ex.On("Execute", mock.Anything, mock.Anything, subTaskByDescription("open the catalog"), sess).
		Return(outcome(schemas.OutcomeSucceeded, "t1", 3, "")).Once()
	ex.On("Execute", mock.Anything, mock.Anything, subTaskByDescription("pick a blue mug"), sess).
		Return(outcome(schemas.OutcomeFailed, "t2", 5, "")).Once()

	pl.On("Replan", mock.Anything, mock.Anything, mock.Anything, subTaskByDescription("pick a blue mug")).
		Run(func(args mock.Arguments) {
			// Replanning happens against a state where the failure has
			// already been recorded.
			state := args.Get(2).(*schemas.RunState)
			assert.Equal(t, schemas.StatusFailed, state.Plan.SubTasks[1].Status)
		}).
		Return(&schemas.Plan{SubTasks: []schemas.SubTask{
			{ID: "t1", Description: "open the catalog", Status: schemas.StatusSucceeded},
			{ID: "t3", Description: "search for blue mug instead", Status: schemas.StatusPending},
		}}, nil).Once()

	ex.On("Execute", mock.Anything, mock.Anything, subTaskByDescription("search for blue mug instead"), sess).
		Return(outcome(schemas.OutcomeSucceeded, "t3", 6, "added")).Once()

	state, err := newOrchestrator(t, testBudgets(), pl, ex, env).Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, schemas.VerdictCompleted, state.Verdict.Kind)
	assert.Equal(t, 1, state.ReplanCount)
	assert.Equal(t, 14, state.StepCount)

	// The failed sub-task survives in the retired list.
	require.Len(t, state.Retired, 1)
	assert.Equal(t, "t2", state.Retired[0].ID)
	assert.Equal(t, schemas.StatusFailed, state.Retired[0].Status)

	// The succeeded prefix is intact in the installed plan.
	assert.Equal(t, "t1", state.Plan.SubTasks[0].ID)
	assert.Equal(t, schemas.StatusSucceeded, state.Plan.SubTasks[0].Status)
	pl.AssertExpectations(t)
}

func TestRunTimedOutTriggersReplanToo(t *testing.T) {
	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)

	pl.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(&schemas.Plan{SubTasks: []schemas.SubTask{
		{ID: "t1", Description: "slow task", Status: schemas.StatusPending},
	}}, nil).Once()
	ex.On("Execute", mock.Anything, mock.Anything, mock.Anything, sess).
		Return(outcome(schemas.OutcomeTimedOut, "t1", 30, "")).Once()
	pl.On("Replan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&schemas.Plan{SubTasks: []schemas.SubTask{
			{ID: "t2", Description: "faster route", Status: schemas.StatusPending},
		}}, nil).Once()
	ex.On("Execute", mock.Anything, mock.Anything, subTaskByDescription("faster route"), sess).
		Return(outcome(schemas.OutcomeSucceeded, "t2", 1, "ok")).Once()

	state, err := newOrchestrator(t, testBudgets(), pl, ex, env).Run(context.Background(), testTask())
	require.NoError(t, err)
	assert.Equal(t, schemas.VerdictCompleted, state.Verdict.Kind)
	assert.Equal(t, 1, state.ReplanCount)
}

func TestRunReplanBudgetExhausted(t *testing.T) {
	budgets := testBudgets()
	budgets.MaxReplans = 1

	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)

	pl.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(&schemas.Plan{SubTasks: []schemas.SubTask{
		{ID: "t1", Description: "doomed", Status: schemas.StatusPending},
	}}, nil).Once()
	ex.On("Execute", mock.Anything, mock.Anything, mock.Anything, sess).
		Return(outcome(schemas.OutcomeFailed, "t1", 2, "")).Once()
	pl.On("Replan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&schemas.Plan{SubTasks: []schemas.SubTask{
			{ID: "t2", Description: "still doomed", Status: schemas.StatusPending},
		}}, nil).Once()
	ex.On("Execute", mock.Anything, mock.Anything, subTaskByDescription("still doomed"), sess).
		Return(outcome(schemas.OutcomeFailed, "t2", 2, "")).Once()

	state, err := newOrchestrator(t, budgets, pl, ex, env).Run(context.Background(), testTask())
	require.NoError(t, err)

	require.NotNil(t, state.Verdict)
	assert.Equal(t, schemas.VerdictExhaustedBudget, state.Verdict.Kind)
	assert.Contains(t, state.Verdict.Reason, "replan budget")
	assert.Equal(t, 1, state.ReplanCount)
	pl.AssertNumberOfCalls(t, "Replan", 1)
}

func TestRunPlanningErrorIsUnrecoverable(t *testing.T) {
	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)

	pl.On("Plan", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("planning failed after 3 attempts"))

	state, err := newOrchestrator(t, testBudgets(), pl, ex, env).Run(context.Background(), testTask())
	require.NoError(t, err, "planning failures are a verdict, not an infrastructure error")

	require.NotNil(t, state.Verdict)
	assert.Equal(t, schemas.VerdictUnrecoverable, state.Verdict.Kind)
	assert.Contains(t, state.Verdict.Reason, "planning failed")
	sess.AssertExpectations(t)
	ex.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunReplanErrorIsUnrecoverable(t *testing.T) {
	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)

	pl.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(&schemas.Plan{SubTasks: []schemas.SubTask{
		{ID: "t1", Description: "fragile", Status: schemas.StatusPending},
	}}, nil).Once()
	ex.On("Execute", mock.Anything, mock.Anything, mock.Anything, sess).
		Return(outcome(schemas.OutcomeFailed, "t1", 1, "")).Once()
	pl.On("Replan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("replanning failed after 3 attempts"))

	state, err := newOrchestrator(t, testBudgets(), pl, ex, env).Run(context.Background(), testTask())
	require.NoError(t, err)
	assert.Equal(t, schemas.VerdictUnrecoverable, state.Verdict.Kind)
}

func TestRunEnvironmentResetFailure(t *testing.T) {
	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	env.On("Reset", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("chrome did not start"))

	state, err := newOrchestrator(t, testBudgets(), pl, ex, env).Run(context.Background(), testTask())
	require.Error(t, err, "a dead environment is an infrastructure failure")

	require.NotNil(t, state.Verdict)
	assert.Equal(t, schemas.VerdictUnrecoverable, state.Verdict.Kind)
	pl.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunTotalStepBudget(t *testing.T) {
	budgets := testBudgets()
	budgets.MaxTotalSteps = 10

	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)

	pl.On("Plan", mock.Anything, mock.Anything, mock.Anything).Return(&schemas.Plan{SubTasks: []schemas.SubTask{
		{ID: "t1", Description: "first", Status: schemas.StatusPending},
		{ID: "t2", Description: "second", Status: schemas.StatusPending},
	}}, nil).Once()
	ex.On("Execute", mock.Anything, mock.Anything, subTaskByDescription("first"), sess).
		Return(outcome(schemas.OutcomeSucceeded, "t1", 10, "")).Once()

	state, err := newOrchestrator(t, budgets, pl, ex, env).Run(context.Background(), testTask())
	require.NoError(t, err)

	assert.Equal(t, schemas.VerdictExhaustedBudget, state.Verdict.Kind)
	assert.Contains(t, state.Verdict.Reason, "step budget")
	// The second sub-task never ran.
	ex.AssertNumberOfCalls(t, "Execute", 1)
}

func TestRunWallClockBudget(t *testing.T) {
	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)
	_ = sess

	o := newOrchestrator(t, testBudgets(), pl, ex, env)
	o.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	state, err := o.Run(context.Background(), testTask())
	require.NoError(t, err)
	assert.Equal(t, schemas.VerdictExhaustedBudget, state.Verdict.Kind)
	assert.Contains(t, state.Verdict.Reason, "wall clock")
	pl.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCancelledContext(t *testing.T) {
	pl, ex, env := new(mockPlanner), new(mockExecutor), new(mockEnv)
	sess := newReadySession(env)
	_ = sess

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := newOrchestrator(t, testBudgets(), pl, ex, env).Run(ctx, testTask())
	require.NoError(t, err)
	assert.Equal(t, schemas.VerdictExhaustedBudget, state.Verdict.Kind)
	assert.Contains(t, state.Verdict.Reason, "cancelled")
}
