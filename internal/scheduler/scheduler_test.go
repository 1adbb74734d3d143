package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/pipeline"
)

var testRef = domain.PoolRef{Chain: domain.ChainSepolia, PoolID: 7}

// stubStage plays every stage. Each call pops the next error; once errs is
// drained it succeeds with outcome.
type stubStage struct {
	calls   int
	errs    []error
	outcome pipeline.Outcome
	resumed []int
}

func (s *stubStage) next() (pipeline.Outcome, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.outcome, nil
}

func (s *stubStage) Archive(context.Context, domain.PoolRef) (pipeline.Outcome, error) {
	return s.next()
}

func (s *stubStage) Complete(context.Context, domain.PoolRef) (pipeline.Outcome, error) {
	return s.next()
}

func (s *stubStage) Notify(context.Context, domain.PoolRef) (pipeline.Outcome, error) {
	return s.next()
}

func (s *stubStage) Update(ctx context.Context, _ domain.PoolRef, p domain.Progress) (pipeline.Outcome, error) {
	s.resumed = append(s.resumed, p.Current())
	if err := p.Update(ctx, p.Current()+1); err != nil {
		return "", err
	}
	return s.next()
}

func testWorkflowConfig(attempts int) WorkflowConfig {
	return WorkflowConfig{
		Retry: RetryConfig{
			MaxAttempts:        attempts,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaxInterval:        time.Minute,
		},
		ActivityTimeout:  time.Minute,
		HeartbeatTimeout: 30 * time.Second,
	}
}

func TestArchiveWorkflowReturnsOutcome(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	stage := &stubStage{outcome: pipeline.OutcomeArchived}
	wf := NewWorkflows(testWorkflowConfig(3))
	Register(env, wf, NewActivities(Stages{Archiver: stage}))

	env.ExecuteWorkflow(ArchivePoolWorkflowName, testRef)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(pipeline.OutcomeArchived), out)
	require.Equal(t, 1, stage.calls)
}

func TestCompleteWorkflowRetriesTooEarly(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	stage := &stubStage{
		outcome: pipeline.OutcomeCompleted,
		errs: []error{
			fmt.Errorf("complete: %w", domain.ErrTooEarly),
			fmt.Errorf("rpc: connection reset"),
		},
	}
	Register(env, NewWorkflows(testWorkflowConfig(5)), NewActivities(Stages{Completer: stage}))

	env.ExecuteWorkflow(CompletePoolWorkflowName, testRef)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Equal(t, 3, stage.calls)
}

func TestWorkflowStopsAfterMaxAttempts(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	fatal := domain.Invariant("archiver", "expected %d predictions, read %d", 3, 2)
	stage := &stubStage{errs: []error{fatal, fatal, fatal, fatal}}
	Register(env, NewWorkflows(testWorkflowConfig(3)), NewActivities(Stages{Archiver: stage}))

	env.ExecuteWorkflow(ArchivePoolWorkflowName, testRef)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	require.Equal(t, 3, stage.calls)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, ErrTypeInvariant, appErr.Type())
	require.False(t, appErr.NonRetryable())
}

func TestActivityTranslatesErrors(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}

	cases := []struct {
		name    string
		err     error
		errType string
	}{
		{"too early", fmt.Errorf("archive: %w", domain.ErrTooEarly), ErrTypeTooEarly},
		{"invariant", domain.Invariant("completer", "winners mismatch"), ErrTypeInvariant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := suite.NewTestActivityEnvironment()
			acts := NewActivities(Stages{Notifier: &stubStage{errs: []error{tc.err}}})
			env.RegisterActivity(acts.NotifyCreator)

			_, err := env.ExecuteActivity(acts.NotifyCreator, testRef)
			require.Error(t, err)
			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			require.Equal(t, tc.errType, appErr.Type())
		})
	}
}

func TestTranslatePassesOtherErrors(t *testing.T) {
	require.NoError(t, translate(nil))
	plain := errors.New("rpc: timeout")
	require.Same(t, plain, translate(plain))
	require.Equal(t, domain.ErrTxSuperseded, translate(domain.ErrTxSuperseded))
}

func TestLeaderboardActivityResumesFromHeartbeat(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()

	stage := &stubStage{outcome: pipeline.OutcomeCredited}
	acts := NewActivities(Stages{Leaderboard: stage})
	env.RegisterActivity(acts.UpdateLeaderboard)
	env.SetHeartbeatDetails(2)

	val, err := env.ExecuteActivity(acts.UpdateLeaderboard, testRef)
	require.NoError(t, err)
	var out string
	require.NoError(t, val.Get(&out))
	require.Equal(t, string(pipeline.OutcomeCredited), out)
	require.Equal(t, []int{2}, stage.resumed)
}

func TestLeaderboardActivityStartsAtZero(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()

	stage := &stubStage{outcome: pipeline.OutcomeCredited}
	acts := NewActivities(Stages{Leaderboard: stage})
	env.RegisterActivity(acts.UpdateLeaderboard)

	_, err := env.ExecuteActivity(acts.UpdateLeaderboard, testRef)
	require.NoError(t, err)
	require.Equal(t, []int{0}, stage.resumed)
}

// fakeClient records workflow starts. Unused client methods panic.
type fakeClient struct {
	client.Client
	starts []client.StartWorkflowOptions
	names  []interface{}
	args   [][]interface{}
	err    error
}

func (f *fakeClient) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, wf interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.starts = append(f.starts, opts)
	f.names = append(f.names, wf)
	f.args = append(f.args, args)
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueEnqueueStartsDelayedWorkflow(t *testing.T) {
	c := &fakeClient{}
	q := NewQueue(c, "castora-settlement", discardLogger())

	err := q.Enqueue(context.Background(), domain.JobCompletePool, testRef, domain.EnqueueOptions{Delay: 90 * time.Second})
	require.NoError(t, err)
	require.Len(t, c.starts, 1)

	opts := c.starts[0]
	require.Equal(t, "complete-pool:sepolia:7", opts.ID)
	require.Equal(t, "castora-settlement", opts.TaskQueue)
	require.Equal(t, 90*time.Second, opts.StartDelay)
	require.Equal(t, enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY, opts.WorkflowIDReusePolicy)
	require.Equal(t, CompletePoolWorkflowName, c.names[0])
	require.Equal(t, []interface{}{testRef}, c.args[0])
}

func TestQueueEnqueueExplicitJobID(t *testing.T) {
	c := &fakeClient{}
	q := NewQueue(c, "q", discardLogger())

	require.NoError(t, q.Enqueue(context.Background(), domain.JobArchivePool, testRef, domain.EnqueueOptions{JobID: "custom"}))
	require.Equal(t, "custom", c.starts[0].ID)
}

func TestQueueEnqueueAlreadyStartedIsNotAnError(t *testing.T) {
	c := &fakeClient{err: serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run-1")}
	q := NewQueue(c, "q", discardLogger())

	require.NoError(t, q.Enqueue(context.Background(), domain.JobArchivePool, testRef, domain.EnqueueOptions{}))
}

func TestQueueEnqueueErrors(t *testing.T) {
	c := &fakeClient{err: errors.New("unavailable")}
	q := NewQueue(c, "q", discardLogger())

	err := q.Enqueue(context.Background(), domain.JobArchivePool, testRef, domain.EnqueueOptions{})
	require.ErrorContains(t, err, "archive-pool:sepolia:7")

	err = q.Enqueue(context.Background(), domain.JobName("reindex"), testRef, domain.EnqueueOptions{})
	require.ErrorContains(t, err, "unknown job")
}

func TestEveryJobHasAWorkflow(t *testing.T) {
	for _, job := range []domain.JobName{
		domain.JobArchivePool,
		domain.JobCompletePool,
		domain.JobUpdateLeaderboard,
		domain.JobNotifyCreator,
	} {
		_, ok := WorkflowName(job)
		require.True(t, ok, job)
	}
}
