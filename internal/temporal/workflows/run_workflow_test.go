package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/temporal/activities"
)

// newTestRun returns a running run for tests.
func newTestRun(mode domain.RunMode) *domain.Run {
	cfg := domain.DefaultRunConfiguration()
	cfg.MaxResults = 10
	return &domain.Run{
		ID:            uuid.New(),
		Niche:         "ремонт квартир",
		Base:          "msk",
		Regions:       []int{213},
		Mode:          mode,
		Configuration: cfg,
		Status:        domain.RunStatusRunning,
	}
}

func startedOutput(run *domain.Run) *activities.StartRunOutput {
	return &activities.StartRunOutput{
		Run:          run,
		Seeds:        []string{"ремонт квартир под ключ", "ремонт квартир цена"},
		StartedAt:    time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
		PollInterval: 3 * time.Second,
		MaxWait:      10 * time.Second,
	}
}

func candidate(phrase string, wsk int) domain.Candidate {
	return domain.Candidate{DestinationKey: phrase, WSK: wsk, NumWords: 4}
}

// mockThroughSubmit mocks every activity up to and including job submission.
func mockThroughSubmit(env *testsuite.TestWorkflowEnvironment, run *domain.Run) {
	var act *activities.RunActivities

	env.OnActivity(act.StartRun, mock.Anything, mock.Anything).Return(startedOutput(run), nil)
	env.OnActivity(act.SuggestPhrases, mock.Anything, mock.Anything).Return(
		&activities.SuggestPhrasesOutput{
			Phrases:     []string{"ремонт квартир под ключ", "ремонт квартир цена", "ремонт квартир недорого"},
			Suggestions: 1,
		}, nil,
	)
	env.OnActivity(act.SubmitExpansion, mock.Anything, mock.Anything).Return(
		&activities.SubmitExpansionOutput{JobUID: "job-1"}, nil,
	)
}

func markFailedWith(kind domain.FailureKind) any {
	return mock.MatchedBy(func(in activities.MarkFailedInput) bool {
		return in.Kind == kind
	})
}

func TestKeywordRunWorkflow_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	run := newTestRun(domain.RunModeSingle)
	var act *activities.RunActivities

	mockThroughSubmit(env, run)

	// First poll reports progress, second poll reports completion.
	env.OnActivity(act.CheckExpansion, mock.Anything, mock.Anything).Return(
		&activities.CheckExpansionOutput{State: 1, Progress: 40}, nil,
	).Once()
	env.OnActivity(act.CheckExpansion, mock.Anything, mock.Anything).Return(
		&activities.CheckExpansionOutput{State: domain.JobStateSucceeded, Progress: 100}, nil,
	).Once()

	collected := []domain.Candidate{
		candidate("ремонт квартир под ключ недорого", 30),
		candidate("ремонт квартир под ключ недорого", 30),
		candidate("ремонт квартир цена за метр", 20),
	}
	env.OnActivity(act.CollectCandidates, mock.Anything, mock.Anything).Return(
		&activities.CollectCandidatesOutput{Candidates: collected, Collected: 5}, nil,
	)
	env.OnActivity(act.Deduplicate, mock.Anything, mock.Anything).Return(
		&activities.DeduplicateOutput{Candidates: []domain.Candidate{collected[0], collected[2]}, Duplicates: 1}, nil,
	)
	env.OnActivity(act.SaveResults, mock.Anything, mock.MatchedBy(func(in activities.SaveResultsInput) bool {
		return in.RunID == run.ID && in.JobUID == "job-1" && len(in.Candidates) == 2
	})).Return(nil)

	env.ExecuteWorkflow(KeywordRunWorkflow, RunWorkflowInput{RunID: run.ID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RunWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, run.ID, result.RunID)
	assert.Equal(t, string(domain.RunStatusCompleted), result.Status)
	assert.Equal(t, domain.JobHandle("job-1"), result.JobUID)
	assert.Equal(t, 2, result.Seeds)
	assert.Equal(t, 1, result.Suggestions)
	assert.Equal(t, 3, result.Submitted)
	assert.Equal(t, 5, result.Collected)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 2, result.Results)

	encoded, err := env.QueryWorkflow(QueryProgress)
	require.NoError(t, err)
	var p Progress
	require.NoError(t, encoded.Get(&p))
	assert.Equal(t, string(domain.RunStatusCompleted), p.Status)
	assert.Equal(t, "done", p.Phase)
	assert.Equal(t, 100, p.JobProgress)
	assert.Equal(t, 2, p.Results)

	env.AssertExpectations(t)
}

func TestKeywordRunWorkflow_Offline(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	run := newTestRun(domain.RunModeOffline)
	var act *activities.RunActivities

	env.OnActivity(act.StartRun, mock.Anything, mock.Anything).Return(startedOutput(run), nil)
	env.OnActivity(act.SaveResults, mock.Anything, mock.MatchedBy(func(in activities.SaveResultsInput) bool {
		return in.JobUID == "" && len(in.Candidates) == 2 && in.Candidates[0].Phrase() == "ремонт квартир под ключ"
	})).Return(nil)

	env.ExecuteWorkflow(KeywordRunWorkflow, RunWorkflowInput{RunID: run.ID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RunWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, string(domain.RunStatusCompleted), result.Status)
	assert.Equal(t, 2, result.Results)
	assert.Empty(t, result.JobUID)

	env.AssertExpectations(t)
}

func TestKeywordRunWorkflow_SkipsNonPendingRun(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var act *activities.RunActivities
	env.OnActivity(act.StartRun, mock.Anything, mock.Anything).Return(&activities.StartRunOutput{Skipped: true}, nil)

	id := uuid.New()
	env.ExecuteWorkflow(KeywordRunWorkflow, RunWorkflowInput{RunID: id})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RunWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, id, result.RunID)
	assert.Equal(t, StatusSkipped, result.Status)
}

func TestKeywordRunWorkflow_JobFailed(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	run := newTestRun(domain.RunModeSingle)
	var act *activities.RunActivities

	mockThroughSubmit(env, run)
	env.OnActivity(act.CheckExpansion, mock.Anything, mock.Anything).Return(
		&activities.CheckExpansionOutput{State: domain.JobStateFailed}, nil,
	)
	env.OnActivity(act.MarkFailed, mock.Anything, mock.MatchedBy(func(in activities.MarkFailedInput) bool {
		return in.RunID == run.ID &&
			in.Kind == domain.FailureJobFailed &&
			in.Message == "expansion job job-1 failed on the server"
	})).Return(nil).Once()

	env.ExecuteWorkflow(KeywordRunWorkflow, RunWorkflowInput{RunID: run.ID})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting")

	env.AssertExpectations(t)
}

func TestKeywordRunWorkflow_JobTimeout(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	run := newTestRun(domain.RunModeSingle)
	var act *activities.RunActivities

	mockThroughSubmit(env, run)

	polls := 0
	env.OnActivity(act.CheckExpansion, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ activities.CheckExpansionInput) (*activities.CheckExpansionOutput, error) {
			polls++
			return &activities.CheckExpansionOutput{State: 1, Progress: polls * 10}, nil
		},
	)
	env.OnActivity(act.MarkFailed, mock.Anything, markFailedWith(domain.FailureJobTimeout)).Return(nil).Once()

	env.ExecuteWorkflow(KeywordRunWorkflow, RunWorkflowInput{RunID: run.ID})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish")

	// Polls at 0s, 3s, 6s and 9s fit within the 10s ceiling.
	assert.Equal(t, 4, polls)

	encoded, qerr := env.QueryWorkflow(QueryProgress)
	require.NoError(t, qerr)
	var p Progress
	require.NoError(t, encoded.Get(&p))
	assert.Equal(t, string(domain.RunStatusFailed), p.Status)
	assert.Equal(t, "waiting", p.Phase)
	assert.Equal(t, 40, p.JobProgress)

	env.AssertExpectations(t)
}

func TestKeywordRunWorkflow_ActivityFailureKinds(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  domain.FailureKind
		wantPhase string
	}{
		{
			name:      "rejected token",
			err:       temporal.NewNonRetryableApplicationError("keyso rejected the API token", string(domain.FailureAuth), nil),
			wantKind:  domain.FailureAuth,
			wantPhase: "suggesting",
		},
		{
			name:      "retries exhausted",
			err:       temporal.NewNonRetryableApplicationError("giving up after 5 attempts", string(domain.FailureRetriesExhausted), nil),
			wantKind:  domain.FailureRetriesExhausted,
			wantPhase: "suggesting",
		},
		{
			name:      "cancelled",
			err:       temporal.NewCanceledError("workflow cancelled"),
			wantKind:  domain.FailureCancelled,
			wantPhase: "suggesting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			run := newTestRun(domain.RunModeSingle)
			var act *activities.RunActivities

			env.OnActivity(act.StartRun, mock.Anything, mock.Anything).Return(startedOutput(run), nil)
			env.OnActivity(act.SuggestPhrases, mock.Anything, mock.Anything).Return(nil, tt.err)
			env.OnActivity(act.MarkFailed, mock.Anything, markFailedWith(tt.wantKind)).Return(nil).Once()

			env.ExecuteWorkflow(KeywordRunWorkflow, RunWorkflowInput{RunID: run.ID})

			require.True(t, env.IsWorkflowCompleted())
			err := env.GetWorkflowError()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantPhase)

			env.AssertExpectations(t)
		})
	}
}

func TestKeywordRunWorkflow_CancelSignalDuringWait(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	run := newTestRun(domain.RunModeSingle)
	var act *activities.RunActivities

	mockThroughSubmit(env, run)
	env.OnActivity(act.CheckExpansion, mock.Anything, mock.Anything).Return(
		&activities.CheckExpansionOutput{State: 1, Progress: 5}, nil,
	)
	env.OnActivity(act.MarkFailed, mock.Anything, markFailedWith(domain.FailureCancelled)).Return(nil).Once()

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancel, nil)
	}, 4*time.Second)

	env.ExecuteWorkflow(KeywordRunWorkflow, RunWorkflowInput{RunID: run.ID})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting")

	env.AssertExpectations(t)
}

func TestKeywordRunWorkflow_StartFailureMarksRunFailed(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var act *activities.RunActivities
	env.OnActivity(act.StartRun, mock.Anything, mock.Anything).Return(
		nil, temporal.NewNonRetryableApplicationError("unknown base", string(domain.FailureConfig), nil),
	)
	env.OnActivity(act.MarkFailed, mock.Anything, markFailedWith(domain.FailureConfig)).Return(nil).Once()

	env.ExecuteWorkflow(KeywordRunWorkflow, RunWorkflowInput{RunID: uuid.New()})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")

	env.AssertExpectations(t)
}

func TestDescribeFailure(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    domain.FailureKind
		wantMessage string
	}{
		{
			name:        "kind from application error type",
			err:         temporal.NewNonRetryableApplicationError("expansion job job-1 failed on the server", string(domain.FailureJobFailed), nil),
			wantKind:    domain.FailureJobFailed,
			wantMessage: "expansion job job-1 failed on the server",
		},
		{
			name:        "go type name falls back to classification",
			err:         temporal.NewApplicationError("boom", "*errors.errorString"),
			wantKind:    domain.FailureInternal,
			wantMessage: "boom",
		},
		{
			name:        "workflow timeout error",
			err:         &domain.JobTimeoutError{Handle: "job-1", Waited: 12 * time.Second},
			wantKind:    domain.FailureJobTimeout,
			wantMessage: "expansion job job-1 did not finish within 12s",
		},
		{
			name:        "cancelled",
			err:         temporal.NewCanceledError(),
			wantKind:    domain.FailureCancelled,
			wantMessage: "run cancelled",
		},
		{
			name:        "plain error",
			err:         errors.New("unexpected"),
			wantKind:    domain.FailureInternal,
			wantMessage: "unexpected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, msg := describeFailure(tt.err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantMessage, msg)
		})
	}
}
