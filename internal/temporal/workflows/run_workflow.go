// Package workflows defines the Temporal workflow that executes a keyword
// research run.
package workflows

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/jobs"
	"github.com/helixir/keyword-hunter/internal/pipeline"
	khtemporal "github.com/helixir/keyword-hunter/internal/temporal"
	"github.com/helixir/keyword-hunter/internal/temporal/activities"
)

// Re-exported so callers of this package need not import the parent.
const (
	SignalCancel  = khtemporal.SignalCancel
	QueryProgress = khtemporal.QueryProgress
)

// Activity timeouts.
const (
	apiActivityTimeout     = 5 * time.Minute
	collectActivityTimeout = 15 * time.Minute
	statusActivityTimeout  = 30 * time.Second
)

// StatusSkipped is reported when the run had already left pending.
const StatusSkipped = "skipped"

// RunWorkflowInput is the shared input type from the parent package.
type RunWorkflowInput = khtemporal.RunWorkflowInput

// RunWorkflowResult summarizes a finished run.
type RunWorkflowResult struct {
	RunID  uuid.UUID
	Status string
	JobUID domain.JobHandle

	Seeds       int
	Suggestions int
	Submitted   int
	Collected   int
	Duplicates  int
	Results     int
}

// Progress is the answer to QueryProgress.
type Progress struct {
	Status      string
	Phase       string
	Seeds       int
	Suggestions int
	Submitted   int
	JobUID      domain.JobHandle
	JobProgress int
	Collected   int
	Results     int
}

// KeywordRunWorkflow executes one persisted run:
//  1. Generate seeds and mark the run running
//  2. Merge the seeds with their suggestions
//  3. Submit the expansion job and poll it with durable timers
//  4. Collect and filter the results, then remove duplicates
//  5. Store the candidates and complete the run
//
// Offline runs skip steps 2 to 4. A "cancel" signal stops the run and marks
// it failed; the "progress" query reports the current Progress.
func KeywordRunWorkflow(ctx workflow.Context, input RunWorkflowInput) (*RunWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	startedAt := workflow.Now(ctx)

	progress := &Progress{
		Status: string(domain.RunStatusPending),
		Phase:  "starting",
	}
	result := &RunWorkflowResult{RunID: input.RunID}

	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (*Progress, error) {
		return progress, nil
	}); err != nil {
		logger.Error("failed to register progress query handler", "error", err)
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	cancelCtx, cancelFunc := workflow.WithCancel(ctx)
	signalCh := workflow.GetSignalChannel(ctx, SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		signalCh.Receive(gCtx, nil)
		logger.Info("received cancel signal")
		cancelFunc()
	})

	var act *activities.RunActivities

	statusCtx := workflow.WithActivityOptions(cancelCtx, statusActivityOptions())

	// The API client retries transport faults itself; only internal
	// failures come back retryable.
	apiCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: apiActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	collectCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: collectActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	// handleFailure marks the run failed on the root context so a cancelled
	// workflow still records its outcome.
	handleFailure := func(phase string, originalErr error) (*RunWorkflowResult, error) {
		kind, message := describeFailure(originalErr)
		logger.Error("workflow failed", "phase", phase, "kind", kind, "error", originalErr)

		progress.Status = string(domain.RunStatusFailed)
		progress.Phase = phase

		failCtx := workflow.WithActivityOptions(ctx, statusActivityOptions())
		if err := workflow.ExecuteActivity(failCtx, act.MarkFailed, activities.MarkFailedInput{
			RunID:     input.RunID,
			Kind:      kind,
			Message:   message,
			StartedAt: startedAt,
		}).Get(ctx, nil); err != nil {
			logger.Error("failed to mark run failed", "error", err)
		}

		return nil, fmt.Errorf("%s: %w", phase, originalErr)
	}

	// Phase 1: seeds.
	var started activities.StartRunOutput
	if err := workflow.ExecuteActivity(statusCtx, act.StartRun, activities.StartRunInput{
		RunID: input.RunID,
	}).Get(cancelCtx, &started); err != nil {
		return handleFailure("start", err)
	}
	if started.Skipped {
		logger.Info("run is not pending, nothing to do", "runID", input.RunID)
		progress.Status = StatusSkipped
		progress.Phase = "done"
		result.Status = StatusSkipped
		return result, nil
	}

	run := started.Run
	startedAt = started.StartedAt
	progress.Status = string(domain.RunStatusRunning)
	progress.Seeds = len(started.Seeds)
	result.Seeds = len(started.Seeds)

	var final []domain.Candidate
	var jobUID domain.JobHandle

	if run.Mode == domain.RunModeOffline {
		progress.Phase = "offline"
		final = pipeline.Offline(started.Seeds, run.Configuration.MaxResults)
		logger.Info("offline run, skipping the analytics API", "seeds", len(started.Seeds), "results", len(final))
	} else {
		// Phase 2: suggestions.
		progress.Phase = "suggesting"
		var suggested activities.SuggestPhrasesOutput
		if err := workflow.ExecuteActivity(apiCtx, act.SuggestPhrases, activities.SuggestPhrasesInput{
			Run:   run,
			Seeds: started.Seeds,
		}).Get(cancelCtx, &suggested); err != nil {
			return handleFailure("suggesting", err)
		}
		progress.Suggestions = suggested.Suggestions
		progress.Submitted = len(suggested.Phrases)
		result.Suggestions = suggested.Suggestions
		result.Submitted = len(suggested.Phrases)

		// Phase 3: expansion job.
		progress.Phase = "submitting"
		var submitted activities.SubmitExpansionOutput
		if err := workflow.ExecuteActivity(apiCtx, act.SubmitExpansion, activities.SubmitExpansionInput{
			Run:     run,
			Phrases: suggested.Phrases,
		}).Get(cancelCtx, &submitted); err != nil {
			return handleFailure("submitting", err)
		}
		jobUID = submitted.JobUID
		progress.JobUID = jobUID
		result.JobUID = jobUID

		progress.Phase = "waiting"
		if err := awaitJob(cancelCtx, apiCtx, act, run, jobUID, started.PollInterval, started.MaxWait, progress); err != nil {
			return handleFailure("waiting", err)
		}

		// Phase 4: results.
		progress.Phase = "collecting"
		var collected activities.CollectCandidatesOutput
		if err := workflow.ExecuteActivity(collectCtx, act.CollectCandidates, activities.CollectCandidatesInput{
			Run:    run,
			JobUID: jobUID,
		}).Get(cancelCtx, &collected); err != nil {
			return handleFailure("collecting", err)
		}
		progress.Collected = collected.Collected
		result.Collected = collected.Collected

		progress.Phase = "deduplicating"
		var deduped activities.DeduplicateOutput
		if err := workflow.ExecuteActivity(apiCtx, act.Deduplicate, activities.DeduplicateInput{
			Run:        run,
			Candidates: collected.Candidates,
		}).Get(cancelCtx, &deduped); err != nil {
			return handleFailure("deduplicating", err)
		}
		result.Duplicates = deduped.Duplicates
		final = deduped.Candidates
	}

	// Phase 5: persist.
	progress.Phase = "saving"
	if err := workflow.ExecuteActivity(statusCtx, act.SaveResults, activities.SaveResultsInput{
		RunID:      input.RunID,
		JobUID:     jobUID,
		Candidates: final,
		StartedAt:  startedAt,
	}).Get(cancelCtx, nil); err != nil {
		return handleFailure("saving", err)
	}

	progress.Status = string(domain.RunStatusCompleted)
	progress.Phase = "done"
	progress.Results = len(final)
	result.Status = string(domain.RunStatusCompleted)
	result.Results = len(final)

	logger.Info("run workflow completed",
		"runID", input.RunID,
		"results", len(final),
		"duration", workflow.Now(ctx).Sub(startedAt).Seconds(),
	)
	return result, nil
}

// awaitJob polls the expansion job until it succeeds, fails, or maxWait
// elapses in workflow time. Waits between polls are durable timers.
func awaitJob(
	ctx workflow.Context,
	apiCtx workflow.Context,
	act *activities.RunActivities,
	run *domain.Run,
	jobUID domain.JobHandle,
	interval, maxWait time.Duration,
	progress *Progress,
) error {
	if interval <= 0 {
		interval = jobs.DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = jobs.DefaultMaxWait
	}
	waitStart := workflow.Now(ctx)

	for {
		elapsed := workflow.Now(ctx).Sub(waitStart)
		if elapsed >= maxWait {
			return &domain.JobTimeoutError{Handle: jobUID, Waited: elapsed}
		}

		var status activities.CheckExpansionOutput
		if err := workflow.ExecuteActivity(apiCtx, act.CheckExpansion, activities.CheckExpansionInput{
			Run:    run,
			JobUID: jobUID,
		}).Get(ctx, &status); err != nil {
			return err
		}
		progress.JobProgress = status.Progress

		switch status.State {
		case domain.JobStateSucceeded:
			return nil
		case domain.JobStateFailed:
			return &domain.JobFailedError{Handle: jobUID}
		}

		if err := workflow.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func statusActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: statusActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	}
}

// knownFailureKinds guards against application error types the SDK derives
// from Go type names.
var knownFailureKinds = map[domain.FailureKind]struct{}{
	domain.FailureAuth:             {},
	domain.FailureRetriesExhausted: {},
	domain.FailureJobNotCreated:    {},
	domain.FailureJobFailed:        {},
	domain.FailureJobTimeout:       {},
	domain.FailureConfig:           {},
	domain.FailureExternalAPI:      {},
	domain.FailureCancelled:        {},
	domain.FailureInternal:         {},
}

// describeFailure recovers the failure kind and message of err. Activity
// failures carry the kind as their application error type.
func describeFailure(err error) (domain.FailureKind, string) {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		kind := domain.FailureKind(appErr.Type())
		if _, ok := knownFailureKinds[kind]; ok {
			return kind, appErr.Message()
		}
	}
	if temporal.IsCanceledError(err) {
		return domain.FailureCancelled, "run cancelled"
	}
	return domain.ClassifyFailure(err), err.Error()
}
