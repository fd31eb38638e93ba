package activities

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/pipeline"
	"github.com/helixir/keyword-hunter/internal/runner"
)

// RunService is the part of *runner.Service the activities drive.
type RunService interface {
	Start(ctx context.Context, runID uuid.UUID) (*runner.Started, error)
	Pipeline(run *domain.Run) *pipeline.Pipeline
	RecordProgress(ctx context.Context, runID uuid.UUID, handle domain.JobHandle, progress int)
	Complete(ctx context.Context, runID uuid.UUID, jobUID domain.JobHandle, cands []domain.Candidate, start time.Time) error
	Fail(ctx context.Context, runID uuid.UUID, kind domain.FailureKind, message string, start time.Time)
	Keyso() config.KeysoConfig
}

var _ RunService = (*runner.Service)(nil)

// RunActivities provides the steps of a keyword run as Temporal activities.
//
// Methods on this struct are registered as Temporal activities via the worker.
type RunActivities struct {
	runs RunService
}

// NewRunActivities creates RunActivities over runs.
func NewRunActivities(runs RunService) *RunActivities {
	return &RunActivities{runs: runs}
}

// StartRun generates the seeds of a pending run and marks it running.
func (a *RunActivities) StartRun(ctx context.Context, input StartRunInput) (*StartRunOutput, error) {
	logger := activity.GetLogger(ctx)

	st, err := a.runs.Start(ctx, input.RunID)
	if err != nil {
		logger.Error("failed to start run", "runID", input.RunID, "error", err)
		return nil, runError(fmt.Errorf("start run %s: %w", input.RunID, err))
	}
	if st == nil {
		logger.Info("run is not pending, skipping", "runID", input.RunID)
		return &StartRunOutput{Skipped: true}, nil
	}

	kc := a.runs.Keyso()
	logger.Info("run started", "runID", input.RunID, "seeds", len(st.Seeds), "mode", st.Run.Mode)
	return &StartRunOutput{
		Run:          st.Run,
		Seeds:        st.Seeds,
		StartedAt:    st.StartedAt,
		PollInterval: kc.PollInterval,
		MaxWait:      kc.MaxWait,
	}, nil
}

// SuggestPhrases unions the seeds with their suggestions.
func (a *RunActivities) SuggestPhrases(ctx context.Context, input SuggestPhrasesInput) (*SuggestPhrasesOutput, error) {
	logger := activity.GetLogger(ctx)

	phrases, suggestions, err := a.runs.Pipeline(input.Run).GatherPhrases(ctx, input.Seeds)
	if err != nil {
		logger.Error("failed to fetch suggestions", "runID", input.Run.ID, "error", err)
		return nil, runError(err)
	}

	logger.Info("suggestions merged", "runID", input.Run.ID, "suggestions", suggestions, "phrases", len(phrases))
	return &SuggestPhrasesOutput{Phrases: phrases, Suggestions: suggestions}, nil
}

// SubmitExpansion creates the expansion job.
func (a *RunActivities) SubmitExpansion(ctx context.Context, input SubmitExpansionInput) (*SubmitExpansionOutput, error) {
	logger := activity.GetLogger(ctx)

	handle, err := a.runs.Pipeline(input.Run).Submit(ctx, input.Phrases)
	if err != nil {
		logger.Error("failed to create expansion job", "runID", input.Run.ID, "error", err)
		return nil, runError(err)
	}

	logger.Info("expansion job created", "runID", input.Run.ID, "jobUID", handle)
	return &SubmitExpansionOutput{JobUID: handle}, nil
}

// CheckExpansion polls the job once and records its progress on the run.
func (a *RunActivities) CheckExpansion(ctx context.Context, input CheckExpansionInput) (*CheckExpansionOutput, error) {
	logger := activity.GetLogger(ctx)

	status, err := a.runs.Pipeline(input.Run).Check(ctx, input.JobUID)
	if err != nil {
		logger.Error("failed to poll expansion job", "runID", input.Run.ID, "jobUID", input.JobUID, "error", err)
		return nil, runError(err)
	}
	activity.RecordHeartbeat(ctx, status.Progress)

	if !status.State.IsTerminal() {
		a.runs.RecordProgress(ctx, input.Run.ID, input.JobUID, status.Progress)
	}
	logger.Info("expansion job polled", "jobUID", input.JobUID, "state", status.State.String(), "progress", status.Progress)

	return &CheckExpansionOutput{State: status.State, Progress: status.Progress}, nil
}

// CollectCandidates reads every result page and applies the client-side filter.
func (a *RunActivities) CollectCandidates(ctx context.Context, input CollectCandidatesInput) (*CollectCandidatesOutput, error) {
	logger := activity.GetLogger(ctx)
	p := a.runs.Pipeline(input.Run)

	activity.RecordHeartbeat(ctx, "collecting")
	collected, err := p.Collect(ctx, input.JobUID)
	if err != nil {
		logger.Error("failed to collect results", "runID", input.Run.ID, "jobUID", input.JobUID, "error", err)
		return nil, runError(err)
	}
	activity.RecordHeartbeat(ctx, fmt.Sprintf("collected %d", len(collected)))

	kept, rejected := p.Filter(collected)
	logger.Info("results collected", "runID", input.Run.ID, "collected", len(collected), "kept", len(kept))
	return &CollectCandidatesOutput{Candidates: kept, Collected: len(collected), Rejected: rejected}, nil
}

// Deduplicate removes duplicate phrases and truncates to the run's cap.
func (a *RunActivities) Deduplicate(ctx context.Context, input DeduplicateInput) (*DeduplicateOutput, error) {
	logger := activity.GetLogger(ctx)

	final, duplicates, err := a.runs.Pipeline(input.Run).Finalize(ctx, input.Candidates)
	if err != nil {
		logger.Error("failed to remove duplicates", "runID", input.Run.ID, "error", err)
		return nil, runError(err)
	}

	logger.Info("duplicates removed", "runID", input.Run.ID, "duplicates", duplicates, "returned", len(final))
	return &DeduplicateOutput{Candidates: final, Duplicates: duplicates}, nil
}

// SaveResults stores the final candidates and completes the run.
func (a *RunActivities) SaveResults(ctx context.Context, input SaveResultsInput) error {
	logger := activity.GetLogger(ctx)

	if err := a.runs.Complete(ctx, input.RunID, input.JobUID, input.Candidates, input.StartedAt); err != nil {
		logger.Error("failed to store results", "runID", input.RunID, "error", err)
		return runError(fmt.Errorf("store results: %w", err))
	}

	logger.Info("run completed", "runID", input.RunID, "results", len(input.Candidates))
	return nil
}

// MarkFailed records the failure on the run.
func (a *RunActivities) MarkFailed(ctx context.Context, input MarkFailedInput) error {
	activity.GetLogger(ctx).Warn("marking run failed", "runID", input.RunID, "kind", input.Kind)
	a.runs.Fail(ctx, input.RunID, input.Kind, input.Message, input.StartedAt)
	return nil
}

// runError carries the failure kind across the activity boundary as the
// application error type. Only internal failures are retried; the API client
// has already spent its own attempt budget on everything else.
func runError(err error) error {
	kind := domain.ClassifyFailure(err)
	if kind == domain.FailureInternal {
		return temporal.NewApplicationErrorWithCause(err.Error(), string(kind), err)
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), string(kind), err)
}
