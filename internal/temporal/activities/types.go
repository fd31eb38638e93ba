// Package activities wraps the steps of a keyword research run as Temporal
// activities.
//
// Inputs and outputs cross the Temporal serialization boundary as JSON, so
// every field is exported. Runs travel by value: each activity receives the
// *domain.Run loaded by StartRun instead of reading it again.
package activities

import (
	"time"

	"github.com/google/uuid"

	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/filter"
)

// StartRunInput names the run to start.
type StartRunInput struct {
	RunID uuid.UUID
}

// StartRunOutput is the started run and the job polling settings of the
// worker that started it.
type StartRunOutput struct {
	// Skipped is set when the run already left pending.
	Skipped bool

	Run       *domain.Run
	Seeds     []string
	StartedAt time.Time

	PollInterval time.Duration
	MaxWait      time.Duration
}

// SuggestPhrasesInput carries the seeds to expand with suggestions.
type SuggestPhrasesInput struct {
	Run   *domain.Run
	Seeds []string
}

// SuggestPhrasesOutput is the union of seeds and suggestions.
type SuggestPhrasesOutput struct {
	Phrases     []string
	Suggestions int
}

// SubmitExpansionInput carries the phrases for the expansion job.
type SubmitExpansionInput struct {
	Run     *domain.Run
	Phrases []string
}

// SubmitExpansionOutput is the created job.
type SubmitExpansionOutput struct {
	JobUID domain.JobHandle
}

// CheckExpansionInput names the job to poll once.
type CheckExpansionInput struct {
	Run    *domain.Run
	JobUID domain.JobHandle
}

// CheckExpansionOutput is one observation of the job.
type CheckExpansionOutput struct {
	State    domain.JobState
	Progress int
}

// CollectCandidatesInput names the finished job to read.
type CollectCandidatesInput struct {
	Run    *domain.Run
	JobUID domain.JobHandle
}

// CollectCandidatesOutput holds the candidates that passed the client-side
// filter.
type CollectCandidatesOutput struct {
	Candidates []domain.Candidate
	Collected  int
	Rejected   map[filter.Reason]int
}

// DeduplicateInput carries the filtered candidates.
type DeduplicateInput struct {
	Run        *domain.Run
	Candidates []domain.Candidate
}

// DeduplicateOutput holds the final candidates.
type DeduplicateOutput struct {
	Candidates []domain.Candidate
	Duplicates int
}

// SaveResultsInput carries the final candidates to persist.
type SaveResultsInput struct {
	RunID      uuid.UUID
	JobUID     domain.JobHandle
	Candidates []domain.Candidate
	StartedAt  time.Time
}

// MarkFailedInput carries the classified failure of a run.
type MarkFailedInput struct {
	RunID     uuid.UUID
	Kind      domain.FailureKind
	Message   string
	StartedAt time.Time
}
