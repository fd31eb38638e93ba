// Package domain provides domain models and business logic for the keyword research service.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle states of a keyword research run.
// These values must match the check constraint on keyword_runs.status.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// RunMode selects which pipeline variant a run uses.
type RunMode string

const (
	RunModeSingle  RunMode = "single"
	RunModeMulti   RunMode = "multi"
	RunModeOffline RunMode = "offline"
)

// Valid reports whether m is a known mode.
func (m RunMode) Valid() bool {
	switch m {
	case RunModeSingle, RunModeMulti, RunModeOffline:
		return true
	default:
		return false
	}
}

// RunConfiguration holds the research parameters of a run.
// This struct is stored as JSONB in PostgreSQL for auditability.
type RunConfiguration struct {
	// WSKThreshold is the maximum exact-frequency score kept.
	WSKThreshold int `json:"wsk_threshold"`

	// WSThreshold is the maximum broad-frequency score kept. Zero disables the clause.
	WSThreshold int `json:"ws_threshold,omitempty"`

	// MinNumWords is the minimum number of words per phrase.
	MinNumWords int `json:"min_num_words"`

	// StopWords excludes phrases containing any of these words.
	StopWords []string `json:"stop_words,omitempty"`

	// SafeFilters excludes adult content.
	SafeFilters bool `json:"safe_filters"`

	// RawFilter is appended verbatim to the service-side filter expression.
	RawFilter string `json:"raw_filter,omitempty"`

	// MaxResults caps the number of candidates kept.
	MaxResults int `json:"max_results"`

	// SeedCount is the number of seeds generated from the niche.
	SeedCount int `json:"seed_count"`

	// SeedTargets are caller-provided seeds placed ahead of generated ones.
	SeedTargets []string `json:"seed_targets,omitempty"`
}

// DefaultRunConfiguration returns a RunConfiguration with default values.
func DefaultRunConfiguration() RunConfiguration {
	return RunConfiguration{
		WSKThreshold: 80,
		WSThreshold:  1000,
		MinNumWords:  3,
		StopWords:    []string{"бесплатно", "видео", "скачать", "реферат", "вакансии"},
		SafeFilters:  true,
		MaxResults:   1000,
		SeedCount:    100,
	}
}

// RunSpec is what a caller supplies to start a run.
type RunSpec struct {
	Niche         string           `json:"niche"`
	Base          string           `json:"base"`
	Region        int              `json:"region,omitempty"`
	Mode          RunMode          `json:"mode"`
	Configuration RunConfiguration `json:"configuration"`
}

// Run is one keyword research execution and its persisted outcome.
type Run struct {
	ID uuid.UUID `json:"id"`

	// Niche is the free-text topic seeds are generated from.
	Niche string `json:"niche"`

	// Base is the dataset the expansion job runs against.
	Base string `json:"base"`

	// Regions are the region identifiers suggestions are fetched for.
	Regions []int `json:"regions"`

	Mode          RunMode          `json:"mode"`
	Configuration RunConfiguration `json:"configuration"`

	// Status and progress
	Status       RunStatus   `json:"status"`
	JobUID       JobHandle   `json:"job_uid,omitempty"`
	Progress     int         `json:"progress"`
	SeedCount    int         `json:"seed_count"`
	ResultCount  int         `json:"result_count"`
	ErrorKind    FailureKind `json:"error_kind,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRun builds a pending run from spec, resolving the base to its regions.
// An explicit region overrides the catalog for single-base runs, which also
// admits bases outside the catalog.
func NewRun(spec RunSpec) (*Run, error) {
	regions, err := resolveRegions(spec.Base, spec.Region)
	if err != nil {
		return nil, err
	}

	mode := spec.Mode
	if mode == "" {
		mode = RunModeSingle
		if len(regions) > 1 {
			mode = RunModeMulti
		}
	}

	now := time.Now().UTC()
	return &Run{
		ID:            uuid.New(),
		Niche:         spec.Niche,
		Base:          spec.Base,
		Regions:       regions,
		Mode:          mode,
		Configuration: spec.Configuration,
		Status:        RunStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func resolveRegions(base string, region int) ([]int, error) {
	if region <= 0 || strings.EqualFold(strings.TrimSpace(base), MultiBase) {
		return ResolveBase(base)
	}
	if strings.TrimSpace(base) == "" {
		return nil, NewConfigError("base", "base is required")
	}
	return []int{region}, nil
}

// Duration returns the duration of the run.
// Returns zero if the run has not started.
// Returns elapsed time from start if still running.
// Returns total duration if completed.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}

	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}

	return time.Since(*r.StartedAt)
}

// IsActive returns true if the run is still in progress.
func (r *Run) IsActive() bool {
	return !r.Status.IsTerminal()
}

// RunFilter narrows a run listing.
type RunFilter struct {
	Status *RunStatus
	Base   string
	Limit  int
	Offset int
}
