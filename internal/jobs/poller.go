// Package jobs drives asynchronous expansion jobs on the analytics API:
// submitting them, waiting for a terminal state and collecting the paged
// results.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/clock"
	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/observability"
)

const (
	// DefaultPollInterval is the pause between state polls.
	DefaultPollInterval = 3 * time.Second

	// DefaultMaxWait is the default ceiling on AwaitCompletion.
	DefaultMaxWait = 60 * time.Second
)

// JobService is the subset of the API client the poller needs.
type JobService interface {
	CreateExpansion(ctx context.Context, params domain.ExpansionParams) (domain.JobHandle, error)
	ExpansionState(ctx context.Context, handle domain.JobHandle) (domain.JobStatus, error)
}

// PollObserver receives poll measurements. observability.Metrics satisfies it.
type PollObserver interface {
	ObserveJobPoll(state string)
	ObserveJobWait(outcome string, d time.Duration)
}

type nopPollObserver struct{}

func (nopPollObserver) ObserveJobPoll(string)                {}
func (nopPollObserver) ObserveJobWait(string, time.Duration) {}

// ProgressFunc is called after every non-terminal poll.
type ProgressFunc func(ctx context.Context, handle domain.JobHandle, progress int)

// Poller submits expansion jobs and waits for them to finish.
type Poller struct {
	svc        JobService
	clock      clock.Clock
	interval   time.Duration
	logger     zerolog.Logger
	observer   PollObserver
	onProgress ProgressFunc
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithPollClock sets the clock used for the ceiling and the pauses.
func WithPollClock(c clock.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPollLogger sets the logger.
func WithPollLogger(l zerolog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithPollObserver sets the metrics observer.
func WithPollObserver(o PollObserver) PollerOption {
	return func(p *Poller) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithProgress registers a hook invoked with each progress reading.
func WithProgress(fn ProgressFunc) PollerOption {
	return func(p *Poller) { p.onProgress = fn }
}

// NewPoller creates a poller over svc.
func NewPoller(svc JobService, opts ...PollerOption) *Poller {
	p := &Poller{
		svc:      svc,
		clock:    clock.Real(),
		interval: DefaultPollInterval,
		logger:   zerolog.Nop(),
		observer: nopPollObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit creates an expansion job. A response without a handle is a
// *domain.JobNotCreatedError.
//
// Submission is at-least-once: if the create call is retried after a server
// or transport fault, the API may have allocated an orphaned job.
func (p *Poller) Submit(ctx context.Context, params domain.ExpansionParams) (domain.JobHandle, error) {
	handle, err := p.svc.CreateExpansion(ctx, params)
	if err != nil {
		return "", err
	}
	if handle == "" {
		return "", &domain.JobNotCreatedError{Source: "keyso"}
	}
	p.logger.Info().Str("job_uid", string(handle)).Int("phrases", len(params.Phrases)).Msg("expansion job created")
	return handle, nil
}

// AwaitCompletion polls handle until it succeeds, fails, or maxWait elapses
// on the poller's clock. Each poll is one resilient request; its retries do
// not extend the ceiling.
func (p *Poller) AwaitCompletion(ctx context.Context, handle domain.JobHandle, maxWait time.Duration) error {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	logger := observability.WithJobContext(p.logger, string(handle))
	start := p.clock.Now()

	for {
		elapsed := p.clock.Now().Sub(start)
		if elapsed >= maxWait {
			p.observer.ObserveJobWait("timeout", elapsed)
			return &domain.JobTimeoutError{Handle: handle, Waited: elapsed}
		}

		status, err := p.Check(ctx, handle)
		if err != nil {
			p.observer.ObserveJobWait("error", p.clock.Now().Sub(start))
			return err
		}

		switch status.State {
		case domain.JobStateSucceeded:
			elapsed = p.clock.Now().Sub(start)
			p.observer.ObserveJobWait("succeeded", elapsed)
			logger.Info().Dur("elapsed", elapsed).Msg("expansion job finished")
			return nil
		case domain.JobStateFailed:
			p.observer.ObserveJobWait("failed", p.clock.Now().Sub(start))
			return &domain.JobFailedError{Handle: handle}
		}

		logger.Info().Int("progress", status.Progress).Int("state", int(status.State)).Msg("expansion job in progress")
		if p.onProgress != nil {
			p.onProgress(ctx, handle, status.Progress)
		}

		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

// Check reads the state of handle once.
func (p *Poller) Check(ctx context.Context, handle domain.JobHandle) (domain.JobStatus, error) {
	status, err := p.svc.ExpansionState(ctx, handle)
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("polling job %s: %w", handle, err)
	}
	p.observer.ObserveJobPoll(status.State.String())
	return status, nil
}
