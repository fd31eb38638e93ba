// Package runner executes persisted keyword research runs: it generates
// seeds, drives the pipeline, stores the candidates and reports the outcome
// through events and metrics.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/clock"
	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/database"
	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/events"
	"github.com/helixir/keyword-hunter/internal/filter"
	"github.com/helixir/keyword-hunter/internal/jobs"
	"github.com/helixir/keyword-hunter/internal/observability"
	"github.com/helixir/keyword-hunter/internal/pipeline"
	"github.com/helixir/keyword-hunter/internal/repository"
	"github.com/helixir/keyword-hunter/internal/seeds"
)

// Store persists runs and their candidates.
type Store interface {
	repository.RunRepository
	repository.KeywordStore
}

// AtomicFunc runs fn against a Store whose writes commit or roll back together.
type AtomicFunc func(ctx context.Context, fn func(Store) error) error

// Transactional returns an AtomicFunc backed by a PostgreSQL transaction.
func Transactional(db *database.DB) AtomicFunc {
	return func(ctx context.Context, fn func(Store) error) error {
		return db.WithTransaction(ctx, func(tx pgx.Tx) error {
			return fn(repository.NewPgRunRepository(tx))
		})
	}
}

// Recorder receives run outcomes. observability.Metrics satisfies it.
type Recorder interface {
	RecordRunStarted(mode string)
	RecordRunCompleted(d time.Duration)
	RecordRunFailed(kind string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRunStarted(string)                {}
func (nopRecorder) RecordRunCompleted(time.Duration)       {}
func (nopRecorder) RecordRunFailed(string, time.Duration) {}

// Dispatcher hands a created run to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, runID uuid.UUID) error
}

// Service creates and executes runs.
type Service struct {
	store      Store
	atomic     AtomicFunc
	api        pipeline.Service
	keyso      config.KeysoConfig
	clock      clock.Clock
	recorder   Recorder
	publisher  events.Publisher
	dispatcher Dispatcher
	local      *LocalDispatcher
	deps       pipeline.Deps
	logger     zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAtomic sets how completion writes are grouped. Without it they run
// one after the other on the Store.
func WithAtomic(fn AtomicFunc) Option {
	return func(s *Service) { s.atomic = fn }
}

// WithClock sets the clock used for run durations and job polling.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithRecorder sets the run outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithPublisher sets where lifecycle events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithDispatcher sets the dispatcher used by Submit.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithLocalDispatch makes Submit execute runs in background goroutines
// bound to ctx.
func WithLocalDispatch(ctx context.Context) Option {
	return func(s *Service) {
		s.local = NewLocalDispatcher(ctx, s.Execute, s.logger)
		s.dispatcher = s.local
	}
}

// WithPipelineObservers sets the observers passed to every pipeline.
func WithPipelineObservers(obs pipeline.Observer, poll jobs.PollObserver, page jobs.PageObserver) Option {
	return func(s *Service) {
		s.deps.Observer = obs
		s.deps.PollObserver = poll
		s.deps.PageObserver = page
	}
}

// WithSampler sets the sampler used for sample validation.
func WithSampler(sm pipeline.Sampler) Option {
	return func(s *Service) { s.deps.Sampler = sm }
}

// NewService creates a Service. api is usually a *keyso.Client.
func NewService(store Store, api pipeline.Service, kc config.KeysoConfig, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		api:       api,
		keyso:     kc,
		clock:     clock.Real(),
		recorder:  nopRecorder{},
		publisher: events.NoopPublisher{},
		logger:    logger.With().Str("component", "runner").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.atomic == nil {
		s.atomic = func(ctx context.Context, fn func(Store) error) error { return fn(s.store) }
	}
	return s
}

// ValidateSpec checks the caller-supplied parts of a run request.
func ValidateSpec(spec domain.RunSpec) error {
	if strings.TrimSpace(spec.Niche) == "" {
		return domain.NewValidationError("niche", "niche is required")
	}
	if spec.Mode != "" && !spec.Mode.Valid() {
		return domain.NewValidationError("mode", fmt.Sprintf("unknown mode %q", spec.Mode))
	}
	cfg := spec.Configuration
	if cfg.MinNumWords < 1 {
		return domain.NewValidationError("min_num_words", "must be at least 1")
	}
	if cfg.WSKThreshold < 0 || cfg.WSThreshold < 0 {
		return domain.NewValidationError("thresholds", "must not be negative")
	}
	if cfg.SeedCount < 1 {
		return domain.NewValidationError("seed_count", "must be at least 1")
	}
	return nil
}

// Create validates spec and stores a pending run.
func (s *Service) Create(ctx context.Context, spec domain.RunSpec) (*domain.Run, error) {
	spec.Niche = strings.TrimSpace(spec.Niche)
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	run, err := domain.NewRun(spec)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	s.logger.Info().
		Str("run_id", run.ID.String()).
		Str("base", run.Base).
		Str("mode", string(run.Mode)).
		Msg("run created")
	return run, nil
}

// Submit creates a run and dispatches it. Without a dispatcher the run
// stays pending.
func (s *Service) Submit(ctx context.Context, spec domain.RunSpec) (*domain.Run, error) {
	run, err := s.Create(ctx, spec)
	if err != nil {
		return nil, err
	}
	if s.dispatcher == nil {
		return run, nil
	}
	if err := s.dispatcher.Dispatch(ctx, run.ID); err != nil {
		s.markFailed(ctx, run.ID, err)
		return nil, fmt.Errorf("dispatch run: %w", err)
	}
	return run, nil
}

// Started is a run that left pending, with the seeds it runs on.
type Started struct {
	Run       *domain.Run `json:"run"`
	Seeds     []string    `json:"seeds"`
	StartedAt time.Time   `json:"started_at"`
}

// Execute runs a pending run to a terminal state. Runs that already left
// pending are skipped, which makes redelivered requests harmless.
func (s *Service) Execute(ctx context.Context, runID uuid.UUID) error {
	st, err := s.Start(ctx, runID)
	if err != nil || st == nil {
		return err
	}

	ctx = observability.WithRunID(ctx, runID.String())
	res, err := s.Pipeline(st.Run).Execute(ctx, st.Seeds)
	if err != nil {
		return s.fail(ctx, runID, err, st.StartedAt)
	}

	if err := s.Complete(ctx, runID, res.JobUID, res.Candidates, st.StartedAt); err != nil {
		return s.fail(ctx, runID, fmt.Errorf("store results: %w", err), st.StartedAt)
	}
	return nil
}

// Start generates the seeds of a pending run and marks it running. It
// returns nil without error when the run already left pending.
func (s *Service) Start(ctx context.Context, runID uuid.UUID) (*Started, error) {
	run, err := s.store.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	logger := s.runLogger(run)
	if run.Status != domain.RunStatusPending {
		logger.Warn().Str("status", string(run.Status)).Msg("run is not pending, skipping")
		return nil, nil
	}

	cfg := run.Configuration
	seedList := seeds.NewGenerator(run.Niche, cfg.SeedTargets).Generate(cfg.SeedCount)
	if err := s.store.MarkRunning(ctx, run.ID, len(seedList)); err != nil {
		return nil, fmt.Errorf("mark run running: %w", err)
	}
	run.Status = domain.RunStatusRunning
	run.SeedCount = len(seedList)

	start := s.clock.Now()
	s.recorder.RecordRunStarted(string(run.Mode))
	s.publish(ctx, domain.EventTypeRunStarted, run.ID, domain.RunStartedPayload{
		RunID:     run.ID,
		Niche:     run.Niche,
		Base:      run.Base,
		Mode:      run.Mode,
		SeedCount: len(seedList),
	})
	logger.Info().Int("seeds", len(seedList)).Str("mode", string(run.Mode)).Msg("run started")

	return &Started{Run: run, Seeds: seedList, StartedAt: start}, nil
}

// Complete stores the final candidates and marks the run completed. The
// writes commit together or not at all.
func (s *Service) Complete(ctx context.Context, runID uuid.UUID, jobUID domain.JobHandle, cands []domain.Candidate, start time.Time) error {
	err := s.atomic(ctx, func(st Store) error {
		if jobUID != "" {
			if err := st.UpdateProgress(ctx, runID, jobUID, 100); err != nil {
				return err
			}
		}
		if err := st.SaveKeywords(ctx, runID, cands); err != nil {
			return err
		}
		return st.MarkCompleted(ctx, runID, len(cands))
	})
	if err != nil {
		return err
	}

	elapsed := s.clock.Now().Sub(start)
	s.recorder.RecordRunCompleted(elapsed)
	s.publish(ctx, domain.EventTypeRunCompleted, runID, domain.RunCompletedPayload{
		RunID:       runID,
		ResultCount: len(cands),
		JobUID:      jobUID,
		Duration:    elapsed,
	})
	s.logger.Info().
		Str("run_id", runID.String()).
		Int("results", len(cands)).
		Dur("duration", elapsed).
		Msg("run completed")
	return nil
}

// Fail marks the run failed with kind and reports the outcome.
func (s *Service) Fail(ctx context.Context, runID uuid.UUID, kind domain.FailureKind, message string, start time.Time) {
	ctx = context.WithoutCancel(ctx)
	elapsed := s.clock.Now().Sub(start)

	if err := s.store.MarkFailed(ctx, runID, kind, message); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to mark run failed")
	}
	s.recorder.RecordRunFailed(string(kind), elapsed)
	s.publish(ctx, domain.EventTypeRunFailed, runID, domain.RunFailedPayload{
		RunID: runID,
		Kind:  kind,
		Error: message,
	})
	s.logger.Error().
		Str("run_id", runID.String()).
		Str("kind", string(kind)).
		Str("error", message).
		Msg(kind.Describe())
}

// RecordProgress stores the latest job progress. Failures are logged only;
// a progress write never aborts a run.
func (s *Service) RecordProgress(ctx context.Context, runID uuid.UUID, handle domain.JobHandle, progress int) {
	if err := s.store.UpdateProgress(ctx, runID, handle, progress); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID.String()).Int("progress", progress).Msg("failed to record progress")
	}
}

// Wait blocks until locally dispatched runs finish.
func (s *Service) Wait() {
	if s.local != nil {
		s.local.Wait()
	}
}

// Pipeline builds the pipeline for run with progress recorded on the run.
func (s *Service) Pipeline(run *domain.Run) *pipeline.Pipeline {
	deps := s.deps
	deps.Service = s.api
	deps.Clock = s.clock
	deps.OnProgress = func(ctx context.Context, handle domain.JobHandle, progress int) {
		s.RecordProgress(ctx, run.ID, handle, progress)
	}
	return pipeline.New(deps, PipelineOptions(run, s.keyso), s.runLogger(run))
}

// Keyso returns the client settings runs are executed with.
func (s *Service) Keyso() config.KeysoConfig {
	return s.keyso
}

func (s *Service) runLogger(run *domain.Run) zerolog.Logger {
	return observability.WithRunContext(s.logger, run.ID.String(), run.Niche)
}

func (s *Service) fail(ctx context.Context, runID uuid.UUID, cause error, start time.Time) error {
	s.Fail(ctx, runID, domain.ClassifyFailure(cause), cause.Error(), start)
	return cause
}

// markFailed records the failure even when ctx is already cancelled.
func (s *Service) markFailed(ctx context.Context, runID uuid.UUID, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.MarkFailed(ctx, runID, domain.ClassifyFailure(cause), cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to mark run failed")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, runID uuid.UUID, payload any) {
	ev, err := domain.NewRunEvent(eventType, runID, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// Thresholds maps a run configuration onto the filter thresholds.
func Thresholds(cfg domain.RunConfiguration) filter.Thresholds {
	return filter.Thresholds{
		MinWords:  cfg.MinNumWords,
		MaxWSK:    cfg.WSKThreshold,
		MaxWS:     cfg.WSThreshold,
		StopWords: cfg.StopWords,
		SafeMode:  cfg.SafeFilters,
		Raw:       cfg.RawFilter,
	}
}

// PipelineOptions builds pipeline options for run.
func PipelineOptions(run *domain.Run, kc config.KeysoConfig) pipeline.Options {
	return pipeline.Options{
		Mode:         run.Mode,
		Base:         run.Base,
		Regions:      run.Regions,
		Thresholds:   Thresholds(run.Configuration),
		MaxResults:   run.Configuration.MaxResults,
		PageSize:     kc.PageSize,
		MaxPages:     kc.MaxPages,
		PollInterval: kc.PollInterval,
		MaxWait:      kc.MaxWait,
	}
}
