// Package pipeline turns a seed phrase set into a filtered, deduplicated and
// truncated set of long-tail keyword candidates.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/clock"
	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/filter"
	"github.com/helixir/keyword-hunter/internal/jobs"
	"github.com/helixir/keyword-hunter/internal/observability"
)

// Service is the part of the analytics API client the pipeline calls.
// *keyso.Client satisfies it.
type Service interface {
	jobs.JobService
	jobs.PageSource

	Suggest(ctx context.Context, phrases []string, region int) ([]string, error)
	SuggestMultiRegion(ctx context.Context, phrases []string, regions []int) (map[int][]string, error)
	DeleteDuplicates(ctx context.Context, phrases []string) ([]string, error)
	KeywordDashboard(ctx context.Context, base, phrase string) (*domain.Candidate, error)
}

// Observer receives candidate counts per stage. observability.Metrics
// satisfies it.
type Observer interface {
	ObserveCandidates(stage string, n int)
}

type nopObserver struct{}

func (nopObserver) ObserveCandidates(string, int) {}

// Candidate count stages reported to the Observer.
const (
	StageCollected   = "collected"
	StageFilteredOut = "filtered_out"
	StageDuplicates  = "duplicates"
	StageReturned    = "returned"
)

// Deps are the collaborators of a Pipeline. Only Service is required.
type Deps struct {
	Service      Service
	Clock        clock.Clock
	Sampler      Sampler
	Observer     Observer
	PollObserver jobs.PollObserver
	PageObserver jobs.PageObserver
	OnProgress   jobs.ProgressFunc
}

// Options configure one pipeline.
type Options struct {
	Mode    domain.RunMode
	Base    string
	Regions []int

	Thresholds filter.Thresholds
	Sort       filter.Sort
	MaxResults int

	PageSize     int
	MaxPages     int
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Result is the outcome of one pipeline run.
type Result struct {
	Candidates  []domain.Candidate
	JobUID      domain.JobHandle
	Suggestions int
	Submitted   int
	Collected   int
	Rejected    map[filter.Reason]int
	Duplicates  int
}

// Pipeline runs the suggest, expand, collect, filter and dedup steps.
type Pipeline struct {
	svc       Service
	poller    *jobs.Poller
	collector *jobs.Collector
	sampler   Sampler
	observer  Observer
	opts      Options
	logger    zerolog.Logger
}

// New creates a Pipeline.
func New(deps Deps, opts Options, logger zerolog.Logger) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Sampler == nil {
		deps.Sampler = RandomSampler()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = jobs.DefaultPageSize
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = jobs.DefaultMaxWait
	}
	if len(opts.Sort) == 0 {
		opts.Sort = filter.DefaultSort
	}
	if opts.Mode == "" {
		opts.Mode = domain.RunModeSingle
		if len(opts.Regions) > 1 {
			opts.Mode = domain.RunModeMulti
		}
	}

	logger = logger.With().Str("component", "pipeline").Logger()

	pollOpts := []jobs.PollerOption{
		jobs.WithPollClock(deps.Clock),
		jobs.WithPollInterval(opts.PollInterval),
		jobs.WithPollLogger(logger),
		jobs.WithPollObserver(deps.PollObserver),
	}
	if deps.OnProgress != nil {
		pollOpts = append(pollOpts, jobs.WithProgress(deps.OnProgress))
	}

	return &Pipeline{
		svc:    deps.Service,
		poller: jobs.NewPoller(deps.Service, pollOpts...),
		collector: jobs.NewCollector(deps.Service,
			jobs.WithCollectorLogger(logger),
			jobs.WithPageObserver(deps.PageObserver),
			jobs.WithMaxPages(opts.MaxPages),
		),
		sampler:  deps.Sampler,
		observer: deps.Observer,
		opts:     opts,
		logger:   logger,
	}
}

// Run executes the pipeline and returns the final candidates.
func (p *Pipeline) Run(ctx context.Context, seeds []string) ([]domain.Candidate, error) {
	res, err := p.Execute(ctx, seeds)
	if err != nil {
		return nil, err
	}
	return res.Candidates, nil
}

// Execute runs the pipeline in the configured mode and reports per-step
// counts alongside the candidates.
func (p *Pipeline) Execute(ctx context.Context, seeds []string) (*Result, error) {
	if p.opts.Mode == domain.RunModeOffline {
		p.logger.Info().Int("seeds", len(seeds)).Msg("offline mode, skipping the analytics API")
		out := Offline(seeds, p.opts.MaxResults)
		p.observer.ObserveCandidates(StageReturned, len(out))
		return &Result{Candidates: out}, nil
	}

	res := &Result{}

	phrases, err := p.gatherPhrases(ctx, seeds, res)
	if err != nil {
		return nil, err
	}
	res.Submitted = len(phrases)

	handle, err := p.Submit(ctx, phrases)
	if err != nil {
		return nil, err
	}
	res.JobUID = handle

	if err := p.poller.AwaitCompletion(ctx, handle, p.opts.MaxWait); err != nil {
		return nil, err
	}

	collected, err := p.Collect(ctx, handle)
	if err != nil {
		return nil, err
	}
	res.Collected = len(collected)

	kept, rejected := p.Filter(collected)
	res.Rejected = rejected

	final, duplicates, err := p.Finalize(ctx, kept)
	if err != nil {
		return nil, err
	}
	res.Duplicates = duplicates
	res.Candidates = final

	return res, nil
}

// GatherPhrases returns the union of seeds and their suggestions together
// with the number of suggestions received.
func (p *Pipeline) GatherPhrases(ctx context.Context, seeds []string) ([]string, int, error) {
	var res Result
	phrases, err := p.gatherPhrases(ctx, seeds, &res)
	if err != nil {
		return nil, 0, err
	}
	return phrases, res.Suggestions, nil
}

// Submit creates the expansion job for phrases.
func (p *Pipeline) Submit(ctx context.Context, phrases []string) (domain.JobHandle, error) {
	return p.poller.Submit(ctx, domain.NewExpansionParams(p.opts.Base, phrases))
}

// Check reads the state of a submitted job once.
func (p *Pipeline) Check(ctx context.Context, handle domain.JobHandle) (domain.JobStatus, error) {
	return p.poller.Check(ctx, handle)
}

// Collect reads every result page of a finished job with the service-side
// filter applied.
func (p *Pipeline) Collect(ctx context.Context, handle domain.JobHandle) ([]domain.Candidate, error) {
	expr := filter.Build(p.opts.Thresholds)
	collected, err := p.collector.CollectAll(ctx, handle, p.opts.PageSize, expr.String(), p.opts.Sort.String())
	if err != nil {
		return nil, err
	}
	p.observer.ObserveCandidates(StageCollected, len(collected))
	return collected, nil
}

// Filter applies the client-side thresholds and counts rejections by reason.
func (p *Pipeline) Filter(collected []domain.Candidate) ([]domain.Candidate, map[filter.Reason]int) {
	kept, rejected := filter.ApplyWithStats(collected, p.opts.Thresholds)
	p.observer.ObserveCandidates(StageFilteredOut, len(collected)-len(kept))
	p.logger.Info().
		Int("collected", len(collected)).
		Int("kept", len(kept)).
		Interface("rejected", rejected).
		Msg("client-side filter applied")
	return kept, rejected
}

// Finalize deduplicates kept and truncates it to MaxResults. It returns the
// final candidates and how many duplicates were dropped.
func (p *Pipeline) Finalize(ctx context.Context, kept []domain.Candidate) ([]domain.Candidate, int, error) {
	unique, err := p.Deduplicate(ctx, kept)
	if err != nil {
		return nil, 0, err
	}
	duplicates := len(kept) - len(unique)
	p.observer.ObserveCandidates(StageDuplicates, duplicates)

	final := truncate(unique, p.opts.MaxResults)
	p.observer.ObserveCandidates(StageReturned, len(final))
	p.logger.Info().Int("returned", len(final)).Msg("pipeline finished")
	return final, duplicates, nil
}

// MaxResults reports the configured cap on final candidates.
func (p *Pipeline) MaxResults() int {
	return p.opts.MaxResults
}

// gatherPhrases unions the seeds with the suggestions for every region.
func (p *Pipeline) gatherPhrases(ctx context.Context, seeds []string, res *Result) ([]string, error) {
	logger := observability.WithRegionContext(p.logger, p.opts.Base, p.opts.Regions)
	set := newPhraseSet(seeds)

	if p.opts.Mode == domain.RunModeMulti {
		perRegion, err := p.svc.SuggestMultiRegion(ctx, seeds, p.opts.Regions)
		if err != nil {
			return nil, fmt.Errorf("fetching suggestions: %w", err)
		}
		for _, region := range p.opts.Regions {
			suggested, ok := perRegion[region]
			if !ok {
				continue
			}
			logger.Info().Int("region", region).Int("suggestions", len(suggested)).Msg("region suggestions")
			res.Suggestions += len(suggested)
			set.add(suggested...)
		}
	} else {
		region := 0
		if len(p.opts.Regions) > 0 {
			region = p.opts.Regions[0]
		}
		suggested, err := p.svc.Suggest(ctx, seeds, region)
		if err != nil {
			return nil, fmt.Errorf("fetching suggestions: %w", err)
		}
		res.Suggestions = len(suggested)
		set.add(suggested...)
	}

	logger.Info().
		Int("seeds", len(seeds)).
		Int("suggestions", res.Suggestions).
		Int("unique", set.len()).
		Msg("suggestions merged")

	return set.items(), nil
}

// Deduplicate submits the candidates' phrases to the service's duplicate
// removal and keeps, in input order, the candidates whose phrase survived.
// Each returned phrase is consumed at most once, so the output is always a
// subset of the input.
func (p *Pipeline) Deduplicate(ctx context.Context, cands []domain.Candidate) ([]domain.Candidate, error) {
	if len(cands) == 0 {
		return []domain.Candidate{}, nil
	}

	survivors, err := p.svc.DeleteDuplicates(ctx, domain.Phrases(cands))
	if err != nil {
		return nil, fmt.Errorf("deleting duplicates: %w", err)
	}

	remaining := make(map[string]int, len(survivors))
	for _, s := range survivors {
		remaining[s]++
	}

	out := make([]domain.Candidate, 0, len(survivors))
	for _, c := range cands {
		phrase := c.Phrase()
		if remaining[phrase] == 0 {
			continue
		}
		remaining[phrase] = 0
		out = append(out, c)
	}

	p.logger.Info().Int("before", len(cands)).Int("after", len(out)).Msg("duplicates removed")
	return out, nil
}

func truncate(cands []domain.Candidate, limit int) []domain.Candidate {
	if limit > 0 && len(cands) > limit {
		return cands[:limit]
	}
	return cands
}

// phraseSet is an insertion-ordered, case-sensitive set of phrases.
type phraseSet struct {
	seen  map[string]struct{}
	order []string
}

func newPhraseSet(initial []string) *phraseSet {
	s := &phraseSet{seen: make(map[string]struct{}, len(initial))}
	s.add(initial...)
	return s
}

func (s *phraseSet) add(phrases ...string) {
	for _, ph := range phrases {
		if _, ok := s.seen[ph]; ok {
			continue
		}
		s.seen[ph] = struct{}{}
		s.order = append(s.order, ph)
	}
}

func (s *phraseSet) len() int { return len(s.order) }

func (s *phraseSet) items() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
