package keyso

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/clock"
	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
)

const (
	// DefaultBaseURL is the default base URL for the Keys.so API.
	DefaultBaseURL = "https://api.keys.so"

	// DefaultTokenHeader is the header name for the Keys.so API token.
	DefaultTokenHeader = "X-Keyso-TOKEN"

	// DefaultMaxRequests and DefaultWindow express the API quota of 10 requests per 10 seconds.
	DefaultMaxRequests = 10
	DefaultWindow      = 10 * time.Second

	// DefaultMaxAttempts is the physical attempt budget per logical call.
	DefaultMaxAttempts = 3

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultAcceptedPause is the pause after a 202 response.
	DefaultAcceptedPause = 2 * time.Second

	// DefaultQuotaWait is the wait after a 429 response without Retry-After.
	DefaultQuotaWait = 15 * time.Second

	// sourceName identifies the API in errors.
	sourceName = "keyso"
)

// Config contains configuration options for the Keys.so client.
type Config struct {
	// BaseURL is the base URL for the API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Token is the API credential. With an empty token Suggest returns no
	// suggestions without calling the API.
	Token string

	// TokenHeader defaults to DefaultTokenHeader.
	TokenHeader string

	// Timeout is the HTTP request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// MaxRequests per Window bound the outbound request rate.
	MaxRequests int
	Window      time.Duration

	// MaxAttempts is the physical attempt budget per call.
	// Defaults to DefaultMaxAttempts if zero.
	MaxAttempts int

	// AcceptedPause and QuotaWait tune the 202 and 429 policies.
	AcceptedPause time.Duration
	QuotaWait     time.Duration
}

// SuggestionCache stores suggestion lists keyed by region and phrase set.
type SuggestionCache interface {
	GetSuggestions(ctx context.Context, region int, phrases []string) ([]string, bool, error)
	SetSuggestions(ctx context.Context, region int, phrases, suggestions []string) error
}

// Client calls the Keys.so endpoints used by the keyword pipeline.
// It is safe for concurrent use.
type Client struct {
	exec   *Executor
	cache  SuggestionCache
	logger zerolog.Logger
	config Config
}

type clientOptions struct {
	clock      clock.Clock
	logger     zerolog.Logger
	observer   Observer
	httpClient *http.Client
	limiter    *RateLimiter
	cache      SuggestionCache
}

// Option customises a Client.
type Option func(*clientOptions)

// WithClock sets the clock used by the rate limiter and executor.
func WithClock(c clock.Clock) Option {
	return func(o *clientOptions) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithMetrics sets the request observer.
func WithMetrics(obs Observer) Option {
	return func(o *clientOptions) { o.observer = obs }
}

// WithHTTP replaces the underlying HTTP client.
func WithHTTP(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLimiter shares an existing rate limiter, for example between clients
// that use the same API token.
func WithLimiter(l *RateLimiter) Option {
	return func(o *clientOptions) { o.limiter = l }
}

// WithCache enables suggestion caching.
func WithCache(c SuggestionCache) Option {
	return func(o *clientOptions) { o.cache = c }
}

// FromConfig creates a client from the application configuration.
func FromConfig(cfg config.KeysoConfig, opts ...Option) *Client {
	return New(Config{
		BaseURL:       cfg.BaseURL,
		Token:         cfg.Token,
		TokenHeader:   cfg.TokenHeader,
		Timeout:       cfg.Timeout,
		MaxRequests:   cfg.MaxRequests,
		Window:        cfg.Window,
		MaxAttempts:   cfg.MaxAttempts,
		AcceptedPause: cfg.AcceptedPause,
		QuotaWait:     cfg.QuotaWait,
	}, opts...)
}

// New creates a Keys.so client.
func New(cfg Config, opts ...Option) *Client {
	// Apply defaults
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	o := clientOptions{
		clock:  clock.Real(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With().Str("component", "keyso").Logger()
	limiter := o.limiter
	if limiter == nil {
		limiter = NewRateLimiter(cfg.MaxRequests, cfg.Window, o.clock)
	}

	execOpts := []ExecutorOption{
		WithExecutorClock(o.clock),
		WithExecutorLogger(logger),
		WithObserver(o.observer),
	}
	if o.httpClient != nil {
		execOpts = append(execOpts, WithHTTPClient(o.httpClient))
	}

	exec := NewExecutor(ExecutorConfig{
		BaseURL:          cfg.BaseURL,
		Token:            cfg.Token,
		TokenHeader:      cfg.TokenHeader,
		Timeout:          cfg.Timeout,
		AcceptedPause:    cfg.AcceptedPause,
		DefaultQuotaWait: cfg.QuotaWait,
	}, limiter, execOpts...)

	return &Client{
		exec:   exec,
		cache:  o.cache,
		logger: logger,
		config: cfg,
	}
}

// Suggest returns quick suggestions for phrases in region.
func (c *Client) Suggest(ctx context.Context, phrases []string, region int) ([]string, error) {
	if c.config.Token == "" || len(phrases) == 0 {
		return []string{}, nil
	}

	if c.cache != nil {
		cached, ok, err := c.cache.GetSuggestions(ctx, region, phrases)
		if err != nil {
			c.logger.Warn().Err(err).Int("region", region).Msg("suggestion cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	var resp keysResponse
	found, err := c.call(ctx, Request{
		Method: http.MethodPost,
		Path:   "/tools/suggest",
		Body:   suggestRequest{List: phrases, Region: region},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}
	if !found || resp.Keys == nil {
		return []string{}, nil
	}

	if c.cache != nil {
		if err := c.cache.SetSuggestions(ctx, region, phrases, resp.Keys); err != nil {
			c.logger.Warn().Err(err).Int("region", region).Msg("suggestion cache write failed")
		}
	}
	return resp.Keys, nil
}

// SuggestMultiRegion fetches suggestions for every region in turn. Regions
// that yield nothing are left out of the result.
func (c *Client) SuggestMultiRegion(ctx context.Context, phrases []string, regions []int) (map[int][]string, error) {
	out := make(map[int][]string)
	if c.config.Token == "" {
		return out, nil
	}
	for _, region := range regions {
		c.logger.Debug().Int("region", region).Msg("fetching suggestions for region")
		keys, err := c.Suggest(ctx, phrases, region)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", region, err)
		}
		if len(keys) > 0 {
			out[region] = keys
		}
	}
	return out, nil
}

// CreateExpansion submits an expansion job. An absent response yields an
// empty handle.
func (c *Client) CreateExpansion(ctx context.Context, params domain.ExpansionParams) (domain.JobHandle, error) {
	var resp expansionCreated
	found, err := c.call(ctx, Request{
		Method: http.MethodPost,
		Path:   "/tools/extended_keywords",
		Body: expansionRequest{
			Base:   params.Base,
			List:   params.Phrases,
			Config: params.Config,
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("create expansion: %w", err)
	}
	if !found {
		return "", nil
	}
	return domain.JobHandle(resp.UID), nil
}

// ExpansionState reads the state of a job. An absent response reads as
// state 0 with no progress.
func (c *Client) ExpansionState(ctx context.Context, handle domain.JobHandle) (domain.JobStatus, error) {
	var resp expansionState
	found, err := c.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/tools/extended_keywords/state/" + url.PathEscape(string(handle)),
	}, &resp)
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("expansion state: %w", err)
	}
	if !found {
		return domain.JobStatus{}, nil
	}
	return domain.JobStatus{
		State:    domain.JobState(int(math.Round(resp.State))),
		Progress: int(math.Round(resp.Progress)),
	}, nil
}

// ExpansionPage fetches one page of job results. An absent response reads
// as an empty page.
func (c *Client) ExpansionPage(ctx context.Context, handle domain.JobHandle, q domain.PageQuery) (domain.Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("per_page", strconv.Itoa(q.PerPage))
	params.Set("sort", q.Sort)
	if q.Filter != "" {
		params.Set("filter", q.Filter)
	}

	var page domain.Page
	found, err := c.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/tools/extended_keywords/" + url.PathEscape(string(handle)),
		Query:  params,
	}, &page)
	if err != nil {
		return domain.Page{}, fmt.Errorf("expansion page %d: %w", q.Page, err)
	}
	if !found {
		return domain.Page{Data: []domain.Candidate{}}, nil
	}
	return page, nil
}

// DeleteDuplicates asks the API to collapse near-duplicate phrases. An
// absent response leaves the input unchanged.
func (c *Client) DeleteDuplicates(ctx context.Context, phrases []string) ([]string, error) {
	var resp keysResponse
	found, err := c.call(ctx, Request{
		Method: http.MethodPost,
		Path:   "/tools/delete_double",
		Body:   deleteDoubleRequest{List: phrases},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("delete duplicates: %w", err)
	}
	if !found {
		return phrases, nil
	}
	if resp.Keys == nil {
		return []string{}, nil
	}
	return resp.Keys, nil
}

// KeywordDashboard looks a phrase up in base. It returns nil when the
// phrase is unknown.
func (c *Client) KeywordDashboard(ctx context.Context, base, phrase string) (*domain.Candidate, error) {
	params := url.Values{}
	params.Set("base", base)
	params.Set("keyword", phrase)

	var cand domain.Candidate
	found, err := c.call(ctx, Request{
		Method: http.MethodGet,
		Path:   "/report/simple/keyword_dashboard",
		Query:  params,
	}, &cand)
	if err != nil {
		return nil, fmt.Errorf("keyword dashboard: %w", err)
	}
	if !found {
		return nil, nil
	}
	if cand.Phrase() == "" {
		cand.Word = phrase
	}
	return &cand, nil
}

// call executes req and decodes a found body into out.
func (c *Client) call(ctx context.Context, req Request, out any) (bool, error) {
	body, found, err := c.exec.Execute(ctx, req, c.config.MaxAttempts)
	if err != nil || !found {
		return false, err
	}
	if len(body) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, domain.NewExternalAPIError(sourceName, http.StatusOK, "decoding response", err)
	}
	return true, nil
}
