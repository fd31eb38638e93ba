package keyso

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/clock"
	"github.com/helixir/keyword-hunter/internal/domain"
)

// maxBodySize caps response bodies at 10MB to prevent resource exhaustion.
const maxBodySize = 10 << 20

// Observer receives request-level measurements from the executor.
// observability.Metrics satisfies it.
type Observer interface {
	ObserveAPIRequest(endpoint string, status int, d time.Duration)
	ObserveAPIRetry(reason string)
	ObserveLimiterWait(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveAPIRequest(string, int, time.Duration) {}
func (nopObserver) ObserveAPIRetry(string)                       {}
func (nopObserver) ObserveLimiterWait(time.Duration)             {}

// ExecutorConfig configures the resilient request executor.
type ExecutorConfig struct {
	// BaseURL is prefixed to every request path.
	BaseURL string

	// Token is the API credential. Empty tokens are not sent.
	Token string

	// TokenHeader is the header carrying Token.
	TokenHeader string

	// Timeout is the per-attempt HTTP timeout.
	Timeout time.Duration

	// AcceptedPause is how long to wait after a 202 before asking again.
	AcceptedPause time.Duration

	// DefaultQuotaWait is used for a 429 without a usable Retry-After header.
	DefaultQuotaWait time.Duration

	// BackoffBase is the first backoff delay; attempt n waits BackoffBase * 2^n.
	BackoffBase time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string
}

// Request describes one logical call. A fresh *http.Request is built from
// it for every physical attempt, so bodies are always resent intact.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// endpoint returns a low-cardinality label for metrics: the path with any
// job uid segment collapsed.
func (r Request) endpoint() string {
	p := r.Path
	if i := strings.Index(p, "/extended_keywords/"); i >= 0 {
		rest := p[i+len("/extended_keywords/"):]
		if strings.HasPrefix(rest, "state/") {
			return p[:i] + "/extended_keywords/state/{uid}"
		}
		return p[:i] + "/extended_keywords/{uid}"
	}
	return p
}

// Executor performs requests against the API with rate limiting,
// status-code-specific retry policies and exponential backoff.
// It is safe for concurrent use.
type Executor struct {
	client   *http.Client
	limiter  *RateLimiter
	clock    clock.Clock
	logger   zerolog.Logger
	observer Observer
	config   ExecutorConfig
}

// ExecutorOption customises an Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

// WithExecutorClock sets the clock used for pauses and backoff.
func WithExecutorClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewExecutor creates an executor that admits every physical attempt
// through limiter.
func NewExecutor(cfg ExecutorConfig, limiter *RateLimiter, opts ...ExecutorOption) *Executor {
	// Apply defaults
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = DefaultTokenHeader
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.AcceptedPause == 0 {
		cfg.AcceptedPause = DefaultAcceptedPause
	}
	if cfg.DefaultQuotaWait == 0 {
		cfg.DefaultQuotaWait = DefaultQuotaWait
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-KeywordHunter/1.0"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	e := &Executor{
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  limiter,
		clock:    clock.Real(),
		logger:   zerolog.Nop(),
		observer: nopObserver{},
		config:   cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.limiter == nil {
		e.limiter = NewRateLimiter(DefaultMaxRequests, DefaultWindow, e.clock)
	}
	return e
}

// response is the part of an HTTP response the status policy needs.
type response struct {
	status int
	header http.Header
	body   []byte
}

// Execute performs req with up to maxAttempts physical attempts.
//
// It returns found=false with a nil error when the API answers 404 or when
// attempts run out on quota responses; callers treat both as "no data".
// Failures that propagate are *domain.AuthError, *domain.RetriesExhaustedError,
// *domain.ExternalAPIError and context errors.
func (e *Executor) Execute(ctx context.Context, req Request, maxAttempts int) ([]byte, bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	endpoint := req.endpoint()
	logger := e.logger.With().Str("endpoint", endpoint).Logger()

	attempt := 0
	for attempt < maxAttempts {
		waited, err := e.limiter.Acquire(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("rate limiter wait: %w", err)
		}
		if waited > 0 {
			e.observer.ObserveLimiterWait(waited)
			logger.Debug().Dur("waited", waited).Msg("rate limit reached, waited for window")
		}

		start := e.clock.Now()
		resp, err := e.do(ctx, req)
		if err != nil {
			// Cancellation is never retried.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, false, ctxErr
			}
			e.observer.ObserveAPIRequest(endpoint, 0, e.clock.Now().Sub(start))
			if attempt < maxAttempts-1 {
				e.observer.ObserveAPIRetry("transport")
				delay := e.backoff(attempt)
				logger.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", delay).Msg("request failed, retrying")
				if err := e.clock.Sleep(ctx, delay); err != nil {
					return nil, false, err
				}
				attempt++
				continue
			}
			return nil, false, domain.NewRetriesExhaustedError(sourceName, domain.RetryKindTransport, maxAttempts, 0, err)
		}
		e.observer.ObserveAPIRequest(endpoint, resp.status, e.clock.Now().Sub(start))

		switch {
		case resp.status == http.StatusAccepted:
			// Not ready yet; does not consume an attempt.
			e.observer.ObserveAPIRetry("accepted")
			logger.Debug().Dur("pause", e.config.AcceptedPause).Msg("request accepted but not ready")
			if err := e.clock.Sleep(ctx, e.config.AcceptedPause); err != nil {
				return nil, false, err
			}
			continue

		case resp.status == http.StatusTooManyRequests:
			wait := e.retryAfter(resp.header)
			e.observer.ObserveAPIRetry("quota")
			logger.Warn().
				Float64("wait_seconds", wait.Seconds()).
				Int("attempt", attempt+1).
				Err(domain.NewQuotaError(sourceName, wait)).
				Msg("request quota exceeded, waiting")
			if err := e.clock.Sleep(ctx, wait); err != nil {
				return nil, false, err
			}
			attempt++
			continue

		case resp.status == http.StatusUnauthorized:
			return nil, false, domain.NewAuthError(sourceName)

		case resp.status == http.StatusNotFound:
			return nil, false, nil

		case resp.status >= 500 && resp.status < 600:
			if attempt < maxAttempts-1 {
				e.observer.ObserveAPIRetry("server")
				delay := e.backoff(attempt)
				logger.Warn().Int("status", resp.status).Int("attempt", attempt+1).Dur("backoff", delay).Msg("server error, retrying")
				if err := e.clock.Sleep(ctx, delay); err != nil {
					return nil, false, err
				}
				attempt++
				continue
			}
			return nil, false, domain.NewRetriesExhaustedError(sourceName, domain.RetryKindServer, maxAttempts, resp.status, nil)

		case resp.status >= 200 && resp.status < 300:
			return resp.body, true, nil

		default:
			return nil, false, domain.NewExternalAPIError(sourceName, resp.status, truncate(string(resp.body), 512), nil)
		}
	}

	logger.Warn().Int("attempts", maxAttempts).Msg("attempts exhausted without a result")
	return nil, false, nil
}

// do issues a single physical attempt. A failure to read the body counts as
// a transport fault.
func (e *Executor) do(ctx context.Context, req Request) (*response, error) {
	httpReq, err := e.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &response{
		status: httpResp.StatusCode,
		header: httpResp.Header,
		body:   body,
	}, nil
}

func (e *Executor) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := e.config.BaseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", e.config.UserAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if e.config.Token != "" {
		httpReq.Header.Set(e.config.TokenHeader, e.config.Token)
	}
	return httpReq, nil
}

// backoff returns BackoffBase * 2^attempt.
func (e *Executor) backoff(attempt int) time.Duration {
	return e.config.BackoffBase << uint(attempt)
}

// retryAfter determines how long to wait after a 429.
// A Retry-After header given as seconds or an HTTP date always wins, zero
// and past dates meaning retry now. A missing or unparseable header falls
// back to the configured default.
func (e *Executor) retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return e.config.DefaultQuotaWait
	}

	if seconds, err := strconv.ParseInt(v, 10, 64); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(e.clock.Now()), 0)
	}

	return e.config.DefaultQuotaWait
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
