package keyso

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/keyword-hunter/internal/clock"
	"github.com/helixir/keyword-hunter/internal/domain"
)

// scriptedServer answers each request with the next status in script and
// repeats the last one once the script runs out.
type scriptedServer struct {
	*httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	bodies  []string
	headers []http.Header
}

type scriptedResponse struct {
	status int
	header map[string]string
	body   string
}

func newScriptedServer(t *testing.T, script ...scriptedResponse) *scriptedServer {
	t.Helper()
	s := &scriptedServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(s.calls.Add(1)) - 1
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, string(body))
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		resp := script[len(script)-1]
		if n < len(script) {
			resp = script[n]
		}
		for k, v := range resp.header {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(s.Close)
	return s
}

func status(code int) scriptedResponse {
	return scriptedResponse{status: code}
}

func okJSON(body string) scriptedResponse {
	return scriptedResponse{status: http.StatusOK, body: body}
}

// recordingObserver captures executor observations.
type recordingObserver struct {
	mu       sync.Mutex
	requests []int
	retries  []string
	waits    []time.Duration
}

func (o *recordingObserver) ObserveAPIRequest(_ string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, status)
}

func (o *recordingObserver) ObserveAPIRetry(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, reason)
}

func (o *recordingObserver) ObserveLimiterWait(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waits = append(o.waits, d)
}

func newTestExecutor(baseURL string, clk *clock.Fake, opts ...ExecutorOption) *Executor {
	limiter := NewRateLimiter(1000, time.Second, clk)
	opts = append([]ExecutorOption{WithExecutorClock(clk)}, opts...)
	return NewExecutor(ExecutorConfig{BaseURL: baseURL, Token: "secret"}, limiter, opts...)
}

var getRoot = Request{Method: http.MethodGet, Path: "/"}

func TestExecutor_Success(t *testing.T) {
	t.Run("returns body and sets headers", func(t *testing.T) {
		srv := newScriptedServer(t, okJSON(`{"keys":["a"]}`))
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		body, found, err := exec.Execute(context.Background(), Request{
			Method: http.MethodPost,
			Path:   "/tools/suggest",
			Body:   map[string]any{"list": []string{"x"}},
		}, 3)

		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"keys":["a"]}`, string(body))
		require.Len(t, srv.headers, 1)
		assert.Equal(t, "secret", srv.headers[0].Get(DefaultTokenHeader))
		assert.Equal(t, "application/json", srv.headers[0].Get("Content-Type"))
		assert.Empty(t, clk.Sleeps())
	})

	t.Run("encodes query parameters", func(t *testing.T) {
		var gotQuery url.Values
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		exec := newTestExecutor(srv.URL, clock.NewFake(epoch))
		_, _, err := exec.Execute(context.Background(), Request{
			Method: http.MethodGet,
			Path:   "/report",
			Query:  url.Values{"keyword": {"синий диван"}},
		}, 1)

		require.NoError(t, err)
		assert.Equal(t, "синий диван", gotQuery.Get("keyword"))
	})
}

func TestExecutor_Accepted(t *testing.T) {
	t.Run("unlimited 202s do not exhaust the attempt budget", func(t *testing.T) {
		script := make([]scriptedResponse, 0, 8)
		for i := 0; i < 7; i++ {
			script = append(script, status(http.StatusAccepted))
		}
		script = append(script, okJSON(`{"uid":"u1"}`))
		srv := newScriptedServer(t, script...)
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		body, found, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"uid":"u1"}`, string(body))
		assert.Equal(t, int32(8), srv.calls.Load())
		assert.Len(t, clk.Sleeps(), 7)
		for _, d := range clk.Sleeps() {
			assert.Equal(t, 2*time.Second, d)
		}
	})
}

func TestExecutor_Quota(t *testing.T) {
	t.Run("honours Retry-After seconds", func(t *testing.T) {
		srv := newScriptedServer(t,
			scriptedResponse{status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "7"}},
			okJSON(`{}`),
		)
		clk := clock.NewFake(epoch)
		obs := &recordingObserver{}
		exec := newTestExecutor(srv.URL, clk, WithObserver(obs))

		_, found, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []time.Duration{7 * time.Second}, clk.Sleeps())
		assert.Equal(t, []string{"quota"}, obs.retries)
	})

	t.Run("falls back to 15s without Retry-After", func(t *testing.T) {
		srv := newScriptedServer(t, status(http.StatusTooManyRequests), okJSON(`{}`))
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		_, _, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{15 * time.Second}, clk.Sleeps())
	})

	t.Run("honours Retry-After as an HTTP date", func(t *testing.T) {
		clk := clock.NewFake(epoch)
		retryAt := epoch.Add(30 * time.Second).Format(http.TimeFormat)
		srv := newScriptedServer(t,
			scriptedResponse{status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": retryAt}},
			okJSON(`{}`),
		)
		exec := newTestExecutor(srv.URL, clk)

		_, _, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{30 * time.Second}, clk.Sleeps())
	})

	t.Run("Retry-After zero retries immediately", func(t *testing.T) {
		srv := newScriptedServer(t,
			scriptedResponse{status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "0"}},
			okJSON(`{}`),
		)
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		_, found, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []time.Duration{0}, clk.Sleeps())
	})

	t.Run("Retry-After date in the past retries immediately", func(t *testing.T) {
		clk := clock.NewFake(epoch)
		retryAt := epoch.Add(-time.Minute).Format(http.TimeFormat)
		srv := newScriptedServer(t,
			scriptedResponse{status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": retryAt}},
			okJSON(`{}`),
		)
		exec := newTestExecutor(srv.URL, clk)

		_, _, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{0}, clk.Sleeps())
	})

	t.Run("negative Retry-After uses default", func(t *testing.T) {
		srv := newScriptedServer(t,
			scriptedResponse{status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "-3"}},
			okJSON(`{}`),
		)
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		_, _, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{15 * time.Second}, clk.Sleeps())
	})

	t.Run("unparseable Retry-After uses default", func(t *testing.T) {
		srv := newScriptedServer(t,
			scriptedResponse{status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "soon"}},
			okJSON(`{}`),
		)
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		_, _, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{15 * time.Second}, clk.Sleeps())
	})

	t.Run("persistent quota exhaustion returns absent", func(t *testing.T) {
		srv := newScriptedServer(t, status(http.StatusTooManyRequests))
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		body, found, err := exec.Execute(context.Background(), getRoot, 2)

		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, body)
		assert.Equal(t, int32(2), srv.calls.Load())
	})
}

func TestExecutor_Unauthorized(t *testing.T) {
	srv := newScriptedServer(t, status(http.StatusUnauthorized), okJSON(`{}`))
	clk := clock.NewFake(epoch)
	exec := newTestExecutor(srv.URL, clk)

	_, found, err := exec.Execute(context.Background(), getRoot, 5)

	require.Error(t, err)
	assert.False(t, found)
	var authErr *domain.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(1), srv.calls.Load(), "401 must never be retried")
	assert.Empty(t, clk.Sleeps())
}

func TestExecutor_NotFound(t *testing.T) {
	srv := newScriptedServer(t, status(http.StatusNotFound))
	exec := newTestExecutor(srv.URL, clock.NewFake(epoch))

	body, found, err := exec.Execute(context.Background(), getRoot, 3)

	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, body)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestExecutor_ServerErrors(t *testing.T) {
	t.Run("backoff doubles per attempt then fails with server kind", func(t *testing.T) {
		srv := newScriptedServer(t, status(http.StatusInternalServerError))
		clk := clock.NewFake(epoch)
		obs := &recordingObserver{}
		exec := newTestExecutor(srv.URL, clk, WithObserver(obs))

		_, found, err := exec.Execute(context.Background(), getRoot, 4)

		require.Error(t, err)
		assert.False(t, found)
		var exhausted *domain.RetriesExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, domain.RetryKindServer, exhausted.Kind)
		assert.Equal(t, 4, exhausted.Attempts)
		assert.Equal(t, http.StatusInternalServerError, exhausted.LastStatus)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clk.Sleeps())
		assert.Equal(t, int32(4), srv.calls.Load())
		assert.Equal(t, []int{500, 500, 500, 500}, obs.requests)
	})

	t.Run("recovers after transient 5xx", func(t *testing.T) {
		srv := newScriptedServer(t, status(http.StatusBadGateway), status(http.StatusServiceUnavailable), okJSON(`{"ok":true}`))
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		body, found, err := exec.Execute(context.Background(), getRoot, 3)

		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"ok":true}`, string(body))
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Sleeps())
	})

	t.Run("single attempt budget fails without sleeping", func(t *testing.T) {
		srv := newScriptedServer(t, status(http.StatusInternalServerError))
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		_, _, err := exec.Execute(context.Background(), getRoot, 1)

		assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
		assert.Empty(t, clk.Sleeps())
	})

	t.Run("request body is resent on every attempt", func(t *testing.T) {
		srv := newScriptedServer(t, status(http.StatusInternalServerError), okJSON(`{}`))
		exec := newTestExecutor(srv.URL, clock.NewFake(epoch))

		_, _, err := exec.Execute(context.Background(), Request{
			Method: http.MethodPost,
			Path:   "/tools/delete_double",
			Body:   map[string]any{"list": []string{"a", "b"}},
		}, 3)

		require.NoError(t, err)
		require.Len(t, srv.bodies, 2)
		assert.JSONEq(t, `{"list":["a","b"]}`, srv.bodies[0])
		assert.Equal(t, srv.bodies[0], srv.bodies[1])
	})
}

func TestExecutor_TransportErrors(t *testing.T) {
	t.Run("retries then fails with transport kind", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		deadURL := srv.URL
		srv.Close()

		clk := clock.NewFake(epoch)
		exec := newTestExecutor(deadURL, clk)

		_, found, err := exec.Execute(context.Background(), getRoot, 3)

		require.Error(t, err)
		assert.False(t, found)
		var exhausted *domain.RetriesExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, domain.RetryKindTransport, exhausted.Kind)
		assert.NotNil(t, exhausted.Cause)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Sleeps())
	})

	t.Run("cancelled context is returned without retry", func(t *testing.T) {
		srv := newScriptedServer(t, okJSON(`{}`))
		clk := clock.NewFake(epoch)
		exec := newTestExecutor(srv.URL, clk)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := exec.Execute(ctx, getRoot, 3)

		assert.True(t, errors.Is(err, context.Canceled))
		assert.Empty(t, clk.Sleeps())
	})
}

func TestExecutor_OtherStatus(t *testing.T) {
	srv := newScriptedServer(t, scriptedResponse{status: http.StatusBadRequest, body: `{"error":"bad filter"}`})
	clk := clock.NewFake(epoch)
	exec := newTestExecutor(srv.URL, clk)

	_, found, err := exec.Execute(context.Background(), getRoot, 3)

	require.Error(t, err)
	assert.False(t, found)
	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "bad filter")
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestExecutor_RateLimited(t *testing.T) {
	srv := newScriptedServer(t, okJSON(`{}`))
	clk := clock.NewFake(epoch)
	obs := &recordingObserver{}
	limiter := NewRateLimiter(2, 10*time.Second, clk)
	exec := NewExecutor(ExecutorConfig{BaseURL: srv.URL}, limiter, WithExecutorClock(clk), WithObserver(obs))

	for i := 0; i < 3; i++ {
		_, _, err := exec.Execute(context.Background(), getRoot, 1)
		require.NoError(t, err)
	}

	assert.Equal(t, []time.Duration{10 * time.Second}, clk.Sleeps())
	assert.Equal(t, []time.Duration{10 * time.Second}, obs.waits)
	assert.Equal(t, int32(3), srv.calls.Load())
}

func TestRequest_Endpoint(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/tools/suggest", "/tools/suggest"},
		{"/tools/extended_keywords", "/tools/extended_keywords"},
		{"/tools/extended_keywords/abc123", "/tools/extended_keywords/{uid}"},
		{"/tools/extended_keywords/state/abc123", "/tools/extended_keywords/state/{uid}"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Request{Path: tt.path}.endpoint())
		})
	}
}
