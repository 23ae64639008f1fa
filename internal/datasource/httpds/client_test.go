// internal/datasource/httpds/client_test.go
//
// These tests exercise the retrying HTTP source: defaults, retry on
// transient failures, final statuses, custom transports and context-aware
// waits.

package httpds

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{InsecureSkipVerify: true})

	assert.Positive(t, c.httpClient.Timeout)
	assert.Zero(t, c.maxRetries)
	assert.Equal(t, 200*time.Millisecond, c.initialBackoff)
	assert.Equal(t, 5*time.Second, c.maxBackoff)

	transport, ok := c.httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, transport.TLSClientConfig)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
}

/*
TestGet_RetryOn5xxThenSuccess verifies that the client retries 5xx statuses
and returns the body once the server recovers.
*/
func TestGet_RetryOn5xxThenSuccess(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Flow"))
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "name,age\n")
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 3, Headers: http.Header{"X-Flow": {"yes"}}})
	c.sleep = noSleep

	body, err := Source{Client: c, URL: srv.URL}.Open(context.Background())
	require.NoError(t, err)
	defer body.Close()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "name,age\n", string(b))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestGet_StopsAfterMaxRetries(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 2})
	c.sleep = noSleep
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retryable status 429")
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestGet_FinalStatusIsNotRetried(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 3})
	c.sleep = noSleep
	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_, err = c.Get(context.Background(), "")
	assert.Error(t, err)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestCustomTransport(t *testing.T) {
	t.Parallel()
	var used bool
	c := NewClient(Config{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		used = true
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(http.NoBody), Request: r}, nil
	})})
	body, err := c.Get(context.Background(), "http://example.invalid/x")
	require.NoError(t, err)
	_ = body.Close()
	assert.True(t, used)
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second},
		{80, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDuration(100*time.Millisecond, tt.attempt, time.Second), "attempt %d", tt.attempt)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()
	for code, want := range map[int]bool{200: false, 404: false, 429: true, 500: true, 503: true, 600: false} {
		assert.Equal(t, want, isRetryableStatus(code), code)
	}
}

func TestSleepWithContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepWithContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepWithContext(context.Background(), time.Millisecond))
}
