package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

func TestFetcherReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "coverage-agent", r.UserAgent())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second}, nil)
	resp, err := f.Fetch(context.Background(), recall.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.JSONEq(t, `{"results":[]}`, string(resp.Body))
	require.Equal(t, "application/json", resp.Headers.Get("Content-Type"))
}

func TestFetcherSurfacesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second}, nil)
	resp, err := f.Fetch(context.Background(), recall.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.False(t, resp.OK())
}

func TestFetcherSendsMethodHeadersAndBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: time.Second}, nil)
	resp, err := f.Fetch(context.Background(), recall.FetchRequest{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: http.Header{"Authorization": {"Bearer token"}},
		Body:    []byte(`{"url":"x"}`),
	})
	require.NoError(t, err)
	require.Equal(t, `{"url":"x"}`, string(resp.Body))
}

func TestFetcherRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil).Fetch(context.Background(), recall.FetchRequest{})
	require.Error(t, err)
}

func TestFetcherStopsWhenLimiterFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("limited")
	f := New(Config{}, waiterFunc(func(context.Context, string) error { return boom }))
	_, err := f.Fetch(context.Background(), recall.FetchRequest{URL: "http://127.0.0.1:1"})
	require.ErrorIs(t, err, boom)
}

func TestFetcherHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}, nil).Fetch(ctx, recall.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	start := time.Unix(0, 0)
	var result recall.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, start, &result, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))
	require.Equal(t, "https://example.com", result.URL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestConfigureCollectorHooksHandlesNilHeaders(t *testing.T) {
	t.Parallel()

	var result recall.FetchResponse
	hooks := &stubHooks{}
	New(Config{}, nil).configureCollectorHooks(hooks, time.Now(), &result, new(error))
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Nil(t, result.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type waiterFunc func(ctx context.Context, rawURL string) error

func (f waiterFunc) Wait(ctx context.Context, rawURL string) error { return f(ctx, rawURL) }

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
