package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicdocs/docmirror/internal/config"
	"github.com/stretchr/testify/require"
)

func testConfig(retries int) config.TransportConfig {
	return config.TransportConfig{
		ConnectTimeout:  time.Second,
		ResponseTimeout: 5 * time.Second,
		MaxRetries:      retries,
		RetryBaseDelay:  time.Millisecond,
	}
}

func TestDoRetriesTransientStatusThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(testConfig(5))
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(b))
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(testConfig(3))
	_, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil, []byte("{}"))
	require.Error(t, err)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.Equal(t, http.StatusTooManyRequests, terr.StatusCode)
	// 1 initial attempt + 3 retries
	require.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig(5))
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDoReplaysBodyOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"folderId":1}` {
			t.Errorf("attempt %d saw body %q", atomic.LoadInt32(&calls), b)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("done"))
	}))
	defer srv.Close()

	c := New(testConfig(2))
	resp, err := c.Do(context.Background(), http.MethodPost, srv.URL, nil, []byte(`{"folderId":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDoHonorsCancellationBetweenAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(5)
	cfg.RetryBaseDelay = time.Hour
	c := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Do(ctx, http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}
