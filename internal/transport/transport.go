package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/civicdocs/docmirror/internal/config"
	"github.com/civicdocs/docmirror/pkg/logger"
	"github.com/civicdocs/docmirror/pkg/metrics"
)

// retryableStatus is the fixed set of statuses treated as transient.
// The remote repository throttles with 429 and intermittently serves 5xx.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Error wraps a request failure that survived the full retry budget.
type Error struct {
	Method     string
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("transport: %s %s failed after %d attempts: status %d", e.Method, e.URL, e.Attempts, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Client is an HTTP client with connect/response timeouts and a bounded
// exponential-backoff retry policy. Retries apply to every method alike;
// each call carries its own independent retry budget. Construct one and
// inject it so tests can point it at a fake server.
type Client struct {
	http       *http.Client
	maxRetries int
	baseDelay  time.Duration
	multiplier float64
}

func New(cfg config.TransportConfig) *Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	t := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	}
	return &Client{
		http:       &http.Client{Transport: t, Timeout: cfg.ResponseTimeout},
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		multiplier: 1.5,
	}
}

// Do issues the request, retrying on connection failure or a transient
// status. The body is replayed from the provided bytes on every attempt.
// Cancellation is honored between attempts, never mid-attempt. A non-nil
// response is only returned with a non-retryable or successful status;
// the caller owns closing its body.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	var lastErr error
	lastStatus := 0

	attempts := c.maxRetries + 1
	delay := c.baseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.TransportRetries.Inc()
			logger.Debugf("transport: retry %d/%d for %s %s after %v", attempt, c.maxRetries, method, url, delay)
			select {
			case <-ctx.Done():
				return nil, &Error{Method: method, URL: url, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.multiplier)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			lastStatus = 0
			continue
		}
		if retryableStatus[resp.StatusCode] {
			lastErr = nil
			lastStatus = resp.StatusCode
			// drain so the connection can be reused
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			continue
		}
		return resp, nil
	}

	return nil, &Error{Method: method, URL: url, Attempts: attempts, StatusCode: lastStatus, Err: lastErr}
}
