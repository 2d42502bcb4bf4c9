package polymarket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRetryWait = 500 * time.Millisecond
	maxAttempts      = 3
)

// transport is the rate-limited HTTP core shared by the Gamma and CLOB
// clients.
type transport struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	retryWait time.Duration
	logger    *slog.Logger
}

func newTransport(baseURL string, perSec float64, burst int, retryWait, timeout time.Duration, logger *slog.Logger) *transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if perSec <= 0 {
		perSec = 10
	}
	if burst <= 0 {
		burst = 5
	}
	if retryWait <= 0 {
		retryWait = defaultRetryWait
	}
	return &transport{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(perSec), burst),
		retryWait: retryWait,
		logger:    logger,
	}
}

// request describes one API call. Path excludes the query string and is the
// value covered by L2 signatures.
type request struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	headers map[string]string
	retry   bool
}

// do sends req, retrying network errors, 429 and 5xx when req.retry is set.
// Authentication failures are returned immediately.
func (t *transport) do(ctx context.Context, req request) ([]byte, error) {
	attempts := 1
	if req.retry {
		attempts = maxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := t.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, status, err := t.once(ctx, req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(ctx, status, err) {
			return nil, err
		}
		t.logger.WarnContext(ctx, "polymarket: retrying request",
			slog.String("path", req.path),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return nil, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (t *transport) once(ctx context.Context, req request) ([]byte, int, error) {
	target := t.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return body, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (t *transport) sleep(ctx context.Context, attempt int) error {
	wait := t.retryWait << attempt
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable reports whether a failed attempt may be repeated. A client
// timeout is transient; only the caller's own ctx ending stops the retries.
func retryable(ctx context.Context, status int, err error) bool {
	if ctx.Err() != nil || errors.Is(err, domain.ErrUnauthorized) {
		return false
	}
	switch {
	case status == 0:
		return true
	case status == http.StatusTooManyRequests, status >= 500:
		return true
	}
	return false
}

// HTTPError is a non-2xx response that maps to no domain error.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return &HTTPError{StatusCode: statusCode, Body: bodyStr}
	}
}
