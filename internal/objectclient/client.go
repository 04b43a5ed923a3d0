// Package objectclient is a hand-rolled REST/JSON facade over the Google
// Cloud Storage JSON API v1: List, Get, Download, Upload, Delete. It
// mirrors the shape of a typical cloud-storage HTTP client — request
// construction, bearer-token injection, retry with backoff, and error
// classification — generalized to the GCS wire format and retry tuning.
package objectclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultBaseURL is the production GCS JSON API endpoint. STORAGE_EMULATOR_HOST
// overrides it when set.
const DefaultBaseURL = "https://storage.googleapis.com"

// EnvEmulatorHost overrides the base URL, for testing against an emulator.
const EnvEmulatorHost = "STORAGE_EMULATOR_HOST"

// Retry tuning per the run's backoff policy: initial 500ms, factor 2,
// jitter ±20%, cap 30s, max 5 attempts. These numbers are GCS's own
// documented retry guidance, distinct from any other API's tuning.
const (
	maxAttempts    = 5
	baseBackoff    = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	jitterPercent  = 20
	userAgent      = "gcs-rsync/0.1"
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// (objectclient) per "accept interfaces, return structs" — implementations
// live in internal/tokenprovider.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// noAuthTokenSource never emits an Authorization header, for anonymous
// access to public buckets.
type noAuthTokenSource struct{}

func (noAuthTokenSource) Token(context.Context) (string, error) { return "", nil }

// NoAuth returns a TokenSource for anonymous, unauthenticated requests.
func NoAuth() TokenSource { return noAuthTokenSource{} }

// Client is an HTTP client for the GCS JSON API v1.
type Client struct {
	baseURL    string
	bucket     string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a GCS object client for the given bucket. httpClient,
// if nil, defaults to a client tuned for a 64-connection pool per the
// shared connection-pool limit. The base URL is STORAGE_EMULATOR_HOST when
// set, DefaultBaseURL otherwise.
func NewClient(bucket string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}

	baseURL := os.Getenv(EnvEmulatorHost)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		bucket:     bucket,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// defaultHTTPClient grounds the shared connection-pool limit (default 64
// concurrent TCP connections) and a 600s overall request timeout; no
// separate connect timeout is set.
func defaultHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = 64
	transport.MaxIdleConnsPerHost = 64

	return &http.Client{
		Transport: transport,
		Timeout:   600 * time.Second,
	}
}

// Do executes an authenticated HTTP request against the GCS JSON API with
// automatic retry on transient errors. The caller closes the response body
// on success. On an HTTP error status the returned error wraps an
// *ObjectError carrying a sentinel; a network failure is returned wrapped
// as it came.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := c.baseURL + path

	var resp *http.Response

	b := newBackoff()

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := rewindBody(body); err != nil {
			return err
		}

		r, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			c.logger.Warn("retrying after network error",
				slog.String("method", method), slog.String("path", path),
				slog.String("error", err.Error()))

			return retry.RetryableError(err)
		}

		if r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices {
			resp = r
			return nil
		}

		errBody, readErr := io.ReadAll(r.Body)
		r.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		objErr := &ObjectError{StatusCode: r.StatusCode, Body: string(errBody), Err: classifyStatus(r.StatusCode)}

		if isRetryable(r.StatusCode) {
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method), slog.String("path", path),
				slog.Int("status", r.StatusCode))

			// 429 Retry-After takes precedence over the computed backoff:
			// sleep for it directly, then let the policy govern the
			// *next* attempt's spacing (go-retry has no per-error delay
			// override, so this adds one extra wait rather than replacing one).
			if r.StatusCode == http.StatusTooManyRequests {
				if d, ok := retryAfter(r); ok {
					if err := c.sleepFunc(ctx, d); err != nil {
						return err
					}
				}
			}

			return retry.RetryableError(objErr)
		}

		return objErr
	})
	if err != nil {
		return nil, fmt.Errorf("objectclient: %s %s: %w", method, path, err)
	}

	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	req.Header.Set("User-Agent", userAgent)

	return c.httpClient.Do(req)
}

// retryAfter extracts a Retry-After header value as a duration.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}

	return 0, false
}

// newBackoff builds the truncated-exponential, jittered, capped, bounded
// backoff policy from the spec's own constants (distinct from any other
// API's retry tuning): initial 500ms, factor 2, jitter ±20%, cap 30s, max
// 5 attempts.
func newBackoff() retry.Backoff {
	b := retry.NewExponential(baseBackoff)
	b = retry.WithMaxRetries(maxAttempts-1, b)
	b = retry.WithJitterPercent(jitterPercent, b)
	b = retry.WithCappedDuration(maxBackoff, b)

	return b
}

// rewindBody seeks an io.Reader back to offset 0 if it implements io.Seeker,
// so retries resend the full payload.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("objectclient: rewinding request body for retry: %w", err)
		}
	}

	return nil
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
