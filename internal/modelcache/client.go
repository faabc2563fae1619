// SPDX-License-Identifier: MPL-2.0

package modelcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kiln-cli/internal/container"
)

// DefaultRegistryURL is the public model registry downloads resolve against.
const DefaultRegistryURL = "https://huggingface.co"

const (
	defaultMaxAttempts = 4
	defaultBaseBackoff = 500 * time.Millisecond
)

// RegistryClient downloads model files from an HTTP model registry using
// the hub layout: <base>/<model-id>/resolve/main/<file>.
type RegistryClient struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseBackoff time.Duration
}

// RegistryOption customizes a RegistryClient.
type RegistryOption func(*RegistryClient)

// WithRegistryURL overrides the registry base URL. Used for mirrors and in
// tests.
func WithRegistryURL(base string) RegistryOption {
	return func(c *RegistryClient) { c.baseURL = base }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) RegistryOption {
	return func(c *RegistryClient) { c.httpClient = hc }
}

// WithRetryPolicy overrides attempt count and base backoff.
func WithRetryPolicy(maxAttempts int, baseBackoff time.Duration) RegistryOption {
	return func(c *RegistryClient) {
		c.maxAttempts = maxAttempts
		c.baseBackoff = baseBackoff
	}
}

// NewRegistryClient creates a client against the default public registry.
func NewRegistryClient(opts ...RegistryOption) *RegistryClient {
	c := &RegistryClient{
		baseURL:     DefaultRegistryURL,
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fileURL builds the resolve URL for one file of a model. File paths may
// contain directory separators, so each segment is escaped on its own.
func (c *RegistryClient) fileURL(id ModelID, file string) string {
	segments := strings.Split(file, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/resolve/main/%s", c.baseURL, id, strings.Join(segments, "/"))
}

// DownloadFile fetches one model file into dest, creating parent
// directories as needed. Transient failures (5xx, 429, network errors) are
// retried with exponential backoff; a Retry-After header on 429/503 extends
// the wait. Returns the file's sha256 digest and size.
func (c *RegistryClient) DownloadFile(ctx context.Context, id ModelID, file, dest string) (sum string, size int64, err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	policy := container.BackoffPolicy{MaxAttempts: c.maxAttempts, BaseDelay: c.baseBackoff}
	retryErr := policy.Retry(ctx, func(attempt int) (bool, error) {
		sum, size, err = c.downloadOnce(ctx, id, file, dest)
		if err == nil {
			return false, nil
		}

		var transient *transientError
		if errors.As(err, &transient) {
			if transient.retryAfter > 0 {
				// Honor the server's pacing on top of our own backoff.
				select {
				case <-time.After(transient.retryAfter):
				case <-ctx.Done():
					return false, ctx.Err()
				}
			}
			return true, err
		}
		return false, err
	})
	if retryErr != nil {
		return "", 0, fmt.Errorf("failed to download %s for model %s: %w", file, id, retryErr)
	}
	return sum, size, nil
}

func (c *RegistryClient) downloadOnce(ctx context.Context, id ModelID, file, dest string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(id, file), nil)
	if err != nil {
		return "", 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, &transientError{cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Proceed to streaming.
	case resp.StatusCode == http.StatusNotFound:
		return "", 0, fmt.Errorf("registry has no file %s for model %s", file, id)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", 0, &transientError{
			cause:      fmt.Errorf("registry returned %s", resp.Status),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return "", 0, fmt.Errorf("registry returned %s for %s", resp.Status, file)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), resp.Body)
	if err != nil {
		// A torn body is worth another attempt.
		return "", 0, &transientError{cause: fmt.Errorf("download interrupted: %w", err)}
	}
	if err := out.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to finalize %s: %w", dest, err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// transientError marks a failure worth retrying.
type transientError struct {
	cause      error
	retryAfter time.Duration
}

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
