package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// defaultUserAgent mimics a desktop browser. Several museum image servers
// reject requests with an empty or default Go client identifier.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// defaultTimeout bounds every request made through the client.
const defaultTimeout = 60 * time.Second

// maxResponseBytes caps how much of a JSON response body is read. The Met
// search endpoint returns its full objectID list in one response, which can
// run to several megabytes; anything past this cap is a malformed response.
const maxResponseBytes = 32 << 20 // 32 MB

// ErrNotImage is returned by Download when the response's declared
// Content-Type is not an image class. Nothing is written to disk in that
// case.
var ErrNotImage = errors.New("response content type is not an image")

// ErrInvalidJSON is returned by GetJSON for a 2xx response whose body does
// not decode. Adapters map it to their malformed-envelope handling.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// StatusError is returned for any non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Config holds client construction parameters. Zero values fall back to
// defaults.
type Config struct {
	// UserAgent overrides the default browser-like identifier.
	UserAgent string

	// Timeout bounds each request end to end.
	Timeout time.Duration

	// RequestsPerSecond throttles all traffic through the client.
	// Zero or negative disables throttling (used by tests).
	RequestsPerSecond float64

	// Logger receives per-call diagnostics. Nil means no logging.
	Logger *zap.Logger
}

// Client wraps HTTP operations shared by the provider adapters and the
// download path.
//
// Every request carries the configured User-Agent header and waits on the
// rate limiter first. Failures are scoped to the single call; the client
// never retries.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		limiter:    limiter,
		log:        cfg.Logger,
	}
}

// do waits on the limiter and performs one request with the standard headers.
func (c *Client) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	return c.httpClient.Do(req)
}

// GetJSON performs a GET request and decodes the JSON response body into out.
//
// A non-2xx status is returned as a *StatusError. A 2xx response whose body
// is not valid JSON is returned as a decode error; callers treat both
// according to the per-call failure policy (logged, never fatal to the run).
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body := io.LimitReader(resp.Body, maxResponseBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidJSON, rawURL, err)
	}
	return nil
}

// Download streams the body of rawURL to destPath.
//
// The response's declared Content-Type must begin with "image/"; otherwise
// ErrNotImage is returned and no file is written, regardless of status. The
// body is streamed with io.Copy rather than buffered. A partial file left by
// a failed copy is removed.
func (c *Client) Download(ctx context.Context, rawURL, destPath string) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.log.Debug("rejecting non-image response",
			zap.String("url", rawURL),
			zap.String("content_type", contentType))
		return 0, fmt.Errorf("%w: %q from %s", ErrNotImage, contentType, rawURL)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return 0, fmt.Errorf("write %s: %w", destPath, err)
	}

	return written, nil
}

// ProbeImage checks whether rawURL serves an image without downloading it.
//
// It issues a HEAD request and reports true only for a 2xx response whose
// Content-Type begins with "image/". Used by last-resort URL-pattern asset
// resolution to validate guessed URLs before trusting them.
func (c *Client) ProbeImage(ctx context.Context, rawURL string) bool {
	resp, err := c.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "image/")
}
