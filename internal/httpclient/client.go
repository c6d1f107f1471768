// Package httpclient provides the HTTP client used to talk to the review service
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// DefaultMaxTries is the default number of attempts per request
	DefaultMaxTries = 2

	// MaxResponseSize is the maximum allowed response size (16MB)
	MaxResponseSize = 16 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "repocache/1.0"
)

// Response is a fully read HTTP response. Redirects are not followed, so
// StatusCode may be a 3xx.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request. Any status code is returned as a
	// Response; an error means no response was obtained.
	Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error)
}

// RequestOption configures a single request
type RequestOption func(*requestConfig)

type requestConfig struct {
	header http.Header
	jar    http.CookieJar
}

// WithHeader sets a request header
func WithHeader(key, value string) RequestOption {
	return func(c *requestConfig) {
		c.header.Set(key, value)
	}
}

// WithCookieHeader forwards a raw Cookie header
func WithCookieHeader(cookie string) RequestOption {
	return func(c *requestConfig) {
		if cookie != "" {
			c.header.Set("Cookie", cookie)
		}
	}
}

// WithCookieJar collects cookies set by the response into jar
func WithCookieJar(jar http.CookieJar) RequestOption {
	return func(c *requestConfig) {
		c.jar = jar
	}
}

// Option configures the client
type Option func(*DefaultClient)

// WithTimeout sets the per-attempt timeout. Zero keeps DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *DefaultClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMaxTries sets the number of attempts per request. Zero keeps
// DefaultMaxTries.
func WithMaxTries(tries uint) Option {
	return func(c *DefaultClient) {
		if tries > 0 {
			c.maxTries = tries
		}
	}
}

// WithTransport replaces the underlying transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) {
		c.transport = rt
	}
}

// WithRetryInterval sets the initial wait between attempts
func WithRetryInterval(d time.Duration) Option {
	return func(c *DefaultClient) {
		c.retryInterval = d
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	transport     http.RoundTripper
	timeout       time.Duration
	maxTries      uint
	retryInterval time.Duration
}

// NewDefaultClient creates a new default HTTP client
func NewDefaultClient(opts ...Option) Client {
	c := &DefaultClient{
		transport:     http.DefaultTransport,
		timeout:       DefaultTimeout,
		maxTries:      DefaultMaxTries,
		retryInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transport = otelhttp.NewTransport(c.transport)
	return c
}

// errRetryableStatus marks a 5xx response worth another attempt
var errRetryableStatus = errors.New("retryable status")

// Get performs an HTTP GET request with bounded retries on network errors
// and 5xx responses.
func (c *DefaultClient) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	rc := &requestConfig{header: make(http.Header)}
	for _, opt := range opts {
		opt(rc)
	}

	client := &http.Client{
		Transport: c.transport,
		Timeout:   c.timeout,
		Jar:       rc.jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	var last *Response
	operation := func() (*Response, error) {
		resp, err := c.do(ctx, client, url, rc.header)
		if err != nil {
			return nil, err
		}
		last = resp
		if resp.StatusCode >= 500 {
			return resp, errRetryableStatus
		}
		return resp, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	resp, err := backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		if errors.Is(err, errRetryableStatus) && last != nil {
			return last, nil
		}
		return nil, err
	}
	return resp, nil
}

func (*DefaultClient) do(ctx context.Context, client *http.Client, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header = header.Clone()
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.ContentLength > MaxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize))
	}

	// +1 to detect if limit exceeded
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response size exceeds maximum allowed size of %d bytes",
			MaxResponseSize))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
