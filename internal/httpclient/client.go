// Package httpclient builds the HTTP clients shared by every network
// consumer: a retrying client for large downloads and a resty client for
// small page, manifest and icon requests.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Version is reported in the User-Agent header. Overridden at link time.
var Version = "dev"

// Options configures New.
type Options struct {
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Logger       *zap.Logger
}

// DefaultOptions returns production settings.
func DefaultOptions() Options {
	return Options{
		Timeout:      60 * time.Second,
		Retries:      3,
		RetryWaitMin: 1 * time.Second,
		RetryWaitMax: 30 * time.Second,
		UserAgent:    "e-webapp/" + Version,
	}
}

// Client pairs a retryable client with a resty client sharing one transport.
type Client struct {
	Retryable *retryablehttp.Client
	Resty     *resty.Client
	userAgent string
}

// New creates the shared clients.
func New(opts Options) *Client {
	def := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = def.RetryWaitMin
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = def.RetryWaitMax
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = leveledLogger{logger.Sugar()}
	// Hand back the last response instead of a generic "giving up" error
	// so callers can report the status code.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.New()
	restyClient.
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWaitMin).
		SetRetryMaxWaitTime(opts.RetryWaitMax).
		SetHeader("User-Agent", opts.UserAgent).
		SetLogger(logger.Sugar())

	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	return &Client{
		Retryable: retryClient,
		Resty:     restyClient,
		userAgent: opts.UserAgent,
	}
}

// NewRequest creates a retryable request carrying the client's User-Agent.
func (c *Client) NewRequest(ctx context.Context, method, url string, body io.Reader) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// Do sends a request built by NewRequest.
func (c *Client) Do(req *retryablehttp.Request) (*http.Response, error) {
	return c.Retryable.Do(req)
}

// UserAgent returns the header value sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
