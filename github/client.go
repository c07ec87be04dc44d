// Package github is a small client for the GitHub Contents API. It is the
// only part of the module that touches the network.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/errs"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// RetryPolicy bounds the client's only retry: a failed write may be replayed
// once against the repository default branch when the configured branch does
// not exist. Reads are never retried.
type RetryPolicy struct {
	// Timeout applies to every single HTTP request.
	Timeout time.Duration
	// MaxWriteAttempts is the total number of PUT attempts per write. Values
	// above 2 are clamped; the retry never targets the same branch twice.
	MaxWriteAttempts int
	// FallbackToDefaultBranch enables the 404 write fallback.
	FallbackToDefaultBranch bool
}

// DefaultRetryPolicy returns a 30 second timeout with branch fallback.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:                 30 * time.Second,
		MaxWriteAttempts:        2,
		FallbackToDefaultBranch: true,
	}
}

func (p RetryPolicy) allowsFallback() bool {
	return p.FallbackToDefaultBranch && p.MaxWriteAttempts >= 2
}

// Client talks to one repository with one set of credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     RetryPolicy
	logger     *zap.Logger
	onFallback func(from, to string)

	mu    sync.Mutex
	creds credentials.Credentials
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, GitHub Enterprise).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBranchFallbackHook registers fn to be called after a write succeeded
// on the default branch instead of the configured one.
func WithBranchFallbackHook(fn func(from, to string)) Option {
	return func(c *Client) { c.onFallback = fn }
}

// NewClient returns a client for creds. Credentials without token, owner or
// repo yield a ConfigurationMissing error.
func NewClient(creds credentials.Credentials, opts ...Option) (*Client, error) {
	if !creds.Configured() {
		return nil, errs.New(errs.ConfigurationMissing, "github credentials are incomplete")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		policy:     DefaultRetryPolicy(),
		logger:     zap.NewNop(),
		creds:      creds.Normalize(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.Timeout <= 0 {
		c.policy.Timeout = DefaultRetryPolicy().Timeout
	}
	return c, nil
}

// Credentials returns the coordinates currently in use. The branch reflects
// a successful fallback.
func (c *Client) Credentials() credentials.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

func (c *Client) branch() string {
	return c.Credentials().Branch
}

func (c *Client) repoPath() string {
	creds := c.Credentials()
	return "/repos/" + url.PathEscape(creds.Owner) + "/" + url.PathEscape(creds.Repo)
}

func (c *Client) contentsPath(p string) string {
	return c.repoPath() + "/contents/" + EscapePath(p)
}

// EscapePath escapes every segment of a repository path and drops leading
// and trailing slashes.
func EscapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

type apiError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

// do sends one request. A non-nil body is JSON encoded; out receives the
// decoded 2xx response when non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.Unknown, "encode request body", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return errs.Wrap(errs.Unknown, "build request", err)
	}
	req.Header.Set("Authorization", "token "+c.Credentials().Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "arya")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("github request failed",
			zap.String("method", method), zap.String("endpoint", endpoint), zap.Error(err))
		return transportError(method, endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("github request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.Unknown, "decode "+method+" "+endpoint, err)
	}
	return nil
}

func transportError(method, endpoint string, err error) error {
	msg := method + " " + endpoint
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.Timeout, msg, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return errs.Wrap(errs.Timeout, msg, err)
	default:
		return errs.Wrap(errs.NetworkUnreachable, msg, err)
	}
}

// statusError classifies a non-2xx response.
func statusError(resp *http.Response) error {
	var payload apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Message == "" {
		payload.Message = strings.TrimSpace(string(raw))
	}
	if payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}

	var kind errs.Kind
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		kind = errs.Unauthorized
	case http.StatusForbidden:
		kind = errs.Forbidden
		if resp.Header.Get("X-RateLimit-Remaining") == "0" ||
			strings.Contains(strings.ToLower(payload.Message), "rate limit") {
			kind = errs.RateLimited
		}
	case http.StatusTooManyRequests:
		kind = errs.RateLimited
	case http.StatusNotFound:
		kind = errs.NotFound
	case http.StatusConflict, http.StatusUnprocessableEntity:
		kind = errs.Conflict
	default:
		kind = errs.Unknown
	}
	e := errs.New(kind, payload.Message)
	e.Status = resp.StatusCode
	return e
}

func asError(err error, target **errs.Error) bool {
	return errors.As(err, target)
}
