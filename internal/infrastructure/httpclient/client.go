// Package httpclient is the single HTTP adapter used by every API module.
// It attaches the bearer token and CSRF header, retries idempotent reads on
// transient failures, and recovers from an expired access token by refreshing
// it once per request.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/config"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Header names used by the adapter
const (
	HeaderRequestID = "X-Request-ID"

	DefaultCSRFCookie  = "csrftoken"
	DefaultCSRFHeader  = "X-CSRFToken"
	DefaultRefreshPath = "/auth/token/refresh/"
	DefaultLoginRoute  = "/login"
)

// Client is the authenticated HTTP adapter
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	headers     map[string]string
	retryConfig RetryConfig
	mu          sync.RWMutex

	tokens      TokenStore
	redirector  LoginRedirector
	refreshPath string
	loginRoute  string
	refreshes   singleflight.Group
	refreshing  bool

	csrfCookie string
	csrfHeader string
	csrfToken  string

	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// RetryConfig configures retries of idempotent requests
type RetryConfig struct {
	MaxRetries  int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	ShouldRetry func(resp *Response, err error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		RetryDelay: 250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		ShouldRetry: func(resp *Response, err error) bool {
			if err != nil {
				return true
			}
			// Retry on 5xx errors and 429 (Too Many Requests)
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		},
	}
}

// NoRetry disables retries
func NoRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 0
	return cfg
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. A cookie jar is added
// when the given client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenStore sets where tokens are persisted
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.tokens = store
	}
}

// WithRedirector sets what happens when the session can no longer be refreshed
func WithRedirector(r LoginRedirector) Option {
	return func(c *Client) {
		c.redirector = r
	}
}

// WithRefreshPath overrides the token refresh endpoint
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.refreshPath = path
		}
	}
}

// WithLoginRoute overrides the route handed to the redirector
func WithLoginRoute(route string) Option {
	return func(c *Client) {
		if route != "" {
			c.loginRoute = route
		}
	}
}

// WithCSRF overrides the CSRF cookie and header names and an optional static token
func WithCSRF(cookie, header, token string) Option {
	return func(c *Client) {
		if cookie != "" {
			c.csrfCookie = cookie
		}
		if header != "" {
			c.csrfHeader = header
		}
		c.csrfToken = token
	}
}

// WithRateLimit throttles outgoing requests; rps <= 0 disables the limit
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for idempotent requests
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// WithHeader sets a default header for all requests
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics records request and refresh metrics
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", baseURL)
	}

	c := &Client{
		baseURL:     u,
		headers:     make(map[string]string),
		retryConfig: DefaultRetryConfig(),
		tokens:      NewMemoryStore(Session{}),
		redirector:  NopRedirector{},
		refreshPath: DefaultRefreshPath,
		loginRoute:  DefaultLoginRoute,
		csrfCookie:  DefaultCSRFCookie,
		csrfHeader:  DefaultCSRFHeader,
		logger:      zap.NewNop(),
	}

	c.headers["Accept"] = "application/json"
	c.headers["User-Agent"] = "crmctl/1.0"

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	return c, nil
}

// NewFromConfig creates a client from the api section of the configuration.
// Extra options are applied after the configured ones.
func NewFromConfig(cfg config.APIConfig, opts ...Option) (*Client, error) {
	base := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithRefreshPath(cfg.RefreshPath),
		WithLoginRoute(cfg.LoginRoute),
		WithCSRF(cfg.CSRFCookie, cfg.CSRFHeader, cfg.CSRFToken),
		WithRateLimit(cfg.RateLimitRequests, cfg.RateLimitBurst),
	}
	if cfg.UserAgent != "" {
		base = append(base, WithHeader("User-Agent", cfg.UserAgent))
	}
	return New(cfg.BaseURL, append(base, opts...)...)
}

// Request represents an API call relative to the base URL
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    any

	// Anonymous requests carry no bearer token and never trigger a refresh
	Anonymous bool
}

// Do executes req. Non-2xx responses are returned together with a
// *shared.APIError; transport failures return a network APIError and no response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	resp, access, err := c.execute(ctx, req, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.Anonymous {
		if rerr := c.recoverSession(ctx, access); rerr != nil {
			logger.Enrich(ctx, c.logger).Debug("session recovery failed",
				zap.String("path", req.Path),
				zap.Error(rerr))
			return resp, errorFromResponse(resp)
		}
		// Retry exactly once; a second 401 is returned as is
		resp, _, err = c.execute(ctx, req, body)
		if err != nil {
			return nil, err
		}
	}

	if !resp.IsSuccess() {
		return resp, errorFromResponse(resp)
	}
	return resp, nil
}

// DoJSON executes req and decodes a successful body into out
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// execute runs one logical request, retrying transient failures of idempotent
// methods. It returns the access token that was attached.
func (c *Client) execute(ctx context.Context, req Request, body []byte) (*Response, string, error) {
	u, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, "", fmt.Errorf("building URL: %w", err)
	}

	maxRetries := 0
	if isIdempotent(req.Method) {
		maxRetries = c.retryConfig.MaxRetries
	}

	var (
		resp   *Response
		access string
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, access, shared.NewNetworkError(ctx.Err())
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		resp, access, err = c.send(ctx, req, u, body)
		if attempt < maxRetries && c.retryConfig.ShouldRetry != nil && c.retryConfig.ShouldRetry(resp, err) {
			continue
		}
		break
	}
	return resp, access, err
}

func (c *Client) send(ctx context.Context, req Request, u *url.URL, body []byte) (*Response, string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", shared.NewNetworkError(err)
		}
	}

	requestID := logger.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, span := telemetry.StartRequest(ctx, req.Method, req.Path, requestID)
	defer span.End()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), reader)
	if err != nil {
		return nil, "", fmt.Errorf("creating HTTP request: %w", err)
	}

	c.setHeaders(httpReq, req.Headers)
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	var access string
	if !req.Anonymous {
		session, err := c.tokens.Load(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("loading session: %w", err)
		}
		access = session.Access
		if access != "" {
			httpReq.Header.Set("Authorization", "Bearer "+access)
		}
	}
	if isUnsafe(req.Method) {
		if token := c.csrfValue(u); token != "" {
			httpReq.Header.Set(c.csrfHeader, token)
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		c.metrics.ObserveHTTP(req.Method, 0, duration)
		telemetry.Finish(span, err)
		logger.Enrich(ctx, c.logger).Debug("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))
		return nil, access, shared.NewNetworkError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.ObserveHTTP(req.Method, 0, duration)
		telemetry.Finish(span, err)
		return nil, access, shared.NewNetworkError(fmt.Errorf("reading response body: %w", err))
	}

	c.metrics.ObserveHTTP(req.Method, httpResp.StatusCode, duration)
	telemetry.ResponseStatus(span, httpResp.StatusCode)

	logger.Enrich(ctx, c.logger).Debug("request completed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", duration))

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Duration:   duration,
		RequestID:  requestID,
	}, access, nil
}

// csrfValue prefers the cookie set by the backend over the static token
func (c *Client) csrfValue(u *url.URL) string {
	if jar := c.httpClient.Jar; jar != nil {
		for _, cookie := range jar.Cookies(u) {
			if cookie.Name == c.csrfCookie && cookie.Value != "" {
				return cookie.Value
			}
		}
	}
	return c.csrfToken
}

// buildURL resolves path against the base URL, keeping the base path prefix
func (c *Client) buildURL(path string, query url.Values) (*url.URL, error) {
	path = strings.TrimPrefix(path, "/")

	u, err := c.baseURL.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

// setHeaders sets headers on the request.
func (c *Client) setHeaders(req *http.Request, customHeaders map[string]string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range customHeaders {
		req.Header.Set(k, v)
	}
}

// calculateBackoff calculates the backoff delay for the given attempt.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryConfig.RetryDelay) * math.Pow(c.retryConfig.Multiplier, float64(attempt-1))
	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	// Add jitter (±25%)
	jitter := delay * 0.25
	delay = delay + (rand.Float64()*2-1)*jitter
	return time.Duration(delay)
}

// SetHeader sets a default header for all requests.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Tokens returns the session store
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isUnsafe(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
