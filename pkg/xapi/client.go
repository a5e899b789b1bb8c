// Package xapi provides the rate-limited request client shared by the
// resolver strategies, plus the wire types for the X API surfaces they talk
// to. All retry and throttling policy for outbound calls lives here so
// strategies share one rate budget per backend session.
package xapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dghubble/oauth1"

	"likegrab/pkg/config"
	"likegrab/pkg/errors"
	"likegrab/pkg/logger"
	"likegrab/pkg/ratelimit"
	"likegrab/pkg/retry"
)

// Client wraps outbound HTTP calls with minimum inter-request spacing and a
// bounded retry loop for throttling responses. One Client represents one
// backend session; its pacer and headers are safe for concurrent use.
type Client struct {
	httpClient        *http.Client
	pacer             ratelimit.Limiter
	maxAttempts       int
	defaultRetryAfter time.Duration
	logger            logger.Logger

	mu      sync.RWMutex
	headers map[string]string
}

// NewClient creates a request client for one backend session.
func NewClient(cfg config.RateLimitConfig, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	retryAfter := cfg.DefaultRetryAfter
	if retryAfter <= 0 {
		retryAfter = 60 * time.Second
	}

	return &Client{
		httpClient:        &http.Client{Timeout: timeout},
		pacer:             ratelimit.NewInterval(cfg.MinInterval),
		maxAttempts:       maxAttempts,
		defaultRetryAfter: retryAfter,
		logger:            log,
		headers: map[string]string{
			"User-Agent": "likegrab/1.0",
			"Accept":     "application/json",
		},
	}
}

// SetHTTPClient swaps the underlying HTTP client, e.g. for an OAuth 1.0a
// signing transport.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetHeader sets a header applied to every request on this session.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// OAuth1HTTPClient builds an HTTP client whose transport signs requests with
// the OAuth 1.0a user-context quadruple.
func OAuth1HTTPClient(api config.APIConfig, timeout time.Duration) *http.Client {
	oauthCfg := oauth1.NewConfig(api.Key, api.Secret)
	token := oauth1.NewToken(api.AccessToken, api.AccessSecret)
	hc := oauthCfg.Client(oauth1.NoContext, token)
	hc.Timeout = timeout
	return hc
}

// Send performs one request against the session, enforcing the minimum
// inter-request spacing and retrying on throttling responses. A 429 is
// retried after the server-provided Retry-After (default 60s when absent) up
// to the attempt ceiling, after which a rate_limited error is surfaced. Any
// other failure is returned to the caller without automatic retry.
func (c *Client) Send(ctx context.Context, method, target string, params url.Values) (*http.Response, error) {
	if params != nil {
		u, err := url.Parse(target)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeValidation, err, "invalid request URL")
		}
		q := u.Query()
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeValidation, err, "failed to build request")
		}
		c.mu.RLock()
		for key, value := range c.headers {
			req.Header.Set(key, value)
		}
		c.mu.RUnlock()

		c.pacer.Wait()

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.ErrorWithFields("request failed", map[string]interface{}{
				"method":   method,
				"url":      target,
				"error":    err.Error(),
				"duration": time.Since(start),
			})
			return nil, errors.Wrap(errors.ErrorTypeTransport, err, "request failed")
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		wait := c.retryAfter(resp)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if attempt >= c.maxAttempts {
			c.logger.ErrorWithFields("rate limit retry ceiling reached", map[string]interface{}{
				"url":      target,
				"attempts": attempt,
			})
			return nil, errors.New(errors.ErrorTypeRateLimited, "retry ceiling reached while throttled").WithCode(429)
		}

		c.logger.WarnWithFields("throttled, waiting before retry", map[string]interface{}{
			"url":     target,
			"attempt": attempt,
			"wait":    wait,
		})
		if err := retry.Wait(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// retryAfter reads the server-provided cool-down from a throttling response.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.defaultRetryAfter
}

// GetJSON performs a GET and decodes the JSON response into target.
func (c *Client) GetJSON(ctx context.Context, target string, params url.Values, out interface{}) error {
	resp, err := c.Send(ctx, http.MethodGet, target, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeTransport, err, "failed to read response body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          target,
			"status":       resp.StatusCode,
			"body_preview": preview,
		})
		return errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse JSON").WithCode(resp.StatusCode)
	}
	return nil
}

// CheckStatus maps a non-200 response to a typed error.
func CheckStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.ErrorTypeAuthUnavailable, "authentication rejected").WithCode(resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrorTypeNotFound, "resource not found").WithCode(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.New(errors.ErrorTypeRateLimited, "rate limit exceeded").WithCode(resp.StatusCode)
	case resp.StatusCode >= 500:
		return errors.New(errors.ErrorTypeServer, "server error").WithCode(resp.StatusCode)
	default:
		return errors.Newf(errors.ErrorTypeUnknown, "unexpected status code: %d", resp.StatusCode).WithCode(resp.StatusCode)
	}
}
