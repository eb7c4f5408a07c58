package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"go-creator-hub/internal/model"
	"go-creator-hub/pkg/apierror"
)

const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 64 << 10

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() (string, bool)
}

type Options struct {
	HTTPClient   *http.Client
	Jar          http.CookieJar
	Timeout      time.Duration
	RateLimitRPS float64
	Logger       *slog.Logger
}

// Client talks to the REST API. Every response is expected in the
// {success, message, data, timestamp} envelope.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	logger  *slog.Logger

	mu             sync.RWMutex
	onUnauthorized func()
}

func New(baseURL string, tokens TokenSource, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout, Jar: opts.Jar}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimitRPS > 0 {
		burst := int(opts.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		tokens:  tokens,
		limiter: limiter,
		logger:  logger.With("component", "api"),
	}
}

// OnUnauthorized sets the hook run after any 401 response.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) Post(ctx context.Context, path string, in any, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in any, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

// PutBody sends body verbatim with the given content type.
func (c *Client) PutBody(ctx context.Context, path string, contentType string, body []byte, out any) error {
	return c.do(ctx, http.MethodPut, path, body, contentType, out)
}

func (c *Client) doJSON(ctx context.Context, method string, path string, in any, out any) error {
	var body []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = encoded
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

func (c *Client) do(ctx context.Context, method string, path string, body []byte, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	return c.handleResponse(resp, out)
}

func (c *Client) handleResponse(resp *http.Response, out any) error {
	var envelope model.RawResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxBodyFor(resp.StatusCode))).Decode(&envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := apierror.FromStatus(resp.StatusCode, envelope.Message)
		if decodeErr == nil {
			var body model.ErrorData
			if json.Unmarshal(envelope.Data, &body) == nil && body.Code != "" {
				apiErr.Code = body.Code
				apiErr.Details = body.Details
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			c.unauthorized()
		}
		return apiErr
	}

	if decodeErr != nil {
		return apierror.New(apierror.CodeMalformed, "Unexpected response from server", decodeErr.Error(), resp.StatusCode)
	}
	if !envelope.Success {
		message := envelope.Message
		if message == "" {
			message = "Request was not successful"
		}
		return apierror.New(apierror.CodeMalformed, message, "", resp.StatusCode)
	}

	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return apierror.New(apierror.CodeMalformed, "Unexpected response from server", err.Error(), resp.StatusCode)
	}

	return nil
}

func (c *Client) unauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()

	c.logger.Info("api returned 401; ending session")
	if fn != nil {
		fn()
	}
}

func maxBodyFor(status int) int64 {
	if status >= 300 {
		return maxErrorBody
	}
	return 32 << 20
}

// IsUnauthorized reports whether err came from a 401.
func IsUnauthorized(err error) bool {
	return errors.Is(err, apierror.ErrUnauthorized)
}
