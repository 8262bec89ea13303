// Package client provides the retrying request executor: an HTTP client
// bound to the proxy pool that rotates its egress address on every
// retryable failure.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/google/uuid"

	"egress-client/pkg/config"
	"egress-client/pkg/headers"
	"egress-client/pkg/proxy"
)

// retryStatusCodes are response codes treated as retryable failures even
// though the transport reported no error.
var retryStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options carries per-request inputs. Body is a byte slice so a retried
// attempt can replay it.
type Options struct {
	Headers map[string]string
	Body    []byte
}

// Result is the outcome of a successful request: the response plus its
// fully-read body and how many attempts it took.
type Result struct {
	Response *http.Response
	Body     []byte
	Attempts int
}

// Client executes requests with retry and proxy rotation. The underlying
// *http.Client is lazily created on first use and replaced wholesale (old
// idle connections closed) on every retryable failure.
type Client struct {
	cfg    *config.AppConfig
	pool   *proxy.Pool
	gen    headers.Generator
	logger *slog.Logger

	tlsConf *tls.Config
	jar     http.CookieJar

	mu           sync.Mutex
	httpClient   *http.Client
	currentProxy string
}

// New builds a Client over the given pool. A nil generator disables header
// spoofing, as does cfg.FakeHeadersEnabled = false.
func New(cfg *config.AppConfig, pool *proxy.Pool, gen headers.Generator, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if gen == nil || !cfg.FakeHeadersEnabled {
		gen = headers.Disabled{}
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		cfg:     cfg,
		pool:    pool,
		gen:     gen,
		logger:  logger,
		tlsConf: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		jar:     jar,
	}
}

// CurrentProxy returns the address the transport is currently bound to, or
// "" for direct egress.
func (c *Client) CurrentProxy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentProxy
}

// Close releases the pool and the transport's idle connections.
func (c *Client) Close() {
	c.mu.Lock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
	c.mu.Unlock()
	if c.pool != nil {
		c.pool.Close()
	}
}

// Do issues the request and retries on retryable statuses (429, 500, 502,
// 503, 504) and transport-level errors, rotating the proxy and rebuilding
// the transport between attempts, up to cfg.MaxRetries retries. On
// exhaustion the error from the last attempt is surfaced; any non-retryable
// error propagates immediately.
//
// Spoofed headers are applied after caller-supplied ones, so fabricated
// values win for overlapping keys.
func (c *Client) Do(ctx context.Context, method, rawURL string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	log := c.logger.With(
		"request_id", uuid.New().String(),
		"method", method,
		"url", rawURL)

	merged := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		merged[k] = v
	}
	for k, v := range c.gen.Headers() {
		merged[k] = v
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		httpc, err := c.ensureHTTPClient(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(opts.Body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range merged {
			req.Header.Set(k, v)
		}

		resp, err := httpc.Do(req)
		switch {
		case err == nil && !retryStatusCodes[resp.StatusCode]:
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				return nil, fmt.Errorf("read of response body failed: %w", readErr)
			}
			log.Debug("request succeeded",
				"status", resp.StatusCode,
				"attempts", attempt+1)
			return &Result{Response: resp, Body: body, Attempts: attempt + 1}, nil

		case err == nil:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: rawURL}

		case isRetryable(err):
			lastErr = err

		default:
			return nil, err
		}

		log.Warn("request failed",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"error", lastErr)

		if attempt >= c.cfg.MaxRetries {
			log.Error("max retries reached", "error", lastErr)
			return nil, lastErr
		}

		c.rotate(ctx)
	}
}

// ensureHTTPClient lazily builds the transport on first use.
func (c *Client) ensureHTTPClient(ctx context.Context) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		return c.httpClient, nil
	}
	httpc, proxyAddr, err := c.buildHTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	c.httpClient = httpc
	c.currentProxy = proxyAddr
	return httpc, nil
}

// rotate discards the current transport and builds a fresh one bound to the
// pool's next address.
func (c *Client) rotate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
	httpc, proxyAddr, err := c.buildHTTPClient(ctx)
	if err != nil {
		// Leave the client unset; the next attempt surfaces the error.
		c.logger.Warn("failed to rebuild transport", "error", err)
		return
	}
	c.httpClient = httpc
	c.currentProxy = proxyAddr
}
