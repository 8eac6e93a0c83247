// Package httpclient is the outbound HTTP client shared by the eBird and vision clients.
// It applies a default timeout when the caller's context has none, sets default headers
// and logs every exchange at debug level.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/birdlens/birdlens/internal/logger"
)

// DefaultTimeout applies when the request context has no deadline.
const DefaultTimeout = 30 * time.Second

const defaultUserAgent = "birdlens"

// Config configures New. Zero values select defaults.
type Config struct {
	DefaultTimeout time.Duration
	UserAgent      string
	// Headers are set on every request that does not already carry them.
	Headers map[string]string
	// Transport replaces the pooled transport, mainly for tests.
	Transport http.RoundTripper
	Logger    logger.Logger
}

// Client is safe for concurrent use.
type Client struct {
	http           *http.Client
	defaultTimeout time.Duration
	userAgent      string
	headers        http.Header
	log            logger.Logger
}

// New returns a client for cfg, which may be nil. cfg is not modified.
func New(cfg *Config) *Client {
	var c Config
	if cfg != nil {
		c = *cfg
	}

	client := &Client{
		defaultTimeout: c.DefaultTimeout,
		userAgent:      c.UserAgent,
		headers:        make(http.Header, len(c.Headers)),
		log:            c.Logger,
	}
	if client.defaultTimeout == 0 {
		client.defaultTimeout = DefaultTimeout
	}
	if client.userAgent == "" {
		client.userAgent = defaultUserAgent
	}
	if client.log == nil {
		client.log = logger.Global().Module("httpclient")
	}
	for k, v := range c.Headers {
		client.headers.Set(k, v)
	}

	transport := c.Transport
	if transport == nil {
		transport = pooledTransport()
	}
	client.http = &http.Client{Transport: transport}
	return client
}

func pooledTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
}

// Do sends req under ctx. When ctx has no deadline the default timeout applies until
// the response body is closed, so the caller must close it whenever err is nil.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok && c.defaultTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
	}
	req = req.WithContext(ctx)

	for key, values := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header[key] = values
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		cancel()
		c.log.Debug("upstream request failed",
			logger.String("method", req.Method),
			logger.String("host", req.URL.Host),
			logger.String("path", req.URL.Path),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return nil, err
	}

	c.log.Debug("upstream request",
		logger.String("method", req.Method),
		logger.String("host", req.URL.Host),
		logger.String("path", req.URL.Path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", elapsed))
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// Get sends a GET request with optional extra headers.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, url, headers, nil)
}

// PostJSON sends body encoded as JSON with optional extra headers.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	return c.send(ctx, http.MethodPost, url, headers, data)
}

func (c *Client) send(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(ctx, req)
}

// Close closes idle pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
