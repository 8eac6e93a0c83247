package ebird

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/httpclient"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/species"
)

const (
	apiTokenHeader     = "X-eBirdApiToken"
	responsePreviewLen = 500
	retryBaseDelay     = 500 * time.Millisecond
)

// Client fetches species lists and the taxonomy from the eBird API.
type Client struct {
	config     Config
	httpClient *httpclient.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	log        logger.Logger
	retryDelay time.Duration
	authLogged sync.Once
	stats      clientStats
}

type clientStats struct {
	calls, hits, misses, failures atomic.Int64
	busyNanos                     atomic.Int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The client must send the API token itself.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient validates config, fills unset fields from DefaultConfig and returns a client.
func NewClient(config Config, opts ...Option) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("eBird API key is required").
			Category(errors.CategoryConfiguration).
			Component("ebird").
			Build()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}

	client := &Client{
		config:     config,
		cache:      cache.New(config.CacheTTL, config.CacheTTL*2),
		limiter:    rate.NewLimiter(rate.Every(time.Duration(config.RateLimitMS)*time.Millisecond), 1),
		retryDelay: retryBaseDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.log == nil {
		client.log = logger.Global().Module("ebird")
	}
	if client.httpClient == nil {
		client.httpClient = httpclient.New(&httpclient.Config{
			DefaultTimeout: config.Timeout,
			Headers:        AuthHeaders(config.APIKey),
			Logger:         client.log,
		})
	}

	client.log.Info("eBird client initialized",
		logger.String("base_url", config.BaseURL),
		logger.Duration("cache_ttl", config.CacheTTL),
		logger.Int("rate_limit_ms", config.RateLimitMS),
		logger.Int("max_retries", config.MaxRetries))

	return client, nil
}

// AuthHeaders returns the headers every eBird request carries.
func AuthHeaders(apiKey string) map[string]string {
	return map[string]string{
		apiTokenHeader: apiKey,
		"Accept":       "application/json",
	}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.log.Info("Closing eBird client")
	c.httpClient.Close()
}

// FetchRegistry resolves regionCode into the species known to occur there.
// The species codes for the region are fetched first and the global taxonomy is then
// filtered down to those codes, keeping taxonomic order. A region with no codes yields an
// empty registry without consulting the taxonomy. Every failure carries CategoryRegistry
// and a "stage" context naming the step that failed.
func (c *Client) FetchRegistry(ctx context.Context, regionCode string) ([]species.RegistryEntry, error) {
	start := time.Now()
	log := c.log.WithContext(ctx).With(logger.String("region", regionCode))

	codes, err := c.GetRegionSpecies(ctx, regionCode)
	if err != nil {
		return nil, registryError(err, StageSpeciesList, regionCode)
	}
	if len(codes) == 0 {
		log.Info("region has no recorded species")
		return []species.RegistryEntry{}, nil
	}

	taxonomy, err := c.GetTaxonomy(ctx, "")
	if err != nil {
		return nil, registryError(err, StageTaxonomy, regionCode)
	}

	wanted := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		wanted[code] = struct{}{}
	}

	registry := make([]species.RegistryEntry, 0, len(codes))
	for i := range taxonomy {
		if _, ok := wanted[taxonomy[i].SpeciesCode]; ok {
			registry = append(registry, taxonomy[i].RegistryEntry())
		}
	}

	log.Debug("regional registry resolved",
		logger.Int("species_codes", len(codes)),
		logger.Int("entries", len(registry)),
		logger.Duration("elapsed", time.Since(start)))

	return registry, nil
}

func registryError(err error, stage, regionCode string) error {
	return errors.New(err).
		Component("ebird").
		Category(errors.CategoryRegistry).
		Context("operation", "fetch_registry").
		Context("stage", stage).
		Context("region", regionCode).
		Build()
}

// GetRegionSpecies returns the species codes recorded in regionCode.
func (c *Client) GetRegionSpecies(ctx context.Context, regionCode string) ([]string, error) {
	if strings.TrimSpace(regionCode) == "" {
		return nil, errors.Newf("region code is required").
			Category(errors.CategoryValidation).
			Component("ebird").
			Build()
	}

	reqURL := fmt.Sprintf("%s/product/spplist/%s", c.config.BaseURL, url.PathEscape(regionCode))

	var codes []string
	if err := c.doRequestWithRetry(ctx, reqURL, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// GetTaxonomy retrieves the complete eBird taxonomy, optionally localized.
// Results are memoized for the configured cache TTL.
func (c *Client) GetTaxonomy(ctx context.Context, locale string) ([]TaxonomyEntry, error) {
	cacheKey := fmt.Sprintf("taxonomy:%s", locale)

	if cached, found := c.cache.Get(cacheKey); found {
		if taxonomy, ok := cached.([]TaxonomyEntry); ok {
			c.stats.hits.Add(1)
			c.log.Debug("eBird taxonomy cache hit",
				logger.String("cache_key", cacheKey),
				logger.Int("entries", len(taxonomy)))
			return taxonomy, nil
		}
	}

	c.stats.misses.Add(1)

	// eBird defaults to CSV
	reqURL := fmt.Sprintf("%s/ref/taxonomy/ebird?fmt=json", c.config.BaseURL)
	if locale != "" {
		reqURL = fmt.Sprintf("%s&locale=%s", reqURL, url.QueryEscape(locale))
	}

	var taxonomy []TaxonomyEntry
	if err := c.doRequestWithRetry(ctx, reqURL, &taxonomy); err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, taxonomy, cache.DefaultExpiration)

	c.log.Debug("eBird taxonomy cached",
		logger.String("cache_key", cacheKey),
		logger.Int("entries", len(taxonomy)))

	return taxonomy, nil
}

// doRequest performs a rate limited GET and decodes the JSON body into result
func (c *Client) doRequest(ctx context.Context, reqURL string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.New(err).
			Category(errors.CategoryCancellation).
			Context("operation", "rate_limiter_wait").
			Context("url", reqURL).
			Component("ebird").
			Build()
	}

	start := time.Now()
	c.stats.calls.Add(1)

	resp, err := c.httpClient.Get(ctx, reqURL, nil)
	if err != nil {
		c.countError()
		c.log.Error("eBird API request failed",
			logger.Error(err),
			logger.String("url", reqURL))
		return errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", reqURL).
			Component("ebird").
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countError()
		return errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", reqURL).
			Context("status_code", resp.StatusCode).
			Component("ebird").
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.countError()
		return c.statusError(resp.StatusCode, reqURL, bodyBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "application/json") {
		c.countError()
		c.log.Error("eBird API returned non-JSON response",
			logger.Int("status_code", resp.StatusCode),
			logger.String("content_type", contentType),
			logger.String("url", reqURL),
			logger.String("response_preview", preview(bodyBytes)))
		return errors.Newf("eBird API returned non-JSON response (Content-Type: %s)", contentType).
			Category(errors.CategoryFileParsing).
			Context("status_code", resp.StatusCode).
			Context("content_type", contentType).
			Context("url", reqURL).
			Component("ebird").
			Build()
	}

	if strings.TrimSpace(string(bodyBytes)) == "" {
		c.countError()
		return errors.Newf("eBird API returned an empty body").
			Category(errors.CategoryFileParsing).
			Context("status_code", resp.StatusCode).
			Context("url", reqURL).
			Component("ebird").
			Build()
	}

	if err := json.Unmarshal(bodyBytes, result); err != nil {
		c.countError()
		c.log.Error("Failed to parse eBird API response",
			logger.Error(err),
			logger.String("url", reqURL),
			logger.Int("response_size", len(bodyBytes)),
			logger.String("response_preview", preview(bodyBytes)))
		return errors.Newf("failed to parse response: %w", err).
			Category(errors.CategoryFileParsing).
			Context("url", reqURL).
			Context("response_size", len(bodyBytes)).
			Component("ebird").
			Build()
	}

	duration := time.Since(start)
	c.stats.busyNanos.Add(int64(duration))

	c.authLogged.Do(func() {
		c.log.Info("eBird API authentication successful",
			logger.String("first_successful_request", reqURL))
	})
	c.log.Debug("eBird API request successful",
		logger.String("url", reqURL),
		logger.Int("response_size", len(bodyBytes)),
		logger.Duration("elapsed", duration))
	return nil
}

func (c *Client) statusError(status int, reqURL string, body []byte) error {
	detail := preview(body)
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Detail != "" {
		detail = apiErr.Detail
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.log.Error("eBird API authentication failed",
			logger.Int("status_code", status),
			logger.String("url", reqURL),
			logger.String("message", "Check your eBird API key in the configuration"))
	} else {
		c.log.Warn("eBird API error response",
			logger.Int("status_code", status),
			logger.String("url", reqURL),
			logger.String("detail", detail))
	}

	return errors.Newf("eBird API error (status %d): %s", status, detail).
		Category(statusCategory(status)).
		Context("status_code", status).
		Context("error_title", apiErr.Title).
		Context("url", reqURL).
		Component("ebird").
		Build()
}

func (c *Client) countError() { c.stats.failures.Add(1) }

// doRequestWithRetry retries transient failures with linear backoff.
func (c *Client) doRequestWithRetry(ctx context.Context, reqURL string, result any) error {
	maxRetries := c.config.MaxRetries
	var lastErr error

	for attempt := range maxRetries {
		err := c.doRequest(ctx, reqURL, result)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		if ctx.Err() != nil {
			return lastErr
		}

		if attempt < maxRetries-1 {
			delay := time.Duration(attempt+1) * c.retryDelay
			c.log.Warn("eBird API request failed, retrying",
				logger.Int("attempt", attempt+1),
				logger.Int("max_retries", maxRetries),
				logger.Duration("delay", delay),
				logger.String("url", reqURL),
				logger.Error(err))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastErr
			}
		}
	}

	return lastErr
}

// retryable reports whether err is worth another attempt. Client errors other than 429,
// configuration errors and malformed payloads are final.
func retryable(err error) bool {
	var enhancedErr *errors.EnhancedError
	if !errors.As(err, &enhancedErr) {
		return true
	}
	switch enhancedErr.Category {
	case errors.CategoryConfiguration, errors.CategoryNotFound, errors.CategoryValidation,
		errors.CategoryFileParsing, errors.CategoryCancellation:
		return false
	}
	if statusCode, ok := enhancedErr.Context["status_code"].(int); ok {
		if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
			return false
		}
	}
	return true
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > responsePreviewLen {
		s = s[:responsePreviewLen] + "..."
	}
	return s
}

// ClearCache drops the memoized taxonomy.
func (c *Client) ClearCache() {
	c.cache.Flush()
	c.log.Info("eBird cache cleared")
}

// CacheItemCount returns the number of memoized responses.
func (c *Client) CacheItemCount() int {
	return c.cache.ItemCount()
}

// Metrics is a snapshot of the client's request and cache counters.
type Metrics struct {
	APICalls      int64         `json:"api_calls"`
	CacheHits     int64         `json:"cache_hits"`
	CacheMisses   int64         `json:"cache_misses"`
	APIErrors     int64         `json:"api_errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// GetMetrics snapshots the counters. TotalDuration covers successful requests only.
func (c *Client) GetMetrics() Metrics {
	m := Metrics{
		APICalls:      c.stats.calls.Load(),
		CacheHits:     c.stats.hits.Load(),
		CacheMisses:   c.stats.misses.Load(),
		APIErrors:     c.stats.failures.Load(),
		TotalDuration: time.Duration(c.stats.busyNanos.Load()),
	}
	if m.APICalls > 0 {
		m.AvgDuration = m.TotalDuration / time.Duration(m.APICalls)
	}
	return m
}

// statusCategory maps an HTTP status to an error category.
func statusCategory(status int) errors.ErrorCategory {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CategoryConfiguration
	case http.StatusTooManyRequests:
		return errors.CategoryLimit
	case http.StatusNotFound:
		return errors.CategoryNotFound
	default:
		return errors.CategoryHTTP
	}
}
