// Package client provides the museum catalog HTTP client with request
// pacing, throttle tracking, response caching, retries and a typed error
// taxonomy.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/exhibit-client/pkg/cache"
	"github.com/Sternrassler/exhibit-client/pkg/logging"
	"github.com/Sternrassler/exhibit-client/pkg/ratelimit"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Sternrassler/exhibit-client/pkg/client"

// Prometheus metrics for catalog client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exhibit_catalog_requests_total",
		Help: "Total catalog requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exhibit_catalog_request_duration_seconds",
		Help:    "Catalog request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exhibit_catalog_errors_total",
		Help: "Total catalog errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exhibit_catalog_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exhibit_catalog_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exhibit_catalog_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// ErrorClass represents a classification of HTTP errors for retry and metrics.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client is the museum catalog client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	pacer      *ratelimit.Pacer
	throttle   *ratelimit.Tracker
	cache      *cache.Manager
	retry      retryPolicy
	config     Config
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the catalog API
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// Redis client for response caching and shared throttle state (optional)
	Redis *redis.Client

	// RequestsPerSecond paces outgoing requests (0 disables pacing)
	RequestsPerSecond int

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration

	// MaxBodyBytes caps how much of a response body is read
	MaxBodyBytes int64
}

// DefaultConfig returns the configuration for the public catalog.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		UserAgent:         userAgent,
		Redis:             redis,
		RequestsPerSecond: ratelimit.DefaultRequestsPerSecond,
		MaxRetries:        2,
		InitialBackoff:    DefaultRetryConfig().InitialBackoff,
		Timeout:           30 * time.Second,
		MaxBodyBytes:      32 << 20,
	}
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !baseURL.IsAbs() || baseURL.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %d)", cfg.RequestsPerSecond)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}

	logger := logging.NewLogger(logging.ComponentCatalogClient)

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: gzhttp.Transport(http.DefaultTransport),
		},
		baseURL:  baseURL,
		pacer:    ratelimit.NewPacer(cfg.RequestsPerSecond),
		throttle: ratelimit.NewTracker(cfg.Redis, logging.NewLogger(logging.ComponentRateLimit)),
		cache:    cacheManager,
		retry:    scaledRetryPolicy(cfg.MaxRetries, cfg.InitialBackoff),
		config:   cfg,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Do performs an HTTP request with pacing, throttling, caching and retries.
// Responses with a non-retryable status are returned to the caller unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	endpoint := c.endpointLabel(req.URL)

	ctx, span := c.tracer.Start(req.Context(), "catalog."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
		))
	defer span.End()
	req = req.WithContext(ctx)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Server-imposed throttling
	allowed, err := c.throttle.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Throttle check failed, continuing")
	} else if !allowed {
		requestsTotal.WithLabelValues(endpoint, "throttled").Inc()
		span.SetStatus(codes.Error, ErrRequestBlocked.Error())
		return nil, ErrRequestBlocked
	}

	// Step 2: Cache
	var cacheKey cache.CacheKey
	var cachedEntry *cache.CacheEntry
	if c.cache != nil && req.Method == http.MethodGet {
		cacheKey = cache.KeyForURL(req.URL)
		cachedEntry, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}

		if cachedEntry != nil && !cachedEntry.IsExpired() {
			requestsTotal.WithLabelValues(endpoint, "cached").Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cache.EntryToResponse(cachedEntry, req), nil
		}

		if cache.ShouldMakeConditionalRequest(cachedEntry) {
			cache.AddConditionalHeaders(req, cachedEntry)
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", cachedEntry.ETag).
				Msg("Making conditional request")
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	// Step 3: Execute with retries
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retry, func() (ErrorClass, error) {
		if err := c.pacer.Wait(ctx); err != nil {
			return ErrorClassNetwork, err
		}

		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			errClass := c.classifyError(nil, reqErr)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Debug().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return errClass, reqErr
		}

		if err := c.throttle.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record throttle state")
		}

		if resp.StatusCode == http.StatusNotModified {
			return "", nil
		}

		if resp.StatusCode >= 400 {
			errClass := c.classifyError(resp, nil)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

			c.logger.Debug().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Catalog request error")

			// A server-set Retry-After window is left to the throttle tracker
			if errClass == ErrorClassRateLimit {
				if wait, ok := ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok && wait > 0 {
					return "", nil
				}
			}

			if shouldRetry(errClass) {
				resp.Body.Close()
				return errClass, &StatusError{
					StatusCode: resp.StatusCode,
					ErrorClass: errClass,
					Message:    resp.Status,
				}
			}
			return "", nil
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return "", nil
	})

	if retryErr != nil {
		span.RecordError(retryErr)
		span.SetStatus(codes.Error, retryErr.Error())
		return nil, retryErr
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	// Step 4: 304 Not Modified revalidates the cached entry
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		resp.Body.Close()
		cache.ConditionalRequests.Inc()
		requestsTotal.WithLabelValues(endpoint, "304").Inc()

		updated, err := c.cache.UpdateTTL(ctx, cacheKey, cache.NotModifiedExpires(resp))
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			updated = cachedEntry
		}
		return cache.EntryToResponse(updated, req), nil
	}

	// Step 5: Store cacheable responses
	if c.cache != nil && cache.IsCacheable(resp) {
		entry, err := cache.ResponseToEntry(resp, c.config.MaxBodyBytes)
		if errors.Is(err, cache.ErrEntryTooLarge) {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Int64("limit", c.config.MaxBodyBytes).
				Msg("Response too large to cache")
		} else if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// classifyError categorizes an error for retries and observability.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// endpointLabel returns a low-cardinality metric label for a request URL.
func (c *Client) endpointLabel(u *url.URL) string {
	if u.Host != c.baseURL.Host {
		return "image"
	}
	rel := strings.TrimPrefix(u.Path, c.baseURL.Path)
	rel = strings.Trim(rel, "/")
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		rel = rel[:i]
	}
	if rel == "" {
		return "root"
	}
	return rel
}

// Get performs a GET request to a catalog endpoint relative to the base URL.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return c.GetURL(ctx, u.String())
}

// GetURL performs a GET request to an absolute URL.
func (c *Client) GetURL(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil when no Redis is configured.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// Throttle returns the throttle tracker.
func (c *Client) Throttle() *ratelimit.Tracker {
	return c.throttle
}
