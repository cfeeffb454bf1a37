// Package client provides the Loyverse HTTP client with rate limit handling,
// retries and error classification.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/loyverse-proxy/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Loyverse client operations.
var (
	loyverseRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyverse_requests_total",
		Help: "Total Loyverse requests by endpoint and status",
	}, []string{"endpoint", "status"})

	loyverseRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loyverse_request_duration_seconds",
		Help:    "Loyverse request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	loyverseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyverse_errors_total",
		Help: "Total Loyverse errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

const (
	// DefaultBaseURL is the public Loyverse API root.
	DefaultBaseURL = "https://api.loyverse.com/v1.0"

	// MaxPageLimit is the largest page size Loyverse accepts.
	MaxPageLimit = 250

	// maxErrorBody bounds how much of an error body is kept for logs.
	maxErrorBody = 4 * 1024
)

// Client is the Loyverse API client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, without trailing slash.
	BaseURL string

	// Token is the Loyverse access token sent as bearer credential.
	Token string

	// UserAgent header sent with every request.
	UserAgent string

	// PageLimit is the page size requested from list endpoints.
	PageLimit int

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Retry policy for 429 answers.
	Retry RetryConfig

	// RateLimiter shares cooldowns between requests; optional.
	RateLimiter *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(token string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Token:     token,
		UserAgent: "loyverse-proxy/0.1.0",
		PageLimit: MaxPageLimit,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new Loyverse client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("loyverse token is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.PageLimit <= 0 || cfg.PageLimit > MaxPageLimit {
		return nil, fmt.Errorf("page_limit must be in 1..%d (got %d)", MaxPageLimit, cfg.PageLimit)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "loyverse-client").Logger()

	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewTracker(ratelimit.NewMemoryStore(), logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rateLimiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// ListItems fetches one page of the items endpoint. An empty cursor starts
// at the beginning.
func (c *Client) ListItems(ctx context.Context, cursor string) (*ItemPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.config.PageLimit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var page ItemPage
	if err := c.getJSON(ctx, "items", "/items", query, &page); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return &page, nil
}

// GetItem fetches a single item. Returns ErrNotFound for unknown ids.
func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	if id == "" {
		return nil, fmt.Errorf("item id is required")
	}

	var item Item
	err := c.getJSON(ctx, "items/{id}", "/items/"+url.PathEscape(id), nil, &item)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

// ListInventory fetches one page of inventory levels for the given variants.
func (c *Client) ListInventory(ctx context.Context, variantIDs []string, cursor string) (*InventoryPage, error) {
	query := url.Values{}
	query.Set("variant_ids", strings.Join(variantIDs, ","))
	query.Set("limit", strconv.Itoa(c.config.PageLimit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var page InventoryPage
	if err := c.getJSON(ctx, "inventory", "/inventory", query, &page); err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return &page, nil
}

// getJSON performs a GET with cooldown gating, retry on 429 and JSON decoding.
// label is the low-cardinality endpoint name used in metrics.
func (c *Client) getJSON(ctx context.Context, label, path string, query url.Values, out any) error {
	startTime := time.Now()
	defer func() {
		loyverseRequestDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	target := c.config.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	return retryWithBackoff(ctx, c.config.Retry, func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.config.UserAgent)

		c.logger.Debug().
			Str("endpoint", label).
			Str("url", req.URL.Path).
			Msg("Executing Loyverse request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				loyverseRequestsTotal.WithLabelValues(label, "cancelled").Inc()
				return fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
			}
			loyverseErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			loyverseRequestsTotal.WithLabelValues(label, "network_error").Inc()
			c.logger.Error().Err(err).Str("endpoint", label).Msg("HTTP request failed")
			return &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		loyverseRequestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= http.StatusMultipleChoices {
			return c.handleErrorResponse(ctx, label, resp)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", label, err)
		}
		return nil
	})
}

// handleErrorResponse turns a non-2xx answer into an APIError.
func (c *Client) handleErrorResponse(ctx context.Context, label string, resp *http.Response) error {
	errClass := c.classifyError(resp)
	loyverseErrorsTotal.WithLabelValues(string(errClass)).Inc()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if errClass == ErrorClassRateLimit {
		if err := c.rateLimiter.RecordThrottle(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record throttle")
		}
	}

	c.logger.Warn().
		Str("endpoint", label).
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Str("body", strings.TrimSpace(string(body))).
		Msg("Loyverse request error")

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    resp.Status,
	}
	if resp.StatusCode == http.StatusNotFound {
		apiErr.Err = ErrNotFound
	}
	return apiErr
}

// classifyError categorizes a response for observability and handling.
func (c *Client) classifyError(resp *http.Response) ErrorClass {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		// 3xx without redirect following is unexpected for this API
		return ErrorClassClient
	}
}

// PageLimit returns the configured upstream page size.
func (c *Client) PageLimit() int {
	return c.config.PageLimit
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
