// Package marketdata provides the Finnhub market-data client used by the
// chat tools and the screener.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"

	apperrors "quantb/internal/errors"
	"quantb/internal/logging"
	"quantb/internal/resilience"
	"quantb/pkg/utils"
)

const providerName = "finnhub"

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	QuoteTTL     time.Duration
	ProfileTTL   time.Duration
	MaxRetries   int
	NewsDaysBack int
}

// Client handles API communication with Finnhub.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *ristretto.Cache
	breaker    *resilience.CircuitBreaker
	retry      utils.RetryConfig
	quoteTTL   time.Duration
	profileTTL time.Duration
	newsDays   int
	logger     zerolog.Logger
}

// NewClient creates a Finnhub client with a response cache and a circuit
// breaker in front of the API.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finnhub.io/api/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.NewsDaysBack <= 0 {
		cfg.NewsDaysBack = 7
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 22,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating market data cache: %w", err)
	}

	retry := utils.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.ShouldRetry = apperrors.IsRetryable

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	// Unknown symbols and bad input are the caller's problem, not the provider's.
	breakerCfg.IsFailure = func(err error) bool {
		return !apperrors.Is(err, apperrors.ErrSymbolNotFound) &&
			!apperrors.Is(err, apperrors.ErrInputValidation) &&
			!apperrors.Is(err, context.Canceled)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:      cache,
		breaker:    resilience.NewCircuitBreaker(providerName, breakerCfg),
		retry:      retry,
		quoteTTL:   cfg.QuoteTTL,
		profileTTL: cfg.ProfileTTL,
		newsDays:   cfg.NewsDaysBack,
		logger:     logger.With().Str("component", "marketdata").Logger(),
	}, nil
}

// Close releases the cache.
func (c *Client) Close() {
	c.cache.Close()
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// get performs a GET against path and decodes the JSON body into out.
// Rate-limit and timeout failures are retried; everything passes through
// the circuit breaker.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	if c.apiKey == "" {
		return &apperrors.ProviderError{Provider: providerName, Op: op, Kind: apperrors.ErrNotConfigured}
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)
	fullURL := c.baseURL + path + "?" + params.Encode()

	return c.breaker.Do(ctx, func(ctx context.Context) error {
		return utils.Retry(ctx, c.retry, func() error {
			return c.doGet(ctx, op, fullURL, out)
		})
	})
}

func (c *Client) doGet(ctx context.Context, op, fullURL string, out any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		perr := apperrors.NewProviderError(providerName, op, 0, fmt.Errorf("request failed: %s", logging.Redact(err.Error())))
		perr.Kind = apperrors.ErrUpstream
		if isTimeout(err) {
			perr.Kind = apperrors.ErrTimeout
		}
		c.logCall(fullURL, start, perr)
		return perr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		perr := apperrors.NewProviderError(providerName, op, resp.StatusCode,
			fmt.Errorf("%s", strings.TrimSpace(string(body))))
		c.logCall(fullURL, start, perr)
		return perr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		perr := apperrors.NewProviderError(providerName, op, 0, fmt.Errorf("failed to decode response: %w", err))
		perr.Kind = apperrors.ErrUpstream
		c.logCall(fullURL, start, perr)
		return perr
	}

	c.logCall(fullURL, start, nil)
	return nil
}

func (c *Client) logCall(fullURL string, start time.Time, err error) {
	logging.LogAPICall(c.logger, http.MethodGet, fullURL, time.Since(start), err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// cached returns a cached value for key or loads and stores it for ttl.
func cached[T any](c *Client, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if ttl > 0 {
		if v, ok := c.cache.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if ttl > 0 {
		c.cache.SetWithTTL(key, v, 1, ttl)
	}
	return v, nil
}
