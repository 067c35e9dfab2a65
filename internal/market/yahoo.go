package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/resilience"
	"stockwatch/pkg/utils"
)

const (
	providerYahoo   = "yahoo"
	maxResponseSize = 8 << 20
)

// YahooConfig holds Yahoo Finance client configuration.
type YahooConfig struct {
	BaseURL       string
	Timeout       time.Duration
	Lookback      string
	MaxBatch      int
	RetryAttempts int
}

// YahooClient implements Provider against the Yahoo Finance spark and chart endpoints.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
	lookback   string
	maxBatch   int
	breaker    *resilience.CircuitBreaker
	retry      utils.RetryConfig
	logger     zerolog.Logger
}

// NewYahooClient creates a new Yahoo Finance client.
func NewYahooClient(cfg YahooConfig, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *YahooClient {
	if cfg.Lookback == "" {
		cfg.Lookback = "5d"
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 250
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(providerYahoo, resilience.DefaultCircuitBreakerConfig())
	}

	retry := utils.DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.RetryAttempts
	}
	retry.Retryable = isRetryable

	return &YahooClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		lookback:   cfg.Lookback,
		maxBatch:   cfg.MaxBatch,
		breaker:    breaker,
		retry:      retry,
		logger:     logger.With().Str("provider", providerYahoo).Logger(),
	}
}

// FetchCloses returns the last two closes for each resolvable symbol.
// The batch is sent in a single request unless it exceeds the provider limit.
func (c *YahooClient) FetchCloses(ctx context.Context, symbols []string) (map[string]models.PriceSnapshot, error) {
	symbols = normalizeSymbols(symbols)
	out := make(map[string]models.PriceSnapshot, len(symbols))

	for start := 0; start < len(symbols); start += c.maxBatch {
		end := min(start+c.maxBatch, len(symbols))
		chunk := symbols[start:end]

		q := url.Values{}
		q.Set("symbols", strings.Join(chunk, ","))
		q.Set("range", c.lookback)
		q.Set("interval", "1d")

		body, err := c.get(ctx, "spark", "/v7/finance/spark", q)
		if err != nil {
			return nil, err
		}

		snaps, err := decodeSpark(body)
		if err != nil {
			return nil, errors.NewProviderError(providerYahoo, "spark", 0, err)
		}
		for sym, snap := range snaps {
			out[sym] = snap
		}
	}

	c.logger.Debug().
		Int("requested", len(symbols)).
		Int("resolved", len(out)).
		Msg("Fetched closes")

	return out, nil
}

// History returns the close series for a symbol, skipping bars without a close.
func (c *YahooClient) History(ctx context.Context, symbol, period, interval string) ([]models.PriceBar, error) {
	if !IsValidPeriod(period) {
		return nil, errors.NewValidationError("period", period, "unsupported period")
	}
	if !IsValidInterval(interval) {
		return nil, errors.NewValidationError("interval", interval, "unsupported interval")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.NewValidationError("symbol", symbol, "symbol is required")
	}

	q := url.Values{}
	q.Set("range", period)
	q.Set("interval", interval)

	body, err := c.get(ctx, "chart", "/v8/finance/chart/"+url.PathEscape(symbol), q)
	if err != nil {
		return nil, err
	}

	bars, err := decodeChart(body)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("symbol %s: %w", symbol, err)
		}
		return nil, errors.NewProviderError(providerYahoo, "chart", 0, err)
	}
	return bars, nil
}

// get performs a GET with retry inside the circuit breaker.
func (c *YahooClient) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	return resilience.ExecuteWithResult(c.breaker, ctx, func(ctx context.Context) ([]byte, error) {
		return utils.RetryWithResult(ctx, c.retry, func() ([]byte, error) {
			start := time.Now()
			body, err := c.doGet(ctx, op, path, query)
			logging.LogAPICall(c.logger, providerYahoo, op, time.Since(start), err)
			return body, err
		})
	})
}

func (c *YahooClient) doGet(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewProviderError(providerYahoo, op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.NewProviderError(providerYahoo, op, resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewProviderError(providerYahoo, op, resp.StatusCode, errors.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.NewProviderError(providerYahoo, op, resp.StatusCode, fmt.Errorf("%s", snippet(body)))
	}

	return body, nil
}

func isRetryable(err error) bool {
	var pe *errors.ProviderError
	if errors.As(err, &pe) && pe.Status != 0 {
		return pe.Status == http.StatusTooManyRequests || pe.Status >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}
