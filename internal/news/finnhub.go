// Package news fetches company and market news and resolves company names.
package news

import (
	"context"
	"net/http"
	"strings"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"
	"github.com/rs/zerolog"

	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/resilience"
	"stockwatch/pkg/utils"
)

const providerFinnhub = "finnhub"

// Provider returns recent news articles.
type Provider interface {
	CompanyNews(ctx context.Context, symbol string, days int) ([]models.Article, error)
	MarketNews(ctx context.Context, category string) ([]models.Article, error)
}

// Config holds news client configuration.
type Config struct {
	APIKey          string
	LookbackDays    int
	DefaultCategory string
	MaxArticles     int
	Timeout         time.Duration
	// RateLimit is requests per minute; zero disables limiting.
	RateLimit int
}

// FinnhubClient implements Provider and name resolution on the Finnhub API.
type FinnhubClient struct {
	client  *finnhub.DefaultApiService
	cfg     Config
	breaker *resilience.CircuitBreaker
	limiter *utils.RateLimiter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewFinnhubClient creates a Finnhub client. A nil httpClient uses a client
// with the configured timeout.
func NewFinnhubClient(cfg Config, httpClient *http.Client, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *FinnhubClient {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = "general"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(providerFinnhub, resilience.DefaultCircuitBreakerConfig())
	}

	fcfg := finnhub.NewConfiguration()
	fcfg.AddDefaultHeader("X-Finnhub-Token", cfg.APIKey)
	fcfg.HTTPClient = httpClient

	c := &FinnhubClient{
		client:  finnhub.NewAPIClient(fcfg).DefaultApi,
		cfg:     cfg,
		breaker: breaker,
		logger:  logger.With().Str("provider", providerFinnhub).Logger(),
		now:     time.Now,
	}
	if cfg.RateLimit > 0 {
		c.limiter = utils.NewPerMinuteLimiter(cfg.RateLimit)
	}
	return c
}

// CompanyNews returns articles about a symbol from the last days days.
// Articles without a summary are dropped.
func (c *FinnhubClient) CompanyNews(ctx context.Context, symbol string, days int) ([]models.Article, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.NewValidationError("symbol", symbol, "symbol is required")
	}
	if days <= 0 {
		days = c.cfg.LookbackDays
	}

	to := c.now().UTC()
	from := to.AddDate(0, 0, -days)

	items, err := call(c, ctx, "company-news", func(ctx context.Context) ([]finnhub.CompanyNews, *http.Response, error) {
		return c.client.CompanyNews(ctx).
			Symbol(symbol).
			From(from.Format("2006-01-02")).
			To(to.Format("2006-01-02")).
			Execute()
	})
	if err != nil {
		return nil, err
	}

	articles := make([]models.Article, 0, len(items))
	for i := range items {
		if a, ok := toArticle(&items[i]); ok {
			articles = append(articles, a)
		}
	}
	return c.limit(articles), nil
}

// MarketNews returns general market articles for a category.
func (c *FinnhubClient) MarketNews(ctx context.Context, category string) ([]models.Article, error) {
	if category == "" {
		category = c.cfg.DefaultCategory
	}

	items, err := call(c, ctx, "news", func(ctx context.Context) ([]finnhub.MarketNews, *http.Response, error) {
		return c.client.MarketNews(ctx).Category(category).Execute()
	})
	if err != nil {
		return nil, err
	}

	articles := make([]models.Article, 0, len(items))
	for i := range items {
		if a, ok := toArticle(&items[i]); ok {
			articles = append(articles, a)
		}
	}
	return c.limit(articles), nil
}

// ResolveName returns the company name for a symbol or ErrNotFound.
func (c *FinnhubClient) ResolveName(ctx context.Context, symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	profile, err := call(c, ctx, "stock/profile2", func(ctx context.Context) (finnhub.CompanyProfile2, *http.Response, error) {
		return c.client.CompanyProfile2(ctx).Symbol(symbol).Execute()
	})
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(profile.GetName())
	if name == "" {
		return "", errors.Wrapf(errors.ErrNotFound, "symbol %s", symbol)
	}
	return name, nil
}

func (c *FinnhubClient) limit(articles []models.Article) []models.Article {
	if c.cfg.MaxArticles > 0 && len(articles) > c.cfg.MaxArticles {
		return articles[:c.cfg.MaxArticles]
	}
	return articles
}

// call runs a Finnhub request through the circuit breaker and maps failures
// to provider errors.
func call[T any](c *FinnhubClient, ctx context.Context, op string, fn func(context.Context) (T, *http.Response, error)) (T, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
	}
	return resilience.ExecuteWithResult(c.breaker, ctx, func(ctx context.Context) (T, error) {
		start := time.Now()
		v, resp, err := fn(ctx)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}

		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			err = errors.NewProviderError(providerFinnhub, op, status, err)
		}
		logging.LogAPICall(c.logger, providerFinnhub, op, time.Since(start), err)
		return v, err
	})
}

// newsItem is satisfied by both Finnhub news models.
type newsItem interface {
	GetId() int64
	GetHeadline() string
	GetSummary() string
	GetSource() string
	GetUrl() string
	GetImage() string
	GetDatetime() int64
	GetRelated() string
}

func toArticle(n newsItem) (models.Article, bool) {
	summary := strings.TrimSpace(n.GetSummary())
	if summary == "" {
		return models.Article{}, false
	}

	a := models.Article{
		ID:       n.GetId(),
		Headline: strings.TrimSpace(n.GetHeadline()),
		Summary:  summary,
		Source:   n.GetSource(),
		URL:      n.GetUrl(),
		Image:    n.GetImage(),
		Symbols:  []string{},
	}
	if ts := n.GetDatetime(); ts > 0 {
		a.PublishedAt = time.Unix(ts, 0).UTC()
	}
	if related := n.GetRelated(); related != "" {
		for _, s := range strings.Split(related, ",") {
			if s = strings.TrimSpace(s); s != "" {
				a.Symbols = append(a.Symbols, s)
			}
		}
	}
	return a, true
}
