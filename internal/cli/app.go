package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stockwatch/internal/config"
	"stockwatch/internal/explore"
	"stockwatch/internal/favorites"
	"stockwatch/internal/llm"
	"stockwatch/internal/logging"
	"stockwatch/internal/market"
	"stockwatch/internal/news"
	"stockwatch/internal/resilience"
	"stockwatch/internal/store"
	"stockwatch/internal/universe"
)

const refreshLockKey = "stockwatch:explore:refresh-lock"

// App holds the application dependencies. Collaborators are built on first
// use so commands only open what they need.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Breakers *resilience.CircuitBreakerRegistry

	store  store.DataStore
	redis  *redis.Client
	market *market.YahooClient
	news   *news.FinnhubClient
}

func newApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		Breakers: resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig()),
	}
}

func loggerFromConfig(cfg *config.Config) zerolog.Logger {
	lc := logging.DefaultLogConfig()
	lc.Level = cfg.Log.Level
	lc.JSON = cfg.Log.JSON
	lc.File = cfg.Log.File
	if cfg.Log.FilePath != "" {
		lc.FilePath = cfg.Log.FilePath
	}
	return logging.NewLoggerWithConfig(lc)
}

// Store opens the configured database.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	db := a.Config.Database
	s, err := store.NewSQLStore(store.Config{
		Driver:          db.Driver,
		DSN:             db.DSN,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		Order:           store.QuoteOrder(a.Config.Explore.Sort),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", db.Driver, err)
	}
	a.Logger.Debug().Str("driver", db.Driver).Msg("Store initialized")
	a.store = s
	return s, nil
}

// Redis returns a connected client, or nil when Redis is not configured or
// unreachable.
func (a *App) Redis(ctx context.Context) *redis.Client {
	if a.redis != nil || a.Config.Redis.URL == "" {
		return a.redis
	}

	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Invalid redis url, continuing without Redis")
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.Logger.Warn().Err(err).Msg("Redis unreachable, continuing without Redis")
		client.Close()
		return nil
	}

	a.Logger.Debug().Str("addr", opts.Addr).Msg("Redis connected")
	a.redis = client
	return client
}

// Market returns the Yahoo price client.
func (a *App) Market() *market.YahooClient {
	if a.market == nil {
		m := a.Config.Market
		a.market = market.NewYahooClient(market.YahooConfig{
			BaseURL:       m.BaseURL,
			Timeout:       m.Timeout,
			Lookback:      m.Lookback,
			MaxBatch:      m.MaxBatch,
			RetryAttempts: m.RetryAttempts,
		}, a.Breakers.Get("yahoo"), a.Logger)
	}
	return a.market
}

// News returns the Finnhub client, or nil without an API key.
func (a *App) News() *news.FinnhubClient {
	if a.news == nil && a.Config.Credentials.Finnhub.APIKey != "" {
		n := a.Config.News
		a.news = news.NewFinnhubClient(news.Config{
			APIKey:          a.Config.Credentials.Finnhub.APIKey,
			LookbackDays:    n.LookbackDays,
			DefaultCategory: n.DefaultCategory,
			MaxArticles:     n.MaxArticles,
			RateLimit:       n.RateLimit,
		}, nil, a.Breakers.Get("finnhub"), a.Logger)
	}
	return a.news
}

// NameResolver prefers Finnhub profiles and falls back to the universe file,
// which is read per lookup.
func (a *App) NameResolver() favorites.NameResolver {
	if n := a.News(); n != nil {
		return n
	}
	a.Logger.Debug().Str("path", a.Config.Explore.UniverseFile).Msg("Resolving names from universe file")
	return universe.NameResolver{Path: a.Config.Explore.UniverseFile}
}

// Favorites builds the favorites service.
func (a *App) Favorites() (*favorites.Service, error) {
	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	return favorites.NewService(st, a.NameResolver(), a.Market(), a.Logger), nil
}

// Summarizer builds the guarded summarizer. It returns nil when no provider
// is configured.
func (a *App) Summarizer(ctx context.Context) (llm.Summarizer, error) {
	if !a.Config.LLMEnabled() {
		return nil, nil
	}

	c := a.Config.LLM
	completer, err := llm.NewCompleter(llm.ClientConfig{
		Provider:  c.Provider,
		APIKey:    a.Config.LLMAPIKey(),
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Timeout:   c.Timeout,
	})
	if err != nil {
		return nil, err
	}

	policy, err := llm.LoadPolicy(c.GuardrailFile)
	if err != nil {
		return nil, err
	}

	var cache llm.SummaryCache
	if rc := a.Redis(ctx); rc != nil {
		cache = llm.NewRedisCache(rc, c.CacheTTL)
	}

	a.Logger.Debug().Str("provider", c.Provider).Str("model", completer.Model()).Msg("Summarizer initialized")
	return llm.NewService(completer, llm.NewGuardrail(policy), cache, a.Breakers.Get("llm"), a.Logger), nil
}

// Refresher builds the explore cache refresher.
func (a *App) Refresher(ctx context.Context) (*explore.Refresher, error) {
	st, err := a.Store()
	if err != nil {
		return nil, err
	}

	e := a.Config.Explore
	opts := []explore.Option{
		explore.WithRand(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))),
	}
	if rc := a.Redis(ctx); rc != nil {
		opts = append(opts, explore.WithDistributedLock(explore.NewRedisLock(rc, refreshLockKey, e.LockTTL)))
	}

	return explore.New(explore.Config{
		UniverseFile: e.UniverseFile,
		Interval:     e.Interval,
		SampleCap:    e.SampleCap,
		RunTimeout:   e.RunTimeout,
	}, a.Market(), st, a.Logger, opts...), nil
}

// Close releases opened resources.
func (a *App) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close store")
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
