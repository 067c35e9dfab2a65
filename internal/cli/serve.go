package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"stockwatch/internal/api"
	"stockwatch/internal/resilience"
)

func newServeCmd(app *App) *cobra.Command {
	var noRefresh bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the explore refresher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, app, !noRefresh)
		},
	}

	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "serve the existing cache without refreshing it")
	return cmd
}

func serve(ctx context.Context, app *App, refresh bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := app.Logger
	cfg := app.Config

	st, err := app.Store()
	if err != nil {
		return err
	}
	favs, err := app.Favorites()
	if err != nil {
		return err
	}
	summarizer, err := app.Summarizer(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Summarizer unavailable, summary endpoints disabled")
		summarizer = nil
	}

	monitor := resilience.NewHealthMonitor(resilience.DefaultHealthMonitorConfig(), logger)
	monitor.RegisterComponent("database", resilience.PingHealthCheck("database", time.Second, st.Ping))
	monitor.RegisterComponent("circuits", app.Breakers.HealthCheck())
	if rc := app.Redis(ctx); rc != nil {
		monitor.RegisterComponent("redis", resilience.PingHealthCheck("redis", 500*time.Millisecond, func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}))
	}

	deps := api.Deps{
		Quotes:    st,
		Favorites: favs,
		History:   app.Market(),
		Health:    monitor,
	}
	if n := app.News(); n != nil {
		deps.News = n
	} else {
		logger.Warn().Msg("FINNHUB_API_KEY not set, news endpoints disabled")
	}
	deps.Summarizer = summarizer

	var wg conc.WaitGroup
	if refresh {
		refresher, err := app.Refresher(ctx)
		if err != nil {
			return err
		}
		deps.Refresher = refresher
		monitor.RegisterComponent("explore_refresher", refresher.HealthCheck())
		wg.Go(func() { refresher.Start(ctx) })
	}
	wg.Go(func() { monitor.Start(ctx) })

	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(api.Config{
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		DefaultUser:     cfg.Server.DefaultUser,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		NewsDays:        cfg.News.LookbackDays,
		DefaultCategory: cfg.News.DefaultCategory,
	}, deps, logger)

	err = server.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("HTTP server failed")
	}

	// A failed listener stops the background loops too.
	cancel()
	wg.Wait()
	logger.Info().Msg("Shutdown complete")
	return err
}
