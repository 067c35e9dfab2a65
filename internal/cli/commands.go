package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/store"
	"stockwatch/pkg/utils"
)

func newRefreshCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one explore cache refresh and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			refresher, err := app.Refresher(cmd.Context())
			if err != nil {
				return err
			}
			result, err := refresher.RunOnce(cmd.Context())
			if output.IsJSON() {
				if jerr := output.JSON(result); jerr != nil {
					return jerr
				}
				return err
			}
			if err != nil {
				output.Error("Refresh failed: %v", err)
				return err
			}

			output.Success("Refresh complete")
			output.Printf("  Universe:  %d symbols\n", result.Universe)
			output.Printf("  Requested: %d\n", result.Requested)
			output.Printf("  Written:   %d\n", result.Written)
			if result.Skipped > 0 {
				output.Warning("  Skipped:   %d (no price data)", result.Skipped)
			}
			output.Dim("  Took %s", result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newExploreCmd(app *App) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Show a page of the explore cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			st, err := app.Store()
			if err != nil {
				return err
			}
			limit, offset = store.ClampPage(limit, offset)
			total, quotes, err := st.PageQuotes(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"items":  quotes,
					"total":  total,
					"limit":  limit,
					"offset": offset,
				})
			}

			now := time.Now()
			session := utils.GetMarketSession(now)
			output.Bold("Explore (%d-%d of %d)", min(offset+1, total), offset+len(quotes), total)
			if utils.IsMarketOpen(now) {
				output.Info("Market %s", session)
			} else {
				output.Dim("Market %s, next open %s", session, utils.GetNextMarketOpen(now).Format("Mon Jan 2 15:04 MST"))
			}
			output.Println()

			if len(quotes) == 0 {
				output.Dim("No cached quotes. Run 'stockwatch refresh' first.")
				return nil
			}

			table := NewTable(output, "Symbol", "Name", "Price", "Change", "%", "Refreshed")
			for _, q := range quotes {
				table.AddRow(
					q.Symbol,
					utils.TruncateString(q.DisplayName, 32),
					utils.FormatNullUSD(q.LastPrice),
					output.Signed(q.AbsoluteChange.Float64, utils.FormatNullChange(q.AbsoluteChange)),
					output.Signed(q.PercentChange.Float64, utils.FormatNullPercent(q.PercentChange)),
					output.DimText(q.RefreshedAt.Local().Format("15:04:05")),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "rows per page (max 500)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newFavoritesCmd(app *App) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"pinned", "fav"},
		Short:   "Manage pinned symbols",
	}
	cmd.PersistentFlags().StringVar(&user, "user", "", "user id (default: server.default_user)")

	userID := func() string {
		if user != "" {
			return user
		}
		return app.Config.Server.DefaultUser
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pinned symbols with live prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.Favorites()
			if err != nil {
				return err
			}
			records, err := svc.List(cmd.Context(), userID())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No pinned symbols for %s", userID())
				return nil
			}
			renderFavorites(output, records)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add SYMBOL",
		Short: "Pin a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.Favorites()
			if err != nil {
				return err
			}
			fav, err := svc.Add(cmd.Context(), userID(), args[0])
			if err != nil {
				if errors.IsAlreadyExists(err) {
					output.Warning("%s is already pinned", strings.ToUpper(args[0]))
					return nil
				}
				return err
			}
			if output.IsJSON() {
				return output.JSON(fav)
			}
			output.Success("Pinned %s (%s)", fav.Symbol, fav.DisplayName)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove SYMBOL",
		Short: "Unpin a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.Favorites()
			if err != nil {
				return err
			}
			if err := svc.Remove(cmd.Context(), userID(), args[0]); err != nil {
				return err
			}
			output.Success("Unpinned %s", strings.ToUpper(args[0]))
			return nil
		},
	})

	return cmd
}

func renderFavorites(output *Output, records []models.FavoriteQuote) {
	table := NewTable(output, "Symbol", "Name", "Price", "Change", "%", "Status")
	for _, r := range records {
		status := string(r.Status)
		if r.Status != models.QuoteStatusOK {
			status = output.red.Sprint(status)
		}
		table.AddRow(
			r.Symbol,
			utils.TruncateString(r.DisplayName, 32),
			utils.FormatNullUSD(r.CurrentPrice),
			output.Signed(r.CostChange.Float64, utils.FormatNullChange(r.CostChange)),
			output.Signed(r.PercentageChange.Float64, utils.FormatNullPercent(r.PercentageChange)),
			status,
		)
	}
	table.Render()

	for _, r := range records {
		if r.Error != "" {
			output.Dim("%s: %s", r.Symbol, r.Error)
		}
	}
}

func newNewsCmd(app *App) *cobra.Command {
	var (
		days     int
		category string
		summary  bool
	)

	cmd := &cobra.Command{
		Use:   "news [SYMBOL]",
		Short: "Show company or market news",
		Long: `Show recent news for a symbol, or general market news without one.

With --summary the articles are summarized by the configured language model.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			provider := app.News()
			if provider == nil {
				return errors.Wrap(errors.ErrNotConfigured, "news requires a Finnhub API key")
			}

			subject := "market"
			var (
				articles []models.Article
				err      error
			)
			if len(args) == 1 {
				subject = strings.ToUpper(strings.TrimSpace(args[0]))
				articles, err = provider.CompanyNews(ctx, subject, days)
			} else {
				if category == "" {
					category = app.Config.News.DefaultCategory
				}
				articles, err = provider.MarketNews(ctx, category)
			}
			if err != nil {
				return err
			}

			if summary {
				summarizer, err := app.Summarizer(ctx)
				if err != nil {
					return err
				}
				if summarizer == nil {
					return errors.Wrap(errors.ErrNotConfigured, "summaries require an LLM provider")
				}
				result, err := summarizer.Summarize(ctx, subject, articles)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(result)
				}
				renderSummary(output, result)
				return nil
			}

			if output.IsJSON() {
				return output.JSON(articles)
			}
			if len(articles) == 0 {
				output.Dim("No news for %s", subject)
				return nil
			}
			output.Bold("News: %s (%d articles)", subject, len(articles))
			output.Println()
			for _, a := range articles {
				output.Printf("%s  %s\n", output.DimText(a.PublishedAt.Local().Format("Jan 02 15:04")), a.Headline)
				output.Dim("    %s  %s", a.Source, a.URL)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "lookback window for company news")
	cmd.Flags().StringVar(&category, "category", "", "market news category (default: news.default_category)")
	cmd.Flags().BoolVar(&summary, "summary", false, "summarize the articles")
	return cmd
}

func renderSummary(output *Output, s *models.NewsSummary) {
	if s.Blocked {
		output.Warning("Summary withheld for %s", s.Subject)
		output.Println(s.Summary)
		return
	}

	sentiment := string(s.Sentiment)
	switch s.Sentiment {
	case models.SentimentPositive:
		sentiment = output.green.Sprint(sentiment)
	case models.SentimentNegative:
		sentiment = output.red.Sprint(sentiment)
	}

	output.Bold("Summary: %s", s.Subject)
	output.Printf("Sentiment: %s\n\n", sentiment)
	output.Println(s.Summary)
	output.Println()
	if len(s.Sources) > 0 {
		output.Dim("Sources: %s", strings.Join(s.Sources, ", "))
	}
	output.Dim("%s (%s)", s.Disclaimer, s.Model)
}
