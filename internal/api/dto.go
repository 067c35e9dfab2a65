package api

import (
	"time"

	"github.com/guregu/null/v6"

	"stockwatch/internal/models"
)

// QuoteResponse is one explore cache row.
type QuoteResponse struct {
	Ticker           string     `json:"ticker"`
	Name             string     `json:"name"`
	CurrentPrice     null.Float `json:"currentPrice"`
	CostChange       null.Float `json:"costChange"`
	PercentageChange null.Float `json:"percentageChange"`
	RefreshedAt      string     `json:"refreshedAt"`
}

// ExploreResponse is one page of the explore cache.
type ExploreResponse struct {
	Items  []QuoteResponse `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// PinnedResponse is a favorite with its live price.
type PinnedResponse struct {
	Ticker           string     `json:"ticker"`
	Name             string     `json:"name"`
	CurrentPrice     null.Float `json:"currentPrice"`
	CostChange       null.Float `json:"costChange"`
	PercentageChange null.Float `json:"percentageChange"`
	Status           string     `json:"status"`
	Error            string     `json:"error,omitempty"`
	PinnedAt         string     `json:"pinnedAt"`
}

// PinRequest is the body of POST /pinned.
type PinRequest struct {
	Symbol string `json:"symbol"`
	Ticker string `json:"ticker"`
}

// BarResponse is one history point. Field names match the chart client.
type BarResponse struct {
	Date  string  `json:"Date"`
	Close float64 `json:"Close"`
}

// StockResponse is the price history of one symbol plus its cached quote.
type StockResponse struct {
	Ticker   string         `json:"ticker"`
	Period   string         `json:"period"`
	Interval string         `json:"interval"`
	History  []BarResponse  `json:"history"`
	Quote    *QuoteResponse `json:"quote"`
}

// ArticleResponse is one news article.
type ArticleResponse struct {
	ID          int64    `json:"id"`
	Headline    string   `json:"headline"`
	Summary     string   `json:"summary"`
	Source      string   `json:"source"`
	URL         string   `json:"url"`
	Image       string   `json:"image,omitempty"`
	PublishedAt string   `json:"publishedAt"`
	Symbols     []string `json:"symbols"`
}

// NewsResponse is a list of articles about a subject.
type NewsResponse struct {
	Subject  string            `json:"subject"`
	Articles []ArticleResponse `json:"articles"`
	Count    int               `json:"count"`
}

func toQuoteResponse(q models.CachedQuote) QuoteResponse {
	return QuoteResponse{
		Ticker:           q.Symbol,
		Name:             q.DisplayName,
		CurrentPrice:     q.LastPrice,
		CostChange:       q.AbsoluteChange,
		PercentageChange: q.PercentChange,
		RefreshedAt:      q.RefreshedAt.UTC().Format(time.RFC3339),
	}
}

func toPinnedResponse(f models.FavoriteQuote) PinnedResponse {
	return PinnedResponse{
		Ticker:           f.Symbol,
		Name:             f.DisplayName,
		CurrentPrice:     f.CurrentPrice,
		CostChange:       f.CostChange,
		PercentageChange: f.PercentageChange,
		Status:           string(f.Status),
		Error:            f.Error,
		PinnedAt:         f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toArticleResponses(articles []models.Article) []ArticleResponse {
	out := make([]ArticleResponse, 0, len(articles))
	for _, a := range articles {
		symbols := a.Symbols
		if symbols == nil {
			symbols = []string{}
		}
		out = append(out, ArticleResponse{
			ID:          a.ID,
			Headline:    a.Headline,
			Summary:     a.Summary,
			Source:      a.Source,
			URL:         a.URL,
			Image:       a.Image,
			PublishedAt: a.PublishedAt.UTC().Format(time.RFC3339),
			Symbols:     symbols,
		})
	}
	return out
}
