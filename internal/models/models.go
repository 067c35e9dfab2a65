// Package models provides domain models for the stockwatch service.
package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// Ticker is one entry of the tradable universe.
type Ticker struct {
	Symbol string
	Name   string
}

// CachedQuote is one row of the explore cache.
// When LastPrice is valid, AbsoluteChange and PercentChange are valid too.
type CachedQuote struct {
	Symbol         string
	DisplayName    string
	LastPrice      null.Float
	AbsoluteChange null.Float
	PercentChange  null.Float
	RefreshedAt    time.Time
}

// PreviousClose returns the close the change figures were computed against.
func (q CachedQuote) PreviousClose() (float64, bool) {
	if !q.LastPrice.Valid || !q.AbsoluteChange.Valid {
		return 0, false
	}
	return q.LastPrice.Float64 - q.AbsoluteChange.Float64, true
}

// Favorite is a symbol pinned by a user.
type Favorite struct {
	UserID      string
	Symbol      string
	DisplayName string
	CreatedAt   time.Time
}

// QuoteStatus describes whether live data could be attached to a record.
type QuoteStatus string

const (
	QuoteStatusOK          QuoteStatus = "ok"
	QuoteStatusUnavailable QuoteStatus = "unavailable"
)

// FavoriteQuote is a favorite enriched with a live price.
type FavoriteQuote struct {
	Favorite
	CurrentPrice     null.Float
	CostChange       null.Float
	PercentageChange null.Float
	Status           QuoteStatus
	Error            string
}

// PriceSnapshot holds the two most recent closes of a symbol.
type PriceSnapshot struct {
	Symbol   string
	Last     float64
	Previous float64
}

// PriceBar is one point of a price history series.
type PriceBar struct {
	Date  time.Time
	Close float64
}

// Article is a news item from a news provider.
type Article struct {
	ID          int64
	Headline    string
	Summary     string
	Source      string
	URL         string
	Image       string
	PublishedAt time.Time
	Symbols     []string
}

// Sentiment is the overall tone of a news summary.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment normalizes a model-provided sentiment, defaulting to neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNegative:
		return Sentiment(s)
	}
	return SentimentNeutral
}

// NewsSummary is a guarded LLM summary of a set of articles.
type NewsSummary struct {
	Subject     string    `json:"subject"`
	Summary     string    `json:"summary"`
	Sentiment   Sentiment `json:"sentiment"`
	Sources     []string  `json:"sources"`
	Disclaimer  string    `json:"disclaimer"`
	Model       string    `json:"model"`
	Blocked     bool      `json:"blocked"`
	GeneratedAt time.Time `json:"generated_at"`
}
