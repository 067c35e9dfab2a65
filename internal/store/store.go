// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"stockwatch/internal/models"
)

// QuoteOrder selects the ordering of explore cache pages.
type QuoteOrder string

const (
	OrderBySymbol QuoteOrder = "symbol"
	OrderByPrice  QuoteOrder = "price"
)

// Page bounds for explore cache reads.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// QuoteStore persists the explore cache.
type QuoteStore interface {
	// UpsertQuotes writes all quotes in one transaction and returns the number written.
	UpsertQuotes(ctx context.Context, quotes []models.CachedQuote) (int, error)
	// PageQuotes returns the total row count and one page of rows.
	PageQuotes(ctx context.Context, limit, offset int) (int, []models.CachedQuote, error)
	GetQuote(ctx context.Context, symbol string) (*models.CachedQuote, error)
}

// FavoriteStore persists per-user favorites.
type FavoriteStore interface {
	AddFavorite(ctx context.Context, fav models.Favorite) error
	RemoveFavorite(ctx context.Context, userID, symbol string) error
	ListFavorites(ctx context.Context, userID string) ([]models.Favorite, error)
}

// DataStore is the full persistence surface.
type DataStore interface {
	QuoteStore
	FavoriteStore

	Ping(ctx context.Context) error
	Close() error
}

// ClampPage normalizes a requested limit and offset.
func ClampPage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
