// Package favorites manages per-user pinned symbols and enriches them with
// live prices.
package favorites

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"

	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/market"
	"stockwatch/internal/models"
	"stockwatch/internal/security"
	"stockwatch/internal/store"
)

// NameResolver maps a symbol to a human-readable name.
type NameResolver interface {
	ResolveName(ctx context.Context, symbol string) (string, error)
}

// Service implements pin, unpin and list for any user.
type Service struct {
	store    store.FavoriteStore
	resolver NameResolver
	fetcher  market.PriceFetcher
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a favorites service.
func NewService(fs store.FavoriteStore, resolver NameResolver, fetcher market.PriceFetcher, logger zerolog.Logger) *Service {
	return &Service{
		store:    fs,
		resolver: resolver,
		fetcher:  fetcher,
		logger:   logger.With().Str("component", "favorites").Logger(),
		now:      time.Now,
	}
}

// Add pins symbol for userID. It returns ErrNotFound when the symbol has no
// resolvable name and ErrAlreadyExists when it is already pinned.
func (s *Service) Add(ctx context.Context, userID, symbol string) (*models.Favorite, error) {
	userID, symbol, err := normalize(userID, symbol)
	if err != nil {
		return nil, err
	}

	name, err := s.resolver.ResolveName(ctx, symbol)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("symbol %s: %w", symbol, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("resolving %s: %w", symbol, err)
	}

	fav := models.Favorite{
		UserID:      userID,
		Symbol:      symbol,
		DisplayName: name,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AddFavorite(ctx, fav); err != nil {
		return nil, err
	}

	logger := logging.WithUser(logging.FromContext(ctx, s.logger), userID)
	logger.Info().Str("symbol", symbol).Msg("Favorite added")
	return &fav, nil
}

// Remove unpins symbol for userID. It returns ErrNotFound when nothing was pinned.
func (s *Service) Remove(ctx context.Context, userID, symbol string) error {
	userID, symbol, err := normalize(userID, symbol)
	if err != nil {
		return err
	}
	if err := s.store.RemoveFavorite(ctx, userID, symbol); err != nil {
		return err
	}

	logger := logging.WithUser(logging.FromContext(ctx, s.logger), userID)
	logger.Info().Str("symbol", symbol).Msg("Favorite removed")
	return nil
}

// List returns the user's favorites with live prices from one batched fetch.
// A favorite without a price is still returned, marked unavailable.
func (s *Service) List(ctx context.Context, userID string) ([]models.FavoriteQuote, error) {
	userID, err := security.NormalizeUserID(userID)
	if err != nil {
		return nil, err
	}

	favs, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(favs) == 0 {
		return []models.FavoriteQuote{}, nil
	}

	symbols := make([]string, len(favs))
	for i, f := range favs {
		symbols[i] = f.Symbol
	}

	snapshots, fetchErr := s.fetcher.FetchCloses(ctx, symbols)
	if fetchErr != nil {
		logger := logging.WithUser(logging.FromContext(ctx, s.logger), userID)
		logger.Warn().Err(fetchErr).Int("symbols", len(symbols)).
			Msg("Live price lookup failed")
	}

	out := make([]models.FavoriteQuote, len(favs))
	for i, f := range favs {
		out[i] = enrich(f, snapshots, fetchErr)
	}
	return out, nil
}

func enrich(f models.Favorite, snapshots map[string]models.PriceSnapshot, fetchErr error) models.FavoriteQuote {
	fq := models.FavoriteQuote{Favorite: f, Status: models.QuoteStatusUnavailable}

	if fetchErr != nil {
		fq.Error = "price lookup failed: " + fetchErr.Error()
		return fq
	}
	snap, ok := snapshots[f.Symbol]
	if !ok {
		fq.Error = "no price data for " + f.Symbol
		return fq
	}
	change, ok := market.ComputeChange(snap.Last, snap.Previous)
	if !ok {
		fq.Error = "incomplete price data for " + f.Symbol
		return fq
	}

	fq.CurrentPrice = null.FloatFrom(change.Last)
	fq.CostChange = null.FloatFrom(change.Absolute)
	fq.PercentageChange = null.FloatFrom(change.Percent)
	fq.Status = models.QuoteStatusOK
	return fq
}

func normalize(userID, symbol string) (string, string, error) {
	userID, err := security.NormalizeUserID(userID)
	if err != nil {
		return "", "", err
	}
	symbol, err = security.NormalizeSymbol(symbol)
	if err != nil {
		return "", "", err
	}
	return userID, symbol, nil
}
