package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stockwatch/internal/errors"
	"stockwatch/internal/security"
	"stockwatch/internal/store"
)

// Defaults for /stock when the client sends no range.
const (
	defaultPeriod   = "1mo"
	defaultInterval = "1d"
)

func (s *Server) getExplore(c *gin.Context) {
	limit, err := queryInt(c, "limit", store.DefaultPageLimit)
	if err != nil {
		s.fail(c, err, "invalid limit")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.fail(c, err, "invalid offset")
		return
	}
	limit, offset = store.ClampPage(limit, offset)

	total, rows, err := s.deps.Quotes.PageQuotes(c.Request.Context(), limit, offset)
	if err != nil {
		s.fail(c, err, "failed to read explore cache")
		return
	}

	items := make([]QuoteResponse, 0, len(rows))
	for _, q := range rows {
		items = append(items, toQuoteResponse(q))
	}
	c.JSON(http.StatusOK, ExploreResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) getExploreStatus(c *gin.Context) {
	if s.deps.Refresher == nil {
		s.fail(c, errors.Wrap(errors.ErrNotConfigured, "explore refresher"), "refresher not running")
		return
	}
	c.JSON(http.StatusOK, s.deps.Refresher.Status())
}

func (s *Server) getStock(c *gin.Context) {
	ticker, err := security.NormalizeSymbol(c.Param("ticker"))
	if err != nil {
		s.fail(c, err, "invalid ticker")
		return
	}
	period := c.DefaultQuery("period", defaultPeriod)
	interval := c.DefaultQuery("interval", defaultInterval)

	bars, err := s.deps.History.History(c.Request.Context(), ticker, period, interval)
	if err != nil {
		s.fail(c, err, "failed to fetch price history")
		return
	}

	resp := StockResponse{
		Ticker:   ticker,
		Period:   period,
		Interval: interval,
		History:  make([]BarResponse, 0, len(bars)),
	}
	for _, b := range bars {
		resp.History = append(resp.History, BarResponse{Date: b.Date.UTC().Format(time.RFC3339), Close: b.Close})
	}

	q, err := s.deps.Quotes.GetQuote(c.Request.Context(), ticker)
	switch {
	case err == nil:
		qr := toQuoteResponse(*q)
		resp.Quote = &qr
	case !errors.IsNotFound(err):
		logger := requestLogger(c, s.logger)
		logger.Warn().Err(err).Str("symbol", ticker).Msg("Cached quote lookup failed")
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPinned(c *gin.Context) {
	favs, err := s.deps.Favorites.List(c.Request.Context(), s.userID(c))
	if err != nil {
		s.fail(c, err, "failed to list favorites")
		return
	}

	out := make([]PinnedResponse, 0, len(favs))
	for _, f := range favs {
		out = append(out, toPinnedResponse(f))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) postPinned(c *gin.Context) {
	var req PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.NewValidationError("body", nil, err.Error()), "invalid pin request")
		return
	}
	symbol := req.Symbol
	if symbol == "" {
		symbol = req.Ticker
	}

	fav, err := s.deps.Favorites.Add(c.Request.Context(), s.userID(c), symbol)
	if err != nil {
		s.fail(c, err, "failed to pin symbol")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ticker": fav.Symbol,
		"name":   fav.DisplayName,
	})
}

func (s *Server) deletePinned(c *gin.Context) {
	if err := s.deps.Favorites.Remove(c.Request.Context(), s.userID(c), c.Param("symbol")); err != nil {
		s.fail(c, err, "failed to unpin symbol")
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(key, raw, "must be an integer")
	}
	return v, nil
}
