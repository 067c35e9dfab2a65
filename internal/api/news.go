package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/security"
)

const marketSubject = "market"

func (s *Server) getCompanyNews(c *gin.Context) {
	articles, symbol, ok := s.companyArticles(c)
	if !ok {
		return
	}
	out := toArticleResponses(articles)
	c.JSON(http.StatusOK, NewsResponse{Subject: symbol, Articles: out, Count: len(out)})
}

func (s *Server) getMarketNews(c *gin.Context) {
	articles, ok := s.marketArticles(c)
	if !ok {
		return
	}
	out := toArticleResponses(articles)
	c.JSON(http.StatusOK, NewsResponse{Subject: marketSubject, Articles: out, Count: len(out)})
}

func (s *Server) getCompanySummary(c *gin.Context) {
	if !s.summarizerReady(c) {
		return
	}
	articles, symbol, ok := s.companyArticles(c)
	if !ok {
		return
	}
	s.summarize(c, symbol, articles)
}

func (s *Server) getMarketSummary(c *gin.Context) {
	if !s.summarizerReady(c) {
		return
	}
	articles, ok := s.marketArticles(c)
	if !ok {
		return
	}
	s.summarize(c, marketSubject, articles)
}

func (s *Server) summarize(c *gin.Context, subject string, articles []models.Article) {
	summary, err := s.deps.Summarizer.Summarize(c.Request.Context(), subject, articles)
	if err != nil {
		s.fail(c, err, "failed to summarize news")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) companyArticles(c *gin.Context) ([]models.Article, string, bool) {
	if !s.newsReady(c) {
		return nil, "", false
	}
	symbol, err := security.NormalizeSymbol(c.Param("ticker"))
	if err != nil {
		s.fail(c, err, "invalid ticker")
		return nil, "", false
	}
	days, err := queryInt(c, "days", s.cfg.NewsDays)
	if err != nil {
		s.fail(c, err, "invalid days")
		return nil, "", false
	}
	if days <= 0 || days > 365 {
		s.fail(c, errors.NewValidationError("days", days, "must be between 1 and 365"), "invalid days")
		return nil, "", false
	}

	articles, err := s.deps.News.CompanyNews(c.Request.Context(), symbol, days)
	if err != nil {
		s.fail(c, err, "failed to fetch company news")
		return nil, "", false
	}
	return articles, symbol, true
}

func (s *Server) marketArticles(c *gin.Context) ([]models.Article, bool) {
	if !s.newsReady(c) {
		return nil, false
	}
	articles, err := s.deps.News.MarketNews(c.Request.Context(), c.DefaultQuery("category", s.cfg.DefaultCategory))
	if err != nil {
		s.fail(c, err, "failed to fetch market news")
		return nil, false
	}
	return articles, true
}

func (s *Server) newsReady(c *gin.Context) bool {
	if s.deps.News == nil {
		s.fail(c, errors.Wrap(errors.ErrNotConfigured, "news provider"), "news provider not configured")
		return false
	}
	return true
}

func (s *Server) summarizerReady(c *gin.Context) bool {
	if s.deps.Summarizer == nil {
		s.fail(c, errors.Wrap(errors.ErrNotConfigured, "llm summarizer"), "summarizer not configured")
		return false
	}
	return true
}
