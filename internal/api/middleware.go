package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
)

const (
	headerUserID    = "X-User-ID"
	headerRequestID = "X-Request-ID"

	ctxLoggerKey = "logger"
)

// requestID tags every request with an id and a request-scoped logger.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		logger := logging.WithRequestID(s.logger, id)
		c.Set(ctxLoggerKey, logger)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.LogHTTPRequest(requestLogger(c, s.logger), c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger := requestLogger(c, s.logger)
		logger.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("Handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

func requestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if v, ok := c.Get(ctxLoggerKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return fallback
}

// userID resolves the caller: header, then query, then the configured default.
func (s *Server) userID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(headerUserID)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.Query("user_id")); id != "" {
		return id
	}
	return s.cfg.DefaultUser
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsAlreadyExists(err):
		return http.StatusConflict
	case errors.Is(err, errors.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	logger := requestLogger(c, s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
	} else {
		logger.Debug().Err(err).Msg(msg)
	}

	body := err.Error()
	if status == http.StatusInternalServerError {
		body = msg
	}
	c.JSON(status, gin.H{"error": body})
}
