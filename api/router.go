package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter registers the request validators and the routes of h.
func NewRouter(h *Handler) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/healthz", h.Health)
	v1 := r.Group("/v1")
	v1.POST("/validate", h.Validate)
	v1.POST("/validate/batch", h.ValidateBatch)
	return r, nil
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		e := logger.Debug()
		if c.Writer.Status() >= 500 {
			e = logger.Warn()
		}
		e.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request served")
	}
}
