// Package middleware holds the echo middleware used by the API server.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/birdlens/birdlens/internal/logger"
)

// NewRequestLogger logs one line per request. Server errors are logged at warn level.
// Requests for which skip returns true are not logged; skip may be nil.
func NewRequestLogger(log logger.Logger, skip middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     skip,
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if log == nil {
				return nil
			}
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			reqLog := log.WithContext(c.Request().Context())
			if v.Status >= http.StatusInternalServerError {
				reqLog.Warn("request failed", fields...)
				return nil
			}
			reqLog.Info("request", fields...)
			return nil
		},
	})
}
