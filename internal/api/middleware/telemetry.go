package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/observability/metrics"
)

// unmatchedRoute labels requests that matched no route.
const unmatchedRoute = "unmatched"

// NewMetrics records every request under its route pattern so owner ids and region codes
// never become label values.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = unmatchedRoute
			}
			method := c.Request().Method
			status := responseStatus(c, err)

			m.ObserveRequest(method, route, status, time.Since(start))
			if err != nil || status >= http.StatusInternalServerError {
				m.CountFailure(method, route, failureReason(c, err, status))
			}
			return err
		}
	}
}

// responseStatus predicts the status of a failed request; echo's error handler writes it
// only after the middleware chain returns.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func failureReason(c echo.Context, err error, status int) string {
	switch {
	case errors.Is(c.Request().Context().Err(), context.Canceled):
		return "client_cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case status >= http.StatusInternalServerError:
		return "server_error"
	}
	return "client_error"
}
