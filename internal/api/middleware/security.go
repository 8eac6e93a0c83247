package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// oneYear is the HSTS max-age in seconds.
const oneYear = 365 * 24 * 60 * 60

// SecurityConfig drives the CORS and response header middleware.
type SecurityConfig struct {
	AllowedOrigins []string
	// OwnerHeader must pass CORS preflight so browser clients can identify the collection owner.
	OwnerHeader string

	HSTSMaxAge            int
	HSTSExcludeSubdomains bool
}

// DefaultSecurityConfig allows any origin and the default owner header.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		AllowedOrigins: []string{"*"},
		OwnerHeader:    "X-Owner-ID",
		HSTSMaxAge:     oneYear,
	}
}

// NewCORS answers preflight requests for the API's methods and headers.
func NewCORS(config SecurityConfig) echo.MiddlewareFunc {
	allowed := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization}
	if config.OwnerHeader != "" {
		allowed = append(allowed, config.OwnerHeader)
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowHeaders: allowed,
	})
}

// NewSecureHeaders sets nosniff, frame denial and HSTS on every response.
func NewSecureHeaders(config SecurityConfig) echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            config.HSTSMaxAge,
		HSTSExcludeSubdomains: config.HSTSExcludeSubdomains,
	})
}

// NewBodyLimit rejects request bodies larger than limit (echo size syntax, e.g. "21M").
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
