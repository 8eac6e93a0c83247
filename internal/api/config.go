// Package api serves the identification pipeline over HTTP. Routes under /api/v1 accept
// photos and read collections and regional registries; /health and /metrics sit at the root.
package api

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
)

func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

const (
	DefaultPort        = "8080"
	DefaultOwnerHeader = "X-Owner-ID"
	DefaultMaxUploadMB = 20

	// A request spans one full identification run: encode, vision call, registry and persistence.
	DefaultWriteTimeout    = 120 * time.Second
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	megabyte = 1 << 20
	// formAllowance is added to the photo limit for the region field and multipart framing.
	formAllowance = 1 << 20
)

// Config is the listener and request-handling configuration of the server.
type Config struct {
	Host string
	Port string

	OwnerHeader    string
	AllowedOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MaxUploadBytes int64

	Debug bool
}

func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		OwnerHeader:     DefaultOwnerHeader,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxUploadBytes:  DefaultMaxUploadMB * megabyte,
	}
}

// ConfigFromSettings overlays the webserver section on DefaultConfig. Unset values keep
// their defaults.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings == nil {
		return cfg
	}
	ws := settings.WebServer

	if ws.Port != "" {
		cfg.Port = ws.Port
	}
	if h := strings.TrimSpace(ws.OwnerHeader); h != "" {
		cfg.OwnerHeader = h
	}
	if ws.MaxUploadMB > 0 {
		cfg.MaxUploadBytes = int64(ws.MaxUploadMB) * megabyte
	}
	if len(ws.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = slices.Clone(ws.AllowedOrigins)
	}
	cfg.Debug = settings.Debug
	return cfg
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var problems []error
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, errors.NewStd(msg))
		}
	}
	check(c.Port != "", "port is required")
	check(c.OwnerHeader != "", "owner header is required")
	check(c.MaxUploadBytes > 0, "max upload size must be positive")
	check(c.ReadTimeout > 0, "read timeout must be positive")
	check(c.WriteTimeout > 0, "write timeout must be positive")
	return errors.Join(problems...)
}

func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// BodyLimit is the echo body-limit value: the photo limit plus the form allowance, in KiB.
func (c *Config) BodyLimit() string {
	return fmt.Sprintf("%dK", (c.MaxUploadBytes+formAllowance)/1024)
}
