// Package telemetry initializes opt-in Sentry error reporting and connects it to the
// errors package so that built EnhancedErrors are captured with private data scrubbed.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/privacy"
)

// DefaultFlushTimeout bounds how long shutdown waits for queued events.
const DefaultFlushTimeout = 2 * time.Second

// InitSentry initializes Sentry when enabled in settings. It is a no-op otherwise.
func InitSentry(settings *conf.SentrySettings, build *buildinfo.Context) error {
	log := logger.Global().Module("telemetry")
	if !settings.Enabled {
		log.Debug("sentry telemetry is disabled")
		return nil
	}
	if settings.DSN == "" {
		return errors.Newf("sentry is enabled but no DSN is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	environment := settings.Environment
	if environment == "" {
		environment = "production"
	}

	if err := initialize(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          build.Release(),
	}); err != nil {
		return err
	}

	log.Info("sentry telemetry initialized",
		logger.String("environment", environment),
		logger.String("release", build.Release()))
	return nil
}

// initialize installs the privacy hook, starts the SDK and registers the reporter.
func initialize(opts sentry.ClientOptions) error {
	opts.BeforeSend = applyPrivacyFilters
	if err := sentry.Init(opts); err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(NewReporter(errors.NewSentryReporter(true)))
	return nil
}

// applyPrivacyFilters strips host and user data and scrubs the message text.
func applyPrivacyFilters(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)

	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	return event
}

// Shutdown detaches the reporter and flushes queued events.
func Shutdown(timeout time.Duration) {
	errors.SetTelemetryReporter(nil)
	sentry.Flush(timeout)
}
