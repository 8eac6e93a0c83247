// Package app wires the birdlens components from settings. The serve command and the
// one-shot CLI commands share it so that every entry point runs the same pipeline.
package app

import (
	"context"
	"time"

	"github.com/birdlens/birdlens/internal/blobstore"
	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/ebird"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/imaging"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/mqtt"
	"github.com/birdlens/birdlens/internal/notification"
	"github.com/birdlens/birdlens/internal/observability"
	"github.com/birdlens/birdlens/internal/observability/metrics"
	"github.com/birdlens/birdlens/internal/persist"
	"github.com/birdlens/birdlens/internal/pipeline"
	"github.com/birdlens/birdlens/internal/vision"
)

// mqttConnectTimeout bounds the startup connection attempt. Publishing reconnects later.
const mqttConnectTimeout = 10 * time.Second

// App holds the wired components.
type App struct {
	Settings   *conf.Settings
	Build      *buildinfo.Context
	Metrics    *observability.Metrics
	Registry   *ebird.Client
	Vision     *vision.Client
	Blobs      blobstore.Store
	Collection collection.Store
	Pipeline   *pipeline.Pipeline

	log        logger.Logger
	mqttClient mqtt.Client
}

// Components selects which parts New builds. The registry command needs neither the
// vision model nor storage.
type Components struct {
	Identification bool // vision client, storage and the pipeline
	Observers      bool // MQTT and notification fan-out
}

// All builds every component.
var All = Components{Identification: true, Observers: true}

// EBirdConfig maps settings onto the eBird client config, keeping defaults for unset values.
func EBirdConfig(s conf.EBirdSettings) ebird.Config {
	cfg := ebird.DefaultConfig()
	cfg.APIKey = s.APIKey
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout
	}
	if s.CacheTTL > 0 {
		cfg.CacheTTL = s.CacheTTL
	}
	if s.RateLimitMS > 0 {
		cfg.RateLimitMS = s.RateLimitMS
	}
	if s.MaxRetries > 0 {
		cfg.MaxRetries = s.MaxRetries
	}
	return cfg
}

// VisionConfig maps settings onto the vision client config.
func VisionConfig(s conf.VisionSettings) vision.Config {
	return vision.Config{
		BaseURL:   s.BaseURL,
		APIKey:    s.APIKey,
		Model:     s.Model,
		MaxTokens: s.MaxTokens,
		Timeout:   s.Timeout,
	}
}

// New builds the selected components. On error everything built so far is released.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, want Components) (_ *App, err error) {
	log := logger.Global().Module("app")
	a := &App{Settings: settings, Build: build, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Metrics, err = observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).Component("app").Category(errors.CategoryConfiguration).Build()
	}

	a.Registry, err = ebird.NewClient(EBirdConfig(settings.EBird))
	if err != nil {
		return nil, err
	}
	if err = a.Metrics.RegisterRegistryStats(a.registryStats); err != nil {
		return nil, errors.New(err).Component("app").Category(errors.CategoryConfiguration).Build()
	}

	if !want.Identification {
		return a, nil
	}

	a.Vision, err = vision.NewClient(VisionConfig(settings.Vision))
	if err != nil {
		return nil, err
	}
	a.Blobs, err = blobstore.New(&settings.Storage, nil)
	if err != nil {
		return nil, err
	}
	a.Collection, err = collection.Open(ctx, &settings.Collection, nil)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(a.Metrics.Pipeline),
		pipeline.WithDefaultRegion(settings.Identification.DefaultRegion),
	}
	if want.Observers {
		observers, oerr := a.observers(ctx)
		if oerr != nil {
			return nil, oerr
		}
		opts = append(opts, pipeline.WithObservers(observers...))
	}

	a.Pipeline = pipeline.New(
		imaging.NewEncoder(settings.Imaging.MaxDimension, settings.Imaging.Quality, settings.Imaging.MaxPixels),
		a.Vision,
		a.Registry,
		persist.NewGateway(a.Blobs, a.Collection, nil),
		opts...,
	)

	log.Info("components ready",
		logger.String("storage", a.Blobs.Name()),
		logger.String("collection", settings.Collection.Type),
		logger.String("default_region", settings.Identification.DefaultRegion))

	return a, nil
}

func (a *App) observers(ctx context.Context) ([]pipeline.Observer, error) {
	var observers []pipeline.Observer

	if a.Settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(a.Settings)
		client, err := mqtt.NewClient(cfg, a.Metrics.MQTT)
		if err != nil {
			return nil, err
		}
		a.mqttClient = client

		cctx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
		if err := client.Connect(cctx); err != nil {
			// Publishing reconnects, so a broker that is down at startup is not fatal.
			a.log.Warn("MQTT broker unavailable at startup", logger.Error(err))
		}
		cancel()
		observers = append(observers, mqtt.NewPublisher(client, cfg.Topic))
	}

	if a.Settings.Notification.Enabled {
		svc, err := notification.NewServiceFromSettings(&a.Settings.Notification, a.Metrics.Notification)
		if err != nil {
			return nil, err
		}
		if svc.ProviderCount() > 0 {
			observers = append(observers, svc)
		}
	}

	return observers, nil
}

func (a *App) registryStats() metrics.RegistryStats {
	m := a.Registry.GetMetrics()
	return metrics.RegistryStats{
		Requests:    m.APICalls,
		Errors:      m.APIErrors,
		CacheHits:   m.CacheHits,
		CacheMisses: m.CacheMisses,
		CacheItems:  a.Registry.CacheItemCount(),
	}
}

// Close waits for pending observer notifications and releases every connection.
func (a *App) Close() {
	if a.Pipeline != nil {
		a.Pipeline.Wait()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.Collection != nil {
		if err := a.Collection.Close(); err != nil {
			a.log.Warn("failed to close collection store", logger.Error(err))
		}
	}
	if a.Vision != nil {
		a.Vision.Close()
	}
	if a.Registry != nil {
		a.Registry.Close()
	}
}
