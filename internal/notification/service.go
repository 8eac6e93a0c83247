package notification

import (
	"context"
	"time"

	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/observability/metrics"
)

// Service renders collection notifications and delivers them to every provider.
type Service struct {
	providers       []Provider
	titleTemplate   string
	messageTemplate string
	metrics         *metrics.NotificationMetrics
	log             logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTemplates overrides the default title and message templates.
func WithTemplates(title, message string) Option {
	return func(s *Service) {
		if title != "" {
			s.titleTemplate = title
		}
		if message != "" {
			s.messageTemplate = message
		}
	}
}

// WithMetrics records deliveries in m.
func WithMetrics(m *metrics.NotificationMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService validates every enabled provider and returns a service delivering to them.
func NewService(providers []Provider, opts ...Option) (*Service, error) {
	s := &Service{
		titleTemplate:   DefaultTitleTemplate,
		messageTemplate: DefaultMessageTemplate,
		log:             logger.Global().Module("notification"),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range providers {
		if !p.Enabled() {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		s.providers = append(s.providers, p)
	}
	return s, nil
}

// NewServiceFromSettings builds a shoutrrr-backed service from the notification settings.
func NewServiceFromSettings(settings *conf.NotificationSettings, m *metrics.NotificationMetrics) (*Service, error) {
	provider := NewShoutrrrProvider(ShoutrrrConfig{
		Enabled: settings.Enabled,
		URLs:    settings.URLs,
		Timeout: settings.Timeout,
	})
	return NewService([]Provider{provider}, WithMetrics(m))
}

// Name identifies the service in logs.
func (s *Service) Name() string { return "notification" }

// ProviderCount returns the number of enabled providers.
func (s *Service) ProviderCount() int { return len(s.providers) }

// EntrySaved renders and sends a collection notification. Every provider is attempted;
// the returned error joins the individual failures.
func (s *Service) EntrySaved(ctx context.Context, entry *collection.Entry) error {
	if len(s.providers) == 0 {
		return nil
	}

	data := NewTemplateData(entry)
	title, err := RenderTemplate("title", s.titleTemplate, data)
	if err != nil {
		return s.templateError(err)
	}
	message, err := RenderTemplate("message", s.messageTemplate, data)
	if err != nil {
		return s.templateError(err)
	}

	n := &Notification{
		Type:      TypeCollection,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
	return s.dispatch(ctx, n)
}

func (s *Service) dispatch(ctx context.Context, n *Notification) error {
	var errs []error
	for _, p := range s.providers {
		if !p.Accepts(n.Type) {
			continue
		}

		start := time.Now()
		err := p.Send(ctx, n)
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
			errs = append(errs, errors.New(err).
				Component("notification").
				Category(errors.CategoryNotification).
				Context("provider", p.Name()).
				Build())
			s.log.Warn("notification delivery failed",
				logger.String("provider", p.Name()),
				logger.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordDelivery(p.Name(), string(n.Type), status, time.Since(start))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) templateError(err error) error {
	return errors.New(err).
		Component("notification").
		Category(errors.CategoryNotification).
		Context("operation", "render_template").
		Build()
}
