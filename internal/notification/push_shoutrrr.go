package notification

import (
	"context"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/privacy"
)

// ShoutrrrConfig describes one shoutrrr delivery target.
type ShoutrrrConfig struct {
	Name    string
	Enabled bool
	URLs    []string
	Types   []Type // empty accepts every type
	Timeout time.Duration
}

// ShoutrrrProvider delivers through one shoutrrr router covering all configured URLs.
type ShoutrrrProvider struct {
	cfg    ShoutrrrConfig
	router *router.ServiceRouter
}

func NewShoutrrrProvider(cfg ShoutrrrConfig) *ShoutrrrProvider {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "shoutrrr"
	}
	cfg.URLs = slices.Clone(cfg.URLs)
	cfg.Types = slices.Clone(cfg.Types)
	return &ShoutrrrProvider{cfg: cfg}
}

func (s *ShoutrrrProvider) Name() string { return s.cfg.Name }

func (s *ShoutrrrProvider) Enabled() bool { return s.cfg.Enabled }

func (s *ShoutrrrProvider) Accepts(t Type) bool {
	return len(s.cfg.Types) == 0 || slices.Contains(s.cfg.Types, t)
}

// Validate parses the URLs and builds the router. Service URLs embed credentials, so
// parse errors are scrubbed before they are returned.
func (s *ShoutrrrProvider) Validate() error {
	if !s.cfg.Enabled {
		return nil
	}
	if len(s.cfg.URLs) == 0 {
		return errors.Newf("notification provider %q has no URLs", s.cfg.Name).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	r, err := shoutrrr.CreateSender(s.cfg.URLs...)
	if err != nil {
		return errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("provider", s.cfg.Name).
			Build()
	}
	if s.cfg.Timeout > 0 {
		r.Timeout = s.cfg.Timeout
	}
	r.SetLogger(log.New(io.Discard, "", 0))
	s.router = r
	return nil
}

// Send delivers n to every URL. Failures from individual services are joined.
func (s *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if s.router == nil {
		return errors.Newf("notification provider %q used before Validate", s.cfg.Name).
			Component("notification").
			Category(errors.CategoryNotification).
			Build()
	}
	// the router enforces its own timeout
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	var failures []error
	for _, err := range s.router.Send(n.Message, &params) {
		if err != nil {
			failures = append(failures, privacy.WrapError(err))
		}
	}
	return errors.Join(failures...)
}
